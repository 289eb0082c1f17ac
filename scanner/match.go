package scanner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnbalanced is matched by every *UnbalancedError.
var ErrUnbalanced = errors.New("unbalanced delimiter")

// UnbalancedError reports an opener with no matching closer, or with
// Stray set, a closer with no opener.
type UnbalancedError struct {
	Open     byte
	Line     int
	Fragment string
	Stray    bool
}

func (e *UnbalancedError) Error() string {
	if e.Stray {
		return fmt.Sprintf("line %d: unexpected %q in %q", e.Line, closerFor(e.Open), e.Fragment)
	}
	return fmt.Sprintf("line %d: no matching %q for %q in %q", e.Line, closerFor(e.Open), e.Open, e.Fragment)
}

// Is reports whether target is ErrUnbalanced.
func (e *UnbalancedError) Is(target error) bool { return target == ErrUnbalanced }

func closerFor(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	}
	return 0
}

func openerFor(close byte) byte {
	switch close {
	case ')':
		return '('
	case ']':
		return '['
	case '}':
		return '{'
	}
	return 0
}

// MatchClose returns the offset of the delimiter closing the opener at
// src[openPos]. Delimiters inside strings and comments are ignored, and
// nested openers of the same kind must be closed first. openPos must lie
// in code.
func MatchClose(src string, openPos int) (int, error) {
	open := src[openPos]
	closer := closerFor(open)
	if closer == 0 {
		return -1, fmt.Errorf("%q is not an opening delimiter", open)
	}
	depth := 0
	sc := New(src[openPos:])
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if !sc.InCode() {
			continue
		}
		switch ch {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return openPos + sc.Pos(), nil
			}
		}
	}
	return -1, &UnbalancedError{
		Open:     open,
		Line:     LineAt(src, openPos),
		Fragment: Fragment(src, openPos),
	}
}

// Between returns the text strictly between the opener at src[openPos]
// and its matching closer.
func Between(src string, openPos int) (string, error) {
	end, err := MatchClose(src, openPos)
	if err != nil {
		return "", err
	}
	return src[openPos+1 : end], nil
}

// MatchOpen scans backwards from the closer at src[closePos] and returns
// the offset of its opener. mask is the CodeMask of src.
func MatchOpen(src string, mask []bool, closePos int) int {
	closer := src[closePos]
	open := openerFor(closer)
	depth := 0
	for i := closePos; i >= 0; i-- {
		if !mask[i] {
			continue
		}
		switch src[i] {
		case closer:
			depth++
		case open:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// LineAt returns the 1-based line number of offset pos.
func LineAt(src string, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	return strings.Count(src[:pos], "\n") + 1
}

// Fragment returns a short excerpt of src starting at pos, cut at the end
// of the line, for error messages.
func Fragment(src string, pos int) string {
	if pos < 0 || pos >= len(src) {
		return ""
	}
	frag := src[pos:]
	if i := strings.IndexByte(frag, '\n'); i >= 0 {
		frag = frag[:i]
	}
	if len(frag) > 60 {
		frag = frag[:60] + "..."
	}
	return strings.TrimSpace(frag)
}

// Comment is the span of one comment, End exclusive.
type Comment struct {
	Start, End int
	Block      bool
}

// Text returns the comment source.
func (c Comment) Text(src string) string { return src[c.Start:c.End] }

// Comments lists every comment in src in order.
func Comments(src string) []Comment {
	var out []Comment
	sc := New(src)
	start := -1
	for _, ok := sc.Next(); ok; _, ok = sc.Next() {
		p := sc.Pos()
		in := sc.InComment()
		switch {
		case in && start < 0:
			start = p
		case !in && start >= 0:
			out = append(out, Comment{Start: start, End: p, Block: src[start+1] == '*'})
			start = -1
		}
		if in && sc.closing == closingComment {
			out = append(out, Comment{Start: start, End: p + 1, Block: true})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, Comment{Start: start, End: len(src), Block: start+1 < len(src) && src[start+1] == '*'})
	}
	return out
}
