// Package scanner provides string- and comment-aware scanning for the
// eejs2py rewrite passes. It encapsulates the tracking of double-quoted,
// single-quoted and template literals, escape sequences and comments, so
// that no pass has to re-implement that logic or accidentally rewrite the
// contents of a string.
package scanner

import "strings"

// closingKind tracks which kind of span was just closed.
type closingKind byte

const (
	noClosing       closingKind = iota
	closingDouble               // just closed a "..." string
	closingSingle               // just closed a '...' string
	closingBacktick             // just closed a `...` template
	closingComment              // just closed a /* ... */ comment
)

// CodeScanner iterates byte-by-byte over source text, tracking string
// literal boundaries, escape sequences and comments. Callers check
// InString(), InComment() or InCode() instead of maintaining their own
// flags.
//
// InString() is true for the entire string span including both delimiters.
// InComment() is true for every byte of a comment including its markers.
// Line comments start with "//" or "#" (the latter appears once text has
// been rewritten into the target dialect) and end before the newline.
type CodeScanner struct {
	src       string
	pos       int
	line      int
	inDbl     bool
	inSgl     bool
	inBt      bool
	inLine    bool
	inBlock   bool
	escaped   bool
	blockTail bool // the next byte is the '/' of "*/"
	closing   closingKind
}

// New creates a CodeScanner for the given source text.
// Call Next() to advance to the first byte.
func New(src string) *CodeScanner {
	return &CodeScanner{src: src, pos: -1, line: 1}
}

// Next advances to the next byte, updating string/comment/escape state.
// Returns the byte and true, or (0, false) at end of input.
func (s *CodeScanner) Next() (byte, bool) {
	s.closing = noClosing
	s.pos++
	if s.pos >= len(s.src) {
		return 0, false
	}
	ch := s.src[s.pos]
	if ch == '\n' {
		s.line++
		s.inLine = false
		s.escaped = false
		if s.inDbl || s.inSgl {
			// An unterminated quote never spans lines.
			s.inDbl, s.inSgl = false, false
		}
		return ch, true
	}

	if s.inLine {
		return ch, true
	}
	if s.inBlock {
		if s.blockTail {
			s.blockTail = false
			s.inBlock = false
			s.closing = closingComment
		} else if ch == '*' && s.peekIs('/') {
			s.blockTail = true
		}
		return ch, true
	}

	if s.escaped {
		s.escaped = false
		return ch, true
	}
	if ch == '\\' && (s.inDbl || s.inSgl || s.inBt) {
		s.escaped = true
		return ch, true
	}

	switch {
	case ch == '"' && !s.inSgl && !s.inBt:
		if s.inDbl {
			s.closing = closingDouble
		}
		s.inDbl = !s.inDbl
	case ch == '\'' && !s.inDbl && !s.inBt:
		if s.inSgl {
			s.closing = closingSingle
		}
		s.inSgl = !s.inSgl
	case ch == '`' && !s.inDbl && !s.inSgl:
		if s.inBt {
			s.closing = closingBacktick
		}
		s.inBt = !s.inBt
	case s.inDbl || s.inSgl || s.inBt:
	case ch == '/' && s.peekIs('/'):
		s.inLine = true
	case ch == '/' && s.peekIs('*'):
		s.inBlock = true
	case ch == '#':
		s.inLine = true
	}
	return ch, true
}

func (s *CodeScanner) peekIs(b byte) bool {
	return s.pos+1 < len(s.src) && s.src[s.pos+1] == b
}

// InString reports whether the current position is inside a string literal
// (double-quoted, single-quoted, or template), including both delimiters.
func (s *CodeScanner) InString() bool {
	return s.inDbl || s.inSgl || s.inBt ||
		s.closing == closingDouble || s.closing == closingSingle || s.closing == closingBacktick
}

// InComment reports whether the current position is inside a comment,
// including its markers.
func (s *CodeScanner) InComment() bool {
	return s.inLine || s.inBlock || s.closing == closingComment
}

// InCode reports whether the current position is outside all string
// literals and comments.
func (s *CodeScanner) InCode() bool { return !s.InString() && !s.InComment() }

// Pos returns the current byte offset (the position of the last byte
// returned by Next). Returns -1 before the first call to Next.
func (s *CodeScanner) Pos() int { return s.pos }

// Line returns the current 1-based line number.
func (s *CodeScanner) Line() int { return s.line }

// Src returns the full source text being scanned.
func (s *CodeScanner) Src() string { return s.src }

// Peek returns the next byte without advancing, or (0, false) at end.
func (s *CodeScanner) Peek() (byte, bool) {
	if s.pos+1 >= len(s.src) {
		return 0, false
	}
	return s.src[s.pos+1], true
}

// LookingAt checks if src[pos:] starts with the given prefix.
func (s *CodeScanner) LookingAt(prefix string) bool {
	if s.pos < 0 {
		return false
	}
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

// Skip advances past n bytes without returning them. State is updated for
// each skipped byte. Returns the number of bytes actually skipped.
func (s *CodeScanner) Skip(n int) int {
	skipped := 0
	for i := 0; i < n; i++ {
		if _, ok := s.Next(); !ok {
			break
		}
		skipped++
	}
	return skipped
}

// CodeMask returns, for every byte of src, whether it is code (outside
// strings and comments).
func CodeMask(src string) []bool {
	mask := make([]bool, len(src))
	sc := New(src)
	for _, ok := sc.Next(); ok; _, ok = sc.Next() {
		mask[sc.Pos()] = sc.InCode()
	}
	return mask
}

// IsOpenBracket reports whether ch is an opening bracket/paren/brace.
func IsOpenBracket(ch byte) bool {
	return ch == '(' || ch == '[' || ch == '{'
}

// IsCloseBracket reports whether ch is a closing bracket/paren/brace.
func IsCloseBracket(ch byte) bool {
	return ch == ')' || ch == ']' || ch == '}'
}

// IsIdentByte reports whether ch can appear inside an identifier.
func IsIdentByte(ch byte) bool {
	return ch == '_' || ch == '$' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// FindTopLevel scans s for a byte matching pred at bracket depth 0,
// outside all string literals and comments. Returns the byte offset or -1.
func FindTopLevel(s string, pred func(ch byte, pos int, src string) bool) int {
	depth := 0
	sc := New(s)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if !sc.InCode() {
			continue
		}
		if IsOpenBracket(ch) {
			depth++
		} else if IsCloseBracket(ch) {
			depth--
		}
		if depth == 0 && pred(ch, sc.Pos(), s) {
			return sc.Pos()
		}
	}
	return -1
}

// FindAllTopLevel is like FindTopLevel but returns all matching positions.
func FindAllTopLevel(s string, pred func(ch byte, pos int, src string) bool) []int {
	var positions []int
	depth := 0
	sc := New(s)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if !sc.InCode() {
			continue
		}
		if IsOpenBracket(ch) {
			depth++
		} else if IsCloseBracket(ch) {
			depth--
		}
		if depth == 0 && pred(ch, sc.Pos(), s) {
			positions = append(positions, sc.Pos())
		}
	}
	return positions
}

// SplitTopLevel splits s on every sep byte found at bracket depth 0 outside
// strings and comments. The pieces are returned untrimmed.
func SplitTopLevel(s string, sep byte) []string {
	cuts := FindAllTopLevel(s, func(ch byte, _ int, _ string) bool { return ch == sep })
	parts := make([]string, 0, len(cuts)+1)
	start := 0
	for _, c := range cuts {
		parts = append(parts, s[start:c])
		start = c + 1
	}
	return append(parts, s[start:])
}

// IsInsideString reports whether byte offset pos in s falls inside a
// string literal. It checks the state just before pos, so opening
// delimiters return false and closing delimiters return true.
func IsInsideString(s string, pos int) bool {
	sc := New(s)
	for i := 0; i < pos; i++ {
		if _, ok := sc.Next(); !ok {
			return false
		}
	}
	return sc.inDbl || sc.inSgl || sc.inBt
}

// IndexCode returns the offset of the first occurrence of token at or
// after from that lies in code, or -1.
func IndexCode(s, token string, from int) int {
	return indexCode(s, token, from, false)
}

// IndexWord is like IndexCode but only matches token as a whole word.
func IndexWord(s, token string, from int) int {
	return indexCode(s, token, from, true)
}

func indexCode(s, token string, from int, word bool) int {
	if token == "" || !strings.Contains(s[min(from, len(s)):], token) {
		return -1
	}
	sc := New(s)
	for _, ok := sc.Next(); ok; _, ok = sc.Next() {
		p := sc.Pos()
		if p < from || !sc.InCode() || !sc.LookingAt(token) {
			continue
		}
		if word && !isWordAt(s, p, len(token)) {
			continue
		}
		return p
	}
	return -1
}

// BraceDelta returns the number of '{' minus the number of '}' in code.
func BraceDelta(line string) int {
	d := 0
	sc := New(line)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if !sc.InCode() {
			continue
		}
		switch ch {
		case '{':
			d++
		case '}':
			d--
		}
	}
	return d
}

// ParenBalance returns the number of '(' minus the number of ')' in code.
func ParenBalance(line string) int {
	d := 0
	sc := New(line)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if !sc.InCode() {
			continue
		}
		switch ch {
		case '(':
			d++
		case ')':
			d--
		}
	}
	return d
}

// ReplaceOutsideQuotes replaces every occurrence of old that lies in code
// (outside strings and comments) with repl.
func ReplaceOutsideQuotes(s, old, repl string) string {
	return replaceOutside(s, old, repl, false)
}

// ReplaceWordOutsideQuotes is like ReplaceOutsideQuotes but only replaces
// old where it stands as a whole identifier.
func ReplaceWordOutsideQuotes(s, old, repl string) string {
	return replaceOutside(s, old, repl, true)
}

func replaceOutside(s, old, repl string, word bool) string {
	if old == "" || !strings.Contains(s, old) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	sc := New(s)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		p := sc.Pos()
		if sc.InCode() && sc.LookingAt(old) && (!word || isWordAt(s, p, len(old))) {
			b.WriteString(repl)
			sc.Skip(len(old) - 1)
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isWordAt(s string, pos, n int) bool {
	if pos > 0 && IsIdentByte(s[pos-1]) {
		return false
	}
	end := pos + n
	return end >= len(s) || !IsIdentByte(s[end])
}
