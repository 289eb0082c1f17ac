package transpile

import (
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// frame is one open delimiter on the reflow stack.
type frame byte

const (
	frameParen   frame = '('
	frameBracket frame = '['
	frameObject  frame = 'o'
	frameBlock   frame = 'b'
	frameDo      frame = 'd'
)

// reflower re-indents source so that every statement sits on its own line,
// every block brace ends its header line and every closing block brace
// starts a line, indented four spaces per enclosing block. Object literals
// and argument lists are kept on one line unless a function body opens
// inside them.
type reflower struct {
	src          string
	out          []string
	cur          strings.Builder
	stack        []frame
	depth        int
	space        bool
	pendingBreak bool
	afterClose   frame
}

func reflow(src string) string {
	rf := &reflower{src: src}
	rf.run()
	return strings.Join(rf.out, "\n")
}

func (rf *reflower) run() {
	const (
		noComment = iota
		keepComment
		dropComment
	)
	mode := noComment
	inString := false

	sc := scanner.New(rf.src)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		p := sc.Pos()
		if sc.InComment() {
			if mode == noComment {
				rf.beforeToken(p)
				if rf.inline() || rf.cur.Len() > 0 {
					mode = dropComment
				} else {
					mode = keepComment
				}
			}
			if mode == keepComment {
				rf.cur.WriteByte(ch)
			}
			continue
		}
		if mode != noComment {
			if mode == keepComment {
				rf.flush()
			}
			mode = noComment
		}

		if sc.InString() {
			if !inString {
				rf.beforeToken(p)
				rf.writeSpace(ch)
				inString = true
			}
			rf.cur.WriteByte(ch)
			continue
		}
		inString = false

		switch ch {
		case ' ', '\t', '\r':
			rf.space = rf.cur.Len() > 0
			continue
		case '\n':
			if rf.inline() {
				rf.space = rf.cur.Len() > 0
			} else if rf.cur.Len() > 0 {
				rf.pendingBreak = true
			}
			continue
		}

		rf.beforeToken(p)
		switch ch {
		case '{':
			if rf.braceIsBlock() {
				kind := frameBlock
				if endsWithWord(strings.TrimSpace(rf.cur.String()), "do") {
					kind = frameDo
				}
				if rf.cur.Len() > 0 {
					rf.cur.WriteByte(' ')
				}
				rf.cur.WriteByte('{')
				rf.flush()
				rf.stack = append(rf.stack, kind)
				rf.depth++
				continue
			}
			rf.write(ch)
			rf.stack = append(rf.stack, frameObject)
		case '}':
			top := rf.top()
			if top == frameObject {
				rf.write(ch)
				rf.pop()
				continue
			}
			rf.flush()
			if top == frameBlock || top == frameDo {
				rf.pop()
				rf.depth--
			} else {
				top = frameBlock
			}
			rf.cur.WriteByte('}')
			rf.afterClose = top
		case '(':
			rf.write(ch)
			rf.stack = append(rf.stack, frameParen)
		case '[':
			rf.write(ch)
			rf.stack = append(rf.stack, frameBracket)
		case ')', ']':
			rf.write(ch)
			if top := rf.top(); (ch == ')' && top == frameParen) || (ch == ']' && top == frameBracket) {
				rf.pop()
			}
		case ';':
			rf.space = false
			rf.write(ch)
			if !rf.inline() {
				rf.flush()
			}
		default:
			rf.write(ch)
		}
	}
	rf.flush()
}

// beforeToken decides, when the first byte of a token arrives, whether the
// pending line break or the line holding a just-closed block brace ends
// here or continues.
func (rf *reflower) beforeToken(p int) {
	if rf.afterClose != 0 {
		closed := rf.afterClose
		rf.afterClose = 0
		rf.pendingBreak = false
		rest := rf.src[p:]
		switch c := rf.src[p]; {
		case c == ')' || c == ']' || c == ',' || c == ';' || c == '.':
			return
		case c == '}' && rf.top() == frameObject:
			return
		case startsWithWord(rest, "else"), startsWithWord(rest, "catch"), startsWithWord(rest, "finally"):
			rf.space = true
			return
		case closed == frameDo && startsWithWord(rest, "while"):
			rf.space = true
			return
		}
		rf.flush()
		return
	}
	if !rf.pendingBreak {
		return
	}
	rf.pendingBreak = false
	t := strings.TrimSpace(rf.cur.String())
	if strings.HasSuffix(t, ",") {
		rf.space = true
		return
	}
	if rf.src[p] == '.' && !strings.HasPrefix(rf.src[p:], "...") {
		rf.space = false
		return
	}
	if rf.src[p] == '{' && (rf.braceIsBlock() || continuesIntoObject(t)) {
		rf.space = true
		return
	}
	rf.flush()
}

// braceIsBlock reports whether a '{' arriving now opens a statement block
// rather than an object literal.
func (rf *reflower) braceIsBlock() bool {
	t := strings.TrimSpace(rf.cur.String())
	if t == "" {
		return true
	}
	if strings.HasSuffix(t, ")") || strings.HasSuffix(t, "=>") {
		return true
	}
	for _, kw := range []string{"else", "do", "try", "finally"} {
		if endsWithWord(t, kw) {
			return true
		}
	}
	return false
}

func continuesIntoObject(t string) bool {
	if t == "" {
		return false
	}
	switch t[len(t)-1] {
	case '=', '(', ',', ':', '?', '[':
		return true
	}
	return endsWithWord(t, "return")
}

func (rf *reflower) inline() bool {
	switch rf.top() {
	case frameParen, frameBracket, frameObject:
		return true
	}
	return false
}

func (rf *reflower) top() frame {
	if len(rf.stack) == 0 {
		return 0
	}
	return rf.stack[len(rf.stack)-1]
}

func (rf *reflower) pop() {
	if len(rf.stack) > 0 {
		rf.stack = rf.stack[:len(rf.stack)-1]
	}
}

// writeSpace emits a pending space before ch unless ch hugs its neighbour.
func (rf *reflower) writeSpace(ch byte) {
	if !rf.space {
		return
	}
	rf.space = false
	if rf.cur.Len() == 0 || ch == ')' || ch == ']' || ch == '}' || ch == ',' || ch == ';' {
		return
	}
	s := rf.cur.String()
	if last := s[len(s)-1]; last == '(' || last == '[' || (last == '{' && rf.top() == frameObject) || last == ' ' {
		return
	}
	rf.cur.WriteByte(' ')
}

func (rf *reflower) write(ch byte) {
	rf.writeSpace(ch)
	rf.cur.WriteByte(ch)
}

func (rf *reflower) flush() {
	t := strings.TrimSpace(rf.cur.String())
	if t != "" {
		rf.out = append(rf.out, strings.Repeat("    ", max(rf.depth, 0))+t)
	}
	rf.cur.Reset()
	rf.space = false
	rf.pendingBreak = false
}

func startsWithWord(s, word string) bool {
	return strings.HasPrefix(s, word) && (len(s) == len(word) || !scanner.IsIdentByte(s[len(word)]))
}

func endsWithWord(s, word string) bool {
	if !strings.HasSuffix(s, word) {
		return false
	}
	i := len(s) - len(word)
	return i == 0 || !scanner.IsIdentByte(s[i-1])
}
