package transpile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/eejs2py/eejs2py/block"
	"github.com/eejs2py/eejs2py/scanner"
)

// maxLoopNesting is the deepest loop nesting the translator accepts.
const maxLoopNesting = 3

func isLoopHeader(line string) bool {
	t := strings.TrimSpace(line)
	return startsWithWord(t, "for") || startsWithWord(t, "while") || startsWithWord(t, "do")
}

func loopTagger(line string, depth int) (bool, int) {
	d := scanner.BraceDelta(line)
	if depth > 0 {
		return true, depth + d
	}
	if d <= 0 || !isLoopHeader(line) {
		return false, 0
	}
	return true, d
}

// convertLoops rewrites for, while and do-while headers into Python loops.
// Counting loops whose shape maps onto range become range loops; any other
// three-clause loop becomes a while loop with its step moved to the end of
// the body.
func convertLoops(src string) (string, error) {
	ls := strings.Split(src, "\n")
	groups, _ := block.Nest(ls, loopTagger)
	if line := tooDeep(groups, maxLoopNesting, 0, 1); line > 0 {
		return "", syntaxErr(ErrUnsupportedNestingDepth, line, strings.TrimSpace(ls[line-1]))
	}
	var err error
	for i := 0; i < len(ls); i++ {
		t := strings.TrimSpace(codePart(ls[i]))
		if strings.HasSuffix(t, ":") {
			continue
		}
		switch {
		case startsWithWord(t, "for"):
			ls, err = rewriteFor(ls, i)
		case startsWithWord(t, "while"):
			ls, err = rewriteWhile(ls, i)
		case startsWithWord(t, "do"):
			ls, err = rewriteDo(ls, i)
		}
		if err != nil {
			return "", err
		}
	}
	return strings.Join(ls, "\n"), nil
}

// loopHead is a parsed `keyword (header) tail` line.
type loopHead struct {
	indent string
	header string
	tail   string // `{`, an inline body, or empty
}

// readHead parses the parenthesised header of the loop at ls[i], joining
// continuation lines and pulling a braceless body up from the next line.
func readHead(ls []string, i int, keyword string) ([]string, loopHead, error) {
	line := codePart(ls[i])
	for scanner.ParenBalance(line) > 0 && i+1 < len(ls) {
		line += " " + strings.TrimSpace(codePart(ls[i+1]))
		ls = append(ls[:i+1], ls[i+2:]...)
	}
	ls[i] = line
	h := loopHead{indent: scanner.Indent(line)}
	open := skipBlank(line, len(h.indent)+len(keyword))
	if open >= len(line) || line[open] != '(' {
		return ls, h, syntaxErr(ErrMalformedLoopHeader, i+1, strings.TrimSpace(line))
	}
	end, err := scanner.MatchClose(line, open)
	if err != nil {
		return ls, h, asError(err, i+1)
	}
	h.header = strings.TrimSpace(line[open+1 : end])
	h.tail = strings.TrimSpace(line[end+1:])
	if h.tail == "" && i+1 < len(ls) {
		if next := strings.TrimSpace(ls[i+1]); next != "" && !isCommentLine(next) && !strings.HasPrefix(next, "{") {
			h.tail = next
			ls = append(ls[:i+1], ls[i+2:]...)
		}
	}
	return ls, h, nil
}

// blockEnd returns the index of the line closing the block opened on ls[i].
func blockEnd(ls []string, i int) int {
	depth := 0
	for j := i; j < len(ls); j++ {
		depth += scanner.BraceDelta(ls[j])
		if depth <= 0 && j > i {
			return j
		}
	}
	return -1
}

// emit replaces ls[i] with the converted header lines, adding an inline
// body and the loop step where needed.
func emit(ls []string, i int, h loopHead, header, steps []string) ([]string, error) {
	body := h.indent + "    "
	repl := append([]string(nil), header...)
	if h.tail == "{" {
		if len(steps) > 0 {
			j := blockEnd(ls, i)
			if j < 0 {
				return ls, syntaxErr(ErrUnbalancedDelimiter, i+1, strings.TrimSpace(ls[i]))
			}
			ls, j = stepBeforeContinue(ls, i, j, steps)
			ls = splice(ls, j, append(indented(body, steps), ls[j]))
		}
	} else {
		steps = indented(body, steps)
		repl = append(repl, body+h.tail)
		repl = append(repl, steps...)
	}
	return splice(ls, i, repl), nil
}

func indented(indent string, steps []string) []string {
	out := make([]string, len(steps))
	for k, st := range steps {
		out[k] = indent + st
	}
	return out
}

// stepBeforeContinue repeats the loop step ahead of every standalone
// continue in ls[i+1:j] that belongs to the loop opened on ls[i]. It
// returns the moved index of the closing line.
func stepBeforeContinue(ls []string, i, j int, steps []string) ([]string, int) {
	for k := i + 1; k < j; k++ {
		t := strings.TrimSpace(codePart(ls[k]))
		if isLoopHeader(t) {
			switch {
			case strings.HasSuffix(t, "{"):
				if e := blockEnd(ls, k); e > 0 {
					k = e
				}
			case !strings.HasSuffix(t, ";") && !strings.HasSuffix(t, "}"):
				k++
			}
			continue
		}
		if t != "continue" && t != "continue;" {
			continue
		}
		ins := indented(scanner.Indent(ls[k]), steps)
		ls = append(ls[:k], append(ins, ls[k:]...)...)
		k += len(ins)
		j += len(ins)
	}
	return ls, j
}

func splice(ls []string, i int, repl []string) []string {
	out := make([]string, 0, len(ls)+len(repl))
	out = append(out, ls[:i]...)
	out = append(out, repl...)
	return append(out, ls[i+1:]...)
}

var declKeyword = regexp.MustCompile(`^(?:var|let|const)\s+`)

func rewriteFor(ls []string, i int) ([]string, error) {
	ls, h, err := readHead(ls, i, "for")
	if err != nil {
		return ls, err
	}
	parts := scanner.SplitTopLevel(h.header, ';')
	switch len(parts) {
	case 1:
		v, coll, ok := splitForIn(h.header)
		if !ok {
			return ls, syntaxErr(ErrMalformedLoopHeader, i+1, strings.TrimSpace(ls[i]))
		}
		return emit(ls, i, h, []string{h.indent + "for " + v + " in " + coll + ":"}, nil)
	case 3:
	default:
		return ls, syntaxErr(ErrMalformedLoopHeader, i+1, strings.TrimSpace(ls[i]))
	}
	init := declKeyword.ReplaceAllString(strings.TrimSpace(parts[0]), "")
	cond := strings.TrimSpace(parts[1])
	step := strings.TrimSpace(parts[2])
	if r, ok := rangeLoop(init, cond, step); ok {
		return emit(ls, i, h, []string{h.indent + "for " + r.String() + ":"}, nil)
	}
	var header []string
	for _, a := range scanner.SplitTopLevel(init, ',') {
		if a = strings.TrimSpace(a); a != "" {
			header = append(header, h.indent+a)
		}
	}
	if cond == "" {
		cond = "True"
	}
	header = append(header, h.indent+"while "+cond+":")
	var steps []string
	for _, s := range scanner.SplitTopLevel(step, ',') {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	return emit(ls, i, h, header, steps)
}

// splitForIn splits `k in obj` or `k of obj`.
func splitForIn(header string) (string, string, bool) {
	header = declKeyword.ReplaceAllString(header, "")
	for _, kw := range []string{"in", "of"} {
		if p := scanner.IndexWord(header, kw, 0); p > 0 {
			v := strings.TrimSpace(header[:p])
			coll := strings.TrimSpace(header[p+len(kw):])
			if isIdentifier(v) && coll != "" {
				return v, coll, true
			}
		}
	}
	return "", "", false
}

// rangeSpec is a counting loop expressed as range(start, stop, stride).
type rangeSpec struct {
	v, start, stop string
	stride         int
}

func (r rangeSpec) String() string {
	return r.v + " in range(" + r.start + ", " + r.stop + ", " + strconv.Itoa(r.stride) + ")"
}

var simpleAssign = regexp.MustCompile(`^([A-Za-z_$][\w$]*)\s*=\s*([^=].*)$`)

// rangeLoop recognises `v = a; v OP b; v step` loops with a constant step
// whose direction agrees with the comparison.
func rangeLoop(init, cond, step string) (rangeSpec, bool) {
	var r rangeSpec
	if len(scanner.SplitTopLevel(init, ',')) != 1 {
		return r, false
	}
	m := simpleAssign.FindStringSubmatch(init)
	if m == nil {
		return r, false
	}
	r.v, r.start = m[1], strings.TrimSpace(m[2])
	stride, ok := parseStride(r.v, step)
	if !ok {
		return r, false
	}
	r.stride = stride
	lhs, op, rhs, ok := splitComparison(cond)
	if !ok {
		return r, false
	}
	var bound string
	switch {
	case lhs == r.v:
		bound = rhs
	case rhs == r.v:
		bound, op = lhs, flipComparison(op)
	default:
		return r, false
	}
	switch op {
	case "<":
		r.stop = bound
		return r, stride > 0
	case "<=":
		r.stop = offsetBound(bound, 1)
		return r, stride > 0
	case ">":
		r.stop = bound
		return r, stride < 0
	case ">=":
		r.stop = offsetBound(bound, -1)
		return r, stride < 0
	case "!=":
		r.stop = bound
		return r, stride == 1 || stride == -1
	}
	return r, false
}

func offsetBound(bound string, by int) string {
	if n, err := strconv.Atoi(bound); err == nil {
		return strconv.Itoa(n + by)
	}
	if by > 0 {
		return bound + " + " + strconv.Itoa(by)
	}
	return bound + " - " + strconv.Itoa(-by)
}

func flipComparison(op string) string {
	switch op {
	case "<":
		return ">"
	case ">":
		return "<"
	case "<=":
		return ">="
	case ">=":
		return "<="
	}
	return op
}

// parseStride returns the constant step of v, if step is one of the
// increment forms range can express.
func parseStride(v, step string) (int, bool) {
	s := strings.ReplaceAll(step, " ", "")
	n := 0
	switch {
	case s == v+"++" || s == "++"+v:
		return 1, true
	case s == v+"--" || s == "--"+v:
		return -1, true
	case strings.HasPrefix(s, v+"+="):
		n = atoiOr0(s[len(v)+2:])
	case strings.HasPrefix(s, v+"-="):
		n = -atoiOr0(s[len(v)+2:])
	case strings.HasPrefix(s, v+"="+v+"+"):
		n = atoiOr0(s[2*len(v)+2:])
	case strings.HasPrefix(s, v+"="+v+"-"):
		n = -atoiOr0(s[2*len(v)+2:])
	}
	return n, n != 0
}

func atoiOr0(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// splitComparison splits a single top-level comparison. Conditions joined
// with and/or are not split.
func splitComparison(cond string) (string, string, string, bool) {
	if scanner.IndexWord(cond, "and", 0) >= 0 || scanner.IndexWord(cond, "or", 0) >= 0 {
		return "", "", "", false
	}
	mask := scanner.CodeMask(cond)
	depth := 0
	for i := 0; i < len(cond); i++ {
		if !mask[i] {
			continue
		}
		c := cond[i]
		switch {
		case scanner.IsOpenBracket(c):
			depth++
			continue
		case scanner.IsCloseBracket(c):
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		for _, op := range []string{"<=", ">=", "==", "!=", "<", ">"} {
			if !strings.HasPrefix(cond[i:], op) {
				continue
			}
			if len(op) == 1 && i+1 < len(cond) && (cond[i+1] == c || cond[i+1] == '=') {
				return "", "", "", false
			}
			return strings.TrimSpace(cond[:i]), op, strings.TrimSpace(cond[i+len(op):]), true
		}
	}
	return "", "", "", false
}

func rewriteWhile(ls []string, i int) ([]string, error) {
	ls, h, err := readHead(ls, i, "while")
	if err != nil {
		return ls, err
	}
	cond := h.header
	if cond == "" {
		cond = "True"
	}
	return emit(ls, i, h, []string{h.indent + "while " + cond + ":"}, nil)
}

var doClose = regexp.MustCompile(`^\s*\}\s*while\b`)

// rewriteDo turns do { ... } while (c); into a while True loop that breaks
// when c no longer holds.
func rewriteDo(ls []string, i int) ([]string, error) {
	indent := scanner.Indent(ls[i])
	j := blockEnd(ls, i)
	if j < 0 || !doClose.MatchString(ls[j]) {
		return ls, syntaxErr(ErrMalformedLoopHeader, i+1, strings.TrimSpace(ls[i]))
	}
	closing := codePart(ls[j])
	open := scanner.IndexCode(closing, "(", 0)
	if open < 0 {
		return ls, syntaxErr(ErrMalformedLoopHeader, j+1, strings.TrimSpace(closing))
	}
	end, err := scanner.MatchClose(closing, open)
	if err != nil {
		return ls, asError(err, j+1)
	}
	cond := strings.TrimSpace(closing[open+1 : end])
	ls = splice(ls, j, []string{
		indent + "    if not (" + cond + "):",
		indent + "        break",
	})
	ls[i] = indent + "while True:"
	return ls, nil
}
