package transpile

import (
	"regexp"
	"strings"

	"github.com/eejs2py/eejs2py/block"
	"github.com/eejs2py/eejs2py/scanner"
)

// maxNesting is the deepest function nesting the translator accepts.
const maxNesting = 3

// FunctionRecord is a function literal found in the source.
type FunctionRecord struct {
	Name   string // empty for anonymous functions
	Params []string
	Body   string
}

// functionTagger marks the lines of top-level function constructs: a
// header line holding the function keyword and an unclosed '{', through the
// line that closes it.
func functionTagger(line string, depth int) (bool, int) {
	d := scanner.BraceDelta(line)
	if depth > 0 {
		return true, depth + d
	}
	t := strings.TrimSpace(line)
	if d <= 0 || strings.HasPrefix(t, "}") || scanner.IndexWord(line, "function", 0) < 0 {
		return false, 0
	}
	return true, d
}

type functionPass struct {
	names *Namer
}

// convertFunctions rewrites every function literal into a def block. Named
// declarations and assignments keep their place; callbacks are hoisted
// above the statement that uses them.
func convertFunctions(r *Run, src string) (string, []Fragment, error) {
	if scanner.IndexWord(src, "function", 0) < 0 {
		return src, nil, nil
	}
	ls := strings.Split(src, "\n")
	groups, err := block.Nest(ls, functionTagger)
	if err != nil {
		r.log.Warn("unbalanced function construct left as is", "err", err)
	}
	if line := tooDeep(groups, maxNesting, 0, 1); line > 0 {
		return "", nil, syntaxErr(ErrUnsupportedNestingDepth, line, strings.TrimSpace(ls[line-1]))
	}

	fp := &functionPass{names: r.names}
	out := make([]string, 0, len(ls))
	lineNo := 1
	for _, g := range groups {
		gl := g.Lines()
		if g.IsLeaf() {
			out = append(out, g.Line)
			lineNo++
			continue
		}
		text, err := fp.convert(g.Text(), 1)
		if err != nil {
			return "", nil, asError(err, lineNo)
		}
		out = append(out, text)
		lineNo += len(gl)
	}
	return strings.Join(out, "\n"), nil, nil
}

// tooDeep returns the 1-based line of the first header nested deeper than
// limit, or 0.
func tooDeep(groups []block.Group, limit, level, line int) int {
	for _, g := range groups {
		if g.IsLeaf() {
			line++
			continue
		}
		if level+1 > limit {
			return line
		}
		if l := tooDeep(g.Children, limit, level+1, line); l > 0 {
			return l
		}
		line += len(g.Lines())
	}
	return 0
}

// convert rewrites the function literals in text, outermost first.
func (fp *functionPass) convert(text string, level int) (string, error) {
	for {
		k := scanner.IndexWord(text, "function", 0)
		if k < 0 {
			return text, nil
		}
		if level > maxNesting {
			return "", syntaxErr(ErrUnsupportedNestingDepth, scanner.LineAt(text, k), scanner.Fragment(text, k))
		}
		next, err := fp.rewrite(text, k, level)
		if err != nil {
			return "", err
		}
		text = next
	}
}

var assignTarget = regexp.MustCompile(`^([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*|\[[^\]]+\])*)\s*=$`)

func isIdentifier(s string) bool {
	return s != "" && leadingName.FindString(s) == s
}

// rewrite converts the function whose keyword starts at k.
func (fp *functionPass) rewrite(text string, k, level int) (string, error) {
	lineStart := strings.LastIndexByte(text[:k], '\n') + 1
	indent := scanner.Indent(text[lineStart:])
	prefix := strings.TrimSpace(text[lineStart:k])
	target := ""
	if m := assignTarget.FindStringSubmatch(prefix); m != nil {
		target = m[1]
	}

	rec, end, err := parseFunction(text, k)
	if err != nil {
		if target != "" && !isIdentifier(target) {
			return "", syntaxErr(ErrUnresolvedAnonymousAssignment, scanner.LineAt(text, k), scanner.Fragment(text, lineStart))
		}
		return "", err
	}
	body, err := fp.convert(strings.Join(dedentBody(rec.Body), "\n"), level+1)
	if err != nil {
		return "", err
	}
	rest := text[end+1:]
	restOfLine := rest
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		restOfLine = rest[:nl]
	}
	statementEnds := strings.Trim(restOfLine, " \t;") == ""
	afterLine := strings.TrimPrefix(rest, restOfLine)

	switch {
	case prefix == "" && statementEnds:
		name := rec.Name
		if name == "" {
			name = fp.names.Name(text[k : end+1])
		}
		return text[:lineStart] + renderDef(indent, name, rec.Params, body) + afterLine, nil
	case target != "" && statementEnds && isIdentifier(target):
		return text[:lineStart] + renderDef(indent, target, rec.Params, body) + afterLine, nil
	case target != "" && statementEnds:
		name := rec.Name
		if name == "" {
			name = fp.names.Name(text[k : end+1])
		}
		def := renderDef(indent, name, rec.Params, body)
		return text[:lineStart] + def + "\n" + indent + target + " = " + name + afterLine, nil
	}

	name := rec.Name
	if name == "" {
		name = fp.names.Name(text[k : end+1])
	}
	stmt := statementStart(text, k)
	def := renderDef(scanner.Indent(text[stmt:]), name, rec.Params, body)
	return text[:stmt] + def + "\n" + text[stmt:k] + name + rest, nil
}

// parseFunction reads `function name(params) { body }` starting at k and
// returns the offset of the closing brace.
func parseFunction(text string, k int) (FunctionRecord, int, error) {
	var rec FunctionRecord
	p := skipBlank(text, k+len("function"))
	if p < len(text) && text[p] == '*' {
		p = skipBlank(text, p+1)
	}
	nameStart := p
	for p < len(text) && scanner.IsIdentByte(text[p]) {
		p++
	}
	rec.Name = text[nameStart:p]
	p = skipBlank(text, p)
	if p >= len(text) || text[p] != '(' {
		return rec, 0, &scanner.UnbalancedError{Open: '(', Line: scanner.LineAt(text, k), Fragment: scanner.Fragment(text, k)}
	}
	pclose, err := scanner.MatchClose(text, p)
	if err != nil {
		return rec, 0, err
	}
	for _, param := range scanner.SplitTopLevel(text[p+1:pclose], ',') {
		if param = strings.TrimSpace(param); param != "" {
			rec.Params = append(rec.Params, param)
		}
	}
	q := skipBlank(text, pclose+1)
	if q >= len(text) || text[q] != '{' {
		return rec, 0, &scanner.UnbalancedError{Open: '{', Line: scanner.LineAt(text, k), Fragment: scanner.Fragment(text, k)}
	}
	bclose, err := scanner.MatchClose(text, q)
	if err != nil {
		return rec, 0, err
	}
	rec.Body = text[q+1 : bclose]
	return rec, bclose, nil
}

// dedentBody splits a function body into lines with the common
// indentation removed.
func dedentBody(body string) []string {
	ls := strings.Split(body, "\n")
	for len(ls) > 0 && strings.TrimSpace(ls[0]) == "" {
		ls = ls[1:]
	}
	for len(ls) > 0 && strings.TrimSpace(ls[len(ls)-1]) == "" {
		ls = ls[:len(ls)-1]
	}
	common := -1
	for _, l := range ls {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if n := len(scanner.Indent(l)); common < 0 || n < common {
			common = n
		}
	}
	for i, l := range ls {
		if strings.TrimSpace(l) == "" {
			ls[i] = ""
			continue
		}
		ls[i] = strings.TrimSpace(l[:common]) + l[common:]
	}
	return ls
}

// renderDef formats a def block with its body indented under indent.
func renderDef(indent, name string, params []string, body string) string {
	var b strings.Builder
	b.WriteString(indent + "def " + name + "(" + pythonParams(params) + "):")
	empty := true
	for _, l := range strings.Split(body, "\n") {
		b.WriteString("\n")
		if strings.TrimSpace(l) == "" {
			continue
		}
		empty = false
		b.WriteString(indent + "    " + l)
	}
	if empty {
		return indent + "def " + name + "(" + pythonParams(params) + "):\n" + indent + "    pass"
	}
	return b.String()
}

// pythonParams gives every parameter a default so callers may pass fewer
// arguments, as the source dialect allows.
func pythonParams(params []string) string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		switch {
		case strings.HasPrefix(p, "..."):
			out = append(out, "*"+strings.TrimSpace(p[3:]))
		case strings.Contains(p, "="):
			name, def, _ := strings.Cut(p, "=")
			out = append(out, strings.TrimSpace(name)+"="+strings.TrimSpace(def))
		default:
			out = append(out, p+"=None")
		}
	}
	return strings.Join(out, ", ")
}

// statementStart returns the offset of the line on which the statement
// containing k begins.
func statementStart(text string, k int) int {
	mask := scanner.CodeMask(text[:k])
	start, depth := 0, 0
	for i := 0; i < k; i++ {
		if (i == 0 || text[i-1] == '\n') && depth == 0 {
			start = i
		}
		if !mask[i] {
			continue
		}
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		}
	}
	return start
}
