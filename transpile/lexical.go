package transpile

import (
	"regexp"
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// wrapTypeof rewrites `typeof x` into a call of the typeof helper.
func wrapTypeof(_ *Run, src string) (string, []Fragment, error) {
	if scanner.IndexWord(src, "typeof", 0) < 0 {
		return src, nil, nil
	}
	mask := scanner.CodeMask(src)
	var b strings.Builder
	for i := 0; i < len(src); {
		if !mask[i] || !strings.HasPrefix(src[i:], "typeof") || !wordAt(src, i, len("typeof")) {
			b.WriteByte(src[i])
			i++
			continue
		}
		j := i + len("typeof")
		for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
			j++
		}
		if j < len(src) && src[j] == '(' {
			b.WriteString("typeof")
			i = j
			continue
		}
		k := operandEnd(src, j)
		b.WriteString("typeof(" + src[j:k] + ")")
		i = k
	}
	return b.String(), []Fragment{{Name: "typeof", Text: polyfill("typeof")}}, nil
}

// operandEnd returns the end of the member/call chain starting at i.
func operandEnd(src string, i int) int {
	for i < len(src) {
		c := src[i]
		switch {
		case scanner.IsIdentByte(c) || c == '.':
			i++
		case c == '[' || c == '(':
			end, err := scanner.MatchClose(src, i)
			if err != nil {
				return i
			}
			i = end + 1
		default:
			return i
		}
	}
	return i
}

func wordAt(s string, pos, n int) bool {
	if pos > 0 && scanner.IsIdentByte(s[pos-1]) {
		return false
	}
	end := pos + n
	return end >= len(s) || !scanner.IsIdentByte(s[end])
}

var functionVariable = regexp.MustCompile(`^(\s*)(?:var|let|const)\s+([A-Za-z_$][\w$]*)\s*=\s*function\b\s*(?:[A-Za-z_$][\w$]*)?\s*\(`)

// normalizeFunctionDeclarations turns `var f = function (` into
// `function f(` so the function pass sees a named declaration.
func normalizeFunctionDeclarations(ls []string) []string {
	for i, l := range ls {
		ls[i] = functionVariable.ReplaceAllString(l, "${1}function ${2}(")
	}
	return ls
}

var (
	declaration = regexp.MustCompile(`^(\s*)(?:var|let|const)\s+(.*)$`)
	leadingName = regexp.MustCompile(`^[A-Za-z_$][\w$]*`)
)

// pythonReserved lists Python keywords (and literal names) that are legal
// identifiers in the source dialect.
var pythonReserved = map[string]bool{
	"and": true, "as": true, "assert": true, "async": true, "await": true,
	"def": true, "del": true, "elif": true, "except": true, "exec": true,
	"from": true, "global": true, "is": true, "lambda": true, "nonlocal": true,
	"not": true, "or": true, "pass": true, "raise": true,
	"None": true, "True": true, "False": true,
}

// stripDeclarations removes var/let/const at statement start and splits
// multi-binding declarations into one statement per binding.
func stripDeclarations(src string) (string, error) {
	ls := strings.Split(src, "\n")
	out := make([]string, 0, len(ls))
	for n, l := range ls {
		m := declaration.FindStringSubmatch(l)
		if m == nil {
			out = append(out, l)
			continue
		}
		indent, rest := m[1], strings.TrimRight(strings.TrimSpace(m[2]), ";")
		parts := scanner.SplitTopLevel(rest, ',')
		for _, p := range parts {
			p = strings.TrimSpace(p)
			name := leadingName.FindString(p)
			if pythonReserved[name] {
				return "", syntaxErr(ErrReservedIdentifier, n+1, strings.TrimSpace(l))
			}
			if len(parts) == 1 {
				out = append(out, indent+p)
				continue
			}
			if name == "" {
				// Destructuring and other shapes are kept as written.
				out = append(out, indent+rest)
				break
			}
			if strings.TrimSpace(p) == name {
				p = name + " = None"
			}
			out = append(out, indent+p)
		}
	}
	return strings.Join(out, "\n"), nil
}

// renameOperators maps source-dialect operators and literals onto Python.
func renameOperators(src string) string {
	src = scanner.ReplaceOutsideQuotes(src, "===", "==")
	src = scanner.ReplaceOutsideQuotes(src, "!==", "!=")
	src = scanner.ReplaceOutsideQuotes(src, "&&", " and ")
	src = scanner.ReplaceOutsideQuotes(src, "||", " or ")
	src = replaceNot(src)
	src = scanner.ReplaceOutsideQuotes(src, ".and(", ".And(")
	src = scanner.ReplaceOutsideQuotes(src, ".or(", ".Or(")
	src = scanner.ReplaceOutsideQuotes(src, ".not(", ".Not(")
	src = scanner.ReplaceWordOutsideQuotes(src, "new", "")
	for js, py := range map[string]string{"true": "True", "false": "False", "null": "None", "undefined": "None"} {
		src = scanner.ReplaceWordOutsideQuotes(src, js, py)
	}
	ls := strings.Split(src, "\n")
	for i, l := range ls {
		ls[i] = squeezeSpaces(l)
	}
	return strings.Join(ls, "\n")
}

// replaceNot turns the unary '!' into `not `, leaving '!=' alone.
func replaceNot(src string) string {
	if !strings.Contains(src, "!") {
		return src
	}
	var b strings.Builder
	sc := scanner.New(src)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if ch == '!' && sc.InCode() {
			if next, _ := sc.Peek(); next != '=' {
				b.WriteString("not ")
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// squeezeSpaces collapses runs of spaces in code, keeping indentation.
func squeezeSpaces(line string) string {
	indent := scanner.Indent(line)
	body := line[len(indent):]
	if !strings.Contains(body, "  ") && !strings.Contains(body, "( ") {
		return line
	}
	var b strings.Builder
	b.WriteString(indent)
	var prev byte
	sc := scanner.New(body)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if sc.InCode() && ch == ' ' && (prev == ' ' || prev == '(' || prev == '[') {
			continue
		}
		b.WriteByte(ch)
		prev = ch
	}
	return strings.TrimRight(b.String(), " ")
}

// convertComments prefixes every comment line with '#'.
func convertComments(src string) string {
	comments := scanner.Comments(src)
	if len(comments) == 0 {
		return src
	}
	var b strings.Builder
	last := 0
	for _, c := range comments {
		text := c.Text(src)
		if strings.HasPrefix(text, "#") {
			continue
		}
		b.WriteString(src[last:c.Start])
		last = c.End
		if !c.Block {
			b.WriteString("#" + strings.TrimPrefix(text, "//"))
			continue
		}
		lineStart := strings.LastIndexByte(src[:c.Start], '\n') + 1
		indent := scanner.Indent(src[lineStart:c.Start])
		inner := strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/")
		var rows []string
		for _, row := range strings.Split(inner, "\n") {
			row = strings.TrimSpace(row)
			row = strings.TrimSpace(strings.TrimPrefix(row, "*"))
			rows = append(rows, row)
		}
		for len(rows) > 1 && rows[0] == "" {
			rows = rows[1:]
		}
		for len(rows) > 1 && rows[len(rows)-1] == "" {
			rows = rows[:len(rows)-1]
		}
		for i, row := range rows {
			if i > 0 {
				b.WriteString("\n" + indent)
			}
			if row == "" {
				b.WriteString("#")
			} else {
				b.WriteString("# " + row)
			}
		}
	}
	b.WriteString(src[last:])
	return b.String()
}

var (
	prefixStep    = regexp.MustCompile(`^(\+\+|--)([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*|\[[^\]]*\])*)$`)
	postfixStep   = regexp.MustCompile(`^([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*|\[[^\]]*\])*)(\+\+|--)$`)
	compoundStep  = regexp.MustCompile(`^([A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*|\[[^\]]*\])*)\s*([-+*/%])=\s*([^=].*)$`)
	simpleOperand = regexp.MustCompile(`^(?:[A-Za-z_$][\w$.]*|\d+(?:\.\d+)?|'[^']*'|"[^"]*")$`)
)

// rewriteIncrements turns standalone ++, -- and compound assignments into
// explicit rebinding statements.
func rewriteIncrements(ls []string) []string {
	for i, l := range ls {
		if isCommentLine(l) {
			continue
		}
		code := codePart(l)
		indent := scanner.Indent(code)
		t := strings.TrimRight(strings.TrimSpace(code), ";")
		t = strings.TrimSpace(t)
		var target, op, operand string
		if m := prefixStep.FindStringSubmatch(t); m != nil {
			target, op, operand = m[2], m[1][:1], "1"
		} else if m := postfixStep.FindStringSubmatch(t); m != nil {
			target, op, operand = m[1], m[2][:1], "1"
		} else if m := compoundStep.FindStringSubmatch(t); m != nil {
			target, op, operand = m[1], m[2], strings.TrimSpace(m[3])
			if !simpleOperand.MatchString(operand) {
				operand = "(" + operand + ")"
			}
		} else {
			continue
		}
		ls[i] = indent + target + " = " + target + " " + op + " " + operand + l[len(code):]
	}
	return ls
}
