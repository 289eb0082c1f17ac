package transpile

import (
	"regexp"
	"sort"
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// quoteDictKeys quotes bare identifier keys of object literals.
func quoteDictKeys(src string) string {
	if !strings.Contains(src, "{") {
		return src
	}
	mask := scanner.CodeMask(src)
	var b strings.Builder
	var stack []byte
	expectKey := false
	for i := 0; i < len(src); {
		c := src[i]
		if !mask[i] {
			expectKey = false
			b.WriteByte(c)
			i++
			continue
		}
		if expectKey && isIdentStart(c) {
			j := i
			for j < len(src) && scanner.IsIdentByte(src[j]) {
				j++
			}
			k := j
			for k < len(src) && (src[k] == ' ' || src[k] == '\t') {
				k++
			}
			expectKey = false
			if k < len(src) && src[k] == ':' {
				b.WriteString("'" + src[i:j] + "'")
				i = j
				continue
			}
		}
		b.WriteByte(c)
		i++
		switch c {
		case '{':
			stack = append(stack, c)
			expectKey = true
		case '(', '[':
			stack = append(stack, c)
			expectKey = false
		case ')', ']', '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			expectKey = false
		case ',':
			expectKey = len(stack) > 0 && stack[len(stack)-1] == '{'
		case ' ', '\t', '\n':
		default:
			expectKey = false
		}
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

var (
	mappingBinding = regexp.MustCompile(`(?m)^\s*([A-Za-z_][\w]*)\s*=\s*\{`)
	exportSpace    = regexp.MustCompile(`^(?:exports|eeExtraExports\d+)$`)
)

// mathNames maps members of the source dialect's Math object onto Python.
var mathNames = map[string]string{
	"PI":    "math.pi",
	"E":     "math.e",
	"round": "round",
	"abs":   "abs",
	"max":   "max",
	"min":   "min",
}

// rewriteMemberAccess turns attribute reads on plain mappings into
// subscripts and maps Math members onto the math module.
func rewriteMemberAccess(src string) string {
	src = rewriteMath(src)
	var names []string
	seen := map[string]bool{}
	for _, m := range mappingBinding.FindAllStringSubmatch(src, -1) {
		if exportSpace.MatchString(m[1]) || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	sort.Strings(names)
	for _, name := range names {
		src = subscriptMembers(src, name)
	}
	return src
}

func rewriteMath(src string) string {
	if !strings.Contains(src, "Math.") {
		return src
	}
	mask := scanner.CodeMask(src)
	var b strings.Builder
	for i := 0; i < len(src); {
		if mask[i] && strings.HasPrefix(src[i:], "Math.") && (i == 0 || !scanner.IsIdentByte(src[i-1]) && src[i-1] != '.') {
			j := i + len("Math.")
			k := j
			for k < len(src) && scanner.IsIdentByte(src[k]) {
				k++
			}
			member := src[j:k]
			if py, ok := mathNames[member]; ok {
				b.WriteString(py)
			} else {
				b.WriteString("math." + strings.ToLower(member))
			}
			i = k
			continue
		}
		b.WriteByte(src[i])
		i++
	}
	return b.String()
}

// subscriptMembers rewrites name.a.b into name['a']['b'] wherever the chain
// is read rather than called.
func subscriptMembers(src, name string) string {
	from := 0
	for {
		p := scanner.IndexWord(src, name, from)
		if p < 0 {
			return src
		}
		from = p + len(name)
		if p > 0 && src[p-1] == '.' {
			continue
		}
		i := p + len(name)
		for i < len(src) && src[i] == '.' {
			j := i + 1
			for j < len(src) && scanner.IsIdentByte(src[j]) {
				j++
			}
			if j == i+1 || calledAt(src, j) {
				break
			}
			sub := "['" + src[i+1:j] + "']"
			src = src[:i] + sub + src[j:]
			i += len(sub)
		}
		from = i
	}
}

func calledAt(src string, i int) bool {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return i < len(src) && src[i] == '('
}

// keepLiteral names callees whose object argument stays a positional dict.
var keepLiteral = map[string]bool{
	"getThumbURL":    true,
	"getDownloadURL": true,
	"getThumbId":     true,
	"Dictionary":     true,
	"print":          true,
}

// rewriteKeywordArguments expands an object literal passed as the only
// argument of a call into keyword arguments.
func rewriteKeywordArguments(src string) (string, error) {
	if !strings.Contains(src, "({") && !strings.Contains(src, "( {") {
		return src, nil
	}
	mask := scanner.CodeMask(src)
	var at []int
	for i := 0; i < len(src); i++ {
		if !mask[i] || src[i] != '(' {
			continue
		}
		j := skipBlank(src, i+1)
		if j >= len(src) || src[j] != '{' {
			continue
		}
		end, err := scanner.MatchClose(src, j)
		if err != nil {
			return "", asError(err, 1)
		}
		k := skipBlank(src, end+1)
		if k >= len(src) || src[k] != ')' {
			continue
		}
		callee := identBefore(src, i)
		if callee == "" || keepLiteral[callee] || blockHeader.MatchString(callee) {
			continue
		}
		at = append(at, j)
	}
	if len(at) == 0 {
		return src, nil
	}
	var b strings.Builder
	last := 0
	for _, j := range at {
		b.WriteString(src[last:j])
		b.WriteString("**")
		last = j
	}
	b.WriteString(src[last:])
	return b.String(), nil
}

func skipBlank(src string, i int) int {
	for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n') {
		i++
	}
	return i
}

// identBefore returns the identifier that ends right before pos.
func identBefore(src string, pos int) string {
	i := pos
	for i > 0 && scanner.IsIdentByte(src[i-1]) {
		i--
	}
	return src[i:pos]
}

// rewriteTernaries turns c ? a : b into (a if c else b), innermost last.
func rewriteTernaries(src string) (string, error) {
	if !strings.Contains(src, "?") {
		return src, nil
	}
	ls := strings.Split(src, "\n")
	for n, l := range ls {
		if isCommentLine(l) {
			continue
		}
		for {
			next, ok := rewriteTernary(l)
			if !ok {
				break
			}
			l = next
		}
		if q := scanner.IndexCode(l, "?", 0); q >= 0 {
			return "", syntaxErr(ErrUnbalancedDelimiter, n+1, scanner.Fragment(l, q))
		}
		ls[n] = l
	}
	return strings.Join(ls, "\n"), nil
}

// rewriteTernary rewrites the first conditional expression on line.
func rewriteTernary(line string) (string, bool) {
	code := codePart(line)
	mask := scanner.CodeMask(code)
	q := -1
	for i := 0; i < len(code); i++ {
		if mask[i] && code[i] == '?' {
			q = i
			break
		}
	}
	if q < 0 {
		return line, false
	}
	lo := len(scanner.Indent(code))

	start := lo
	depth := 0
back:
	for i := q - 1; i >= lo; i-- {
		if !mask[i] {
			continue
		}
		switch c := code[i]; {
		case scanner.IsCloseBracket(c):
			depth++
		case scanner.IsOpenBracket(c):
			if depth == 0 {
				start = i + 1
				break back
			}
			depth--
		case depth > 0:
		case c == ',' || c == ':' || (c == '=' && isAssignAt(code, i)):
			start = i + 1
			break back
		case wordEndsAt(code, i, "return") || wordEndsAt(code, i, "else") || wordEndsAt(code, i, "if"):
			start = i + 1
			break back
		}
	}

	colon := -1
	depth, nested := 0, 0
	for i := q + 1; i < len(code) && colon < 0; i++ {
		if !mask[i] {
			continue
		}
		switch c := code[i]; {
		case scanner.IsOpenBracket(c):
			depth++
		case scanner.IsCloseBracket(c):
			depth--
			if depth < 0 {
				return line, false
			}
		case depth > 0:
		case c == '?':
			nested++
		case c == ':':
			if nested == 0 {
				colon = i
			}
			nested--
		}
	}
	if colon < 0 {
		return line, false
	}

	end := len(code)
	depth = 0
fwd:
	for i := colon + 1; i < len(code); i++ {
		if !mask[i] {
			continue
		}
		switch c := code[i]; {
		case scanner.IsOpenBracket(c):
			depth++
		case scanner.IsCloseBracket(c):
			if depth == 0 {
				end = i
				break fwd
			}
			depth--
		case depth > 0:
		case c == ',' || c == ';':
			end = i
			break fwd
		case isIdentStart(c) && (startsWithWord(code[i:], "if") || startsWithWord(code[i:], "else")) && !scanner.IsIdentByte(code[i-1]):
			end = i
			break fwd
		}
	}

	cond := strings.TrimSpace(code[start:q])
	yes := strings.TrimSpace(code[q+1 : colon])
	no := strings.TrimSpace(code[colon+1 : end])
	lead := code[:start]
	if lead != "" && !strings.HasSuffix(lead, " ") && !strings.HasSuffix(lead, "(") && !strings.HasSuffix(lead, "[") && !strings.HasSuffix(lead, "{") {
		lead += " "
	}
	tail := code[end:]
	if tail != "" && !strings.HasPrefix(tail, " ") && !scanner.IsCloseBracket(tail[0]) && tail[0] != ',' && tail[0] != ';' {
		tail = " " + tail
	}
	return lead + "(" + yes + " if " + cond + " else " + no + ")" + tail + line[len(code):], true
}

func isAssignAt(s string, i int) bool {
	if i > 0 && strings.IndexByte("=!<>+-*/%", s[i-1]) >= 0 {
		return false
	}
	return i+1 >= len(s) || s[i+1] != '='
}

// wordEndsAt reports whether word ends at s[i] as a whole identifier.
func wordEndsAt(s string, i int, word string) bool {
	start := i - len(word) + 1
	if start < 0 || s[start:i+1] != word {
		return false
	}
	if start > 0 && scanner.IsIdentByte(s[start-1]) {
		return false
	}
	return i+1 >= len(s) || !scanner.IsIdentByte(s[i+1])
}
