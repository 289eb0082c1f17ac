package transpile

import (
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// convertConditionals rewrites if/else and try/catch/finally headers.
// A switch statement has no translation and is rejected.
// A leading '}' on an else, catch or finally line is dropped along with
// the header's opening brace, so braces stay balanced for delete-braces.
func convertConditionals(src string) (string, error) {
	ls := strings.Split(src, "\n")
	for i := 0; i < len(ls); i++ {
		if isCommentLine(ls[i]) {
			continue
		}
		code := codePart(ls[i])
		indent := scanner.Indent(code)
		t := strings.TrimSpace(code)
		if startsWithWord(t, "switch") && strings.HasPrefix(strings.TrimSpace(t[len("switch"):]), "(") {
			return "", syntaxErr(ErrUnsupportedConstruct, i+1, t)
		}
		if strings.HasSuffix(t, ":") {
			continue
		}
		if strings.HasPrefix(t, "}") {
			rest := strings.TrimSpace(t[1:])
			if !startsWithWord(rest, "else") && !startsWithWord(rest, "catch") && !startsWithWord(rest, "finally") {
				continue
			}
			t = rest
		}

		var header, tail string
		switch {
		case startsWithWord(t, "if"):
			var cond string
			var err error
			ls, cond, tail, err = readCondition(ls, i, t, "if")
			if err != nil {
				return "", err
			}
			header = "if " + cond + ":"
		case startsWithWord(t, "else"):
			rest := strings.TrimSpace(t[len("else"):])
			if startsWithWord(rest, "if") {
				var cond string
				var err error
				ls, cond, tail, err = readCondition(ls, i, rest, "if")
				if err != nil {
					return "", err
				}
				header = "elif " + cond + ":"
			} else {
				header, tail = "else:", rest
			}
		case startsWithWord(t, "try"):
			header, tail = "try:", strings.TrimSpace(t[len("try"):])
		case startsWithWord(t, "catch"):
			rest := strings.TrimSpace(t[len("catch"):])
			header = "except Exception:"
			if strings.HasPrefix(rest, "(") {
				end, err := scanner.MatchClose(rest, 0)
				if err != nil {
					return "", asError(err, i+1)
				}
				if v := strings.TrimSpace(rest[1:end]); v != "" {
					header = "except Exception as " + v + ":"
				}
				rest = strings.TrimSpace(rest[end+1:])
			}
			tail = rest
		case startsWithWord(t, "finally"):
			header, tail = "finally:", strings.TrimSpace(t[len("finally"):])
		default:
			continue
		}

		repl := []string{indent + header}
		switch {
		case tail == "{":
		case tail == "":
			if i+1 < len(ls) {
				if next := strings.TrimSpace(ls[i+1]); next != "" && !isCommentLine(next) && !strings.HasPrefix(next, "{") {
					repl = append(repl, indent+"    "+next)
					ls = append(ls[:i+1], ls[i+2:]...)
				}
			}
		default:
			repl = append(repl, indent+"    "+tail)
		}
		ls = splice(ls, i, repl)
	}
	return strings.Join(ls, "\n"), nil
}

// readCondition parses `kw (cond) tail` from t, joining following lines of
// ls while the parentheses stay open.
func readCondition(ls []string, i int, t, kw string) ([]string, string, string, error) {
	for scanner.ParenBalance(t) > 0 && i+1 < len(ls) {
		t += " " + strings.TrimSpace(codePart(ls[i+1]))
		ls = append(ls[:i+1], ls[i+2:]...)
	}
	open := skipBlank(t, len(kw))
	if open >= len(t) || t[open] != '(' {
		return ls, "", "", syntaxErr(ErrUnbalancedDelimiter, i+1, t)
	}
	end, err := scanner.MatchClose(t, open)
	if err != nil {
		return ls, "", "", asError(err, i+1)
	}
	return ls, strings.TrimSpace(t[open+1 : end]), strings.TrimSpace(t[end+1:]), nil
}
