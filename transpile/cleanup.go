package transpile

import (
	"regexp"
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// stripDocumentation removes /** ... */ documentation blocks and trailing
// line comments. Whole-line comments and plain block comments are kept for
// the comment conversion stage.
func stripDocumentation(src string) string {
	comments := scanner.Comments(src)
	if len(comments) == 0 {
		return src
	}
	var b strings.Builder
	last := 0
	for _, c := range comments {
		text := c.Text(src)
		lineStart := strings.LastIndexByte(src[:c.Start], '\n') + 1
		trailing := strings.TrimSpace(src[lineStart:c.Start]) != ""
		doc := c.Block && strings.HasPrefix(text, "/**")
		if !doc && (c.Block || !trailing) {
			continue
		}
		end := c.Start
		if trailing {
			end = lineStart + len(strings.TrimRight(src[lineStart:c.Start], " \t"))
		}
		b.WriteString(src[last:end])
		last = c.End
	}
	b.WriteString(src[last:])
	return b.String()
}

var bareDeclaration = regexp.MustCompile(`^\s*(?:var|let)\s+[A-Za-z_$][\w$]*(?:\s*,\s*[A-Za-z_$][\w$]*)*\s*;?\s*$`)

// stripBareDeclarations drops `var x;` statements, which have no Python
// equivalent.
func stripBareDeclarations(src string) string {
	ls := strings.Split(src, "\n")
	out := ls[:0]
	for _, l := range ls {
		if bareDeclaration.MatchString(l) {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// codePart returns line without a trailing comment, right-trimmed.
func codePart(line string) string {
	if !strings.ContainsAny(line, "#/") {
		return strings.TrimRight(line, " \t")
	}
	if cs := scanner.Comments(line); len(cs) > 0 {
		return strings.TrimRight(line[:cs[0].Start], " \t")
	}
	return strings.TrimRight(line, " \t")
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "#")
}

// joinStatements merges a line ending in a binary operator or an
// assignment with the line after it, and a line starting with '.' with
// the line before it. Comment lines inside a continued statement are moved
// above the merged statement.
func joinStatements(ls []string) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		t := strings.TrimSpace(l)
		if t == "" || isCommentLine(l) {
			out = append(out, l)
			continue
		}
		k := len(out) - 1
		for k >= 0 && isCommentLine(out[k]) {
			k--
		}
		if k < 0 {
			out = append(out, l)
			continue
		}
		prev := out[k]
		code := codePart(prev)
		if !continuesLine(code) && !continuesPrevious(t) {
			out = append(out, l)
			continue
		}
		merged := strings.TrimRight(code, " ") + joinSeparator(t) + t
		if trailing := strings.TrimSpace(prev[len(code):]); trailing != "" {
			merged += "  " + trailing
		}
		comments := append([]string(nil), out[k+1:]...)
		out = append(append(out[:k], comments...), merged)
	}
	return out
}

func joinSeparator(t string) string {
	if strings.HasPrefix(t, ".") {
		return ""
	}
	return " "
}

func continuesLine(code string) bool {
	t := strings.TrimSpace(code)
	if t == "" {
		return false
	}
	switch t[len(t)-1] {
	case '+', '=', '?':
		return true
	}
	return endsWithWord(t, "and") || endsWithWord(t, "or")
}

func continuesPrevious(t string) bool {
	if strings.HasPrefix(t, "...") {
		return false
	}
	return strings.HasPrefix(t, ".") || strings.HasPrefix(t, "+ ") || strings.HasPrefix(t, "? ") ||
		startsWithWord(t, "and") || startsWithWord(t, "or")
}

// deleteBraces removes block braces left behind by the structural passes,
// strips statement semicolons and fills empty suites with pass.
func deleteBraces(src string) string {
	ls := strings.Split(src, "\n")
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		switch strings.TrimSpace(codePart(l)) {
		case "}", "};", "}}":
			continue
		}
		out = append(out, l)
	}
	text := dropUnmatchedClosers(strings.Join(out, "\n"))

	ls = strings.Split(text, "\n")
	out = out[:0]
	for _, l := range ls {
		l = stripSemicolon(l)
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(fillEmptySuites(out), "\n")
}

// dropUnmatchedClosers removes '}' characters in code that close nothing.
func dropUnmatchedClosers(src string) string {
	var b strings.Builder
	open := 0
	sc := scanner.New(src)
	for ch, ok := sc.Next(); ok; ch, ok = sc.Next() {
		if sc.InCode() {
			switch ch {
			case '{':
				open++
			case '}':
				if open == 0 {
					continue
				}
				open--
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func stripSemicolon(l string) string {
	code := codePart(l)
	trimmed := strings.TrimRight(code, "; \t")
	if trimmed == code {
		return strings.TrimRight(l, " \t")
	}
	return trimmed + l[len(code):]
}

// fillEmptySuites adds pass under a block header that has no body.
func fillEmptySuites(ls []string) []string {
	out := make([]string, 0, len(ls))
	for i, l := range ls {
		out = append(out, l)
		code := codePart(l)
		if isCommentLine(l) || !strings.HasSuffix(code, ":") || !isBlockHeader(code) {
			continue
		}
		indent := scanner.Indent(l)
		next := ""
		for _, n := range ls[i+1:] {
			if strings.TrimSpace(n) != "" && !isCommentLine(n) {
				next = n
				break
			}
		}
		if next == "" || len(scanner.Indent(next)) <= len(indent) {
			out = append(out, indent+"    pass")
		}
	}
	return out
}

var blockHeader = regexp.MustCompile(`^\s*(def|for|while|if|elif|else|try|except|finally|class|with)\b`)

func isBlockHeader(code string) bool { return blockHeader.MatchString(code) }
