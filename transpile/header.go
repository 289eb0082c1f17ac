package transpile

import (
	"regexp"
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// baseImports open every generated module.
var baseImports = []string{"import ee", "import inspect", "import math", "import re"}

var emptyNamespace = regexp.MustCompile(`(?m)^(\s*)(eeExtraExports\d+)\s*=\s*\{\s*\}\s*$`)

// exportsNamespace makes the root exports object and the namespaces of
// spliced dependencies AttrDict instances, so both attribute writes and
// subscripts work on them.
func exportsNamespace(_ *Run, src string) (string, []Fragment, error) {
	if scanner.IndexWord(src, "exports", 0) < 0 && !strings.Contains(src, "eeExtraExports") {
		return src, nil, nil
	}
	src = emptyNamespace.ReplaceAllString(src, "${1}${2} = AttrDict()")
	return src, []Fragment{{Name: "exports", Text: polyfill("attrdict")}}, nil
}

// assembleHeader prepends the imports and every collected fragment, most
// recently activated first.
func assembleHeader(r *Run, src string) (string, []Fragment, error) {
	var b strings.Builder
	b.WriteString(strings.Join(baseImports, "\n"))
	b.WriteString("\n\n")
	for i := len(r.headers) - 1; i >= 0; i-- {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(r.headers[i].Text, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimRight(src, "\n"))
	b.WriteString("\n")
	return b.String(), nil, nil
}
