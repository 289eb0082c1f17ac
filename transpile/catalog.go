package transpile

import (
	"embed"
	"fmt"
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

//go:embed polyfills/*.py
var polyfillFS embed.FS

// polyfill returns the Python source of a bundled helper.
func polyfill(name string) string {
	b, err := polyfillFS.ReadFile("polyfills/" + name + ".py")
	if err != nil {
		panic(fmt.Sprintf("missing polyfill %q", name))
	}
	return string(b)
}

// EntryKind says how a built-in appears at a call site.
type EntryKind int

const (
	// Method is receiver.name(args).
	Method EntryKind = iota
	// Attribute is receiver.name, read without a call.
	Attribute
	// Static is Namespace.name(args).
	Static
	// Global is name(args) with no receiver.
	Global
)

// CatalogEntry is one built-in of the source dialect that Python lacks,
// with the polyfill that replaces it.
type CatalogEntry struct {
	Name   string // as written in the source, e.g. "charAt" or "Array.from"
	Kind   EntryKind
	Func   string // name of the polyfill function
	Active bool   // whether the current run rewrote a call site
	file   string
}

// Source returns the polyfill text.
func (e *CatalogEntry) Source() string { return polyfill(e.file) }

// builtins lists the catalog in the order call sites are rewritten.
var builtins = []struct {
	name string
	kind EntryKind
}{
	{"charCodeAt", Method},
	{"trim", Method},
	{"match", Method},
	{"slice", Method},
	{"substr", Method},
	{"search", Method},
	{"charAt", Method},
	{"concat", Method},
	{"length", Attribute},
	{"toString", Method},
	{"indexOf", Method},
	{"substring", Method},
	{"lastIndexOf", Method},
	{"toUpperCase", Method},
	{"localeCompare", Method},
	{"toLowerCase", Method},
	{"every", Method},
	{"filter", Method},
	{"forEach", Method},
	{"Array.from", Static},
	{"Array.isArray", Static},
	{"join", Method},
	{"map", Method},
	{"push", Method},
	{"reduce", Method},
	{"reduceRight", Method},
	{"shift", Method},
	{"some", Method},
	{"splice", Method},
	{"unshift", Method},
	{"valueOf", Method},
	{"parseInt", Global},
	{"parseFloat", Global},
	{"Number", Global},
	{"String", Global},
}

// Catalog rewrites built-in call sites into polyfill calls. Activation is
// per run: a fresh Catalog has no active entries.
type Catalog struct {
	entries []*CatalogEntry
}

// NewCatalog returns a catalog with every entry inactive.
func NewCatalog() *Catalog {
	c := &Catalog{}
	for _, b := range builtins {
		e := &CatalogEntry{Name: b.name, Kind: b.kind}
		switch b.kind {
		case Static:
			e.file = strings.ReplaceAll(b.name, ".", "_")
			e.Func = "__ee_extra_" + e.file
		case Global:
			e.file = b.name
			e.Func = "__ee_extrafunc_" + b.name
		default:
			e.file = b.name
			e.Func = "__ee_extra_" + b.name
		}
		c.entries = append(c.entries, e)
	}
	return c
}

// Entries returns the catalog in rewrite order.
func (c *Catalog) Entries() []*CatalogEntry { return c.entries }

// Active returns the names of the entries activated so far.
func (c *Catalog) Active() []string {
	var names []string
	for _, e := range c.entries {
		if e.Active {
			names = append(names, e.Name)
		}
	}
	return names
}

// Rewrite replaces every call site of every entry in src. It returns one
// fragment per activated entry, in catalog order, plus the shared helpers
// when anything was activated.
func (c *Catalog) Rewrite(src string) (string, []Fragment, error) {
	var frags []Fragment
	for _, e := range c.entries {
		out, n, err := e.rewrite(src)
		if err != nil {
			return "", nil, err
		}
		if n == 0 {
			continue
		}
		src = out
		e.Active = true
		frags = append(frags, Fragment{Name: e.Func, Text: e.Source()})
	}
	if len(frags) > 0 {
		frags = append(frags, Fragment{Name: "varname", Text: polyfill("varname")})
	}
	return src, frags, nil
}

func (e *CatalogEntry) rewrite(src string) (string, int, error) {
	switch e.Kind {
	case Static, Global:
		return e.rewriteFree(src)
	}
	token := "." + e.Name
	if e.Kind == Method {
		token += "("
	}
	n := 0
	for from := 0; ; {
		p := scanner.IndexCode(src, token, from)
		if p < 0 {
			return src, n, nil
		}
		nameEnd := p + 1 + len(e.Name)
		if e.Kind == Attribute && !readOnly(src, nameEnd) {
			from = nameEnd
			continue
		}
		start := receiverStart(src, scanner.CodeMask(src), p)
		if start == p {
			from = nameEnd
			continue
		}
		call := e.Func + "(" + src[start:p]
		end := nameEnd
		if e.Kind == Method {
			closing, err := scanner.MatchClose(src, nameEnd)
			if err != nil {
				return "", 0, asError(err, 1)
			}
			if args := strings.TrimSpace(src[nameEnd+1 : closing]); args != "" {
				call += ", " + args
			}
			end = closing + 1
		}
		src = src[:start] + call + ")" + src[end:]
		n++
		from = start
	}
}

// rewriteFree handles entries called without a receiver.
func (e *CatalogEntry) rewriteFree(src string) (string, int, error) {
	token := e.Name + "("
	n := 0
	for from := 0; ; {
		p := scanner.IndexCode(src, token, from)
		if p < 0 {
			return src, n, nil
		}
		if p > 0 && (scanner.IsIdentByte(src[p-1]) || src[p-1] == '.') {
			from = p + len(token)
			continue
		}
		src = src[:p] + e.Func + "(" + src[p+len(token):]
		n++
		from = p + len(e.Func) + 1
	}
}

// readOnly reports whether the attribute ending at i is read, not called,
// extended into a longer name or assigned to.
func readOnly(src string, i int) bool {
	if i < len(src) && scanner.IsIdentByte(src[i]) {
		return false
	}
	j := i
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	if j >= len(src) {
		return true
	}
	switch src[j] {
	case '(':
		return false
	case '=':
		return j+1 < len(src) && src[j+1] == '='
	}
	return true
}

// receiverStart scans back from the '.' at dot over the receiver
// expression: identifiers, member chains, calls, subscripts and a string
// literal.
func receiverStart(src string, mask []bool, dot int) int {
	i := dot
	for i > 0 {
		c := src[i-1]
		switch {
		case !mask[i-1]:
			if c != '"' && c != '\'' && c != '`' {
				return i
			}
			j := i - 1
			for j > 0 && !mask[j-1] {
				j--
			}
			return j
		case c == ')' || c == ']':
			o := scanner.MatchOpen(src, mask, i-1)
			if o < 0 {
				return i
			}
			i = o
		case scanner.IsIdentByte(c) || c == '.':
			i--
		default:
			return i
		}
	}
	return i
}
