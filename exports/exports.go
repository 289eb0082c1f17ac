// Package exports reads the exported names of a translated module without
// running it. The generated Python is parsed with tree-sitter and every
// top-level write to the exports object is recorded, together with the
// value when it is a literal or a function defined in the same script.
package exports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrNoExport is returned by Attr for a name the module never exported.
var ErrNoExport = errors.New("no such export")

// Kind classifies an exported value.
type Kind int

const (
	// Expression is a value only known at run time, kept as source text.
	Expression Kind = iota
	// Literal is a constant whose Go value is in Binding.Value.
	Literal
	// Function is a def or lambda; Value holds the Python function name.
	Function
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Function:
		return "function"
	}
	return "expression"
}

// Binding is one exported name.
type Binding struct {
	Name string
	Kind Kind
	// Value is an int64, float64, string, bool, nil, []any or map[string]any
	// for literals and the function name for functions.
	Value  any
	Source string // Python source of the value, or of the def for functions
	Line   int    // 1-based line of the export statement
}

// Exports is the static view of a module's exports object.
type Exports struct {
	Module string
	Script string

	bindings map[string]Binding
	order    []string
}

// Get looks a name up the way a key lookup on the exports mapping would.
func (e *Exports) Get(name string) (Binding, bool) {
	b, ok := e.bindings[name]
	return b, ok
}

// Attr is attribute-style access; a missing name is an error.
func (e *Exports) Attr(name string) (Binding, error) {
	b, ok := e.bindings[name]
	if !ok {
		return Binding{}, fmt.Errorf("module %s has no attribute %q: %w", e.Module, name, ErrNoExport)
	}
	return b, nil
}

// Names returns the exported names in the order they were first assigned.
func (e *Exports) Names() []string {
	return append([]string(nil), e.order...)
}

// Sorted returns the exported names in lexical order.
func (e *Exports) Sorted() []string {
	names := e.Names()
	sort.Strings(names)
	return names
}

// Len returns the number of exported names.
func (e *Exports) Len() int { return len(e.order) }

// Extract parses script and collects its exports.
func Extract(ctx context.Context, module, script string) (*Exports, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	src := []byte(script)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", module, err)
	}
	defer tree.Close()

	x := &extractor{
		src:    src,
		out:    &Exports{Module: module, Script: script, bindings: map[string]Binding{}},
		defs:   map[string]*sitter.Node{},
		values: map[string]*sitter.Node{},
	}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if err := x.statement(root.NamedChild(i)); err != nil {
			return nil, err
		}
	}
	return x.out, nil
}

type extractor struct {
	src  []byte
	out  *Exports
	defs map[string]*sitter.Node
	// values holds the right-hand side of the latest top-level assignment
	// to each plain name.
	values map[string]*sitter.Node
}

func (x *extractor) text(n *sitter.Node) string {
	return string(x.src[n.StartByte():n.EndByte()])
}

func (x *extractor) statement(n *sitter.Node) error {
	switch n.Type() {
	case "function_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			x.defs[x.text(name)] = n
			delete(x.values, x.text(name))
		}
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil {
			return x.statement(def)
		}
	case "expression_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "assignment" {
				if err := x.assignment(c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// assignment handles `target = value`, including chains like `a = b = v`
// where every target receives the innermost value.
func (x *extractor) assignment(n *sitter.Node) error {
	var targets []*sitter.Node
	value := n
	for value != nil && value.Type() == "assignment" {
		left := value.ChildByFieldName("left")
		if left == nil {
			return nil
		}
		targets = append(targets, left)
		value = value.ChildByFieldName("right")
	}
	if value == nil {
		return nil
	}
	for _, t := range targets {
		if err := x.bind(t, value); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) bind(target, value *sitter.Node) error {
	switch target.Type() {
	case "identifier":
		name := x.text(target)
		if name == "exports" {
			return nil
		}
		x.values[name] = value
		delete(x.defs, name)
		return nil
	case "attribute":
		obj := target.ChildByFieldName("object")
		attr := target.ChildByFieldName("attribute")
		if obj == nil || attr == nil || x.text(obj) != "exports" {
			return nil
		}
		return x.export(x.text(attr), target, value)
	case "subscript":
		obj := target.ChildByFieldName("value")
		key := target.ChildByFieldName("subscript")
		if obj == nil || key == nil || x.text(obj) != "exports" {
			return nil
		}
		name, ok := x.literal(key)
		s, isString := name.(string)
		if !ok || !isString {
			return nil
		}
		return x.export(s, target, value)
	}
	return nil
}

func (x *extractor) export(name string, at, value *sitter.Node) error {
	line, err := safecast.Conv[int](at.StartPoint().Row)
	if err != nil {
		return fmt.Errorf("%s: export %q: %w", x.out.Module, name, err)
	}
	b := x.resolve(value)
	b.Name = name
	b.Line = line + 1
	if _, seen := x.out.bindings[name]; !seen {
		x.out.order = append(x.out.order, name)
	}
	x.out.bindings[name] = b
	return nil
}

// resolve classifies an exported value, following one level of plain
// names to a top-level def or literal.
func (x *extractor) resolve(value *sitter.Node) Binding {
	switch value.Type() {
	case "identifier":
		name := x.text(value)
		if def, ok := x.defs[name]; ok {
			return Binding{Kind: Function, Value: name, Source: x.text(def)}
		}
		if bound, ok := x.values[name]; ok {
			if v, ok := x.literal(bound); ok {
				return Binding{Kind: Literal, Value: v, Source: x.text(bound)}
			}
		}
	case "lambda":
		return Binding{Kind: Function, Value: "<lambda>", Source: x.text(value)}
	}
	if v, ok := x.literal(value); ok {
		return Binding{Kind: Literal, Value: v, Source: x.text(value)}
	}
	return Binding{Kind: Expression, Source: x.text(value)}
}

// literal evaluates constant expressions. Containers are literals only
// when every element is.
func (x *extractor) literal(n *sitter.Node) (any, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Type() {
	case "integer":
		v, err := strconv.ParseInt(strings.TrimRight(x.text(n), "lL"), 0, 64)
		return v, err == nil
	case "float":
		v, err := strconv.ParseFloat(strings.ReplaceAll(x.text(n), "_", ""), 64)
		return v, err == nil
	case "string":
		return unquote(x.text(n))
	case "true":
		return true, true
	case "false":
		return false, true
	case "none":
		return nil, true
	case "parenthesized_expression":
		if n.NamedChildCount() == 1 {
			return x.literal(n.NamedChild(0))
		}
	case "unary_operator":
		arg := n.ChildByFieldName("argument")
		op := n.ChildByFieldName("operator")
		if arg == nil || op == nil {
			return nil, false
		}
		v, ok := x.literal(arg)
		if !ok {
			return nil, false
		}
		neg := x.text(op) == "-"
		switch v := v.(type) {
		case int64:
			if neg {
				return -v, true
			}
			return v, true
		case float64:
			if neg {
				return -v, true
			}
			return v, true
		}
	case "list", "tuple":
		items := []any{}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "comment" {
				continue
			}
			v, ok := x.literal(c)
			if !ok {
				return nil, false
			}
			items = append(items, v)
		}
		return items, true
	case "dictionary":
		m := map[string]any{}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			pair := n.NamedChild(i)
			if pair.Type() == "comment" {
				continue
			}
			if pair.Type() != "pair" {
				return nil, false
			}
			k, ok := x.literal(pair.ChildByFieldName("key"))
			key, isString := k.(string)
			if !ok || !isString {
				return nil, false
			}
			v, ok := x.literal(pair.ChildByFieldName("value"))
			if !ok {
				return nil, false
			}
			m[key] = v
		}
		return m, true
	}
	return nil, false
}

// unquote decodes a Python string literal. Formatted and byte strings are
// not constants here.
func unquote(lit string) (any, bool) {
	i := 0
	raw := false
	for i < len(lit) && lit[i] != '\'' && lit[i] != '"' {
		switch lit[i] {
		case 'r', 'R':
			raw = true
		case 'u', 'U':
		default:
			return nil, false
		}
		i++
	}
	body := lit[i:]
	q := ""
	switch {
	case strings.HasPrefix(body, `"""`), strings.HasPrefix(body, "'''"):
		q = body[:3]
	case len(body) >= 2:
		q = body[:1]
	default:
		return nil, false
	}
	if len(body) < 2*len(q) || !strings.HasSuffix(body, q) {
		return nil, false
	}
	body = body[len(q) : len(body)-len(q)]
	if raw || !strings.Contains(body, `\`) {
		return body, true
	}
	var b strings.Builder
	for j := 0; j < len(body); j++ {
		c := body[j]
		if c != '\\' || j+1 == len(body) {
			b.WriteByte(c)
			continue
		}
		j++
		switch body[j] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '\\', '\'', '"':
			b.WriteByte(body[j])
		case '\n':
		default:
			return nil, false
		}
	}
	return b.String(), true
}
