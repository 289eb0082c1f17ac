package remote

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// requireSite is one `require('<id>')` call in a module.
type requireSite struct {
	ID         ModuleID
	Start, End uint32 // the call expression
	Stmt       uint32 // start of the enclosing statement
}

// span is a byte range of the source.
type span struct{ Start, End uint32 }

// jsModule is what the resolver needs to know about a module's source:
// its require() calls and every free reference to `exports`.
type jsModule struct {
	requires []requireSite
	exports  []span
}

// parseModule walks src with the JavaScript grammar. Calls whose argument
// is not a string literal are ignored: they cannot be resolved statically.
func parseModule(ctx context.Context, id ModuleID, src []byte) (*jsModule, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", id, err)
	}
	defer tree.Close()

	m := &jsModule{}
	stack := []*sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		switch n.Type() {
		case "identifier":
			if string(src[n.StartByte():n.EndByte()]) == "exports" {
				m.exports = append(m.exports, span{n.StartByte(), n.EndByte()})
			}
		case "call_expression":
			if arg, ok := requireArg(n, src); ok {
				dep, err := ParseModuleID(arg)
				if err != nil {
					return nil, fmt.Errorf("%s:%d: %w", id, n.StartPoint().Row+1, err)
				}
				m.requires = append(m.requires, requireSite{
					ID:    dep,
					Start: n.StartByte(),
					End:   n.EndByte(),
					Stmt:  statementOf(n).StartByte(),
				})
				continue
			}
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}
	return m, nil
}

// requireArg returns the string argument of a `require('x')` call.
func requireArg(call *sitter.Node, src []byte) (string, bool) {
	fn := call.ChildByFieldName("function")
	args := call.ChildByFieldName("arguments")
	if fn == nil || args == nil || fn.Type() != "identifier" || string(src[fn.StartByte():fn.EndByte()]) != "require" {
		return "", false
	}
	if args.NamedChildCount() != 1 {
		return "", false
	}
	s := args.NamedChild(0)
	if s.Type() != "string" {
		return "", false
	}
	return string(src[s.StartByte():s.EndByte()]), true
}

// statementOf climbs from n to the statement that directly belongs to the
// program or a block.
func statementOf(n *sitter.Node) *sitter.Node {
	for {
		p := n.Parent()
		if p == nil {
			return n
		}
		switch p.Type() {
		case "program", "statement_block", "switch_case", "switch_default":
			return n
		}
		n = p
	}
}

// ScanRequires lists the distinct modules src requires, in order of first
// appearance.
func ScanRequires(ctx context.Context, id ModuleID, src []byte) ([]ModuleID, error) {
	m, err := parseModule(ctx, id, src)
	if err != nil {
		return nil, err
	}
	seen := map[ModuleID]bool{}
	var out []ModuleID
	for _, r := range m.requires {
		if !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r.ID)
		}
	}
	return out, nil
}
