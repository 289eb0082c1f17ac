package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// nsPrefix names the namespace object a spliced dependency exports into.
const nsPrefix = "eeExtraExports"

// splicer flattens a module and its dependencies into one script. Each
// dependency is inlined once, where it is first required; later requires
// of the same module, and requires that close a cycle, refer to the
// namespace that is already declared.
type splicer struct {
	ctx  context.Context
	read func(ModuleID) ([]byte, error)

	next int
	ns   map[ModuleID]string
}

func newSplicer(ctx context.Context, read func(ModuleID) ([]byte, error)) *splicer {
	return &splicer{ctx: ctx, read: read, ns: map[ModuleID]string{}}
}

// edit replaces src[start:end] with text.
type edit struct {
	start, end uint32
	text       string
}

// expand returns the source of id with every require() resolved. ns is
// the name its exports object takes; the root keeps "exports".
func (s *splicer) expand(id, parent ModuleID, ns string) (string, error) {
	src, err := s.read(id)
	if err != nil {
		var ue *UnknownModuleError
		if errors.As(err, &ue) && ue.RequiredBy == "" && parent != "" {
			ue.RequiredBy = parent
		}
		return "", err
	}
	m, err := parseModule(s.ctx, id, src)
	if err != nil {
		return "", err
	}
	s.ns[id] = ns

	var edits []edit
	if ns != "exports" {
		for _, e := range m.exports {
			edits = append(edits, edit{e.Start, e.End, ns})
		}
	}
	for _, r := range m.requires {
		name, done := s.ns[r.ID]
		if !done {
			name = fmt.Sprintf("%s%d", nsPrefix, s.next)
			s.next++
			body, err := s.expand(r.ID, id, name)
			if err != nil {
				return "", err
			}
			prelude := "var " + name + " = {};\n" + strings.TrimRight(body, "\n") + "\n"
			edits = append(edits, edit{r.Stmt, r.Stmt, prelude})
		}
		edits = append(edits, edit{r.Start, r.End, name})
	}
	return applyEdits(string(src), edits), nil
}

// applyEdits applies non-overlapping edits. Insertions at the same offset
// keep the order they were recorded in.
func applyEdits(src string, edits []edit) string {
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].start < edits[j].start })
	var b strings.Builder
	last := uint32(0)
	for _, e := range edits {
		b.WriteString(src[last:e.start])
		b.WriteString(e.text)
		last = e.end
	}
	b.WriteString(src[last:])
	return b.String()
}
