// Package block groups tagged lines into nested structural blocks.
//
// A tagger marks each line as inside or outside the construct of interest
// (functions, loops). Contiguous inside lines collapse into one Group;
// grouping is lossless, so Flatten(Split(lines)) always returns lines.
package block

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eejs2py/eejs2py/scanner"
)

// Group is either a single line (leaf) or an ordered list of Groups.
type Group struct {
	Line     string
	Children []Group
}

// IsLeaf reports whether g is a single line.
func (g Group) IsLeaf() bool { return g.Children == nil }

// Lines returns the flattened lines of g.
func (g Group) Lines() []string {
	if g.IsLeaf() {
		return []string{g.Line}
	}
	return Flatten(g.Children)
}

// Text joins the flattened lines of g with newlines.
func (g Group) Text() string { return strings.Join(g.Lines(), "\n") }

// DepthError reports a construct whose closing braces outnumber its
// opening ones. The construct's lines are kept as plain leaves.
type DepthError struct {
	Line int // 1-based line where the construct starts
	Text string
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("line %d: unmatched closing brace in %q", e.Line, e.Text)
}

// Split groups maximal runs of inside lines. A run ends when the running
// depth returns to zero, so two adjacent blocks stay separate. A run whose
// depth would drop below zero is not grouped; its lines are returned as
// leaves and a *DepthError is reported for it, while the rest of the input
// is still grouped.
func Split(lines []string, fn scanner.Tagger) ([]Group, error) {
	underflow := make(map[int]bool)
	row := 0
	tags := scanner.TagLines(lines, func(line string, depth int) (bool, int) {
		inside, next := fn(line, depth)
		if next < 0 {
			underflow[row] = true
			next = 0
		}
		row++
		return inside, next
	})

	var (
		out  []Group
		run  []Group
		errs []error
	)
	flush := func() {
		if run != nil {
			out = append(out, Group{Children: run})
			run = nil
		}
	}
	for i, line := range lines {
		if underflow[i] {
			start := i - len(run)
			errs = append(errs, &DepthError{Line: start + 1, Text: strings.TrimSpace(lines[start])})
			out = append(out, run...)
			run = nil
			out = append(out, Group{Line: line})
			continue
		}
		if !tags[i].Inside {
			flush()
			out = append(out, Group{Line: line})
			continue
		}
		run = append(run, Group{Line: line})
		if tags[i].Depth == 0 {
			flush()
		}
	}
	flush()
	return out, errors.Join(errs...)
}

// Nest is like Split but also groups the interior of every block, so that
// a nested header of the same construct forms a sub-group. The first and
// last line of a block (its header and closer) stay leaves.
func Nest(lines []string, fn scanner.Tagger) ([]Group, error) {
	groups, err := Split(lines, fn)
	for i, g := range groups {
		if g.IsLeaf() || len(g.Children) < 3 {
			continue
		}
		n := len(g.Children)
		inner, ierr := Nest(Flatten(g.Children[1:n-1]), fn)
		err = errors.Join(err, ierr)
		children := make([]Group, 0, len(inner)+2)
		children = append(children, g.Children[0])
		children = append(children, inner...)
		children = append(children, g.Children[n-1])
		groups[i] = Group{Children: children}
	}
	return groups, err
}

// Flatten returns the lines of groups in order.
func Flatten(groups []Group) []string {
	var out []string
	for _, g := range groups {
		if g.IsLeaf() {
			out = append(out, g.Line)
			continue
		}
		out = append(out, Flatten(g.Children)...)
	}
	return out
}

// Depth returns the deepest block nesting level in groups; a list of
// leaves has depth 0.
func Depth(groups []Group) int {
	deepest := 0
	for _, g := range groups {
		if g.IsLeaf() {
			continue
		}
		if d := 1 + Depth(g.Children); d > deepest {
			deepest = d
		}
	}
	return deepest
}
