package block

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eejs2py/eejs2py/scanner"
)

func braceTagger(line string, depth int) (bool, int) {
	d := scanner.BraceDelta(line)
	if depth == 0 && d <= 0 {
		return false, 0
	}
	return true, depth + d
}

func TestSplitAdjacentBlocks(t *testing.T) {
	lines := []string{"a", "function f() {", "x", "}", "function g() {", "}", "b"}
	groups, err := Split(lines, braceTagger)
	require.NoError(t, err)
	require.Len(t, groups, 4)

	assert.True(t, groups[0].IsLeaf())
	assert.Equal(t, []string{"function f() {", "x", "}"}, groups[1].Lines())
	assert.Equal(t, []string{"function g() {", "}"}, groups[2].Lines())
	assert.Equal(t, "b", groups[3].Line)
	assert.Equal(t, lines, Flatten(groups))
}

func TestNestDepth(t *testing.T) {
	lines := []string{
		"function f() {",
		"  function g() {",
		"    function h() {",
		"      return 1",
		"    }",
		"  }",
		"}",
		"z = 2",
	}
	groups, err := Nest(lines, braceTagger)
	require.NoError(t, err)
	assert.Equal(t, 3, Depth(groups))
	assert.Equal(t, lines, Flatten(groups))

	flat, err := Split(lines, braceTagger)
	require.NoError(t, err)
	assert.Equal(t, 1, Depth(flat))
}

func TestSplitUnderflowKeepsLines(t *testing.T) {
	lines := []string{"function f() {", "}}", "x"}
	groups, err := Split(lines, braceTagger)
	require.Error(t, err)

	var de *DepthError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Line)
	assert.Equal(t, "function f() {", de.Text)

	for _, g := range groups {
		assert.True(t, g.IsLeaf())
	}
	assert.Equal(t, lines, Flatten(groups))
}

func TestGroupingIsLossless(t *testing.T) {
	pool := []string{"x = 1", "function a() {", "}", "if (b) {", "  y()", "}}", "", "s = '{'"}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := 1 + rng.Intn(12)
		lines := make([]string, n)
		for j := range lines {
			lines[j] = pool[rng.Intn(len(pool))]
		}
		split, _ := Split(lines, braceTagger)
		assert.Equal(t, lines, Flatten(split))
		nested, _ := Nest(lines, braceTagger)
		assert.Equal(t, lines, Flatten(nested))
	}
}

func TestGroupText(t *testing.T) {
	g := Group{Children: []Group{{Line: "a {"}, {Line: "b"}, {Line: "}"}}}
	assert.False(t, g.IsLeaf())
	assert.Equal(t, "a {\nb\n}", g.Text())
}
