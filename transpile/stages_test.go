package transpile

import (
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflow(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"nested blocks",
			"function f(a) { if (a) { return 1; } else { return 2; } }",
			"function f(a) {\n    if (a) {\n        return 1;\n    } else {\n        return 2;\n    }\n}",
		},
		{
			"object literal stays inline",
			"var v = {min: 0,\n  max: 1};",
			"var v = {min: 0, max: 1};",
		},
		{
			"one statement per line",
			"a = 1; b = 2;",
			"a = 1;\nb = 2;",
		},
		{
			"callback closes its call",
			"x.map(function (v) { return v; });",
			"x.map(function (v) {\n    return v;\n});",
		},
		{
			"chained call on next line",
			"var c = col\n  .filter(f)\n  .first();",
			"var c = col.filter(f).first();",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reflow(tt.src))
		})
	}
}

func TestRewriteTernaries(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x = a ? b : c", "x = (b if a else c)"},
		{"y = a ? b : c ? d : e", "y = (b if a else (d if c else e))"},
		{"f(a, p ? 1 : 2, z)", "f(a, (1 if p else 2), z)"},
		{"return ok ? 'yes' : 'no'", "return ('yes' if ok else 'no')"},
		{"return x ? 1 : 2;", "return (1 if x else 2);"},
		{"y = a ? f(b) : c;  # note", "y = (f(b) if a else c);  # note"},
		{"s = 'a ? b : c'", "s = 'a ? b : c'"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := rewriteTernaries(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinStatements(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"chain with comments",
			[]string{"x = ee.Image(1)", "  # c", "  .add(2)", "  # d", "  .multiply(3)"},
			[]string{"  # c", "  # d", "x = ee.Image(1).add(2).multiply(3)"},
		},
		{
			"operator with comment",
			[]string{"y = a +", "# note", "b"},
			[]string{"# note", "y = a + b"},
		},
		{
			"trailing comment kept",
			[]string{"z = f()  # keep", ".g()"},
			[]string{"z = f().g()  # keep"},
		},
		{
			"separate statements",
			[]string{"a = 1", "# c", "b = 2"},
			[]string{"a = 1", "# c", "b = 2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, joinStatements(tt.in))
		})
	}
}

func TestRewriteTernariesMissingColon(t *testing.T) {
	_, err := rewriteTernaries("x = a ? b")
	assert.True(t, errors.Is(err, ErrUnbalancedDelimiter))
}

func TestQuoteDictKeys(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"x = {a: 1, b: {c: 2}}", "x = {'a': 1, 'b': {'c': 2}}"},
		{"f({min: 0, max: [1, 2]})", "f({'min': 0, 'max': [1, 2]})"},
		{"x = {'a': b}", "x = {'a': b}"},
		{"g(a, b)", "g(a, b)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteDictKeys(tt.src))
		})
	}
}

func TestStripDeclarations(t *testing.T) {
	got, err := stripDeclarations("var a = 1, b, c = f(1, 2);\n  let d = 4;")
	require.NoError(t, err)
	assert.Equal(t, "a = 1\nb = None\nc = f(1, 2)\n  d = 4", got)
}

func TestRewriteIncrements(t *testing.T) {
	got := rewriteIncrements([]string{"i++;", "  --n", "x.y -= 2;", "s *= a + b", "a = b"})
	assert.Equal(t, []string{"i = i + 1", "  n = n - 1", "x.y = x.y - 2", "s = s * (a + b)", "a = b"}, got)
}

func TestConvertBlockComment(t *testing.T) {
	src := "    /* first\n     * second\n     */\n    x = 1"
	assert.Equal(t, "    # first\n    # second\n    x = 1", convertComments(src))
}

func TestCatalogRewrite(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		want   string
		active []string
	}{
		{"call receiver", "f(a).trim()", "__ee_extra_trim(f(a))", []string{"trim"}},
		{"attribute", "n = list.length;", "n = __ee_extra_length(list);", []string{"length"}},
		{"call is not attribute", "x.length()", "x.length()", nil},
		{"nested", "a.concat(b.concat(c))", "__ee_extra_concat(a, __ee_extra_concat(b, c))", []string{"concat"}},
		{"static", "Array.isArray(v)", "__ee_extra_Array_isArray(v)", []string{"Array.isArray"}},
		{"global", "parseInt(s) + ee.Number(1)", "__ee_extrafunc_parseInt(s) + ee.Number(1)", []string{"parseInt"}},
		{"string receiver", "'a,b'.indexOf(',')", "__ee_extra_indexOf('a,b', ',')", []string{"indexOf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalog()
			got, frags, err := c.Rewrite(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.active, c.Active())
			if tt.active == nil {
				assert.Empty(t, frags)
				return
			}
			assert.Equal(t, "varname", frags[len(frags)-1].Name)
		})
	}
}

func TestParseIntPolyfillRadix(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not installed")
	}
	src := "import inspect\nimport math\nimport re\n\n" + polyfill("varname") + "\n\n" + polyfill("parseInt") + `
for args in [("0x1A",), ("0x1A", 16), ("0x1A", 10), ("42px",), ("-17", 8), ("08",), ("ff", 16)]:
    print(__ee_extrafunc_parseInt(*args))
`
	out, err := exec.Command(python, "-c", src).CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Equal(t, "26\n26\n0\n42\n-15\n8\n255\n", string(out))
}

func TestCatalogCoversEveryEntry(t *testing.T) {
	c := NewCatalog()
	require.Len(t, c.Entries(), 35)
	for _, e := range c.Entries() {
		assert.Contains(t, e.Source(), "def "+e.Func+"(", e.Name)
	}
}

func TestNamerIsStableAndUnique(t *testing.T) {
	a, b := &Namer{}, &Namer{}
	first := a.Name("function () {}")
	assert.Equal(t, first, b.Name("function () {}"))
	second := a.Name("function () {}")
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasPrefix(first, "fn_"))
}

func TestStagesAreDocumented(t *testing.T) {
	seen := map[string]bool{}
	for _, st := range Stages(Options{RunFormatter: true}) {
		assert.NotEmpty(t, st.Requires, st.Name)
		assert.NotEmpty(t, st.Ensures, st.Name)
		assert.False(t, seen[st.Name], "duplicate stage %s", st.Name)
		seen[st.Name] = true
	}
	assert.True(t, seen["format"])
	assert.False(t, func() bool {
		for _, st := range Stages(Options{}) {
			if st.Name == "format" {
				return true
			}
		}
		return false
	}())
}
