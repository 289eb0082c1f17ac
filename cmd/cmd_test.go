package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eejs2py/eejs2py/exports"
	"github.com/eejs2py/eejs2py/remote"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := New("test", &stdout, &stderr).Run(context.Background(), append([]string{"eejs2py", "--no-color"}, args...))
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const loop = "for (var i = 0; i < 5; i++) { out[i] = i; }\n"

func TestTranslateToStdout(t *testing.T) {
	src := filepath.Join(t.TempDir(), "loop.js")
	writeFile(t, src, loop)

	out, _, err := run(t, "translate", src)
	require.NoError(t, err)
	assert.Contains(t, out, "import ee\n")
	assert.Contains(t, out, "for i in range(0, 5, 1):\n    out[i] = i")
}

func TestTranslateToFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "loop.js")
	dst := filepath.Join(dir, "loop.py")
	writeFile(t, src, loop)

	out, errOut, err := run(t, "translate", "-o", dst, src)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "wrote "+dst)

	py, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(py), "range(0, 5, 1)")
}

func TestTranslateUsage(t *testing.T) {
	_, _, err := run(t, "translate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage:")

	_, _, err = run(t, "translate", filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "ignored/\n*.min.js\n")
	for _, p := range []string{
		"a.js",
		"sub/b.js",
		"sub/b.min.js",
		"ignored/c.js",
		".hidden/d.js",
		"node_modules/e.js",
		"notes.txt",
	} {
		writeFile(t, filepath.Join(root, p), "var x = 1;\n")
	}

	files, err := discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js", filepath.Join("sub", "b.js")}, files)

	_, err = discover(filepath.Join(root, "a.js"))
	assert.Error(t, err)
}

func TestBatch(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(root, "a.js"), loop)
	writeFile(t, filepath.Join(root, "sub", "b.js"), "var s = 'x'.charAt(0);\n")

	_, errOut, err := run(t, "batch", "--out", out, "-j", "2", root)
	require.NoError(t, err)
	assert.Contains(t, errOut, "2 files, 2 translated, 0 failed")

	a, err := os.ReadFile(filepath.Join(out, "a.py"))
	require.NoError(t, err)
	assert.Contains(t, string(a), "range(0, 5, 1)")
	b, err := os.ReadFile(filepath.Join(out, "sub", "b.py"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "__ee_extra_charAt(")
}

func TestBatchReportsFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ok.js"), loop)
	writeFile(t, filepath.Join(root, "deep.js"), `function a() {
  function b() {
    function c() {
      function d() {
        return 1;
      }
    }
  }
}
`)

	_, errOut, err := run(t, "batch", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, errOut, "deep.js")
	assert.FileExists(t, filepath.Join(root, "ok.py"))
	assert.NoFileExists(t, filepath.Join(root, "deep.py"))
}

func TestBatchEmptyDir(t *testing.T) {
	_, _, err := run(t, "batch", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .js files")
}

var modules = map[string]string{
	"/users/me/app/main": "var lib = require('users/me/lib:util');\nexports.answer = 42;\nexports.greet = function(name) { return 'hi ' + name; };\n",
	"/users/me/lib/util": "exports.scale = 2;\n",
}

// project writes a config file pointing at a server for modules and
// returns the flags selecting it and a fresh cache.
func project(t *testing.T) []string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src, ok := modules[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(src))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := filepath.Join(dir, "eejs2py.toml")
	writeFile(t, cfg, "[modules]\nbase_url = \""+srv.URL+"\"\njobs = 2\n")
	return []string{"--config", cfg, "--module-dir", filepath.Join(dir, "cache")}
}

func TestModuleCommands(t *testing.T) {
	flags := project(t)

	_, errOut, err := run(t, append(flags, "install", "users/me/app:main")...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "fetched users/me/app:main")
	assert.Contains(t, errOut, "fetched users/me/lib:util")

	_, errOut, err = run(t, append(flags, "install", "users/me/app:main")...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "cached users/me/app:main")

	out, _, err := run(t, append(flags, "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "users/me/app:main")
	assert.Contains(t, out, "users/me/lib:util")

	out, _, err = run(t, append(flags, "require", "users/me/app:main")...)
	require.NoError(t, err)
	assert.Contains(t, out, "answer")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "greet")
	assert.Contains(t, out, "function")

	out, _, err = run(t, append(flags, "require", "--emit", "users/me/app:main")...)
	require.NoError(t, err)
	assert.Contains(t, out, "eeExtraExports0 = AttrDict()")

	_, errOut, err = run(t, append(flags, "uninstall", "users/me/lib:util")...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "removed users/me/lib:util")

	_, _, err = run(t, append(flags, "require", "users/me/app:main")...)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrUnknownModule)
	assert.Contains(t, err.Error(), "users/me/lib:util")
}

func TestInstallQuietAndUnknown(t *testing.T) {
	flags := project(t)

	_, errOut, err := run(t, append(flags, "install", "-q", "users/me/lib:util")...)
	require.NoError(t, err)
	assert.Empty(t, errOut)

	_, _, err = run(t, append(flags, "install", "users/me/none:x")...)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrFetchFailure)

	_, _, err = run(t, append(flags, "install", "../bad")...)
	assert.Error(t, err)
}

func TestListEmpty(t *testing.T) {
	flags := project(t)
	out, errOut, err := run(t, append(flags, "list")...)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "no modules installed")
}

func TestTranslateResolve(t *testing.T) {
	flags := project(t)
	_, _, err := run(t, append(flags, "install", "users/me/lib:util")...)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "script.js")
	writeFile(t, src, "var util = require('users/me/lib:util');\nvar y = util.scale;\n")

	out, _, err := run(t, append(flags, "translate", "--resolve", src)...)
	require.NoError(t, err)
	assert.Contains(t, out, "eeExtraExports0 = AttrDict()")
	assert.Contains(t, out, "util = eeExtraExports0\n")
	assert.Contains(t, out, "y = util.scale")
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		b    exports.Binding
		want string
	}{
		{exports.Binding{Kind: exports.Literal, Value: int64(3)}, "3"},
		{exports.Binding{Kind: exports.Literal, Value: "a"}, `"a"`},
		{exports.Binding{Kind: exports.Function, Value: "f"}, "f()"},
		{exports.Binding{Kind: exports.Expression, Source: "ee.Image(\n  1)"}, "ee.Image( 1)"},
		{exports.Binding{Kind: exports.Expression, Source: string(bytes.Repeat([]byte("x"), 60))}, string(bytes.Repeat([]byte("x"), 45)) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, summarize(tt.b))
	}
}
