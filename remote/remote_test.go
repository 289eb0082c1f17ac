package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModuleID(t *testing.T) {
	tests := []struct {
		in   string
		want ModuleID
		ok   bool
	}{
		{"users/dmlmont/spectral:spectral", "users/dmlmont/spectral:spectral", true},
		{` 'users/a/lib:util' `, "users/a/lib:util", true},
		{`"users/a/lib:sub/util"`, "users/a/lib:sub/util", true},
		{"https://example.com/mods/palette.js", "https://example.com/mods/palette.js", true},
		{"", "", false},
		{"/abs/path:x", "", false},
		{"users/a/../b:x", "", false},
		{"users/a/lib:", "", false},
		{"https://", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModuleID(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModuleLocations(t *testing.T) {
	tests := []struct {
		id     ModuleID
		remote string
		cache  string
		repo   string
		leaf   string
	}{
		{
			"users/dmlmont/spectral:spectral",
			DefaultBaseURL + "/users/dmlmont/spectral/spectral",
			"root/ee-sources/users/dmlmont/spectral/spectral.js",
			"users/dmlmont/spectral", "spectral",
		},
		{
			"users/a/lib:tools/util.js",
			DefaultBaseURL + "/users/a/lib/tools/util.js",
			"root/ee-sources/users/a/lib/tools/util.js",
			"users/a/lib", "tools/util.js",
		},
		{
			"https://example.com/mods/palette.js",
			"https://example.com/mods/palette.js",
			"root/ee-sources/EXTERNAL_palette/palette.js",
			"https://example.com/mods", "palette.js",
		},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			assert.Equal(t, tt.remote, tt.id.RemoteURL("", ""))
			assert.Equal(t, filepath.FromSlash(tt.cache), tt.id.CachePath("root"))
			assert.Equal(t, tt.repo, tt.id.Repo())
			assert.Equal(t, tt.leaf, tt.id.Leaf())
		})
	}
	assert.Equal(t, "http://h/users/a/lib/util.js", ModuleID("users/a/lib:util").RemoteURL("http://h/", ".js"))
}

func TestCacheRoot(t *testing.T) {
	t.Setenv("EEJS2PY_MODULE_DIR", "/env/dir")
	dir, err := CacheRoot("/flag/dir")
	require.NoError(t, err)
	assert.Equal(t, "/flag/dir", dir)
	dir, err = CacheRoot("")
	require.NoError(t, err)
	assert.Equal(t, "/env/dir", dir)
}

func TestStore(t *testing.T) {
	s := NewStore(t.TempDir())
	id := ModuleID("users/a/lib:util")
	assert.False(t, s.Has(id))

	_, err := s.Read(id)
	assert.True(t, errors.Is(err, ErrUnknownModule))

	src := []byte("exports.a = 1;\n")
	require.NoError(t, s.Write(id, src, Meta{URL: "http://x", Requires: []string{"users/b/c:d"}}))
	assert.True(t, s.Has(id))

	got, err := s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	m, ok, err := s.ReadMeta(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "users/a/lib:util", m.ID)
	assert.Equal(t, Hash(src), m.SHA256)
	assert.Equal(t, len(src), m.Size)
	assert.Equal(t, []string{"users/b/c:d"}, m.Requires)

	require.NoError(t, s.Write("users/a/lib:other", []byte("x"), Meta{}))
	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "users/a/lib:other", list[0].ID)

	require.NoError(t, s.Remove(id))
	assert.False(t, s.Has(id))
	assert.True(t, errors.Is(s.Remove(id), ErrUnknownModule))
	assert.True(t, s.Has("users/a/lib:other"))

	require.NoError(t, s.Remove("users/a/lib:other"))
	_, err = os.Stat(filepath.Join(s.Root, "ee-sources", "users"))
	assert.True(t, os.IsNotExist(err), "empty directories are pruned")
}

func TestStoreListEmpty(t *testing.T) {
	list, err := NewStore(filepath.Join(t.TempDir(), "missing")).List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestScanRequires(t *testing.T) {
	src := `// require('users/x/commented:out')
var a = require('users/me/lib:a');
var s = "require('users/x/in:string')";
var b = require("users/me/lib:b").tools;
function f() { return require('users/me/lib:a'); }
var dyn = require(name);
`
	got, err := ScanRequires(context.Background(), "users/me/app:main", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []ModuleID{"users/me/lib:a", "users/me/lib:b"}, got)
}

// moduleServer serves the given modules and counts requests per path.
type moduleServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newModuleServer(t *testing.T, modules map[string]string) *moduleServer {
	t.Helper()
	ms := &moduleServer{hits: map[string]int{}}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.mu.Lock()
		ms.hits[r.URL.Path]++
		ms.mu.Unlock()
		src, ok := modules[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(src))
	}))
	t.Cleanup(ms.Close)
	return ms
}

func (ms *moduleServer) count(p string) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.hits[p]
}

var graph = map[string]string{
	"/users/me/app/main": "var b = require('users/me/lib:b');\nvar c = require(\"users/me/lib:c\");\nexports.x = 1;\n",
	"/users/me/lib/b":    "var c = require('users/me/lib:c');\nexports.y = 2;\n",
	"/users/me/lib/c":    "var app = require('users/me/app:main');\nexports.z = 3;\n",
}

func newTestResolver(t *testing.T, srv *moduleServer) *Resolver {
	t.Helper()
	r := NewResolver(NewStore(t.TempDir()), &HTTPFetcher{BaseURL: srv.URL})
	require.NoError(t, r.InitLockFromDir(t.TempDir()))
	return r
}

func TestHTTPFetcher(t *testing.T) {
	srv := newModuleServer(t, graph)
	f := &HTTPFetcher{BaseURL: srv.URL}

	src, u, err := f.Fetch(context.Background(), "users/me/lib:b")
	require.NoError(t, err)
	assert.Equal(t, graph["/users/me/lib/b"], string(src))
	assert.Equal(t, srv.URL+"/users/me/lib/b", u)

	_, _, err = f.Fetch(context.Background(), "users/me/lib:missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailure))
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.Status)
}

func TestInstallFetchesGraphOnce(t *testing.T) {
	srv := newModuleServer(t, graph)
	r := newTestResolver(t, srv)

	res, err := r.Install(context.Background(), "users/me/app:main", InstallOptions{})
	require.NoError(t, err)
	var ids []ModuleID
	for _, x := range res {
		ids = append(ids, x.ID)
		assert.True(t, x.Fetched)
	}
	assert.Equal(t, []ModuleID{"users/me/app:main", "users/me/lib:b", "users/me/lib:c"}, ids)
	for p := range graph {
		assert.Equal(t, 1, srv.count(p), p)
	}
	assert.Len(t, r.LockFile().Entries, 3)

	metas, err := r.Installed()
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, []string{"users/me/lib:b", "users/me/lib:c"}, metas[0].Requires)
	assert.Equal(t, Hash([]byte(graph["/users/me/app/main"])), metas[0].SHA256)

	// A second install uses the cache; an update fetches again.
	res, err = r.Install(context.Background(), "users/me/app:main", InstallOptions{})
	require.NoError(t, err)
	for _, x := range res {
		assert.False(t, x.Fetched)
	}
	_, err = r.Install(context.Background(), "users/me/app:main", InstallOptions{Update: true})
	require.NoError(t, err)
	assert.Equal(t, 2, srv.count("/users/me/lib/c"))
}

func TestInstallFailureLeavesCacheUnchanged(t *testing.T) {
	srv := newModuleServer(t, map[string]string{
		"/users/me/app/main": "var a = require('users/me/lib:a');\nvar m = require('users/me/lib:missing');\n",
		"/users/me/lib/a":    "exports.a = 1;\n",
	})
	r := newTestResolver(t, srv)

	_, err := r.Install(context.Background(), "users/me/app:main", InstallOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailure))
	assert.Contains(t, err.Error(), "users/me/lib:missing")
	assert.False(t, r.Store.Has("users/me/app:main"))
	assert.False(t, r.Store.Has("users/me/lib:a"))
	assert.Empty(t, r.LockFile().Entries)
}

func TestSpliceNamespacesAndCycles(t *testing.T) {
	srv := newModuleServer(t, graph)
	r := newTestResolver(t, srv)
	_, err := r.Install(context.Background(), "users/me/app:main", InstallOptions{})
	require.NoError(t, err)

	flat, err := r.Splice(context.Background(), "users/me/app:main")
	require.NoError(t, err)
	want := strings.Join([]string{
		"var eeExtraExports0 = {};",
		"var eeExtraExports1 = {};",
		"var app = exports;",
		"eeExtraExports1.z = 3;",
		"var c = eeExtraExports1;",
		"eeExtraExports0.y = 2;",
		"var b = eeExtraExports0;",
		"var c = eeExtraExports1;",
		"exports.x = 1;",
		"",
	}, "\n")
	assert.Equal(t, want, flat)
}

func TestResolve(t *testing.T) {
	srv := newModuleServer(t, graph)
	r := newTestResolver(t, srv)
	_, err := r.Install(context.Background(), "users/me/app:main", InstallOptions{})
	require.NoError(t, err)

	ex, err := r.Resolve(context.Background(), "users/me/app:main")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ex.Names())
	b, err := ex.Attr("x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Value)
	assert.Contains(t, ex.Script, "eeExtraExports0 = AttrDict()")
}

func TestResolveUninstalledRequire(t *testing.T) {
	r := NewResolver(NewStore(t.TempDir()), nil)
	require.NoError(t, r.Store.Write("users/me/app:main", []byte("var m = require(\"a/b:c\");\nexports.k = 1;\n"), Meta{}))

	_, err := r.Resolve(context.Background(), "users/me/app:main")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownModule))
	assert.Contains(t, err.Error(), "a/b:c")
	var ue *UnknownModuleError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, ModuleID("users/me/app:main"), ue.RequiredBy)

	_, err = r.Resolve(context.Background(), "users/nobody/x:y")
	assert.True(t, errors.Is(err, ErrUnknownModule))
}

func TestFrozenRejectsModifiedModule(t *testing.T) {
	srv := newModuleServer(t, graph)
	r := newTestResolver(t, srv)
	_, err := r.Install(context.Background(), "users/me/app:main", InstallOptions{})
	require.NoError(t, err)

	r.Frozen = true
	_, err = r.Resolve(context.Background(), "users/me/app:main")
	require.NoError(t, err)

	p := ModuleID("users/me/lib:c").CachePath(r.Store.Root)
	require.NoError(t, os.WriteFile(p, []byte("exports.z = 4;\n"), 0o644))
	_, err = r.Resolve(context.Background(), "users/me/app:main")
	assert.True(t, errors.Is(err, ErrLockMismatch))
}

func TestUninstall(t *testing.T) {
	srv := newModuleServer(t, graph)
	r := newTestResolver(t, srv)
	_, err := r.Install(context.Background(), "users/me/app:main", InstallOptions{})
	require.NoError(t, err)

	require.NoError(t, r.Uninstall("users/me/lib:b"))
	assert.False(t, r.Store.Has("users/me/lib:b"))
	assert.True(t, r.Store.Has("users/me/lib:c"))
	assert.Nil(t, r.LockFile().Lookup("users/me/lib:b"))
	assert.True(t, errors.Is(r.Uninstall("users/me/lib:b"), ErrUnknownModule))
}

func TestGitFetcherReadsClonedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util"), []byte("exports.u = 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.js"), []byte("exports.o = 2;"), 0o644))

	f := NewGitFetcher("https://git.example", nil)
	f.repos["https://git.example/users/me/lib"] = dir

	src, u, err := f.Fetch(context.Background(), "users/me/lib:util")
	require.NoError(t, err)
	assert.Equal(t, "exports.u = 1;", string(src))
	assert.Equal(t, "https://git.example/users/me/lib", u)

	src, _, err = f.Fetch(context.Background(), "users/me/lib:other")
	require.NoError(t, err)
	assert.Equal(t, "exports.o = 2;", string(src))

	_, _, err = f.Fetch(context.Background(), "users/me/lib:nope")
	assert.True(t, errors.Is(err, ErrFetchFailure))

	require.NoError(t, f.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestGitFetcherDelegatesURLs(t *testing.T) {
	srv := newModuleServer(t, map[string]string{"/x/palette.js": "exports.p = 1;"})
	f := NewGitFetcher(filepath.Join(t.TempDir(), "no-such-host"), &HTTPFetcher{})

	src, _, err := f.Fetch(context.Background(), ModuleID(srv.URL+"/x/palette.js"))
	require.NoError(t, err)
	assert.Equal(t, "exports.p = 1;", string(src))

	_, _, err = f.Fetch(context.Background(), "users/me/lib:util")
	assert.True(t, errors.Is(err, ErrFetchFailure))
}
