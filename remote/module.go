package remote

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultBaseURL is the public bucket that mirrors published script modules.
const DefaultBaseURL = "https://storage.googleapis.com/ee-sources"

// ModuleID names a script module, either as `namespace/path:leaf`
// (e.g. "users/dmlmont/spectral:spectral") or as an http(s) URL.
type ModuleID string

// ParseModuleID validates and normalizes a module identifier. Surrounding
// quotes and whitespace, as found inside require(...), are removed.
func ParseModuleID(s string) (ModuleID, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return "", fmt.Errorf("empty module identifier")
	}
	id := ModuleID(s)
	if id.IsURL() {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("invalid module URL %q", s)
		}
		if path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
			return "", fmt.Errorf("module URL %q has no file name", s)
		}
		return id, nil
	}
	if strings.HasPrefix(s, "/") || strings.Contains(s, `\`) {
		return "", fmt.Errorf("invalid module identifier %q", s)
	}
	for _, part := range strings.Split(id.slug(), "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid module identifier %q", s)
		}
	}
	return id, nil
}

func (id ModuleID) String() string { return string(id) }

// IsURL reports whether the module is addressed by a full URL.
func (id ModuleID) IsURL() bool {
	return strings.HasPrefix(string(id), "http://") || strings.HasPrefix(string(id), "https://")
}

// Repo returns the repository part, e.g. "users/a/lib" for
// "users/a/lib:util". For URLs it is everything before the file name.
func (id ModuleID) Repo() string {
	s := string(id)
	if i := strings.Index(s, ":"); i >= 0 && !id.IsURL() {
		return s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[:i]
	}
	return ""
}

// Leaf returns the file path inside the repository.
func (id ModuleID) Leaf() string {
	s := string(id)
	if i := strings.Index(s, ":"); i >= 0 && !id.IsURL() {
		return s[i+1:]
	}
	return s[strings.LastIndex(s, "/")+1:]
}

// slug is the identifier with ':' separators turned into path separators.
func (id ModuleID) slug() string {
	return strings.ReplaceAll(string(id), ":", "/")
}

// RemoteURL returns where the module source is published. URL identifiers
// are returned as given.
func (id ModuleID) RemoteURL(base, ext string) string {
	if id.IsURL() {
		return string(id)
	}
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + id.slug() + ext
}

// CachePath returns the local file holding the module below root.
// URL modules live in an EXTERNAL_<stem> directory named after the file.
func (id ModuleID) CachePath(root string) string {
	base := filepath.Join(root, "ee-sources")
	if id.IsURL() {
		u, err := url.Parse(string(id))
		name := path.Base(string(id))
		if err == nil {
			name = path.Base(u.Path)
		}
		stem := strings.TrimSuffix(name, path.Ext(name))
		return filepath.Join(base, "EXTERNAL_"+stem, name)
	}
	p := id.slug()
	if !strings.HasSuffix(p, ".js") {
		p += ".js"
	}
	return filepath.Join(base, filepath.FromSlash(p))
}

// CacheRoot returns the module cache directory: dir when set, then the
// EEJS2PY_MODULE_DIR environment variable, then ~/.eejs2py/modules.
func CacheRoot(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	if envDir := os.Getenv("EEJS2PY_MODULE_DIR"); envDir != "" {
		return envDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".eejs2py", "modules"), nil
}
