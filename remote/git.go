package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"golang.org/x/sync/singleflight"
)

// DefaultGitBase hosts the git repositories behind published modules.
const DefaultGitBase = "https://earthengine.googlesource.com"

// GitFetcher reads modules out of shallow clones of their repositories.
// A module `users/a/lib:util` is the file `util` (or `util.js`) in the
// repository <BaseURL>/users/a/lib. Each repository is cloned once per
// fetcher; call Close to remove the clones.
//
// URL identifiers are delegated to Fallback.
type GitFetcher struct {
	BaseURL  string
	Fallback Fetcher

	group singleflight.Group
	mu    sync.Mutex
	repos map[string]string // clone URL -> worktree
}

// NewGitFetcher returns a fetcher cloning from base.
func NewGitFetcher(base string, fallback Fetcher) *GitFetcher {
	if base == "" {
		base = DefaultGitBase
	}
	return &GitFetcher{BaseURL: base, Fallback: fallback, repos: map[string]string{}}
}

func (f *GitFetcher) Fetch(ctx context.Context, id ModuleID) ([]byte, string, error) {
	if id.IsURL() {
		if f.Fallback == nil {
			return nil, id.String(), &FetchError{ID: id, URL: id.String(), Err: errors.New("git source cannot fetch URL modules")}
		}
		return f.Fallback.Fetch(ctx, id)
	}
	cloneURL := strings.TrimRight(f.BaseURL, "/") + "/" + id.Repo()
	dir, err := f.clone(ctx, cloneURL)
	if err != nil {
		return nil, cloneURL, &FetchError{ID: id, URL: cloneURL, Err: err}
	}
	leaf := filepath.Join(dir, filepath.FromSlash(id.Leaf()))
	for _, p := range []string{leaf, leaf + ".js"} {
		b, err := os.ReadFile(p)
		if err == nil {
			return b, cloneURL, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, cloneURL, &FetchError{ID: id, URL: cloneURL, Err: err}
		}
	}
	return nil, cloneURL, &FetchError{ID: id, URL: cloneURL, Err: fmt.Errorf("no file %s in repository", id.Leaf())}
}

// clone returns the worktree of cloneURL, cloning it on first use.
func (f *GitFetcher) clone(ctx context.Context, cloneURL string) (string, error) {
	f.mu.Lock()
	if dir, ok := f.repos[cloneURL]; ok {
		f.mu.Unlock()
		return dir, nil
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do(cloneURL, func() (any, error) {
		dir, err := os.MkdirTemp("", "eejs2py-git-*")
		if err != nil {
			return "", fmt.Errorf("creating temp directory: %w", err)
		}
		opts := &git.CloneOptions{URL: cloneURL}
		// Local transports serve full clones only.
		if strings.HasPrefix(cloneURL, "http://") || strings.HasPrefix(cloneURL, "https://") {
			opts.Depth = 1
		}
		if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("cloning %s: %w", cloneURL, err)
		}
		f.mu.Lock()
		if f.repos == nil {
			f.repos = map[string]string{}
		}
		f.repos[cloneURL] = dir
		f.mu.Unlock()
		return dir, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Close removes every clone made by the fetcher.
func (f *GitFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for u, dir := range f.repos {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
		delete(f.repos, u)
	}
	return errors.Join(errs...)
}
