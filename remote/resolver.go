package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/eejs2py/eejs2py/exports"
	"github.com/eejs2py/eejs2py/transpile"
)

// Resolver installs modules into the cache and resolves them into
// translated scripts.
type Resolver struct {
	// Store is the module cache.
	Store *Store
	// Fetcher downloads modules that are not cached.
	Fetcher Fetcher
	// Jobs bounds the concurrent fetches of one dependency wave.
	Jobs int
	// Frozen errors if a module's content disagrees with the lock file or
	// a module has no lock entry.
	Frozen bool
	// ReadOnly prevents writing the lock file to disk.
	ReadOnly bool
	// Translate configures the translation of resolved modules.
	Translate transpile.Options
	// Logger receives progress messages. Nil discards them.
	Logger *slog.Logger

	// lockFile holds the pinned hashes, nil when no lock file is used.
	lockFile *LockFile
	// lockFilePath is the path to the lock file.
	lockFilePath string
	// lockDirty tracks whether the lock file was modified.
	lockDirty bool

	mu    sync.Mutex
	keys  map[ModuleID]*sync.Mutex
	group singleflight.Group
}

// InstallOptions tune a single Install call.
type InstallOptions struct {
	// Update re-fetches modules that are already cached.
	Update bool
}

// InstallResult reports what Install did for one module.
type InstallResult struct {
	ID      ModuleID
	Fetched bool // false when the cached copy was used
	URL     string
}

// NewResolver returns a resolver over store using fetcher.
func NewResolver(store *Store, fetcher Fetcher) *Resolver {
	return &Resolver{Store: store, Fetcher: fetcher, Jobs: 4}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// InitLockFromDir loads the lock file from dir. A missing file starts an
// empty one.
func (r *Resolver) InitLockFromDir(dir string) error {
	r.lockFilePath = filepath.Join(dir, LockFileName)
	lf, err := ReadLockFile(r.lockFilePath)
	if err != nil {
		return err
	}
	r.lockFile = lf
	return nil
}

// LockFile returns the resolver's lock file, nil when none was loaded.
func (r *Resolver) LockFile() *LockFile {
	return r.lockFile
}

// WriteLockIfDirty writes the lock file to disk if it was modified.
func (r *Resolver) WriteLockIfDirty() error {
	if r.ReadOnly || r.lockFile == nil || !r.lockDirty {
		return nil
	}
	if err := WriteLockFile(r.lockFilePath, r.lockFile); err != nil {
		return err
	}
	r.lockDirty = false
	return nil
}

// checkLock enforces the lock file in frozen mode.
func (r *Resolver) checkLock(id ModuleID, src []byte) error {
	if !r.Frozen || r.lockFile == nil {
		return nil
	}
	e := r.lockFile.Lookup(id.String())
	if e == nil {
		return fmt.Errorf("--frozen: no lock entry for %s: %w", id, ErrLockMismatch)
	}
	if got := Hash(src); got != e.SHA256 {
		return fmt.Errorf("--frozen: %s has sha256 %s, lock has %s: %w", id, got[:12], e.SHA256[:12], ErrLockMismatch)
	}
	return nil
}

// keyLock returns the mutex serializing cache writes for id.
func (r *Resolver) keyLock(id ModuleID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys == nil {
		r.keys = map[ModuleID]*sync.Mutex{}
	}
	m, ok := r.keys[id]
	if !ok {
		m = &sync.Mutex{}
		r.keys[id] = m
	}
	return m
}

// staged is a module read or fetched during Install, not yet committed.
type staged struct {
	id      ModuleID
	src     []byte
	url     string
	fetched bool
	deps    []ModuleID
}

// Install fetches id and everything it transitively requires. Modules
// are fetched in breadth-first waves, concurrently within a wave. Nothing
// is written to the cache unless the whole graph was fetched.
func (r *Resolver) Install(ctx context.Context, id ModuleID, opts InstallOptions) ([]InstallResult, error) {
	log := r.logger()
	visited := map[ModuleID]bool{id: true}
	wave := []ModuleID{id}
	var all []*staged

	for len(wave) > 0 {
		results := make([]*staged, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		if r.Jobs > 0 {
			g.SetLimit(r.Jobs)
		}
		for i, m := range wave {
			g.Go(func() error {
				st, err := r.stage(gctx, m, opts.Update)
				if err != nil {
					return err
				}
				results[i] = st
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []ModuleID
		for _, st := range results {
			all = append(all, st)
			for _, dep := range st.deps {
				if !visited[dep] {
					visited[dep] = true
					next = append(next, dep)
				}
			}
		}
		log.Debug("dependency wave", "modules", len(wave), "discovered", len(next))
		wave = next
	}

	for _, st := range all {
		if err := r.checkLock(st.id, st.src); err != nil {
			return nil, err
		}
	}

	out := make([]InstallResult, 0, len(all))
	for _, st := range all {
		if st.fetched {
			if err := r.commit(st); err != nil {
				return nil, err
			}
			log.Info("installed", "module", st.id, "url", st.url)
		}
		if r.lockFile != nil && !r.Frozen {
			sum := Hash(st.src)
			if e := r.lockFile.Lookup(st.id.String()); e == nil || e.SHA256 != sum {
				r.lockFile.Set(st.id.String(), sum)
				r.lockDirty = true
			}
		}
		out = append(out, InstallResult{ID: st.id, Fetched: st.fetched, URL: st.url})
	}
	return out, r.WriteLockIfDirty()
}

// stage loads one module from the cache or the network and scans it for
// dependencies. Concurrent fetches of the same module share one request.
func (r *Resolver) stage(ctx context.Context, id ModuleID, update bool) (*staged, error) {
	if !update && r.Store.Has(id) {
		src, err := r.Store.Read(id)
		if err != nil {
			return nil, err
		}
		deps, err := ScanRequires(ctx, id, src)
		if err != nil {
			return nil, err
		}
		return &staged{id: id, src: src, deps: deps}, nil
	}

	v, err, _ := r.group.Do(id.String(), func() (any, error) {
		r.logger().Debug("fetching", "module", id)
		src, u, err := r.Fetcher.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		return &staged{id: id, src: src, url: u, fetched: true}, nil
	})
	if err != nil {
		return nil, err
	}
	fetched := v.(*staged)
	deps, err := ScanRequires(ctx, id, fetched.src)
	if err != nil {
		return nil, err
	}
	return &staged{id: id, src: fetched.src, url: fetched.url, fetched: true, deps: deps}, nil
}

func (r *Resolver) commit(st *staged) error {
	l := r.keyLock(st.id)
	l.Lock()
	defer l.Unlock()
	deps := make([]string, len(st.deps))
	for i, d := range st.deps {
		deps[i] = d.String()
	}
	return r.Store.Write(st.id, st.src, Meta{URL: st.url, Fetched: time.Now().UTC(), Requires: deps})
}

// Uninstall removes id from the cache and the lock file. Modules it
// required stay installed.
func (r *Resolver) Uninstall(id ModuleID) error {
	l := r.keyLock(id)
	l.Lock()
	defer l.Unlock()
	if err := r.Store.Remove(id); err != nil {
		return err
	}
	if r.lockFile != nil && r.lockFile.Delete(id.String()) {
		r.lockDirty = true
	}
	return r.WriteLockIfDirty()
}

// Installed lists the cached modules.
func (r *Resolver) Installed() ([]Meta, error) {
	return r.Store.List()
}

// Splice returns the source of id with every require() replaced by the
// inlined, namespace-renamed source of the required module.
func (r *Resolver) Splice(ctx context.Context, id ModuleID) (string, error) {
	return newSplicer(ctx, r.read).expand(id, "", "exports")
}

// read returns a cached module, checked against the lock in frozen mode.
func (r *Resolver) read(id ModuleID) ([]byte, error) {
	src, err := r.Store.Read(id)
	if err != nil {
		return nil, err
	}
	if err := r.checkLock(id, src); err != nil {
		return nil, err
	}
	return src, nil
}

// Resolve splices id, translates the flat script and extracts its exports.
func (r *Resolver) Resolve(ctx context.Context, id ModuleID) (*exports.Exports, error) {
	flat, err := r.Splice(ctx, id)
	if err != nil {
		return nil, err
	}
	ex, _, err := r.translate(ctx, id.String(), flat)
	return ex, err
}

// ResolveFile is Resolve for a script outside the cache, such as a local
// file whose requires point at installed modules. It also returns the
// translated script.
func (r *Resolver) ResolveFile(ctx context.Context, path string) (*exports.Exports, string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	self := ModuleID(path)
	read := func(m ModuleID) ([]byte, error) {
		if m == self {
			return src, nil
		}
		return r.read(m)
	}
	flat, err := newSplicer(ctx, read).expand(self, "", "exports")
	if err != nil {
		return nil, "", err
	}
	return r.translate(ctx, path, flat)
}

func (r *Resolver) translate(ctx context.Context, name, flat string) (*exports.Exports, string, error) {
	opts := r.Translate
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	py, err := transpile.TranslateContext(ctx, flat, opts)
	if err != nil {
		return nil, "", fmt.Errorf("translating %s: %w", name, err)
	}
	ex, err := exports.Extract(ctx, name, py)
	if err != nil {
		return nil, "", err
	}
	return ex, py, nil
}
