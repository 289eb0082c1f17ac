package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// metaSchema is bumped whenever Meta changes shape.
const metaSchema uint16 = 1

// Meta is stored next to every cached module.
type Meta struct {
	Schema   uint16
	ID       string
	URL      string
	SHA256   string
	Size     int
	Fetched  time.Time
	Requires []string
}

// Store is the on-disk module cache. Writes are atomic per file, so
// concurrent readers never see a partial module.
type Store struct {
	Root string

	mu sync.RWMutex
}

// NewStore returns a store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) path(id ModuleID) string     { return id.CachePath(s.Root) }
func (s *Store) metaPath(id ModuleID) string { return s.path(id) + ".meta" }

// Has reports whether id is cached.
func (s *Store) Has(id ModuleID) bool {
	info, err := os.Stat(s.path(id))
	return err == nil && !info.IsDir()
}

// Read returns the cached source of id.
func (s *Store) Read(id ModuleID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &UnknownModuleError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading module %s: %w", id, err)
	}
	return b, nil
}

// ReadMeta returns the metadata recorded for id. A module cached without
// metadata reports found == false.
func (s *Store) ReadMeta(id ModuleID) (Meta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readMeta(s.metaPath(id))
}

func readMeta(p string) (Meta, bool, error) {
	var m Meta
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return m, false, nil
	}
	if err != nil {
		return m, false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(&m); err != nil {
		return m, false, fmt.Errorf("decoding %s: %w", p, err)
	}
	return m, true, nil
}

// Write stores src and its metadata for id.
func (s *Store) Write(id ModuleID, src []byte, meta Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta.Schema = metaSchema
	meta.ID = id.String()
	meta.Size = len(src)
	meta.SHA256 = Hash(src)

	p := s.path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := writeAtomic(p, func(f *os.File) error {
		_, err := f.Write(src)
		return err
	}); err != nil {
		return fmt.Errorf("writing module %s: %w", id, err)
	}
	if err := writeAtomic(s.metaPath(id), func(f *os.File) error {
		return msgpack.NewEncoder(f).Encode(&meta)
	}); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", id, err)
	}
	return nil
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place.
func writeAtomic(p string, fill func(*os.File) error) error {
	f, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Remove deletes id and its metadata, then prunes directories left empty.
func (s *Store) Remove(id ModuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(id)
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &UnknownModuleError{ID: id}
		}
		return fmt.Errorf("removing module %s: %w", id, err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing metadata for %s: %w", id, err)
	}
	top := filepath.Join(s.Root, "ee-sources")
	for dir := filepath.Dir(p); dir != top && strings.HasPrefix(dir, top); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// List returns the metadata of every cached module, sorted by identifier.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	top := filepath.Join(s.Root, "ee-sources")
	var out []Meta
	err := filepath.WalkDir(top, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == top {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".meta") {
			return nil
		}
		m, ok, err := readMeta(p)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Hash returns the hex SHA-256 of src, the form pinned in the lock file.
func Hash(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}
