package remote

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// LockFileName is the lock file kept next to the project's scripts.
const LockFileName = "eejs2py.lock"

// LockEntry pins the content hash of one installed module.
type LockEntry struct {
	// Module is the module identifier (e.g. "users/a/lib:util").
	Module string
	// SHA256 is the hex digest of the module source.
	SHA256 string
}

// LockFile holds all lock entries for a project.
type LockFile struct {
	Entries []*LockEntry
	index   map[string]*LockEntry // module → entry
}

// NewLockFile creates an empty lock file.
func NewLockFile() *LockFile {
	return &LockFile{index: make(map[string]*LockEntry)}
}

// Lookup finds the lock entry for a module. Returns nil if not found.
func (lf *LockFile) Lookup(module string) *LockEntry {
	if lf.index == nil {
		return nil
	}
	return lf.index[module]
}

// Set adds or updates a lock entry.
func (lf *LockFile) Set(module, sum string) {
	if lf.index == nil {
		lf.index = make(map[string]*LockEntry)
	}
	if existing, ok := lf.index[module]; ok {
		existing.SHA256 = sum
		return
	}
	entry := &LockEntry{Module: module, SHA256: sum}
	lf.Entries = append(lf.Entries, entry)
	lf.index[module] = entry
}

// Delete drops the entry for module and reports whether there was one.
func (lf *LockFile) Delete(module string) bool {
	if _, ok := lf.index[module]; !ok {
		return false
	}
	delete(lf.index, module)
	for i, e := range lf.Entries {
		if e.Module == module {
			lf.Entries = append(lf.Entries[:i], lf.Entries[i+1:]...)
			break
		}
	}
	return true
}

// ReadLockFile reads a lock file. Returns an empty LockFile if the file
// does not exist.
func ReadLockFile(path string) (*LockFile, error) {
	lf := NewLockFile()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return lf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected 2 fields (module sha256), got %d", LockFileName, lineNum, len(fields))
		}
		if len(fields[1]) != 64 {
			return nil, fmt.Errorf("%s:%d: malformed sha256 %q", LockFileName, lineNum, fields[1])
		}

		lf.Set(fields[0], fields[1])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}

	return lf, nil
}

// WriteLockFile writes the lock file to disk, sorted by module.
func WriteLockFile(path string, lf *LockFile) error {
	if len(lf.Entries) == 0 {
		// No entries: remove the lock file if it exists.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing empty lock file: %w", err)
		}
		return nil
	}

	entries := append([]*LockEntry(nil), lf.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Module < entries[j].Module })

	var sb strings.Builder
	sb.WriteString("# " + LockFileName + " (generated, do not edit)\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s %s\n", e.Module, e.SHA256)
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}
