package remote

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var (
	sumA = strings.Repeat("a", 64)
	sumB = strings.Repeat("b", 64)
	sumC = strings.Repeat("c", 64)
)

func TestLockFileReadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	// Write a lock file.
	lf := NewLockFile()
	lf.Set("users/a/lib:util", sumA)
	lf.Set("users/b/palettes:colors", sumB)
	lf.Set("https://example.com/x.js", sumC)

	if err := WriteLockFile(path, lf); err != nil {
		t.Fatalf("WriteLockFile: %v", err)
	}

	// Read it back.
	lf2, err := ReadLockFile(path)
	if err != nil {
		t.Fatalf("ReadLockFile: %v", err)
	}

	if len(lf2.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lf2.Entries))
	}

	// Verify lookup.
	for module, sum := range map[string]string{
		"users/a/lib:util":         sumA,
		"users/b/palettes:colors":  sumB,
		"https://example.com/x.js": sumC,
	} {
		e := lf2.Lookup(module)
		if e == nil || e.SHA256 != sum {
			t.Errorf("lookup %s failed: %+v", module, e)
		}
	}

	// Missing entry.
	if lf2.Lookup("users/nobody/nothing:x") != nil {
		t.Error("expected nil for missing entry")
	}

	// Entries are written sorted.
	b, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if !strings.HasPrefix(lines[1], "https://") || !strings.HasPrefix(lines[3], "users/b/") {
		t.Errorf("unexpected order:\n%s", b)
	}
}

func TestLockFileReadMissing(t *testing.T) {
	lf, err := ReadLockFile("/nonexistent/" + LockFileName)
	if err != nil {
		t.Fatalf("ReadLockFile missing: %v", err)
	}
	if len(lf.Entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(lf.Entries))
	}
}

func TestLockFileCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	content := "# generated\n\nusers/a/lib:util " + sumA + "\n\n# comment mid-file\nusers/b/x:y " + sumB + "\n\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	lf, err := ReadLockFile(path)
	if err != nil {
		t.Fatalf("ReadLockFile: %v", err)
	}
	if len(lf.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lf.Entries))
	}
}

func TestLockFileMalformed(t *testing.T) {
	for name, content := range map[string]string{
		"one field":  "users/a/lib:util\n",
		"short hash": "users/a/lib:util abc123\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), LockFileName)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadLockFile(path); err == nil {
				t.Error("expected error for malformed lock file")
			}
		})
	}
}

func TestLockFileSetUpdateDelete(t *testing.T) {
	lf := NewLockFile()
	lf.Set("users/a/lib:util", sumA)
	lf.Set("users/a/lib:util", sumB)

	if len(lf.Entries) != 1 {
		t.Fatalf("expected 1 entry after update, got %d", len(lf.Entries))
	}
	if e := lf.Lookup("users/a/lib:util"); e.SHA256 != sumB {
		t.Errorf("expected updated hash, got %s", e.SHA256)
	}
	if !lf.Delete("users/a/lib:util") || lf.Delete("users/a/lib:util") {
		t.Error("expected exactly one successful delete")
	}
	if len(lf.Entries) != 0 || lf.Lookup("users/a/lib:util") != nil {
		t.Error("entry still present after delete")
	}
}

func TestLockFileEmptyRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, LockFileName)

	// Create the file first.
	if err := os.WriteFile(path, []byte("# empty\n"), 0644); err != nil {
		t.Fatal(err)
	}

	lf := NewLockFile()
	if err := WriteLockFile(path, lf); err != nil {
		t.Fatalf("WriteLockFile empty: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected lock file to be removed when empty")
	}
}
