package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/eejs2py/eejs2py/transpile"
)

var skipDirs = map[string]struct{}{
	"node_modules": {},
	"__pycache__":  {},
	"venv":         {},
	"dist":         {},
	"build":        {},
}

// discover returns the .js files below root relative to it, sorted.
// Hidden entries, well-known vendor directories and paths matched by
// root/.gitignore are skipped.
func discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &os.PathError{Op: "batch", Path: root, Err: os.ErrInvalid}
	}

	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		gi = nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 || filepath.Ext(name) != ".js" {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// batchResult is the outcome for one source file.
type batchResult struct {
	Path   string
	Output string
	Err    error
}

// translateTree translates files (relative to root) into .py files below
// out, keeping the directory layout. A failing file does not stop the
// others; results are returned in input order.
func translateTree(ctx context.Context, root, out string, files []string, opts transpile.Options, jobs int) []batchResult {
	results := make([]batchResult, len(files))
	if jobs < 1 {
		jobs = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))

	for i, rel := range files {
		g.Go(func() error {
			res := &results[i]
			res.Path = rel
			res.Output = filepath.Join(out, strings.TrimSuffix(rel, ".js")+".py")
			if err := gctx.Err(); err != nil {
				res.Err = err
				return nil
			}
			src, err := os.ReadFile(filepath.Join(root, rel))
			if err != nil {
				res.Err = err
				return nil
			}
			py, err := transpile.TranslateContext(gctx, string(src), opts)
			if err != nil {
				res.Err = err
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(res.Output), 0o755); err != nil {
				res.Err = err
				return nil
			}
			res.Err = os.WriteFile(res.Output, []byte(py), 0o644)
			return nil
		})
	}
	g.Wait()
	return results
}
