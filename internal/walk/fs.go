// Package walk lists the files below a template directory.
package walk

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Root walks an os.Root. See Files.
func Root(ctx context.Context, root *os.Root) iter.Seq2[string, error] {
	return Files(ctx, root.FS(), root.Name())
}

// Files yields the path of every regular file below fsys, joined to name.
// Symlinks are not followed. A failing directory is yielded as an error
// and the walk goes on.
func Files(ctx context.Context, fsys fs.FS, name string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		_ = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			if err == nil && !d.Type().IsRegular() {
				return nil
			}
			if !yield(filepath.Join(name, path), err) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// WithExt keeps paths whose extension matches one of exts, ignoring case.
// Errors are passed through.
func WithExt(seq iter.Seq2[string, error], exts ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for path, err := range seq {
			if err == nil && !hasExt(path, exts) {
				continue
			}
			if !yield(path, err) {
				return
			}
		}
	}
}

func hasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
