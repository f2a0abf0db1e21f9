package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/CZERTAINLY/Sortie/internal/walk"
)

var ErrTemplateNotFound = errors.New("template not found")

// Catalog resolves template names (e.g. "BackButton.png") into handles.
type Catalog interface {
	Resolve(name string) (Template, error)
}

// DirCatalog indexes image files found under a template directory by their
// base name. When the same name exists more than once, the first file in
// walk order wins.
type DirCatalog struct {
	dir   string
	index map[string]string
}

var imageExts = []string{".png", ".jpg", ".jpeg", ".bmp"}

func NewDirCatalog(ctx context.Context, dir string) (*DirCatalog, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("opening template dir: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	c := &DirCatalog{dir: dir, index: make(map[string]string)}
	for path, err := range walk.WithExt(walk.Root(ctx, root), imageExts...) {
		if err != nil {
			slog.DebugContext(ctx, "skipping template entry", "error", err)
			continue
		}
		name := filepath.Base(path)
		if _, ok := c.index[name]; ok {
			slog.DebugContext(ctx, "duplicate template name: ignoring", "name", name, "path", path)
			continue
		}
		c.index[name] = path
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "template catalog loaded", "dir", dir, "templates", len(c.index))
	return c, nil
}

func (c *DirCatalog) Resolve(name string) (Template, error) {
	path, ok := c.index[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s in %s", ErrTemplateNotFound, name, c.dir)
	}
	return Template{Name: name, Path: path}, nil
}

// Names returns the sorted list of known template names.
func (c *DirCatalog) Names() []string {
	names := make([]string, 0, len(c.index))
	for name := range c.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameCatalog resolves every name to a path-less handle. It serves
// environments which match on the template name only.
type NameCatalog struct{}

func (NameCatalog) Resolve(name string) (Template, error) {
	if name == "" {
		return Template{}, fmt.Errorf("%w: empty name", ErrTemplateNotFound)
	}
	return Template{Name: name}, nil
}
