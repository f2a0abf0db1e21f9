package walk_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/CZERTAINLY/Sortie/internal/walk"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, seq func(func(string, error) bool)) []string {
	t.Helper()
	var paths []string
	for path, err := range seq {
		require.NoError(t, err)
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

func TestFiles(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"BackButton.png":          {Data: []byte("png")},
		"arena/ArenaButton.PNG":   {Data: []byte("png")},
		"arena/notes.txt":         {Data: []byte("txt")},
		"tag/TagBattleButton.png": {Data: []byte("png")},
		"empty":                   {Mode: os.ModeDir},
	}

	require.Len(t, collect(t, walk.Files(t.Context(), fsys, "tpl")), 4)
	require.Equal(t, []string{
		filepath.Join("tpl", "BackButton.png"),
		filepath.Join("tpl", "arena", "ArenaButton.PNG"),
		filepath.Join("tpl", "tag", "TagBattleButton.png"),
	}, collect(t, walk.WithExt(walk.Files(t.Context(), fsys, "tpl"), ".png")))
}

func TestFilesCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	fsys := fstest.MapFS{"CloseAd.png": {Data: []byte("png")}}
	require.Empty(t, collect(t, walk.Files(ctx, fsys, "tpl")))
}

func TestRoot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CloseAd.png"), []byte("png"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "CloseAd.png"), filepath.Join(dir, "Link.png")))

	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })

	require.Equal(t, []string{filepath.Join(dir, "CloseAd.png")}, collect(t, walk.Root(t.Context(), root)))
}
