package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newCompletions(t *testing.T) *store.Completions {
	t.Helper()
	db, err := store.InitDB(t.Context(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return store.NewCompletions(db)
}

func TestCompletions(t *testing.T) {
	t.Parallel()
	c := newCompletions(t)
	ctx := t.Context()

	_, err := c.Get(ctx, "arena")
	require.ErrorIs(t, err, store.ErrNotFound)

	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.Save(ctx, "arena", first))
	got, err := c.Get(ctx, "arena")
	require.NoError(t, err)
	require.True(t, first.Equal(got))

	second := first.Add(15 * time.Minute)
	require.NoError(t, c.Save(ctx, "arena", second))
	require.NoError(t, c.Save(ctx, "tag_arena", first))

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, second.Equal(all["arena"]))
	require.True(t, first.Equal(all["tag_arena"]))
}

func TestInitDBTwice(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := store.InitDB(t.Context(), path)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, store.NewCompletions(db).Save(t.Context(), "arena", now))
	require.NoError(t, db.Close())

	db, err = store.InitDB(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	got, err := store.NewCompletions(db).Get(t.Context(), "arena")
	require.NoError(t, err)
	require.True(t, now.Equal(got))
}

func TestRuns(t *testing.T) {
	t.Parallel()
	c := newCompletions(t)
	ctx := t.Context()

	_, err := c.LastRun(ctx, "arena")
	require.ErrorIs(t, err, store.ErrNotFound)

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	older := store.Run{
		ID:        uuid.NewString(),
		Module:    "arena",
		Battles:   10,
		Exhausted: true,
		Reason:    "battle cap reached",
		Started:   start,
		Stopped:   start.Add(20 * time.Minute),
	}
	newer := store.Run{
		ID:      uuid.NewString(),
		Module:  "arena",
		Battles: 2,
		Reason:  "cancelled",
		Started: start.Add(time.Hour),
		Stopped: start.Add(time.Hour + 5*time.Minute),
	}
	require.NoError(t, c.SaveRun(ctx, older))
	require.NoError(t, c.SaveRun(ctx, newer))
	require.Error(t, c.SaveRun(ctx, newer))

	got, err := c.LastRun(ctx, "arena")
	require.NoError(t, err)
	require.Equal(t, newer.ID, got.ID)
	require.Equal(t, 2, got.Battles)
	require.False(t, got.Exhausted)
	require.Equal(t, "cancelled", got.Reason)
	require.True(t, newer.Stopped.Equal(got.Stopped))
}
