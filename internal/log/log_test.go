package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/CZERTAINLY/Sortie/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := log.New(true, &buf)

	ctx := log.ContextAttrs(t.Context(), slog.String("module", "arena"))
	logger.DebugContext(ctx, "hello", "battles", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "hello", rec["msg"])
	require.Equal(t, "arena", rec["module"])
	require.EqualValues(t, 3, rec["battles"])
}

func TestContextAttrsSiblings(t *testing.T) {
	t.Parallel()
	base := log.ContextAttrs(context.Background(), slog.String("a", "1"))
	var buf1, buf2 bytes.Buffer
	log.New(false, &buf1).InfoContext(log.ContextAttrs(base, slog.String("b", "2")), "one")
	log.New(false, &buf2).InfoContext(log.ContextAttrs(base, slog.String("c", "3")), "two")

	var rec1, rec2 map[string]any
	require.NoError(t, json.Unmarshal(buf1.Bytes(), &rec1))
	require.NoError(t, json.Unmarshal(buf2.Bytes(), &rec2))
	require.Equal(t, "2", rec1["b"])
	require.NotContains(t, rec1, "c")
	require.Equal(t, "3", rec2["c"])
	require.NotContains(t, rec2, "b")
}

func TestSink(t *testing.T) {
	t.Parallel()

	t.Run("nil", func(t *testing.T) {
		var s log.Sink
		require.NotPanics(t, func() { s.Print("x") })
		require.Nil(t, s.Prefixed("p"))
	})

	t.Run("panic swallowed", func(t *testing.T) {
		s := log.Sink(func(string) { panic("boom") })
		require.NotPanics(t, func() { s.Printf("x=%d", 1) })
	})

	t.Run("prefixed tee", func(t *testing.T) {
		var got []string
		collect := log.Sink(func(msg string) { got = append(got, msg) })
		broken := log.Sink(func(string) { panic("boom") })
		log.Tee(broken, collect, nil).Prefixed("arena").Printf("battles_done=%d", 2)
		require.Equal(t, []string{"[arena] battles_done=2"}, got)
	})

	t.Run("slog", func(t *testing.T) {
		var buf bytes.Buffer
		s := log.SlogSink(t.Context(), log.New(false, &buf), "tag_arena")
		s.Print("homescreen reached")
		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		require.Equal(t, "homescreen reached", rec["msg"])
		require.Equal(t, "tag_arena", rec["module"])
	})
}
