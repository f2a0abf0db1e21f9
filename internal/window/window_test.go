package window_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/screen"
	"github.com/CZERTAINLY/Sortie/internal/sim"
	"github.com/CZERTAINLY/Sortie/internal/window"
	"github.com/stretchr/testify/require"
)

// manager fails the first fails placements, then places the window.
type manager struct {
	fails int
	err   error
	at    []time.Time
}

func (m *manager) EnsurePlacement(context.Context, *screen.Template) (bool, error) {
	m.at = append(m.at, time.Now())
	if len(m.at) <= m.fails {
		return false, m.err
	}
	return true, nil
}

type recorder struct {
	mx  sync.Mutex
	got []string
}

func (r *recorder) Print(msg string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.got = append(r.got, msg)
}

func TestCloserDismiss(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		env := sim.New()
		env.ShowAt("CloseAd.png", screen.Point{X: 1200, Y: 50})
		env.OnClick("CloseAd.png", func(e *sim.Env, _ screen.Point) { e.Hide("CloseAd.png") })
		closer := window.NewCloser(env, env,
			screen.Template{Name: "CloseBanner.png"},
			screen.Template{Name: "CloseAd.png"},
		)
		var rec recorder

		require.True(t, closer.Dismiss(t.Context(), rec.Print))
		require.Equal(t, []string{"[popup] clicked template CloseAd.png at (1200,50)"}, rec.got)

		require.False(t, closer.Dismiss(t.Context(), rec.Print))
		require.Equal(t, 4, env.Locates("CloseBanner.png"))
	})
}

func TestCloserNoTemplates(t *testing.T) {
	t.Parallel()
	env := sim.New()
	var rec recorder
	require.False(t, window.NewCloser(env, env).Dismiss(t.Context(), rec.Print))
	require.Equal(t, []string{"[popup] no templates provided"}, rec.got)
}

func TestCloserCancelled(t *testing.T) {
	t.Parallel()
	env := sim.New()
	env.ShowAt("CloseAd.png", screen.Point{X: 1200, Y: 50})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.False(t, window.NewCloser(env, env, screen.Template{Name: "CloseAd.png"}).Dismiss(ctx, nil))
	require.Empty(t, env.Actions())
}

func TestPreparer(t *testing.T) {
	t.Parallel()
	const delay = 800 * time.Millisecond

	type then struct {
		calls int
		lines []string
	}
	var testCases = []struct {
		scenario string
		given    *manager
		then     then
	}{
		{
			scenario: "placed",
			given:    &manager{},
			then: then{
				calls: 1,
				lines: []string{"[init] starting window initiation", "[init] attempt 1/5", "[init] initiation complete"},
			},
		},
		{
			scenario: "placed after retries",
			given:    &manager{fails: 2},
			then: then{
				calls: 3,
				lines: []string{"[init] attempt 3/5", "[init] initiation complete"},
			},
		},
		{
			scenario: "not placed",
			given:    &manager{fails: 99},
			then: then{
				calls: 5,
				lines: []string{"[init] attempt 5/5", "[init] failed to position the game window after retries"},
			},
		},
		{
			scenario: "error",
			given:    &manager{fails: 99, err: errors.New("no display")},
			then: then{
				calls: 5,
				lines: []string{"[init] window placement error: no display", "[init] failed to position the game window after retries"},
			},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				env := sim.New()
				env.ShowAt("CloseAd.png", screen.Point{X: 1200, Y: 50})
				env.OnClick("CloseAd.png", func(e *sim.Env, _ screen.Point) { e.Hide("CloseAd.png") })
				var rec recorder
				p := window.Preparer{
					Manager:   tt.given,
					Dismisser: window.NewCloser(env, env, screen.Template{Name: "CloseAd.png"}),
					Attempts:  window.DefaultPlacementAttempts,
					Delay:     delay,
				}

				p.Prepare(t.Context(), rec.Print)

				require.Len(t, tt.given.at, tt.then.calls)
				for i := 1; i < len(tt.given.at); i++ {
					require.Equal(t, delay, tt.given.at[i].Sub(tt.given.at[i-1]))
				}
				for _, line := range tt.then.lines {
					require.Contains(t, rec.got, line)
				}
				require.Equal(t, 1, env.Count(sim.KindClick, "CloseAd.png"))
			})
		})
	}
}

func TestPreparerSingleAttempt(t *testing.T) {
	t.Parallel()
	m := &manager{fails: 99}
	var rec recorder
	window.Preparer{Manager: m}.Prepare(t.Context(), rec.Print)
	require.Len(t, m.at, 1)
	require.Equal(t, []string{
		"[init] starting window initiation",
		"[init] attempt 1/1",
		"[init] failed to position the game window after retries",
	}, rec.got)
}

func TestPreparerUnsupported(t *testing.T) {
	t.Parallel()
	var rec recorder
	window.Preparer{Manager: window.Unsupported{}, Attempts: 5, Delay: time.Hour}.Prepare(t.Context(), rec.Print)
	require.Equal(t, []string{
		"[init] starting window initiation",
		"[init] attempt 1/5",
		"[init] window positioning not supported",
	}, rec.got)
}

func TestPreparerCancelledBetweenAttempts(t *testing.T) {
	t.Parallel()
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		m := &manager{fails: 99}
		done := make(chan struct{})
		go func() {
			defer close(done)
			window.Preparer{Manager: m, Attempts: 5, Delay: time.Minute}.Prepare(ctx, nil)
		}()
		synctest.Wait()
		cancel()
		<-done
		require.Len(t, m.at, 1)
	})
}

func TestPreparerSim(t *testing.T) {
	t.Parallel()
	env := sim.New()
	window.Preparer{Manager: env}.Prepare(t.Context(), nil)
	require.Equal(t, 1, env.Count(sim.KindPlace, ""))

	ok, err := window.Unsupported{}.EnsurePlacement(t.Context(), nil)
	require.ErrorIs(t, err, window.ErrUnsupported)
	require.False(t, ok)
}
