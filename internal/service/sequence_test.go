package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/log"
	"github.com/CZERTAINLY/Sortie/internal/service"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind      string
	name      string
	remaining time.Duration
}

type recorder struct {
	events []event
	logs   lines
}

func (r *recorder) observer() service.Observer {
	return service.Observer{
		ModuleStarted: func(name string) { r.events = append(r.events, event{kind: "started", name: name}) },
		ModuleEnded:   func(name string) { r.events = append(r.events, event{kind: "ended", name: name}) },
		ModuleSkipped: func(name string, remaining time.Duration) {
			r.events = append(r.events, event{kind: "skipped", name: name, remaining: remaining})
		},
		SequenceDone: func() { r.events = append(r.events, event{kind: "done"}) },
		Log:          r.logs.Print,
	}
}

func (r *recorder) kinds() []string {
	var ret []string
	for _, e := range r.events {
		ret = append(ret, e.kind+":"+e.name)
	}
	return ret
}

func quick(ran *atomic.Int32) service.RoutineFunc {
	return func(context.Context) error {
		ran.Add(1)
		return nil
	}
}

type countingPreparer struct {
	calls atomic.Int32
}

func (p *countingPreparer) Prepare(_ context.Context, sink log.Sink) {
	p.calls.Add(1)
	sink.Print("[init] initiation complete")
}

func TestSequence(t *testing.T) {
	t.Parallel()

	t.Run("skip on cooldown", func(t *testing.T) {
		t.Parallel()
		synctest.Test(t, func(t *testing.T) {
			// given
			sup := service.NewSupervisor(service.WithCooldown("B", 100*time.Second))
			sup.MarkCompleted(t.Context(), "B")
			time.Sleep(10 * time.Second)

			var a, b atomic.Int32
			var rec recorder
			seq := service.NewSequence(sup, []service.Entry{
				{Name: "A", Routine: service.RoutineFunc(func(ctx context.Context) error {
					a.Add(1)
					time.Sleep(500 * time.Millisecond)
					return nil
				})},
				{Name: "B", Routine: quick(&b)},
			}, service.WithObserver(rec.observer()))

			// when
			seq.Run(t.Context())

			// then
			require.Equal(t, []string{"started:A", "ended:A", "skipped:B", "done:"}, rec.kinds())
			require.InDelta(t, float64(90*time.Second), float64(rec.events[2].remaining), float64(time.Second))
			require.EqualValues(t, 1, a.Load())
			require.Zero(t, b.Load())
			require.False(t, sup.IsRegistered("B"))
			require.Contains(t, rec.logs.Lines(), "[sequence] B is on cooldown for 1m 29s; skipping until next cycle")
			require.Equal(t, "[sequence] sequence done", rec.logs.Lines()[len(rec.logs.Lines())-1])

			select {
			case <-seq.Done():
			default:
				t.Fatal("Done must be closed after Run")
			}
		})
	})

	t.Run("stop during module", func(t *testing.T) {
		t.Parallel()
		synctest.Test(t, func(t *testing.T) {
			// given
			sup := service.NewSupervisor(service.WithCooldown("A", time.Minute))
			started := make(chan context.Context, 1)
			var b atomic.Int32
			var rec recorder
			seq := service.NewSequence(sup, []service.Entry{
				{Name: "A", Routine: blocking(started)},
				{Name: "B", Routine: quick(&b)},
			}, service.WithObserver(rec.observer()))

			// when
			seq.Start(t.Context())
			ctx := <-started
			time.Sleep(time.Second)
			seq.Stop()
			<-seq.Done()

			// then
			require.Error(t, ctx.Err())
			require.False(t, sup.IsRunning("A"))
			require.Equal(t, time.Minute, sup.CooldownRemaining("A"))
			require.Zero(t, b.Load())
			require.False(t, sup.IsRegistered("B"))
			require.Equal(t, []string{"started:A", "ended:A", "done:"}, rec.kinds())
			require.Contains(t, rec.logs.Lines(), "[sequence] stop requested; ending sequence")

			// stopping twice is harmless
			seq.Stop()
		})
	})

	t.Run("prepare before every module", func(t *testing.T) {
		t.Parallel()
		synctest.Test(t, func(t *testing.T) {
			sup := service.NewSupervisor()
			var a, b atomic.Int32
			var prep countingPreparer
			var rec recorder
			entries := []service.Entry{
				{Name: "A", Routine: quick(&a)},
				{Name: "B", Routine: quick(&b)},
			}

			service.NewSequence(sup, entries,
				service.WithObserver(rec.observer()),
				service.WithPreparer(&prep),
				service.WithPollInterval(50*time.Millisecond),
			).Run(t.Context())
			// the second cycle reuses the registered modules
			service.NewSequence(sup, entries, service.WithPreparer(&prep)).Run(t.Context())

			require.EqualValues(t, 4, prep.calls.Load())
			require.EqualValues(t, 2, a.Load())
			require.EqualValues(t, 2, b.Load())
			require.Equal(t, []string{
				"[init] initiation complete",
				"[sequence] started A",
				"[sequence] A ended",
				"[init] initiation complete",
				"[sequence] started B",
				"[sequence] B ended",
				"[sequence] sequence done",
			}, rec.logs.Lines())
		})
	})

	t.Run("failing module does not break the sequence", func(t *testing.T) {
		t.Parallel()
		synctest.Test(t, func(t *testing.T) {
			var sink lines
			sup := service.NewSupervisor()
			var b atomic.Int32
			var rec recorder
			service.NewSequence(sup, []service.Entry{
				{Name: "A", Routine: service.RoutineFunc(func(context.Context) error { panic("window lost") }), Sink: sink.Print},
				{Name: "B", Routine: quick(&b)},
			}, service.WithObserver(rec.observer())).Run(t.Context())

			require.Equal(t, []string{"started:A", "ended:A", "started:B", "ended:B", "done:"}, rec.kinds())
			require.EqualValues(t, 1, b.Load())
			require.Equal(t, []string{"[module:A] exception: module A panicked: window lost"}, sink.Lines())
		})
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		synctest.Test(t, func(t *testing.T) {
			sup := service.NewSupervisor()
			var a atomic.Int32
			var rec recorder
			ctx, cancel := context.WithCancel(t.Context())
			cancel()
			service.NewSequence(sup, []service.Entry{
				{Name: "A", Routine: quick(&a)},
			}, service.WithObserver(rec.observer())).Run(ctx)

			require.Zero(t, a.Load())
			require.Equal(t, []string{"done:"}, rec.kinds())
		})
	})
}
