package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/log"
)

const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultStopTimeout  = 5 * time.Second
)

// Entry is a module run by a Sequence. The module is registered on first
// use.
type Entry struct {
	Name    string
	Routine Runnable
	Sink    log.Sink
}

// Observer receives sequence lifecycle events. Nil callbacks are skipped.
// Callbacks run on the sequence goroutine.
type Observer struct {
	ModuleStarted func(name string)
	ModuleEnded   func(name string)
	ModuleSkipped func(name string, remaining time.Duration)
	SequenceDone  func()
	Log           func(msg string)
}

// Preparer readies the environment before each module. window.Preparer
// implements it.
type Preparer interface {
	Prepare(ctx context.Context, sink log.Sink)
}

type SequenceOption func(*Sequence)

func WithObserver(o Observer) SequenceOption {
	return func(s *Sequence) {
		s.observer = o
	}
}

func WithPreparer(p Preparer) SequenceOption {
	return func(s *Sequence) {
		s.preparer = p
	}
}

func WithPollInterval(d time.Duration) SequenceOption {
	return func(s *Sequence) {
		if d > 0 {
			s.poll = d
		}
	}
}

func WithStopTimeout(d time.Duration) SequenceOption {
	return func(s *Sequence) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// Sequence runs modules one after another on a Supervisor. A Sequence runs
// once; create a new one for every cycle.
type Sequence struct {
	sup         *Supervisor
	entries     []Entry
	observer    Observer
	preparer    Preparer
	poll        time.Duration
	stopTimeout time.Duration

	mx       sync.Mutex
	active   string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func NewSequence(sup *Supervisor, entries []Entry, opts ...SequenceOption) *Sequence {
	s := &Sequence{
		sup:         sup,
		entries:     append([]Entry(nil), entries...),
		poll:        DefaultPollInterval,
		stopTimeout: DefaultStopTimeout,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sequence in a new goroutine. Use Done to wait for it.
func (s *Sequence) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Done is closed once Run has returned.
func (s *Sequence) Done() <-chan struct{} {
	return s.done
}

// Stop requests cancellation and stops the active module, if any. It does
// not wait for Run to return.
func (s *Sequence) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.mx.Lock()
	active := s.active
	s.mx.Unlock()
	if active != "" {
		s.sup.Stop(active, s.stopTimeout)
	}
}

// Run processes every entry in order and reports SequenceDone at the end,
// also when cancelled.
func (s *Sequence) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer s.doneOnce.Do(func() {
		close(s.done)
	})

	for _, e := range s.entries {
		if ctx.Err() != nil {
			s.logf("stop requested; ending sequence")
			break
		}
		s.runEntry(ctx, e)
	}
	s.logf("sequence done")
	if s.observer.SequenceDone != nil {
		s.observer.SequenceDone()
	}
}

func (s *Sequence) runEntry(ctx context.Context, e Entry) {
	if remaining := s.sup.CooldownRemaining(e.Name); remaining > 0 {
		s.logf("%s is on cooldown for %s; skipping until next cycle", e.Name, formatRemaining(remaining))
		if s.observer.ModuleSkipped != nil {
			s.observer.ModuleSkipped(e.Name, remaining)
		}
		return
	}

	if s.preparer != nil {
		s.preparer.Prepare(ctx, s.observer.Log)
	}

	if !s.sup.IsRegistered(e.Name) {
		if err := s.sup.Register(e.Name, e.Routine, e.Sink); err != nil {
			s.logf("cannot register %s: %v", e.Name, err)
			return
		}
	}
	if err := s.sup.Start(ctx, e.Name); err != nil {
		s.logf("cannot start %s: %v", e.Name, err)
		return
	}
	s.setActive(e.Name)
	s.logf("started %s", e.Name)
	if s.observer.ModuleStarted != nil {
		s.observer.ModuleStarted(e.Name)
	}

	s.await(ctx, e.Name)

	s.sup.Stop(e.Name, s.stopTimeout)
	s.sup.MarkCompleted(ctx, e.Name)
	s.setActive("")
	s.logf("%s ended", e.Name)
	if s.observer.ModuleEnded != nil {
		s.observer.ModuleEnded(e.Name)
	}
}

// await polls until the module stops running or ctx is done.
func (s *Sequence) await(ctx context.Context, name string) {
	t := time.NewTicker(s.poll)
	defer t.Stop()
	for s.sup.IsRunning(name) {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Sequence) setActive(name string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.active = name
}

func (s *Sequence) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Debug("sequence event", "event", msg)
	log.Sink(s.observer.Log).Print("[sequence] " + msg)
}

// formatRemaining renders d as "XmYs" with whole seconds.
func formatRemaining(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
