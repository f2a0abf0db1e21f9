package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Sortie/internal/log"
)

// CompletionStore persists completion times. store.Completions implements
// it.
type CompletionStore interface {
	Save(ctx context.Context, module string, t time.Time) error
	All(ctx context.Context) (map[string]time.Time, error)
}

type Supervisor struct {
	mx        sync.Mutex
	modules   map[string]*module
	cooldowns map[string]time.Duration
	completed map[string]time.Time
	now       func() time.Time
	store     CompletionStore
	wg        sync.WaitGroup
}

type module struct {
	name    string
	routine Runnable
	sink    log.Sink
	exec    *execution
}

// execution is the handle of one started routine.
type execution struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

func (e *execution) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

type Option func(*Supervisor)

// WithCooldown sets the minimal time between a completion of the module and
// its next run.
func WithCooldown(name string, d time.Duration) Option {
	return func(s *Supervisor) {
		s.cooldowns[name] = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// WithCompletions persists every MarkCompleted call.
func WithCompletions(store CompletionStore) Option {
	return func(s *Supervisor) {
		s.store = store
	}
}

func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		modules:   make(map[string]*module),
		cooldowns: make(map[string]time.Duration),
		completed: make(map[string]time.Time),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds routine to name. sink may be nil.
func (s *Supervisor) Register(name string, routine Runnable, sink log.Sink) error {
	if routine == nil {
		return fmt.Errorf("module %q: nil routine", name)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, ok := s.modules[name]; ok {
		return &DuplicateModuleError{Name: name}
	}
	s.modules[name] = &module{name: name, routine: routine, sink: sink}
	return nil
}

// SetCooldown changes the cooldown of a module. Zero disables it.
func (s *Supervisor) SetCooldown(name string, d time.Duration) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.cooldowns[name] = d
}

// Start launches the module routine in its own goroutine with a fresh
// context derived from ctx. It is a no-op while the module is running.
// Failures of the routine are reported to the module sink and never
// returned here.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	m, ok := s.modules[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	if m.exec != nil && !m.exec.finished() {
		slog.DebugContext(ctx, "module already running: ignoring start", "module", name)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &execution{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.exec = e
	runCtx = log.ContextAttrs(runCtx,
		slog.String("module", name),
		slog.String("execution_id", e.id),
	)

	s.wg.Go(func() {
		defer close(e.done)
		defer cancel()
		s.run(runCtx, m)
	})
	return nil
}

func (s *Supervisor) run(ctx context.Context, m *module) {
	defer func() {
		if r := recover(); r != nil {
			s.report(ctx, m, &PanicError{Module: m.name, Value: r, Stack: debug.Stack()})
		}
	}()

	slog.InfoContext(ctx, "module started")
	var err error
	if lr, ok := m.routine.(LogRunnable); ok {
		err = lr.RunLogged(ctx, m.sink)
	} else {
		err = m.routine.Run(ctx)
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		slog.DebugContext(ctx, "module returned after cancel", "error", err)
	default:
		s.report(ctx, m, err)
	}
	slog.InfoContext(ctx, "module ended")
}

func (s *Supervisor) report(ctx context.Context, m *module, err error) {
	slog.ErrorContext(ctx, "module failed", "error", err)
	m.sink.Printf("[module:%s] exception: %v", m.name, err)
}

// Stop cancels the module and waits up to timeout for its routine to
// return. A routine still running after timeout is abandoned. It reports
// whether the routine ended in time; unknown and idle modules report true.
func (s *Supervisor) Stop(name string, timeout time.Duration) bool {
	s.mx.Lock()
	m, ok := s.modules[name]
	if !ok || m.exec == nil {
		s.mx.Unlock()
		return true
	}
	e := m.exec
	s.mx.Unlock()

	e.cancel()
	ended := true
	if !e.finished() {
		t := time.NewTimer(max(timeout, 0))
		select {
		case <-e.done:
		case <-t.C:
			ended = false
			slog.Warn("module did not stop in time: abandoning",
				"module", name,
				"execution_id", e.id,
				"timeout", timeout.String())
		}
		t.Stop()
	}

	s.mx.Lock()
	if m.exec == e {
		m.exec = nil
	}
	s.mx.Unlock()
	return ended
}

// StartAll starts every registered module.
func (s *Supervisor) StartAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.Names() {
		if err := s.Start(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops all modules concurrently, so it takes at most timeout.
func (s *Supervisor) StopAll(timeout time.Duration) {
	var g errgroup.Group
	for _, name := range s.Names() {
		g.Go(func() error {
			s.Stop(name, timeout)
			return nil
		})
	}
	_ = g.Wait() // Stop never fails
}

// Wait blocks until every routine ever started has returned, including
// the abandoned ones.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) IsRegistered(name string) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, ok := s.modules[name]
	return ok
}

func (s *Supervisor) IsRunning(name string) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	m, ok := s.modules[name]
	return ok && m.exec != nil && !m.exec.finished()
}

// Names returns sorted names of registered modules.
func (s *Supervisor) Names() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// MarkCompleted records now as the last completion of the module. The time
// is persisted when a store is configured; store errors are only logged.
func (s *Supervisor) MarkCompleted(ctx context.Context, name string) {
	now := s.now()
	s.mx.Lock()
	s.completed[name] = now
	s.mx.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.Save(context.WithoutCancel(ctx), name, now); err != nil {
		slog.ErrorContext(ctx, "persisting completion failed", "module", name, "error", err)
	}
}

// CooldownRemaining returns how long the module must still wait. It is zero
// for modules without cooldown or which never completed.
func (s *Supervisor) CooldownRemaining(name string) time.Duration {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.remaining(name)
}

func (s *Supervisor) remaining(name string) time.Duration {
	d := s.cooldowns[name]
	last, ok := s.completed[name]
	if d <= 0 || !ok {
		return 0
	}
	return max(0, d-s.now().Sub(last))
}

// Restore loads persisted completion times. A newer in-memory time wins.
func (s *Supervisor) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	all, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("loading completions: %w", err)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	for name, t := range all {
		if cur, ok := s.completed[name]; ok && cur.After(t) {
			continue
		}
		s.completed[name] = t
	}
	slog.DebugContext(ctx, "completions restored", "modules", len(all))
	return nil
}

// Status is a snapshot of one module.
type Status struct {
	Name          string
	Registered    bool
	Running       bool
	Cooldown      time.Duration
	Remaining     time.Duration
	LastCompleted time.Time
	ExecutionID   string
}

// Status reports the state of name. Modules known only from a restored
// completion or a cooldown are reported as not registered.
func (s *Supervisor) Status(name string) Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	st := Status{
		Name:          name,
		Cooldown:      s.cooldowns[name],
		Remaining:     s.remaining(name),
		LastCompleted: s.completed[name],
	}
	if m, ok := s.modules[name]; ok {
		st.Registered = true
		if m.exec != nil {
			st.ExecutionID = m.exec.id
			st.Running = !m.exec.finished()
		}
	}
	return st
}
