// Package session implements the state machine shared by every battle
// module: EnsureHome, Navigate, BattleLoop and ReturnHome. A Machine is
// driven by a Profile and talks to the environment only through the
// screen.Locator, input.Actuator and window.Dismisser contracts.
//
// Cancellation is cooperative. Every wait selects on the context, so a
// cancelled session leaves its current wait immediately, skips the
// remaining work and still passes through ReturnHome.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CZERTAINLY/Sortie/internal/input"
	"github.com/CZERTAINLY/Sortie/internal/log"
	"github.com/CZERTAINLY/Sortie/internal/screen"
	"github.com/CZERTAINLY/Sortie/internal/window"
)

var ErrNavigation = errors.New("navigation failed")

// Deps are the environment collaborators of a Machine. Overlay may be nil.
type Deps struct {
	Locator  screen.Locator
	Actuator input.Actuator
	Overlay  window.Dismisser
}

type Option func(*Machine)

func WithTimings(t Timings) Option {
	return func(m *Machine) {
		m.timings = t
	}
}

// WithBattleCap overrides the cap of the profile. Values <= 0 are ignored.
func WithBattleCap(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.battleCap = n
		}
	}
}

// Run describes one finished session.
type Run struct {
	ID        string    `json:"id"`
	Module    string    `json:"module"`
	Battles   int       `json:"battles"`
	Exhausted bool      `json:"exhausted"`
	Reason    string    `json:"reason,omitempty"`
	Started   time.Time `json:"started"`
	Stopped   time.Time `json:"stopped"`
}

type Machine struct {
	profile   Profile
	tpl       Templates
	deps      Deps
	timings   Timings
	battleCap int

	mx   sync.Mutex
	last Run
}

func New(profile Profile, tpl Templates, deps Deps, opts ...Option) *Machine {
	m := &Machine{
		profile:   profile,
		tpl:       tpl,
		deps:      deps,
		timings:   DefaultTimings(),
		battleCap: profile.BattleCap,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.battleCap <= 0 {
		m.battleCap = DefaultBattleCap
	}
	return m
}

func (m *Machine) Name() string {
	return m.profile.Name
}

// LastRun returns the record of the most recently finished session.
func (m *Machine) LastRun() Run {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.last
}

func (m *Machine) Run(ctx context.Context) error {
	return m.RunLogged(ctx, nil)
}

// RunLogged executes one session. Navigation failures and cancellation end
// the session early but are not returned as errors.
func (m *Machine) RunLogged(ctx context.Context, sink log.Sink) error {
	run := Run{
		ID:      uuid.NewString(),
		Module:  m.profile.Name,
		Started: time.Now(),
	}
	ctx = log.ContextAttrs(ctx,
		slog.String("module", m.profile.Name),
		slog.String("run_id", run.ID),
	)
	s := &session{
		Machine: m,
		sink:    sink.Prefixed(m.profile.Name),
		used:    screen.NewUsedPositions(),
		run:     &run,
	}

	s.exec(ctx)

	run.Stopped = time.Now()
	m.mx.Lock()
	m.last = run
	m.mx.Unlock()
	slog.InfoContext(ctx, "session finished",
		slog.Int("battles", run.Battles),
		slog.Bool("exhausted", run.Exhausted),
		slog.String("reason", run.Reason),
		slog.Duration("elapsed", run.Stopped.Sub(run.Started)),
	)
	return nil
}

// session is the state of a single RunLogged invocation.
type session struct {
	*Machine
	sink log.Sink
	used *screen.UsedPositions
	run  *Run
}

func (s *session) exec(ctx context.Context) {
	defer s.returnHome(ctx)

	s.sink.Print("starting")
	if !s.ensureHome(ctx) {
		s.stop(ctx, "could not ensure homescreen")
		return
	}
	if err := s.navigate(ctx); err != nil {
		s.stop(ctx, err.Error())
		return
	}
	s.battleLoop(ctx)
}

func (s *session) stop(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		reason = "cancelled"
	}
	s.run.Reason = reason
	s.sink.Printf("stopping: %s", reason)
}

func (s *session) ensureHome(ctx context.Context) bool {
	return s.home(ctx, s.timings.HomeBackWait, "homescreen detected")
}

// returnHome uses the same polling as ensureHome. It always runs but does
// nothing once the context is done.
func (s *session) returnHome(ctx context.Context) {
	if s.home(ctx, s.timings.ReturnBackWait, "homescreen reached") {
		return
	}
	slog.DebugContext(ctx, "return home skipped", "error", ctx.Err())
}

// home polls for the home marker until it is visible or ctx is done. A
// visible back button is clicked and an overlay is dismissed between polls.
func (s *session) home(ctx context.Context, backWait time.Duration, found string) bool {
	for ctx.Err() == nil {
		if _, ok := s.locate(ctx, s.tpl.Home); ok {
			s.sink.Print(found)
			return true
		}
		if at, ok := s.locate(ctx, s.tpl.Back); ok {
			if s.click(ctx, at, s.tpl.Back) {
				sleep(ctx, backWait)
				continue
			}
		}
		if s.dismiss(ctx) {
			sleep(ctx, s.timings.OverlayWait)
			continue
		}
		s.sink.Print("homescreen not found, retrying")
		sleep(ctx, s.timings.RetryWait)
	}
	return false
}

func (s *session) navigate(ctx context.Context) error {
	for _, tpl := range s.tpl.Navigate {
		if !s.locateAndClick(ctx, tpl, s.timings.NavigateCycles) {
			return fmt.Errorf("%w: %s", ErrNavigation, tpl)
		}
		if !sleep(ctx, s.timings.Settle) {
			return ctx.Err()
		}
	}
	return nil
}

// locateAndClick retries a single locate-click step up to cycles times. A
// dismissed overlay retries right after OverlayWait.
func (s *session) locateAndClick(ctx context.Context, tpl screen.Template, cycles int) bool {
	for cycle := 1; cycle <= cycles; cycle++ {
		if ctx.Err() != nil {
			return false
		}
		if at, ok := s.locate(ctx, tpl); ok && s.click(ctx, at, tpl) {
			return true
		}
		if s.dismiss(ctx) {
			sleep(ctx, s.timings.OverlayWait)
			continue
		}
		slog.DebugContext(ctx, "step target not found", "template", tpl.Name, "cycle", cycle)
		sleep(ctx, s.timings.StepRetryWait)
	}
	s.sink.Printf("%s not found after %d cycles", tpl, cycles)
	return false
}

// locate treats locator errors as misses.
func (s *session) locate(ctx context.Context, tpl screen.Template) (screen.Point, bool) {
	at, ok, err := s.deps.Locator.LocateOne(ctx, tpl, s.timings.Threshold)
	if err != nil {
		slog.DebugContext(ctx, "locate failed", "template", tpl.Name, "error", err)
		return screen.Point{}, false
	}
	return at, ok
}

func (s *session) click(ctx context.Context, at screen.Point, tpl screen.Template) bool {
	if err := s.deps.Actuator.Click(ctx, at); err != nil {
		s.sink.Printf("click on %s at %s failed: %v", tpl, at, err)
		return false
	}
	s.sink.Printf("clicked %s at %s", tpl, at)
	return true
}

func (s *session) dismiss(ctx context.Context) bool {
	if s.deps.Overlay == nil || ctx.Err() != nil {
		return false
	}
	return s.deps.Overlay.Dismiss(ctx, s.sink)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
