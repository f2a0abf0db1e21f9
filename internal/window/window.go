// Package window prepares the target application before a module runs:
// it dismisses blocking overlays and asks the window backend to place the
// application window. Everything here is best effort.
package window

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/input"
	"github.com/CZERTAINLY/Sortie/internal/log"
	"github.com/CZERTAINLY/Sortie/internal/screen"
)

// Manager locates and repositions the target application window.
type Manager interface {
	EnsurePlacement(ctx context.Context, reference *screen.Template) (bool, error)
}

// Dismisser closes a blocking overlay when one is visible.
type Dismisser interface {
	Dismiss(ctx context.Context, sink log.Sink) bool
}

// Closer dismisses overlays by clicking their close button.
type Closer struct {
	Locator   screen.Locator
	Actuator  input.Actuator
	Templates []screen.Template
	Threshold float64
	Attempts  int
	Pause     time.Duration
}

func NewCloser(locator screen.Locator, actuator input.Actuator, templates ...screen.Template) *Closer {
	return &Closer{
		Locator:   locator,
		Actuator:  actuator,
		Templates: templates,
		Threshold: screen.DefaultThreshold,
		Attempts:  3,
		Pause:     300 * time.Millisecond,
	}
}

// Dismiss tries every template up to Attempts times and clicks the first
// one found. It returns true when a click was performed.
func (c *Closer) Dismiss(ctx context.Context, sink log.Sink) bool {
	sink = sink.Prefixed("popup")
	if len(c.Templates) == 0 {
		sink.Print("no templates provided")
		return false
	}
	attempts := max(1, c.Attempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		for _, tpl := range c.Templates {
			at, ok, err := c.Locator.LocateOne(ctx, tpl, c.Threshold)
			if err != nil {
				sink.Printf("locate error for %s: %v", tpl, err)
				continue
			}
			if !ok {
				continue
			}
			if err := c.Actuator.Click(ctx, at); err != nil {
				sink.Printf("click failed: %v", err)
				continue
			}
			sink.Printf("clicked template %s at %s", tpl, at)
			_ = sleep(ctx, c.Pause)
			return true
		}
		if !sleep(ctx, c.Pause) {
			return false
		}
	}
	slog.DebugContext(ctx, "no overlay detected", "attempts", attempts)
	return false
}

// Placement retry defaults.
const (
	DefaultPlacementAttempts = 5
	DefaultPlacementDelay    = 800 * time.Millisecond
)

// Preparer runs the window preparation hook executed before every module of
// a sequence. Attempts below one mean a single placement attempt.
type Preparer struct {
	Manager   Manager
	Dismisser Dismisser
	Reference *screen.Template
	Attempts  int
	Delay     time.Duration
}

// Prepare dismisses overlays, places the window and dismisses overlays
// again. Failures are logged and never returned.
func (p Preparer) Prepare(ctx context.Context, sink log.Sink) {
	p.dismiss(ctx, sink)
	if p.Manager != nil {
		p.place(ctx, sink.Prefixed("init"))
	}
	p.dismiss(ctx, sink)
}

func (p Preparer) place(ctx context.Context, sink log.Sink) {
	sink.Print("starting window initiation")
	attempts := max(1, p.Attempts)
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		sink.Printf("attempt %d/%d", attempt, attempts)
		ok, err := p.Manager.EnsurePlacement(ctx, p.Reference)
		switch {
		case errors.Is(err, ErrUnsupported):
			sink.Print("window positioning not supported")
			return
		case err != nil:
			sink.Printf("window placement error: %v", err)
			slog.WarnContext(ctx, "window placement failed", "attempt", attempt, "error", err)
		case ok:
			sink.Print("initiation complete")
			return
		}
		if attempt < attempts && !sleep(ctx, p.Delay) {
			return
		}
	}
	sink.Print("failed to position the game window after retries")
}

func (p Preparer) dismiss(ctx context.Context, sink log.Sink) {
	if p.Dismisser == nil {
		return
	}
	p.Dismisser.Dismiss(ctx, sink)
}

// ErrUnsupported is returned by a Manager that cannot place windows at all.
// The preparer does not retry it.
var ErrUnsupported = errors.New("window positioning not supported")

// Unsupported is a Manager for platforms without window control.
type Unsupported struct{}

func (Unsupported) EnsurePlacement(context.Context, *screen.Template) (bool, error) {
	return false, ErrUnsupported
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
