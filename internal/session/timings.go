package session

import (
	"time"

	"github.com/CZERTAINLY/Sortie/internal/screen"
)

// Timings holds retry budgets and wait intervals of a session. Every wait
// is a fixed interval.
type Timings struct {
	Threshold float64

	NavigateCycles int
	StartCycles    int
	ReturnCycles   int
	DragAttempts   int
	// MaxMisclicks ends the battle loop after this many consecutive failed
	// clicks on an engage candidate.
	MaxMisclicks int

	HomeBackWait   time.Duration
	ReturnBackWait time.Duration
	OverlayWait    time.Duration
	RetryWait      time.Duration
	StepRetryWait  time.Duration
	Settle         time.Duration
	RefreshWait    time.Duration
	ScrollWait     time.Duration
	AfterBattle    time.Duration
	BattlePoll     time.Duration

	ScrollKey    string
	DragFrom     screen.Point
	DragTo       screen.Point
	DragDuration time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Threshold: screen.DefaultThreshold,

		NavigateCycles: 5,
		StartCycles:    6,
		ReturnCycles:   6,
		DragAttempts:   4,
		MaxMisclicks:   3,

		HomeBackWait:   800 * time.Millisecond,
		ReturnBackWait: 600 * time.Millisecond,
		OverlayWait:    600 * time.Millisecond,
		RetryWait:      time.Second,
		StepRetryWait:  800 * time.Millisecond,
		Settle:         800 * time.Millisecond,
		RefreshWait:    time.Second,
		ScrollWait:     800 * time.Millisecond,
		AfterBattle:    time.Second,
		BattlePoll:     30 * time.Second,

		ScrollKey:    "pagedown",
		DragFrom:     screen.Point{X: 600, Y: 900},
		DragTo:       screen.Point{X: 600, Y: 450},
		DragDuration: 350 * time.Millisecond,
	}
}

// Scaled returns a copy with every wait multiplied by f. Retry budgets and
// the drag gesture are unchanged.
func (t Timings) Scaled(f float64) Timings {
	scale := func(d *time.Duration) {
		*d = time.Duration(float64(*d) * f)
	}
	for _, d := range []*time.Duration{
		&t.HomeBackWait,
		&t.ReturnBackWait,
		&t.OverlayWait,
		&t.RetryWait,
		&t.StepRetryWait,
		&t.Settle,
		&t.RefreshWait,
		&t.ScrollWait,
		&t.AfterBattle,
		&t.BattlePoll,
	} {
		scale(d)
	}
	return t
}
