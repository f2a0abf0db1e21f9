package sim

import (
	"sync"

	"github.com/CZERTAINLY/Sortie/internal/screen"
	"github.com/CZERTAINLY/Sortie/internal/session"
)

// PageSize is the number of opponents visible at once.
const PageSize = 4

const CloseTemplate = "CloseAd.png"

var (
	homeAt    = screen.Point{X: 640, Y: 360}
	backAt    = screen.Point{X: 40, Y: 40}
	navAt     = screen.Point{X: 1100, Y: 650}
	refreshAt = screen.Point{X: 1150, Y: 120}
	startAt   = screen.Point{X: 1100, Y: 640}
	overAt    = screen.Point{X: 640, Y: 600}
	returnAt  = screen.Point{X: 640, Y: 660}
	closeAt   = screen.Point{X: 1220, Y: 60}
)

// SlotAt is the position of the i-th opponent row.
func SlotAt(i int) screen.Point {
	return screen.Point{X: 1000, Y: 310 + 100*i}
}

// Arena scripts the screens of a battle profile: home, the navigation
// chain, a paged opponent list, the battle and its result. Every opponent
// row is reported twice with slightly shifted coordinates the way
// overlapping template windows do.
type Arena struct {
	*Env
	profile session.Profile

	mx       sync.Mutex
	pool     int
	slots    [PageSize]bool
	fighting int
	fought   int
}

// NewArena builds an arena holding opponents opponents in total. The
// refresh control exists only when the profile names one.
func NewArena(p session.Profile, opponents int) *Arena {
	a := &Arena{
		Env:      New(),
		profile:  p,
		pool:     opponents,
		fighting: -1,
	}

	for i, name := range p.Navigate {
		a.OnClick(name, func(e *Env, _ screen.Point) {
			e.Hide(p.Home, name)
			e.ShowAt(p.Back, backAt)
			if i+1 < len(p.Navigate) {
				e.ShowAt(p.Navigate[i+1], navAt)
				return
			}
			a.reveal()
			a.showList()
		})
	}
	a.OnClick(p.Back, func(*Env, screen.Point) { a.home() })
	a.OnClick(p.Engage, a.engage)
	a.OnClick(p.Start, func(e *Env, _ screen.Point) {
		e.Hide(p.Start)
		e.ShowAt(p.BattleOver, overAt)
	})
	a.OnClick(p.BattleOver, func(e *Env, _ screen.Point) {
		e.Hide(p.BattleOver)
		e.ShowAt(p.Return, returnAt)
	})
	a.OnClick(p.Return, func(e *Env, _ screen.Point) {
		e.Hide(p.Return)
		a.mx.Lock()
		if a.fighting >= 0 {
			a.slots[a.fighting] = false
			a.fighting = -1
			a.fought++
		}
		a.mx.Unlock()
		a.showList()
	})
	if p.Refresh != "" {
		a.OnClick(p.Refresh, func(*Env, screen.Point) {
			a.reveal()
			a.showList()
		})
	}
	a.OnClick(CloseTemplate, func(e *Env, _ screen.Point) {
		e.Hide(CloseTemplate)
	})
	a.OnKey(func(*Env, string) { a.scrolled() })
	a.OnDrag(func(*Env, screen.Point) { a.scrolled() })

	a.home()
	return a
}

// Popup shows an overlay which blocks nothing but must be closed.
func (a *Arena) Popup() {
	a.ShowAt(CloseTemplate, closeAt)
}

// Fought returns the number of finished battles.
func (a *Arena) Fought() int {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.fought
}

func (a *Arena) home() {
	p := a.profile
	hide := []string{p.Back, p.Engage, p.Start, p.BattleOver, p.Return, p.Refresh}
	a.Hide(append(hide, p.Navigate...)...)
	a.ShowAt(p.Home, homeAt)
	if len(p.Navigate) > 0 {
		a.ShowAt(p.Navigate[0], navAt)
	}
}

func (a *Arena) engage(e *Env, at screen.Point) {
	a.mx.Lock()
	for i, taken := range a.slots {
		if taken && screen.Near(at, SlotAt(i), screen.Radius) {
			a.fighting = i
			break
		}
	}
	a.mx.Unlock()
	e.Hide(a.profile.Engage, a.profile.Refresh)
	e.ShowAt(a.profile.Start, startAt)
}

// scrolled reveals more opponents while the list is on screen.
func (a *Arena) scrolled() {
	if !a.Visible(a.profile.Back) || a.Visible(a.profile.Start) || a.Visible(a.profile.BattleOver) {
		return
	}
	a.reveal()
	a.showList()
}

func (a *Arena) reveal() {
	a.mx.Lock()
	defer a.mx.Unlock()
	for i := range a.slots {
		if !a.slots[i] && a.pool > 0 {
			a.slots[i] = true
			a.pool--
		}
	}
}

func (a *Arena) showList() {
	a.mx.Lock()
	var matches []screen.Match
	for i, taken := range a.slots {
		if !taken {
			continue
		}
		at := SlotAt(i)
		score := 0.95 - 0.01*float64(i)
		matches = append(matches,
			screen.Match{Point: at, Score: score},
			screen.Match{Point: screen.Point{X: at.X + 3, Y: at.Y + 2}, Score: score - 0.02},
		)
	}
	a.mx.Unlock()

	if len(matches) == 0 {
		a.Hide(a.profile.Engage)
	} else {
		a.Show(a.profile.Engage, matches...)
	}
	if a.profile.Refresh != "" {
		a.ShowAt(a.profile.Refresh, refreshAt)
	}
}
