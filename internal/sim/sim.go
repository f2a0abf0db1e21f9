// Package sim is an in-memory environment which implements the screen,
// input and window contracts. Templates are matched by name, clicks trigger
// scripted handlers and every action is recorded.
package sim

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/screen"
)

var ErrInjected = errors.New("injected failure")

type Kind string

const (
	KindClick Kind = "click"
	KindKey   Kind = "key"
	KindDrag  Kind = "drag"
	KindPlace Kind = "place"
)

// Action is a recorded actuator or window call. Target is the name of the
// template hit by a click, empty when the click hit nothing.
type Action struct {
	Kind   Kind
	At     screen.Point
	To     screen.Point
	Key    string
	Target string
}

// Handler reacts to an action. at is the clicked point or the drag origin.
type Handler func(e *Env, at screen.Point)

type Env struct {
	mx      sync.Mutex
	shown   map[string][]screen.Match
	clicks  map[string]Handler
	onKey   func(e *Env, key string)
	onDrag  Handler
	actions []Action
	locates map[string]int

	clickErr error
	keyErr   error
	dragErr  error
}

func New() *Env {
	return &Env{
		shown:   make(map[string][]screen.Match),
		clicks:  make(map[string]Handler),
		locates: make(map[string]int),
	}
}

// Show replaces the matches reported for the template name.
func (e *Env) Show(name string, matches ...screen.Match) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.shown[name] = slices.Clone(matches)
}

// ShowAt shows name at a single point with a perfect score.
func (e *Env) ShowAt(name string, at screen.Point) {
	e.Show(name, screen.Match{Point: at, Score: 1})
}

func (e *Env) Hide(names ...string) {
	e.mx.Lock()
	defer e.mx.Unlock()
	for _, name := range names {
		delete(e.shown, name)
	}
}

func (e *Env) Visible(name string) bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	return len(e.shown[name]) > 0
}

// OnClick registers the handler run after a click hits name.
func (e *Env) OnClick(name string, h Handler) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.clicks[name] = h
}

func (e *Env) OnKey(fn func(e *Env, key string)) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.onKey = fn
}

func (e *Env) OnDrag(h Handler) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.onDrag = h
}

// Fail makes every call of the given kind return err. A nil err restores
// normal behaviour.
func (e *Env) Fail(kind Kind, err error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	switch kind {
	case KindClick:
		e.clickErr = err
	case KindKey:
		e.keyErr = err
	case KindDrag:
		e.dragErr = err
	}
}

func (e *Env) Actions() []Action {
	e.mx.Lock()
	defer e.mx.Unlock()
	return slices.Clone(e.actions)
}

// Count returns the number of recorded actions of kind. For clicks a
// non-empty target restricts the count to clicks on that template.
func (e *Env) Count(kind Kind, target string) int {
	e.mx.Lock()
	defer e.mx.Unlock()
	n := 0
	for _, a := range e.actions {
		if a.Kind != kind {
			continue
		}
		if target != "" && a.Target != target {
			continue
		}
		n++
	}
	return n
}

func (e *Env) Locates(name string) int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.locates[name]
}

func (e *Env) LocateOne(ctx context.Context, tpl screen.Template, threshold float64) (screen.Point, bool, error) {
	if err := ctx.Err(); err != nil {
		return screen.Point{}, false, err
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	e.locates[tpl.Name]++
	var best *screen.Match
	for i, m := range e.shown[tpl.Name] {
		if m.Score < threshold {
			continue
		}
		if best == nil || m.Score > best.Score {
			best = &e.shown[tpl.Name][i]
		}
	}
	if best == nil {
		return screen.Point{}, false, nil
	}
	return best.Point, true, nil
}

func (e *Env) LocateAll(ctx context.Context, tpl screen.Template, threshold float64) ([]screen.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	e.locates[tpl.Name]++
	var out []screen.Match
	for _, m := range e.shown[tpl.Name] {
		if m.Score >= threshold {
			out = append(out, m)
		}
	}
	return out, nil
}

func (e *Env) Click(ctx context.Context, at screen.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mx.Lock()
	if e.clickErr != nil {
		err := e.clickErr
		e.mx.Unlock()
		return err
	}
	target := e.hit(at)
	e.actions = append(e.actions, Action{Kind: KindClick, At: at, Target: target})
	h := e.clicks[target]
	e.mx.Unlock()

	if h != nil {
		h(e, at)
	}
	return nil
}

func (e *Env) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mx.Lock()
	if e.keyErr != nil {
		err := e.keyErr
		e.mx.Unlock()
		return err
	}
	e.actions = append(e.actions, Action{Kind: KindKey, Key: key})
	fn := e.onKey
	e.mx.Unlock()

	if fn != nil {
		fn(e, key)
	}
	return nil
}

func (e *Env) Drag(ctx context.Context, from, to screen.Point, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mx.Lock()
	if e.dragErr != nil {
		err := e.dragErr
		e.mx.Unlock()
		return err
	}
	e.actions = append(e.actions, Action{Kind: KindDrag, At: from, To: to})
	h := e.onDrag
	e.mx.Unlock()

	if h != nil {
		h(e, from)
	}
	return nil
}

// EnsurePlacement always succeeds.
func (e *Env) EnsurePlacement(ctx context.Context, _ *screen.Template) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mx.Lock()
	defer e.mx.Unlock()
	e.actions = append(e.actions, Action{Kind: KindPlace})
	return true, nil
}

// hit returns the name of the first shown template near at. Names are
// visited in sorted order so overlapping templates always resolve the same
// way.
func (e *Env) hit(at screen.Point) string {
	names := make([]string, 0, len(e.shown))
	for name := range e.shown {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, m := range e.shown[name] {
			if screen.Near(at, m.Point, screen.Radius) {
				return name
			}
		}
	}
	return ""
}
