package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/CZERTAINLY/Sortie/internal/model"
	"github.com/CZERTAINLY/Sortie/internal/screen"
)

// Locator runs the locate helper as `<cmd> <template> <threshold>`. The
// helper prints a JSON list of matches, [{"x":1,"y":2,"score":0.9}].
type Locator struct {
	runner *Runner
	cmd    Command
}

func NewLocator(runner *Runner, cmd Command) *Locator {
	return &Locator{runner: runner, cmd: cmd}
}

func (l *Locator) LocateAll(ctx context.Context, tpl screen.Template, threshold float64) ([]screen.Match, error) {
	path := tpl.Path
	if path == "" {
		path = tpl.Name
	}
	res := l.runner.Run(ctx, l.cmd, path, strconv.FormatFloat(threshold, 'f', -1, 64))
	if res.Err != nil {
		return nil, failed(res)
	}
	out := bytes.TrimSpace(res.Stdout)
	if len(out) == 0 {
		return nil, nil
	}
	var matches []screen.Match
	if err := json.Unmarshal(out, &matches); err != nil {
		return nil, fmt.Errorf("decoding matches of %s: %w", tpl.Name, err)
	}
	return matches, nil
}

// LocateOne returns the best scoring match.
func (l *Locator) LocateOne(ctx context.Context, tpl screen.Template, threshold float64) (screen.Point, bool, error) {
	matches, err := l.LocateAll(ctx, tpl, threshold)
	if err != nil || len(matches) == 0 {
		return screen.Point{}, false, err
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			best = m
		}
	}
	return best.Point, true, nil
}

// Actuator runs the input helper as `<cmd> click X Y`, `<cmd> press KEY`
// or `<cmd> drag X0 Y0 X1 Y1 MILLIS`.
type Actuator struct {
	runner *Runner
	cmd    Command
}

func NewActuator(runner *Runner, cmd Command) *Actuator {
	return &Actuator{runner: runner, cmd: cmd}
}

func (a *Actuator) Click(ctx context.Context, at screen.Point) error {
	return a.do(ctx, "click", itoa(at.X), itoa(at.Y))
}

func (a *Actuator) PressKey(ctx context.Context, key string) error {
	return a.do(ctx, "press", key)
}

func (a *Actuator) Drag(ctx context.Context, from, to screen.Point, d time.Duration) error {
	return a.do(ctx, "drag",
		itoa(from.X), itoa(from.Y),
		itoa(to.X), itoa(to.Y),
		strconv.FormatInt(d.Milliseconds(), 10))
}

func (a *Actuator) do(ctx context.Context, args ...string) error {
	res := a.runner.Run(ctx, a.cmd, args...)
	if res.Err != nil {
		return failed(res)
	}
	return nil
}

// WindowManager runs the window helper as
// `<cmd> place TITLE WIDTH HEIGHT [TEMPLATE]`. Exit code 0 means the window
// was placed, any other exit code means it was not found.
type WindowManager struct {
	runner *Runner
	cmd    Command
	window model.Window
}

func NewWindowManager(runner *Runner, cmd Command, window model.Window) *WindowManager {
	return &WindowManager{runner: runner, cmd: cmd, window: window}
}

func (w *WindowManager) EnsurePlacement(ctx context.Context, reference *screen.Template) (bool, error) {
	args := []string{"place", w.window.Title, itoa(w.window.Width), itoa(w.window.Height)}
	if reference != nil {
		args = append(args, reference.Path)
	}
	res := w.runner.Run(ctx, w.cmd, args...)
	var exitErr *exec.ExitError
	switch {
	case res.Err == nil:
		return true, nil
	case errors.As(res.Err, &exitErr) && ctx.Err() == nil:
		return false, nil
	default:
		return false, failed(res)
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
