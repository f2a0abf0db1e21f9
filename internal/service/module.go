package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/CZERTAINLY/Sortie/internal/log"
)

var ErrUnknownModule = errors.New("unknown module")

// DuplicateModuleError is returned by Register when the name is taken.
type DuplicateModuleError struct {
	Name string
}

func (e *DuplicateModuleError) Error() string {
	return fmt.Sprintf("module %q already registered", e.Name)
}

// PanicError wraps a value recovered from a panicking routine.
type PanicError struct {
	Module string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("module %s panicked: %v", e.Module, e.Value)
}

// Runnable is a module routine. It must return soon after ctx is done.
type Runnable interface {
	Run(ctx context.Context) error
}

// LogRunnable is implemented by routines which want the log sink of their
// module. The Supervisor prefers RunLogged over Run when both exist.
type LogRunnable interface {
	Runnable
	RunLogged(ctx context.Context, sink log.Sink) error
}

// RoutineFunc adapts a plain function to a Runnable.
type RoutineFunc func(ctx context.Context) error

func (f RoutineFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// LoggedRoutineFunc adapts a function accepting a sink to a LogRunnable.
type LoggedRoutineFunc func(ctx context.Context, sink log.Sink) error

func (f LoggedRoutineFunc) Run(ctx context.Context) error {
	return f(ctx, nil)
}

func (f LoggedRoutineFunc) RunLogged(ctx context.Context, sink log.Sink) error {
	return f(ctx, sink)
}
