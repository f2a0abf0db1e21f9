package log

import (
	"context"
	"fmt"
	"log/slog"
)

// Sink receives human readable progress lines from modules. A sink may be
// asynchronous and is never assumed to be ordered with other subsystems.
type Sink func(msg string)

// Discard drops every message.
var Discard Sink = func(string) {}

// Print forwards msg to the sink. A nil sink is ignored and a panicking
// sink is swallowed.
func (s Sink) Print(msg string) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s(msg)
}

func (s Sink) Printf(format string, args ...any) {
	if s == nil {
		return
	}
	s.Print(fmt.Sprintf(format, args...))
}

// Prefixed returns a sink which prepends "[prefix] " to every message.
func (s Sink) Prefixed(prefix string) Sink {
	if s == nil {
		return nil
	}
	return func(msg string) {
		s.Print("[" + prefix + "] " + msg)
	}
}

// SlogSink returns a sink writing Info records through logger. The module
// name is attached to every record.
func SlogSink(ctx context.Context, logger *slog.Logger, module string) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return func(msg string) {
		logger.InfoContext(ctx, msg, slog.String("module", module))
	}
}

// Tee fans a message out to all non-nil sinks.
func Tee(sinks ...Sink) Sink {
	return func(msg string) {
		for _, s := range sinks {
			s.Print(msg)
		}
	}
}
