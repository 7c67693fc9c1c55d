// Package logging constructs the structured loggers used across patientqa.
// Every component takes a *slog.Logger through its constructor rather than
// reaching for a package-level global, per the "process-wide singletons"
// redesign note in spec §9 — this keeps components independently
// constructible and hermetic in tests.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options controls how the root logger is built.
type Options struct {
	// Level is the minimum level that gets written out.
	Level slog.Level
	// JSON selects JSON output over slog's default text handler. Production
	// deployments should set this so log lines are machine-parseable.
	JSON bool
	// Output defaults to os.Stderr when nil.
	Output io.Writer
}

// New builds the root *slog.Logger for the application. Components derive
// their own scoped logger from it with Logger.With("component", name).
func New(opt Options) *slog.Logger {
	out := opt.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opt.Level}

	var handler slog.Handler
	if opt.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// Component returns a logger scoped to a single component name, the
// convention every package in internal/ follows when logging.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", name))
}
