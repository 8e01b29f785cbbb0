// Package zrlog builds the structured logger shared by every zr component.
// It fans a single slog.Logger out to a plain-text console handler and an
// optional JSON file handler via samber/slog-multi, the way dagu's own boundary layer
// wires its reporter and database writer through one shared logger.
package zrlog

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Level controls console verbosity; the file handler (Options.FilePath)
// always logs at Debug so a post-mortem read of the file never loses detail.
type Level int

const (
	LevelQuiet Level = iota
	LevelNormal
	LevelVerbose
)

// Options configures New.
type Options struct {
	Level    Level
	NoColor  bool
	FilePath string // optional; empty disables file logging
}

// New builds the process-wide logger. Callers derive per-run children with
// Logger.With("run_id", id) rather than mutating global state (§9: no
// module-level mutable state).
func New(opts Options) (*slog.Logger, func() error, error) {
	consoleLevel := slog.LevelInfo
	switch opts.Level {
	case LevelQuiet:
		consoleLevel = slog.LevelError
	case LevelVerbose:
		consoleLevel = slog.LevelDebug
	}

	consoleHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: consoleLevel,
	})

	handlers := []slog.Handler{consoleHandler}
	closer := func() error { return nil }

	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
			closer = f.Close
		}
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		fanout := make([]slog.Handler, len(handlers))
		copy(fanout, handlers)
		handler = slogmulti.Fanout(fanout...)
	}

	return slog.New(handler), closer, nil
}

// Discard returns a logger that drops everything, used by unit tests that
// don't want console noise.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
