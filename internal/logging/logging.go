// Package logging wraps github.com/charmbracelet/log into the line-oriented,
// level-tagged, millisecond-timestamped logger the pipeline stages share.
// Every component takes a *Logger explicitly rather than writing through a
// package-level global, so a session's log output is tied to that session's
// lifetime like everything else it owns.
package logging

import (
	"io"
	"os"

	charm "github.com/charmbracelet/log"
)

// Logger is a thin handle around a charm log.Logger configured with the
// timestamp format and level tags this system's log lines require.
type Logger struct {
	l *charm.Logger
}

// New creates a Logger writing to w (os.Stderr if w is nil) at the given
// level ("debug", "info", "warn", "error"; unrecognized values default to
// info).
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := charm.NewWithOptions(w, charm.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
		Level:           parseLevel(level),
	})
	return &Logger{l: l}
}

func parseLevel(level string) charm.Level {
	switch level {
	case "debug":
		return charm.DebugLevel
	case "warn":
		return charm.WarnLevel
	case "error":
		return charm.ErrorLevel
	default:
		return charm.InfoLevel
	}
}

// With returns a child Logger that includes the given key/value pairs on
// every line it emits, e.g. log.With("component", "capture-video").
func (lg *Logger) With(kv ...any) *Logger {
	return &Logger{l: lg.l.With(kv...)}
}

// Debug logs at debug level.
func (lg *Logger) Debug(msg string, kv ...any) { lg.l.Debug(msg, kv...) }

// Info logs at info level.
func (lg *Logger) Info(msg string, kv ...any) { lg.l.Info(msg, kv...) }

// Warn logs at warn level.
func (lg *Logger) Warn(msg string, kv ...any) { lg.l.Warn(msg, kv...) }

// Error logs at error level.
func (lg *Logger) Error(msg string, kv ...any) { lg.l.Error(msg, kv...) }

// Discard returns a Logger that writes nowhere, for use in tests.
func Discard() *Logger {
	return New(io.Discard, "error")
}
