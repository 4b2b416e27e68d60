// Package logger builds the zerolog loggers used by the SpendIQ binaries and
// carries the request- or job-scoped logger through a context.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line as the "service" field.
const ServiceName = "spendiq"

// spendiqLoggerKey is unexported so that only this package can store or read
// the logger in a context.
type spendiqLoggerKey struct{}

// New returns a console logger at info level.
func New() zerolog.Logger {
	return NewWithLevel("info", false)
}

// NewWithLevel creates a logger at the given level. Unknown levels fall back to info.
// When jsonOutput is set the logger writes JSON lines instead of console output.
func NewWithLevel(level string, jsonOutput bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if !jsonOutput {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(w).Level(lvl)
}

// NewWithWriter creates a logger writing JSON lines to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("service", ServiceName).
		Caller().
		Logger()
}

// WithContext returns a copy of ctx carrying log.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, spendiqLoggerKey{}, log)
}

// FromContext returns the logger stored by WithContext, or a default console
// logger when ctx carries none.
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(spendiqLoggerKey{}).(zerolog.Logger); ok {
		return log
	}
	return New()
}
