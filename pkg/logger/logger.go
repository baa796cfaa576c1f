// Package logger configures the process-wide slog default used by every
// service. All components log through slog.Default(), tagged with a
// component attribute, so one Init call at startup decides level and
// output encoding for the whole binary.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type requestIDKey struct{}

// Init installs the default slog handler. format "json" selects the
// JSON handler (the production default); anything else gets the text
// handler for readable local output.
func Init(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Component returns the default logger tagged with a component name,
// the attribute every service's log lines carry.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// WithRequestID stores a request id in ctx for FromContext to pick up.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// FromContext returns the default logger, tagged with the request id
// carried in ctx when one is present.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		l = l.With("request_id", id)
	}
	return l
}
