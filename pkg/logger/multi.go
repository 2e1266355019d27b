package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanout dispatches each record to every handler that accepts its level.
type fanout []slog.Handler

// Multi returns a logger that writes every record through each of loggers,
// e.g. pretty console output alongside a JSON log file. Nil loggers are
// skipped.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	var f fanout
	for _, l := range loggers {
		if l != nil {
			f = append(f, l.Handler())
		}
	}
	return slog.New(f)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle gives every handler its own copy of r and reports all failures, so
// one broken sink does not starve the others.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) derive(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
