package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// NewContext returns ctx carrying logger. Request middleware stores a
// request-scoped logger this way.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored by NewContext, or one over the slog
// default tagged "unknown".
func FromContext(ctx context.Context) *Logger {
	if l, ok := fromContext(ctx); ok {
		return l
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

func fromContext(ctx context.Context) (*Logger, bool) {
	l, ok := ctx.Value(ctxKey{}).(*Logger)
	return l, ok && l != nil
}
