package logger

import (
	"context"
	"log/slog"
)

// contextKey is the type for logger context keys
type contextKey string

const loggerKey contextKey = "logger"

// WithLogger stores a logger in the context. The lifecycle commands use this
// to hand their configured logger down to the supervisor and config watcher.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves a logger from the context, or returns the global
// logger if the context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return Get()
}
