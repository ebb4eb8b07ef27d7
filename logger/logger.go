// Package logger provides structured logging for the miner init layer.
//
// It wraps Go's standard log/slog with multiple output formats (text, color,
// JSON), configurable levels, and context-aware logging so that supervised
// service output and bootstrap progress land in one stream. On the device
// that stream is the init framework's log collector; on a terminal the color
// handler takes over.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Global logger instance with atomic access for thread safety
var globalLogger atomic.Pointer[slog.Logger]

// Config represents the logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, color, json
	Output io.Writer
}

// Get returns the global logger instance, initializing it with defaults if
// necessary.
func Get() *slog.Logger {
	logger := globalLogger.Load()
	if logger == nil {
		SetDefault()
		logger = globalLogger.Load()
	}
	return logger
}

// Set atomically updates the global logger.
func Set(logger *slog.Logger) {
	globalLogger.Store(logger)
}

// SetDefault initializes the global logger with default settings.
func SetDefault() {
	Set(New(Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}))
}

// New creates a new logger from the provided configuration.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	handler := createHandler(cfg.Format, parseLevel(cfg.Level), output)
	return slog.New(handler)
}

// parseLevel converts a level string to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Info logs an informational message using the global logger
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message using the global logger
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message using the global logger
func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

// Debug logs a debug message using the global logger
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}
