package diskmap

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with diskmap-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithPath adds the store path to the logger.
func (l *Logger) WithPath(path string) *Logger {
	if path == "" {
		path = ":memory:"
	}
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithMap adds a map name field to the logger.
func (l *Logger) WithMap(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("map", name),
	}
}

// LogOpen logs opening or creating a store.
func (l *Logger) LogOpen(ctx context.Context, size uint64, maps int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "store opened",
		"size", size,
		"maps", maps,
	)
}

// LogMapCreate logs the creation of a new index.
func (l *Logger) LogMapCreate(ctx context.Context, name string, h Header, err error) {
	if err != nil {
		l.ErrorContext(ctx, "map create failed",
			"map", name,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "map created",
		"map", name,
		"header", h.Position,
		"strategy", h.Strategy.String(),
		"load_factor", h.LoadFactor,
	)
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(ctx context.Context, size uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"size", size,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "commit completed",
		"size", size,
		"duration", duration,
	)
}

// LogClose logs closing a store.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.WarnContext(ctx, "close completed with errors",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "store closed")
}

// LogBackup logs a backup or restore.
func (l *Logger) LogBackup(ctx context.Context, op, name string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, op+" completed",
		"name", name,
		"bytes", bytes,
	)
}
