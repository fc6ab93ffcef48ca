package rnaget

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/rnaget/model"
)

// Logger wraps slog.Logger with rnaget-specific context.
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithExpression adds an expression ID field to the logger.
func (l *Logger) WithExpression(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("expression", id),
	}
}

// WithTicket adds a ticket ID field to the logger.
func (l *Logger) WithTicket(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("ticket", id),
	}
}

// WithMatrix adds a matrix path field to the logger.
func (l *Logger) WithMatrix(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("matrix", path),
	}
}

// LogQuery logs a query request.
func (l *Logger) LogQuery(ctx context.Context, path string, format model.Format, cached bool, elapsed time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "query failed",
			"matrix", path,
			"format", format,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"matrix", path,
			"format", format,
			"cached", cached,
			"elapsed", elapsed,
		)
	}
}

// LogTicket logs a freshly materialized artifact.
func (l *Logger) LogTicket(ctx context.Context, t *Ticket) {
	l.InfoContext(ctx, "ticket issued",
		"ticket", t.ID,
		"matrix", t.Source,
		"format", t.Format,
		"bytes", t.Size,
		"expires", t.ExpiresAt,
	)
}

// LogDownload logs a download request.
func (l *Logger) LogDownload(ctx context.Context, ticketID string, err error) {
	if err != nil {
		l.WarnContext(ctx, "download failed",
			"ticket", ticketID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "download started",
			"ticket", ticketID,
		)
	}
}

// LogSweep logs an expiry sweep.
func (l *Logger) LogSweep(ctx context.Context, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sweep failed",
			"removed", removed,
			"error", err,
		)
	} else if removed > 0 {
		l.InfoContext(ctx, "sweep completed",
			"removed", removed,
		)
	}
}

// LogInvalidate logs the invalidation of a matrix.
func (l *Logger) LogInvalidate(ctx context.Context, path string, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "invalidate failed",
			"matrix", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "matrix invalidated",
			"matrix", path,
			"tickets_removed", removed,
		)
	}
}
