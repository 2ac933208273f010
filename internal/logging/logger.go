// Package logging configures slog and carries a request-scoped logger
// through context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a level name to a slog.Level. Unknown names map to fallback.
func ParseLevel(name string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// NewHandler returns a JSON handler in prod mode and a text handler otherwise.
// An empty level selects debug in dev mode and info elsewhere.
func NewHandler(w io.Writer, mode, level string) slog.Handler {
	fallback := slog.LevelInfo
	if mode == "dev" {
		fallback = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level, fallback)}
	if mode == "prod" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup installs the default logger.
func Setup(w io.Writer, mode, level string) {
	slog.SetDefault(slog.New(NewHandler(w, mode, level)))
}

type loggerKey struct{}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// ToContext stores l in ctx.
func ToContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// With returns a context whose logger carries the given attributes.
func With(ctx context.Context, args ...any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(args...))
}
