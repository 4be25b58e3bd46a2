// Package logger provides structured logging setup for ragmesh.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/ragmesh/ragmesh/internal/config"
)

// asyncBufferSize is the channel capacity used when async logging is on.
const asyncBufferSize = 1024

// New creates a *slog.Logger from the given Logging config, plus a Closer
// that flushes buffered records. Output is JSON to stdout with a "service"
// attribute on every record. With cfg.Async set, records pass through a
// background worker; the Closer must run before process exit or trailing
// records are lost. Without it the Closer is a no-op.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	closer := Closer(nopCloser{})
	if cfg.Async {
		ah := NewAsyncHandler(handler, asyncBufferSize, 1)
		handler = ah
		closer = ah
	}

	return slog.New(handler).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
