package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process-wide logger: JSON lines on stdout, so
// the poller's output can be shipped like any other structured feed.
// Unrecognized level strings fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
