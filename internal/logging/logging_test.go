package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestLevelSelection(t *testing.T) {
	cases := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"WARN", slog.LevelWarn, slog.LevelInfo},
		{"warning", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"", slog.LevelInfo, slog.LevelDebug},
		{"loud", slog.LevelInfo, slog.LevelDebug},
	}
	ctx := context.Background()
	for _, tc := range cases {
		logger := NewLogger(tc.level)
		if !logger.Enabled(ctx, tc.enabled) {
			t.Fatalf("level %q should enable %v", tc.level, tc.enabled)
		}
		if logger.Enabled(ctx, tc.muted) {
			t.Fatalf("level %q should mute %v", tc.level, tc.muted)
		}
	}
}
