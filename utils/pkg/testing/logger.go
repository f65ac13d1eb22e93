package wstesting

import (
	"log/slog"
	"os"
)

// NewLogger returns a logger for tests. Output is suppressed to errors
// unless DEBUG is set: DEBUG=1 for info, DEBUG=2 for debug.
func NewLogger() *slog.Logger {
	level := slog.LevelError
	switch os.Getenv("DEBUG") {
	case "1":
		level = slog.LevelInfo
	case "2":
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
