package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Handlers and services take a
// *slog.Logger so tests can discard output.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
