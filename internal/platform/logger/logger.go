package logger

import (
	"log/slog"
	"os"
)

// New returns a structured JSON logger writing to stdout.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// NewText returns a text logger for local development.
func NewText() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
