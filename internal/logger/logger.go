package logger

import (
	"log/slog"
	"os"

	"knowledge-ingest-platform/internal/config"
)

var Logger *slog.Logger

// InitLogger sets up JSON structured logging on stdout. Debug mode lowers
// the level and records source locations.
func InitLogger(cfg *config.Config) {
	debug := cfg.GinMode == "debug"

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}))
	Logger.Info("Structured logging initialized", "level", level.String())
}

// Package-level helpers are nil-safe so library code can log before (or
// without) InitLogger, as in tests.

func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
