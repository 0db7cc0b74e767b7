package logger_test

import (
	"log/slog"
	"os"

	"github.com/soundprediction/recall/pkg/logger"
)

func ExampleNewDefaultLogger() {
	// Create a logger with default settings
	log := logger.NewDefaultLogger(slog.LevelDebug)

	// Log different levels
	log.Debug("This is a debug message")
	log.Info("This is an info message")   // Will be green in terminal
	log.Warn("This is a warning message") // Will be yellow in terminal
	log.Error("This is an error message") // Will be red in terminal
}

func ExampleNewColorHandler() {
	log := slog.New(logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Log with attributes
	log.Info("retrieval served", "tier", "semantic", "returned", 5)
	log.Warn("graph backend unavailable", "error", "timeout", "fallback", "keyword")
	log.Error("rule file reload failed", "path", "rules.yaml", "retry_in", "30s")
}
