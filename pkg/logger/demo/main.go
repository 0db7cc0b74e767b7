package main

import (
	"log/slog"

	"github.com/soundprediction/recall/pkg/logger"
)

func main() {
	// Create a colored logger
	log := logger.NewDefaultLogger(slog.LevelDebug)

	log.Info("============================================")
	log.Info("    Recall Colored Logger Demo")
	log.Info("============================================")
	log.Info("")

	log.Debug("Debug message - cyan level")
	log.Info("Info message - green level")
	log.Warn("Warning message - yellow level")
	log.Error("Error message - red level")

	log.Info("")
	log.Info("Attributes render as key=value pairs:")
	log.Info("retrieval served", "tier", "graph", "retrieved", 18, "returned", 5)
	log.Info("entry ingested", "entry_id", "pref-7", "type", "preference")
	log.Warn("semantic backend degraded", "fallback", "keyword")
	log.Error("graph backend unavailable", "error", "connection refused")

	log.Info("")
	log.Info("Demo complete!")
}
