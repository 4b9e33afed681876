package logger_test

import (
	"log/slog"

	"github.com/soundprediction/evidential/pkg/logger"
)

func ExampleNewDefaultLogger() {
	log := logger.NewDefaultLogger(slog.LevelDebug)

	log.Debug("This is a debug message")
	log.Info("This is an info message")
	log.Info("Persisting evidence labels") // Will be green in terminal
	log.Warn("This is a warning message")  // Will be yellow in terminal
	log.Error("This is an error message")  // Will be red in terminal
}

func ExampleNewDefaultLogger_structured() {
	log := logger.NewDefaultLogger(slog.LevelInfo)

	log.Info("Starting training pass", "epoch", 3, "steps", 512)
	log.Info("Promoted evidence labels", "count", 2000, "budget", 2000) // Green
	log.Warn("Validation metric dropped", "exact_match", 0.31)          // Yellow
	log.Error("Model service call failed", "error", "timeout")          // Red
}
