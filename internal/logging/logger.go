// Package logging configures the process-wide zap logger.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar controls verbosity when no level is configured.
// Valid values: "debug", "info", "warn", "error".
const LevelEnvVar = "VBUS_LOG_LEVEL"

var logger = zap.NewNop()

// Initialize builds the global logger. An empty level falls back to
// VBUS_LOG_LEVEL; if that is empty too, logging stays silent so the JSON
// written to stdout is the only output.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

// L returns the global logger.
func L() *zap.Logger { return logger }

// Named returns a child of the global logger for one component.
func Named(name string) *zap.Logger { return logger.Named(name) }

// Sync flushes buffered log entries.
func Sync() { _ = logger.Sync() }
