// Package logging builds the process-wide zap logger for hearth.
// The log file receives every record at the configured level; the terminal
// only sees warnings and above so the interactive gateway stays readable.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel converts a config string into a zap level.
// Unknown strings fall back to info.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "warn", "warning", "WARN", "WARNING":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New constructs the logger. logFile may be empty, in which case everything
// goes to stderr at the configured level.
func New(level string, logFile string) (*zap.Logger, error) {
	lvl := ParseLevel(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEnc := zapcore.NewConsoleEncoder(encCfg)

	if logFile == "" {
		core := zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), lvl)
		return zap.New(core), nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), lvl)
	consoleCore := zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), zapcore.WarnLevel)

	return zap.New(zapcore.NewTee(fileCore, consoleCore)), nil
}

// Nop returns a logger that discards everything. Used by tests and as the
// default before configuration is loaded.
func Nop() *zap.Logger {
	return zap.NewNop()
}
