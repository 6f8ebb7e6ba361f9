// Package logging wraps a process-wide zap logger.
//
// Logging is silent unless a level is given on the command line or through
// BLESCAN_LOG_LEVEL. Console output for humans goes through util.Line; this
// package is for the structured diagnostic log (app.log by default).
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"blescan/internal/hexdump"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// Valid values: "debug", "info", "warn", "error".
const LogLevelEnvVar = "BLESCAN_LOG_LEVEL"

// DefaultLogFile is where structured logs go when no path is given.
const DefaultLogFile = "app.log"

// Initialize builds the global logger. An empty level falls back to
// BLESCAN_LOG_LEVEL; if that is empty too, logging is disabled. An empty
// path writes to DefaultLogFile; "-" writes to stderr.
func Initialize(level, path string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		logger.Store(zap.NewNop())
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
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

	if path == "" {
		path = DefaultLogFile
	}
	if path == "-" {
		path = "stderr"
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Store(l)
	return nil
}

// GetLogger returns the global logger, a no-op logger before Initialize.
func GetLogger() *zap.Logger {
	return logger.Load()
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// maxRawBytes caps the payload rendered by LogRawBytes.
const maxRawBytes = 256

// LogRawBytes logs a payload as hex and ASCII at debug level. Payloads over
// maxRawBytes are cut; length always reports the full size.
func LogRawBytes(label string, data []byte) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	length := len(data)
	truncated := length > maxRawBytes
	if truncated {
		data = data[:maxRawBytes]
	}
	Debug(label,
		zap.Int("length", length),
		zap.Bool("truncated", truncated),
		zap.String("hex", hexdump.Spaced(data)),
		zap.String("ascii", hexdump.ASCII(data)),
	)
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = logger.Load().Sync()
}
