package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// Environment variables read when no level or format is given.
// An unset level means silent logging.
const (
	LogLevelEnvVar  = "EASYFIRE_LOG_LEVEL"
	LogFormatEnvVar = "EASYFIRE_LOG_FORMAT" // "console" (default) or "json"
)

// controlBitBytes is how many leading Control bytes LogControlBits renders
const controlBitBytes = 5

// Initialize sets up logging to stdout. An empty level falls back to
// EASYFIRE_LOG_LEVEL and then to silence.
func Initialize(level string) error {
	return InitializeTo(level, "stdout")
}

// InitializeTo is Initialize with an explicit zap output path ("stderr" or a file).
func InitializeTo(level string, output string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	l, err := buildConfig(ParseLevel(level), output, os.Getenv(LogFormatEnvVar)).Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

func buildConfig(level zapcore.Level, output, format string) zap.Config {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder

	encoding := "console"
	if format == "json" {
		// Structured output for journald and log shippers
		encoding = "json"
		enc = zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	} else if output == "stdout" || output == "stderr" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// ParseLevel maps a level name to a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil || l < zapcore.DebugLevel || l > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return l
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to silent logger if not initialized
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogConnection logs a connection event
func LogConnection(remoteAddr string, event string) {
	Info("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogHTTPRequest logs an HTTP request
func LogHTTPRequest(remoteAddr string, method string, path string, status int) {
	Debug("HTTP request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", status),
	)
}

// LogFrame logs the per-frame diagnostic line
func LogFrame(kind string, counter uint8, length int, received, computed uint8) {
	fields := []zap.Field{
		zap.String("mode", kind),
		zap.Uint8("counter", counter),
		zap.Int("length", length),
		zap.String("checksum", fmt.Sprintf("0x%02x", received)),
		zap.String("computed", fmt.Sprintf("0x%02x", computed)),
	}
	if received != computed {
		Warn("Frame checksum mismatch", fields...)
		return
	}
	Debug("Frame received", fields...)
}

// LogDesync logs a discarded partial frame
func LogDesync(state string, got byte, total uint64) {
	Debug("Framing desync",
		zap.String("state", state),
		zap.String("byte", fmt.Sprintf("0x%02x", got)),
		zap.Uint64("desyncs_total", total),
	)
}

// LogControlBits logs the leading Control bytes most significant bit first
func LogControlBits(payload []byte) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	n := min(len(payload), controlBitBytes)
	bits := make([]string, n)
	for i := 0; i < n; i++ {
		bits[i] = fmt.Sprintf("%08b", payload[i])
	}
	Debug("Control bits", zap.Strings("bytes", bits))
}

// LogRawBytes logs up to rawDumpLimit bytes as hex and printable ASCII
func LogRawBytes(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

// LogCapture logs a full capture buffer in hex, without the 256-byte cap
func LogCapture(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hex.EncodeToString(data)),
	)
}

const rawDumpLimit = 256

func hexDump(data []byte) string {
	if len(data) > rawDumpLimit {
		return hex.EncodeToString(data[:rawDumpLimit]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	out := make([]byte, min(len(data), rawDumpLimit))
	for i := range out {
		out[i] = '.'
		if b := data[i]; b >= 32 && b <= 126 {
			out[i] = b
		}
	}
	return string(out)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
