package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "TEMPNODE_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks TEMPNODE_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
//
// Output is human-readable console format when stdout is a terminal and
// JSON lines otherwise, so a node under a process supervisor produces
// machine-parseable logs.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := parseLevel(level)
	if err != nil {
		return err
	}

	var config zap.Config
	if term.IsTerminal(int(os.Stdout.Fd())) {
		config = zap.Config{
			Encoding:      "console",
			EncoderConfig: zap.NewDevelopmentEncoderConfig(),
		}
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.MessageKey = "message"
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.Development = false
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built

	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
}

// InitializeFromEnv initializes the logger from the TEMPNODE_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with an observer core.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
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

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogLoopStart marks the beginning of one control loop iteration.
func LogLoopStart(iteration uint64) {
	Info("Loop started", zap.Uint64("iteration", iteration))
}

// LogLoopEnd marks the end of one control loop iteration.
func LogLoopEnd(iteration uint64, path string, delay time.Duration) {
	Info("Loop finished",
		zap.Uint64("iteration", iteration),
		zap.String("path", path),
		zap.Duration("next_delay", delay),
	)
}

// LogAssociation logs a wireless association event for one candidate network.
func LogAssociation(event string, ssid string, index int) {
	Info("Association event",
		zap.String("event", event),
		zap.String("ssid", ssid),
		zap.Int("candidate", index),
	)
}

// LogPost logs the outcome of a report POST. Non-positive status codes are
// transport failures and are logged at warn level together with their text.
func LogPost(endpoint string, statusCode int, statusText string, body string) {
	fields := []zap.Field{
		zap.String("endpoint", endpoint),
		zap.Int("status_code", statusCode),
	}

	if statusCode <= 0 {
		fields = append(fields, zap.String("error", statusText))
		Warn("Report delivery failed", fields...)
		return
	}

	fields = append(fields, zap.String("response", truncate(body, 256)))
	if statusCode >= 400 {
		Warn("Report rejected by collector", fields...)
		return
	}
	Info("Report delivered", fields...)
}

// LogHTTPRequest logs one request served by the collector.
func LogHTTPRequest(remoteAddr, method, path string, statusCode, size int, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Int("bytes", size),
		zap.Duration("elapsed", elapsed),
	}
	if statusCode >= 500 {
		Error("HTTP request", fields...)
		return
	}
	Info("HTTP request", fields...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
