/**
 * @description
 * Structured logger for the Stockscope backend.
 * Info messages go to stdout and errors to stderr so container log collectors label them correctly.
 *
 * @dependencies
 * - go.uber.org/zap
 */

package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base *zap.SugaredLogger
)

func init() {
	base = build("production")
}

// Configure rebuilds the process logger for the given environment
// ("development" switches to the human-readable console encoder with debug level).
func Configure(env string) {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = build(env)
}

// ConfigureCLI sends every entry at or above level to stderr so command output on
// stdout stays clean.
func ConfigureCLI(level zapcore.Level) {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = zap.New(core).Sugar()
}

// SetForTest replaces the process logger and returns a restore func.
func SetForTest(l *zap.Logger) func() {
	mu.Lock()
	prev := base
	base = l.Sugar()
	mu.Unlock()
	return func() {
		mu.Lock()
		base = prev
		mu.Unlock()
	}
}

// L returns the underlying zap logger, e.g. for components that want typed fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Desugar()
}

func build(env string) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	level := zapcore.InfoLevel
	encoder := zapcore.NewJSONEncoder(encCfg)
	if env == "development" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
		level = zapcore.DebugLevel
	}

	stdout := zapcore.Lock(os.Stdout)
	stderr := zapcore.Lock(os.Stderr)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stdout, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= level && l < zapcore.ErrorLevel
		})),
		zapcore.NewCore(encoder, stderr, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel
		})),
	)
	return zap.New(core).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	current().Debug(fmt.Sprintf(format, v...))
}

// Info logs an info message to stdout
func Info(format string, v ...interface{}) {
	current().Info(fmt.Sprintf(format, v...))
}

// Warn logs a warning to stdout
func Warn(format string, v ...interface{}) {
	current().Warn(fmt.Sprintf(format, v...))
}

// Error logs an error message to stderr
func Error(format string, v ...interface{}) {
	current().Error(fmt.Sprintf(format, v...))
}

// Fatal logs an error and exits
func Fatal(format string, v ...interface{}) {
	current().Fatal(fmt.Sprintf(format, v...))
}

// Sync flushes buffered log entries
func Sync() {
	_ = current().Sync()
}
