// Package logger provides structured logging for Dealscope.
package logger

import (
	"log/slog"
	"os"
	"sync"
)

// Logger is the logging interface used throughout the application.
// It mirrors slog's leveled API so the default implementation is a thin
// wrapper, while tests can substitute MockLogger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a logger with additional key/value attributes.
	With(args ...any) Logger

	// WithGroup returns a logger with a named attribute group.
	WithGroup(name string) Logger
}

// SlogLogger implements Logger using log/slog.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an existing slog.Logger.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

// Debug logs a debug message.
func (s *SlogLogger) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }

// Info logs an info message.
func (s *SlogLogger) Info(msg string, args ...any) { s.logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogLogger) Warn(msg string, args ...any) { s.logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogLogger) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

// With returns a new logger with additional attributes.
func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: s.logger.With(args...)}
}

// WithGroup returns a new logger with a named group.
func (s *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{logger: s.logger.WithGroup(name)}
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
)

// SetupLogger configures the global logger from CLI flags.
func SetupLogger(debug bool, format string) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	SetGlobalLogger(NewSlogLogger(slog.New(handler)))
}

// SetGlobalLogger replaces the process-global logger.
func SetGlobalLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalLogger returns the process-global logger.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug logs a debug message on the global logger.
func Debug(msg string, args ...any) { GetGlobalLogger().Debug(msg, args...) }

// Info logs an info message on the global logger.
func Info(msg string, args ...any) { GetGlobalLogger().Info(msg, args...) }

// Warn logs a warning message on the global logger.
func Warn(msg string, args ...any) { GetGlobalLogger().Warn(msg, args...) }

// Error logs an error message on the global logger.
func Error(msg string, args ...any) { GetGlobalLogger().Error(msg, args...) }

// WithStage returns a logger with stage context.
func WithStage(stage string) Logger {
	return GetGlobalLogger().With("stage", stage)
}

// WithEngagement returns a logger with engagement context.
func WithEngagement(company, industry string) Logger {
	return GetGlobalLogger().With("company", company, "industry", industry)
}
