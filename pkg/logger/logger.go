// Package logger provides the structured logger used across the framework.
// It wraps zerolog so that components receive an explicit logger value
// instead of mutating a process-wide logging primitive.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig configures a Logger instance.
type LoggingConfig struct {
	Level  string // debug, info, warn, error (default info)
	Format string // json or console (default json)
	Output io.Writer
}

// Logger is a leveled, component-tagged structured logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger from the given configuration.
func New(cfg LoggingConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewDefault creates an info-level JSON logger tagged with a component name.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{}).WithComponent(component)
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns a copy of the logger tagged with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithField returns a copy of the logger with an extra field attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// LogRequest logs a completed HTTP request with its trace ID from context.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	l.zl.Info().
		Str("trace_id", TraceIDFromContext(ctx)).
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration).
		Msg("request completed")
}

// Zerolog exposes the underlying zerolog logger for callers that need
// the full event API.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}
