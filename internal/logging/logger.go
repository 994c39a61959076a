package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity level of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "warning":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger provides structured JSON logging with correlation ID support.
// The level can be changed at runtime and is shared with loggers derived via With.
type Logger struct {
	zl    zerolog.Logger
	level *atomic.Int32
}

// LoggerOption is a function that configures a Logger
type LoggerOption func(*loggerOptions)

type loggerOptions struct {
	output  io.Writer
	level   LogLevel
	service string
}

// WithOutput sets the output writer for the logger
func WithOutput(w io.Writer) LoggerOption {
	return func(o *loggerOptions) {
		o.output = w
	}
}

// WithLevel sets the minimum log level
func WithLevel(level LogLevel) LoggerOption {
	return func(o *loggerOptions) {
		o.level = level
	}
}

// WithService sets the service name for logs
func WithService(service string) LoggerOption {
	return func(o *loggerOptions) {
		o.service = service
	}
}

// NewLogger creates a new Logger with the specified options
func NewLogger(opts ...LoggerOption) *Logger {
	o := loggerOptions{
		output:  os.Stdout,
		level:   LevelInfo,
		service: "melisync",
	}
	for _, opt := range opts {
		opt(&o)
	}

	level := &atomic.Int32{}
	level.Store(int32(o.level.zerolog()))

	zl := zerolog.New(o.output).With().Timestamp().Str("service", o.service).Logger()
	return &Logger{zl: zl, level: level}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewLogger(WithOutput(io.Discard))
}

// SetLevel changes the minimum level for this logger and every logger derived from it.
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level.zerolog()))
}

// Level returns the current minimum level.
func (l *Logger) Level() LogLevel {
	switch zerolog.Level(l.level.Load()) {
	case zerolog.DebugLevel:
		return LevelDebug
	case zerolog.WarnLevel:
		return LevelWarn
	case zerolog.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// With returns a child logger that always includes the given key-value pairs.
func (l *Logger) With(fields ...interface{}) *Logger {
	correlationID, fieldMap := parseFields(fields)
	ctx := l.zl.With().Fields(fieldMap)
	if correlationID != "" {
		ctx = ctx.Str("correlation_id", correlationID)
	}
	return &Logger{zl: ctx.Logger(), level: l.level}
}

func (l *Logger) log(level zerolog.Level, message string, correlationID string, fields map[string]interface{}) {
	if level < zerolog.Level(l.level.Load()) {
		return
	}
	event := l.zl.WithLevel(level)
	if correlationID != "" {
		event = event.Str("correlation_id", correlationID)
	}
	if len(fields) > 0 {
		event = event.Fields(fields)
	}
	event.Msg(message)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	correlationID, fieldMap := parseFields(fields)
	l.log(zerolog.DebugLevel, message, correlationID, fieldMap)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...interface{}) {
	correlationID, fieldMap := parseFields(fields)
	l.log(zerolog.InfoLevel, message, correlationID, fieldMap)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	correlationID, fieldMap := parseFields(fields)
	l.log(zerolog.WarnLevel, message, correlationID, fieldMap)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	correlationID, fieldMap := parseFields(fields)
	l.log(zerolog.ErrorLevel, message, correlationID, fieldMap)
}

// DebugWithContext logs a debug message with correlation ID from context
func (l *Logger) DebugWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.log(zerolog.DebugLevel, message, GetCorrelationID(ctx), fieldMap)
}

// InfoWithContext logs an info message with correlation ID from context
func (l *Logger) InfoWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.log(zerolog.InfoLevel, message, GetCorrelationID(ctx), fieldMap)
}

// WarnWithContext logs a warning message with correlation ID from context
func (l *Logger) WarnWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.log(zerolog.WarnLevel, message, GetCorrelationID(ctx), fieldMap)
}

// ErrorWithContext logs an error message with correlation ID from context
func (l *Logger) ErrorWithContext(ctx context.Context, message string, fields ...interface{}) {
	_, fieldMap := parseFields(fields)
	l.log(zerolog.ErrorLevel, message, GetCorrelationID(ctx), fieldMap)
}

// parseFields parses variable number of key-value pairs into a map
// Expected format: key1, value1, key2, value2, ...
func parseFields(fields []interface{}) (string, map[string]interface{}) {
	correlationID := ""
	fieldMap := make(map[string]interface{})

	for i := 0; i < len(fields); i++ {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}

		if key == "correlation_id" && i+1 < len(fields) {
			if id, ok := fields[i+1].(string); ok {
				correlationID = id
			}
		} else if i+1 < len(fields) {
			fieldMap[key] = fields[i+1]
		}
		i++ // Skip the value
	}

	return correlationID, fieldMap
}
