// Structured logging for the BLMC robot driver
//
// Keeps the prefix/fields style of the host logger and delegates encoding,
// level filtering and output to zap:
// - Log levels (DEBUG, INFO, WARN, ERROR)
// - Structured fields (key-value pairs)
// - Text (console) or JSON output
// - Per-component loggers with prefixes
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel parses a string into a LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	// FormatText outputs human-readable console format
	FormatText OutputFormat = iota
	// FormatJSON outputs machine-readable JSON format
	FormatJSON
)

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// sink holds the output settings shared by a logger and the loggers derived
// from it with WithPrefix.
type sink struct {
	mu       sync.Mutex
	writer   io.Writer
	level    zap.AtomicLevel
	format   OutputFormat
	colorize bool
	caller   bool
	core     zapcore.Core
}

func (s *sink) rebuild() {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if s.format == FormatJSON {
		enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		encoder = zapcore.NewJSONEncoder(enc)
	} else {
		if s.colorize {
			enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(enc)
	}
	s.core = zapcore.NewCore(encoder, zapcore.AddSync(s.writer), s.level)
}

// Logger is the main logging interface
type Logger struct {
	prefix string
	sink   *sink
	fields Fields // Persistent fields attached to this logger

	mu  sync.Mutex
	z   *zap.Logger
	gen zapcore.Core // core the cached z was built from
}

// Entry represents a single log entry with fields
type Entry struct {
	logger *Logger
	fields Fields
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// New creates a new logger with the given prefix writing text to stderr
func New(prefix string) *Logger {
	return NewWithWriter(prefix, os.Stderr, INFO, FormatText)
}

// NewWithWriter creates a logger with explicit output settings
func NewWithWriter(prefix string, w io.Writer, level LogLevel, format OutputFormat) *Logger {
	s := &sink{
		writer:   w,
		level:    zap.NewAtomicLevelAt(level.zapLevel()),
		format:   format,
		colorize: format == FormatText && os.Getenv("NO_COLOR") == "" && w == os.Stderr,
	}
	s.rebuild()
	return &Logger{prefix: prefix, sink: s}
}

// zl returns the zap logger for the current sink configuration
func (l *Logger) zl() *zap.Logger {
	l.sink.mu.Lock()
	core := l.sink.core
	caller := l.sink.caller
	l.sink.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.z == nil || l.gen != core {
		opts := []zap.Option{zap.AddCallerSkip(1)}
		if caller {
			opts = append(opts, zap.AddCaller())
		}
		z := zap.New(core, opts...)
		if l.prefix != "" {
			z = z.Named(l.prefix)
		}
		if len(l.fields) > 0 {
			z = z.With(toZap(l.fields)...)
		}
		l.z = z
		l.gen = core
	}
	return l.z
}

func (l *Logger) update(fn func(s *sink)) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	fn(l.sink)
	l.sink.rebuild()
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.sink.level.SetLevel(level.zapLevel())
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	switch l.sink.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return ERROR
	default:
		return INFO
	}
}

// SetWriter sets the output writer (e.g., for testing)
func (l *Logger) SetWriter(w io.Writer) {
	l.update(func(s *sink) { s.writer = w })
}

// SetColorize enables or disables colorized level names in text output
func (l *Logger) SetColorize(enable bool) {
	l.update(func(s *sink) { s.colorize = enable })
}

// SetFormat sets the output format (FormatText or FormatJSON)
func (l *Logger) SetFormat(format OutputFormat) {
	l.update(func(s *sink) { s.format = format })
}

// SetCaller enables or disables caller info in log output
func (l *Logger) SetCaller(enable bool) {
	l.update(func(s *sink) { s.caller = enable })
}

// Sync flushes buffered output
func (l *Logger) Sync() error {
	return l.zl().Sync()
}

// WithField returns an Entry with the given field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry with the given fields
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// WithError returns an Entry with the error field set
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", errString(err))
}

// WithPrefix returns a new logger sharing the output settings with a
// different prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, sink: l.sink, fields: l.fields}
}

// With returns a logger with persistent fields attached
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{prefix: l.prefix, sink: l.sink, fields: merged}
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.zl().Sugar().Debugf(msg, args...)
}

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.zl().Sugar().Infof(msg, args...)
}

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.zl().Sugar().Warnf(msg, args...)
}

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.zl().Sugar().Errorf(msg, args...)
}

// Entry methods - log with fields

// WithField adds a field to the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.WithFields(Fields{key: value})
}

// WithFields adds multiple fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithError adds an error field to the entry
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", errString(err))
}

// Debug logs at DEBUG level with fields
func (e *Entry) Debug(msg string) {
	e.logger.zl().Debug(msg, toZap(e.fields)...)
}

// Info logs at INFO level with fields
func (e *Entry) Info(msg string) {
	e.logger.zl().Info(msg, toZap(e.fields)...)
}

// Warn logs at WARN level with fields
func (e *Entry) Warn(msg string) {
	e.logger.zl().Warn(msg, toZap(e.fields)...)
}

// Error logs at ERROR level with fields
func (e *Entry) Error(msg string) {
	e.logger.zl().Error(msg, toZap(e.fields)...)
}

// toZap converts fields to zap fields in key order
func toZap(fields Fields) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// Package-level functions using default logger

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetLogger returns a logger with the given prefix derived from the default
// logger
func GetLogger(prefix string) *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("blmc")
		ConfigureFromEnv(defaultLogger)
	}
	return defaultLogger.WithPrefix(prefix)
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - BLMC_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - BLMC_LOG_FORMAT: text, json
//   - BLMC_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if levelStr := os.Getenv("BLMC_LOG_LEVEL"); levelStr != "" {
		l.SetLevel(ParseLevel(levelStr))
	}
	if formatStr := os.Getenv("BLMC_LOG_FORMAT"); formatStr != "" {
		switch strings.ToLower(formatStr) {
		case "json":
			l.SetFormat(FormatJSON)
		case "text":
			l.SetFormat(FormatText)
		}
	}
	if os.Getenv("BLMC_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
