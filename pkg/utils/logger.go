package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// ParseLogLevel converts a config string into a LogLevel, defaulting to info
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "fatal":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// LogFormat represents the log output format
type LogFormat int

const (
	LogFormatText LogFormat = iota
	LogFormatJSON
)

// ParseLogFormat converts a config string into a LogFormat
func ParseLogFormat(s string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return LogFormatJSON
	}
	return LogFormatText
}

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})

	SetLevel(level LogLevel)
	SetOutput(w io.Writer)

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level       LogLevel
	Format      LogFormat
	Output      io.Writer
	FilePath    string // also write to this file when set
	EnableColor bool
}

// DefaultLoggerConfig returns a default logger configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       LogLevelInfo,
		Format:      LogFormatText,
		Output:      os.Stderr,
		EnableColor: true,
	}
}

// PatcherLogger adapts a logrus entry to the Logger interface
type PatcherLogger struct {
	base  *logrus.Logger
	entry *logrus.Entry
	file  *os.File
}

// NewLogger creates a new logger with the given configuration
func NewLogger(config *LoggerConfig) (*PatcherLogger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	base := logrus.New()
	base.SetLevel(config.Level.logrus())

	if config.Format == LogFormatJSON {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006/01/02 15:04:05",
			DisableColors:   !config.EnableColor,
		})
	}

	logger := &PatcherLogger{base: base, entry: logrus.NewEntry(base)}

	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.file = file
		output = io.MultiWriter(output, file)
	}
	base.SetOutput(output)

	return logger, nil
}

// Debug logs a debug message
func (l *PatcherLogger) Debug(msg string, args ...interface{}) {
	l.entry.Debugf(msg, args...)
}

// Info logs an info message
func (l *PatcherLogger) Info(msg string, args ...interface{}) {
	l.entry.Infof(msg, args...)
}

// Warn logs a warning message
func (l *PatcherLogger) Warn(msg string, args ...interface{}) {
	l.entry.Warnf(msg, args...)
}

// Error logs an error message
func (l *PatcherLogger) Error(msg string, args ...interface{}) {
	l.entry.Errorf(msg, args...)
}

// Fatal logs a fatal message and exits
func (l *PatcherLogger) Fatal(msg string, args ...interface{}) {
	l.entry.Fatalf(msg, args...)
}

// SetLevel sets the logging level
func (l *PatcherLogger) SetLevel(level LogLevel) {
	l.base.SetLevel(level.logrus())
}

// SetOutput sets the output writer
func (l *PatcherLogger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// WithField returns a logger with an additional field
func (l *PatcherLogger) WithField(key string, value interface{}) Logger {
	return &PatcherLogger{base: l.base, entry: l.entry.WithField(key, value), file: l.file}
}

// WithFields returns a logger with additional fields
func (l *PatcherLogger) WithFields(fields map[string]interface{}) Logger {
	return &PatcherLogger{base: l.base, entry: l.entry.WithFields(logrus.Fields(fields)), file: l.file}
}

// Close closes the logger and any open files
func (l *PatcherLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// NopLogger returns a logger that discards everything. Useful in tests.
func NopLogger() Logger {
	logger, _ := NewLogger(&LoggerConfig{Level: LogLevelError, Output: io.Discard})
	return logger
}

// Global logger instance
var globalLogger Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(config *LoggerConfig) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() Logger {
	if globalLogger == nil {
		logger, _ := NewLogger(DefaultLoggerConfig())
		globalLogger = logger
	}
	return globalLogger
}
