// Package logger provides logging implementations for Coffer
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cofferdb/coffer/pkg/interfaces"
)

// Logger wraps a logrus entry to implement interfaces.Logger
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger writing structured output to stdout.
// Level is one of "debug", "info", "warn", "error"; unknown values
// default to info.
func NewLogger(level string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(parseLevel(level))
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewTextLogger creates a logger with human-readable output for CLI use
func NewTextLogger(level string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(parseLevel(level))
	return &Logger{entry: logrus.NewEntry(l)}
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Debug logs debug level messages
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.withFields(fields...).Debug(msg)
}

// Info logs info level messages
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.withFields(fields...).Info(msg)
}

// Warn logs warning level messages
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.withFields(fields...).Warn(msg)
}

// Error logs error level messages
func (l *Logger) Error(msg string, err error, fields ...map[string]interface{}) {
	entry := l.withFields(fields...)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

// Fatal logs fatal level messages and exits
func (l *Logger) Fatal(msg string, err error, fields ...map[string]interface{}) {
	entry := l.withFields(fields...)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Fatal(msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) interfaces.Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *Logger) withFields(fields ...map[string]interface{}) *logrus.Entry {
	entry := l.entry
	for _, fieldMap := range fields {
		entry = entry.WithFields(logrus.Fields(fieldMap))
	}
	return entry
}
