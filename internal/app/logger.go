package app

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger interface for app layer
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// levelLogger writes to stderr, filtering below the configured level
type levelLogger struct {
	output io.Writer
	level  int
}

// NewLogger creates a stderr logger filtering below the given level
// (one of "debug", "info", "warn", "error"; unknown means info).
func NewLogger(level string) Logger {
	return &levelLogger{output: os.Stderr, level: parseLevel(level)}
}

func parseLevel(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (l *levelLogger) Debug(format string, args ...interface{}) {
	if l.level <= levelDebug {
		fmt.Fprintf(l.output, "DEBUG: "+format+"\n", args...)
	}
}

func (l *levelLogger) Info(format string, args ...interface{}) {
	if l.level <= levelInfo {
		fmt.Fprintf(l.output, "INFO: "+format+"\n", args...)
	}
}

func (l *levelLogger) Warn(format string, args ...interface{}) {
	if l.level <= levelWarn {
		fmt.Fprintf(l.output, "WARN: "+format+"\n", args...)
	}
}

func (l *levelLogger) Error(format string, args ...interface{}) {
	if l.level <= levelError {
		fmt.Fprintf(l.output, "ERROR: "+format+"\n", args...)
	}
}

// globalLogger is the logger instance used by app layer
var globalLogger Logger = &levelLogger{output: os.Stderr, level: levelInfo}

// SetLogger sets the global logger for app layer
func SetLogger(logger Logger) {
	if logger != nil {
		globalLogger = logger
	}
}

// GetLogger returns the current logger
func GetLogger() Logger {
	return globalLogger
}
