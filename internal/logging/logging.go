// Package logging provides a levelled logger on top of the standard log package.
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Level is a logging threshold.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes prefixed lines at or above its level.
type Logger struct {
	out   *log.Logger
	level Level
}

// New creates a logger writing to w.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		out:   log.New(w, "", log.Ldate|log.Ltime),
		level: level,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, LevelError+1)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.level
}

func (l *Logger) logf(level Level, prefix, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	l.out.Output(3, prefix+strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, "DEBUG: ", format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, "INFO: ", format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, "WARN: ", format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, "ERROR: ", format, args...) }
