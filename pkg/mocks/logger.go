package mocks

import (
	"fmt"
	"sync"

	"github.com/user/framelab/pkg/ports"
)

// LogEntry is one message captured by Logger.
type LogEntry struct {
	Level     ports.LogLevel
	Component string
	Message   string
}

// Logger is a ports.Logger that keeps every message for assertions.
type Logger struct {
	mu        *sync.Mutex
	entries   *[]LogEntry
	component string
}

// NewLogger creates an empty recording logger.
func NewLogger() *Logger {
	return &Logger{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.add(ports.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.add(ports.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.add(ports.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.add(ports.LevelError, msg, args) }

// WithComponent returns a logger sharing the same entry list.
func (l *Logger) WithComponent(component string) ports.Logger {
	return &Logger{mu: l.mu, entries: l.entries, component: component}
}

func (l *Logger) add(level ports.LogLevel, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, LogEntry{Level: level, Component: l.component, Message: fmt.Sprintf(msg, args...)})
}

// Entries returns the captured messages at or above level.
func (l *Logger) Entries(level ports.LogLevel) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range *l.entries {
		if e.Level >= level {
			out = append(out, e)
		}
	}
	return out
}

var _ ports.Logger = (*Logger)(nil)
