// Package logger provides logging implementations.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/user/framelab/pkg/ports"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// ConsoleLogger logs messages to the console. Every line carries the time
// since the logger was created, so frame timing can be read off the log.
// Loggers derived with WithComponent share one lock: the playback loop and the
// shell write concurrently and lines must not interleave.
type ConsoleLogger struct {
	level     ports.LogLevel
	component string
	color     bool

	out    io.Writer
	errOut io.Writer
	mu     *sync.Mutex
	start  time.Time
	now    func() time.Time
}

// NewConsole creates a console logger writing debug and info to stdout and
// warnings and errors to stderr. Color is enabled when stdout is a terminal.
func NewConsole(level ports.LogLevel) *ConsoleLogger {
	l := NewConsoleTo(level, os.Stdout, os.Stderr)
	l.color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return l
}

// NewConsoleTo creates an uncolored console logger on the given writers.
func NewConsoleTo(level ports.LogLevel, out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{
		level:  level,
		out:    out,
		errOut: errOut,
		mu:     &sync.Mutex{},
		start:  time.Now(),
		now:    time.Now,
	}
}

func (l *ConsoleLogger) Debug(msg string, args ...interface{}) {
	l.log(ports.LevelDebug, msg, args...)
}

func (l *ConsoleLogger) Info(msg string, args ...interface{}) {
	l.log(ports.LevelInfo, msg, args...)
}

func (l *ConsoleLogger) Warn(msg string, args ...interface{}) {
	l.log(ports.LevelWarn, msg, args...)
}

func (l *ConsoleLogger) Error(msg string, args ...interface{}) {
	l.log(ports.LevelError, msg, args...)
}

// WithComponent returns a logger tagged with component. Tags nest: "export"
// derived from an [orchestrator] logger logs as [orchestrator/export].
func (l *ConsoleLogger) WithComponent(component string) ports.Logger {
	child := *l
	if l.component != "" && component != "" {
		child.component = l.component + "/" + component
	} else if component != "" {
		child.component = component
	}
	return &child
}

func (l *ConsoleLogger) log(level ports.LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}
	line := l.format(level, l10n.F(msg, args...))

	w := l.out
	if level >= ports.LevelWarn {
		w = l.errOut
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(w, line)
}

func (l *ConsoleLogger) format(level ports.LogLevel, text string) string {
	elapsed := l.now().Sub(l.start).Seconds()
	stamp := fmt.Sprintf("%8.3fs", elapsed)

	if !l.color {
		tag := ""
		switch level {
		case ports.LevelWarn:
			tag = "WARN "
		case ports.LevelError:
			tag = "ERROR "
		}
		if l.component != "" {
			return fmt.Sprintf("%s %s[%s] %s", stamp, tag, l.component, text)
		}
		return fmt.Sprintf("%s %s%s", stamp, tag, text)
	}

	out := text
	if l.component != "" {
		out = fmt.Sprintf("%s[%s]%s %s", colorCyan, l.component, colorReset, text)
	}
	switch level {
	case ports.LevelDebug:
		out = colorGray + out + colorReset
	case ports.LevelWarn:
		out = colorYellow + out + colorReset
	case ports.LevelError:
		out = colorRed + out + colorReset
	}
	return colorGray + stamp + colorReset + " " + out
}
