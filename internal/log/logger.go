// Package log provides a small global logger with a configurable level.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs failures that prevent an operation from completing.
	LevelWarning              // Logs anomalies that may occur during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs request/response IO.
)

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

var (
	mu     sync.Mutex
	level  Level
	output io.Writer = os.Stderr
)

// SetLevel sets the global logging level. The default level, LevelNone,
// silences all output.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log messages from stderr to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func write(l Level, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l > level {
		return
	}
	fmt.Fprintf(output, "%s %s %s\n", time.Now().Format(time.RFC3339), labels[l], fmt.Sprintf(format, a...))
}

func Debug(format string, a ...interface{}) {
	write(LevelDebug, format, a...)
}

func Info(format string, a ...interface{}) {
	write(LevelInfo, format, a...)
}

func Warning(format string, a ...interface{}) {
	write(LevelWarning, format, a...)
}

func Error(format string, a ...interface{}) {
	write(LevelError, format, a...)
}
