package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fivetwenty-io/cloudcore/pkg/cloudcore"
)

// StderrLogger writes leveled log lines with sorted fields.
type StderrLogger struct {
	mu    sync.Mutex
	out   io.Writer
	debug bool
}

// NewStderrLogger creates a logger writing to out. Debug lines are dropped
// unless debug is set.
func NewStderrLogger(out io.Writer, debug bool) *StderrLogger {
	return &StderrLogger{out: out, debug: debug}
}

var _ cloudcore.Logger = (*StderrLogger)(nil)

func (l *StderrLogger) Debug(msg string, fields map[string]interface{}) {
	if l.debug {
		l.write("DEBUG", msg, fields)
	}
}

func (l *StderrLogger) Info(msg string, fields map[string]interface{}) {
	l.write("INFO", msg, fields)
}

func (l *StderrLogger) Warn(msg string, fields map[string]interface{}) {
	l.write("WARN", msg, fields)
}

func (l *StderrLogger) Error(msg string, fields map[string]interface{}) {
	l.write("ERROR", msg, fields)
}

func (l *StderrLogger) write(level, msg string, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var line strings.Builder

	_, _ = fmt.Fprintf(&line, "[%s] %s", level, msg)

	for _, key := range keys {
		_, _ = fmt.Fprintf(&line, " %s=%v", key, fields[key])
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintln(l.out, line.String())
}
