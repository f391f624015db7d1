package logger

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
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
		return "INFO"
	}
}

// ParseLevel maps a level name to a Level. Unknown names fall back to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
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

// Logger is a leveled printf-style logger. Children created with Named
// share the parent's output and lock.
type Logger struct {
	level Level
	name  string
	mu    *sync.Mutex
	out   *log.Logger
}

// New returns a logger writing to stderr.
func New(level string) *Logger {
	return NewWithOutput(level, os.Stderr)
}

// NewWithOutput returns a logger writing to w.
func NewWithOutput(level string, w io.Writer) *Logger {
	flags := log.LstdFlags | log.Lshortfile | log.Lmicroseconds

	return &Logger{
		level: ParseLevel(level),
		mu:    &sync.Mutex{},
		out:   log.New(w, "", flags),
	}
}

// Named returns a child logger whose messages are tagged with name.
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.name != "" {
		child.name = l.name + "." + name
	} else {
		child.name = name
	}
	return &child
}

// Level returns the minimum level this logger emits.
func (l *Logger) Level() Level {
	return l.level
}

func (l *Logger) logf(lvl Level, format string, args ...interface{}) {
	if lvl < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if l.name != "" {
		msg = l.name + ": " + msg
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Output(3, "["+lvl.String()+"] "+msg)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(DEBUG, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(INFO, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logf(WARN, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(ERROR, format, args...)
}

// Writer returns an io.Writer that logs every line written to it at lvl.
// It lets libraries that expect a plain log output (raft, memberlist)
// share this logger.
func (l *Logger) Writer(lvl Level) io.Writer {
	return &lineWriter{logger: l, level: lvl}
}

type lineWriter struct {
	logger *Logger
	level  Level
}

func (w *lineWriter) Write(p []byte) (int, error) {
	if w.level < w.logger.level {
		return len(p), nil
	}
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		w.logger.logf(w.level, "%s", line)
	}
	return len(p), nil
}
