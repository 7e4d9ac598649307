// Package eventlog writes the append-only event log.
//
// Each entry is one line: "[<RFC3339 timestamp>] <LEVEL> <message>".
// The file is only ever appended to.
package eventlog

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sweeney/home-bms/internal/logic"
)

// Hook is called for every recorded entry, after it has been buffered.
type Hook func(logic.LogEntry)

// Logger buffers entries and writes them to the log file on Flush.
// It is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	dst     io.Writer
	w       *bufio.Writer
	closer  io.Closer
	hooks   []Hook
	failing bool
}

// Open opens (or creates) the log file at path for appending.
func Open(path string, hooks ...Hook) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	l := New(f, hooks...)
	l.closer = f
	return l, nil
}

// New creates a Logger writing to w.
func New(w io.Writer, hooks ...Hook) *Logger {
	return &Logger{dst: w, w: bufio.NewWriter(w), hooks: hooks}
}

// Format renders an entry as a log line without the trailing newline.
func Format(e logic.LogEntry) string {
	return fmt.Sprintf("[%s] %s %s", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
}

// Record appends an entry and runs the hooks.
func (l *Logger) Record(e logic.LogEntry) {
	l.mu.Lock()
	_, err := l.w.WriteString(Format(e) + "\n")
	l.noteErr(err)
	hooks := l.hooks
	l.mu.Unlock()

	for _, h := range hooks {
		h(e)
	}
}

// Flush writes buffered entries to the file.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.w.Flush()
	l.noteErr(err)
	if err != nil {
		// bufio keeps failing after one error; start over with an empty buffer
		l.w.Reset(l.dst)
	}
	return err
}

// Close flushes and closes the file.
func (l *Logger) Close() error {
	err := l.Flush()
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// noteErr logs the first write failure of a run of failures. Caller holds mu.
func (l *Logger) noteErr(err error) {
	switch {
	case err != nil && !l.failing:
		log.Printf("event log write error: %v", err)
		l.failing = true
	case err == nil && l.failing:
		log.Printf("event log write recovered")
		l.failing = false
	}
}
