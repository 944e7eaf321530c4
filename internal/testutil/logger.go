// Package testutil holds helpers shared by the ladder's tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// NopLogger returns a logger that discards all output
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// LogEntry is one decoded JSON log line
type LogEntry map[string]any

// Level returns the entry's level name, e.g. "WARN"
func (e LogEntry) Level() string {
	s, _ := e[slog.LevelKey].(string)
	return s
}

// Message returns the entry's message
func (e LogEntry) Message() string {
	s, _ := e[slog.MessageKey].(string)
	return s
}

// LogCapture records everything written by a logger from CaptureLogger.
// It is safe for use from request handlers running on other goroutines.
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Entries decodes every line logged so far. Lines that are not JSON are skipped.
func (c *LogCapture) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(c.buf.String()), "\n") {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Find returns the first entry with the given message
func (c *LogCapture) Find(msg string) (LogEntry, bool) {
	for _, entry := range c.Entries() {
		if entry.Message() == msg {
			return entry, true
		}
	}
	return nil, false
}

// CaptureLogger returns a debug-level JSON logger and the capture it writes to
func CaptureLogger() (*slog.Logger, *LogCapture) {
	capture := &LogCapture{}
	logger := slog.New(slog.NewJSONHandler(capture, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, capture
}
