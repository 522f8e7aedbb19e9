// Package audit records every chat command the bot answers as one JSON line.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Entry statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Sender     string    `json:"sender"`
	Chat       string    `json:"chat,omitempty"`
	Command    string    `json:"command"`
	Args       string    `json:"args,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Logger appends entries to a JSONL file.
type Logger struct {
	FilePath string
	Enabled  bool

	mu sync.Mutex
}

// NewLogger creates a Logger. A disabled logger or an empty path makes Log a
// no-op.
func NewLogger(filePath string, enabled bool) *Logger {
	return &Logger{FilePath: filePath, Enabled: enabled}
}

// Log writes a single audit entry. Best-effort: failures never reach the
// chat path.
func (l *Logger) Log(_ context.Context, entry Entry) error {
	if l == nil || !l.Enabled || l.FilePath == "" {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Args = Redact(entry.Args)

	data, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.FilePath), 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(l.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	defer f.Close()
	_, _ = f.Write(data)
	return nil
}

// ReadEntries reads all audit entries from the log file. A missing file
// yields no entries.
func ReadEntries(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FilterEntries returns entries matching the given criteria. Zero values
// match everything.
func FilterEntries(entries []Entry, since time.Time, sender, command string) []Entry {
	var result []Entry
	for _, e := range entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if sender != "" && e.Sender != sender {
			continue
		}
		if command != "" && !strings.Contains(e.Command, command) {
			continue
		}
		result = append(result, e)
	}
	return result
}

// LogSize returns the size of the audit log in bytes, or 0 if not found.
func LogSize(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the audit log file.
func Clear(filePath string) error {
	return os.Truncate(filePath, 0)
}

// phoneLike matches digit runs long enough to be phone numbers.
var phoneLike = regexp.MustCompile(`\+?\d{7,}`)

// Redact masks phone-number-like digit runs in command arguments, keeping the
// last two digits.
func Redact(args string) string {
	return phoneLike.ReplaceAllStringFunc(args, func(m string) string {
		return "[REDACTED]" + m[len(m)-2:]
	})
}
