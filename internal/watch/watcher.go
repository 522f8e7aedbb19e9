// Package watch reloads the roster when the live dataset file changes on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events a single save produces.
const DefaultDebounce = 500 * time.Millisecond

// Event records one handled change of the watched file.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"` // "processed", "error"
	Error     string    `json:"error,omitempty"`
}

// Handler is called, debounced, after the watched file was created or
// written.
type Handler func(path string) error

// Status represents the current watcher status.
type Status struct {
	Running    bool   `json:"running"`
	Path       string `json:"path"`
	EventCount int    `json:"eventCount"`
}

// Watcher monitors a single file. The parent directory is watched so that the
// file may be deleted and recreated, which is how the upload workflow
// replaces it.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Handler  Handler

	mu      sync.Mutex
	events  []Event
	timer   *time.Timer
	running bool
	watcher *fsnotify.Watcher
}

// New creates a Watcher for path. A non-positive debounce uses
// DefaultDebounce.
func New(path string, debounce time.Duration, handler Handler) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		Path:     abs,
		Debounce: debounce,
		Handler:  handler,
		watcher:  fsw,
	}, nil
}

// Start watches until ctx is cancelled. The parent directory is created if
// missing.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.watcher.Close()
		return fmt.Errorf("could not create %s: %w", dir, err)
	}
	if err := w.watcher.Add(dir); err != nil {
		w.watcher.Close()
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()
	slog.Info("watching dataset", "path", w.Path, "debounce", w.Debounce)

	defer func() {
		w.mu.Lock()
		w.running = false
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("stopping watcher", "path", w.Path)
			w.watcher.Close()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if filepath.Clean(event.Name) != w.Path {
		return
	}

	op := event.Op.String()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, func() { w.process(op) })
	w.mu.Unlock()
}

func (w *Watcher) process(op string) {
	evt := Event{Time: time.Now(), Path: w.Path, Operation: op, Status: "processed"}
	if w.Handler != nil {
		if err := w.Handler(w.Path); err != nil {
			evt.Status = "error"
			evt.Error = err.Error()
			slog.Error("dataset change handler failed", "path", w.Path, "error", err)
		} else {
			slog.Info("dataset changed on disk, reloaded", "path", w.Path)
		}
	}

	w.mu.Lock()
	w.events = append(w.events, evt)
	w.mu.Unlock()
}

// GetStatus returns the current watcher status.
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Running:    w.running,
		Path:       w.Path,
		EventCount: len(w.events),
	}
}

// GetEvents returns all recorded events.
func (w *Watcher) GetEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}
