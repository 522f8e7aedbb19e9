// Package progress renders a terminal spinner for operations of unknown
// length. Output goes to stderr so stdout stays clean for pipes and --json.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// NoProgressEnv disables spinners when set to "1".
const NoProgressEnv = "ROSTER_NO_PROGRESS"

var frames = []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}

// Spinner animates a label until stopped.
type Spinner struct {
	Label    string
	Enabled  bool
	Interval time.Duration

	out     io.Writer
	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewSpinner creates a spinner writing to stderr, enabled only on a terminal.
func NewSpinner(label string) *Spinner {
	return NewSpinnerTo(os.Stderr, label, shouldEnable())
}

// NewSpinnerTo creates a spinner writing to w.
func NewSpinnerTo(w io.Writer, label string, enabled bool) *Spinner {
	return &Spinner{Label: label, Enabled: enabled, Interval: 80 * time.Millisecond, out: w}
}

// Start begins the animation. Starting a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Enabled || s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})

	go s.animate(s.done)
}

func (s *Spinner) animate(done chan struct{}) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.running {
				fmt.Fprintf(s.out, "\r\033[K%c %s", frames[i%len(frames)], s.Label)
			}
			s.mu.Unlock()
		}
	}
}

// Update changes the label while running.
func (s *Spinner) Update(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Label = label
}

// Stop ends the animation and prints result on a clean line.
func (s *Spinner) Stop(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	fmt.Fprintf(s.out, "\r\033[K✓ %s\n", result)
}

func shouldEnable() bool {
	if os.Getenv(NoProgressEnv) == "1" {
		return false
	}
	stat, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
