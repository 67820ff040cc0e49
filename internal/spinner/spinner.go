// Package spinner draws a single-line progress indicator on a terminal.
package spinner

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const defaultInterval = 80 * time.Millisecond

// Spinner animates a message until stopped. The message can be replaced
// while it runs.
type Spinner struct {
	w        io.Writer
	interval time.Duration

	mu      sync.Mutex
	message string

	done     chan struct{}
	cleared  chan struct{}
	stopOnce sync.Once
}

// Start displays an animated spinner with the given message on w.
// Call Stop to halt it and clear the line.
func Start(w io.Writer, message string) *Spinner {
	return start(w, message, defaultInterval)
}

func start(w io.Writer, message string, interval time.Duration) *Spinner {
	s := &Spinner{
		w:        w,
		interval: interval,
		message:  message,
		done:     make(chan struct{}),
		cleared:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// Update replaces the message shown next to the spinner.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and blanks the line. It is safe to call more
// than once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.cleared
}

func (s *Spinner) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// widest line drawn so far; shorter messages are padded over it
	width := 0
	for i := 0; ; i++ {
		select {
		case <-s.done:
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", width)) //nolint:errcheck
			close(s.cleared)
			return
		case <-ticker.C:
			s.mu.Lock()
			line := frames[i%len(frames)] + " " + s.message
			s.mu.Unlock()
			width = max(width, runewidth.StringWidth(line))
			fmt.Fprintf(s.w, "\r%s", runewidth.FillRight(line, width)) //nolint:errcheck
		}
	}
}
