// Package spinner renders a single-line progress spinner for long CLI runs.
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

const interval = 80 * time.Millisecond

// Spinner animates a message on one terminal line until stopped.
type Spinner struct {
	w        io.Writer
	mu       sync.Mutex
	message  string
	width    int // widest line drawn so far
	done     chan struct{}
	cleared  chan struct{}
	stopOnce sync.Once
}

// Start displays an animated spinner with the given message on w.
// Call Stop to halt it and clear the line.
func Start(w io.Writer, message string) *Spinner {
	s := &Spinner{
		w:       w,
		message: message,
		done:    make(chan struct{}),
		cleared: make(chan struct{}),
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
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.done:
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width)) //nolint:errcheck
			s.mu.Unlock()
			close(s.cleared)
			return
		case <-ticker.C:
			s.draw(frames[i%len(frames)])
		}
	}
}

func (s *Spinner) draw(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := frame + " " + s.message
	lw := runewidth.StringWidth(line)
	pad := ""
	if lw < s.width {
		// Blank out the tail of a longer previous message.
		pad = strings.Repeat(" ", s.width-lw)
	}
	s.width = max(s.width, lw)
	fmt.Fprintf(s.w, "\r%s%s", line, pad) //nolint:errcheck
}
