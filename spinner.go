package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 100 * time.Millisecond

// spinner draws a progress line on out until stopped. It must be stopped
// before anything else is written to out.
type spinner struct {
	out      io.Writer
	interval time.Duration
	style    lipgloss.Style

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func startSpinner(out io.Writer, message string) *spinner {
	s := &spinner{
		out:      out,
		interval: spinnerInterval,
		style:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run(message)
	return s
}

func (s *spinner) run(message string) {
	defer close(s.done)

	frame := 0
	startTime := time.Now()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			// Clear the line
			fmt.Fprint(s.out, "\r\033[2K")
			return
		case <-ticker.C:
			elapsed := int(time.Since(startTime).Seconds())
			line := fmt.Sprintf("%s %s %ds (ctrl+c to cancel)", spinnerFrames[frame%len(spinnerFrames)], message, elapsed)
			fmt.Fprint(s.out, "\r\033[2K"+s.style.Render(line))
			frame++
		}
	}
}

// Stop clears the progress line and waits for the goroutine to exit. It is
// safe to call more than once.
func (s *spinner) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}
