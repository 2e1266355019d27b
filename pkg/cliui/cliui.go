// Package cliui provides terminal helpers for chatwire commands: step
// spinners, key/value listings and markdown rendering.
package cliui

import (
	"fmt"
	"io"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	StepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	spinnerInterval = 80 * time.Millisecond
	markdownWidth   = 80
)

var (
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
)

// spinner redraws one line of w until stopped. Only its goroutine writes to
// w while it runs.
type spinner struct {
	w    io.Writer
	msg  string
	stop chan struct{}
	done chan struct{}
}

func startSpinner(w io.Writer, msg string) *spinner {
	s := &spinner{
		w:    w,
		msg:  msg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *spinner) run() {
	defer close(s.done)

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		frame := spinnerStyle.Render(spinnerFrames[i%len(spinnerFrames)])
		fmt.Fprintf(s.w, "\r  %s %s", frame, s.msg)

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// finish stops the animation and waits until the last frame is written.
func (s *spinner) finish() {
	close(s.stop)
	<-s.done
}

// Step runs fn behind a spinner, then rewrites the line with a mark for its
// result and the time it took.
func Step(w io.Writer, msg string, fn func() error) error {
	s := startSpinner(w, msg)

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	s.finish()

	fmt.Fprintf(w, "\r  %s %s %s\n", Mark(err), msg,
		StepStyle.Render("("+FormatDuration(elapsed)+")"))
	return err
}

// Mark returns ✓ for a nil error and ✗ otherwise.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration renders d as "12ms" below a second and "3.2s" above.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// KeyValue renders "key = value" with the key highlighted. Empty values
// render as a dimmed placeholder.
func KeyValue(key, value string) string {
	v := ValueStyle.Render(value)
	if value == "" {
		v = DimStyle.Render("(unset)")
	}
	return KeyStyle.Render(key) + " = " + v
}

// RenderMarkdown renders content for the terminal with glamour. On failure
// it returns content unchanged along with the error.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(markdownWidth),
	)
	if err != nil {
		return content, err
	}

	out, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return out, nil
}
