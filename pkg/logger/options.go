package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithJSON switches to slog's JSON handler.
func WithJSON(on bool) Option {
	return toggleFormat(formatJSON, on)
}

// WithPretty switches to the colorized charmbracelet/log handler.
func WithPretty(on bool) Option {
	return toggleFormat(formatPretty, on)
}

// toggleFormat selects f when on, and falls back to text when turning off
// the format currently selected. The last enabled format wins.
func toggleFormat(f format, on bool) Option {
	return func(c *config) {
		switch {
		case on:
			c.format = f
		case c.format == f:
			c.format = formatText
		}
	}
}

// WithWriter sets the destination. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.w = w
		}
	}
}

// WithSource adds the caller's file:line to every record.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
