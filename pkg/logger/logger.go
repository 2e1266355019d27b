// Package logger builds the *slog.Logger every chatwire component takes.
//
// Console output is either plain slog text, JSON for log shippers, or the
// charmbracelet/log handler when a person is watching the terminal.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type format int

const (
	formatText format = iota
	formatJSON
	formatPretty
)

type config struct {
	level  slog.Level
	format format
	source bool
	w      io.Writer
}

// New builds a logger from opts. The zero configuration writes slog text to
// stderr at Info level, leaving stdout to frames and command output.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level: slog.LevelInfo,
		w:     os.Stderr,
	}
	for _, opt := range opts {
		opt(c)
	}
	return slog.New(c.handler())
}

func (c *config) handler() slog.Handler {
	if c.format == formatPretty {
		return charmlog.NewWithOptions(c.w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportCaller:    c.source,
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})
	}

	opts := &slog.HandlerOptions{Level: c.level, AddSource: c.source}
	if c.format == formatJSON {
		return slog.NewJSONHandler(c.w, opts)
	}
	return slog.NewTextHandler(c.w, opts)
}

// Nop returns a logger that discards everything. Library code defaults to it
// so the engine stays silent unless a caller opts in.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
