package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const (
	initialBufferSize = 64 * 1024
	maxLineSize       = 1024 * 1024

	bom = "\ufeff"
)

// Reader pulls upstream SSE events one at a time. It buffers a single event,
// so a consumer that stops calling Next stops reading the upstream body.
type Reader struct {
	lines *bufio.Scanner
	first bool

	// Fields of the event under construction.
	data    []string
	typ     string
	id      string
	pending bool
}

// NewReader returns a Reader that parses events from src.
func NewReader(src io.Reader) *Reader {
	lines := bufio.NewScanner(src)
	lines.Buffer(make([]byte, initialBufferSize), maxLineSize)
	lines.Split(scanLines)

	return &Reader{lines: lines, first: true}
}

// Next blocks until a complete event has been read and returns it. It returns
// nil, nil at the end of src. A final event without its blank-line
// terminator is still returned.
func (r *Reader) Next() (*Event, error) {
	for r.lines.Scan() {
		line := r.lines.Text()
		if r.first {
			line = strings.TrimPrefix(line, bom)
			r.first = false
		}

		switch {
		case line == "":
			if ev := r.dispatch(); ev != nil {
				return ev, nil
			}
		case line[0] == ':':
			// comment
		default:
			r.field(line)
		}
	}

	if err := r.lines.Err(); err != nil {
		return nil, err
	}
	return r.dispatch(), nil
}

// scanLines splits on CRLF, LF or a bare CR. A CR at the end of the buffered
// data waits for the next byte so a CRLF split across reads is one ending.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	i := bytes.IndexAny(data, "\r\n")
	switch {
	case i < 0:
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	case data[i] == '\n':
		return i + 1, data[:i], nil
	case i+1 < len(data):
		if data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	case atEOF:
		return i + 1, data[:i], nil
	}
	return 0, nil, nil
}

// field applies one "name: value" line. The single space after the colon is
// optional; a line without a colon is a name with an empty value.
func (r *Reader) field(line string) {
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch name {
	case "data":
		r.data = append(r.data, value)
	case "event":
		r.typ = value
	case "id":
		if strings.ContainsRune(value, 0) {
			return
		}
		r.id = value
	default:
		// retry and unknown fields
		return
	}
	r.pending = true
}

// dispatch returns the event under construction and starts a new one, or
// nil when no field has been seen since the last dispatch.
func (r *Reader) dispatch() *Event {
	if !r.pending {
		return nil
	}

	ev := &Event{
		Type: r.typ,
		Data: strings.Join(r.data, "\n"),
		ID:   r.id,
	}
	r.data, r.typ, r.id, r.pending = nil, "", "", false
	return ev
}
