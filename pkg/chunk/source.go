package chunk

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/papercomputeco/chatwire/pkg/sse"
)

// Source yields raw chunks one at a time, in arrival order.
//
// Next returns nil, nil once the upstream is exhausted. Close releases the
// upstream. It must be idempotent and safe to call concurrently with a
// blocked Next, which is how cancellation interrupts a pending read.
type Source interface {
	Next(ctx context.Context) (*Chunk, error)
	Close() error
}

// sseSource reads OpenAI-compatible "data: {...}" events until [DONE].
type sseSource struct {
	body   io.ReadCloser
	reader *sse.Reader

	done      bool
	closeOnce sync.Once
	closeErr  error
}

// NewSSESource returns a Source over an SSE response body.
func NewSSESource(body io.ReadCloser) Source {
	return &sseSource{
		body:   body,
		reader: sse.NewReader(body),
	}
}

func (s *sseSource) Next(ctx context.Context) (*Chunk, error) {
	for !s.done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ev, err := s.reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading sse event: %w", err)
		}
		if ev == nil || ev.IsDone() {
			s.done = true
			break
		}

		if ev.Type == "error" {
			return nil, fmt.Errorf("%w: %s", ErrUpstreamEvent, ev.Data)
		}

		// Events without data (e.g. a bare "event: ping") carry no chunk.
		if ev.Data == "" {
			continue
		}

		return Parse([]byte(ev.Data))
	}

	return nil, nil
}

func (s *sseSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// ndjsonSource reads one JSON chunk per line, as Ollama streams.
type ndjsonSource struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
	closeErr  error
}

// NewNDJSONSource returns a Source over a newline-delimited JSON body.
func NewNDJSONSource(body io.ReadCloser) Source {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &ndjsonSource{
		body:    body,
		scanner: scanner,
	}
}

func (s *ndjsonSource) Next(ctx context.Context) (*Chunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading ndjson line: %w", err)
			}
			return nil, nil
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		return Parse(line)
	}
}

func (s *ndjsonSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// sliceSource replays already decoded chunks.
type sliceSource struct {
	mu     sync.Mutex
	chunks []*Chunk
	pos    int
	closed bool
}

// NewSliceSource returns a Source that yields the given chunks in order.
func NewSliceSource(chunks ...*Chunk) Source {
	return &sliceSource{chunks: chunks}
}

func (s *sliceSource) Next(ctx context.Context) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pos >= len(s.chunks) {
		return nil, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
