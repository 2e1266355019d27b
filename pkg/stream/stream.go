// Package stream is the protocol stream adapter: it pulls chunks from a
// Source one at a time, runs them through a Transformer with a shared
// stream context, and yields wire frames while dispatching callbacks.
package stream

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/logger"
	"github.com/papercomputeco/chatwire/pkg/protocol"
	"github.com/papercomputeco/chatwire/pkg/streamctx"
	"github.com/papercomputeco/chatwire/pkg/transformer"
)

// pendingFrame is an encoded frame waiting to be returned, with the event it
// encodes so callbacks fire as the frame leaves the stream.
type pendingFrame struct {
	frame []byte
	event protocol.Event
}

// Stream normalizes one upstream chunk stream into protocol frames.
//
// A Stream pulls at most one chunk ahead of its consumer and is not safe for
// concurrent use. Cancelling ctx or calling Close stops pulling, closes the
// source and suppresses any further callbacks.
type Stream struct {
	ctx    context.Context
	src    chunk.Source
	t      transformer.Transformer
	sc     *streamctx.Context
	cb     Callbacks
	logger *slog.Logger

	stopWatch func() bool

	pending []pendingFrame
	readBuf []byte

	started  bool
	done     bool
	closed   bool
	released bool
	err      error

	model       string
	chunks      int
	frames      int
	startedAt   time.Time
	completedAt time.Time
}

// New creates a Stream reading from src and transforming with t.
func New(ctx context.Context, src chunk.Source, t transformer.Transformer, opts ...Option) *Stream {
	s := &Stream{
		ctx:    ctx,
		src:    src,
		t:      t,
		sc:     streamctx.New(""),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Interrupt a Next blocked on the upstream when ctx is cancelled.
	s.stopWatch = context.AfterFunc(ctx, func() {
		_ = src.Close()
	})

	return s
}

// Next returns the next wire frame. It returns nil, nil once the source is
// exhausted, the terminating error after a failure, and ErrStreamClosed (or
// the context error) after Close or cancellation.
func (s *Stream) Next() ([]byte, error) {
	for {
		if s.closed {
			return nil, s.closedErr()
		}

		if err := s.ctx.Err(); err != nil {
			s.cancel()
			return nil, err
		}

		if len(s.pending) > 0 {
			p := s.pending[0]
			s.pending = s.pending[1:]
			s.dispatch(p.event)
			return p.frame, nil
		}

		if s.err != nil {
			return nil, s.err
		}

		if s.done {
			return nil, nil
		}

		s.pull()
	}
}

// Read implements io.Reader over the frame stream, so a Stream can be
// copied straight into a response body.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.readBuf) == 0 {
		frame, err := s.Next()
		if err != nil {
			return 0, err
		}
		if frame == nil {
			return 0, io.EOF
		}
		s.readBuf = frame
	}

	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

// Frames returns an iterator over the remaining frames. Breaking out of the
// loop closes the stream.
func (s *Stream) Frames() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			frame, err := s.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if frame == nil {
				return
			}
			if !yield(frame, nil) {
				_ = s.Close()
				return
			}
		}
	}
}

// Close stops the stream and closes the source. Pending frames are
// discarded and no further callbacks fire.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	s.readBuf = nil
	return s.release()
}

// Completion returns the aggregate of everything returned so far.
func (s *Stream) Completion() llm.Completion {
	c := llm.Completion{
		ID:           s.sc.ID,
		Model:        s.model,
		Family:       s.t.Name(),
		Text:         s.sc.Text(),
		ToolCalls:    s.sc.ToolCalls(),
		FinishReason: s.sc.FinishReason(),
		Chunks:       s.chunks,
		Frames:       s.frames,
		Complete:     s.done && s.err == nil,
		StartedAt:    s.startedAt,
		CompletedAt:  s.completedAt,
	}
	if s.sc.Usage != nil {
		u := *s.sc.Usage
		c.Usage = &u
	}
	if s.err != nil {
		c.Error = s.err.Error()
	}
	return c
}

// pull reads one chunk and queues its frames.
func (s *Stream) pull() {
	c, err := s.src.Next(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			s.cancel()
			return
		}
		s.fail(&UpstreamError{Err: err})
		return
	}

	if c == nil {
		s.finish()
		return
	}

	if !s.started {
		s.started = true
		s.startedAt = time.Now()
		if s.cb.OnStart != nil {
			s.cb.OnStart()
		}
	}

	s.chunks++
	if s.sc.ID == "" {
		s.sc.ID = c.ID
	}
	if c.Model != "" {
		s.model = c.Model
	}

	events, err := s.transform(c)
	if err != nil {
		s.fail(&TransformError{ChunkID: c.ID, Err: err})
		return
	}
	if len(events) == 0 {
		s.logger.Debug("chunk produced no events", "chunk_id", c.ID, "family", s.t.Name())
	}

	pending := make([]pendingFrame, 0, len(events))
	for _, e := range events {
		frame, err := e.Frame()
		if err != nil {
			s.fail(&TransformError{ChunkID: c.ID, Err: err})
			return
		}
		pending = append(pending, pendingFrame{frame: frame, event: e})
	}
	s.pending = append(s.pending, pending...)
}

// transform runs the transformer, turning a panic on garbage input into an
// error so it terminates only this stream.
func (s *Stream) transform(c *chunk.Chunk) (events []protocol.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: transformer panic: %v", chunk.ErrMalformedChunk, r)
		}
	}()
	return s.t.Transform(c, s.sc)
}

// dispatch updates the aggregate for an outgoing event and fires its callback.
func (s *Stream) dispatch(e protocol.Event) {
	s.frames++

	switch e.Type {
	case protocol.EventText:
		text, _ := e.Data.(string)
		s.sc.AppendText(text)
		if s.cb.OnText != nil {
			s.cb.OnText(text)
		}

	case protocol.EventToolCalls:
		frames, _ := e.Data.([]protocol.ToolCallFrame)
		for _, f := range frames {
			if f.ID == "" {
				s.logger.Debug("tool call fragment without a bound id",
					"chunk_id", e.ID,
					"index", f.Index,
				)
			}
		}
		s.sc.Accumulate(frames)
		if s.cb.OnToolsCalling != nil {
			s.cb.OnToolsCalling(ToolsCallingPayload{ToolsCalling: s.sc.ToolCalls()})
		}

	case protocol.EventStop:
		reason, _ := e.Data.(string)
		s.sc.SetFinishReason(reason)
		if reason == "tool_calls" {
			s.sc.Finalize()
		}
		if s.cb.OnCompletion != nil {
			s.cb.OnCompletion()
		}

	case protocol.EventUsage:
		usage, ok := e.Data.(llm.Usage)
		if !ok {
			return
		}
		s.sc.RecordUsage(usage)
		if s.cb.OnUsage != nil {
			s.cb.OnUsage(usage)
		}
	}
}

func (s *Stream) finish() {
	s.done = true
	s.sc.Finalize()
	s.completedAt = time.Now()
	if err := s.release(); err != nil {
		s.logger.Debug("closing exhausted source", "error", err)
	}
}

func (s *Stream) fail(err error) {
	s.err = err
	s.completedAt = time.Now()
	s.logger.Error("stream terminated", "stream_id", s.sc.ID, "family", s.t.Name(), "error", err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
	_ = s.release()
}

func (s *Stream) cancel() {
	s.closed = true
	s.pending = nil
	s.readBuf = nil
	if s.completedAt.IsZero() {
		s.completedAt = time.Now()
	}
	_ = s.release()
}

func (s *Stream) closedErr() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return ErrStreamClosed
}

// release closes the source exactly once.
func (s *Stream) release() error {
	if s.released {
		return nil
	}
	s.released = true
	s.stopWatch()
	return s.src.Close()
}
