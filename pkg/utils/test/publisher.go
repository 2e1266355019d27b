package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/chatwire/pkg/eventstream"
)

// RecordingPublisher is an eventstream.Publisher that keeps every event it
// is handed. Set Err to make publishing fail.
type RecordingPublisher struct {
	Err error

	mu     sync.Mutex
	events []*eventstream.CompletionEvent
	closed bool
}

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishCompletion(_ context.Context, event *eventstream.CompletionEvent) error {
	if event == nil {
		return eventstream.ErrNilCompletionEvent
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Events returns a copy of the events published so far.
func (p *RecordingPublisher) Events() []*eventstream.CompletionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.CompletionEvent(nil), p.events...)
}

// Closed reports whether Close was called.
func (p *RecordingPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
