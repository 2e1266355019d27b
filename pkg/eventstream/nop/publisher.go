package nop

import (
	"context"

	"github.com/papercomputeco/chatwire/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishCompletion validates input and otherwise does nothing.
func (p *Publisher) PublishCompletion(_ context.Context, event *eventstream.CompletionEvent) error {
	if event == nil {
		return eventstream.ErrNilCompletionEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
