// Package transformer maps provider chunks onto protocol events. One
// Transformer exists per provider family and is selected once, when a stream
// is created.
package transformer

import (
	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/protocol"
	"github.com/papercomputeco/chatwire/pkg/streamctx"
)

// Transformer converts a single chunk into one or more protocol events.
type Transformer interface {
	// Name returns the canonical family name (e.g. "openai", "qwen", "ollama").
	Name() string

	// Transform maps c onto protocol events, reading and updating sc.
	// It yields at least one event for every well-formed chunk and only
	// returns an error for payloads it cannot decode at all.
	Transform(c *chunk.Chunk, sc *streamctx.Context) ([]protocol.Event, error)
}
