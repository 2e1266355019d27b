// Package openai normalizes OpenAI-compatible chat-completion chunks. The
// same transformer serves vision-capable compatible families (Qwen) when
// built with WithVision.
package openai

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/protocol"
	"github.com/papercomputeco/chatwire/pkg/streamctx"
)

// Option configures a transformer built with New.
type Option func(*transformer)

// WithName overrides the family name reported by Name.
func WithName(name string) Option {
	return func(t *transformer) {
		t.name = name
	}
}

// WithVision enables rendering of multimodal content parts as text events.
func WithVision(vision bool) Option {
	return func(t *transformer) {
		t.vision = vision
	}
}

// transformer implements the Transformer interface for OpenAI-compatible chunks.
type transformer struct {
	name   string
	vision bool
}

func New(opts ...Option) *transformer {
	t := &transformer{name: "openai"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewQwen returns the DashScope compatible-mode family: OpenAI chunks plus
// vision content parts.
func NewQwen() *transformer {
	return New(WithName("qwen"), WithVision(true))
}

func (t *transformer) Name() string {
	return t.name
}

// Transform resolves a chunk in a fixed order: usage-only chunks, chunks
// without choices, tool call fragments, string content, content parts,
// finish reason, and finally the data passthrough.
func (t *transformer) Transform(c *chunk.Chunk, sc *streamctx.Context) ([]protocol.Event, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil chunk", chunk.ErrMalformedChunk)
	}

	if len(c.Choices) == 0 {
		if c.Usage != nil {
			usage := c.Usage.Aggregate()
			if sc != nil {
				sc.RecordUsage(usage)
			}
			return []protocol.Event{protocol.Usage(c.ID, usage)}, nil
		}

		raw, err := rawChunk(c)
		if err != nil {
			return nil, err
		}
		return []protocol.Event{protocol.ChunkPassthrough(c.ID, raw)}, nil
	}

	// Usage riding along with choices is kept for the aggregate only.
	if c.Usage != nil && sc != nil {
		sc.RecordUsage(c.Usage.Aggregate())
	}

	choice := c.Choices[0]
	delta := choice.Delta

	switch delta.Kind() {
	case chunk.DeltaToolCalls:
		frames := toolCallFrames(delta.ToolCalls, sc)
		return []protocol.Event{protocol.ToolCalls(c.ID, frames)}, nil

	case chunk.DeltaText:
		return []protocol.Event{protocol.Text(c.ID, delta.Content.Text)}, nil

	case chunk.DeltaParts:
		if t.vision {
			if events := partEvents(c.ID, delta.Content.Parts); len(events) > 0 {
				return events, nil
			}
		}
	}

	if choice.FinishReason != "" {
		return []protocol.Event{protocol.Stop(c.ID, choice.FinishReason)}, nil
	}

	if delta.Kind() == chunk.DeltaNullContent {
		return []protocol.Event{protocol.NullContentPassthrough(c.ID, delta.Raw)}, nil
	}

	var raw json.RawMessage
	if delta != nil {
		raw = delta.Raw
	}
	return []protocol.Event{protocol.Envelope(c.ID, choice.Index, raw)}, nil
}

// toolCallFrames builds one frame per fragment, in fragment order. The id
// comes from the context binding so continuation fragments without an id
// still correlate by index. Name and arguments are this fragment's own.
func toolCallFrames(fragments []chunk.ToolCallFragment, sc *streamctx.Context) []protocol.ToolCallFrame {
	frames := make([]protocol.ToolCallFrame, 0, len(fragments))

	for pos, f := range fragments {
		index := pos
		if f.Index != nil {
			index = *f.Index
		}

		typ := f.Type
		if typ == "" {
			typ = llm.ToolCallTypeFunction
		}

		var name *string
		arguments := ""
		if f.Function != nil {
			name = f.Function.Name
			if f.Function.Arguments != nil {
				arguments = *f.Function.Arguments
			}
		}

		id := f.ID
		if sc != nil {
			if b, ok := sc.BindToolCall(index, f.ID, name); ok {
				id = b.ID
			}
		}

		frames = append(frames, protocol.ToolCallFrame{
			Function: protocol.FunctionFrame{
				Arguments: arguments,
				Name:      name,
			},
			ID:    id,
			Index: index,
			Type:  typ,
		})
	}

	return frames
}

// partEvents renders multimodal parts: text verbatim, images as Markdown
// image references. Parts carrying neither are skipped.
func partEvents(id string, parts []chunk.ContentPart) []protocol.Event {
	var events []protocol.Event
	for _, p := range parts {
		switch {
		case p.Text != nil:
			events = append(events, protocol.Text(id, *p.Text))
		case p.Image != "":
			events = append(events, protocol.Text(id, imageMarkdown(p.Image)))
		case p.ImageURL != nil && p.ImageURL.URL != "":
			events = append(events, protocol.Text(id, imageMarkdown(p.ImageURL.URL)))
		}
	}
	return events
}

func imageMarkdown(url string) string {
	return "![image](" + url + ")"
}

func rawChunk(c *chunk.Chunk) (json.RawMessage, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding passthrough chunk: %w", err)
	}
	return raw, nil
}
