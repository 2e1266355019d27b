package ollama

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/protocol"
	"github.com/papercomputeco/chatwire/pkg/streamctx"
)

const defaultDoneReason = "stop"

// Option configures a transformer built with New.
type Option func(*transformer)

// WithCallIDs replaces the generator for tool call ids the provider omits.
func WithCallIDs(next func() string) Option {
	return func(t *transformer) {
		t.callID = next
	}
}

// transformer implements the Transformer interface for Ollama's native API.
type transformer struct {
	callID func() string
}

func New(opts ...Option) *transformer {
	t := &transformer{callID: newCallID}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

func (t *transformer) Name() string {
	return "ollama"
}

// Transform maps one NDJSON line. Ollama lines carry no id, so events use
// the stream id from the context.
func (t *transformer) Transform(c *chunk.Chunk, sc *streamctx.Context) ([]protocol.Event, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil chunk", chunk.ErrMalformedChunk)
	}

	var line ollamaChunk
	if err := json.Unmarshal(c.Raw, &line); err != nil {
		return nil, fmt.Errorf("%w: %w", chunk.ErrMalformedChunk, err)
	}

	id := c.ID
	if sc != nil && sc.ID != "" {
		id = sc.ID
	}

	var events []protocol.Event

	text := line.Response
	if line.Message != nil {
		text = line.Message.Content

		if len(line.Message.ToolCalls) > 0 {
			frames, err := t.toolCallFrames(line.Message.ToolCalls, sc)
			if err != nil {
				return nil, err
			}
			events = append(events, protocol.ToolCalls(id, frames))
		}
	}

	switch {
	case text != "":
		events = append(events, protocol.Text(id, text))
	case line.Message != nil && line.Message.Thinking != "":
		events = append(events, protocol.Envelope(id, 0, c.Raw))
	case !line.Done && len(events) == 0:
		// Keep one event per line even for empty keep-alive content.
		events = append(events, protocol.Text(id, ""))
	}

	if line.Done {
		reason := line.DoneReason
		if reason == "" {
			reason = defaultDoneReason
		}
		events = append(events, protocol.Stop(id, reason))

		if line.PromptEvalCount > 0 || line.EvalCount > 0 {
			usage := llm.NewUsage(line.PromptEvalCount, line.EvalCount, line.PromptEvalCount+line.EvalCount)
			if sc != nil {
				sc.RecordUsage(usage)
			}
			events = append(events, protocol.Usage(id, usage))
		}
	}

	return events, nil
}

func (t *transformer) toolCallFrames(calls []ollamaToolCall, sc *streamctx.Context) ([]protocol.ToolCallFrame, error) {
	// Calls without an index continue after those already aggregated, so
	// calls split across lines do not collide at index 0.
	offset := 0
	if sc != nil {
		offset = len(sc.ToolCalls())
	}

	frames := make([]protocol.ToolCallFrame, 0, len(calls))
	for pos, call := range calls {
		index := offset + pos
		if call.Function.Index != nil {
			index = *call.Function.Index
		}

		arguments, err := encodeArguments(call.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("%w: tool call %q arguments: %w", chunk.ErrMalformedChunk, call.Function.Name, err)
		}

		name := call.Function.Name
		id := call.ID
		// Ollama rarely sends ids. Unbound calls get one so results can be
		// matched back to the call.
		if id == "" && !isBound(sc, index) {
			id = t.callID()
		}
		if sc != nil {
			if b, ok := sc.BindToolCall(index, id, &name); ok {
				id = b.ID
			}
		}

		frames = append(frames, protocol.ToolCallFrame{
			Function: protocol.FunctionFrame{
				Arguments: arguments,
				Name:      &name,
			},
			ID:    id,
			Index: index,
			Type:  llm.ToolCallTypeFunction,
		})
	}
	return frames, nil
}

func isBound(sc *streamctx.Context, index int) bool {
	if sc == nil {
		return false
	}
	_, ok := sc.Lookup(index)
	return ok
}

// encodeArguments turns Ollama's object arguments into the compact JSON
// string the protocol carries, keeping the provider's key order. String
// arguments from compatible servers are passed through as is.
func encodeArguments(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "{}", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}
