// Package chunk decodes provider streaming chat-completion chunks and exposes
// them to the engine one at a time through a Source.
package chunk

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/papercomputeco/chatwire/pkg/llm"
)

var (
	// ErrMalformedChunk is returned for payloads that are not a JSON object.
	// Well-formed chunks of an unknown shape are never rejected.
	ErrMalformedChunk = errors.New("malformed chunk")

	// ErrUpstreamEvent is returned when the upstream reports an error
	// in-band instead of a chunk.
	ErrUpstreamEvent = errors.New("upstream error event")
)

// Chunk is one incremental unit of a provider's streaming response.
// Only the fields the transformers read are typed; Raw keeps the original
// payload for passthrough and for families with their own wire shape.
type Chunk struct {
	ID      string   `json:"id"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Choice is one entry of a chunk's choices array.
type Choice struct {
	Index        int    `json:"index"`
	Delta        *Delta `json:"delta,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Usage is the OpenAI-compatible usage block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Aggregate converts the wire usage into the engine's aggregated shape.
func (u *Usage) Aggregate() llm.Usage {
	return llm.NewUsage(u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

// Parse decodes a single chunk payload.
func Parse(data []byte) (*Chunk, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedChunk)
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrMalformedChunk, parsed.Type)
	}

	if errResult := parsed.Get("error"); errResult.Exists() && !parsed.Get("choices").Exists() {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamEvent, errorMessage(errResult))
	}

	c := &Chunk{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedChunk, err)
	}
	c.Raw = append(json.RawMessage(nil), data...)
	return c, nil
}

// MarshalJSON returns the original payload when the chunk was parsed, so a
// passthrough keeps every provider-specific key.
func (c *Chunk) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	type plain Chunk
	return json.Marshal((*plain)(c))
}

// errorMessage pulls a human readable message out of the error shapes seen in
// the wild: {"error":"text"} and {"error":{"message":"text",...}}.
func errorMessage(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.String()
	}
	if msg := r.Get("message"); msg.Exists() {
		return msg.String()
	}
	return r.Raw
}
