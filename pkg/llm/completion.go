package llm

import "time"

// Completion is the fully aggregated view of one normalized stream. It is
// handed to collaborators (usage accounting, event publishing) once the
// stream has ended, errored, or been cancelled.
type Completion struct {
	// ID is the stream id (the first chunk id unless one was assigned).
	ID string `json:"id"`

	// Model reported by the upstream chunks, if any.
	Model string `json:"model,omitempty"`

	// Family is the transformer family that normalized the stream
	// (e.g. "openai", "qwen", "ollama").
	Family string `json:"family"`

	// Text is every text event concatenated in emission order.
	Text string `json:"text,omitempty"`

	// ToolCalls is the final tool call aggregate, ordered by index.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Usage is the last usage reported on the stream.
	Usage *Usage `json:"usage,omitempty"`

	// FinishReason is the last finish reason observed ("stop", "tool_calls", ...).
	FinishReason string `json:"finish_reason,omitempty"`

	// Chunks and Frames count raw chunks consumed and wire frames produced.
	Chunks int `json:"chunks"`
	Frames int `json:"frames"`

	// Complete is true when the upstream closed without error.
	Complete bool `json:"complete"`

	// Error carries the terminating error message for failed streams.
	Error string `json:"error,omitempty"`

	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}
