package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatwire/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeCompletionFinished is emitted after a normalized stream ends.
	EventTypeCompletionFinished = "chatwire.completion.finished"
)

// CompletionEvent is a transport-neutral event payload for a finished stream.
// Usage accounting consumes it downstream.
type CompletionEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	RequestMeta   RequestMeta    `json:"request_meta"`
	Completion    llm.Completion `json:"completion"`
}

// EventSource identifies which family and model produced the stream.
type EventSource struct {
	Family string `json:"family"`
	Model  string `json:"model,omitempty"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	HTTPStatus  int       `json:"http_status"`
}

// NewCompletionEvent wraps a completion in a versioned event with a fresh id.
func NewCompletionEvent(completion llm.Completion, meta RequestMeta) *CompletionEvent {
	if meta.DurationMs == 0 && !meta.StartedAt.IsZero() && !meta.CompletedAt.IsZero() {
		meta.DurationMs = meta.CompletedAt.Sub(meta.StartedAt).Milliseconds()
	}

	return &CompletionEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeCompletionFinished,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Family: completion.Family,
			Model:  completion.Model,
		},
		RequestMeta: meta,
		Completion:  completion,
	}
}

// Key is the partition key for the event: the stream id, falling back to
// the event id for streams that never reported one.
func (e *CompletionEvent) Key() string {
	if e.Completion.ID != "" {
		return e.Completion.ID
	}
	return e.EventID
}
