package stream

import (
	"log/slog"

	"github.com/papercomputeco/chatwire/pkg/llm"
)

// ToolsCallingPayload is handed to OnToolsCalling: the running aggregate of
// every tool call seen so far, ordered by index.
type ToolsCallingPayload struct {
	ToolsCalling []llm.ToolCall `json:"toolsCalling"`
}

// Callbacks are invoked synchronously, in frame order, as frames are
// returned from the stream. Every field is optional.
type Callbacks struct {
	// OnStart fires once, when the first chunk is pulled.
	OnStart func()

	// OnText fires once per text frame with that frame's text.
	OnText func(text string)

	// OnToolsCalling fires once per tool_calls frame with a snapshot of the
	// aggregate. The snapshot may be kept or modified freely.
	OnToolsCalling func(payload ToolsCallingPayload)

	// OnCompletion fires once per stop frame.
	OnCompletion func()

	// OnUsage fires once per usage frame.
	OnUsage func(usage llm.Usage)

	// OnError fires once when the source or transformer fails.
	OnError func(err error)
}

// Option configures a Stream.
type Option func(*Stream)

// WithCallbacks sets the callbacks dispatched as frames are produced.
func WithCallbacks(cb Callbacks) Option {
	return func(s *Stream) {
		s.cb = cb
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		s.logger = l
	}
}

// WithID sets the stream id instead of taking it from the first chunk.
// Families whose chunks carry no id (Ollama) frame with it.
func WithID(id string) Option {
	return func(s *Stream) {
		s.sc.ID = id
	}
}
