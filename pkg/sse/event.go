// Package sse implements the two directions of the chatwire frame codec:
// a Reader that parses upstream Server-Sent Events into Events, and the
// frame encoder that writes the canonical "id/event/data" protocol frames.
//
// Parsing follows the WHATWG event stream rules:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event represents a single parsed SSE event, delimited by a blank line
// in the upstream byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

// Done is the OpenAI-compatible sentinel data payload that ends a stream.
const Done = "[DONE]"

// IsDone reports whether the event is the end-of-stream sentinel.
func (e *Event) IsDone() bool {
	return e != nil && e.Data == Done
}
