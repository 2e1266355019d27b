// Package protocol defines the canonical events emitted on the chatwire wire
// stream. Every provider family normalizes into these five event types.
package protocol

import (
	"encoding/json"

	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/sse"
)

// EventType is the "event:" line of a frame.
type EventType string

const (
	EventText      EventType = "text"
	EventToolCalls EventType = "tool_calls"
	EventStop      EventType = "stop"
	EventUsage     EventType = "usage"
	EventData      EventType = "data"
)

// Event is one normalized protocol event. Data holds:
//
//	text       string
//	tool_calls []ToolCallFrame
//	stop       string
//	usage      llm.Usage
//	data       json.RawMessage or DeltaEnvelope
type Event struct {
	Type EventType
	ID   string
	Data any
}

// Frame encodes the event as wire bytes.
func (e Event) Frame() ([]byte, error) {
	return sse.EncodeFrame(e.ID, string(e.Type), e.Data)
}

// ToolCallFrame is the per-chunk wire view of one tool call fragment.
// Field order is part of the wire contract: function, id, index, type.
type ToolCallFrame struct {
	Function FunctionFrame `json:"function"`
	ID       string        `json:"id,omitempty"`
	Index    int           `json:"index"`
	Type     string        `json:"type"`
}

// FunctionFrame carries only what this fragment supplied. Name encodes as
// null on frames that did not carry it.
type FunctionFrame struct {
	Arguments string  `json:"arguments"`
	Name      *string `json:"name"`
}

// DeltaEnvelope wraps a delta of an unrecognized shape together with the
// chunk id and choice index it came from. A missing delta is omitted.
type DeltaEnvelope struct {
	Delta json.RawMessage `json:"delta,omitempty"`
	ID    string          `json:"id"`
	Index int             `json:"index"`
}

func Text(id, text string) Event {
	return Event{Type: EventText, ID: id, Data: text}
}

func ToolCalls(id string, frames []ToolCallFrame) Event {
	return Event{Type: EventToolCalls, ID: id, Data: frames}
}

func Stop(id, reason string) Event {
	return Event{Type: EventStop, ID: id, Data: reason}
}

func Usage(id string, usage llm.Usage) Event {
	return Event{Type: EventUsage, ID: id, Data: usage}
}

// ChunkPassthrough wraps a whole chunk that had no choices.
func ChunkPassthrough(id string, raw json.RawMessage) Event {
	return Event{Type: EventData, ID: id, Data: raw}
}

// NullContentPassthrough wraps a delta whose content was explicitly null.
func NullContentPassthrough(id string, delta json.RawMessage) Event {
	return Event{Type: EventData, ID: id, Data: delta}
}

// Envelope wraps an unrecognized delta in a DeltaEnvelope.
func Envelope(id string, index int, delta json.RawMessage) Event {
	return Event{Type: EventData, ID: id, Data: DeltaEnvelope{Delta: delta, ID: id, Index: index}}
}
