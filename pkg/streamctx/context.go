// Package streamctx holds the per-stream state threaded through every chunk
// transform: the index to id correlation table for tool calls, the running
// tool call aggregate, accumulated text and the last reported usage.
//
// A Context belongs to exactly one stream and is not safe for concurrent use.
package streamctx

import (
	"slices"
	"strings"

	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/protocol"
)

// Binding correlates a tool call index with the id (and name) supplied on
// the first fragment for that index.
type Binding struct {
	ID   string
	Name *string
}

// State is the lifecycle of one aggregated tool call.
type State int

const (
	// Unseen: no fragment for the index yet.
	Unseen State = iota

	// PartiallyNamed: the first fragment arrived; id and name may be missing.
	PartiallyNamed

	// Accumulating: later fragments are appending arguments.
	Accumulating

	// Final: the stream ended or finished with reason "tool_calls".
	Final
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case PartiallyNamed:
		return "partially_named"
	case Accumulating:
		return "accumulating"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

type aggregate struct {
	call      llm.ToolCall
	arguments strings.Builder
	state     State
}

// Context is the mutable state of one stream.
type Context struct {
	// ID is the stream id, usually the first chunk id.
	ID string

	// Usage is the last usage recorded on the stream.
	Usage *llm.Usage

	toolCallIndex map[int]*Binding
	calls         map[int]*aggregate

	text         strings.Builder
	finishReason string
	final        bool
}

// New creates an empty context for a stream.
func New(id string) *Context {
	return &Context{
		ID:            id,
		toolCallIndex: make(map[int]*Binding),
		calls:         make(map[int]*aggregate),
	}
}

// BindToolCall records id (and name) for index if the index is not bound
// yet. An existing binding is authoritative: a later id for the same index
// is ignored. An empty id never creates a binding. The returned bool reports
// whether the index is bound after the call.
func (c *Context) BindToolCall(index int, id string, name *string) (Binding, bool) {
	if b, ok := c.toolCallIndex[index]; ok {
		return *b, true
	}
	if id == "" {
		return Binding{}, false
	}

	b := &Binding{ID: id}
	if name != nil {
		n := *name
		b.Name = &n
	}
	c.toolCallIndex[index] = b
	return *b, true
}

// Lookup returns the binding for index.
func (c *Context) Lookup(index int) (Binding, bool) {
	b, ok := c.toolCallIndex[index]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// RecordUsage stores usage. The last write wins since some providers resend
// a final summary.
func (c *Context) RecordUsage(u llm.Usage) {
	c.Usage = &u
}

// Accumulate folds per-chunk tool call frames into the running aggregate.
// Arguments are appended in arrival order. The id and name are filled the
// first time they appear and never overwritten.
func (c *Context) Accumulate(frames []protocol.ToolCallFrame) {
	for _, f := range frames {
		agg, ok := c.calls[f.Index]
		if !ok {
			agg = &aggregate{
				call: llm.ToolCall{
					Index: f.Index,
					Type:  f.Type,
				},
				state: PartiallyNamed,
			}
			c.calls[f.Index] = agg
		} else if agg.state == PartiallyNamed {
			agg.state = Accumulating
		}

		if agg.call.ID == "" {
			agg.call.ID = f.ID
		}
		if agg.call.Function.Name == "" && f.Function.Name != nil {
			agg.call.Function.Name = *f.Function.Name
		}
		if agg.call.Type == "" {
			agg.call.Type = f.Type
		}
		agg.arguments.WriteString(f.Function.Arguments)
	}
}

// ToolCalls returns a snapshot of the aggregate ordered by index. Mutating
// the snapshot does not affect the context.
func (c *Context) ToolCalls() []llm.ToolCall {
	if len(c.calls) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(c.calls))
	for i := range c.calls {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	out := make([]llm.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		agg := c.calls[i]
		call := agg.call
		call.Function.Arguments = agg.arguments.String()
		out = append(out, call)
	}
	return out
}

// State returns the lifecycle state of the tool call at index.
func (c *Context) State(index int) State {
	agg, ok := c.calls[index]
	if !ok {
		return Unseen
	}
	return agg.state
}

// Finalize marks every aggregated tool call Final.
func (c *Context) Finalize() {
	c.final = true
	for _, agg := range c.calls {
		agg.state = Final
	}
}

// Finalized reports whether Finalize was called.
func (c *Context) Finalized() bool {
	return c.final
}

// AppendText adds a text delta to the accumulated text.
func (c *Context) AppendText(s string) {
	c.text.WriteString(s)
}

// Text returns all text appended so far.
func (c *Context) Text() string {
	return c.text.String()
}

// SetFinishReason records the last finish reason seen.
func (c *Context) SetFinishReason(reason string) {
	c.finishReason = reason
}

// FinishReason returns the last finish reason seen.
func (c *Context) FinishReason() string {
	return c.finishReason
}
