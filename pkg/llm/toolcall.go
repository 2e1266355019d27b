package llm

// ToolCallTypeFunction is the only tool call type emitted on the wire.
const ToolCallTypeFunction = "function"

// ToolCall is the caller-visible aggregate of one streamed tool call:
// every argument fragment seen so far for its index, concatenated in order.
type ToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and the raw (possibly still partial)
// JSON argument string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}
