package testutils

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/chatwire/pkg/chunk"
)

// MustParseChunks parses each payload into a chunk and panics on failure.
// Only meant for test fixtures.
func MustParseChunks(payloads ...string) []*chunk.Chunk {
	chunks := make([]*chunk.Chunk, 0, len(payloads))
	for _, p := range payloads {
		c, err := chunk.Parse([]byte(p))
		if err != nil {
			panic(fmt.Sprintf("parsing fixture %q: %v", p, err))
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// SSEBody renders payloads as an OpenAI-style SSE body terminated by [DONE].
func SSEBody(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// NDJSONBody renders payloads one per line.
func NDJSONBody(payloads ...string) string {
	return strings.Join(payloads, "\n") + "\n"
}

// TextChunk is an OpenAI-compatible chunk carrying string content.
func TextChunk(id, content string) string {
	return fmt.Sprintf(`{"id":%q,"object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, id, content)
}

// StopChunk is an OpenAI-compatible chunk carrying only a finish reason.
func StopChunk(id, reason string) string {
	return fmt.Sprintf(`{"id":%q,"object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":%q}]}`, id, reason)
}

// UsageChunk is a usage-only chunk with an empty choices array.
func UsageChunk(id string, prompt, completion int) string {
	return fmt.Sprintf(`{"id":%q,"choices":[],"usage":{"prompt_tokens":%d,"completion_tokens":%d,"total_tokens":%d}}`, id, prompt, completion, prompt+completion)
}

// ToolCallChunk is a chunk with a single tool call fragment. Empty callID
// and name are omitted, matching continuation fragments.
func ToolCallChunk(id string, index int, callID, name, arguments string) string {
	fields := []string{fmt.Sprintf(`"index":%d`, index)}
	if callID != "" {
		fields = append(fields, fmt.Sprintf(`"id":%q`, callID), `"type":"function"`)
	}

	fn := []string{fmt.Sprintf(`"arguments":%q`, arguments)}
	if name != "" {
		fn = append([]string{fmt.Sprintf(`"name":%q`, name)}, fn...)
	}
	fields = append(fields, `"function":{`+strings.Join(fn, ",")+`}`)

	return fmt.Sprintf(`{"id":%q,"choices":[{"index":0,"delta":{"tool_calls":[{%s}]}}]}`, id, strings.Join(fields, ","))
}
