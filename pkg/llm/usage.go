// Package llm holds the provider-agnostic aggregate types assembled by the
// chatwire engine while a chat-completion stream is normalized.
package llm

// Usage is the aggregated token usage for a stream. Field names follow the
// wire contract consumed by usage accounting, so the JSON tags must not change.
type Usage struct {
	InputTextTokens   int `json:"inputTextTokens"`
	OutputTextTokens  int `json:"outputTextTokens"`
	TotalInputTokens  int `json:"totalInputTokens"`
	TotalOutputTokens int `json:"totalOutputTokens"`
	TotalTokens       int `json:"totalTokens"`
}

// NewUsage builds a Usage from provider prompt/completion/total counts.
// Text and total counters are identical until providers report modality
// specific counts.
func NewUsage(promptTokens, completionTokens, totalTokens int) Usage {
	return Usage{
		InputTextTokens:   promptTokens,
		OutputTextTokens:  completionTokens,
		TotalInputTokens:  promptTokens,
		TotalOutputTokens: completionTokens,
		TotalTokens:       totalTokens,
	}
}
