package transformer

import (
	"strings"

	"github.com/tidwall/gjson"
)

// qwenModelPrefixes are the DashScope model families served through the
// OpenAI-compatible endpoint with vision content parts.
var qwenModelPrefixes = []string{"qwen", "qwq", "qvq"}

// Detect sniffs a request or chunk payload and returns the family that
// should normalize it. Unrecognized payloads fall back to OpenAI.
func Detect(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return OpenAI
	}

	if isOllama(payload) {
		return Ollama
	}

	model := strings.ToLower(gjson.GetBytes(payload, "model").String())
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	for _, prefix := range qwenModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return Qwen
		}
	}

	return OpenAI
}

// DetectRequest detects the family of an upstream request. Ollama's native
// API is recognized by path, everything else by body.
func DetectRequest(path string, body []byte) string {
	if strings.HasPrefix(path, "/api/chat") || strings.HasPrefix(path, "/api/generate") {
		return Ollama
	}
	return Detect(body)
}

func isOllama(payload []byte) bool {
	results := gjson.GetManyBytes(payload, "message", "done", "keep_alive", "options", "eval_count", "choices")

	message, done, keepAlive, options, evalCount, choices := results[0], results[1], results[2], results[3], results[4], results[5]
	if choices.Exists() {
		return false
	}

	// Response lines.
	if message.IsObject() && done.Exists() {
		return true
	}
	if evalCount.Exists() {
		return true
	}

	// Request markers.
	return keepAlive.Exists() || options.IsObject()
}
