package proxy

import "github.com/papercomputeco/chatwire/pkg/metrics"

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the chat-completion provider the proxy forwards to
	// (e.g., "https://api.openai.com", "http://localhost:11434").
	UpstreamURL string

	// Family selects the transformer that normalizes streamed responses:
	// "openai", "qwen", "ollama" or "auto" to detect per request.
	// Empty means "auto".
	Family string

	// NumWorkers and QueueSize size the completion publishing pool.
	// Zero values use the pool defaults.
	NumWorkers uint
	QueueSize  uint

	// IncludeUsage asks OpenAI-compatible upstreams for a trailing usage
	// chunk by setting stream_options.include_usage on streaming requests
	// that leave it unset.
	IncludeUsage bool

	// Metrics records every finished stream. Nil discards them.
	Metrics *metrics.Recorder
}
