// Package proxy provides a chat-completion proxy that normalizes streamed
// responses into chatwire protocol frames.
//
// Requests are forwarded to the upstream untouched. When the client asks for
// a stream, the upstream's SSE or NDJSON body is pulled through a transformer
// and the client receives text/event-stream frames instead. Each finished
// stream is handed to a worker pool that publishes it as a completion event.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/papercomputeco/chatwire/pkg/chunk"
	"github.com/papercomputeco/chatwire/pkg/eventstream"
	"github.com/papercomputeco/chatwire/pkg/metrics"
	"github.com/papercomputeco/chatwire/pkg/stream"
	"github.com/papercomputeco/chatwire/pkg/transformer"
	"github.com/papercomputeco/chatwire/proxy/header"
	"github.com/papercomputeco/chatwire/proxy/worker"
)

// errorResponse is the JSON body of errors raised by the proxy itself.
type errorResponse struct {
	Error string `json:"error"`
}

// Proxy forwards chat-completion traffic and normalizes streamed responses.
type Proxy struct {
	config        Config
	workerPool    *worker.Pool
	logger        *slog.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler

	// streams tracks normalizing goroutines still writing to clients.
	streams sync.WaitGroup
}

// New creates a new Proxy. Finished streams are published through publisher.
func New(config Config, publisher eventstream.Publisher, logger *slog.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	config.UpstreamURL = strings.TrimRight(config.UpstreamURL, "/")

	if config.Family == "" {
		config.Family = transformer.Auto
	}
	if !transformer.IsValidFamily(config.Family) {
		return nil, fmt.Errorf("%w: %q", transformer.ErrUnknownFamily, config.Family)
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Publisher:  publisher,
		NumWorkers: config.NumWorkers,
		QueueSize:  config.QueueSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// Long generations stream for minutes.
			Timeout: 5 * time.Minute,
		},
	}

	app.All("/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the configured listen address.
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
		"family", p.config.Family,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
		"family", p.config.Family,
	)

	return p.server.Listener(listener)
}

// Close shuts the server down, waits for in-flight streams to finish, then
// waits for queued completions to be published.
func (p *Proxy) Close() error {
	err := p.server.Shutdown()
	p.streams.Wait()
	p.workerPool.Close()
	return err
}

func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	startTime := time.Now()

	path := c.Path()
	method := c.Method()
	body := c.Body()

	if method != fiber.MethodPost || len(body) == 0 {
		return p.handleNonStreamingProxy(c, method, body)
	}

	family := p.config.Family
	if override := p.headerHandler.Family(c); override != "" {
		family = override
	}

	t, err := transformer.Resolve(family, path, body)
	if err != nil {
		p.logger.Warn("rejecting request with unknown family", "family", family, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	if !isStreaming(t.Name(), body) {
		return p.handleNonStreamingProxy(c, method, body)
	}

	p.logger.Debug("normalizing streaming request",
		"path", path,
		"family", t.Name(),
		"model", gjson.GetBytes(body, "model").String(),
	)

	if p.config.IncludeUsage && t.Name() != transformer.Ollama {
		body = requestUsage(body, p.logger)
	}

	return p.handleStreamingProxy(c, t, body, startTime)
}

// requestUsage sets stream_options.include_usage unless the client already
// decided either way.
func requestUsage(body []byte, logger *slog.Logger) []byte {
	if gjson.GetBytes(body, "stream_options.include_usage").Exists() {
		return body
	}

	out, err := sjson.SetBytes(body, "stream_options.include_usage", true)
	if err != nil {
		logger.Warn("could not request usage, forwarding body unchanged", "error", err)
		return body
	}
	return out
}

// isStreaming reports whether a request body asks for a streamed response.
// Ollama streams unless told otherwise.
func isStreaming(family string, body []byte) bool {
	if s := gjson.GetBytes(body, "stream"); s.Exists() {
		return s.Bool()
	}
	return family == transformer.Ollama
}

// handleNonStreamingProxy forwards the request and relays the response as is.
func (p *Proxy) handleNonStreamingProxy(c *fiber.Ctx, method string, body []byte) error {
	upstreamURL := p.config.UpstreamURL + c.OriginalURL()

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(c.Context(), method, upstreamURL, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream",
		"method", method,
		"url", upstreamURL,
	)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "failed to read upstream response"})
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)
	return c.Status(httpResp.StatusCode).Send(respBody)
}

// handleStreamingProxy forwards a streaming request and replaces the
// upstream body with normalized protocol frames.
func (p *Proxy) handleStreamingProxy(c *fiber.Ctx, t transformer.Transformer, body []byte, startTime time.Time) error {
	upstreamURL := p.config.UpstreamURL + c.OriginalURL()
	path := c.Path()

	// fasthttp recycles the request context once the handler returns, while
	// the upstream body is read from a separate goroutine afterwards.
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, upstreamURL, bytes.NewReader(body))
	if err != nil {
		p.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "internal error"})
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding streaming request to upstream", "url", upstreamURL)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: "upstream request failed"})
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		p.logger.Error("upstream returned error",
			"status", httpResp.StatusCode,
			"body", string(respBody),
		)
		p.headerHandler.SetClientResponseHeaders(c, httpResp)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	// Ollama lines carry no id, so the proxy names the stream.
	var streamID string
	opts := []stream.Option{stream.WithLogger(p.logger)}
	if t.Name() == transformer.Ollama {
		streamID = "chatcmpl-" + uuid.NewString()
		opts = append(opts, stream.WithID(streamID))
	}

	// fasthttp exposes no per-request disconnect signal. A client that leaves
	// is noticed on the next pw.Write; if the upstream stalls first, the read
	// is bounded by the upstream client's 5 minute timeout.
	s := stream.New(context.Background(), newSource(httpResp), t, opts...)

	p.headerHandler.SetStreamResponseHeaders(c, httpResp, streamID)

	// io.Pipe gives per-frame backpressure: each pw.Write blocks until
	// fasthttp's chunked writer has flushed the frame to the client.
	pr, pw := io.Pipe()
	p.streams.Add(1)
	go p.pipeStream(s, pw, worker.Job{
		Path:       path,
		HTTPStatus: httpResp.StatusCode,
		Streaming:  true,
		StartedAt:  startTime,
	})

	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// pipeStream copies frames to the client, then enqueues the aggregate.
func (p *Proxy) pipeStream(s *stream.Stream, pw *io.PipeWriter, job worker.Job) {
	defer p.streams.Done()
	defer s.Close()

	if _, err := io.Copy(pw, s); err != nil {
		p.logger.Error("normalized stream ended early", "error", err)
		pw.CloseWithError(err)
	} else {
		pw.Close()
	}

	job.Completion = s.Completion()
	p.config.Metrics.Record(context.Background(), job.Completion)

	p.logger.Debug("stream finished",
		"stream_id", job.Completion.ID,
		"family", job.Completion.Family,
		"chunks", job.Completion.Chunks,
		"frames", job.Completion.Frames,
		"duration", time.Since(job.StartedAt),
	)

	p.workerPool.Enqueue(job)
}

// newSource picks the chunk decoder from the upstream content type.
func newSource(resp *http.Response) chunk.Source {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return chunk.NewSSESource(resp.Body)
	}
	return chunk.NewNDJSONSource(resp.Body)
}
