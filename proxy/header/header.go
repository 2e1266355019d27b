// Package header filters headers on both legs of the chatwire proxy:
//
//	Client <--> Proxy <--> Upstream chat-completion provider
//
// Pass-through responses keep the upstream's headers minus hop-by-hop and
// encoding headers. Normalized streams replace the upstream's content type
// with the protocol's event-stream framing.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// FamilyHeader selects the transformer family for a single request,
	// overriding the configured family. It is never forwarded upstream.
	FamilyHeader = "X-Chatwire-Family"

	// StreamIDHeader carries the id every frame of a normalized stream uses.
	StreamIDHeader = "X-Chatwire-Stream-Id"

	// EventStreamContentType is the content type of normalized streams.
	EventStreamContentType = "text/event-stream"
)

// Handler manages headers between proxy connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// skipRequest lists client request headers not forwarded upstream.
var skipRequest = map[string]struct{}{
	"Connection": {},

	// http.Transport sets Host from the upstream URL.
	"Host": {},

	// Dropped so http.Transport negotiates gzip itself and decompresses.
	"Accept-Encoding": {},

	FamilyHeader: {},
}

// skipResponse lists upstream response headers not copied to the client.
var skipResponse = map[string]struct{}{
	"Connection":        {},
	"Transfer-Encoding": {},

	// The body is already decompressed; the compress middleware re-encodes.
	"Content-Encoding": {},

	// Upstream length no longer matches once the body is decompressed or
	// normalized.
	"Content-Length": {},
}

// skipStream additionally drops headers that describe the upstream body
// rather than the normalized frames the client receives.
var skipStream = map[string]struct{}{
	"Content-Type":  {},
	"Cache-Control": {},
}

// SetUpstreamRequestHeaders copies the client's request headers onto the
// outgoing upstream request, minus the ones the proxy owns.
func (h *Handler) SetUpstreamRequestHeaders(c *fiber.Ctx, req *http.Request) {
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, skip := skipRequest[k]; !skip {
			req.Header.Set(k, string(value))
		}
	})
}

// SetClientResponseHeaders copies upstream response headers for a response
// that is passed through verbatim.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, resp *http.Response) {
	copyHeaders(c, resp.Header, skipResponse)
}

// SetStreamResponseHeaders copies upstream response headers for a response
// whose body is replaced by normalized protocol frames, then marks it as an
// event stream tagged with streamID.
func (h *Handler) SetStreamResponseHeaders(c *fiber.Ctx, resp *http.Response, streamID string) {
	copyHeaders(c, resp.Header, skipResponse, skipStream)

	c.Set(fiber.HeaderContentType, EventStreamContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	if streamID != "" {
		c.Set(StreamIDHeader, streamID)
	}
}

// Family returns the per-request family override, or "".
func (h *Handler) Family(c *fiber.Ctx) string {
	return strings.ToLower(strings.TrimSpace(c.Get(FamilyHeader)))
}

func copyHeaders(c *fiber.Ctx, from http.Header, skips ...map[string]struct{}) {
	for k, v := range from {
		if skipped(k, skips) {
			continue
		}
		c.Set(k, strings.Join(v, ", "))
	}
}

func skipped(key string, skips []map[string]struct{}) bool {
	for _, skip := range skips {
		if _, ok := skip[key]; ok {
			return true
		}
	}
	return false
}
