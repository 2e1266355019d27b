// Package metrics records OpenTelemetry metrics for finished completions:
// stream outcomes, frame and tool-call counts, token usage and duration.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/papercomputeco/chatwire/pkg/llm"
)

// Instrument names.
const (
	StreamCount    = "chatwire.stream.count"
	StreamFrames   = "chatwire.stream.frames"
	StreamDuration = "chatwire.stream.duration"
	ToolCallCount  = "chatwire.tool_call.count"
	TokenUsage     = "chatwire.token.usage"
)

// Attribute keys.
const (
	AttrFamily    = attribute.Key("chatwire.family")
	AttrModel     = attribute.Key("chatwire.model")
	AttrStatus    = attribute.Key("chatwire.stream.status")
	AttrTokenType = attribute.Key("chatwire.token.type")
)

// Stream outcomes.
const (
	StatusComplete = "complete"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// Recorder turns completions into metric data points. It is safe for
// concurrent use.
type Recorder struct {
	streams   metric.Int64Counter
	frames    metric.Int64Counter
	toolCalls metric.Int64Counter
	tokens    metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewRecorder creates the chatwire instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}

	var err error
	if r.streams, err = meter.Int64Counter(StreamCount,
		metric.WithDescription("Normalized streams by outcome"),
		metric.WithUnit("{stream}"),
	); err != nil {
		return nil, err
	}

	if r.frames, err = meter.Int64Counter(StreamFrames,
		metric.WithDescription("Protocol frames written to clients"),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, err
	}

	if r.toolCalls, err = meter.Int64Counter(ToolCallCount,
		metric.WithDescription("Aggregated tool calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if r.tokens, err = meter.Int64Counter(TokenUsage,
		metric.WithDescription("Token usage reported by the upstream, by type"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, err
	}

	if r.duration, err = meter.Float64Histogram(StreamDuration,
		metric.WithDescription("Time from first chunk to the end of the stream"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return r, nil
}

// Nop returns a Recorder backed by the no-op meter.
func Nop() *Recorder {
	r, _ := NewRecorder(noop.NewMeterProvider().Meter(""))
	return r
}

// Record adds one finished completion.
func (r *Recorder) Record(ctx context.Context, c llm.Completion) {
	attrs := []attribute.KeyValue{
		AttrFamily.String(c.Family),
		AttrModel.String(c.Model),
	}
	common := metric.WithAttributes(attrs...)

	r.streams.Add(ctx, 1, metric.WithAttributes(append(attrs, AttrStatus.String(status(c)))...))
	r.frames.Add(ctx, int64(c.Frames), common)

	if n := len(c.ToolCalls); n > 0 {
		r.toolCalls.Add(ctx, int64(n), common)
	}

	if u := c.Usage; u != nil {
		r.addTokens(ctx, attrs, "input", u.TotalInputTokens)
		r.addTokens(ctx, attrs, "output", u.TotalOutputTokens)
	}

	if !c.StartedAt.IsZero() && c.CompletedAt.After(c.StartedAt) {
		ms := float64(c.CompletedAt.Sub(c.StartedAt).Microseconds()) / 1000
		r.duration.Record(ctx, ms, common)
	}
}

func (r *Recorder) addTokens(ctx context.Context, attrs []attribute.KeyValue, typ string, n int) {
	if n <= 0 {
		return
	}
	r.tokens.Add(ctx, int64(n), metric.WithAttributes(append(attrs, AttrTokenType.String(typ))...))
}

func status(c llm.Completion) string {
	switch {
	case c.Error != "":
		return StatusError
	case c.Complete:
		return StatusComplete
	default:
		return StatusCanceled
	}
}
