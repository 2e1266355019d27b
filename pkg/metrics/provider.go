package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// DefaultInterval is how often the periodic reader exports.
const DefaultInterval = time.Minute

// ErrUnknownExporter is returned for exporter names NewProvider does not know.
var ErrUnknownExporter = errors.New("unknown metrics exporter")

// Config selects the exporter.
type Config struct {
	// Exporter is "none" or "stdout".
	Exporter string

	// Interval between exports. Defaults to DefaultInterval.
	Interval time.Duration

	// Writer receives stdout exports. Required for "stdout".
	Writer io.Writer
}

// Provider owns the meter provider behind a Recorder.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	recorder *Recorder
}

// NewProvider builds the meter pipeline for cfg. The "none" exporter yields
// a Provider whose Recorder discards everything.
func NewProvider(cfg Config) (*Provider, error) {
	switch cfg.Exporter {
	case "", ExporterNone:
		return &Provider{recorder: Nop()}, nil

	case ExporterStdout:
		if cfg.Writer == nil {
			return nil, errors.New("stdout metrics exporter requires a writer")
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("creating stdout exporter: %w", err)
		}

		interval := cfg.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		return newProvider(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)))

	default:
		return nil, fmt.Errorf("%w: %q (supported: %s, %s)", ErrUnknownExporter, cfg.Exporter, ExporterNone, ExporterStdout)
	}
}

// NewProviderWithReader builds a Provider around reader, e.g. a manual
// reader in tests.
func NewProviderWithReader(reader sdkmetric.Reader) (*Provider, error) {
	return newProvider(reader)
}

func newProvider(reader sdkmetric.Reader) (*Provider, error) {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	recorder, err := NewRecorder(mp.Meter("github.com/papercomputeco/chatwire"))
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("creating instruments: %w", err)
	}

	return &Provider{mp: mp, recorder: recorder}, nil
}

// Recorder returns the recorder fed by this provider.
func (p *Provider) Recorder() *Recorder {
	return p.recorder
}

// Shutdown flushes pending data points and stops exporting.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}
