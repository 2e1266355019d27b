// Package utils builds eventstream publishers from configuration.
package utils

import (
	"fmt"
	"log/slog"

	"github.com/papercomputeco/chatwire/pkg/eventstream"
	"github.com/papercomputeco/chatwire/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatwire/pkg/eventstream/nop"
)

// Supported provider names.
const (
	ProviderNone  = "none"
	ProviderKafka = "kafka"
)

// SupportedProviders returns the list of all supported publisher providers.
func SupportedProviders() []string {
	return []string{ProviderNone, ProviderKafka}
}

// PublisherConfig selects and configures a publisher.
type PublisherConfig struct {
	Provider string
	Brokers  []string
	Topic    string
	ClientID string
}

// NewPublisher creates the publisher for cfg.Provider. An empty provider
// disables publishing.
func NewPublisher(cfg PublisherConfig, logger *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return nop.NewPublisher(), nil
	case ProviderKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			ClientID: cfg.ClientID,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("%w: %q (supported: %v)", eventstream.ErrUnknownProvider, cfg.Provider, SupportedProviders())
	}
}
