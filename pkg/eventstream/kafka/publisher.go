// Package kafka publishes completion events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chatwire/pkg/eventstream"
)

const (
	defaultBatchTimeout = 10 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
)

var (
	// ErrNoBrokers is returned when no broker address is configured.
	ErrNoBrokers = errors.New("kafka: no brokers configured")

	// ErrNoTopic is returned when no topic is configured.
	ErrNoTopic = errors.New("kafka: no topic configured")
)

// Config configures the Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one Kafka message per completion event, keyed by stream
// id so every event of a stream lands on the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher validates cfg and creates a publisher backed by a kafka-go Writer.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	log := cfg.Logger.With("component", "kafka", "topic", cfg.Topic)

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger: kafkago.LoggerFunc(func(msg string, args ...any) {
			log.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...))
		}),
	}
	if cfg.ClientID != "" {
		w.Transport = &kafkago.Transport{ClientID: cfg.ClientID}
	}

	return newPublisher(w, cfg.Topic, log), nil
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: log,
	}
}

// PublishCompletion encodes the event as JSON and writes it synchronously.
func (p *Publisher) PublishCompletion(ctx context.Context, event *eventstream.CompletionEvent) error {
	if event == nil {
		return eventstream.ErrNilCompletionEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding completion event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Key()),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing completion event to %s: %w", p.topic, err)
	}

	p.logger.Debug("published completion event",
		"event_id", event.EventID,
		"stream_id", event.Completion.ID,
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
