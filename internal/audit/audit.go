// Package audit publishes best-effort lifecycle events — collection
// completion, deletion completion, and uncollectible deletion attempts — to
// an external event stream via github.com/twmb/franz-go. Publication
// failures are logged and otherwise ignored: audit is observability, never
// a gate on the correctness of the fossil-collection protocol.
package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"vaultgc/internal/logging"
)

// Event type names published to the audit topic.
const (
	EventCollectionCompleted   = "collection.completed"
	EventDeletionCompleted     = "deletion.completed"
	EventDeletionUncollectible = "deletion.uncollectible"
)

// Publisher publishes lifecycle events. Implementations must never return
// an error that should halt the protocol — callers treat Publish failures
// as log-and-continue.
type Publisher interface {
	Publish(ctx context.Context, eventType string, attrs map[string]string) error
	Close()
}

// SASLConfig holds SASL authentication parameters for the audit producer.
type SASLConfig struct {
	Mechanism string // "plain", "scram-sha-256", "scram-sha-512"
	User      string
	Password  string //nolint:gosec // G117: config field, not a hardcoded credential
}

// Config holds audit producer configuration.
type Config struct {
	Brokers []string
	Topic   string
	TLS     bool
	SASL    *SASLConfig
	Logger  *slog.Logger
}

// record is the JSON payload published for every event.
type record struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// kafkaPublisher is the franz-go-backed Publisher.
type kafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// New constructs a Publisher backed by Kafka. Connection is established
// lazily by the underlying client; no network I/O happens in New itself.
func New(cfg Config) (Publisher, error) {
	logger := logging.Default(cfg.Logger).With("component", "audit", "type", "kafka")

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	}

	if cfg.TLS {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		}))
	}

	if cfg.SASL != nil {
		mech, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mech))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer client: %w", err)
	}

	logger.Info("audit producer configured", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &kafkaPublisher{client: client, topic: cfg.Topic, logger: logger}, nil
}

// Publish sends one audit event. It never blocks past ctx's deadline and
// never returns an error requiring the caller to abort its own operation —
// callers are expected to log the error and continue.
func (p *kafkaPublisher) Publish(ctx context.Context, eventType string, attrs map[string]string) error {
	payload, err := json.Marshal(record{Type: eventType, Timestamp: time.Now().UTC(), Attrs: attrs})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	result := p.client.ProduceSync(ctx, &kgo.Record{Topic: p.topic, Value: payload})
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("publish audit event %s: %w", eventType, err)
	}
	return nil
}

func (p *kafkaPublisher) Close() {
	p.client.Close()
}

func buildSASLMechanism(cfg *SASLConfig) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case "plain":
		return plain.Auth{User: cfg.User, Pass: cfg.Password}.AsMechanism(), nil
	case "scram-sha-256":
		return scram.Auth{User: cfg.User, Pass: cfg.Password}.AsSha256Mechanism(), nil
	case "scram-sha-512":
		return scram.Auth{User: cfg.User, Pass: cfg.Password}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %q", cfg.Mechanism)
	}
}

// noopPublisher discards every event. Used when audit publication is
// disabled in configuration.
type noopPublisher struct{}

// NewNoop returns a Publisher that discards every event.
func NewNoop() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(ctx context.Context, eventType string, attrs map[string]string) error {
	return nil
}

func (noopPublisher) Close() {}

// PublishBestEffort calls Publish and logs (rather than propagates) any
// error, per this package's log-and-ignore publication contract.
func PublishBestEffort(ctx context.Context, p Publisher, logger *slog.Logger, eventType string, attrs map[string]string) {
	if err := p.Publish(ctx, eventType, attrs); err != nil {
		logging.Default(logger).Warn("audit publish failed", "event", eventType, "error", err)
	}
}
