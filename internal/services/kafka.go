package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/observability"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds the transcript publisher configuration.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Enabled bool     `yaml:"enabled"`
}

// DefaultTranscriptTopic is used when no topic is configured.
const DefaultTranscriptTopic = "hopeai.transcript.finalized"

// TranscriptPublisher publishes finalized transcript entries to Kafka. When Kafka is disabled it only
// logs the events.
type TranscriptPublisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool

	metrics *observability.Metrics
	logger  *slog.Logger
}

// TranscriptEvent is the payload of a published entry.
type TranscriptEvent struct {
	SessionID string                 `json:"sessionId"`
	Entry     models.TranscriptEntry `json:"entry"`
}

// NewTranscriptPublisher creates a publisher for cfg. A disabled config, or one without brokers,
// yields a log-only publisher.
func NewTranscriptPublisher(cfg KafkaConfig, metrics *observability.Metrics, logger *slog.Logger) *TranscriptPublisher {
	logger = logger.With(slog.String("module", "kafka"))

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTranscriptTopic
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info("Kafka disabled, using log-only mode")
		return &TranscriptPublisher{
			topic:   topic,
			metrics: metrics,
			logger:  logger,
		}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
		},
	}

	logger.Info("Kafka publisher initialized",
		slog.Any("brokers", cfg.Brokers),
		slog.String("topic", topic))

	return &TranscriptPublisher{
		writer:  writer,
		topic:   topic,
		enabled: true,
		metrics: metrics,
		logger:  logger,
	}
}

// Publish sends entry, keyed by its session so a session's entries keep their order.
func (p *TranscriptPublisher) Publish(ctx context.Context, sessionID string, entry models.TranscriptEntry) error {
	start := time.Now()

	payload, err := json.Marshal(TranscriptEvent{SessionID: sessionID, Entry: entry})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.logger.Debug("Publishing event",
		slog.String("topic", p.topic),
		slog.String("sessionID", sessionID),
		slog.String("payload", string(payload)))

	if !p.enabled || p.writer == nil {
		p.record(nil, start)
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("transcript.finalized")},
			{Key: "role", Value: []byte(entry.Role)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.record(err, start)
		return fmt.Errorf("failed to write to kafka: %w", err)
	}

	p.record(nil, start)
	return nil
}

// Close closes the underlying writer.
func (p *TranscriptPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *TranscriptPublisher) record(err error, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordKafkaPublish(p.topic, err, time.Since(start).Seconds())
}
