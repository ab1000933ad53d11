// Package notifications publishes analytics run lifecycle events to Kafka so
// downstream consumers can refresh dashboards or alert on failed runs.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"ontology/internal/pipeline"
	"ontology/pkg/logger"
)

// KafkaProducerConfig contains configuration for the run event producer
type KafkaProducerConfig struct {
	Brokers          []string
	RunTopic         string
	ClientID         string
	RetryMax         int
	Timeout          time.Duration
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		RunTopic:         "analytics-runs",
		ClientID:         "ontology-analytics",
		RetryMax:         3,
		Timeout:          10 * time.Second,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// SaramaConfig translates the settings into a sarama producer config.
func (c *KafkaProducerConfig) SaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = c.ClientID
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = c.RequiredAcks
	cfg.Producer.Compression = c.CompressionType
	cfg.Producer.Retry.Max = c.RetryMax
	cfg.Producer.Timeout = c.Timeout
	cfg.Producer.Idempotent = c.IdempotentWrites
	cfg.Producer.MaxMessageBytes = c.MaxMessageBytes
	if c.IdempotentWrites {
		cfg.Net.MaxOpenRequests = 1
	}
	// one organization's events land on one partition, in order
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return cfg
}

type MessageRecorder interface {
	RecordMessageSent(topic, status string)
}

// RunEventProducer publishes pipeline.RunEvent messages keyed by organization.
type RunEventProducer struct {
	producer sarama.SyncProducer
	topic    string
	metrics  MessageRecorder
	logger   *logger.Logger
}

// NewKafkaRunEventProducer dials the brokers and returns a ready producer.
func NewKafkaRunEventProducer(config *KafkaProducerConfig, metrics MessageRecorder, log *logger.Logger) (*RunEventProducer, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewRunEventProducer(producer, config.RunTopic, metrics, log), nil
}

// NewRunEventProducer wraps an existing sarama producer.
func NewRunEventProducer(producer sarama.SyncProducer, topic string, metrics MessageRecorder, log *logger.Logger) *RunEventProducer {
	if log == nil {
		log = logger.GetDefault()
	}
	return &RunEventProducer{producer: producer, topic: topic, metrics: metrics, logger: log}
}

// PublishRunEvent sends one event and waits for the broker acknowledgement.
func (p *RunEventProducer) PublishRunEvent(ctx context.Context, event pipeline.RunEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.OrganizationID.String()),
		Value:     sarama.ByteEncoder(payload),
		Headers:   runEventHeaders(event),
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.record("failed")
		return fmt.Errorf("failed to send run event to Kafka: %w", err)
	}
	p.record("sent")

	p.logger.DebugContext(ctx, "run event published",
		slog.String("topic", p.topic),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
		slog.String("run_id", event.RunID.String()),
		slog.String("status", string(event.Status)),
	)
	return nil
}

func runEventHeaders(event pipeline.RunEvent) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("event_type"), Value: []byte("analytics_run." + string(event.Status))},
		{Key: []byte("run_id"), Value: []byte(event.RunID.String())},
		{Key: []byte("organization_id"), Value: []byte(event.OrganizationID.String())},
		{Key: []byte("completed_steps"), Value: []byte(strconv.Itoa(event.CompletedSteps))},
		{Key: []byte("producer"), Value: []byte("ontology-analytics")},
		{Key: []byte("version"), Value: []byte("1")},
	}
}

func (p *RunEventProducer) record(status string) {
	if p.metrics != nil {
		p.metrics.RecordMessageSent(p.topic, status)
	}
}

// Close closes the Kafka producer
func (p *RunEventProducer) Close() error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
