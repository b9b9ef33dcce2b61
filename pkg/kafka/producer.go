package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const schemaVersion = "1.0"

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes record change events
type Producer struct {
	writer MessageWriter
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Topic, logger)
}

// NewProducerWithWriter builds a producer on an existing writer. The writer owns the topic.
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ChangeEvent describes a committed write to one model.
type ChangeEvent struct {
	EventType string          `json:"event_type"` // created, updated, deleted
	TenantID  string          `json:"tenant_id,omitempty"`
	Model     string          `json:"model"`
	Action    string          `json:"action"`
	RecordID  string          `json:"record_id,omitempty"`
	Count     int64           `json:"count,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// key keeps every event of a record on one partition. Bulk events fall back to the tenant.
func (e *ChangeEvent) key() []byte {
	if e.RecordID != "" {
		return []byte(e.Model + ":" + e.RecordID)
	}
	return []byte(e.Model + ":" + e.TenantID)
}

func (e *ChangeEvent) message() (kafka.Message, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   e.key(),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "tenant_id", Value: []byte(e.TenantID)},
			{Key: "model", Value: []byte(e.Model)},
			{Key: "schema_version", Value: []byte(schemaVersion)},
		},
	}, nil
}

// Publish writes events in one batch.
func (p *Producer) Publish(ctx context.Context, events ...*ChangeEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := event.message()
		if err != nil {
			return err
		}
		messages[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
			"topic":      p.topic,
		}).Error("Failed to publish change events")
		metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "error").Add(float64(len(events)))
		return err
	}

	metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "success").Add(float64(len(events)))
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
		"topic":      p.topic,
	}).Debug("Published change events")

	return nil
}
