package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// DefaultSyncTopic carries leads that must be pushed to the external CRM
const DefaultSyncTopic = "lead-sync-requests"

// Producer publishes lead sync requests
type Producer struct {
	writer *kafka.Writer
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
	if cfg.Topic == "" {
		cfg.Topic = DefaultSyncTopic
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compressionCodec(cfg.Compression),
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// SyncRequestEvent is the message body for one sync request
type SyncRequestEvent struct {
	RequestID string    `json:"request_id"`
	LeadID    string    `json:"lead_id"`
	Reason    string    `json:"reason"`
	Fields    []string  `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// NewSyncRequestEvent builds the event published for req.
func NewSyncRequestEvent(ctx context.Context, req models.SyncRequest) SyncRequestEvent {
	return SyncRequestEvent{
		RequestID: req.ID,
		LeadID:    req.LeadID,
		Reason:    req.Reason,
		Fields:    req.Fields,
		CreatedAt: req.CreatedAt,
		TraceID:   tracing.GetTraceID(ctx),
	}
}

// PublishSyncRequests writes the requests in one batch, keyed by lead so that requests
// for the same lead stay ordered on one partition.
func (p *Producer) PublishSyncRequests(ctx context.Context, requests []models.SyncRequest) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishSyncRequests")
	defer span.End()

	if len(requests) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(requests))
	for _, req := range requests {
		msg, err := syncMessage(p.topic, NewSyncRequestEvent(ctx, req))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("count", len(msgs)).Error("Failed to publish sync requests")
		return err
	}

	for _, req := range requests {
		metrics.SyncRequestsPublishedTotal.WithLabelValues(req.Reason).Inc()
	}
	p.logger.WithContext(ctx).WithField("count", len(msgs)).Debug("Published sync requests")
	return nil
}

func syncMessage(topic string, event SyncRequestEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Topic: topic,
		Key:   []byte(event.LeadID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(event.Reason)},
			{Key: "request_id", Value: []byte(event.RequestID)},
		},
	}, nil
}
