package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
)

func TestSyncMessage(t *testing.T) {
	created := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	event := NewSyncRequestEvent(context.Background(), models.SyncRequest{
		ID:        "sync-1",
		LeadID:    "lead-1",
		Reason:    models.SyncReasonApproved,
		Fields:    []string{models.FieldCompanyName, models.FieldPhone},
		CreatedAt: created,
	})

	msg, err := syncMessage(DefaultSyncTopic, event)
	require.NoError(t, err)

	assert.Equal(t, DefaultSyncTopic, msg.Topic)
	assert.Equal(t, []byte("lead-1"), msg.Key)
	assert.Equal(t, []kafka.Header{
		{Key: "reason", Value: []byte(models.SyncReasonApproved)},
		{Key: "request_id", Value: []byte("sync-1")},
	}, msg.Headers)

	var decoded SyncRequestEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event, decoded)
	assert.Empty(t, decoded.TraceID)
}

func TestCompressionCodec(t *testing.T) {
	tests := []struct {
		name string
		want kafka.Compression
	}{
		{"gzip", kafka.Gzip},
		{"lz4", kafka.Lz4},
		{"zstd", kafka.Zstd},
		{"none", 0},
		{"", kafka.Snappy},
		{"snappy", kafka.Snappy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compressionCodec(tt.name))
		})
	}
}

func TestNewProducerDefaultsTopic(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}}, nil)
	defer p.Close()

	assert.Equal(t, DefaultSyncTopic, p.topic)
	assert.NoError(t, p.PublishSyncRequests(context.Background(), nil))
}
