package review

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const DefaultRelayBatchSize = 100

// OutboxStore is the sync request outbox.
type OutboxStore interface {
	ListUnpublished(ctx context.Context, limit int) ([]models.SyncRequest, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Publisher delivers sync requests to the external sync pipeline.
type Publisher interface {
	PublishSyncRequests(ctx context.Context, requests []models.SyncRequest) error
}

// SyncRelay moves outbox rows to the publisher. Rows are marked only after the publisher
// accepts them, so a crash in between republishes rather than loses them.
type SyncRelay struct {
	outbox    OutboxStore
	publisher Publisher
	batchSize int
	logger    ectologger.Logger
}

func NewSyncRelay(outbox OutboxStore, publisher Publisher, batchSize int, logger ectologger.Logger) *SyncRelay {
	if batchSize <= 0 {
		batchSize = DefaultRelayBatchSize
	}
	return &SyncRelay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
	}
}

// RelayOnce publishes one batch and returns how many requests were published.
func (r *SyncRelay) RelayOnce(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "review.SyncRelay.RelayOnce")
	defer span.End()

	pending, err := r.outbox.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := r.publisher.PublishSyncRequests(ctx, pending); err != nil {
		return 0, err
	}

	ids := make([]string, len(pending))
	for i, req := range pending {
		ids[i] = req.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, time.Now().UTC()); err != nil {
		return 0, err
	}

	r.logger.WithContext(ctx).WithField("count", len(pending)).Debug("Relayed sync requests")
	return len(pending), nil
}
