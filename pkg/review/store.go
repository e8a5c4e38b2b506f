package review

import (
	"context"
	"time"

	"github.com/Ramsey-B/sage/pkg/models"
)

type LeadStore interface {
	Get(ctx context.Context, id string) (*models.Lead, error)
	// UpdateFields writes the named local fields of lead.
	UpdateFields(ctx context.Context, lead *models.Lead, fields []string) error
}

type ConflictStore interface {
	// CreateBatch inserts conflicts in their current state and returns them with IDs.
	CreateBatch(ctx context.Context, conflicts []models.FieldConflict) ([]models.FieldConflict, error)
	ListByReviewItem(ctx context.Context, reviewItemID string) ([]models.FieldConflict, error)
	// ListPendingByLead lists the lead's pending conflicts that wait in a review item,
	// oldest first, and locks them until the transaction ends.
	ListPendingByLead(ctx context.Context, leadID string) ([]models.FieldConflict, error)
	// Refresh replaces a pending conflict's values, type and severity.
	Refresh(ctx context.Context, conflict models.FieldConflict) error
	// Resolve writes a conflict's resolution status, value and resolver.
	Resolve(ctx context.Context, conflict models.FieldConflict) error
}

type ItemStore interface {
	Create(ctx context.Context, item *models.ReviewItem) (*models.ReviewItem, error)
	Get(ctx context.Context, id string) (*models.ReviewItem, error)
	// GetForUpdate reads the item and locks its row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.ReviewItem, error)
	// ListPending lists pending items, oldest first, optionally only those assigned to assignee.
	ListPending(ctx context.Context, assignee string, limit int) ([]models.ReviewItem, error)
	// ListExpired lists pending items created before the cutoff, oldest first.
	ListExpired(ctx context.Context, createdBefore time.Time, limit int) ([]models.ReviewItem, error)
	Update(ctx context.Context, item *models.ReviewItem) error
}

type SyncStore interface {
	Create(ctx context.Context, req *models.SyncRequest) (*models.SyncRequest, error)
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores groups the persistence the workflow writes in one transaction.
type Stores struct {
	Leads     LeadStore
	Conflicts ConflictStore
	Items     ItemStore
	Syncs     SyncStore
	Tx        Transactor
}
