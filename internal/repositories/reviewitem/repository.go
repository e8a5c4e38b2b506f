package reviewitem

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const table = "review_items"

var columns = []string{
	"id", "lead_id", "status", "assignee", "notes", "reject_reason", "due_at",
	"created_at", "updated_at", "resolved_at", "resolved_by",
}

// Repository handles review item persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a review item
func (r *Repository) Create(ctx context.Context, item *models.ReviewItem) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewitem.Repository.Create")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = models.ReviewStatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(item.ID, item.LeadID, item.Status, item.Assignee, item.Notes, item.RejectReason, item.DueAt,
		item.CreatedAt, item.UpdatedAt, item.ResolvedAt, item.ResolvedBy)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"review_item_id": item.ID, "lead_id": item.LeadID}).Error("Failed to create review item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create review item")
	}

	return item, nil
}

// Get retrieves a review item by ID, without its conflicts
func (r *Repository) Get(ctx context.Context, id string) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewitem.Repository.Get")
	defer span.End()

	return r.get(ctx, id, "")
}

// GetForUpdate retrieves a review item and locks its row until the surrounding
// transaction ends
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewitem.Repository.GetForUpdate")
	defer span.End()

	return r.get(ctx, id, " FOR UPDATE")
}

func (r *Repository) get(ctx context.Context, id, suffix string) (*models.ReviewItem, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var item models.ReviewItem
	if err := r.db.Conn(ctx).GetContext(ctx, &item, query+suffix, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review item %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithField("review_item_id", id).Error("Failed to get review item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review item")
	}

	return &item, nil
}

// ListPending retrieves pending items oldest first, for one assignee when assignee is set
func (r *Repository) ListPending(ctx context.Context, assignee string, limit int) ([]models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewitem.Repository.ListPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	where := []string{sb.Equal("status", models.ReviewStatusPending)}
	if assignee != "" {
		where = append(where, sb.Equal("assignee", assignee))
	}
	sb.Where(where...)
	sb.OrderBy("created_at", "id")
	sb.Limit(limitOrDefault(limit))

	return r.list(ctx, sb, "list pending review items")
}

// ListExpired retrieves pending items created before createdBefore, oldest first
func (r *Repository) ListExpired(ctx context.Context, createdBefore time.Time, limit int) ([]models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewitem.Repository.ListExpired")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("status", models.ReviewStatusPending),
		sb.LessThan("created_at", createdBefore),
	)
	sb.OrderBy("created_at", "id")
	sb.Limit(limitOrDefault(limit))

	return r.list(ctx, sb, "list expired review items")
}

// Update writes the item's mutable columns: status, assignee, notes and resolution
func (r *Repository) Update(ctx context.Context, item *models.ReviewItem) error {
	ctx, span := tracing.StartSpan(ctx, "reviewitem.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", item.Status),
		ub.Assign("assignee", item.Assignee),
		ub.Assign("notes", item.Notes),
		ub.Assign("reject_reason", item.RejectReason),
		ub.Assign("updated_at", item.UpdatedAt),
		ub.Assign("resolved_at", item.ResolvedAt),
		ub.Assign("resolved_by", item.ResolvedBy),
	)
	ub.Where(ub.Equal("id", item.ID))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("review_item_id", item.ID).Error("Failed to update review item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update review item")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review item %s not found", item.ID))
	}

	return nil
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) ([]models.ReviewItem, error) {
	query, args := sb.Build()
	var items []models.ReviewItem
	if err := r.db.Conn(ctx).SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", action)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to "+action)
	}
	return items, nil
}

func limitOrDefault(limit int) int {
	if limit < 1 || limit > 500 {
		return 100
	}
	return limit
}
