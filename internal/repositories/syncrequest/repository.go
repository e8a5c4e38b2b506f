package syncrequest

import (
	"context"
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

const table = "sync_requests"

var columns = []string{"id", "lead_id", "reason", "fields", "created_at", "published_at"}

type row struct {
	models.SyncRequest
	FieldList database.JSONB[[]string] `db:"fields"`
}

// Repository is the sync request outbox
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new sync request repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a request to the outbox
func (r *Repository) Create(ctx context.Context, req *models.SyncRequest) (*models.SyncRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrequest.Repository.Create")
	defer span.End()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.CreatedAt = time.Now().UTC()
	if req.Fields == nil {
		req.Fields = []string{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(req.ID, req.LeadID, req.Reason, database.NewJSONB(req.Fields), req.CreatedAt, req.PublishedAt)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("lead_id", req.LeadID).Error("Failed to create sync request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create sync request")
	}

	return req, nil
}

// ListUnpublished retrieves unpublished requests oldest first
func (r *Repository) ListUnpublished(ctx context.Context, limit int) ([]models.SyncRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrequest.Repository.ListUnpublished")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.IsNull("published_at"))
	sb.OrderBy("created_at", "id")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unpublished sync requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unpublished sync requests")
	}

	out := make([]models.SyncRequest, len(rows))
	for i, rw := range rows {
		out[i] = rw.SyncRequest
		out[i].Fields = rw.FieldList.Data
	}
	return out, nil
}

// MarkPublished stamps the requests as published at at
func (r *Repository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "syncrequest.Repository.MarkPublished")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("published_at", at))
	ub.Where(
		ub.In("id", sqlbuilder.Flatten(ids)...),
		ub.IsNull("published_at"),
	)

	query, args := ub.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(ids)).Error("Failed to mark sync requests published")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark sync requests published")
	}

	r.logger.WithContext(ctx).WithField("count", len(ids)).Debug("Marked sync requests published")
	return nil
}
