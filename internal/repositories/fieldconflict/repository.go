package fieldconflict

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

const table = "field_conflicts"

var columns = []string{
	"id", "lead_id", "review_item_id", "field", "external_field", "local_value", "external_value",
	"conflict_type", "severity", "resolution_status", "resolved_value", "resolved_by", "resolved_at",
	"created_at",
}

// row carries the JSONB columns the model keeps as plain values.
type row struct {
	models.FieldConflict
	Local    database.JSONB[any] `db:"local_value"`
	External database.JSONB[any] `db:"external_value"`
	Resolved database.JSONB[any] `db:"resolved_value"`
}

func (r row) conflict() models.FieldConflict {
	c := r.FieldConflict
	c.LocalValue = r.Local.Data
	c.ExternalValue = r.External.Data
	c.ResolvedValue = r.Resolved.Data
	return c
}

// Repository handles field conflict persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new field conflict repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts conflicts in one statement and returns them with IDs assigned
func (r *Repository) CreateBatch(ctx context.Context, conflicts []models.FieldConflict) ([]models.FieldConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "fieldconflict.Repository.CreateBatch")
	defer span.End()

	if len(conflicts) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	out := make([]models.FieldConflict, len(conflicts))

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	for i, c := range conflicts {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.ResolutionStatus == "" {
			c.ResolutionStatus = models.ResolutionPending
		}
		c.CreatedAt = now
		sb.Values(c.ID, c.LeadID, c.ReviewItemID, c.Field, c.ExternalField,
			database.NewJSONB(c.LocalValue), database.NewJSONB(c.ExternalValue),
			c.ConflictType, c.Severity, c.ResolutionStatus, database.NewJSONB(c.ResolvedValue),
			c.ResolvedBy, c.ResolvedAt, c.CreatedAt)
		out[i] = c
	}

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(conflicts)).Error("Failed to create field conflicts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create field conflicts")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(out)}).Debug("Created field conflicts batch")
	return out, nil
}

// ListByReviewItem retrieves the conflicts grouped under a review item, ordered by field
func (r *Repository) ListByReviewItem(ctx context.Context, reviewItemID string) ([]models.FieldConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "fieldconflict.Repository.ListByReviewItem")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("review_item_id", reviewItemID))
	sb.OrderBy("field", "created_at")

	return r.list(ctx, sb, "list field conflicts by review item")
}

// ListPendingByLead retrieves the lead's pending conflicts that belong to a review item,
// oldest first, locking the rows until the surrounding transaction ends
func (r *Repository) ListPendingByLead(ctx context.Context, leadID string) ([]models.FieldConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "fieldconflict.Repository.ListPendingByLead")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Equal("lead_id", leadID),
		sb.Equal("resolution_status", models.ResolutionPending),
		sb.IsNotNull("review_item_id"),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	return r.query(ctx, query+" FOR UPDATE", args, "list pending field conflicts by lead")
}

// Refresh replaces the values, type and severity of a pending conflict
func (r *Repository) Refresh(ctx context.Context, conflict models.FieldConflict) error {
	ctx, span := tracing.StartSpan(ctx, "fieldconflict.Repository.Refresh")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("external_field", conflict.ExternalField),
		ub.Assign("local_value", database.NewJSONB(conflict.LocalValue)),
		ub.Assign("external_value", database.NewJSONB(conflict.ExternalValue)),
		ub.Assign("conflict_type", conflict.ConflictType),
		ub.Assign("severity", conflict.Severity),
	)
	ub.Where(
		ub.Equal("id", conflict.ID),
		ub.Equal("resolution_status", models.ResolutionPending),
	)

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("conflict_id", conflict.ID).Error("Failed to refresh field conflict")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to refresh field conflict")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "field conflict %s is not pending", conflict.ID)
	}

	return nil
}

// Resolve records a conflict's terminal status. Only pending conflicts are updated.
func (r *Repository) Resolve(ctx context.Context, conflict models.FieldConflict) error {
	ctx, span := tracing.StartSpan(ctx, "fieldconflict.Repository.Resolve")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("resolution_status", conflict.ResolutionStatus),
		ub.Assign("resolved_value", database.NewJSONB(conflict.ResolvedValue)),
		ub.Assign("resolved_by", conflict.ResolvedBy),
		ub.Assign("resolved_at", conflict.ResolvedAt),
	)
	ub.Where(
		ub.Equal("id", conflict.ID),
		ub.Equal("resolution_status", models.ResolutionPending),
	)

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("conflict_id", conflict.ID).Error("Failed to resolve field conflict")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve field conflict")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "field conflict %s is not pending", conflict.ID)
	}

	return nil
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) ([]models.FieldConflict, error) {
	query, args := sb.Build()
	return r.query(ctx, query, args, action)
}

func (r *Repository) query(ctx context.Context, query string, args []any, action string) ([]models.FieldConflict, error) {
	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", action)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to "+action)
	}

	out := make([]models.FieldConflict, len(rows))
	for i, rw := range rows {
		out[i] = rw.conflict()
	}
	return out, nil
}
