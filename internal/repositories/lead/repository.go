package lead

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/leads"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const table = "leads"

var columns = []string{
	"id", "email", "first_name", "last_name", "company_name", "job_title", "phone", "mobile_phone",
	"status", "qualification_score", "budget", "decision_date", "probability", "source",
	"relationship_stage", "decision_role", "industry", "last_meeting_date", "meeting_count",
	"external_id", "created_at", "updated_at",
}

// Repository handles lead persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new lead repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a lead by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var lead models.Lead
	if err := r.db.Conn(ctx).GetContext(ctx, &lead, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("lead %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithField("lead_id", id).Error("Failed to get lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lead")
	}

	return &lead, nil
}

// GetByEmail retrieves a lead by case-insensitive email, or nil when none exists
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.GetByEmail")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(fmt.Sprintf("lower(email) = lower(%s)", sb.Var(email)))
	sb.Limit(1)

	query, args := sb.Build()
	var lead models.Lead
	if err := r.db.Conn(ctx).GetContext(ctx, &lead, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get lead by email")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lead by email")
	}

	return &lead, nil
}

// Create inserts a lead. A second lead with the same email yields leads.ErrDuplicateEmail.
func (r *Repository) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.Create")
	defer span.End()

	created := *lead
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	if created.Status == "" {
		created.Status = models.LeadStatusNew
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(values(&created, columns)...)

	query, args := sb.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", leads.ErrDuplicateEmail, created.Email)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("lead_id", created.ID).Error("Failed to create lead")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create lead")
	}

	return &created, nil
}

// FindByCompany retrieves leads whose company contains company, case-insensitively
func (r *Repository) FindByCompany(ctx context.Context, company string, limit int) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.FindByCompany")
	defer span.End()

	company = strings.TrimSpace(company)
	if company == "" {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(fmt.Sprintf("company_name ILIKE %s", sb.Var("%"+escapeLike(company)+"%")))
	sb.OrderBy("created_at")
	sb.Limit(limitOrDefault(limit))

	return r.list(ctx, sb, "find leads by company")
}

// FindByEmailDomain retrieves leads whose email is at domain
func (r *Repository) FindByEmailDomain(ctx context.Context, domain string, limit int) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.FindByEmailDomain")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(fmt.Sprintf("lower(split_part(email, '@', 2)) = lower(%s)", sb.Var(domain)))
	sb.OrderBy("created_at")
	sb.Limit(limitOrDefault(limit))

	return r.list(ctx, sb, "find leads by email domain")
}

// FindByPhoneSuffix retrieves leads whose phone or mobile digits end with digits
func (r *Repository) FindByPhoneSuffix(ctx context.Context, digits string, limit int) ([]models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.FindByPhoneSuffix")
	defer span.End()

	if digits == "" {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Or(
		fmt.Sprintf("right(phone_digits, %d) = %s", len(digits), sb.Var(digits)),
		fmt.Sprintf("right(mobile_digits, %d) = %s", len(digits), sb.Var(digits)),
	))
	sb.OrderBy("created_at")
	sb.Limit(limitOrDefault(limit))

	return r.list(ctx, sb, "find leads by phone")
}

// UpdateFields writes the named local fields of lead and bumps updated_at
func (r *Repository) UpdateFields(ctx context.Context, lead *models.Lead, fields []string) error {
	ctx, span := tracing.StartSpan(ctx, "lead.Repository.UpdateFields")
	defer span.End()

	lead.UpdatedAt = time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	assignments := []string{ub.Assign("updated_at", lead.UpdatedAt)}
	for _, field := range fields {
		value, ok := column(lead, field)
		if !ok || field == "id" || field == "created_at" {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "lead field %s cannot be updated", field)
		}
		assignments = append(assignments, ub.Assign(field, value))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", lead.ID))

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", leads.ErrDuplicateEmail, lead.Email)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("lead_id", lead.ID).Error("Failed to update lead")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update lead")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("lead %s not found", lead.ID))
	}

	return nil
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder, action string) ([]models.Lead, error) {
	query, args := sb.Build()
	var found []models.Lead
	if err := r.db.Conn(ctx).SelectContext(ctx, &found, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", action)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to "+action)
	}
	return found, nil
}

// column returns the storage value of one lead column.
func column(l *models.Lead, name string) (any, bool) {
	switch name {
	case "id":
		return l.ID, true
	case models.FieldEmail:
		return l.Email, true
	case models.FieldFirstName:
		return l.FirstName, true
	case models.FieldLastName:
		return l.LastName, true
	case models.FieldCompanyName:
		return l.Company, true
	case models.FieldJobTitle:
		return l.Title, true
	case models.FieldPhone:
		return l.Phone, true
	case models.FieldMobilePhone:
		return l.Mobile, true
	case models.FieldStatus:
		return l.Status, true
	case models.FieldQualificationScore:
		return l.QualificationScore, true
	case models.FieldBudget:
		return l.Budget, true
	case models.FieldDecisionDate:
		return l.DecisionDate, true
	case models.FieldProbability:
		return l.Probability, true
	case models.FieldSource:
		return l.Source, true
	case models.FieldRelationshipStage:
		return l.RelationshipStage, true
	case models.FieldDecisionRole:
		return l.DecisionRole, true
	case models.FieldIndustry:
		return l.Industry, true
	case models.FieldLastMeetingDate:
		return l.LastMeetingDate, true
	case models.FieldMeetingCount:
		return l.MeetingCount, true
	case "external_id":
		return l.ExternalID, true
	case "created_at":
		return l.CreatedAt, true
	case "updated_at":
		return l.UpdatedAt, true
	default:
		return nil, false
	}
}

func values(l *models.Lead, cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i], _ = column(l, c)
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func limitOrDefault(limit int) int {
	if limit < 1 || limit > 500 {
		return 100
	}
	return limit
}
