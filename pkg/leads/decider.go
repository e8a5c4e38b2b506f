// Package leads decides what happens to a participant the matcher could not place, and
// creates the new canonical lead when that is the outcome.
package leads

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
	"github.com/Ramsey-B/sage/pkg/stage"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// SourceMeeting marks leads created from meeting participants.
const SourceMeeting = "meeting"

// ErrDuplicateEmail is returned by a Store when the unique email constraint rejects an insert.
var ErrDuplicateEmail = errors.New("lead with this email already exists")

// Store is the write side of the lead repository.
type Store interface {
	Create(ctx context.Context, lead *models.Lead) (*models.Lead, error)
	GetByEmail(ctx context.Context, email string) (*models.Lead, error)
}

// Action is what the decider did with a match result.
type Action string

const (
	ActionMatched   Action = "matched"
	ActionVerify    Action = "verify"
	ActionCreated   Action = "created"
	ActionRematched Action = "rematched"
	ActionQueued    Action = "queued"
)

// Outcome reports the action taken. Result is the match result after the action; a
// rematch replaces it with an exact email match on the existing lead.
type Outcome struct {
	Action Action
	Lead   *models.Lead
	Result models.MatchResult
}

type Decider struct {
	logger ectologger.Logger
	store  Store
}

func NewDecider(logger ectologger.Logger, store Store) *Decider {
	return &Decider{
		logger: logger,
		store:  store,
	}
}

// Decide applies a gated match result. Only a result that asks for a new lead and
// nothing else creates one; a result that also asks for verification is queued for
// review before anything is created.
func (d *Decider) Decide(ctx context.Context, result models.MatchResult) (Outcome, error) {
	switch result.Decision() {
	case models.DecisionCreateLead:
		return d.Create(ctx, result)
	case models.DecisionAcceptMatch:
		metrics.LeadDecisionsTotal.WithLabelValues(string(ActionMatched)).Inc()
		return Outcome{Action: ActionMatched, Result: result}, nil
	case models.DecisionVerifyMatch:
		metrics.LeadDecisionsTotal.WithLabelValues(string(ActionVerify)).Inc()
		return Outcome{Action: ActionVerify, Result: result}, nil
	default:
		metrics.LeadDecisionsTotal.WithLabelValues(string(ActionQueued)).Inc()
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"email":      result.Participant.Email,
			"candidates": len(result.Candidates),
		}).Info("Participant queued for review before lead creation")
		return Outcome{Action: ActionQueued, Result: result}, nil
	}
}

// Create inserts the lead drafted from the result's participant. When another writer
// created the same email first, the existing lead is fetched and returned as an exact match.
func (d *Decider) Create(ctx context.Context, result models.MatchResult) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "leads.Decider.Create")
	defer span.End()

	draft := Draft(result.Participant)
	if draft.Email == "" {
		return Outcome{}, httperror.NewHTTPError(http.StatusBadRequest, "cannot create a lead without an email")
	}

	created, err := d.store.Create(ctx, &draft)
	if err == nil {
		metrics.LeadDecisionsTotal.WithLabelValues(string(ActionCreated)).Inc()
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"lead_id": created.ID,
			"email":   created.Email,
		}).Info("Created lead")
		return Outcome{Action: ActionCreated, Lead: created, Result: result}, nil
	}
	if !errors.Is(err, ErrDuplicateEmail) {
		return Outcome{}, err
	}

	existing, err := d.store.GetByEmail(ctx, draft.Email)
	if err != nil {
		return Outcome{}, err
	}
	if existing == nil {
		// the conflicting row is gone again; surface the original conflict
		return Outcome{}, httperror.NewHTTPErrorf(http.StatusConflict, "lead with email %s already exists", draft.Email)
	}

	metrics.LeadDecisionsTotal.WithLabelValues(string(ActionRematched)).Inc()
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"lead_id": existing.ID,
		"email":   existing.Email,
	}).Info("Lead created concurrently, re-matched to existing lead")

	match := models.MatchCandidate{
		LeadID:     existing.ID,
		Email:      existing.Email,
		FullName:   existing.FullName(),
		Company:    existing.Company,
		Confidence: 1.0,
		MatchType:  models.MatchTypeExactEmail,
	}
	rematched := models.MatchResult{
		Participant: result.Participant,
		Match:       &match,
		Candidates:  []models.MatchCandidate{match},
	}
	return Outcome{Action: ActionRematched, Lead: existing, Result: rematched}, nil
}

// Draft builds the lead that would be created for a participant.
func Draft(p models.ParticipantRecord) models.Lead {
	first, last := splitName(p)
	return models.Lead{
		Email:              normalizers.NormalizeEmail(p.Email),
		FirstName:          first,
		LastName:           last,
		Company:            inferCompany(p),
		Title:              strings.TrimSpace(p.Title),
		Phone:              strings.TrimSpace(p.Phone),
		Status:             models.LeadStatusNew,
		QualificationScore: 0,
		Source:             SourceMeeting,
		RelationshipStage:  string(stage.Prospect),
	}
}

// splitName takes the first word of the name as first name and the rest as last name.
// Without a name, an email local part like jane.doe or jane_doe is split the same way.
func splitName(p models.ParticipantRecord) (string, string) {
	if words := strings.Fields(p.Name); len(words) > 0 {
		return words[0], strings.Join(words[1:], " ")
	}

	local := normalizers.EmailLocalPart(p.Email)
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_'
	})
	if len(parts) >= 2 {
		return normalizers.TitleCase(parts[0]), normalizers.TitleCase(strings.Join(parts[1:], " "))
	}
	return local, ""
}

// inferCompany uses the company given, else the first label of a corporate email domain.
func inferCompany(p models.ParticipantRecord) string {
	if company := strings.TrimSpace(p.Company); company != "" {
		return company
	}

	domain := normalizers.EmailDomain(p.Email)
	if domain == "" || matching.IsCommonDomain(domain) {
		return ""
	}
	label, _, _ := strings.Cut(domain, ".")
	return normalizers.TitleCase(label)
}
