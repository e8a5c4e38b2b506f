// Package matching resolves meeting participants to canonical leads through an ordered
// pipeline of matching tiers, strongest signal first.
package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// lookupLimit bounds each repository lookup made by a tier.
const lookupLimit = 200

// LeadSource is the read side of the lead repository the tiers query.
type LeadSource interface {
	// GetByEmail returns the lead with this email (case-insensitive) or nil.
	GetByEmail(ctx context.Context, email string) (*models.Lead, error)
	// FindByCompany returns leads whose company contains company (case-insensitive).
	FindByCompany(ctx context.Context, company string, limit int) ([]models.Lead, error)
	// FindByEmailDomain returns leads whose email is at domain.
	FindByEmailDomain(ctx context.Context, domain string, limit int) ([]models.Lead, error)
	// FindByPhoneSuffix returns leads whose phone or mobile ends with digits.
	FindByPhoneSuffix(ctx context.Context, digits string, limit int) ([]models.Lead, error)
}

// Engine runs the tier pipeline for one participant at a time. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	logger ectologger.Logger
	leads  LeadSource
	scorer *Scorer
	gate   Gate
	policy Policy
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, leads LeadSource, policy Policy) *Engine {
	policy = policy.normalized()
	return &Engine{
		logger: logger,
		leads:  leads,
		scorer: NewScorer(),
		gate:   NewGate(policy),
		policy: policy,
	}
}

// Policy returns the engine's effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Resolve matches a participant, blends in enrichment when present and applies the
// verification gate.
func (e *Engine) Resolve(ctx context.Context, participant models.ParticipantRecord, enrichment *models.EnrichmentRecord) (models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Resolve")
	defer span.End()

	start := time.Now()
	result, err := e.Match(ctx, participant)
	if err != nil {
		return models.MatchResult{}, err
	}

	result = e.gate.Evaluate(e.Blend(result, enrichment))

	matchType := "none"
	if result.Match != nil {
		matchType = string(result.Match.MatchType)
	}
	metrics.MatchDuration.Observe(time.Since(start).Seconds())
	metrics.MatchResultsTotal.WithLabelValues(matchType, string(result.Decision())).Inc()

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"match_type":      matchType,
		"matched_lead_id": result.MatchedLeadID(),
		"confidence":      result.Confidence(),
		"candidates":      len(result.Candidates),
		"decision":        result.Decision(),
	}).Debug("Resolved participant")

	return result, nil
}

// Match runs the tiers in order and returns the raw result, before enrichment and the
// verification gate. A participant without an email enters no tier.
func (e *Engine) Match(ctx context.Context, participant models.ParticipantRecord) (models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	state := newMatchState(participant)
	if !participant.HasEmail() {
		return state.result(e.policy.MaxCandidates), nil
	}

	tiers := []struct {
		name string
		run  func(context.Context, matchState) (matchState, error)
	}{
		{"exact_email", e.exactEmail},
		{"name_company", e.nameCompany},
		{"domain", e.domain},
		{"phone", e.phone},
		{"fuzzy_name", e.fuzzyName},
	}

	for _, tier := range tiers {
		next, err := tier.run(ctx, state)
		if err != nil {
			return models.MatchResult{}, fmt.Errorf("%s tier: %w", tier.name, err)
		}
		state = next
		if state.done {
			break
		}
	}

	return state.result(e.policy.MaxCandidates), nil
}

// exactEmail: a case-insensitive email hit is certain and ends the pipeline.
func (e *Engine) exactEmail(ctx context.Context, s matchState) (matchState, error) {
	lead, err := e.leads.GetByEmail(ctx, normalizers.NormalizeEmail(s.participant.Email))
	if err != nil {
		return s, err
	}
	if lead == nil {
		return s, nil
	}

	c := candidate(*lead, 1.0, models.MatchTypeExactEmail)
	return s.withCandidates(c).accept(c).finish(), nil
}

// nameCompany: same-company leads sharing a name token. Accepting at HIGH ends the pipeline.
func (e *Engine) nameCompany(ctx context.Context, s matchState) (matchState, error) {
	p := s.participant
	if strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Company) == "" {
		return s, nil
	}

	leads, err := e.leads.FindByCompany(ctx, p.Company, lookupLimit)
	if err != nil {
		return s, err
	}

	tokens := normalizers.NameTokens(p.Name)
	overlapping := ectolinq.Filter(leads, func(l models.Lead) bool {
		return namesOverlap(tokens, l)
	})
	if len(overlapping) == 0 {
		return s, nil
	}

	candidates := ectolinq.Map(overlapping, func(l models.Lead) models.MatchCandidate {
		return candidate(l, e.nameCompanyScore(p, l), models.MatchTypeNameCompany)
	})
	s = s.withCandidates(candidates...)

	if best, clear := bestOf(candidates); clear && best.Confidence >= e.policy.HighThreshold {
		return s.accept(best).finish(), nil
	}
	return s, nil
}

// domain: leads at the participant's corporate email domain.
func (e *Engine) domain(ctx context.Context, s matchState) (matchState, error) {
	domain := normalizers.EmailDomain(s.participant.Email)
	if domain == "" || IsCommonDomain(domain) {
		return s, nil
	}

	leads, err := e.leads.FindByEmailDomain(ctx, domain, lookupLimit)
	if err != nil {
		return s, err
	}
	if len(leads) == 0 {
		return s, nil
	}

	generic := IsGenericDomain(domain)
	candidates := ectolinq.Map(leads, func(l models.Lead) models.MatchCandidate {
		confidence := e.policy.DomainBase
		if s.participant.Company != "" {
			confidence += e.policy.DomainCompanyBoost * e.scorer.CompanySimilarity(s.participant.Company, l.Company)
		}
		if generic {
			confidence *= e.policy.GenericDomainFactor
		}
		return candidate(l, min(confidence, e.policy.DomainCap), models.MatchTypeDomain)
	})
	s = s.withCandidates(candidates...)

	if best, clear := bestOf(candidates); clear && best.Confidence >= e.policy.MediumThreshold && s.beats(best.Confidence) {
		s = s.accept(best)
	}
	return s, nil
}

// phone: normalized phone against both phone and mobile; overrides a weaker match.
func (e *Engine) phone(ctx context.Context, s matchState) (matchState, error) {
	digits := LastDigits(s.participant.Phone)
	if digits == "" {
		return s, nil
	}

	leads, err := e.leads.FindByPhoneSuffix(ctx, digits, lookupLimit)
	if err != nil {
		return s, err
	}

	var candidates []models.MatchCandidate
	for _, l := range leads {
		score := max(e.scorer.PhoneMatch(s.participant.Phone, l.Phone), e.scorer.PhoneMatch(s.participant.Phone, l.Mobile))
		if score > 0 {
			candidates = append(candidates, candidate(l, e.capped(score), models.MatchTypePhone))
		}
	}
	if len(candidates) == 0 {
		return s, nil
	}
	s = s.withCandidates(candidates...)

	if best, clear := bestOf(candidates); clear && best.Confidence >= e.policy.MediumThreshold && s.beats(best.Confidence) {
		s = s.accept(best)
	}
	return s, nil
}

// fuzzyName: last resort over every same-company lead, only while nothing is accepted.
func (e *Engine) fuzzyName(ctx context.Context, s matchState) (matchState, error) {
	p := s.participant
	if s.hasMatch() || strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Company) == "" {
		return s, nil
	}

	leads, err := e.leads.FindByCompany(ctx, p.Company, lookupLimit)
	if err != nil {
		return s, err
	}

	var candidates []models.MatchCandidate
	for _, l := range leads {
		if score := e.nameCompanyScore(p, l); score > 0 {
			candidates = append(candidates, candidate(l, score, models.MatchTypeFuzzyName))
		}
	}
	if len(candidates) == 0 {
		return s, nil
	}
	s = s.withCandidates(candidates...)

	if best, clear := bestOf(candidates); clear && best.Confidence >= e.policy.LowThreshold {
		s = s.accept(best)
	}
	return s, nil
}

func (e *Engine) nameCompanyScore(p models.ParticipantRecord, l models.Lead) float64 {
	score := e.policy.NameWeight*e.scorer.NameSimilarity(p.Name, l.FullName()) +
		e.policy.CompanyWeight*e.scorer.CompanySimilarity(p.Company, l.Company)
	return e.capped(score)
}

// capped keeps inferred confidences strictly below an exact email match.
func (e *Engine) capped(confidence float64) float64 {
	return min(confidence, e.policy.MaxInferredConfidence)
}

// namesOverlap reports whether any participant name token matches, or is a prefix of at
// least three letters of, the lead's first or last name tokens.
func namesOverlap(tokens []string, l models.Lead) bool {
	leadTokens := append(normalizers.NameTokens(l.FirstName), normalizers.NameTokens(l.LastName)...)
	for _, t := range tokens {
		for _, lt := range leadTokens {
			if t == lt {
				return true
			}
			if len(t) >= 3 && len(lt) >= 3 && (strings.HasPrefix(t, lt) || strings.HasPrefix(lt, t)) {
				return true
			}
		}
	}
	return false
}

func candidate(l models.Lead, confidence float64, matchType models.MatchType) models.MatchCandidate {
	return models.MatchCandidate{
		LeadID:     l.ID,
		Email:      l.Email,
		FullName:   l.FullName(),
		Company:    l.Company,
		Confidence: confidence,
		MatchType:  matchType,
	}
}
