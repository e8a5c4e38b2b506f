// Package processor runs batches through matching and conflict reconciliation. Work is
// fanned out over a bounded pool and every item fails on its own.
package processor

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/sage/pkg/conflicts"
	"github.com/Ramsey-B/sage/pkg/leads"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/review"
	"github.com/Ramsey-B/sage/pkg/snapshot"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const (
	DefaultWorkers         = 8
	DefaultSnapshotTimeout = 5 * time.Second
)

// Resolver matches one participant; *matching.Engine implements it.
type Resolver interface {
	Resolve(ctx context.Context, participant models.ParticipantRecord, enrichment *models.EnrichmentRecord) (models.MatchResult, error)
}

// Decider acts on a gated match result; *leads.Decider implements it.
type Decider interface {
	Decide(ctx context.Context, result models.MatchResult) (leads.Outcome, error)
}

// Reconciler persists detected conflicts; *review.Workflow implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, req review.ReconcileRequest) (review.ReconcileResult, error)
}

// LeadReader loads the local side of a reconciliation.
type LeadReader interface {
	Get(ctx context.Context, id string) (*models.Lead, error)
}

// invalidator is implemented by fetchers that cache snapshots.
type invalidator interface {
	Invalidate(ctx context.Context, leadID string) error
}

type Config struct {
	// Workers bounds concurrent matches and reconciliations
	Workers int

	// SnapshotTimeout bounds one external snapshot fetch
	SnapshotTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         DefaultWorkers,
		SnapshotTimeout: DefaultSnapshotTimeout,
	}
}

// Deps are the collaborators of a Processor.
type Deps struct {
	Resolver   Resolver
	Decider    Decider
	Leads      LeadReader
	Fetcher    snapshot.Fetcher
	Detector   *conflicts.Detector
	Reconciler Reconciler
}

type Processor struct {
	deps   Deps
	config Config
	logger ectologger.Logger
}

func NewProcessor(deps Deps, config Config, logger ectologger.Logger) *Processor {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.SnapshotTimeout <= 0 {
		config.SnapshotTimeout = DefaultSnapshotTimeout
	}
	return &Processor{
		deps:   deps,
		config: config,
		logger: logger,
	}
}

// MatchRequest is one participant with its optional pre-fetched enrichment.
type MatchRequest struct {
	Participant models.ParticipantRecord `json:"participant"`
	Enrichment  *models.EnrichmentRecord `json:"enrichment,omitempty"`
}

// MatchOutcome is the result for one participant. Err is set when that participant
// failed; Outcome is then empty.
type MatchOutcome struct {
	Participant models.ParticipantRecord
	Outcome     leads.Outcome
	Err         error
}

// MatchParticipants matches every participant concurrently, then applies the decisions
// in input order so that creations within one batch are deterministic. The returned
// slice lines up with requests.
func (p *Processor) MatchParticipants(ctx context.Context, requests []MatchRequest) []MatchOutcome {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.MatchParticipants")
	defer span.End()

	outcomes := make([]MatchOutcome, len(requests))
	results := make([]models.MatchResult, len(requests))

	g := new(errgroup.Group)
	g.SetLimit(p.config.Workers)
	for i, req := range requests {
		outcomes[i].Participant = req.Participant
		g.Go(func() error {
			if err := Validate(req.Participant); err != nil {
				outcomes[i].Err = err
				return nil
			}
			if req.Enrichment != nil {
				if err := Validate(*req.Enrichment); err != nil {
					outcomes[i].Err = err
					return nil
				}
			}

			result, err := p.deps.Resolver.Resolve(ctx, req.Participant, req.Enrichment)
			if err != nil {
				outcomes[i].Err = err
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i := range outcomes {
		if outcomes[i].Err == nil {
			outcomes[i].Outcome, outcomes[i].Err = p.deps.Decider.Decide(ctx, results[i])
		}
		if outcomes[i].Err != nil {
			failed++
			p.logger.WithContext(ctx).WithError(outcomes[i].Err).WithField("email", outcomes[i].Participant.Email).Warn("Failed to match participant")
		}
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"participants": len(requests),
		"failed":       failed,
	}).Info("Matched participants")
	return outcomes
}

// ReconcileRequest names a lead and, optionally, the meeting whose proposed values form
// the local side of the comparison.
type ReconcileRequest struct {
	LeadID  string                   `json:"lead_id"`
	Meeting *models.ExtractedMeeting `json:"meeting,omitempty"`
}

type ReconcileOutcome struct {
	LeadID string
	Result review.ReconcileResult
	Err    error
}

// Reconcile detects and settles conflicts for every lead concurrently. A failed
// snapshot fetch yields zero conflicts for that lead; other failures are carried on
// that lead's outcome only.
func (p *Processor) Reconcile(ctx context.Context, requests []ReconcileRequest) []ReconcileOutcome {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Reconcile")
	defer span.End()

	outcomes := make([]ReconcileOutcome, len(requests))

	g := new(errgroup.Group)
	g.SetLimit(p.config.Workers)
	for i, req := range requests {
		g.Go(func() error {
			result, err := p.reconcileOne(ctx, req)
			outcomes[i] = ReconcileOutcome{LeadID: req.LeadID, Result: result, Err: err}
			if err != nil {
				p.logger.WithContext(ctx).WithError(err).WithField("lead_id", req.LeadID).Warn("Failed to reconcile lead")
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (p *Processor) reconcileOne(ctx context.Context, req ReconcileRequest) (review.ReconcileResult, error) {
	lead, err := p.deps.Leads.Get(ctx, req.LeadID)
	if err != nil {
		return review.ReconcileResult{}, err
	}

	proposed := map[string]any{}
	if req.Meeting != nil {
		if proposed, err = ApplyMeeting(*lead, *req.Meeting); err != nil {
			return review.ReconcileResult{}, err
		}
	}

	local := lead.Fields()
	for field, value := range proposed {
		local[field] = value
	}

	var detected []models.FieldConflict
	if snap := p.fetchSnapshot(ctx, lead.ID); snap != nil {
		detected = p.deps.Detector.Detect(ctx, lead.ID, local, snap)
	}

	disputed := make(map[string]bool, len(detected))
	for _, c := range detected {
		disputed[c.Field] = true
	}
	updates := make(map[string]any, len(proposed))
	for field, value := range proposed {
		if !disputed[field] {
			updates[field] = value
		}
	}

	result, err := p.deps.Reconciler.Reconcile(ctx, review.ReconcileRequest{
		LeadID:    lead.ID,
		Updates:   updates,
		Conflicts: detected,
	})
	if err != nil {
		return review.ReconcileResult{}, err
	}

	if result.SyncRequest != nil {
		if inv, ok := p.deps.Fetcher.(invalidator); ok {
			if err := inv.Invalidate(ctx, lead.ID); err != nil {
				p.logger.WithContext(ctx).WithError(err).WithField("lead_id", lead.ID).Warn("Failed to invalidate cached snapshot")
			}
		}
	}
	return result, nil
}

// fetchSnapshot returns nil when the external copy is missing or could not be fetched
// in time; the lead is then reconciled against nothing.
func (p *Processor) fetchSnapshot(ctx context.Context, leadID string) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, p.config.SnapshotTimeout)
	defer cancel()

	snap, err := p.deps.Fetcher.Fetch(ctx, leadID)
	switch {
	case err == nil:
		return snap
	case errors.Is(err, snapshot.ErrNotFound):
		p.logger.WithContext(ctx).WithField("lead_id", leadID).Debug("Lead has no external snapshot")
	default:
		metrics.SnapshotFetchFailuresTotal.Inc()
		p.logger.WithContext(ctx).WithError(err).WithField("lead_id", leadID).Warn("Failed to fetch external snapshot")
	}
	return nil
}
