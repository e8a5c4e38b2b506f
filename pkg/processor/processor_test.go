package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/conflicts"
	"github.com/Ramsey-B/sage/pkg/leads"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
	"github.com/Ramsey-B/sage/pkg/review"
	"github.com/Ramsey-B/sage/pkg/snapshot"
)

var meetingDate = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// leadStore serves the engine, the decider and the processor from one slice.
type leadStore struct {
	mu    sync.Mutex
	leads []models.Lead
	seq   int
}

func (s *leadStore) Get(_ context.Context, id string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.ID == id {
			lead := l
			return &lead, nil
		}
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "lead %s not found", id)
}

func (s *leadStore) GetByEmail(_ context.Context, email string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if strings.EqualFold(l.Email, email) {
			lead := l
			return &lead, nil
		}
	}
	return nil, nil
}

func (s *leadStore) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if existing, _ := s.GetByEmail(ctx, lead.Email); existing != nil {
		return nil, fmt.Errorf("%w: %s", leads.ErrDuplicateEmail, lead.Email)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	created := *lead
	created.ID = fmt.Sprintf("new-%d", s.seq)
	s.leads = append(s.leads, created)
	return &created, nil
}

func (s *leadStore) FindByCompany(_ context.Context, company string, _ int) ([]models.Lead, error) {
	return s.filter(func(l models.Lead) bool {
		return l.Company != "" && strings.Contains(strings.ToLower(l.Company), strings.ToLower(company))
	}), nil
}

func (s *leadStore) FindByEmailDomain(_ context.Context, domain string, _ int) ([]models.Lead, error) {
	return s.filter(func(l models.Lead) bool { return normalizers.EmailDomain(l.Email) == domain }), nil
}

func (s *leadStore) FindByPhoneSuffix(_ context.Context, digits string, _ int) ([]models.Lead, error) {
	return s.filter(func(l models.Lead) bool {
		return digits != "" && (strings.HasSuffix(normalizers.DigitsOnly(l.Phone), digits) || strings.HasSuffix(normalizers.DigitsOnly(l.Mobile), digits))
	}), nil
}

func (s *leadStore) filter(keep func(models.Lead) bool) []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, l := range s.leads {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

type fetcherFunc func(ctx context.Context, leadID string) (map[string]any, error)

func (f fetcherFunc) Fetch(ctx context.Context, leadID string) (map[string]any, error) {
	return f(ctx, leadID)
}

type cachingFetcher struct {
	fetcherFunc
	invalidated []string
}

func (f *cachingFetcher) Invalidate(_ context.Context, leadID string) error {
	f.invalidated = append(f.invalidated, leadID)
	return nil
}

type recordingReconciler struct {
	mu       sync.Mutex
	requests map[string]review.ReconcileRequest
	result   review.ReconcileResult
}

func (r *recordingReconciler) Reconcile(_ context.Context, req review.ReconcileRequest) (review.ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests == nil {
		r.requests = map[string]review.ReconcileRequest{}
	}
	r.requests[req.LeadID] = req
	return r.result, nil
}

type resolverFunc func(ctx context.Context, p models.ParticipantRecord) (models.MatchResult, error)

func (f resolverFunc) Resolve(ctx context.Context, p models.ParticipantRecord, _ *models.EnrichmentRecord) (models.MatchResult, error) {
	return f(ctx, p)
}

func johnDoe() models.Lead {
	return models.Lead{
		ID:                "lead-1",
		Email:             "john.doe@acme.com",
		FirstName:         "John",
		LastName:          "Doe",
		Company:           "Acme",
		Title:             "Engineer",
		RelationshipStage: "prospect",
		MeetingCount:      1,
	}
}

func newMatchProcessor(store *leadStore) *Processor {
	logger := testLogger()
	return NewProcessor(Deps{
		Resolver: matching.NewEngine(logger, store, matching.DefaultPolicy()),
		Decider:  leads.NewDecider(logger, store),
	}, Config{Workers: 2}, logger)
}

func TestProcessor_MatchParticipants(t *testing.T) {
	store := &leadStore{leads: []models.Lead{johnDoe()}}
	p := newMatchProcessor(store)

	outcomes := p.MatchParticipants(context.Background(), []MatchRequest{
		{Participant: models.ParticipantRecord{Email: "John.Doe@ACME.com", Name: "Johnny D"}},
		{Participant: models.ParticipantRecord{Email: "not-an-email"}},
		{Participant: models.ParticipantRecord{Email: "x@newco.com", Name: "Charlie Brown", Company: "New Co"}},
		{Participant: models.ParticipantRecord{Email: "x@newco.com", Name: "Charlie Brown", Company: "New Co"}},
	})
	require.Len(t, outcomes, 4)

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, leads.ActionMatched, outcomes[0].Outcome.Action)
	assert.Equal(t, "lead-1", outcomes[0].Outcome.Result.MatchedLeadID())
	assert.Equal(t, 1.0, outcomes[0].Outcome.Result.Confidence())

	require.Error(t, outcomes[1].Err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(outcomes[1].Err))
	assert.Equal(t, "not-an-email", outcomes[1].Participant.Email)

	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, leads.ActionCreated, outcomes[2].Outcome.Action)
	assert.Equal(t, "Charlie", outcomes[2].Outcome.Lead.FirstName)
	assert.Equal(t, "Brown", outcomes[2].Outcome.Lead.LastName)

	// matched before the first insert, so its own insert hits the unique email
	require.NoError(t, outcomes[3].Err)
	assert.Equal(t, leads.ActionRematched, outcomes[3].Outcome.Action)
	assert.Equal(t, outcomes[2].Outcome.Lead.ID, outcomes[3].Outcome.Result.MatchedLeadID())

	assert.Len(t, store.leads, 2)
}

func TestProcessor_MatchParticipantsIsolatesFailures(t *testing.T) {
	store := &leadStore{leads: []models.Lead{johnDoe()}}
	engine := matching.NewEngine(testLogger(), store, matching.DefaultPolicy())
	resolver := resolverFunc(func(ctx context.Context, p models.ParticipantRecord) (models.MatchResult, error) {
		if p.Email == "broken@acme.com" {
			return models.MatchResult{}, errors.New("lead store unavailable")
		}
		return engine.Resolve(ctx, p, nil)
	})
	p := NewProcessor(Deps{Resolver: resolver, Decider: leads.NewDecider(testLogger(), store)}, DefaultConfig(), testLogger())

	outcomes := p.MatchParticipants(context.Background(), []MatchRequest{
		{Participant: models.ParticipantRecord{Email: "broken@acme.com"}},
		{Participant: models.ParticipantRecord{Email: "john.doe@acme.com"}},
	})

	assert.EqualError(t, outcomes[0].Err, "lead store unavailable")
	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, "lead-1", outcomes[1].Outcome.Result.MatchedLeadID())
}

func TestProcessor_MatchParticipantsRejectsInvalidEnrichment(t *testing.T) {
	p := newMatchProcessor(&leadStore{})

	outcomes := p.MatchParticipants(context.Background(), []MatchRequest{{
		Participant: models.ParticipantRecord{Email: "x@newco.com"},
		Enrichment:  &models.EnrichmentRecord{Confidence: 1.5},
	}})

	require.Error(t, outcomes[0].Err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(outcomes[0].Err))
}

func newReconcileProcessor(store *leadStore, fetcher snapshot.Fetcher, reconciler Reconciler, timeout time.Duration) *Processor {
	return NewProcessor(Deps{
		Leads:      store,
		Fetcher:    fetcher,
		Detector:   conflicts.NewDetector(testLogger(), models.DefaultLeadFieldMapping()),
		Reconciler: reconciler,
	}, Config{Workers: 4, SnapshotTimeout: timeout}, testLogger())
}

func TestProcessor_Reconcile(t *testing.T) {
	second := johnDoe()
	second.ID = "lead-2"
	second.Email = "jane@acme.com"
	store := &leadStore{leads: []models.Lead{johnDoe(), second}}

	fetcher := fetcherFunc(func(_ context.Context, leadID string) (map[string]any, error) {
		switch leadID {
		case "lead-1":
			return map[string]any{
				"Email":   "John.Doe@acme.com",
				"Name":    "John",
				"Surname": "Doe",
				"Account": "Acme Corporation",
				"Title":   "CTO",
			}, nil
		default:
			return nil, errors.New("connection reset")
		}
	})
	reconciler := &recordingReconciler{}
	p := newReconcileProcessor(store, fetcher, reconciler, time.Second)

	meeting := models.ExtractedMeeting{
		Contact: models.ContactInfo{Email: "john.doe@acme.com", Title: "Engineer"},
		Outcome: models.MeetingOutcome{
			MeetingDate:   meetingDate,
			BuyingSignals: []string{"asked for pricing", "requested a demo"},
		},
	}
	outcomes := p.Reconcile(context.Background(), []ReconcileRequest{
		{LeadID: "lead-1", Meeting: &meeting},
		{LeadID: "lead-2"},
		{LeadID: "missing"},
	})
	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(outcomes[2].Err))

	first := reconciler.requests["lead-1"]
	fields := map[string]models.FieldConflict{}
	for _, c := range first.Conflicts {
		fields[c.Field] = c
	}
	require.Len(t, fields, 2)
	assert.Equal(t, models.ConflictTypePartialMatch, fields[models.FieldCompanyName].ConflictType)
	assert.Equal(t, models.SeverityHigh, fields[models.FieldCompanyName].Severity)
	assert.Equal(t, models.ConflictTypeValueMismatch, fields[models.FieldJobTitle].ConflictType)
	assert.Equal(t, models.SeverityMedium, fields[models.FieldJobTitle].Severity)

	assert.Equal(t, map[string]any{
		models.FieldEmail:             "john.doe@acme.com",
		models.FieldRelationshipStage: "engaged",
		models.FieldLastMeetingDate:   meetingDate,
		models.FieldMeetingCount:      2,
	}, first.Updates)

	failed := reconciler.requests["lead-2"]
	assert.Empty(t, failed.Conflicts)
	assert.Empty(t, failed.Updates)
	assert.NotContains(t, reconciler.requests, "missing")
}

func TestProcessor_ReconcileSnapshotTimeout(t *testing.T) {
	store := &leadStore{leads: []models.Lead{johnDoe()}}
	fetcher := fetcherFunc(func(ctx context.Context, _ string) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	reconciler := &recordingReconciler{}
	p := newReconcileProcessor(store, fetcher, reconciler, 20*time.Millisecond)

	outcomes := p.Reconcile(context.Background(), []ReconcileRequest{{LeadID: "lead-1"}})

	require.NoError(t, outcomes[0].Err)
	assert.Empty(t, reconciler.requests["lead-1"].Conflicts)
}

func TestProcessor_ReconcileInvalidatesCachedSnapshot(t *testing.T) {
	store := &leadStore{leads: []models.Lead{johnDoe()}}
	fetcher := &cachingFetcher{fetcherFunc: func(context.Context, string) (map[string]any, error) {
		return map[string]any{"Stage": "engaged"}, nil
	}}
	reconciler := &recordingReconciler{result: review.ReconcileResult{SyncRequest: &models.SyncRequest{LeadID: "lead-1"}}}
	p := newReconcileProcessor(store, fetcher, reconciler, time.Second)

	outcomes := p.Reconcile(context.Background(), []ReconcileRequest{{LeadID: "lead-1"}})

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, []string{"lead-1"}, fetcher.invalidated)
}
