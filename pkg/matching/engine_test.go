package matching

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/normalizers"
)

type memoryLeads struct {
	leads []models.Lead
	err   error
	calls int
}

func (m *memoryLeads) GetByEmail(_ context.Context, email string) (*models.Lead, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, l := range m.leads {
		if strings.EqualFold(l.Email, email) {
			lead := l
			return &lead, nil
		}
	}
	return nil, nil
}

func (m *memoryLeads) FindByCompany(_ context.Context, company string, _ int) ([]models.Lead, error) {
	m.calls++
	company = strings.ToLower(company)
	var out []models.Lead
	for _, l := range m.leads {
		lc := strings.ToLower(l.Company)
		if lc != "" && strings.Contains(lc, company) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLeads) FindByEmailDomain(_ context.Context, domain string, _ int) ([]models.Lead, error) {
	m.calls++
	var out []models.Lead
	for _, l := range m.leads {
		if normalizers.EmailDomain(l.Email) == domain {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryLeads) FindByPhoneSuffix(_ context.Context, digits string, _ int) ([]models.Lead, error) {
	m.calls++
	var out []models.Lead
	for _, l := range m.leads {
		if LastDigits(l.Phone) == digits || LastDigits(l.Mobile) == digits {
			out = append(out, l)
		}
	}
	return out, nil
}

func TestMemoryLeads_FindByCompanyIsOneWay(t *testing.T) {
	source := &memoryLeads{leads: []models.Lead{{ID: "l1", Company: "Acme"}, {ID: "l2", Company: "Acme Widgets"}}}

	got, err := source.FindByCompany(context.Background(), "acme widgets", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "l2", got[0].ID)
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestEngine(leads ...models.Lead) (*Engine, *memoryLeads) {
	source := &memoryLeads{leads: leads}
	return NewEngine(testLogger(), source, DefaultPolicy()), source
}

func TestEngine_ExactEmailShortCircuits(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "john.doe@acme.com", FirstName: "John", LastName: "Doe", Company: "Acme"},
		models.Lead{ID: "l2", Email: "jane@acme.com", FirstName: "Jane", LastName: "Other", Company: "Other Co"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{
		Email:   "JOHN.DOE@acme.com",
		Name:    "Somebody Else",
		Company: "Other Co",
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Match)
	assert.Equal(t, "l1", result.Match.LeadID)
	assert.Equal(t, 1.0, result.Match.Confidence)
	assert.Equal(t, models.MatchTypeExactEmail, result.Match.MatchType)
	assert.Len(t, result.Candidates, 1)
	assert.False(t, result.RequiresManualVerification)
	assert.False(t, result.ShouldCreateNewLead)
	assert.Equal(t, models.DecisionAcceptMatch, result.Decision())
}

func TestEngine_DomainCandidatesWithoutOutrightAcceptance(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "john.doe@acme.com", FirstName: "John", LastName: "Doe", Company: "Acme"},
		models.Lead{ID: "l2", Email: "bob@acme.com", FirstName: "Bob", LastName: "Smith", Company: "Acme"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{
		Email:   "new.person@acme.com",
		Company: "Acme Corp",
	}, nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(result.Candidates), 2)
	for _, c := range result.Candidates {
		assert.Equal(t, models.MatchTypeDomain, c.MatchType)
		assert.LessOrEqual(t, c.Confidence, 0.95)
	}
	// two leads tie on the shared domain, so neither is picked
	assert.Nil(t, result.Match)
	assert.True(t, result.RequiresManualVerification)
	assert.False(t, result.ShouldCreateNewLead)
}

func TestEngine_NoSignalCreatesNewLead(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "john.doe@acme.com", FirstName: "John", LastName: "Doe", Company: "Acme", Phone: "212-555-0101"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{
		Email:   "x@newco.com",
		Name:    "Charlie Brown",
		Company: "New Co",
		Phone:   "415-555-0199",
	}, nil)
	require.NoError(t, err)

	assert.Nil(t, result.Match)
	assert.Empty(t, result.Candidates)
	assert.True(t, result.ShouldCreateNewLead)
	assert.False(t, result.RequiresManualVerification)
	assert.Equal(t, models.DecisionCreateLead, result.Decision())
}

func TestEngine_MissingEmailEntersNoTier(t *testing.T) {
	engine, source := newTestEngine(
		models.Lead{ID: "l1", Email: "john.doe@acme.com", FirstName: "John", LastName: "Doe", Company: "Acme"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{Name: "John Doe", Company: "Acme"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, source.calls)
	assert.Nil(t, result.Match)
	assert.True(t, result.ShouldCreateNewLead)
}

func TestEngine_NameCompanyAcceptsBelowCertainty(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "jane@globex.com", FirstName: "Jane", LastName: "Smith", Company: "Globex"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{
		Email:   "jsmith@gmail.com",
		Name:    "Jane Smith",
		Company: "Globex",
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Match)
	assert.Equal(t, models.MatchTypeNameCompany, result.Match.MatchType)
	assert.GreaterOrEqual(t, result.Match.Confidence, 0.85)
	assert.Less(t, result.Match.Confidence, 1.0)
	assert.False(t, result.RequiresManualVerification)
}

func TestEngine_DomainTiers(t *testing.T) {
	tests := []struct {
		name        string
		lead        models.Lead
		participant models.ParticipantRecord
		accepted    bool
		confidence  float64
	}{
		{
			name:        "company boosts corporate domain",
			lead:        models.Lead{ID: "l1", Email: "ann@initech.com", FirstName: "Ann", Company: "Initech"},
			participant: models.ParticipantRecord{Email: "peter@initech.com", Company: "Initech"},
			accepted:    true,
			confidence:  0.9,
		},
		{
			name:        "generic domain is discounted below medium",
			lead:        models.Lead{ID: "l1", Email: "ann@bestconsulting.com", FirstName: "Ann"},
			participant: models.ParticipantRecord{Email: "bob@bestconsulting.com"},
			accepted:    false,
			confidence:  0.56,
		},
		{
			name:        "common domain is never used",
			lead:        models.Lead{ID: "l1", Email: "ann@gmail.com", FirstName: "Ann"},
			participant: models.ParticipantRecord{Email: "bob@gmail.com"},
			accepted:    false,
			confidence:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(tt.lead)

			result, err := engine.Match(context.Background(), tt.participant)
			require.NoError(t, err)

			if tt.accepted {
				require.NotNil(t, result.Match)
				assert.Equal(t, models.MatchTypeDomain, result.Match.MatchType)
			} else {
				assert.Nil(t, result.Match)
			}
			assert.InDelta(t, tt.confidence, result.Confidence(), 0.0001)
		})
	}
}

func TestEngine_PhoneOverridesWeakerMatch(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "domain-lead", Email: "ann@initech.com", FirstName: "Ann", Company: "Initech"},
		models.Lead{ID: "phone-lead", Email: "pm@other.org", FirstName: "Pat", Mobile: "555-867-5309"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{
		Email:   "newguy@initech.com",
		Company: "Initech",
		Phone:   "+1 (555) 867-5309",
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Match)
	assert.Equal(t, "phone-lead", result.Match.LeadID)
	assert.Equal(t, models.MatchTypePhone, result.Match.MatchType)
	assert.Equal(t, 0.99, result.Match.Confidence)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "phone-lead", result.Candidates[0].LeadID)
	assert.Equal(t, "domain-lead", result.Candidates[1].LeadID)
}

func TestEngine_FuzzyNameLastResort(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "bob@paperstreet.com", FirstName: "Robert", LastName: "Paulson", Company: "Paper Street Soap"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{
		Email:   "rpaulson@gmail.com",
		Name:    "Bob Paulsen",
		Company: "Paper Street",
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Match)
	assert.Equal(t, models.MatchTypeFuzzyName, result.Match.MatchType)
	assert.GreaterOrEqual(t, result.Match.Confidence, 0.40)
	assert.Less(t, result.Match.Confidence, 1.0)
}

func TestEngine_FuzzyNameNeverAcceptsBelowLow(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "zed@widgets.com", FirstName: "Zed", LastName: "Zulu", Company: "Acme Widgets"},
	)

	result, err := engine.Resolve(context.Background(), models.ParticipantRecord{
		Email:   "amy@gmail.com",
		Name:    "Amy Adams",
		Company: "Acme",
	}, nil)
	require.NoError(t, err)

	assert.Nil(t, result.Match)
	require.Len(t, result.Candidates, 1)
	assert.Less(t, result.Candidates[0].Confidence, 0.40)
	// ambiguous: both flags are raised and the caller reviews before creating
	assert.True(t, result.ShouldCreateNewLead)
	assert.True(t, result.RequiresManualVerification)
	assert.Equal(t, models.DecisionReview, result.Decision())
}

func TestEngine_OnlyExactEmailReachesCertainty(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "jane@globex.com", FirstName: "Jane", LastName: "Smith", Company: "Globex", Phone: "2125550101"},
		models.Lead{ID: "l2", Email: "ann@globex.com", FirstName: "Ann", LastName: "Smith", Company: "Globex"},
	)

	participants := []models.ParticipantRecord{
		{Email: "jane.smith@gmail.com", Name: "Jane Smith", Company: "Globex", Phone: "212-555-0101"},
		{Email: "new@globex.com", Company: "Globex"},
		{Email: "x@gmail.com", Phone: "(212) 555-0101"},
	}

	for _, p := range participants {
		result, err := engine.Match(context.Background(), p)
		require.NoError(t, err)
		for _, c := range result.Candidates {
			assert.Less(t, c.Confidence, 1.0, "candidate %s via %s", c.LeadID, c.MatchType)
		}
	}
}

func TestEngine_Idempotent(t *testing.T) {
	engine, _ := newTestEngine(
		models.Lead{ID: "l1", Email: "john.doe@acme.com", FirstName: "John", LastName: "Doe", Company: "Acme"},
		models.Lead{ID: "l2", Email: "bob@acme.com", FirstName: "Bob", LastName: "Smith", Company: "Acme"},
		models.Lead{ID: "l3", Email: "jo@acme.com", FirstName: "Jo", LastName: "Doe", Company: "Acme", Phone: "5551112222"},
	)
	p := models.ParticipantRecord{Email: "j.doe@acme.com", Name: "John Doe", Company: "Acme", Phone: "555-111-2222"}

	first, err := engine.Resolve(context.Background(), p, nil)
	require.NoError(t, err)
	second, err := engine.Resolve(context.Background(), p, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEngine_RepositoryErrorPropagates(t *testing.T) {
	engine, source := newTestEngine()
	source.err = errors.New("connection refused")

	_, err := engine.Match(context.Background(), models.ParticipantRecord{Email: "a@b.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exact_email tier")
}
