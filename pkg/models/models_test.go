package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLead_FieldsAndSetField(t *testing.T) {
	lead := Lead{Email: "john.doe@acme.com", FirstName: "John", LastName: "Doe", MeetingCount: 2}

	fields := lead.Fields()
	assert.Equal(t, "john.doe@acme.com", fields[FieldEmail])
	assert.Nil(t, fields[FieldCompanyName])
	assert.Nil(t, fields[FieldBudget])
	assert.Equal(t, 2, fields[FieldMeetingCount])
	assert.Equal(t, "John Doe", lead.FullName())

	tests := []struct {
		name  string
		field string
		value any
		check func(t *testing.T, l Lead)
	}{
		{"string field", FieldCompanyName, "Acme", func(t *testing.T, l Lead) { assert.Equal(t, "Acme", l.Company) }},
		{"json number to int", FieldMeetingCount, float64(3), func(t *testing.T, l Lead) { assert.Equal(t, 3, l.MeetingCount) }},
		{"float pointer", FieldBudget, 5000.0, func(t *testing.T, l Lead) {
			require.NotNil(t, l.Budget)
			assert.Equal(t, 5000.0, *l.Budget)
		}},
		{"date string", FieldDecisionDate, "2025-03-01", func(t *testing.T, l Lead) {
			require.NotNil(t, l.DecisionDate)
			assert.Equal(t, time.March, l.DecisionDate.Month())
		}},
		{"nil clears", FieldJobTitle, nil, func(t *testing.T, l Lead) { assert.Empty(t, l.Title) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := lead
			require.NoError(t, l.SetField(tt.field, tt.value))
			tt.check(t, l)
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		l := lead
		assert.Error(t, l.SetField("favourite_colour", "blue"))
	})

	t.Run("bad number", func(t *testing.T) {
		l := lead
		assert.Error(t, l.SetField(FieldMeetingCount, "many"))
	})
}

func TestMatchResult_MarshalJSON(t *testing.T) {
	decode := func(t *testing.T, r MatchResult) map[string]any {
		t.Helper()
		raw, err := json.Marshal(r)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	}

	t.Run("accepted match is flattened", func(t *testing.T) {
		match := &MatchCandidate{LeadID: "l1", Confidence: 0.9, MatchType: MatchTypeDomain}
		out := decode(t, MatchResult{
			Participant: ParticipantRecord{Email: "a@acme.com"},
			Match:       match,
			Candidates:  []MatchCandidate{*match},
		})

		assert.Equal(t, "l1", out["matched_lead_id"])
		assert.Equal(t, 0.9, out["confidence"])
		assert.Equal(t, "domain", out["match_type"])
		assert.Contains(t, out, "match")
		assert.Contains(t, out, "participant")
		assert.Len(t, out["candidates"], 1)
		assert.Equal(t, false, out["requires_manual_verification"])
	})

	t.Run("no match reports nulls and the best candidate", func(t *testing.T) {
		out := decode(t, MatchResult{
			Candidates:                 []MatchCandidate{{LeadID: "l2", Confidence: 0.3}},
			RequiresManualVerification: true,
			ShouldCreateNewLead:        true,
		})

		assert.Contains(t, out, "matched_lead_id")
		assert.Nil(t, out["matched_lead_id"])
		assert.Nil(t, out["match_type"])
		assert.Equal(t, 0.3, out["confidence"])
		assert.NotContains(t, out, "match")
		assert.Equal(t, true, out["should_create_new_lead"])
	})
}

func TestMatchResult_Decision(t *testing.T) {
	match := &MatchCandidate{LeadID: "l1", Confidence: 0.9}

	tests := []struct {
		name     string
		result   MatchResult
		expected Decision
	}{
		{"accepted", MatchResult{Match: match}, DecisionAcceptMatch},
		{"accepted needs verification", MatchResult{Match: match, RequiresManualVerification: true}, DecisionVerifyMatch},
		{"create", MatchResult{ShouldCreateNewLead: true}, DecisionCreateLead},
		{"ambiguous reviews before creating", MatchResult{ShouldCreateNewLead: true, RequiresManualVerification: true}, DecisionReview},
		{"unaccepted candidates", MatchResult{RequiresManualVerification: true, Candidates: []MatchCandidate{{LeadID: "l2"}}}, DecisionReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.Decision())
		})
	}
}

func TestReviewItem_PendingConflicts(t *testing.T) {
	now := time.Now()
	item := ReviewItem{
		Status: ReviewStatusPending,
		DueAt:  now.Add(-time.Minute),
		Conflicts: []FieldConflict{
			{Field: FieldPhone, ResolutionStatus: ResolutionPending},
			{Field: FieldEmail, ResolutionStatus: ResolutionIgnored},
		},
	}

	pending := item.PendingConflicts()
	require.Len(t, pending, 1)
	assert.Equal(t, FieldPhone, pending[0].Field)
	assert.True(t, item.IsOverdue(now))
	assert.True(t, ResolutionIgnored.IsTerminal())
	assert.False(t, ResolutionPending.IsTerminal())
}

func TestFieldMapping_ReadOnlyCopy(t *testing.T) {
	src := map[string]string{FieldEmail: "Email", FieldPhone: "", "": "X"}
	mapping := NewFieldMapping(src)
	src[FieldEmail] = "Changed"

	external, ok := mapping.External(FieldEmail)
	assert.True(t, ok)
	assert.Equal(t, "Email", external)
	assert.Equal(t, 1, mapping.Len())
	assert.Equal(t, []string{FieldEmail}, mapping.LocalFields())

	assert.Equal(t, 18, DefaultLeadFieldMapping().Len())
}
