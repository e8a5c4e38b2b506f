package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/sage/pkg/models"
)

func signals(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "signal"
	}
	return out
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name       string
		current    Stage
		buying     int
		nextSteps  int
		objections int
		want       Stage
	}{
		{name: "quiet meeting keeps stage", current: Engaged, buying: 1, want: Engaged},
		{name: "two positives advance one", current: Prospect, buying: 1, nextSteps: 1, want: Engaged},
		{name: "five positives advance two", current: Engaged, buying: 3, nextSteps: 2, want: Proposal},
		{name: "objections cancel positives", current: Qualified, buying: 2, nextSteps: 1, objections: 3, want: Qualified},
		{name: "positives must exceed objections", current: Qualified, buying: 2, objections: 2, want: Qualified},
		{name: "capped at negotiation", current: Proposal, buying: 6, want: Negotiation},
		{name: "negotiation stays put", current: Negotiation, buying: 4, want: Negotiation},
		{name: "closed stage never moves", current: ClosedWon, buying: 9, want: ClosedWon},
		{name: "unknown stage starts at prospect", current: Stage("mystery"), buying: 2, want: Engaged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := models.MeetingOutcome{
				MeetingDate:   time.Now(),
				BuyingSignals: signals(tt.buying),
				NextSteps:     signals(tt.nextSteps),
				Objections:    signals(tt.objections),
			}
			assert.Equal(t, tt.want, Progress(tt.current, outcome))
		})
	}
}

func TestParse(t *testing.T) {
	assert.Equal(t, Proposal, Parse("proposal"))
	assert.Equal(t, ClosedLost, Parse("closed_lost"))
	assert.Equal(t, Prospect, Parse(""))
	assert.Equal(t, Prospect, Parse("whatever"))
}

func TestQualificationScore(t *testing.T) {
	meeting := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	budget := 50000.0
	soon := meeting.AddDate(0, 1, 0)
	later := meeting.AddDate(0, 5, 0)

	tests := []struct {
		name      string
		deal      *models.DealInfo
		sentiment models.Sentiment
		want      int
	}{
		{name: "no deal", deal: nil, want: 0},
		{
			name: "fully qualified",
			deal: &models.DealInfo{
				Budget:       &budget,
				DecisionDate: &soon,
				DecisionRole: "decision_maker",
				PainPoints:   []string{"a", "b", "c"},
			},
			want: 100,
		},
		{
			name: "influencer with distant timeline",
			deal: &models.DealInfo{DecisionDate: &later, DecisionRole: "influencer", PainPoints: []string{"a"}},
			want: 15 + 10 + 15,
		},
		{
			name:      "negative sentiment costs points",
			deal:      &models.DealInfo{Budget: &budget},
			sentiment: models.SentimentNegative,
			want:      15,
		},
		{
			name:      "never below zero",
			deal:      &models.DealInfo{},
			sentiment: models.SentimentNegative,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := models.MeetingOutcome{MeetingDate: meeting, Sentiment: tt.sentiment}
			assert.Equal(t, tt.want, QualificationScore(tt.deal, outcome))
		})
	}
}
