// Package stage derives a lead's relationship stage and qualification score from the
// signals observed in a meeting.
package stage

import (
	"slices"
	"time"

	"github.com/Ramsey-B/sage/pkg/models"
)

type Stage string

const (
	Prospect    Stage = "prospect"
	Engaged     Stage = "engaged"
	Qualified   Stage = "qualified"
	Proposal    Stage = "proposal"
	Negotiation Stage = "negotiation"
	ClosedWon   Stage = "closed_won"
	ClosedLost  Stage = "closed_lost"
)

// progression is the forward order a meeting can move a lead through.
var progression = []Stage{Prospect, Engaged, Qualified, Proposal, Negotiation}

const (
	oneStepSignals  = 2
	twoStepSignals  = 5
	maxScore        = 100
	componentWeight = 25
)

// IsTerminal reports whether s is a closed stage that meetings never move.
func (s Stage) IsTerminal() bool {
	return s == ClosedWon || s == ClosedLost
}

// Parse returns the stage named by s, or Prospect for an empty or unknown name.
func Parse(s string) Stage {
	st := Stage(s)
	if st.IsTerminal() || slices.Contains(progression, st) {
		return st
	}
	return Prospect
}

// Progress returns the stage after a meeting. Positive indicators are buying signals
// plus next steps; they must exceed objections to move the stage at all. Two or more
// advance one step, five or more advance two. Anything less returns current unchanged.
func Progress(current Stage, outcome models.MeetingOutcome) Stage {
	if current.IsTerminal() {
		return current
	}

	idx := slices.Index(progression, current)
	if idx < 0 {
		idx = 0
		current = Prospect
	}

	positive := len(outcome.BuyingSignals) + len(outcome.NextSteps)
	if positive <= len(outcome.Objections) {
		return current
	}

	steps := 0
	switch {
	case positive >= twoStepSignals:
		steps = 2
	case positive >= oneStepSignals:
		steps = 1
	}
	return progression[min(idx+steps, len(progression)-1)]
}

// QualificationScore rates a lead 0..100 on budget, authority, need and timeline, each
// worth up to 25 points.
func QualificationScore(deal *models.DealInfo, outcome models.MeetingOutcome) int {
	if deal == nil {
		return 0
	}

	score := budgetScore(deal) + authorityScore(deal.DecisionRole) + needScore(deal.PainPoints) +
		timelineScore(deal.DecisionDate, outcome.MeetingDate)
	if outcome.Sentiment == models.SentimentNegative {
		score -= 10
	}
	return min(max(score, 0), maxScore)
}

func budgetScore(deal *models.DealInfo) int {
	if deal.Budget == nil || *deal.Budget <= 0 {
		return 0
	}
	return componentWeight
}

func authorityScore(role string) int {
	switch role {
	case "decision_maker":
		return componentWeight
	case "champion":
		return 20
	case "influencer":
		return 15
	case "user":
		return 10
	case "gatekeeper":
		return 5
	default:
		return 0
	}
}

func needScore(painPoints []string) int {
	return min(len(painPoints)*10, componentWeight)
}

func timelineScore(decision *time.Time, meeting time.Time) int {
	if decision == nil {
		return 0
	}

	until := decision.Sub(meeting)
	switch {
	case until < 0:
		return 5
	case until <= 90*24*time.Hour:
		return componentWeight
	case until <= 180*24*time.Hour:
		return 15
	default:
		return 5
	}
}
