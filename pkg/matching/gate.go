package matching

import "github.com/Ramsey-B/sage/pkg/models"

// Gate is the escalation policy applied to a finished match result.
type Gate struct {
	medium float64
	low    float64
}

// NewGate creates a gate using the policy's MEDIUM and LOW thresholds.
func NewGate(policy Policy) Gate {
	policy = policy.normalized()
	return Gate{medium: policy.MediumThreshold, low: policy.LowThreshold}
}

// Evaluate sets the verification and creation flags:
//   - a match below MEDIUM, or outranked by another lead's candidate, needs manual
//     verification
//   - no match and no candidates creates a new lead
//   - no match and only candidates below LOW creates a new lead and needs verification
//   - no match but a candidate at or above LOW needs verification
//   - a match at or above MEDIUM is final
func (g Gate) Evaluate(result models.MatchResult) models.MatchResult {
	result.RequiresManualVerification = false
	result.ShouldCreateNewLead = false

	switch {
	case result.Match != nil:
		result.RequiresManualVerification = result.Match.Confidence < g.medium || outranked(result)
	case len(result.Candidates) == 0:
		result.ShouldCreateNewLead = true
	case result.Candidates[0].Confidence < g.low:
		result.ShouldCreateNewLead = true
		result.RequiresManualVerification = true
	default:
		result.RequiresManualVerification = true
	}
	return result
}

// outranked reports whether a candidate for a different lead scores above the match.
func outranked(result models.MatchResult) bool {
	for _, c := range result.Candidates {
		if c.LeadID != result.Match.LeadID && c.Confidence > result.Match.Confidence {
			return true
		}
	}
	return false
}
