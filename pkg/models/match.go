package models

import "encoding/json"

// MatchType tags the tier that produced a candidate.
type MatchType string

const (
	MatchTypeExactEmail     MatchType = "exact_email"
	MatchTypeNameCompany    MatchType = "name_company"
	MatchTypeDomain         MatchType = "domain"
	MatchTypePhone          MatchType = "phone"
	MatchTypeFuzzyName      MatchType = "fuzzy_name"
	MatchTypeSocialEnhanced MatchType = "social_enhanced"
)

// MatchCandidate is a lead the engine considered, with the confidence of the tier
// that proposed it.
type MatchCandidate struct {
	LeadID     string    `json:"lead_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name,omitempty"`
	Company    string    `json:"company,omitempty"`
	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`
}

// MatchResult is the outcome of matching one participant.
type MatchResult struct {
	Participant                ParticipantRecord `json:"participant"`
	Match                      *MatchCandidate   `json:"match,omitempty"`
	Candidates                 []MatchCandidate  `json:"candidates"`
	RequiresManualVerification bool              `json:"requires_manual_verification"`
	ShouldCreateNewLead        bool              `json:"should_create_new_lead"`
}

// MarshalJSON adds the flat matched_lead_id, confidence and match_type fields next to
// the nested match. matched_lead_id and match_type are null when nothing was accepted.
func (r MatchResult) MarshalJSON() ([]byte, error) {
	type plain MatchResult
	out := struct {
		plain
		MatchedLeadID *string    `json:"matched_lead_id"`
		Confidence    float64    `json:"confidence"`
		MatchType     *MatchType `json:"match_type"`
	}{plain: plain(r), Confidence: r.Confidence()}

	if r.Match != nil {
		id, matchType := r.Match.LeadID, r.Match.MatchType
		out.MatchedLeadID = &id
		out.MatchType = &matchType
	}
	return json.Marshal(out)
}

// MatchedLeadID returns the chosen lead's ID or "" when nothing was accepted.
func (r MatchResult) MatchedLeadID() string {
	if r.Match == nil {
		return ""
	}
	return r.Match.LeadID
}

// Confidence returns the chosen match's confidence, or the best candidate's when none
// was accepted.
func (r MatchResult) Confidence() float64 {
	if r.Match != nil {
		return r.Match.Confidence
	}
	if len(r.Candidates) > 0 {
		return r.Candidates[0].Confidence
	}
	return 0
}

// Decision is the single action a caller takes for a result.
type Decision string

const (
	DecisionAcceptMatch Decision = "accept_match"
	DecisionVerifyMatch Decision = "verify_match"
	DecisionCreateLead  Decision = "create_lead"
	DecisionReview      Decision = "review"
)

// Decision collapses the two flags into one action. When both flags are set the
// participant is reviewed before any lead is created.
func (r MatchResult) Decision() Decision {
	switch {
	case r.ShouldCreateNewLead && r.RequiresManualVerification:
		return DecisionReview
	case r.ShouldCreateNewLead:
		return DecisionCreateLead
	case r.Match != nil && r.RequiresManualVerification:
		return DecisionVerifyMatch
	case r.Match != nil:
		return DecisionAcceptMatch
	default:
		return DecisionReview
	}
}
