package models

import "strings"

// ParticipantRecord is one meeting participant as extracted upstream. It has no identity
// of its own and is consumed once per matching call.
type ParticipantRecord struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Name    string `json:"name,omitempty" validate:"max=200"`
	Company string `json:"company,omitempty" validate:"max=200"`
	Title   string `json:"title,omitempty" validate:"max=200"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
}

// HasEmail reports whether the record carries an email to match on.
func (p ParticipantRecord) HasEmail() bool {
	return strings.TrimSpace(p.Email) != ""
}

// EnrichmentRecord is a pre-fetched social profile lookup for a participant.
type EnrichmentRecord struct {
	ProfileURL string  `json:"profile_url,omitempty"`
	Title      string  `json:"title,omitempty"`
	Company    string  `json:"company,omitempty"`
	Industry   string  `json:"industry,omitempty"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}
