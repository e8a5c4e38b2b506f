package models

import "time"

// ContactInfo is the contact block extracted from a meeting.
type ContactInfo struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name,omitempty" validate:"max=100"`
	LastName  string `json:"last_name,omitempty" validate:"max=100"`
	Company   string `json:"company,omitempty" validate:"max=200"`
	Title     string `json:"title,omitempty" validate:"max=200"`
	Phone     string `json:"phone,omitempty" validate:"max=50"`
	Mobile    string `json:"mobile,omitempty" validate:"max=50"`
}

// DealInfo is the commercial context extracted from a meeting.
type DealInfo struct {
	Budget       *float64   `json:"budget,omitempty" validate:"omitempty,gte=0"`
	DecisionDate *time.Time `json:"decision_date,omitempty"`
	Probability  *float64   `json:"probability,omitempty" validate:"omitempty,gte=0,lte=100"`
	DecisionRole string     `json:"decision_role,omitempty" validate:"omitempty,oneof=decision_maker influencer champion user gatekeeper"`
	Industry     string     `json:"industry,omitempty"`
	PainPoints   []string   `json:"pain_points,omitempty"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// MeetingOutcome records the signals observed in a meeting.
type MeetingOutcome struct {
	MeetingDate   time.Time `json:"meeting_date" validate:"required"`
	BuyingSignals []string  `json:"buying_signals,omitempty"`
	Objections    []string  `json:"objections,omitempty"`
	NextSteps     []string  `json:"next_steps,omitempty"`
	Sentiment     Sentiment `json:"sentiment,omitempty" validate:"omitempty,oneof=positive neutral negative"`
}

// ExtractedMeeting bundles the typed records produced for one lead by one meeting.
type ExtractedMeeting struct {
	Contact ContactInfo    `json:"contact" validate:"required"`
	Deal    *DealInfo      `json:"deal,omitempty"`
	Outcome MeetingOutcome `json:"outcome" validate:"required"`
}
