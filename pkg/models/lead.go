package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
)

// Local field names of a lead, as used by the field mapping and conflict records.
const (
	FieldEmail              = "email"
	FieldFirstName          = "first_name"
	FieldLastName           = "last_name"
	FieldCompanyName        = "company_name"
	FieldJobTitle           = "job_title"
	FieldPhone              = "phone"
	FieldMobilePhone        = "mobile_phone"
	FieldStatus             = "status"
	FieldQualificationScore = "qualification_score"
	FieldBudget             = "budget"
	FieldDecisionDate       = "decision_date"
	FieldProbability        = "probability"
	FieldSource             = "source"
	FieldRelationshipStage  = "relationship_stage"
	FieldDecisionRole       = "decision_role"
	FieldIndustry           = "industry"
	FieldLastMeetingDate    = "last_meeting_date"
	FieldMeetingCount       = "meeting_count"
)

// Lead is the canonical, de-duplicated customer record. Email is globally unique.
type Lead struct {
	ID                 string     `json:"id" db:"id"`
	Email              string     `json:"email" db:"email"`
	FirstName          string     `json:"first_name" db:"first_name"`
	LastName           string     `json:"last_name" db:"last_name"`
	Company            string     `json:"company_name" db:"company_name"`
	Title              string     `json:"job_title" db:"job_title"`
	Phone              string     `json:"phone" db:"phone"`
	Mobile             string     `json:"mobile_phone" db:"mobile_phone"`
	Status             string     `json:"status" db:"status"`
	QualificationScore int        `json:"qualification_score" db:"qualification_score"`
	Budget             *float64   `json:"budget,omitempty" db:"budget"`
	DecisionDate       *time.Time `json:"decision_date,omitempty" db:"decision_date"`
	Probability        *float64   `json:"probability,omitempty" db:"probability"`
	Source             string     `json:"source" db:"source"`
	RelationshipStage  string     `json:"relationship_stage" db:"relationship_stage"`
	DecisionRole       string     `json:"decision_role" db:"decision_role"`
	Industry           string     `json:"industry" db:"industry"`
	LastMeetingDate    *time.Time `json:"last_meeting_date,omitempty" db:"last_meeting_date"`
	MeetingCount       int        `json:"meeting_count" db:"meeting_count"`
	ExternalID         *string    `json:"external_id,omitempty" db:"external_id"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (l Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Fields returns the lead's values keyed by local field name. Empty strings and nil
// pointers are reported as nil so they classify as missing.
func (l Lead) Fields() map[string]any {
	fields := map[string]any{
		FieldEmail:              nilIfEmpty(l.Email),
		FieldFirstName:          nilIfEmpty(l.FirstName),
		FieldLastName:           nilIfEmpty(l.LastName),
		FieldCompanyName:        nilIfEmpty(l.Company),
		FieldJobTitle:           nilIfEmpty(l.Title),
		FieldPhone:              nilIfEmpty(l.Phone),
		FieldMobilePhone:        nilIfEmpty(l.Mobile),
		FieldStatus:             nilIfEmpty(l.Status),
		FieldQualificationScore: l.QualificationScore,
		FieldSource:             nilIfEmpty(l.Source),
		FieldRelationshipStage:  nilIfEmpty(l.RelationshipStage),
		FieldDecisionRole:       nilIfEmpty(l.DecisionRole),
		FieldIndustry:           nilIfEmpty(l.Industry),
		FieldMeetingCount:       l.MeetingCount,
		FieldBudget:             nil,
		FieldProbability:        nil,
		FieldDecisionDate:       nil,
		FieldLastMeetingDate:    nil,
	}
	if l.Budget != nil {
		fields[FieldBudget] = *l.Budget
	}
	if l.Probability != nil {
		fields[FieldProbability] = *l.Probability
	}
	if l.DecisionDate != nil {
		fields[FieldDecisionDate] = *l.DecisionDate
	}
	if l.LastMeetingDate != nil {
		fields[FieldLastMeetingDate] = *l.LastMeetingDate
	}
	return fields
}

// SetField assigns a value by local field name. Values arrive from JSON columns, so
// numbers may be float64 and dates may be strings.
func (l *Lead) SetField(field string, value any) error {
	switch field {
	case FieldEmail:
		l.Email = stringValue(value)
	case FieldFirstName:
		l.FirstName = stringValue(value)
	case FieldLastName:
		l.LastName = stringValue(value)
	case FieldCompanyName:
		l.Company = stringValue(value)
	case FieldJobTitle:
		l.Title = stringValue(value)
	case FieldPhone:
		l.Phone = stringValue(value)
	case FieldMobilePhone:
		l.Mobile = stringValue(value)
	case FieldStatus:
		l.Status = stringValue(value)
	case FieldSource:
		l.Source = stringValue(value)
	case FieldRelationshipStage:
		l.RelationshipStage = stringValue(value)
	case FieldDecisionRole:
		l.DecisionRole = stringValue(value)
	case FieldIndustry:
		l.Industry = stringValue(value)
	case FieldQualificationScore:
		n, err := intValue(field, value)
		if err != nil {
			return err
		}
		l.QualificationScore = n
	case FieldMeetingCount:
		n, err := intValue(field, value)
		if err != nil {
			return err
		}
		l.MeetingCount = n
	case FieldBudget:
		f, err := floatPtr(field, value)
		if err != nil {
			return err
		}
		l.Budget = f
	case FieldProbability:
		f, err := floatPtr(field, value)
		if err != nil {
			return err
		}
		l.Probability = f
	case FieldDecisionDate:
		ts, err := timePtr(field, value)
		if err != nil {
			return err
		}
		l.DecisionDate = ts
	case FieldLastMeetingDate:
		ts, err := timePtr(field, value)
		if err != nil {
			return err
		}
		l.LastMeetingDate = ts
	default:
		return fmt.Errorf("unknown lead field %q", field)
	}
	return nil
}

func nilIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func intValue(field string, v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("field %s: expected a number, got %T", field, v)
	}
}

func floatPtr(field string, v any) (*float64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	case int64:
		f := float64(n)
		return &f, nil
	default:
		return nil, fmt.Errorf("field %s: expected a number, got %T", field, v)
	}
}

func timePtr(field string, v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case *time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return &parsed, nil
			}
		}
		return nil, fmt.Errorf("field %s: unparseable date %q", field, t)
	default:
		return nil, fmt.Errorf("field %s: expected a date, got %T", field, v)
	}
}
