package models

import "time"

type ConflictType string

const (
	ConflictTypeLocalMissing    ConflictType = "local_missing"
	ConflictTypeExternalMissing ConflictType = "external_missing"
	ConflictTypeValueMismatch   ConflictType = "value_mismatch"
	ConflictTypePartialMatch    ConflictType = "partial_match"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type ResolutionStatus string

const (
	ResolutionPending          ResolutionStatus = "pending"
	ResolutionResolvedLocal    ResolutionStatus = "resolved_local"
	ResolutionResolvedExternal ResolutionStatus = "resolved_external"
	ResolutionResolvedManual   ResolutionStatus = "resolved_manual"
	ResolutionIgnored          ResolutionStatus = "ignored"
)

// IsTerminal reports whether no further transition is allowed.
func (s ResolutionStatus) IsTerminal() bool {
	return s != ResolutionPending && s != ""
}

// FieldConflict is a disagreement between the local lead and the external copy on one
// mapped field.
type FieldConflict struct {
	ID               string           `json:"id" db:"id"`
	LeadID           string           `json:"lead_id" db:"lead_id"`
	ReviewItemID     *string          `json:"review_item_id,omitempty" db:"review_item_id"`
	Field            string           `json:"field" db:"field"`
	ExternalField    string           `json:"external_field" db:"external_field"`
	LocalValue       any              `json:"local_value" db:"-"`
	ExternalValue    any              `json:"external_value" db:"-"`
	ConflictType     ConflictType     `json:"conflict_type" db:"conflict_type"`
	Severity         Severity         `json:"severity" db:"severity"`
	ResolutionStatus ResolutionStatus `json:"resolution_status" db:"resolution_status"`
	ResolvedValue    any              `json:"resolved_value,omitempty" db:"-"`
	ResolvedBy       *string          `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// IsPending reports whether the conflict still awaits a decision.
func (c FieldConflict) IsPending() bool {
	return c.ResolutionStatus == ResolutionPending || c.ResolutionStatus == ""
}
