package models

import "time"

type ReviewStatus string

const (
	ReviewStatusPending           ReviewStatus = "pending_review"
	ReviewStatusApproved          ReviewStatus = "approved"
	ReviewStatusRejected          ReviewStatus = "rejected"
	ReviewStatusPartiallyRejected ReviewStatus = "partially_rejected"
)

// ReviewItem groups the conflicts of one lead that need a human decision.
type ReviewItem struct {
	ID           string       `json:"id" db:"id"`
	LeadID       string       `json:"lead_id" db:"lead_id"`
	Status       ReviewStatus `json:"status" db:"status"`
	Assignee     *string      `json:"assignee,omitempty" db:"assignee"`
	Notes        *string      `json:"notes,omitempty" db:"notes"`
	RejectReason *string      `json:"reject_reason,omitempty" db:"reject_reason"`
	DueAt        time.Time    `json:"due_at" db:"due_at"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy   *string      `json:"resolved_by,omitempty" db:"resolved_by"`

	Conflicts []FieldConflict `json:"conflicts,omitempty" db:"-"`
}

// IsPending reports whether the item can still be approved or rejected.
func (r ReviewItem) IsPending() bool {
	return r.Status == ReviewStatusPending
}

// IsOverdue reports whether the SLA has passed at now.
func (r ReviewItem) IsOverdue(now time.Time) bool {
	return r.IsPending() && now.After(r.DueAt)
}

// PendingConflicts returns the conflicts still awaiting a decision.
func (r ReviewItem) PendingConflicts() []FieldConflict {
	pending := make([]FieldConflict, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		if c.IsPending() {
			pending = append(pending, c)
		}
	}
	return pending
}

// SyncRequest is an outbox row asking for a lead to be pushed to the external system.
type SyncRequest struct {
	ID          string     `json:"id" db:"id"`
	LeadID      string     `json:"lead_id" db:"lead_id"`
	Reason      string     `json:"reason" db:"reason"`
	Fields      []string   `json:"fields" db:"-"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty" db:"published_at"`
}

const (
	SyncReasonAutoResolved = "auto_resolved"
	SyncReasonApproved     = "review_approved"
	SyncReasonAutoApproved = "review_auto_approved"
)
