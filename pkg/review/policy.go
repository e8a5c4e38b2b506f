package review

import "time"

const (
	DefaultSLA            = 24 * time.Hour
	DefaultSweepBatchSize = 100

	// SystemReviewer resolves conflicts that were never shown to a person.
	SystemReviewer = "system:auto-resolve"
	// SweepReviewer approves expired items on the reviewers' behalf.
	SweepReviewer = "system:auto-approve"
)

// DefaultAutoApproveFields are the low-risk fields the sweep may approve unattended.
var DefaultAutoApproveFields = []string{
	"qualification_score",
	"last_meeting_date",
	"meeting_count",
	"relationship_stage",
}

// Policy is the workflow's immutable configuration.
type Policy struct {
	SLA               time.Duration
	DefaultAssignee   string
	AutoApproveFields []string
	SweepBatchSize    int
}

func DefaultPolicy() Policy {
	return Policy{
		SLA:               DefaultSLA,
		AutoApproveFields: DefaultAutoApproveFields,
		SweepBatchSize:    DefaultSweepBatchSize,
	}
}

// normalized fills unset values with defaults and copies the allow-list.
func (p Policy) normalized() Policy {
	if p.SLA <= 0 {
		p.SLA = DefaultSLA
	}
	if p.SweepBatchSize <= 0 {
		p.SweepBatchSize = DefaultSweepBatchSize
	}
	if p.AutoApproveFields == nil {
		p.AutoApproveFields = DefaultAutoApproveFields
	}
	p.AutoApproveFields = append([]string(nil), p.AutoApproveFields...)
	return p
}
