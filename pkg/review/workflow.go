// Package review settles field conflicts between local leads and the external system:
// safe conflicts are resolved automatically, the rest wait in a review queue.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

var (
	// ErrNotPending is returned when a review item has already reached a final status.
	ErrNotPending = errors.New("review item is not pending")
	// ErrNotEligible is returned when an expired item still needs a human decision.
	ErrNotEligible = errors.New("review item is not eligible for auto-approval")
)

type Workflow struct {
	logger ectologger.Logger
	stores Stores
	policy Policy
	now    func() time.Time
}

func NewWorkflow(logger ectologger.Logger, stores Stores, policy Policy) *Workflow {
	return &Workflow{
		logger: logger,
		stores: stores,
		policy: policy.normalized(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (w *Workflow) Policy() Policy {
	return w.policy
}

// ReconcileRequest is one lead's detection output. Updates are local changes the
// external copy does not dispute; they are applied alongside the auto-resolutions.
type ReconcileRequest struct {
	LeadID    string
	Updates   map[string]any
	Conflicts []models.FieldConflict
}

// ReconcileResult reports what Reconcile did. Refreshed holds queued conflicts whose
// values changed since they were queued; AlreadyQueued counts the unchanged ones.
type ReconcileResult struct {
	AutoResolved  []models.FieldConflict
	ReviewItem    *models.ReviewItem
	SyncRequest   *models.SyncRequest
	Refreshed     []models.FieldConflict
	AlreadyQueued int
}

// Reconcile persists a lead's conflicts, applies every auto-resolvable one to the lead
// and queues the rest as one review item. A field that already waits for review is
// never queued twice: its pending conflict is kept, with its values refreshed when they
// changed. A sync request is written when the external system needs the local value.
// Everything happens in one transaction.
func (w *Workflow) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.Reconcile")
	defer span.End()

	if len(req.Conflicts) == 0 && len(req.Updates) == 0 {
		return ReconcileResult{}, nil
	}

	var result ReconcileResult
	err := w.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		lead, err := w.stores.Leads.Get(ctx, req.LeadID)
		if err != nil {
			return err
		}
		now := w.now()

		pending, err := w.stores.Conflicts.ListPendingByLead(ctx, lead.ID)
		if err != nil {
			return err
		}
		queued := make(map[string]models.FieldConflict, len(pending))
		for _, c := range pending {
			if _, ok := queued[c.Field]; !ok {
				queued[c.Field] = c
			}
		}

		var changed []string
		for _, field := range sortedKeys(req.Updates) {
			if err := lead.SetField(field, req.Updates[field]); err != nil {
				return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid update for %s: %v", field, err)
			}
			changed = append(changed, field)
		}

		var auto, manual []models.FieldConflict
		var push []string
		for _, c := range req.Conflicts {
			c.LeadID = lead.ID
			c.ResolutionStatus = models.ResolutionPending
			if existing, ok := queued[c.Field]; ok {
				if sameConflict(existing, c) {
					result.AlreadyQueued++
					continue
				}
				refreshed := refresh(existing, c)
				if err := w.stores.Conflicts.Refresh(ctx, refreshed); err != nil {
					return err
				}
				queued[c.Field] = refreshed
				result.Refreshed = append(result.Refreshed, refreshed)
				continue
			}
			if !AutoResolvable(c) {
				manual = append(manual, c)
				continue
			}

			value, status := AutoResolve(c)
			if err := lead.SetField(c.Field, value); err != nil {
				w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"lead_id": lead.ID,
					"field":   c.Field,
				}).Warn("Auto-resolved value does not fit the lead, queueing for review")
				manual = append(manual, c)
				continue
			}

			auto = append(auto, resolved(c, status, value, SystemReviewer, now))
			changed = append(changed, c.Field)
			if status == models.ResolutionResolvedLocal {
				push = append(push, c.Field)
			}
		}

		if len(manual) > 0 {
			item, err := w.stores.Items.Create(ctx, w.newItem(lead.ID, now))
			if err != nil {
				return err
			}
			for i := range manual {
				manual[i].ReviewItemID = &item.ID
			}
			result.ReviewItem = item
		}

		stored, err := w.stores.Conflicts.CreateBatch(ctx, append(auto, manual...))
		if err != nil {
			return err
		}
		result.AutoResolved = stored[:len(auto)]
		if result.ReviewItem != nil {
			result.ReviewItem.Conflicts = stored[len(auto):]
		}

		if len(changed) > 0 {
			if err := w.stores.Leads.UpdateFields(ctx, lead, unique(changed)); err != nil {
				return err
			}
		}

		if len(push) > 0 {
			sync, err := w.stores.Syncs.Create(ctx, &models.SyncRequest{
				LeadID: lead.ID,
				Reason: models.SyncReasonAutoResolved,
				Fields: push,
			})
			if err != nil {
				return err
			}
			result.SyncRequest = sync
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	for _, c := range result.AutoResolved {
		metrics.ConflictsAutoResolvedTotal.WithLabelValues(string(c.ResolutionStatus)).Inc()
	}
	fields := map[string]any{
		"lead_id":        req.LeadID,
		"auto_resolved":  len(result.AutoResolved),
		"refreshed":      len(result.Refreshed),
		"already_queued": result.AlreadyQueued,
	}
	if result.ReviewItem != nil {
		metrics.ReviewItemsTotal.WithLabelValues(string(models.ReviewStatusPending)).Inc()
		fields["review_item_id"] = result.ReviewItem.ID
		fields["queued"] = len(result.ReviewItem.Conflicts)
	}
	w.logger.WithContext(ctx).WithFields(fields).Info("Reconciled lead conflicts")

	return result, nil
}

// Get returns a review item with all of its conflicts.
func (w *Workflow) Get(ctx context.Context, id string) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.Get")
	defer span.End()

	item, err := w.stores.Items.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	conflicts, err := w.stores.Conflicts.ListByReviewItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Conflicts = conflicts
	return item, nil
}

// ListPending lists the pending queue, for one reviewer when reviewer is set.
func (w *Workflow) ListPending(ctx context.Context, reviewer string, limit int) ([]models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.ListPending")
	defer span.End()

	return w.stores.Items.ListPending(ctx, reviewer, limit)
}

// Assign hands a pending item to a reviewer.
func (w *Workflow) Assign(ctx context.Context, id, reviewer string) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.Assign")
	defer span.End()

	if reviewer == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "reviewer is required")
	}

	var updated *models.ReviewItem
	err := w.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := w.stores.Items.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.IsPending() {
			return fmt.Errorf("assign %s: %w", id, ErrNotPending)
		}

		item.Assignee = &reviewer
		item.UpdatedAt = w.now()
		if err := w.stores.Items.Update(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, httpError(err)
	}
	return updated, nil
}

// ApproveRequest approves Fields (all remaining when empty) of one review item.
// Overrides replace the value applied for a field.
type ApproveRequest struct {
	ReviewItemID string
	Fields       []string
	Reviewer     string
	Notes        string
	Overrides    map[string]any
}

// Approve applies the approved fields to the lead, resolves their conflicts as
// resolved_manual and re-queues the lead for external sync, atomically.
func (w *Workflow) Approve(ctx context.Context, req ApproveRequest) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.Approve")
	defer span.End()

	if req.Reviewer == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "reviewer is required")
	}

	item, err := w.approve(ctx, req, models.SyncReasonApproved, nil)
	if err != nil {
		return nil, httpError(err)
	}
	return item, nil
}

// AutoApprove approves every remaining field of an expired item on the sweep's behalf.
// Status, age and eligibility are checked again under the row lock, so an item settled
// by a reviewer in the meantime returns ErrNotPending and an ineligible one ErrNotEligible.
func (w *Workflow) AutoApprove(ctx context.Context, id string) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.AutoApprove")
	defer span.End()

	req := ApproveRequest{ReviewItemID: id, Reviewer: SweepReviewer, Notes: "auto-approved after review SLA"}
	return w.approve(ctx, req, models.SyncReasonAutoApproved, func(item models.ReviewItem) error {
		if w.now().Sub(item.CreatedAt) < w.policy.SLA {
			return fmt.Errorf("review item %s is inside its SLA: %w", item.ID, ErrNotEligible)
		}
		if !w.Eligible(item) {
			return fmt.Errorf("review item %s: %w", item.ID, ErrNotEligible)
		}
		return nil
	})
}

func (w *Workflow) approve(ctx context.Context, req ApproveRequest, reason string, check func(models.ReviewItem) error) (*models.ReviewItem, error) {
	var updated *models.ReviewItem
	err := w.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := w.lockItem(ctx, req.ReviewItemID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(*item); err != nil {
				return err
			}
		}

		targets, err := selectPending(item, req.Fields)
		if err != nil {
			return err
		}

		lead, err := w.stores.Leads.Get(ctx, item.LeadID)
		if err != nil {
			return err
		}

		now := w.now()
		fields := make([]string, 0, len(targets))
		for _, i := range targets {
			c := item.Conflicts[i]
			value, ok := req.Overrides[c.Field]
			if !ok {
				value = approvedValue(c)
			}
			if err := lead.SetField(c.Field, value); err != nil {
				return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid value for %s: %v", c.Field, err)
			}

			item.Conflicts[i] = resolved(c, models.ResolutionResolvedManual, value, req.Reviewer, now)
			if err := w.stores.Conflicts.Resolve(ctx, item.Conflicts[i]); err != nil {
				return err
			}
			fields = append(fields, c.Field)
		}

		if err := w.stores.Leads.UpdateFields(ctx, lead, unique(fields)); err != nil {
			return err
		}

		if req.Notes != "" {
			notes := req.Notes
			item.Notes = &notes
		}
		settle(item, req.Reviewer, now)
		if err := w.stores.Items.Update(ctx, item); err != nil {
			return err
		}

		if _, err := w.stores.Syncs.Create(ctx, &models.SyncRequest{
			LeadID: lead.ID,
			Reason: reason,
			Fields: fields,
		}); err != nil {
			return err
		}

		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.recordTransition(ctx, updated, "Approved review item")
	return updated, nil
}

// RejectRequest rejects Fields (all remaining when empty) of one review item.
type RejectRequest struct {
	ReviewItemID string
	Fields       []string
	Reviewer     string
	Reason       string
}

// Reject ignores the named conflicts; the lead keeps its current values. The item stays
// pending while other conflicts remain.
func (w *Workflow) Reject(ctx context.Context, req RejectRequest) (*models.ReviewItem, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.Reject")
	defer span.End()

	if req.Reviewer == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "reviewer is required")
	}

	var updated *models.ReviewItem
	err := w.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		item, err := w.lockItem(ctx, req.ReviewItemID)
		if err != nil {
			return err
		}

		targets, err := selectPending(item, req.Fields)
		if err != nil {
			return err
		}

		now := w.now()
		for _, i := range targets {
			item.Conflicts[i] = resolved(item.Conflicts[i], models.ResolutionIgnored, nil, req.Reviewer, now)
			if err := w.stores.Conflicts.Resolve(ctx, item.Conflicts[i]); err != nil {
				return err
			}
		}

		if req.Reason != "" {
			reason := req.Reason
			item.RejectReason = &reason
		}
		settle(item, req.Reviewer, now)
		if err := w.stores.Items.Update(ctx, item); err != nil {
			return err
		}

		updated = item
		return nil
	})
	if err != nil {
		return nil, httpError(err)
	}

	w.recordTransition(ctx, updated, "Rejected review item fields")
	return updated, nil
}

// BatchResult reports per-item outcomes of a batch approval.
type BatchResult struct {
	Approved []string
	Failed   map[string]error
}

// BatchApprove approves every remaining field of each item independently; one
// item's failure does not affect the others.
func (w *Workflow) BatchApprove(ctx context.Context, ids []string, reviewer, notes string) BatchResult {
	ctx, span := tracing.StartSpan(ctx, "review.Workflow.BatchApprove")
	defer span.End()

	result := BatchResult{Failed: map[string]error{}}
	for _, id := range ids {
		if _, err := w.Approve(ctx, ApproveRequest{ReviewItemID: id, Reviewer: reviewer, Notes: notes}); err != nil {
			w.logger.WithContext(ctx).WithError(err).WithField("review_item_id", id).Warn("Batch approval failed for review item")
			result.Failed[id] = err
			continue
		}
		result.Approved = append(result.Approved, id)
	}
	return result
}

// Eligible reports whether the sweep may approve item: every remaining conflict is on an
// allow-listed field and none is high severity.
func (w *Workflow) Eligible(item models.ReviewItem) bool {
	pending := item.PendingConflicts()
	if len(pending) == 0 {
		return false
	}
	blocked := ectolinq.Filter(pending, func(c models.FieldConflict) bool {
		return c.Severity == models.SeverityHigh || !slices.Contains(w.policy.AutoApproveFields, c.Field)
	})
	return len(blocked) == 0
}

// Expired lists pending items older than the SLA.
func (w *Workflow) Expired(ctx context.Context) ([]models.ReviewItem, error) {
	return w.stores.Items.ListExpired(ctx, w.now().Add(-w.policy.SLA), w.policy.SweepBatchSize)
}

// lockItem reads a pending item and its conflicts under a row lock.
func (w *Workflow) lockItem(ctx context.Context, id string) (*models.ReviewItem, error) {
	item, err := w.stores.Items.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsPending() {
		return nil, fmt.Errorf("review item %s is %s: %w", id, item.Status, ErrNotPending)
	}

	conflicts, err := w.stores.Conflicts.ListByReviewItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Conflicts = conflicts
	return item, nil
}

func (w *Workflow) newItem(leadID string, now time.Time) *models.ReviewItem {
	item := &models.ReviewItem{
		LeadID:    leadID,
		Status:    models.ReviewStatusPending,
		DueAt:     now.Add(w.policy.SLA),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if w.policy.DefaultAssignee != "" {
		assignee := w.policy.DefaultAssignee
		item.Assignee = &assignee
	}
	return item
}

func (w *Workflow) recordTransition(ctx context.Context, item *models.ReviewItem, msg string) {
	if !item.IsPending() {
		metrics.ReviewItemsTotal.WithLabelValues(string(item.Status)).Inc()
	}
	w.logger.WithContext(ctx).WithFields(map[string]any{
		"review_item_id": item.ID,
		"lead_id":        item.LeadID,
		"status":         item.Status,
		"remaining":      len(item.PendingConflicts()),
	}).Info(msg)
}

// selectPending returns the indexes of the pending conflicts named by fields, or of all
// pending conflicts when fields is empty.
func selectPending(item *models.ReviewItem, fields []string) ([]int, error) {
	var all []int
	byField := map[string]int{}
	for i, c := range item.Conflicts {
		if c.IsPending() {
			all = append(all, i)
			byField[c.Field] = i
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("review item %s has no pending conflicts: %w", item.ID, ErrNotPending)
	}
	if len(fields) == 0 {
		return all, nil
	}

	targets := make([]int, 0, len(fields))
	for _, field := range unique(fields) {
		i, ok := byField[field]
		if !ok {
			return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "field %s has no pending conflict on review item %s", field, item.ID)
		}
		targets = append(targets, i)
	}
	return targets, nil
}

// settle moves an item with no pending conflicts to its final status: approved when
// nothing was ignored, rejected when nothing was approved, else partially_rejected.
func settle(item *models.ReviewItem, reviewer string, now time.Time) {
	item.UpdatedAt = now

	approved, ignored := 0, 0
	for _, c := range item.Conflicts {
		switch {
		case c.IsPending():
			return
		case c.ResolutionStatus == models.ResolutionIgnored:
			ignored++
		default:
			approved++
		}
	}

	switch {
	case ignored == 0:
		item.Status = models.ReviewStatusApproved
	case approved == 0:
		item.Status = models.ReviewStatusRejected
	default:
		item.Status = models.ReviewStatusPartiallyRejected
	}
	item.ResolvedAt = &now
	item.ResolvedBy = &reviewer
}

func resolved(c models.FieldConflict, status models.ResolutionStatus, value any, by string, at time.Time) models.FieldConflict {
	c.ResolutionStatus = status
	c.ResolvedValue = value
	c.ResolvedBy = &by
	c.ResolvedAt = &at
	return c
}

// httpError maps workflow sentinels to the status an API surface returns.
func httpError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotPending):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotEligible):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unique(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// sameConflict reports whether a newly detected conflict repeats a queued one.
// Values compare in their JSON form, the form they are stored in.
func sameConflict(queued, detected models.FieldConflict) bool {
	return queued.ExternalField == detected.ExternalField &&
		queued.ConflictType == detected.ConflictType &&
		sameJSON(queued.LocalValue, detected.LocalValue) &&
		sameJSON(queued.ExternalValue, detected.ExternalValue)
}

func sameJSON(a, b any) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(x, y)
}

// refresh keeps the queued conflict's identity and review item and takes the detected
// values.
func refresh(queued, detected models.FieldConflict) models.FieldConflict {
	queued.ExternalField = detected.ExternalField
	queued.LocalValue = detected.LocalValue
	queued.ExternalValue = detected.ExternalValue
	queued.ConflictType = detected.ConflictType
	queued.Severity = detected.Severity
	return queued
}
