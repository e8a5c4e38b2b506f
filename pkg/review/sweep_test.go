package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/redis"
)

// fakeLocker refuses keys listed in held and records every key it granted.
type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]bool
	granted []string
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return redis.ErrLockNotAcquired
	}
	l.granted = append(l.granted, key)
	l.mu.Unlock()
	return fn(ctx)
}

type fakePublisher struct {
	published []models.SyncRequest
	err       error
}

func (p *fakePublisher) PublishSyncRequests(_ context.Context, requests []models.SyncRequest) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, requests...)
	return nil
}

func TestAutoApprover_RunOnce(t *testing.T) {
	db := newMemoryDB(testLead())
	w := newTestWorkflow(db, testNow)
	expired := testNow.Add(-25 * time.Hour)

	eligible := db.addItem("lead-1", expired,
		conflict(models.FieldQualificationScore, models.ConflictTypeValueMismatch, models.SeverityLow, 70.0, 55.0),
		conflict(models.FieldMeetingCount, models.ConflictTypeValueMismatch, models.SeverityLow, 4.0, 3.0),
	)
	identity := db.addItem("lead-1", expired,
		conflict(models.FieldCompanyName, models.ConflictTypeValueMismatch, models.SeverityHigh, "Local Co", "Creatio Co"),
	)
	offList := db.addItem("lead-1", expired,
		conflict(models.FieldIndustry, models.ConflictTypeValueMismatch, models.SeverityLow, "Retail", "Banking"),
	)
	locked := db.addItem("lead-1", expired,
		conflict(models.FieldRelationshipStage, models.ConflictTypeValueMismatch, models.SeverityLow, "engaged", "prospect"),
	)
	fresh := db.addItem("lead-1", testNow.Add(-time.Hour),
		conflict(models.FieldQualificationScore, models.ConflictTypeValueMismatch, models.SeverityLow, 80.0, 10.0),
	)

	locker := &fakeLocker{held: map[string]bool{LockKeyPrefix + locked: true}}
	sweep := NewAutoApprover(w, locker, nil, DefaultSweepConfig(), testLogger())

	result := sweep.RunOnce(context.Background())
	assert.Equal(t, SweepResult{Approved: 1, Skipped: 3}, result)

	assert.Equal(t, models.ReviewStatusApproved, db.item(eligible).Status)
	for _, id := range []string{identity, offList, locked, fresh} {
		assert.Equal(t, models.ReviewStatusPending, db.item(id).Status, id)
	}

	lead := db.lead("lead-1")
	assert.Equal(t, 70, lead.QualificationScore)
	assert.Equal(t, 4, lead.MeetingCount)

	syncs := db.syncRequests()
	require.Len(t, syncs, 1)
	assert.Equal(t, models.SyncReasonAutoApproved, syncs[0].Reason)
	assert.ElementsMatch(t, []string{models.FieldQualificationScore, models.FieldMeetingCount}, syncs[0].Fields)

	again := sweep.RunOnce(context.Background())
	assert.Equal(t, SweepResult{Skipped: 3}, again)
	assert.Len(t, db.syncRequests(), 1)
}

func TestAutoApprover_SkipsItemSettledConcurrently(t *testing.T) {
	db := newMemoryDB(testLead())
	w := newTestWorkflow(db, testNow)
	id := db.addItem("lead-1", testNow.Add(-48*time.Hour),
		conflict(models.FieldMeetingCount, models.ConflictTypeValueMismatch, models.SeverityLow, 4.0, 3.0),
	)

	// A reviewer settles the item between the listing and the lock.
	locker := lockerFunc(func(ctx context.Context, key string, fn func(ctx context.Context) error) error {
		_, err := w.Reject(ctx, RejectRequest{ReviewItemID: id, Reviewer: "reviewer@sage.io"})
		require.NoError(t, err)
		return fn(ctx)
	})

	result := NewAutoApprover(w, locker, nil, DefaultSweepConfig(), testLogger()).RunOnce(context.Background())
	assert.Equal(t, SweepResult{Skipped: 1}, result)
	assert.Equal(t, models.ReviewStatusRejected, db.item(id).Status)
	assert.Empty(t, db.syncRequests())
}

func TestAutoApprover_RelaysSyncRequests(t *testing.T) {
	db := newMemoryDB(testLead())
	w := newTestWorkflow(db, testNow)
	db.addItem("lead-1", testNow.Add(-25*time.Hour),
		conflict(models.FieldMeetingCount, models.ConflictTypeValueMismatch, models.SeverityLow, 4.0, 3.0),
	)

	publisher := &fakePublisher{}
	relay := NewSyncRelay(memSyncs{db}, publisher, 0, testLogger())
	locker := &fakeLocker{}
	sweep := NewAutoApprover(w, locker, relay, DefaultSweepConfig(), testLogger())

	result := sweep.RunOnce(context.Background())
	assert.Equal(t, 1, result.Approved)
	assert.Equal(t, 1, result.Published)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "lead-1", publisher.published[0].LeadID)
	assert.Contains(t, locker.granted, relayLockKey)

	for _, r := range db.syncRequests() {
		assert.NotNil(t, r.PublishedAt)
	}
}

func TestAutoApprover_StartStop(t *testing.T) {
	db := newMemoryDB(testLead())
	w := newTestWorkflow(db, testNow)
	sweep := NewAutoApprover(w, &fakeLocker{}, nil, SweepConfig{Interval: time.Hour}, testLogger())

	ctx := context.Background()
	require.NoError(t, sweep.Start(ctx))
	assert.True(t, sweep.IsRunning())
	assert.ErrorIs(t, sweep.Start(ctx), ErrSweepAlreadyRunning)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, sweep.Stop(stopCtx))
	assert.False(t, sweep.IsRunning())
	assert.NoError(t, sweep.Stop(stopCtx))
}

func TestAutoApprover_Restart(t *testing.T) {
	db := newMemoryDB(testLead())
	w := newTestWorkflow(db, testNow)
	sweep := NewAutoApprover(w, &fakeLocker{}, nil, SweepConfig{Interval: time.Hour}, testLogger())

	ctx := context.Background()
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, sweep.Start(ctx))
		assert.True(t, sweep.IsRunning())
		require.NoError(t, sweep.Stop(stopCtx))
		assert.False(t, sweep.IsRunning())
	}
}

func TestSyncRelay_RelayOnce(t *testing.T) {
	tests := []struct {
		name          string
		publishErr    error
		wantCount     int
		wantErr       bool
		wantPublished bool
	}{
		{name: "publishes and marks", wantCount: 2, wantPublished: true},
		{name: "publisher failure leaves rows pending", publishErr: errors.New("broker unavailable"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newMemoryDB()
			syncs := memSyncs{db}
			for _, lead := range []string{"lead-1", "lead-2"} {
				_, err := syncs.Create(context.Background(), &models.SyncRequest{LeadID: lead, Reason: models.SyncReasonApproved})
				require.NoError(t, err)
			}

			publisher := &fakePublisher{err: tt.publishErr}
			n, err := NewSyncRelay(syncs, publisher, 10, testLogger()).RelayOnce(context.Background())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCount, n)

			for _, r := range db.syncRequests() {
				assert.Equal(t, tt.wantPublished, r.PublishedAt != nil)
			}

			if tt.wantPublished {
				n, err = NewSyncRelay(syncs, publisher, 10, testLogger()).RelayOnce(context.Background())
				require.NoError(t, err)
				assert.Zero(t, n)
			}
		})
	}
}

type lockerFunc func(ctx context.Context, key string, fn func(ctx context.Context) error) error

func (f lockerFunc) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	return f(ctx, key, fn)
}
