package review

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/redis"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// ErrSweepAlreadyRunning is returned when starting a running sweep
var ErrSweepAlreadyRunning = errors.New("review sweep already running")

const (
	// DefaultSweepInterval is the time between sweep cycles
	DefaultSweepInterval = 5 * time.Minute

	// DefaultLockTTL bounds how long one instance holds an item
	DefaultLockTTL = 60 * time.Second

	// LockKeyPrefix is the prefix for per-item sweep locks
	LockKeyPrefix = "review:auto-approve:"

	relayLockKey = "review:sync-relay"
)

// Locker runs fn while holding a distributed lock, or returns redis.ErrLockNotAcquired.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

type SweepConfig struct {
	// Interval is how often expired items are swept
	Interval time.Duration

	// LockTTL is how long the per-item lock is held at most
	LockTTL time.Duration
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Interval: DefaultSweepInterval,
		LockTTL:  DefaultLockTTL,
	}
}

// SweepResult counts one cycle's outcomes.
type SweepResult struct {
	Approved  int `json:"approved"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Published int `json:"published"`
}

// AutoApprover periodically approves review items that outlived the SLA when only
// low-risk fields remain, then relays pending sync requests.
type AutoApprover struct {
	workflow *Workflow
	locker   Locker
	relay    *SyncRelay
	config   SweepConfig
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewAutoApprover creates a sweep. relay may be nil.
func NewAutoApprover(workflow *Workflow, locker Locker, relay *SyncRelay, config SweepConfig, logger ectologger.Logger) *AutoApprover {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &AutoApprover{
		workflow: workflow,
		locker:   locker,
		relay:    relay,
		config:   config,
		logger:   logger,
	}
}

// Start runs a cycle immediately and then every interval until Stop. A stopped sweep
// can be started again.
func (a *AutoApprover) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrSweepAlreadyRunning
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.stoppedC = make(chan struct{})
	stopCh, stoppedC := a.stopCh, a.stoppedC
	a.mu.Unlock()

	a.logger.WithContext(ctx).Infof("Starting review sweep: interval=%s sla=%s", a.config.Interval, a.workflow.Policy().SLA)
	go a.loop(ctx, stopCh, stoppedC)
	return nil
}

// Stop waits for the running cycle to finish or ctx to expire.
func (a *AutoApprover) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	stopCh, stoppedC := a.stopCh, a.stoppedC
	a.mu.Unlock()

	close(stopCh)

	select {
	case <-stoppedC:
		a.logger.WithContext(ctx).Info("Review sweep stopped")
		return nil
	case <-ctx.Done():
		a.logger.WithContext(ctx).Warn("Review sweep shutdown timed out")
		return ctx.Err()
	}
}

func (a *AutoApprover) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *AutoApprover) loop(ctx context.Context, stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	a.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps the expired items once. Items locked by another instance, settled in
// the meantime or still needing a reviewer are skipped. It is safe to run concurrently
// with manual approvals and with other instances.
func (a *AutoApprover) RunOnce(ctx context.Context) SweepResult {
	ctx, span := tracing.StartSpan(ctx, "review.AutoApprover.RunOnce")
	defer span.End()

	start := time.Now()
	var result SweepResult

	items, err := a.workflow.Expired(ctx)
	if err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to list expired review items")
		return result
	}

	for _, item := range items {
		id := item.ID
		err := a.locker.WithLock(ctx, LockKeyPrefix+id, a.config.LockTTL, func(ctx context.Context) error {
			_, err := a.workflow.AutoApprove(ctx, id)
			return err
		})
		switch {
		case err == nil:
			result.Approved++
			metrics.ReviewSweepApprovedTotal.Inc()
		case errors.Is(err, redis.ErrLockNotAcquired):
			a.skip(&result, "locked")
		case errors.Is(err, ErrNotPending):
			a.skip(&result, "not_pending")
		case errors.Is(err, ErrNotEligible):
			a.skip(&result, "not_eligible")
		default:
			result.Failed++
			a.logger.WithContext(ctx).WithError(err).WithField("review_item_id", id).Warn("Failed to auto-approve review item")
		}
	}

	if a.relay != nil {
		err := a.locker.WithLock(ctx, relayLockKey, a.config.LockTTL, func(ctx context.Context) error {
			n, err := a.relay.RelayOnce(ctx)
			result.Published = n
			return err
		})
		if err != nil && !errors.Is(err, redis.ErrLockNotAcquired) {
			a.logger.WithContext(ctx).WithError(err).Error("Failed to relay sync requests")
		}
	}

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"expired":   len(items),
		"approved":  result.Approved,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"published": result.Published,
		"duration":  time.Since(start).String(),
	}).Info("Review sweep completed")
	return result
}

func (a *AutoApprover) skip(result *SweepResult, reason string) {
	result.Skipped++
	metrics.ReviewSweepSkippedTotal.WithLabelValues(reason).Inc()
}
