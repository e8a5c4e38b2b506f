package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/redis"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const (
	// DefaultCacheTTL is how long a fetched snapshot is served from cache
	DefaultCacheTTL = 5 * time.Minute

	cacheKeyPrefix = "sage:snapshot:"
)

// Cache is the byte store behind CachedFetcher; *redis.Client implements it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// CachedFetcher is a read-through cache in front of another Fetcher. Cache failures
// degrade to a direct fetch.
type CachedFetcher struct {
	next   Fetcher
	cache  Cache
	ttl    time.Duration
	logger ectologger.Logger
}

func NewCachedFetcher(next Fetcher, cache Cache, ttl time.Duration, logger ectologger.Logger) *CachedFetcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedFetcher{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (f *CachedFetcher) Fetch(ctx context.Context, leadID string) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.CachedFetcher.Fetch")
	defer span.End()

	key := cacheKeyPrefix + leadID
	data, err := f.cache.Get(ctx, key)
	switch {
	case err == nil:
		var snapshot map[string]any
		if err := json.Unmarshal(data, &snapshot); err == nil {
			metrics.SnapshotCacheTotal.WithLabelValues("hit").Inc()
			return snapshot, nil
		}
		f.logger.WithContext(ctx).WithField("lead_id", leadID).Warn("Discarding undecodable cached snapshot")
	case errors.Is(err, redis.ErrNotFound):
	default:
		f.logger.WithContext(ctx).WithError(err).WithField("lead_id", leadID).Warn("Snapshot cache read failed")
	}
	metrics.SnapshotCacheTotal.WithLabelValues("miss").Inc()

	snapshot, err := f.next.Fetch(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snapshot); err == nil {
		if err := f.cache.Set(ctx, key, data, f.ttl); err != nil {
			f.logger.WithContext(ctx).WithError(err).WithField("lead_id", leadID).Warn("Snapshot cache write failed")
		}
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot, typically after the lead was pushed externally.
func (f *CachedFetcher) Invalidate(ctx context.Context, leadID string) error {
	return f.cache.Del(ctx, cacheKeyPrefix+leadID)
}
