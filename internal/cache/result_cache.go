package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"harmonic-signals/internal/strategy"
)

// PrefixResult is the key layout of a stream's latest result
const PrefixResult = "harmonic:%s:%s:result"

// Store is the subset of CacheService the result cache needs
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var _ Store = (*CacheService)(nil)

// ResultCache stores the latest analysis result of each stream
type ResultCache struct {
	store Store
	ttl   time.Duration
}

// NewResultCache creates a result cache. Entries expire after ttl.
func NewResultCache(store Store, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

// ResultKey generates the cache key for a stream
func ResultKey(symbol, interval string) string {
	return fmt.Sprintf(PrefixResult, strings.ToUpper(symbol), interval)
}

// SetResult caches a stream's latest result
func (rc *ResultCache) SetResult(ctx context.Context, symbol, interval string, result strategy.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return rc.store.Set(ctx, ResultKey(symbol, interval), data, rc.ttl)
}

// GetResult returns a stream's cached result. ErrCacheMiss is returned when
// nothing is cached.
func (rc *ResultCache) GetResult(ctx context.Context, symbol, interval string) (*strategy.Result, error) {
	data, err := rc.store.Get(ctx, ResultKey(symbol, interval))
	if err != nil {
		return nil, err
	}

	var result strategy.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return &result, nil
}

// Delete drops a stream's cached result
func (rc *ResultCache) Delete(ctx context.Context, symbol, interval string) error {
	return rc.store.Delete(ctx, ResultKey(symbol, interval))
}
