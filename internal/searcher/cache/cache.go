// Package cache memoises search results. Keys include the index identity and
// generation, so every commit implicitly retires earlier entries and indexes
// sharing a backend never see each other's results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/executor"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Backend stores encoded results.
type Backend interface {
	// Get reports ok=false on a miss; err is reserved for backend failures.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Flush drops every key with prefix and returns how many were removed.
	Flush(ctx context.Context, prefix string) (int64, error)
}

// QueryCache fronts a Backend with singleflight so concurrent identical
// queries run once.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Key identifies a cacheable search.
type Key struct {
	IndexID    string
	Query      string
	Limit      int
	Generation uint64
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s|%s|limit=%d|gen=%d", k.IndexID, k.Query, k.Limit, k.Generation)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// Get returns a cached result. Backend errors are logged and count as a
// miss.
func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := key.String()
	data, ok, err := c.backend.Get(ctx, k)
	if err != nil {
		c.logger.Error("cache get failed", "key", k, "error", err)
	}
	if !ok || err != nil {
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return &result, true
}

// Set stores result. Failures are logged; the cache is best effort.
func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	k := key.String()
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.backend.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs computeFn once per
// key across concurrent callers. hit reports whether the cache answered.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (any, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.Flush(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns cumulative hit and miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
