package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/resilience"
)

// Open builds the cache selected by cfg.Backend. It returns nil, nil for
// "none". The returned closer releases the backend's connections.
func Open(ctx context.Context, cfg config.CacheConfig, redisCfg config.RedisConfig) (*QueryCache, io.Closer, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nopCloser{}, nil
	case "lru":
		return New(NewLRUBackend(cfg.Size, cfg.TTL), cfg.TTL), nopCloser{}, nil
	case "redis":
		client, err := pkgredis.NewClient(ctx, redisCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting cache backend: %w", err)
		}
		breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		})
		return New(NewBreakerBackend(NewRedisBackend(client), breaker), cfg.TTL), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
