package cache

import (
	"context"
	"strings"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/resilience"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RedisBackend shares cached results between processes.
type RedisBackend struct {
	client *pkgredis.Client
}

func NewRedisBackend(client *pkgredis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, key)
	if pkgredis.IsNilError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl)
}

func (b *RedisBackend) Flush(ctx context.Context, prefix string) (int64, error) {
	return b.client.FlushByPattern(ctx, prefix+"*")
}

// LRUBackend keeps results in process memory with a size bound and a fixed
// TTL chosen at construction.
type LRUBackend struct {
	lru *expirable.LRU[string, []byte]
}

func NewLRUBackend(size int, ttl time.Duration) *LRUBackend {
	return &LRUBackend{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (b *LRUBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := b.lru.Get(key)
	return v, ok, nil
}

// Set ignores ttl; entries expire after the TTL given to NewLRUBackend.
func (b *LRUBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.lru.Add(key, value)
	return nil
}

func (b *LRUBackend) Flush(_ context.Context, prefix string) (int64, error) {
	var n int64
	for _, k := range b.lru.Keys() {
		if strings.HasPrefix(k, prefix) && b.lru.Remove(k) {
			n++
		}
	}
	return n, nil
}

func (b *LRUBackend) Len() int { return b.lru.Len() }

// BreakerBackend stops calling a failing backend until its circuit breaker
// lets a probe through, so a dead cache costs searches nothing.
type BreakerBackend struct {
	next    Backend
	breaker *resilience.CircuitBreaker
}

func NewBreakerBackend(next Backend, breaker *resilience.CircuitBreaker) *BreakerBackend {
	return &BreakerBackend{next: next, breaker: breaker}
}

func (b *BreakerBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := b.breaker.Execute(func() error {
		var err error
		value, ok, err = b.next.Get(ctx, key)
		return err
	})
	return value, ok, err
}

func (b *BreakerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.breaker.Execute(func() error {
		return b.next.Set(ctx, key, value, ttl)
	})
}

func (b *BreakerBackend) Flush(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := b.breaker.Execute(func() error {
		var err error
		n, err = b.next.Flush(ctx, prefix)
		return err
	})
	return n, err
}
