package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether another attempt for key is allowed now.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window limiter backed by RedisStore counters.
type RedisLimiter struct {
	store  *RedisStore
	limit  int
	window time.Duration
}

// NewRedisLimiter allows limit attempts per key per window
func NewRedisLimiter(store *RedisStore, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{store: store, limit: limit, window: window}
}

// Allow implements RateLimiter
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	exceeded, err := l.store.CheckRateLimit(ctx, key, l.limit, l.window)
	if err != nil {
		return false, err
	}
	return !exceeded, nil
}

// MemoryLimiter is a per-key token bucket refilling limit tokens per window.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewMemoryLimiter allows bursts of limit and refills at limit per window
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit < 1 {
		limit = 1
	}
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
	}
}

// Allow implements RateLimiter
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = time.Now()
	return b.lim.Allow(), nil
}

// PurgeIdle forgets keys not seen for longer than idle.
func (l *MemoryLimiter) PurgeIdle(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}
