// Package ratelimit implements fixed-window request limits keyed by client.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/netaudit/internal/clock"
)

// Limiter manages rate limiting for multiple keys
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	limiters map[string]*bucket
}

// bucket is one key's window
type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter allows limit requests per key in every interval.
func NewLimiter(limit int, interval time.Duration) *Limiter {
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clock.Default,
		limiters: make(map[string]*bucket),
	}
}

// WithClock replaces the clock used to measure windows.
func (l *Limiter) WithClock(c clock.Clock) *Limiter {
	l.clock = c
	return l
}

// Allow checks if a request for the given key is allowed
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN checks if n requests for key are allowed and takes them if so.
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	b, exists := l.limiters[key]
	if !exists {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.limiters[key] = b
	}

	// Reset tokens after interval
	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}

	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Reset clears rate limit for a specific key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// CleanupExpired removes buckets whose window started more than maxAge ago.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, b := range l.limiters {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.limiters, key)
		}
	}
}

// RunCleanup removes expired buckets every interval until ctx is done.
func (l *Limiter) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			l.CleanupExpired(maxAge)
		case <-ctx.Done():
			return
		}
	}
}
