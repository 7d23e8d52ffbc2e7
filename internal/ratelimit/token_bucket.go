package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// unlimitedRate stands in for "no limit".
const unlimitedRate = 1_000_000

// TokenBucketLimiter implements RateLimiter using golang.org/x/time/rate.
//
// Burst equals the per-minute limit, so a fresh key may spend its whole
// minute immediately and then refills at limit/60 per second.
type TokenBucketLimiter struct {
	limiter  *rate.Limiter
	rpmLimit int
	mu       sync.RWMutex
}

// NewTokenBucketLimiter creates a limiter allowing rpm requests per minute.
// Zero or negative rpm means unlimited.
func NewTokenBucketLimiter(rpm int) *TokenBucketLimiter {
	rpm = normalizeLimit(rpm)
	return &TokenBucketLimiter{
		limiter:  newLimiter(rpm),
		rpmLimit: rpm,
	}
}

func normalizeLimit(rpm int) int {
	if rpm <= 0 {
		return unlimitedRate
	}
	return rpm
}

func newLimiter(rpm int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
}

// Allow checks if a request is allowed under the current limit.
func (l *TokenBucketLimiter) Allow(_ context.Context) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Allow()
}

// SetLimit replaces the limiter; the new bucket starts full.
func (l *TokenBucketLimiter) SetLimit(rpm int) {
	rpm = normalizeLimit(rpm)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = newLimiter(rpm)
	l.rpmLimit = rpm
}

// GetUsage approximates usage from the tokens left in the bucket.
func (l *TokenBucketLimiter) GetUsage() Usage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	remaining := clampUsage(int(l.limiter.Tokens()), l.rpmLimit)
	return Usage{
		RequestsUsed:      l.rpmLimit - remaining,
		RequestsLimit:     l.rpmLimit,
		RequestsRemaining: remaining,
	}
}

func clampUsage(remaining, limit int) int {
	if remaining < 0 {
		return 0
	}
	if remaining > limit {
		return limit
	}
	return remaining
}
