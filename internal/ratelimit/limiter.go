// Package ratelimit recognises upstream rate-limit signals and provides a
// client-side per-key request limiter.
//
// Upstream vendors report throttling in different ways (HTTP 429, vendor
// error codes such as 1302/1305, localized messages). IsRateLimited is the
// single place that decides whether an error means "rotate to another key".
//
// Basic usage:
//
//	limiter := ratelimit.NewTokenBucketLimiter(50) // 50 RPM
//	if !limiter.Allow(ctx) {
//		return ratelimit.ErrRateLimitExceeded
//	}
package ratelimit

import (
	"context"
	"errors"
)

// ErrRateLimitExceeded is returned when a client-side limit is exceeded.
// IsRateLimited treats it as a rate-limit signal.
var ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")

// Usage represents the current usage and limit of a limiter.
type Usage struct {
	// RequestsUsed is the number of requests consumed in the current window.
	RequestsUsed int `json:"requests_used"`

	// RequestsLimit is the maximum number of requests allowed per minute.
	RequestsLimit int `json:"requests_limit"`

	// RequestsRemaining is the number of requests remaining in the current window.
	RequestsRemaining int `json:"requests_remaining"`
}

// RateLimiter defines the interface for client-side request limiting.
// All implementations must be safe for concurrent use.
type RateLimiter interface {
	// Allow reports whether a request may proceed now. Never blocks.
	Allow(ctx context.Context) bool

	// SetLimit updates the requests-per-minute limit (0 = unlimited).
	SetLimit(rpm int)

	// GetUsage returns the current usage statistics.
	GetUsage() Usage
}
