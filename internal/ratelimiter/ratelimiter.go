// Package ratelimiter throttles how fast the listener admits new connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by the accept loop.
//
// A nil *RateLimiter never throttles, which lets callers skip nil checks when
// accept throttling is disabled in configuration.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter that admits perSecond connections on average with
// bursts of up to burst. A perSecond of zero disables throttling and returns nil.
//
// A burst smaller than one is raised to one, otherwise no token could ever be
// taken.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow takes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// Limit returns the sustained rate in tokens per second, or 0 when unlimited.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}

// Burst returns the bucket capacity, or 0 when unlimited.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}
