package ports

import (
	"context"
	"time"
)

// RateDecision is the outcome of one RateLimiter.Allow call.
type RateDecision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed windows. Implemented by the
// Redis store and, for single-process deployments, the memory cache.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateDecision, error)
}
