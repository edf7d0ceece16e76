package ports

import (
	"context"
	"time"
)

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter enforces a fixed request budget per key and rolling window.
// Implementations may be in-process or shared across instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string) RateDecision
}
