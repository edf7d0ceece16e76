package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/opsportal/portal/internal/core/ports"
)

// fixedWindow counts hits in a window that starts with the first hit.
var fixedWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// Limiter enforces a budget shared by every instance of the service.
// Key format: rl:<key>
type Limiter struct {
	client   *redis.Client
	limit    int
	window   time.Duration
	prefix   string
	fallback ports.RateLimiter
	logger   zerolog.Logger
	now      func() time.Time
}

var _ ports.RateLimiter = (*Limiter)(nil)

// NewLimiter wraps client. When Redis is unreachable decisions come from
// fallback, or every request is allowed if fallback is nil.
func NewLimiter(client *redis.Client, limit int, window time.Duration, fallback ports.RateLimiter, logger zerolog.Logger) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   "rl:",
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) ports.RateDecision {
	if l.client == nil {
		return l.degraded(ctx, key)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	res, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) < 2 {
		l.logger.Warn().Err(err).Str("key", key).Msg("rate limiter falling back")
		return l.degraded(ctx, key)
	}

	count, ttlMs := res[0], res[1]
	if ttlMs < 0 {
		ttlMs = l.window.Milliseconds()
	}
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return ports.RateDecision{
		Allowed:   int(count) <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   l.now().Add(time.Duration(ttlMs) * time.Millisecond),
	}
}

func (l *Limiter) degraded(ctx context.Context, key string) ports.RateDecision {
	if l.fallback != nil {
		return l.fallback.Allow(ctx, key)
	}
	return ports.RateDecision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: l.now().Add(l.window)}
}
