// Package ratelimit provides an in-process token bucket limiter keyed by an
// arbitrary string such as a session id or a client origin.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opsportal/portal/internal/core/ports"
)

// Config sets the budget: Limit requests per Window, refilled continuously.
type Config struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiter keeps one token bucket per key. Buckets idle for two cleanup
// intervals are dropped.
type MemoryLimiter struct {
	cfg   Config
	every rate.Limit

	mu       sync.RWMutex
	limiters map[string]*keyLimiter

	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

var _ ports.RateLimiter = (*MemoryLimiter)(nil)

// NewMemory starts the background cleanup; call Stop to end it.
func NewMemory(cfg Config) *MemoryLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	l := &MemoryLimiter{
		cfg:      cfg,
		every:    rate.Limit(float64(cfg.Limit) / cfg.Window.Seconds()),
		limiters: make(map[string]*keyLimiter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *MemoryLimiter) Stop() {
	l.once.Do(func() { close(l.stopCh) })
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) ports.RateDecision {
	now := l.now()
	lim := l.getOrCreate(key, now)

	res := lim.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return ports.RateDecision{Allowed: false, Limit: l.cfg.Limit, ResetAt: now.Add(delay)}
	}
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return ports.RateDecision{Allowed: true, Limit: l.cfg.Limit, Remaining: remaining, ResetAt: now}
}

func (l *MemoryLimiter) getOrCreate(key string, now time.Time) *rate.Limiter {
	l.mu.RLock()
	kl, ok := l.limiters[key]
	l.mu.RUnlock()

	if ok {
		l.mu.Lock()
		kl.lastAccess = now
		l.mu.Unlock()
		return kl.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if kl, ok := l.limiters[key]; ok {
		kl.lastAccess = now
		return kl.limiter
	}
	lim := rate.NewLimiter(l.every, l.cfg.Limit)
	l.limiters[key] = &keyLimiter{limiter: lim, lastAccess: now}
	return lim
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *MemoryLimiter) cleanup() {
	ttl := l.cfg.CleanupInterval * 2
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
}
