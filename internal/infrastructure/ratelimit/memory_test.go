package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_BudgetPerKey(t *testing.T) {
	l := NewMemory(Config{Limit: 3, Window: time.Minute})
	defer l.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if d := l.Allow(context.Background(), "realtime:session:a"); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	d := l.Allow(context.Background(), "realtime:session:a")
	if d.Allowed {
		t.Fatalf("fourth request within the window must be denied")
	}
	if wait := d.ResetAt.Sub(now); wait <= 0 || wait > 21*time.Second {
		t.Fatalf("expected a retry time of about one refill interval, got %v", wait)
	}

	if d := l.Allow(context.Background(), "realtime:session:b"); !d.Allowed {
		t.Fatalf("keys must not share a budget")
	}

	now = now.Add(21 * time.Second)
	if d := l.Allow(context.Background(), "realtime:session:a"); !d.Allowed {
		t.Fatalf("a token should be refilled after a third of the window")
	}
}

func TestMemoryLimiter_DeniedRequestsDoNotConsume(t *testing.T) {
	l := NewMemory(Config{Limit: 1, Window: time.Second})
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "k")
	for i := 0; i < 5; i++ {
		l.Allow(context.Background(), "k")
	}
	now = now.Add(time.Second)
	if d := l.Allow(context.Background(), "k"); !d.Allowed {
		t.Fatalf("denied requests must not push the refill further out")
	}
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	l := NewMemory(Config{Limit: 1, Window: time.Second, CleanupInterval: time.Minute})
	defer l.Stop()
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow(context.Background(), "old")
	now = now.Add(3 * time.Minute)
	l.Allow(context.Background(), "fresh")
	l.cleanup()

	if l.Len() != 1 {
		t.Fatalf("expected only the fresh key to survive, got %d", l.Len())
	}
}
