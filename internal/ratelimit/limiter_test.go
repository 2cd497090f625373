package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, capacity int, refill float64) (*SubmissionLimiter, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	l := NewSubmissionLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), capacity, refill)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestSubmissionLimiterBurst(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, 2, 1)

	d, err := l.Allow(ctx, "u1")
	if err != nil || !d.Allowed || d.Remaining != 1 {
		t.Fatalf("first submission: %+v %v", d, err)
	}
	if d, _ = l.Allow(ctx, "u1"); !d.Allowed {
		t.Fatalf("second submission should be allowed")
	}
	d, _ = l.Allow(ctx, "u1")
	if d.Allowed {
		t.Fatalf("third submission should be rejected")
	}
	if d.RetryAfter != time.Second {
		t.Fatalf("RetryAfter = %s", d.RetryAfter)
	}

	if d, _ = l.Allow(ctx, "u2"); !d.Allowed {
		t.Fatalf("buckets must be per user")
	}
}

func TestSubmissionLimiterRefill(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLimiter(t, 1, 0.5)

	if d, _ := l.Allow(ctx, "u1"); !d.Allowed {
		t.Fatal("first submission should be allowed")
	}
	if d, _ := l.Allow(ctx, "u1"); d.Allowed {
		t.Fatal("bucket should be empty")
	}
	*clock = clock.Add(2 * time.Second)
	if d, _ := l.Allow(ctx, "u1"); !d.Allowed {
		t.Fatal("token should be refilled after two seconds")
	}
}
