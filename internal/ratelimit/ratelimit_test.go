package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 0})
	for i := 0; i < 100; i++ {
		if err := l.Allow("pos-1"); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i, err)
		}
	}
}

func TestLimiter_BurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("pos-1"); err != nil {
			t.Fatalf("request %d within burst rejected: %v", i, err)
		}
	}
	if err := l.Allow("pos-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after burst, got %v", err)
	}
}

func TestLimiter_IndependentCallers(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("pos-1"); err != nil {
		t.Fatalf("first caller rejected: %v", err)
	}
	if err := l.Allow("pos-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected first caller exhausted, got %v", err)
	}
	// A different caller still has a full bucket.
	if err := l.Allow("pos-2"); err != nil {
		t.Fatalf("second caller rejected: %v", err)
	}
}

func TestLimiter_Refill(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 6000, BurstSize: 1}) // 100 tokens/sec

	if err := l.Allow("pos-1"); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}

	// Backdate the bucket instead of sleeping.
	l.mu.Lock()
	l.callers["pos-1"].lastFill = l.callers["pos-1"].lastFill.Add(-100 * time.Millisecond)
	l.mu.Unlock()

	if err := l.Allow("pos-1"); err != nil {
		t.Fatalf("expected refill after elapsed time, got %v", err)
	}
}
