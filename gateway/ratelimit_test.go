package gateway

import (
	"testing"
	"time"
)

func newTestLimiter(limit int, window time.Duration, at *time.Time) *FixedWindowLimiter {
	l := NewFixedWindowLimiter(limit, window)
	l.now = func() time.Time { return *at }
	return l
}

func TestFixedWindowLimiterRejectsOverLimit(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(3, time.Minute, &at)
	key := LimiterKey("user-1", "10.0.0.1")

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(key); !ok {
			t.Fatalf("request %d was rejected, want allowed", i+1)
		}
	}

	ok, retryAfter := l.Allow(key)
	if ok {
		t.Fatal("request over the limit was allowed")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}
}

func TestFixedWindowLimiterResetsAfterWindow(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, time.Minute, &at)
	key := LimiterKey("user-1", "10.0.0.1")

	if ok, _ := l.Allow(key); !ok {
		t.Fatal("first request rejected")
	}
	if ok, _ := l.Allow(key); ok {
		t.Fatal("second request in the same window allowed")
	}

	at = at.Add(time.Minute + time.Second)
	if ok, _ := l.Allow(key); !ok {
		t.Fatal("request after window rollover rejected")
	}
}

func TestFixedWindowLimiterKeysAreIndependent(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(1, time.Minute, &at)

	if ok, _ := l.Allow(LimiterKey("user-1", "10.0.0.1")); !ok {
		t.Fatal("first caller rejected")
	}
	if ok, _ := l.Allow(LimiterKey("user-2", "10.0.0.1")); !ok {
		t.Fatal("second caller sharing the address was rejected")
	}
	if ok, _ := l.Allow(LimiterKey("user-1", "10.0.0.2")); !ok {
		t.Fatal("same user from a new address was rejected")
	}
}
