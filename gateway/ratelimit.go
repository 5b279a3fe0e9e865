package gateway

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter gates requests per caller. The in-process implementation below
// is correct for a single-process deployment only; a multi-instance
// deployment needs an implementation backed by a shared counter store.
type RateLimiter interface {
	// Allow reports whether the keyed caller may proceed, and if not, how
	// long until the window resets.
	Allow(key string) (ok bool, retryAfter time.Duration)
}

// FixedWindowLimiter counts requests in fixed windows keyed by
// identity+address. Buckets are reclaimed lazily as their windows roll over.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	limit  int
	window time.Duration
	now    func() time.Time
}

type bucket struct {
	count         int
	windowResetAt time.Time
}

func NewFixedWindowLimiter(limit int, window time.Duration) *FixedWindowLimiter {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindowLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *FixedWindowLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.windowResetAt) {
		l.buckets[key] = &bucket{count: 1, windowResetAt: now.Add(l.window)}
		l.sweepLocked(now)
		return true, 0
	}

	if b.count >= l.limit {
		return false, b.windowResetAt.Sub(now)
	}
	b.count++
	return true, 0
}

// sweepLocked drops expired buckets so the map does not grow without bound.
func (l *FixedWindowLimiter) sweepLocked(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for key, b := range l.buckets {
		if !now.Before(b.windowResetAt) {
			delete(l.buckets, key)
		}
	}
}

// LimiterKey builds the bucket key from user identity and network address.
func LimiterKey(userID, clientAddr string) string {
	return fmt.Sprintf("%s|%s", userID, clientAddr)
}
