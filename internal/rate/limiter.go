// Package rate keeps one token bucket per client key.
package rate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an untouched bucket is kept before it is dropped.
const idleTTL = 10 * time.Minute

// Limiter is a per-key token bucket limiter with fixed rps and burst.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
	now     func() time.Time
	swept   time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter creates a limiter with rps tokens per second and the given burst.
// It returns nil when rps is zero or negative, which disables limiting.
func NewLimiter(rps, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < rps {
		burst = rps
	}
	return &Limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key if available. A nil Limiter allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	l.evictIdle(now)
	l.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// evictIdle drops buckets idle for longer than idleTTL. Callers hold l.mu.
func (l *Limiter) evictIdle(now time.Time) {
	if now.Sub(l.swept) < idleTTL {
		return
	}
	l.swept = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) > idleTTL {
			delete(l.buckets, k)
		}
	}
}
