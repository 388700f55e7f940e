package ratelimit

import (
	"sync"
	"time"
)

// maxBuckets bounds memory when many distinct clients hit the limiter.
const maxBuckets = 10000

type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
	burst  float64
	perSec float64
}

func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Allow returns true if the request is allowed, false if rate limited.
func (l *Limiter) Allow(key string, rps float64, burst int, now time.Time) bool {
	if key == "" {
		return true
	}
	if rps <= 0 || burst <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			l.prune(now)
		}
		b = &bucket{
			tokens: float64(burst),
			last:   now,
			burst:  float64(burst),
			perSec: rps,
		}
		l.buckets[key] = b
	}

	if b.perSec != rps || b.burst != float64(burst) {
		b.perSec = rps
		b.burst = float64(burst)
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens += elapsed * b.perSec
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}

	b.tokens -= 1
	return true
}

// Len reports how many clients are currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// prune drops buckets that would have refilled completely by now; they
// behave exactly like a fresh bucket. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	for key, b := range l.buckets {
		full := b.tokens + now.Sub(b.last).Seconds()*b.perSec
		if full >= b.burst {
			delete(l.buckets, key)
		}
	}
}
