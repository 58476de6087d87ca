// Package ratelimit keeps one token bucket per bucket name and user.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	BucketAskQuestion = "askQuestion"
	BucketAddContext  = "addContext"
)

// Observer is told about every rejected call.
type Observer interface {
	ObserveRateLimited(bucket string)
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter is a pool of per-key limiters. Allow never blocks.
//
// A bucket untouched for longer than it takes to refill from empty is
// indistinguishable from a new one, so such buckets are swept out and the
// pool only holds keys seen recently.
type Limiter struct {
	perMinute float64
	burst     int
	idle      time.Duration
	observer  Observer
	now       func() time.Time

	mu        sync.Mutex
	m         map[string]*bucket
	lastSweep time.Time
}

func New(perMinute float64, burst int, observer Observer) *Limiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &Limiter{
		perMinute: perMinute,
		burst:     burst,
		idle:      time.Duration(float64(burst) * float64(time.Minute) / perMinute),
		observer:  observer,
		now:       time.Now,
		m:         make(map[string]*bucket),
	}
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	b, ok := l.m[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.perMinute/60), l.burst)}
		l.m[key] = b
	}
	b.seen = now
	return b.lim
}

// sweep drops buckets idle for at least l.idle. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.m {
		if now.Sub(b.seen) >= l.idle {
			delete(l.m, key)
		}
	}
	l.lastSweep = now
}

// Len reports how many buckets are held.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// Allow consumes one token from bucket:userID.
func (l *Limiter) Allow(bucket, userID string) bool {
	now := l.now()
	if l.get(bucket+":"+userID, now).AllowN(now, 1) {
		return true
	}
	if l.observer != nil {
		l.observer.ObserveRateLimited(bucket)
	}
	return false
}
