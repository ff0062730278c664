package rest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process fallback for deployments without Redis. One
// token bucket per identity; idle buckets are evicted so the map does not
// grow with every visitor seen.
type LocalLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*localBucket
	limit    rate.Limit
	burst    int
	lastSweep time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const localSweepInterval = 10 * time.Minute

func NewLocalLimiter(requestsPerMinute int) *LocalLimiter {
	return &LocalLimiter{
		buckets:  make(map[string]*localBucket),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    requestsPerMinute,
		lastSweep: time.Now(),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > localSweepInterval {
		for key, b := range l.buckets {
			if now.Sub(b.lastSeen) > localSweepInterval {
				delete(l.buckets, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[identity]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[identity] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}
