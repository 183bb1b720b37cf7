package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles requests per key (client IP or email). Idle entries are
// dropped after the expiry window so the map does not grow without bound.
type Limiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	limit    rate.Limit
	burst    int
	lifetime time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLimiter(perMinute, burst int) *Limiter {
	return &Limiter{
		entries:  make(map[string]*entry),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		lifetime: 10 * time.Minute,
	}
}

// Allow reports whether the request for key may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	// Opportunistic sweep of idle entries.
	if len(l.entries) > 1024 {
		for k, v := range l.entries {
			if now.Sub(v.lastSeen) > l.lifetime {
				delete(l.entries, k)
			}
		}
	}

	return e.limiter.Allow()
}
