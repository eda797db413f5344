package http

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter per key.
type rateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	started  time.Time
	counters map[string]int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string]int),
	}
}

func (r *rateLimiter) allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.started) >= r.window {
		r.started = now
		clear(r.counters)
	}
	r.counters[key]++
	return r.counters[key] <= r.limit
}
