// Package server throttles inbound frames per connection with a token
// bucket. A client that floods the relay has its surplus frames discarded
// before they reach the dispatch pipeline.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket sized by the configured burst and refilled
// continuously at burst-per-interval.
type rateLimiter struct {
	mu         sync.Mutex
	available  float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	perSecond := float64(burst) / interval.Seconds()
	if perSecond <= 0 {
		perSecond = float64(burst)
	}

	return &rateLimiter{
		available:  float64(burst),
		capacity:   float64(burst),
		perSecond:  perSecond,
		lastRefill: time.Now(),
	}
}

// allow consumes one token if the bucket has one, refilling for the time
// elapsed since the last call first. Returns false when the frame should be
// discarded.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.available += elapsed * rl.perSecond
		if rl.available > rl.capacity {
			rl.available = rl.capacity
		}
	}
	rl.lastRefill = now

	if rl.available < 1 {
		return false
	}
	rl.available--
	return true
}
