package websocket

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket to each connection's inbound events.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewRateLimiter allows perSecond events per connection with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether connectionID may send another event now.
func (rl *RateLimiter) Allow(connectionID string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters[connectionID]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[connectionID] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// Forget drops the bucket for a closed connection.
func (rl *RateLimiter) Forget(connectionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, connectionID)
}

// Len returns the number of tracked connections.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
