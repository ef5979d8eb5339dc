package router

import (
	"sync"
	"time"
)

const (
	messagesPerWindow = 100
	rateWindow        = time.Minute
	staleAfter        = 5 * rateWindow
)

// RateLimiter counts inbound frames per connection in fixed one-minute
// windows.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
	now     func() time.Time
}

type clientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates an empty rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
		now:     time.Now,
	}
}

// Allow records one frame from key and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[key]
	if !exists || now.Sub(limit.windowStart) >= rateWindow {
		rl.clients[key] = &clientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if limit.messageCount >= messagesPerWindow {
		return false
	}
	limit.messageCount++
	return true
}

// Cleanup forgets keys idle for five windows and returns how many were
// removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, limit := range rl.clients {
		if now.Sub(limit.windowStart) > staleAfter {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}
