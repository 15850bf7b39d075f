package api

import (
	"sync"
	"time"
)

// RateLimiter caps inactivity reports per student to keep a misbehaving
// client from flooding the activity log.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
	limit   int
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per minute per key.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = 100
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
		limit:   limit,
	}
}

// Allow reports whether the keyed client may proceed within the current
// minute window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	cl, exists := rl.clients[key]
	if !exists {
		rl.clients[key] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if now.Sub(cl.windowStart) >= time.Minute {
		cl.count = 1
		cl.windowStart = now
		return true
	}

	if cl.count >= rl.limit {
		return false
	}

	cl.count++
	return true
}

// Cleanup removes entries idle for over five minutes. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, cl := range rl.clients {
		if now.Sub(cl.windowStart) > 5*time.Minute {
			delete(rl.clients, key)
		}
	}
}
