package router

import (
	"sync"
	"time"
)

// Rate limiter defaults
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Minute
)

// RateLimiter implements per-connection rate limiting
// ARCHITECTURAL DISCOVERY: Per-connection state tracking with periodic cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*ClientLimit
	limit   int
	window  time.Duration
	now     func() time.Time
}

// ClientLimit tracks rate limiting for a single connection
// FUNCTIONAL DISCOVERY: Fixed window resets once per window
type ClientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates a limiter allowing limit events per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateLimiter{
		clients: make(map[string]*ClientLimit),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow checks if a connection can send another event
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[connID]
	if !exists {
		rl.clients[connID] = &ClientLimit{
			messageCount: 1,
			windowStart:  now,
		}
		return true
	}

	if now.Sub(limit.windowStart) >= rl.window {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Remove forgets a connection's window, called on disconnect
func (rl *RateLimiter) Remove(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connID)
}

// Cleanup removes entries idle for more than five windows and returns how many went
func (rl *RateLimiter) Cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.clients, connID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked connections
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
