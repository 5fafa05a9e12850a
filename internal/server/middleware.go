package server

import (
	"sync"
	"time"
)

// RateLimiter implements per-connection rate limiting using a sliding window.
// A limiter built with maxRequests <= 0 allows everything.
type RateLimiter struct {
	maxRequests int                    // Maximum requests allowed per window
	window      time.Duration          // Time window for rate limiting
	requests    map[string][]time.Time // connectionID -> timestamps of recent requests
	mu          sync.Mutex
}

// NewRateLimiter creates a new rate limiter
// maxRequests: number of requests allowed per window
// window: duration of the sliding window (e.g., 1 second for 10 req/sec)
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow checks if a connection is allowed to send a message
// Returns true if allowed, false if rate limited
func (r *RateLimiter) Allow(connectionID string) bool {
	if r.maxRequests <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	timestamps := r.requests[connectionID]

	// Drop timestamps outside the window
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[connectionID] = valid
		return false
	}

	r.requests[connectionID] = append(valid, now)
	return true
}

// RemoveConnection immediately removes rate limit data for a connection
// Should be called when a websocket disconnects
func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connectionID)
}

// ConnectionHealth tracks last activity time for each connection.
// Nothing is evicted on inactivity; the data only feeds the health report.
type ConnectionHealth struct {
	lastActivity map[string]time.Time // connectionID -> last frame time
	mu           sync.RWMutex
}

// NewConnectionHealth creates a new connection health tracker
func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
	}
}

// UpdateActivity records that a connection is active
// Should be called on every frame received
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = time.Now()
}

// LongestIdle returns how long the quietest tracked connection has been
// silent, and its id. Zero when nothing is tracked.
func (h *ConnectionHealth) LongestIdle() (string, time.Duration) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var (
		idleID string
		idle   time.Duration
	)
	now := time.Now()
	for connID, lastActivity := range h.lastActivity {
		if d := now.Sub(lastActivity); d > idle {
			idleID, idle = connID, d
		}
	}
	return idleID, idle
}

// RemoveConnection removes health tracking for a connection
// Should be called when websocket disconnects
func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}
