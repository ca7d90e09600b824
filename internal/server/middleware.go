package server

import (
	"fmt"
	"sync"
	"time"
)

const maxUsernameLength = 20

// RateLimiter applies a per-connection sliding window to inbound frames so
// one abusive client cannot starve the rest.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time // token → timestamps of recent frames
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow reports whether the connection may process another frame, recording
// the attempt when it may. Timestamps outside the window are discarded on
// every call, which keeps the per-connection slice bounded.
func (r *RateLimiter) Allow(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)

	recent := r.requests[token][:0]
	for _, ts := range r.requests[token] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= r.maxRequests {
		r.requests[token] = recent
		return false
	}

	r.requests[token] = append(recent, time.Now())
	return true
}

// RemoveConnection drops rate limit state when a connection closes.
func (r *RateLimiter) RemoveConnection(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, token)
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return fmt.Errorf("USERNAME_INVALID: Username cannot be empty")
	}
	if len(username) > maxUsernameLength {
		return fmt.Errorf("USERNAME_INVALID: Username too long (max %d characters)", maxUsernameLength)
	}
	return nil
}
