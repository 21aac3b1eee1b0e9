// Package ratelimit provides per-key token bucket rate limiting for MCP
// tools and HTTP clients.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow checks if a request for the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	b, ok := l.buckets[key]
	if !ok {
		// First request for this key: start with full burst
		b = &bucket{
			tokens:    float64(l.burst),
			lastCheck: now,
		}
		l.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed > 0 {
		b.tokens += l.rate * elapsed
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.lastCheck = now
	}

	// Check if we have at least 1 token
	if b.tokens < 1.0 {
		return false
	}

	b.tokens--
	return true
}

// Tokens returns the tokens currently available to key, refilled to now.
// Unknown keys report a full bucket.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return float64(l.burst)
	}
	elapsed := l.nowFunc().Sub(b.lastCheck).Seconds()
	tokens := b.tokens
	if elapsed > 0 {
		tokens += l.rate * elapsed
	}
	if tokens > float64(l.burst) {
		tokens = float64(l.burst)
	}
	return tokens
}

// Sweep drops buckets that have not been touched for idle and returns how
// many were removed. A dropped bucket comes back full, which is what it
// would have refilled to anyway once idle covers burst/rate.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-idle)
	n := 0
	for key, b := range l.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ErrRateLimited is wrapped by CheckLimit and ClientLimiter errors.
var ErrRateLimited = errors.New("rate limit exceeded")

// ClientLimiter limits requests per client key (an IP address or an
// observer name). A nil ClientLimiter allows everything.
type ClientLimiter struct {
	limiter *Limiter
}

// NewClientLimiter returns a per-client limiter, or nil when rate is not
// positive, which disables limiting.
func NewClientLimiter(rate float64, burst int) *ClientLimiter {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{limiter: NewLimiter(rate, burst)}
}

// Check returns nil if client may proceed.
func (c *ClientLimiter) Check(client string) error {
	if c == nil {
		return nil
	}
	if !c.limiter.Allow(client) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, client)
	}
	return nil
}

// Sweep forgets clients idle for longer than idle.
func (c *ClientLimiter) Sweep(idle time.Duration) int {
	if c == nil {
		return 0
	}
	return c.limiter.Sweep(idle)
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default set of per-tool rate limiters.
// These limits are generous enough for a human observer running trials
// back to back but stop a runaway client from flooding the record store.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"dotmotion_trial":       NewLimiter(2.0, 10),      // 120/minute, burst 10
		"dotmotion_respond":     NewLimiter(2.0, 10),      // 120/minute, burst 10
		"dotmotion_results":     NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"dotmotion_leaderboard": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"dotmotion_export":      NewLimiter(5.0/60.0, 2),  // 5/minute, burst 2
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or an error if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil // No limiter configured = no limit
	}

	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, toolName)
	}

	return nil
}
