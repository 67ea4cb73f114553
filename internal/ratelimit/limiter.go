// Package ratelimit limits request rates per client of the MCP HTTP endpoint.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the rate limiting configuration.
type Config struct {
	RPS             float64       // Requests per second per client
	Burst           int           // Burst size per client
	CleanupInterval time.Duration // How often idle limiters are dropped
}

// DefaultConfig provides defaults for a single-user notebook server.
var DefaultConfig = Config{
	RPS:             10,
	Burst:           20,
	CleanupInterval: time.Hour,
}

// rateLimiterEntry holds a rate limiter and tracks its last usage.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	limiters map[string]*rateLimiterEntry
	mu       sync.Mutex
	config   Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter creates a rate limiter and starts its cleanup goroutine.
// Call Stop when done.
func NewRateLimiter(config Config) *RateLimiter {
	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	rl := &RateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from key is within its rate.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// GetLimiter returns the limiter for key, creating one if necessary.
// RPS <= 0 disables limiting.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[key]; ok {
		entry.lastUsed = time.Now()
		return entry.limiter
	}

	limit := rate.Limit(rl.config.RPS)
	if rl.config.RPS <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, rl.config.Burst)
	rl.limiters[key] = &rateLimiterEntry{
		limiter:  limiter,
		lastUsed: time.Now(),
	}
	return limiter
}

// Cleanup removes limiters idle for longer than the cleanup interval.
func (rl *RateLimiter) Cleanup() {
	rl.cleanupBefore(time.Now().Add(-rl.config.CleanupInterval))
}

func (rl *RateLimiter) cleanupBefore(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish. Safe to call
// more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	rl.wg.Wait()
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
