// Package ratelimit implements a token bucket limiter for outbound calls.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the limiter.
type Config struct {
	// RequestsPerSecond is the maximum sustained rate.
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests in a burst.
	BurstSize int

	// WaitTimeout is the maximum time Wait blocks for a token.
	WaitTimeout time.Duration

	Clock clockwork.Clock
}

// DefaultConfig returns defaults sized for chat-platform role endpoints.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		BurstSize:         10,
		WaitTimeout:       10 * time.Second,
	}
}

// ErrWaitTimeout is returned when no token becomes available within WaitTimeout.
var ErrWaitTimeout = errors.New("ratelimit: timeout waiting for token")

// ══════════════════════════════════════════════════════════════════════════════
// LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// Limiter is a token bucket. The bucket starts full.
type Limiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	clock       clockwork.Clock
}

// New creates a limiter. Non-positive values fall back to DefaultConfig.
func New(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = def.BurstSize
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = def.WaitTimeout
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &Limiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		tokens:      float64(config.BurstSize),
		lastRefill:  config.Clock.Now(),
		waitTimeout: config.WaitTimeout,
		clock:       config.Clock,
	}
}

// Wait blocks until a token is available, ctx is done or WaitTimeout passes.
func (l *Limiter) Wait(ctx context.Context) error {
	deadline := l.clock.Now().Add(l.waitTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		if l.clock.Now().Add(wait).After(deadline) {
			return ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// TryAllow takes a token if one is available, without blocking.
func (l *Limiter) TryAllow() bool {
	_, ok := l.tryAcquire()
	return ok
}

// Available returns the current number of whole tokens.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return int(l.tokens)
}

// tryAcquire returns how long to wait when no token is available.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens < 1 {
		needed := 1 - l.tokens
		return time.Duration(needed / l.refillRate * float64(time.Second)), false
	}
	l.tokens--
	return 0, true
}

// refill must be called with mu held.
func (l *Limiter) refill() {
	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}
