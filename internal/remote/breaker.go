package remote

import (
	"sync"
	"time"
)

// breakerState represents the state of the upstream circuit breaker
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// String returns the string representation of breakerState
func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker trips after a run of consecutive upstream failures and fails fast
// until a cooldown elapses, then lets a single probe through (half-open).
// A successful probe closes it; a failed probe re-opens it.
type Breaker struct {
	threshold   int
	cooldown    time.Duration
	state       breakerState
	failures    int
	lastFailure time.Time
	mu          sync.Mutex
}

// NewBreaker creates a closed breaker with the given failure threshold and cooldown
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     breakerClosed,
	}
}

// Allow reports whether a request may proceed, moving an open breaker to
// half-open once the cooldown has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerOpen {
		if time.Since(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = breakerHalfOpen
		b.failures = 0
	}
	return true
}

// Success records a successful request, closing a half-open breaker
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == breakerHalfOpen {
		b.state = breakerClosed
	}
}

// Failure records a failed request, opening the breaker at the threshold
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.threshold || b.state == breakerHalfOpen {
		b.state = breakerOpen
	}
}

// State returns the current state name for logging
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
