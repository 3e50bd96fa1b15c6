package llm

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState is the breaker's position.
type CircuitState int

const (
	// CircuitClosed counts failures and lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen admits a single probe to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig tunes when the breaker trips and when it re-probes.
type CircuitBreakerConfig struct {
	// Threshold is how many consecutive failures open the circuit.
	Threshold int
	// ResetAfter is the cooldown before a probe call is admitted.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after five consecutive failures and
// probes again after thirty seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker guards calls to the model provider. Consecutive failures
// open it; an open breaker rejects calls until ResetAfter has passed, then
// admits one probe whose outcome closes or reopens the circuit.
type CircuitBreaker struct {
	mu          sync.RWMutex
	state       CircuitState
	failures    int
	threshold   int
	resetAfter  time.Duration
	lastFailure time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		state:      CircuitClosed,
		threshold:  cfg.Threshold,
		resetAfter: cfg.ResetAfter,
	}
}

// Allow reports whether a call may proceed. A non-nil error means the call
// must be skipped and carries the reason. An open circuit whose cooldown has
// elapsed flips to half-open and admits the caller as the probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		remaining := cb.resetAfter - time.Since(cb.lastFailure)
		if remaining > 0 {
			return fmt.Errorf("circuit open after %d consecutive failures, next probe in %s",
				cb.failures, remaining.Round(time.Second))
		}
		cb.state = CircuitHalfOpen
		return nil
	case CircuitHalfOpen:
		// One probe at a time; extra callers wait for its verdict.
		return fmt.Errorf("circuit half-open, probe already in flight")
	default:
		return nil
	}
}

// RecordSuccess closes the circuit and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure. A failed probe reopens the circuit
// immediately; a closed circuit opens once the streak reaches the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the breaker's current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// ConsecutiveFailures returns the current failure streak.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}
