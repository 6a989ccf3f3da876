package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wudi/portway/internal/config"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker guards a single upstream target. All state transitions are
// serialized under the breaker's own mutex; critical sections are O(1).
// A disabled breaker is a permanently-closed no-op.
type Breaker struct {
	mu               sync.Mutex
	enabled          bool
	state            State
	failureCount     int
	successCount     int
	halfOpenInflight int
	failureThreshold int
	successThreshold int
	halfOpenRequests int
	timeout          time.Duration
	openedAt         time.Time

	// Totals for the admin surface (atomic for lock-free reads)
	totalRequests atomic.Int64
	totalFailures atomic.Int64
	totalRejected atomic.Int64
}

// NewBreaker creates a circuit breaker from config
func NewBreaker(cfg config.CircuitBreakerConfig) *Breaker {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = 5
	}

	successThreshold := cfg.SuccessThreshold
	if successThreshold <= 0 {
		successThreshold = 2
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	halfOpenRequests := cfg.HalfOpenRequests
	if halfOpenRequests <= 0 {
		halfOpenRequests = 1
	}

	return &Breaker{
		enabled:          cfg.IsEnabled(),
		state:            StateClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		halfOpenRequests: halfOpenRequests,
		timeout:          timeout,
	}
}

// Allow reports whether a request may pass through the breaker.
// In Open state the first call after the timeout transitions to HalfOpen
// and is admitted as a probe; HalfOpen admits up to halfOpenRequests
// concurrent probes.
func (b *Breaker) Allow() bool {
	if !b.enabled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests.Add(1)

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(b.openedAt) >= b.timeout {
			b.state = StateHalfOpen
			b.halfOpenInflight = 1 // this request is the first probe
			b.successCount = 0
			b.failureCount = 0
			return true
		}
		b.totalRejected.Add(1)
		return false

	case StateHalfOpen:
		if b.halfOpenInflight < b.halfOpenRequests {
			b.halfOpenInflight++
			return true
		}
		b.totalRejected.Add(1)
		return false
	}

	return false
}

// RecordSuccess records a successful request outcome.
func (b *Breaker) RecordSuccess() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0

	case StateHalfOpen:
		if b.halfOpenInflight > 0 {
			b.halfOpenInflight--
		}
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.halfOpenInflight = 0
		}
	}
}

// RecordFailure records a failed request outcome.
func (b *Breaker) RecordFailure() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures.Add(1)

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}

	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
		b.halfOpenInflight = 0
		b.successCount = 0
		b.failureCount = 0
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	if !b.enabled {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a point-in-time view of the breaker state
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		Enabled:          b.enabled,
		State:            b.state.String(),
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		FailureThreshold: b.failureThreshold,
		SuccessThreshold: b.successThreshold,
		TotalRequests:    b.totalRequests.Load(),
		TotalFailures:    b.totalFailures.Load(),
		TotalRejected:    b.totalRejected.Load(),
	}
}

// BreakerSnapshot is a point-in-time view of a circuit breaker
type BreakerSnapshot struct {
	Enabled          bool   `json:"enabled"`
	State            string `json:"state"`
	FailureCount     int    `json:"failure_count"`
	SuccessCount     int    `json:"success_count"`
	FailureThreshold int    `json:"failure_threshold"`
	SuccessThreshold int    `json:"success_threshold"`
	TotalRequests    int64  `json:"total_requests"`
	TotalFailures    int64  `json:"total_failures"`
	TotalRejected    int64  `json:"total_rejected"`
}
