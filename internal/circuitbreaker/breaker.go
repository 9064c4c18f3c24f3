// Package circuitbreaker isolates the predictive scorer behind a
// closed → open → half-open state machine so a failing predictor cannot
// block trading.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: calls flow through to the predictor
	StateOpen                  // Tripped: predictor calls are skipped entirely
	StateHalfOpen              // Probing: exactly one call allowed to test recovery
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Defaults per the engine's operating parameters.
const (
	DefaultFailureThreshold = 5
	DefaultOpenDuration     = 300 * time.Second
)

var cbStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riskcore",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by from-state and to-state.",
}, []string{"from_state", "to_state"})

func init() {
	prometheus.MustRegister(cbStateTransitions)
}

// Status is a read-only view of the breaker, exposed administratively.
type Status struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastFailureTime     time.Time `json:"lastFailureTime"`
}

// Breaker guards the single predictive-scorer dependency. It trips open
// after threshold consecutive failures, skips calls while open, and after
// openDuration admits exactly one half-open probe; concurrent callers
// during the probe window are treated as if the circuit were open.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	lastFailure  time.Time
	threshold    int
	openDuration time.Duration
	onTransition func(from, to State) // optional callback for logging
}

// New creates a breaker that opens after threshold consecutive failures
// and stays open for openDuration before probing.
func New(threshold int, openDuration time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if openDuration <= 0 {
		openDuration = DefaultOpenDuration
	}
	return &Breaker{
		threshold:    threshold,
		openDuration: openDuration,
	}
}

// OnTransition sets a callback invoked on state changes.
func (b *Breaker) OnTransition(fn func(from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow reports whether a predictor call should be made. While open, once
// openDuration has elapsed since the last failure, the calling request is
// admitted as the single half-open probe; admission is serialized under
// the breaker mutex so the probe cannot race.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailure) >= b.openDuration {
			b.transition(StateHalfOpen)
			return true // this caller is the probe
		}
		return false
	case StateHalfOpen:
		return false // a probe is already in flight
	default:
		return true
	}
}

// RecordSuccess records a successful predictor call. Resets the failure
// count and closes the circuit if a half-open probe succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
}

// RecordFailure records a failed predictor call. A half-open probe failure
// reopens the circuit with a fresh timeout window; threshold consecutive
// failures while closed trip it open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == StateHalfOpen {
		b.transition(StateOpen)
		return
	}
	if b.state == StateClosed && b.failures >= b.threshold {
		b.transition(StateOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CurrentStatus returns an administrative view of the breaker.
func (b *Breaker) CurrentStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		LastFailureTime:     b.lastFailure,
	}
}

// Reset forces the breaker closed and clears counters. Administrative use.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	b.failures = 0
	b.lastFailure = time.Time{}
}

// SetParams adjusts the failure threshold and open duration at runtime.
// Non-positive values keep the current setting.
func (b *Breaker) SetParams(threshold int, openDuration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if threshold > 0 {
		b.threshold = threshold
	}
	if openDuration > 0 {
		b.openDuration = openDuration
	}
}

// transition changes state and fires the callback if set.
// Caller must hold b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	cbStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	if b.onTransition != nil {
		fn := b.onTransition
		go fn(from, to)
	}
}
