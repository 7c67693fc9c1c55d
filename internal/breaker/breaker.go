// Package breaker implements the per-service Circuit Breaker (spec
// §4.14): a CLOSED/OPEN/HALF_OPEN state machine that fails fast once a
// collaborator has shown N consecutive failures, and probes it again
// with a single call after a cooldown.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// State is one of the three breaker states from spec §4.14.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

const (
	// DefaultFailureThreshold is spec §4.14's default consecutive-failure
	// count that trips a breaker open.
	DefaultFailureThreshold = 5
	// DefaultResetTimeout is spec §4.14's default OPEN -> HALF_OPEN
	// cooldown.
	DefaultResetTimeout = 30 * time.Second
)

// openMessage is the exact failure message spec §4.14 requires when a
// call is rejected because the breaker is OPEN.
const openMessage = "Circuit breaker is OPEN"

// Breaker is a single service's circuit breaker. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration

	state               State
	consecutiveFailures int
	circuitOpenedAt     time.Time
	halfOpenInFlight    bool

	totalCalls    int64
	totalFailures int64
}

// New constructs a Breaker in the CLOSED state. A failureThreshold or
// resetTimeout of zero falls back to the spec defaults.
func New(failureThreshold int, resetTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &Breaker{failureThreshold: failureThreshold, resetTimeout: resetTimeout, state: StateClosed}
}

// Execute runs fn through the breaker: CLOSED calls pass straight
// through, OPEN calls fail fast without invoking fn until resetTimeout
// has elapsed since the circuit opened, and HALF_OPEN allows exactly one
// probe call through at a time.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(time.Now()); err != nil {
		return err
	}
	err := fn(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if now.Sub(b.circuitOpenedAt) < b.resetTimeout {
			return xerrors.New(xerrors.KindUnavailable, "breaker.Execute", openMessage)
		}
		b.state = StateHalfOpen
		b.halfOpenInFlight = true
	case StateHalfOpen:
		if b.halfOpenInFlight {
			return xerrors.New(xerrors.KindUnavailable, "breaker.Execute", openMessage)
		}
		b.halfOpenInFlight = true
	}
	b.totalCalls++
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenInFlight = false

	if err != nil {
		b.totalFailures++
		b.consecutiveFailures++
		if b.state == StateHalfOpen || b.consecutiveFailures >= b.failureThreshold {
			b.state = StateOpen
			b.circuitOpenedAt = time.Now()
		}
		return
	}

	b.state = StateClosed
	b.consecutiveFailures = 0
}

// Telemetry is the breaker's current observable state, per spec §4.14's
// "state, counts, rates, time-until-reset... readable at any time".
type Telemetry struct {
	State               State
	ConsecutiveFailures int
	TotalCalls          int64
	TotalFailures        int64
	FailureRate          float64
	CircuitOpenedAt      *time.Time
	TimeUntilReset       time.Duration
}

// Snapshot returns the breaker's current Telemetry as of now.
func (b *Breaker) Snapshot(now time.Time) Telemetry {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := Telemetry{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		TotalCalls:          b.totalCalls,
		TotalFailures:       b.totalFailures,
	}
	if b.totalCalls > 0 {
		t.FailureRate = float64(b.totalFailures) / float64(b.totalCalls)
	}
	if b.state == StateOpen {
		opened := b.circuitOpenedAt
		t.CircuitOpenedAt = &opened
		if remaining := b.resetTimeout - now.Sub(b.circuitOpenedAt); remaining > 0 {
			t.TimeUntilReset = remaining
		}
	}
	return t
}
