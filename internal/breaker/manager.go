package breaker

import (
	"context"
	"sync"
	"time"
)

// Manager indexes a Breaker per service name, constructing one lazily on
// first use with the Manager's configured defaults, per spec §4.14.
type Manager struct {
	mu               sync.Mutex
	failureThreshold int
	resetTimeout     time.Duration
	breakers         map[string]*Breaker
}

// NewManager constructs a Manager whose breakers all share
// failureThreshold/resetTimeout (zero values fall back to the spec
// defaults, see New).
func NewManager(failureThreshold int, resetTimeout time.Duration) *Manager {
	return &Manager{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		breakers:         map[string]*Breaker{},
	}
}

func (m *Manager) breakerFor(service string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[service]
	if !ok {
		b = New(m.failureThreshold, m.resetTimeout)
		m.breakers[service] = b
	}
	return b
}

// Execute runs fn through service's breaker.
func (m *Manager) Execute(ctx context.Context, service string, fn func(context.Context) error) error {
	return m.breakerFor(service).Execute(ctx, fn)
}

// Telemetry returns service's current breaker telemetry as of now.
func (m *Manager) Telemetry(service string, now time.Time) Telemetry {
	return m.breakerFor(service).Snapshot(now)
}
