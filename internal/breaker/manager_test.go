package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_TracksBreakersIndependentlyPerService(t *testing.T) {
	m := NewManager(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = m.Execute(context.Background(), "generator", failingCall)
	}

	assert.Equal(t, StateOpen, m.Telemetry("generator", time.Now()).State)
	assert.Equal(t, StateClosed, m.Telemetry("embedder", time.Now()).State)
}

func TestManager_ExecuteFailsFastOnceServiceBreakerIsOpen(t *testing.T) {
	m := NewManager(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = m.Execute(context.Background(), "generator", failingCall)
	}

	err := m.Execute(context.Background(), "generator", okCall)
	require.Error(t, err)
}
