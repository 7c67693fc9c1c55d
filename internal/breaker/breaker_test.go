package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/xerrors"
)

var errBoom = errors.New("boom")

func failingCall(ctx context.Context) error { return errBoom }
func okCall(ctx context.Context) error      { return nil }

func TestBreaker_ClosedStateAllowsCallsThrough(t *testing.T) {
	b := New(5, 30*time.Second)
	err := b.Execute(context.Background(), okCall)
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, b.Snapshot(time.Now()).State)
}

func TestBreaker_TripsOpenAfterConsecutiveFailureThreshold(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failingCall)
	}
	assert.Equal(t, StateOpen, b.Snapshot(time.Now()).State)
}

func TestBreaker_SixthCallFailsFastWithoutInvokingFn(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failingCall)
	}

	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, invoked)
	assert.Equal(t, xerrors.KindUnavailable, xerrors.KindOf(err))
	assert.Contains(t, err.Error(), openMessage)
}

func TestBreaker_TransitionsToHalfOpenAfterResetTimeout(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failingCall)
	}

	openedAt := time.Now()
	// simulate the passage of resetTimeout by calling beforeCall directly
	// with a synthetic "now" far enough past circuitOpenedAt
	err := b.beforeCall(openedAt.Add(31 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.Snapshot(time.Now()).State)
}

func TestBreaker_HalfOpenSuccessClosesAndResetsCounters(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failingCall)
	}

	require.NoError(t, b.beforeCall(time.Now().Add(31*time.Second)))
	b.afterCall(nil)

	snap := b.Snapshot(time.Now())
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
}

func TestBreaker_HalfOpenFailureReopensCircuit(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failingCall)
	}

	require.NoError(t, b.beforeCall(time.Now().Add(31*time.Second)))
	b.afterCall(errBoom)

	assert.Equal(t, StateOpen, b.Snapshot(time.Now()).State)
}

func TestBreaker_HalfOpenOnlyAllowsOneInFlightCall(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failingCall)
	}
	now := time.Now().Add(31 * time.Second)

	require.NoError(t, b.beforeCall(now))
	err := b.beforeCall(now)
	assert.Error(t, err)
}

func TestBreaker_SnapshotReportsTimeUntilReset(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), failingCall)
	}

	snap := b.Snapshot(time.Now())
	require.NotNil(t, snap.CircuitOpenedAt)
	assert.Greater(t, snap.TimeUntilReset, time.Duration(0))
	assert.LessOrEqual(t, snap.TimeUntilReset, 30*time.Second)
}
