package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/types"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(path, 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, path
}

func TestLogQuery_AppendsToRingAndFile(t *testing.T) {
	l, _ := newTestLogger(t)
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q1", PatientID: "P1", Timestamp: time.Now(), Success: true})

	history := l.GetQueryHistory("P1", 10)
	require.Len(t, history, 1)
	assert.Equal(t, "q1", history[0].QueryID)
}

func TestLogQuery_EvictsOldestPastCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(path, 3, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	for i := 0; i < 5; i++ {
		l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q" + string(rune('0'+i)), PatientID: "P1", Timestamp: time.Now()})
	}

	all := l.SearchQueries(Filter{}, 0)
	assert.Len(t, all, 3)
	assert.Equal(t, "q4", all[0].QueryID, "newest first")
}

func TestNewLogger_ReplaysExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l1, err := NewLogger(path, 10, nil)
	require.NoError(t, err)
	l1.LogQuery(context.Background(), types.AuditEntry{QueryID: "q1", PatientID: "P1", Timestamp: time.Now()})
	require.NoError(t, l1.Close())

	l2, err := NewLogger(path, 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l2.Close() })

	history := l2.GetQueryHistory("P1", 10)
	require.Len(t, history, 1)
	assert.Equal(t, "q1", history[0].QueryID)
}

func TestSearchQueries_FiltersByPatientAndSuccess(t *testing.T) {
	l, _ := newTestLogger(t)
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q1", PatientID: "P1", Success: true, Timestamp: time.Now()})
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q2", PatientID: "P1", Success: false, Timestamp: time.Now()})
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q3", PatientID: "P2", Success: true, Timestamp: time.Now()})

	failOnly := false
	results := l.SearchQueries(Filter{PatientID: "P1", Success: &failOnly}, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "q2", results[0].QueryID)
}

func TestGetStatistics_AggregatesCountsAndAverages(t *testing.T) {
	l, _ := newTestLogger(t)
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q1", Success: true, ConfidenceScore: 0.8, TotalTimeMs: 100, Timestamp: time.Now()})
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q2", Success: false, ConfidenceScore: 0.4, TotalTimeMs: 200, Timestamp: time.Now()})

	stats := l.GetStatistics()
	assert.Equal(t, 2, stats.TotalQueries)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 0.6, stats.AvgConfidence, 1e-9)
	assert.InDelta(t, 150, stats.AvgTotalTimeMs, 1e-9)
}

func TestGetStatistics_EmptyRingIsAllZero(t *testing.T) {
	l, _ := newTestLogger(t)
	stats := l.GetStatistics()
	assert.Equal(t, Statistics{}, stats)
}
