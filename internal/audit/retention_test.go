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

func TestRunRetention_DeletesEntriesPastRetentionDays(t *testing.T) {
	l, _ := newTestLogger(t)
	now := time.Now()
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "old", PatientID: "P1", Timestamp: now.Add(-100 * 24 * time.Hour)})
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "recent", PatientID: "P1", Timestamp: now})

	deleted, anonymized := l.RunRetention(RetentionPolicy{RetentionDays: 90, AnonymizeAfterDays: 30}, now)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 0, anonymized)

	remaining := l.SearchQueries(Filter{}, 0)
	require.Len(t, remaining, 1)
	assert.Equal(t, "recent", remaining[0].QueryID)
}

func TestRunRetention_AnonymizesEntriesPastAnonymizeDays(t *testing.T) {
	l, _ := newTestLogger(t)
	now := time.Now()
	userID := "U1"
	l.LogQuery(context.Background(), types.AuditEntry{
		QueryID: "q1", PatientID: "P1", UserID: &userID,
		QueryText: "what medications", ResponseSummary: "metformin",
		Timestamp: now.Add(-45 * 24 * time.Hour),
	})

	deleted, anonymized := l.RunRetention(RetentionPolicy{RetentionDays: 90, AnonymizeAfterDays: 30}, now)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 1, anonymized)

	remaining := l.SearchQueries(Filter{}, 0)
	require.Len(t, remaining, 1)
	assert.NotEqual(t, "q1", remaining[0].QueryID)
	assert.NotEqual(t, "P1", remaining[0].PatientID)
	assert.Equal(t, redacted, remaining[0].QueryText)
	assert.Equal(t, redacted, remaining[0].ResponseSummary)
	require.NotNil(t, remaining[0].UserID)
	assert.NotEqual(t, "U1", *remaining[0].UserID)
}

func TestRunRetention_LeavesFreshEntriesUntouched(t *testing.T) {
	l, _ := newTestLogger(t)
	now := time.Now()
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q1", PatientID: "P1", Timestamp: now})

	deleted, anonymized := l.RunRetention(RetentionPolicy{RetentionDays: 90, AnonymizeAfterDays: 30}, now)
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 0, anonymized)

	remaining := l.SearchQueries(Filter{}, 0)
	require.Len(t, remaining, 1)
	assert.Equal(t, "q1", remaining[0].QueryID)
}

func TestNewScheduler_RejectsInvalidCronSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewLogger(path, 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	_, err = NewScheduler(l, RetentionPolicy{RetentionDays: 90, AnonymizeAfterDays: 30}, "not a cron spec")
	assert.Error(t, err)
}
