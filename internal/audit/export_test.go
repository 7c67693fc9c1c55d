package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/types"
)

func TestExport_JSONRoundTrips(t *testing.T) {
	l, _ := newTestLogger(t)
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q1", PatientID: "P1", Timestamp: time.Now()})

	b, err := l.Export(FormatJSON, Filter{PatientID: "P1"})
	require.NoError(t, err)

	var entries []types.AuditEntry
	require.NoError(t, json.Unmarshal(b, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "q1", entries[0].QueryID)
}

func TestExport_CSVHasHeaderAndOneRowPerEntry(t *testing.T) {
	l, _ := newTestLogger(t)
	l.LogQuery(context.Background(), types.AuditEntry{QueryID: "q1", PatientID: "P1", Timestamp: time.Now(), ConfidenceScore: 0.75, Success: true})

	b, err := l.Export(FormatCSV, Filter{})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "q1", rows[1][0])
}

func TestExport_RejectsUnsupportedFormat(t *testing.T) {
	l, _ := newTestLogger(t)
	_, err := l.Export(Format("xml"), Filter{})
	assert.Error(t, err)
}
