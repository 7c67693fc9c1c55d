package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNormalize_MedicationAliasVariants(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := New(fixedClock(now))

	rec := emrRawRecord{
		"id":              "med-1",
		"medication_name": "Metformin",
		"dose":            "500mg",
		"start_date":      "2024-10-01T00:00:00Z",
		"content": map[string]any{
			"text": "Patient started on metformin for diabetes.",
		},
	}

	a, err := n.Normalize("patient-1", types.ArtifactMedication, rec)
	require.NoError(t, err)
	assert.Equal(t, "med-1", a.ID)
	assert.Equal(t, "Patient started on metformin for diabetes.", a.Text)
	require.NotNil(t, a.Medication)
	assert.Equal(t, "Metformin", a.Medication.Name)
	assert.Equal(t, "500mg", a.Medication.Dosage)
	require.NotNil(t, a.Medication.PrescribedAt)
	assert.Equal(t, 2024, a.Medication.PrescribedAt.Year())
}

func TestNormalize_EpochTimestamp(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := New(fixedClock(now))

	rec := emrRawRecord{
		"id":         "cond-1",
		"name":       "Type 2 Diabetes",
		"date":       int64(1727740800), // 2024-10-01 UTC seconds
		"text":       "Diagnosed with type 2 diabetes.",
	}

	a, err := n.Normalize("patient-1", types.ArtifactCondition, rec)
	require.NoError(t, err)
	assert.Equal(t, 2024, a.OccurredAt.Year())
}

func TestNormalize_MissingTextFallsBackToFieldSummary(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := New(fixedClock(now))

	rec := emrRawRecord{
		"id":   "med-2",
		"name": "Lisinopril",
		"date": now.Format(time.RFC3339),
	}

	a, err := n.Normalize("patient-1", types.ArtifactMedication, rec)
	require.NoError(t, err)
	assert.Equal(t, "Medication: Lisinopril", a.Text)
}

func TestNormalize_UnknownArtifactType(t *testing.T) {
	n := New(nil)
	_, err := n.Normalize("patient-1", types.ArtifactType("unknown"), emrRawRecord{})
	assert.Error(t, err)
}

func TestNormalize_FutureOccurredAtRejected(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := New(fixedClock(now))

	rec := emrRawRecord{
		"id":   "note-1",
		"text": "a future note",
		"date": now.Add(48 * time.Hour).Format(time.RFC3339),
	}

	_, err := n.Normalize("patient-1", types.ArtifactNote, rec)
	assert.Error(t, err)
}
