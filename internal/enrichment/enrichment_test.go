package enrichment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/entity"
	"github.com/dangrewal8/patientqa/internal/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestEnricher(t *testing.T) *Enricher {
	t.Helper()
	ext, err := entity.New()
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return New(ext, fixedClock(now))
}

func TestEnrich_Medication(t *testing.T) {
	e := newTestEnricher(t)
	prescribed := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	med := &types.Artifact{
		ID: "M1", PatientID: "P1", Type: types.ArtifactMedication,
		Text: "Metformin 500mg", OccurredAt: prescribed,
		Medication: &types.MedicationFields{
			Name: "Metformin", Dosage: "500mg", Frequency: "BID", Route: "oral",
			Indication: "Type 2 Diabetes", IndicationCode: "E11",
			Prescriber: "Dr. Smith", PrescribedAt: &prescribed,
		},
	}
	cond := &types.Artifact{
		ID: "C1", PatientID: "P1", Type: types.ArtifactCondition,
		Condition: &types.ConditionFields{Name: "Type 2 Diabetes", Status: "active"},
	}
	rel := &types.ClinicalRelationship{
		RelationshipID: "r1", RelationshipType: types.RelMedicationIndication,
		SourceArtifactID: "M1", TargetArtifactID: "C1", TargetEntityText: "Type 2 Diabetes",
		ExtractionMethod: types.MethodExplicitAPI, ConfidenceScore: 1.0,
	}

	enriched := e.Enrich(med, Context{
		Relationships: []*types.ClinicalRelationship{rel},
		ArtifactsByID: map[string]*types.Artifact{"C1": cond},
	})

	assert.Equal(t, "M1", enriched.ArtifactID)
	assert.Contains(t, enriched.EnrichedText, "Medication: Metformin 500mg BID (oral).")
	assert.Contains(t, enriched.EnrichedText, "Indication: Type 2 Diabetes (E11).")
	assert.Contains(t, enriched.EnrichedText, "Related Conditions: Type 2 Diabetes (active).")
	assert.Contains(t, enriched.EnrichedText, "Prescribed by: Dr. Smith.")
	assert.True(t, enriched.RelatedArtifactIDs.Contains("C1"))
	assert.Equal(t, 1.0, enriched.CompletenessScore)
	assert.Equal(t, 0.5, enriched.ContextDepthScore)
}

func TestEnrich_Idempotent(t *testing.T) {
	e := newTestEnricher(t)
	med := &types.Artifact{
		ID: "M2", PatientID: "P1", Type: types.ArtifactMedication,
		Text: "Lisinopril", OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Medication: &types.MedicationFields{Name: "Lisinopril"},
	}

	first := e.Enrich(med, Context{ArtifactsByID: map[string]*types.Artifact{}})
	second := e.Enrich(med, Context{ArtifactsByID: map[string]*types.Artifact{}})

	assert.Equal(t, first.EnrichedText, second.EnrichedText)
	assert.Equal(t, first.CompletenessScore, second.CompletenessScore)
	assert.Equal(t, first.ContextDepthScore, second.ContextDepthScore)
}

func TestContextDepthScore(t *testing.T) {
	assert.Equal(t, 0.0, contextDepthScore(0))
	assert.Equal(t, 0.5, contextDepthScore(1))
	assert.Equal(t, 0.7, contextDepthScore(2))
	assert.Equal(t, 0.9, contextDepthScore(3))
	assert.Equal(t, 0.9, contextDepthScore(4))
	assert.Equal(t, 1.0, contextDepthScore(5))
}

func TestMedicationCompleteness_Partial(t *testing.T) {
	m := &types.MedicationFields{Dosage: "10mg", Frequency: "QD"}
	score := medicationCompleteness(m)
	assert.InDelta(t, 0.4, score, 0.001)
}

func TestEnrich_CarePlan(t *testing.T) {
	e := newTestEnricher(t)
	cp := &types.Artifact{
		ID: "CP1", PatientID: "P1", Type: types.ArtifactCarePlan,
		Text: "plan", OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CarePlan: &types.CarePlanFields{
			Title: "Diabetes Management", Goals: []string{"Lower A1C"}, Interventions: []string{"Diet change"},
		},
	}

	enriched := e.Enrich(cp, Context{ArtifactsByID: map[string]*types.Artifact{}})
	assert.True(t, strings.Contains(enriched.EnrichedText, "1. Lower A1C"))
	assert.True(t, strings.Contains(enriched.EnrichedText, "1. Diet change"))
}
