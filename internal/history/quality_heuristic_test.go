package history

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dangrewal8/patientqa/internal/types"
)

func TestDefaultQualityHeuristic_FullyGroundedAnswerScoresHigh(t *testing.T) {
	confidence := types.Confidence{
		Score: 0.9,
		Components: types.ConfidenceComponents{
			AvgRetrievalScore: 0.9,
			ExtractionQuality: 0.9,
			SupportDensity:    0.9,
		},
	}
	extractions := []types.StructuredExtraction{
		{Type: "medication", Content: "metformin", Provenance: &types.ExtractionProvenance{ChunkID: "c1"}},
		{Type: "condition", Content: "type 2 diabetes", Provenance: &types.ExtractionProvenance{ChunkID: "c2"}},
	}

	q := DefaultQualityHeuristic(confidence, extractions)
	assert.Equal(t, 1.0, q.GroundingScore)
	assert.Equal(t, 0.9, q.ConsistencyScore)
	assert.Equal(t, 0.9, q.ConfidenceScore)
	assert.InDelta(t, 0.94, q.OverallQualityScore, 1e-9) // 0.4*1.0 + 0.3*0.9 + 0.3*0.9
	assert.Less(t, q.HallucinationRisk, 0.2)
}

func TestDefaultQualityHeuristic_UngroundedExtractionsRaiseHallucinationRisk(t *testing.T) {
	confidence := types.Confidence{Score: 0.5, Components: types.ConfidenceComponents{SupportDensity: 0.3}}
	extractions := []types.StructuredExtraction{
		{Type: "medication", Content: "metformin", Provenance: nil},
		{Type: "condition", Content: "type 2 diabetes", Provenance: &types.ExtractionProvenance{ChunkID: "c2"}},
	}

	q := DefaultQualityHeuristic(confidence, extractions)
	assert.InDelta(t, 0.5, q.GroundingScore, 1e-9)
	assert.Greater(t, q.HallucinationRisk, 0.8)
}

func TestDefaultQualityHeuristic_NoExtractionsDefaultsGroundingToOne(t *testing.T) {
	confidence := types.Confidence{Score: 0.2, Components: types.ConfidenceComponents{SupportDensity: 0.1}}
	q := DefaultQualityHeuristic(confidence, nil)
	assert.Equal(t, 1.0, q.GroundingScore)
}
