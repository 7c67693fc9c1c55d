package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dangrewal8/patientqa/internal/types"
)

func TestScoreConfidence_EmptyInputsScoreZeroLow(t *testing.T) {
	c := ScoreConfidence(nil, nil)
	assert.Equal(t, 0.0, c.Score)
	assert.Equal(t, types.ConfidenceLow, c.Label)
	assert.NotEmpty(t, c.Reason)
}

func TestScoreConfidence_HighWhenAllComponentsStrong(t *testing.T) {
	extractions := []types.StructuredExtraction{
		{Content: "metformin 500mg", Provenance: &types.ExtractionProvenance{
			ArtifactID: "A1", ChunkID: "chunk_1", CharOffsets: types.CharOffsets{Start: 0, End: 10},
		}},
	}
	c := ScoreConfidence([]float64{0.9, 0.95}, extractions)
	assert.GreaterOrEqual(t, c.Score, highConfidenceThreshold)
	assert.Equal(t, types.ConfidenceHigh, c.Label)
	assert.Empty(t, c.Reason)
}

func TestScoreConfidence_FormulaIsExactWeightedSum(t *testing.T) {
	extractions := []types.StructuredExtraction{
		{Content: "x", Provenance: &types.ExtractionProvenance{ArtifactID: "A1", ChunkID: "c1"}},
	}
	scores := []float64{1.0}
	c := ScoreConfidence(scores, extractions)

	avgRetrieval := 1.0
	extractionQ := 0.5 + 0.3 // has provenance, no char offsets
	supportDens := 1.0 / 1.0
	expected := 0.6*avgRetrieval + 0.3*extractionQ + 0.1*supportDens
	assert.InDelta(t, expected, c.Score, 1e-9)
}

func TestScoreConfidence_LabelsMediumBetweenThresholds(t *testing.T) {
	c := ScoreConfidence([]float64{0.8}, nil) // 0.6*0.8 = 0.48
	if c.Score >= mediumConfidenceThreshold && c.Score < highConfidenceThreshold {
		assert.Equal(t, types.ConfidenceMedium, c.Label)
	}
}

func TestScoreConfidence_ReasonNamesWeakestComponent(t *testing.T) {
	c := ScoreConfidence([]float64{0.9}, nil) // no extractions => extraction_quality=0, support_density=0
	assert.Contains(t, c.Reason, "extraction_quality")
}
