package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dangrewal8/patientqa/internal/types"
)

func TestHighlightChunk_EntityTakesPrecedenceOverExact(t *testing.T) {
	c := testChunk("chunk_1", "A1", "P1", types.ArtifactMedication,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c.ChunkText = "patient takes metformin twice daily"

	highlights := HighlightChunk(c, []types.QueryEntity{{Text: "metformin", Type: "medication"}}, []string{"metformin"})

	assert.Len(t, highlights, 1)
	assert.Equal(t, HighlightEntity, highlights[0].Kind)
}

func TestHighlightChunk_ExactMatchFindsAllOccurrences(t *testing.T) {
	c := testChunk("chunk_1", "A1", "P1", types.ArtifactMedication,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c.ChunkText = "metformin helps. metformin is well tolerated."

	highlights := HighlightChunk(c, nil, []string{"metformin"})

	assert.Len(t, highlights, 2)
	for _, h := range highlights {
		assert.Equal(t, HighlightExact, h.Kind)
	}
}

func TestHighlightChunk_FuzzyMatchesNearMisspelling(t *testing.T) {
	c := testChunk("chunk_1", "A1", "P1", types.ArtifactMedication,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c.ChunkText = "patient reports metphormin intolerance"

	highlights := HighlightChunk(c, nil, []string{"metformin"})

	assert.Len(t, highlights, 1)
	assert.Equal(t, HighlightFuzzy, highlights[0].Kind)
}

func TestHighlightChunk_NoMatchReturnsEmpty(t *testing.T) {
	c := testChunk("chunk_1", "A1", "P1", types.ArtifactMedication,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c.ChunkText = "patient reports no new symptoms"

	highlights := HighlightChunk(c, nil, []string{"metformin"})

	assert.Empty(t, highlights)
}

func TestSimilarity_IdenticalStringsScoreOne(t *testing.T) {
	assert.Equal(t, 1.0, similarity("metformin", "metformin"))
}

func TestSimilarity_BothEmptyScoresOne(t *testing.T) {
	assert.Equal(t, 1.0, similarity("", ""))
}

func TestDedupeHighlights_DropsOverlappingLowerPrecedenceSpan(t *testing.T) {
	in := []Highlight{
		{Start: 0, End: 9, Kind: HighlightFuzzy, Term: "metformin"},
		{Start: 0, End: 9, Kind: HighlightEntity, Term: "metformin"},
	}
	out := dedupeHighlights(in)
	assert.Len(t, out, 1)
	assert.Equal(t, HighlightEntity, out[0].Kind)
}
