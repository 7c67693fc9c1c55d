package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/retrieval"
	"github.com/dangrewal8/patientqa/internal/types"
)

func TestBuildExtractions_ResolvesProvenanceAgainstTheLiveChunkStore(t *testing.T) {
	store := chunkstore.NewInMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	chunk := &types.ChunkMetadata{
		ChunkID:      types.DeriveChunkID("A1", types.CharOffsets{Start: 0, End: 10}),
		ArtifactID:   "A1",
		PatientID:    "P1",
		ArtifactType: types.ArtifactMedication,
		ChunkText:    "Metformin.",
		CharOffsets:  types.CharOffsets{Start: 0, End: 10},
		OccurredAt:   now,
		CreatedAt:    now,
	}
	_, err := store.Store(context.Background(), []*types.ChunkMetadata{chunk})
	require.NoError(t, err)

	p := &QueryPipeline{chunkStore: store}
	results := []retrieval.Result{{Chunk: chunk, Score: 0.8}}

	extractions, provenance, err := p.buildExtractions(context.Background(), results, now)
	require.NoError(t, err)
	require.Len(t, extractions, 1)
	require.Len(t, provenance, 1)
	assert.Equal(t, chunk.ChunkID, extractions[0].Provenance.ChunkID)
	assert.Equal(t, "A1", provenance[0].ArtifactID)
}

func TestBuildExtractions_FailsWhenChunkNoLongerResolves(t *testing.T) {
	store := chunkstore.NewInMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ghost := &types.ChunkMetadata{
		ChunkID:     "deleted-chunk",
		ArtifactID:  "A1",
		PatientID:   "P1",
		ChunkText:   "gone",
		CharOffsets: types.CharOffsets{Start: 0, End: 4},
	}

	p := &QueryPipeline{chunkStore: store}
	_, _, err := p.buildExtractions(context.Background(), []retrieval.Result{{Chunk: ghost, Score: 0.5}}, now)
	require.Error(t, err)
}
