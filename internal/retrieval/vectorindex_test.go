package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryVectorIndex_SearchRanksByCosineSimilarity(t *testing.T) {
	idx := NewInMemoryVectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "chunk_a", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "chunk_b", []float32{0, 1}))
	require.NoError(t, idx.Upsert(ctx, "chunk_c", []float32{0.9, 0.1}))

	hits, err := idx.Search(ctx, []float32{1, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "chunk_a", hits[0].ChunkID)
	assert.Equal(t, "chunk_c", hits[1].ChunkID)
	assert.Equal(t, "chunk_b", hits[2].ChunkID)
}

func TestInMemoryVectorIndex_SearchRestrictsToCandidateIDs(t *testing.T) {
	idx := NewInMemoryVectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "chunk_a", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "chunk_b", []float32{1, 0}))

	hits, err := idx.Search(ctx, []float32{1, 0}, []string{"chunk_b"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk_b", hits[0].ChunkID)
}

func TestInMemoryVectorIndex_SearchRespectsLimit(t *testing.T) {
	idx := NewInMemoryVectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "chunk_a", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "chunk_b", []float32{0.9, 0.1}))
	require.NoError(t, idx.Upsert(ctx, "chunk_c", []float32{0.8, 0.2}))

	hits, err := idx.Search(ctx, []float32{1, 0}, nil, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestInMemoryVectorIndex_DeleteRemovesVector(t *testing.T) {
	idx := NewInMemoryVectorIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "chunk_a", []float32{1, 0}))

	require.NoError(t, idx.Delete(ctx, "chunk_a"))

	hits, err := idx.Search(ctx, []float32{1, 0}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestInMemoryVectorIndex_TiesBreakByChunkIDAscending(t *testing.T) {
	idx := NewInMemoryVectorIndex()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "chunk_z", []float32{1, 0}))
	require.NoError(t, idx.Upsert(ctx, "chunk_a", []float32{1, 0}))

	hits, err := idx.Search(ctx, []float32{1, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "chunk_a", hits[0].ChunkID)
	assert.Equal(t, "chunk_z", hits[1].ChunkID)
}

func TestSearchCandidates_FloorsAtThirty(t *testing.T) {
	assert.Equal(t, 30, SearchCandidates(1))
	assert.Equal(t, 30, SearchCandidates(5))
	assert.Equal(t, 60, SearchCandidates(20))
}
