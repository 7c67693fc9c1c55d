package chunkstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/types"
)

func testChunk(id, artifactID, patientID string, occurredAt time.Time) *types.ChunkMetadata {
	return &types.ChunkMetadata{
		ChunkID:      id,
		ArtifactID:   artifactID,
		PatientID:    patientID,
		ArtifactType: types.ArtifactNote,
		ChunkText:    "some clinical text",
		CharOffsets:  types.CharOffsets{Start: 0, End: 19},
		OccurredAt:   occurredAt,
		CreatedAt:    occurredAt,
	}
}

func TestStore_DuplicateChunkIDIsSkipped(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c := testChunk("chunk_1", "A1", "P1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	result, err := s.Store(ctx, []*types.ChunkMetadata{c})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stored)
	assert.Equal(t, 0, result.Skipped)

	result, err = s.Store(ctx, []*types.ChunkMetadata{c})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stored)
	assert.Equal(t, 1, result.Skipped)
}

func TestStore_InvalidOffsetsRecordsError(t *testing.T) {
	s := NewInMemoryStore()
	c := testChunk("chunk_bad", "A1", "P1", time.Now())
	c.CharOffsets = types.CharOffsets{Start: 10, End: 5}

	result, err := s.Store(context.Background(), []*types.ChunkMetadata{c})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stored)
	assert.Contains(t, result.Errors, "chunk_bad")
}

func TestRetrieve_Found(t *testing.T) {
	s := NewInMemoryStore()
	c := testChunk("chunk_1", "A1", "P1", time.Now())
	_, err := s.Store(context.Background(), []*types.ChunkMetadata{c})
	require.NoError(t, err)

	got, ok, err := s.Retrieve(context.Background(), "chunk_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, c, got)
}

func TestRetrieve_NotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, ok, err := s.Retrieve(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuery_FiltersByPatientAndSortsDescending(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	older := testChunk("chunk_old", "A1", "P1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := testChunk("chunk_new", "A1", "P1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	other := testChunk("chunk_other", "A2", "P2", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	_, err := s.Store(ctx, []*types.ChunkMetadata{older, newer, other})
	require.NoError(t, err)

	got, err := s.Query(ctx, Filter{PatientID: "P1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "chunk_new", got[0].ChunkID)
	assert.Equal(t, "chunk_old", got[1].ChunkID)
}

func TestQuery_Pagination(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c := testChunk(
			string(rune('a'+i))+"chunk",
			"A1", "P1",
			time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		)
		_, err := s.Store(ctx, []*types.ChunkMetadata{c})
		require.NoError(t, err)
	}

	got, err := s.Query(ctx, Filter{PatientID: "P1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteByArtifact_RemovesFromAllIndexes(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c := testChunk("chunk_1", "A1", "P1", time.Now())
	_, err := s.Store(ctx, []*types.ChunkMetadata{c})
	require.NoError(t, err)

	n, err := s.DeleteByArtifact(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := s.Retrieve(ctx, "chunk_1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Query(ctx, Filter{PatientID: "P1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGarbageCollect_RemovesOldChunks(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	old := testChunk("chunk_old", "A1", "P1", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	recent := testChunk("chunk_new", "A1", "P1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := s.Store(ctx, []*types.ChunkMetadata{old, recent})
	require.NoError(t, err)

	n, err := s.GarbageCollect(ctx, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := s.Retrieve(ctx, "chunk_old")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Retrieve(ctx, "chunk_new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetStatistics_CountsAndDateRange(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c1 := testChunk("chunk_1", "A1", "P1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c2 := testChunk("chunk_2", "A2", "P1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	c2.ArtifactType = types.ArtifactMedication
	_, err := s.Store(ctx, []*types.ChunkMetadata{c1, c2})
	require.NoError(t, err)

	stats, err := s.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CountsByType[types.ArtifactNote])
	assert.Equal(t, 1, stats.CountsByType[types.ArtifactMedication])
	assert.Equal(t, 1, stats.PatientCount)
	assert.Equal(t, 2, stats.ArtifactCount)
	require.NotNil(t, stats.OldestDate)
	require.NotNil(t, stats.NewestDate)
	assert.True(t, stats.OldestDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, stats.NewestDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestClear_RemovesEverything(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	c := testChunk("chunk_1", "A1", "P1", time.Now())
	_, err := s.Store(ctx, []*types.ChunkMetadata{c})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))

	got, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
