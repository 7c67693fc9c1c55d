package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dangrewal8/patientqa/internal/breaker"
	"github.com/dangrewal8/patientqa/internal/cache"
	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/concurrency"
	"github.com/dangrewal8/patientqa/internal/emr"
	"github.com/dangrewal8/patientqa/internal/enrichment"
	"github.com/dangrewal8/patientqa/internal/entity"
	"github.com/dangrewal8/patientqa/internal/normalize"
	"github.com/dangrewal8/patientqa/internal/relationship"
	"github.com/dangrewal8/patientqa/internal/retrieval"
)

type fakeFetcher struct {
	medications []emr.RawRecord
	conditions  []emr.RawRecord
}

func (f fakeFetcher) FetchMedications(context.Context, string) ([]emr.RawRecord, error) { return f.medications, nil }
func (f fakeFetcher) FetchConditions(context.Context, string) ([]emr.RawRecord, error)  { return f.conditions, nil }
func (f fakeFetcher) FetchCarePlans(context.Context, string) ([]emr.RawRecord, error)   { return nil, nil }
func (f fakeFetcher) FetchNotes(context.Context, string) ([]emr.RawRecord, error)       { return nil, nil }
func (f fakeFetcher) FetchAllergies(context.Context, string) ([]emr.RawRecord, error)   { return nil, nil }
func (f fakeFetcher) FetchLabObservations(context.Context, string) ([]emr.RawRecord, error) {
	return nil, nil
}
func (f fakeFetcher) FetchVitals(context.Context, string) ([]emr.RawRecord, error)       { return nil, nil }
func (f fakeFetcher) FetchAppointments(context.Context, string) ([]emr.RawRecord, error) { return nil, nil }

type fakeEmbedder struct{ dims int }

func (e fakeEmbedder) Dimensions() int { return e.dims }
func (e fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dims)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}

func TestIngest_NormalizesEnrichesChunksAndIndexesEveryArtifact(t *testing.T) {
	extractor, err := entity.New()
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }

	fetcher := fakeFetcher{
		medications: []emr.RawRecord{
			{"id": "med-1", "name": "Metformin", "dosage": "500mg", "frequency": "BID", "indication": "Type 2 Diabetes", "start_date": "2025-01-01T00:00:00Z"},
		},
		conditions: []emr.RawRecord{
			{"id": "cond-1", "name": "Type 2 Diabetes", "status": "active", "diagnosed_at": "2024-12-01T00:00:00Z"},
		},
	}

	pipeline := NewIngestPipeline(
		fetcher,
		normalize.New(nowFn),
		relationship.New(nowFn),
		enrichment.New(extractor, nowFn),
		chunkstore.NewChunker(1000, 150, extractor),
		enrichment.NewInMemoryStore(),
		chunkstore.NewInMemoryStore(),
		fakeEmbedder{dims: 4},
		retrieval.NewInMemoryVectorIndex(),
		cache.NewEmbeddingCache(),
		breaker.NewManager(5, time.Second),
		mustPool(t),
	)

	result, err := pipeline.Ingest(context.Background(), "P1", now)
	require.NoError(t, err)
	require.Equal(t, 2, result.ArtifactsIngested)
	require.Greater(t, result.ChunksStored, 0)
	require.Greater(t, result.RelationshipsFound, 0)
}

func mustPool(t *testing.T) concurrency.Pool {
	t.Helper()
	p, err := concurrency.NewBoundedPool(4)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}
