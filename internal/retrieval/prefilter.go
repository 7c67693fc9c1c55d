package retrieval

import (
	"context"

	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/types"
)

// PreFilter narrows the Chunk Store's by_patient/by_date indexes down to
// the candidate set later stages are allowed to search, per spec §4.5:
// retrieval never scores chunks outside the patient's own record or
// outside the query's declared temporal scope.
type PreFilter struct {
	store chunkstore.Store
}

// NewPreFilter constructs a PreFilter over the given Chunk Store.
func NewPreFilter(store chunkstore.Store) *PreFilter {
	return &PreFilter{store: store}
}

// Candidates resolves a StructuredQuery into the chunks eligible for this
// query: always scoped to PatientID, further narrowed by TemporalFilter.
// Intentionally NOT narrowed by an intent-derived artifact type here —
// the Multi-Hop Retriever's relationship expansion (spec §4.6) needs the
// patient's full cross-artifact-type scope to walk into, e.g., a
// medication chunk's related condition chunk. ScopeToIntent narrows the
// vector-search subset of this same pool.
func (f *PreFilter) Candidates(ctx context.Context, q types.StructuredQuery) ([]*types.ChunkMetadata, error) {
	filter := chunkstore.Filter{PatientID: q.PatientID}
	if q.TemporalFilter != nil {
		filter.DateFrom = q.TemporalFilter.From
		filter.DateTo = q.TemporalFilter.To
	}
	return f.store.Query(ctx, filter)
}

// ScopeToIntent narrows pool to the chunk_ids belonging to the artifact
// type q.Intent implies (medications/conditions/care plans/labs each map
// onto one type); GENERAL and RETRIEVE_HISTORY search the whole pool.
func ScopeToIntent(pool []*types.ChunkMetadata, q types.StructuredQuery) []string {
	t, narrow := intentArtifactType(q.Intent)
	ids := make([]string, 0, len(pool))
	for _, c := range pool {
		if narrow && c.ArtifactType != t {
			continue
		}
		ids = append(ids, c.ChunkID)
	}
	return ids
}

// intentArtifactType maps a query Intent onto the ArtifactType it narrows
// retrieval to, when the intent is specific enough to imply one. GENERAL
// and RETRIEVE_HISTORY intents search across all artifact types.
func intentArtifactType(intent types.Intent) (types.ArtifactType, bool) {
	switch intent {
	case types.IntentRetrieveMedications:
		return types.ArtifactMedication, true
	case types.IntentRetrieveConditions:
		return types.ArtifactCondition, true
	case types.IntentRetrieveCarePlans:
		return types.ArtifactCarePlan, true
	case types.IntentRetrieveLabs:
		return types.ArtifactLabObservation, true
	default:
		return "", false
	}
}
