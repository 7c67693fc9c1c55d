// Package retrieval implements the Multi-Hop Retriever (spec §4.5/§4.6):
// metadata pre-filtering, vector similarity search restricted to the
// pre-filter set, fuzzy/exact/entity highlighting, and relationship-driven
// multi-hop expansion with the re-rank formula spec §4.6 gives verbatim.
package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// VectorIndex is the nearest-neighbor search collaborator. It indexes
// vectors keyed by chunk_id and restricts search to an explicit candidate
// set, mirroring how the teacher's qdrant.VectorStore restricts retrieval
// with a metadata filter before scoring.
type VectorIndex interface {
	Upsert(ctx context.Context, chunkID string, vector []float32) error
	Delete(ctx context.Context, chunkID string) error
	// Search returns the nearest neighbors of query among candidateIDs,
	// ranked by cosine similarity descending, at most limit results.
	// A nil candidateIDs searches the whole index.
	Search(ctx context.Context, query []float32, candidateIDs []string, limit int) ([]ScoredID, error)
}

// ScoredID is one nearest-neighbor hit.
type ScoredID struct {
	ChunkID string
	Score   float64
}

// InMemoryVectorIndex is a brute-force cosine-similarity index, grounded on
// the same "no external dependency for the in-process path" approach as
// chunkstore.InMemoryStore. Adequate for a single patient's chunk volume;
// QdrantVectorIndex is the production-scale variant.
type InMemoryVectorIndex struct {
	vectors map[string][]float32
}

// NewInMemoryVectorIndex constructs an empty InMemoryVectorIndex.
func NewInMemoryVectorIndex() *InMemoryVectorIndex {
	return &InMemoryVectorIndex{vectors: map[string][]float32{}}
}

var _ VectorIndex = (*InMemoryVectorIndex)(nil)

func (idx *InMemoryVectorIndex) Upsert(_ context.Context, chunkID string, vector []float32) error {
	idx.vectors[chunkID] = vector
	return nil
}

func (idx *InMemoryVectorIndex) Delete(_ context.Context, chunkID string) error {
	delete(idx.vectors, chunkID)
	return nil
}

func (idx *InMemoryVectorIndex) Search(_ context.Context, query []float32, candidateIDs []string, limit int) ([]ScoredID, error) {
	ids := candidateIDs
	if ids == nil {
		ids = make([]string, 0, len(idx.vectors))
		for id := range idx.vectors {
			ids = append(ids, id)
		}
	}

	scored := make([]ScoredID, 0, len(ids))
	for _, id := range ids {
		vec, ok := idx.vectors[id]
		if !ok {
			continue
		}
		scored = append(scored, ScoredID{ChunkID: id, Score: cosineSimilarity(query, vec)})
	}

	// Deterministic tie-break: score desc, then chunk_id asc, per spec
	// §4.6's ordering invariant.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChunkID < scored[j].ChunkID
	})

	if limit > 0 && limit < len(scored) {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SearchCandidates computes the over-fetch size the Retriever asks the
// VectorIndex for before pre-filtering by relationship/hop expansion
// narrows it back down to topK, per spec §4.5: N = max(topK*3, 30).
func SearchCandidates(topK int) int {
	n := topK * 3
	if n < 30 {
		n = 30
	}
	return n
}

// errUnavailable wraps a VectorIndex backend failure uniformly, for
// implementations (e.g. QdrantVectorIndex) that talk to a remote service.
func errUnavailable(op string, cause error) error {
	return xerrors.Wrap(xerrors.KindUnavailable, op, "vector index unavailable", cause)
}
