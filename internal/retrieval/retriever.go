package retrieval

import (
	"context"
	"sort"

	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/embedder"
	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// Result is one retrieved, re-ranked, highlighted chunk returned to the
// Answer pipeline.
type Result struct {
	Chunk       *types.ChunkMetadata
	Score       float64
	HopDistance int
	Highlights  []Highlight
}

// Retriever is the Multi-Hop Retriever module of spec §4.5-4.6: it scopes
// a query to its patient, scores candidates by embedding similarity,
// expands across chunk-level relationship IDs, re-ranks the union, and
// highlights every surviving chunk's matched spans.
type Retriever struct {
	preFilter   *PreFilter
	vectorIndex VectorIndex
	embedder    embedder.Embedder
	maxHops     int
}

// New constructs a Retriever. maxHops caps relationship expansion (spec
// §4.6 allows 0, 1 or 2); values outside that range are clamped.
func New(store chunkstore.Store, vectorIndex VectorIndex, emb embedder.Embedder, maxHops int) *Retriever {
	if maxHops < 0 {
		maxHops = 0
	}
	if maxHops > MaxHopDistance {
		maxHops = MaxHopDistance
	}
	return &Retriever{
		preFilter:   NewPreFilter(store),
		vectorIndex: vectorIndex,
		embedder:    emb,
		maxHops:     maxHops,
	}
}

// Retrieve runs the full pipeline for q and returns at most topK results,
// sorted by final score descending with the same (score, hop_distance,
// chunk_id) tie-break Expand uses.
func (r *Retriever) Retrieve(ctx context.Context, q types.StructuredQuery, topK int) ([]Result, error) {
	pool, err := r.preFilter.Candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, nil
	}

	poolByID := make(map[string]*types.ChunkMetadata, len(pool))
	for _, c := range pool {
		poolByID[c.ChunkID] = c
	}
	vectorScopeIDs := ScopeToIntent(pool, q)
	if len(vectorScopeIDs) == 0 {
		return nil, nil
	}

	queryVectors, err := r.embedder.Embed(ctx, []string{q.OriginalQuery})
	if err != nil {
		return nil, err
	}
	if len(queryVectors) == 0 {
		return nil, xerrors.New(xerrors.KindInternal, "retrieval.Retrieve", "embedder returned no vector for the query")
	}

	hits, err := r.vectorIndex.Search(ctx, queryVectors[0], vectorScopeIDs, SearchCandidates(topK))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	expanded := Expand(hits, poolByID, r.maxHops)

	queryTerms := splitWords(q.OriginalQuery)
	results := make([]Result, 0, len(expanded))
	for _, e := range expanded {
		results = append(results, Result{
			Chunk:       e.Chunk,
			Score:       e.Score,
			HopDistance: e.HopDistance,
			Highlights:  HighlightChunk(e.Chunk, q.Entities, queryTerms),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].HopDistance != results[j].HopDistance {
			return results[i].HopDistance < results[j].HopDistance
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
