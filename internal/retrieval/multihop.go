package retrieval

import (
	"sort"

	"github.com/dangrewal8/patientqa/internal/types"
)

// MaxHopDistance bounds multi-hop expansion per spec §4.6: maxHops is
// caller-selectable in {0,1,2}; 2 is the hard ceiling.
const MaxHopDistance = 2

// hopDecay is the base-score decay applied at each relationship hop,
// before the final re-rank formula runs.
const hopDecay = 0.8

// relationshipBoost is the fixed bonus spec §4.6 adds to any chunk reached
// by at least one hop.
const relationshipBoost = 0.3

// HopResult is one chunk after multi-hop expansion and re-ranking, ready
// for the Answer pipeline to cite.
type HopResult struct {
	Chunk            *types.ChunkMetadata
	Score            float64
	HopDistance      int
	RelationshipPath []string
	Highlights       []Highlight
}

type visitedChunk struct {
	score            float64
	hopDistance      int
	relationshipPath []string
}

// Expand walks the relationship_ids a seed chunk carries out to maxHops,
// pulling in any other chunk in pool that shares one of those IDs and
// hasn't been visited yet, then re-ranks the union of seeds and
// hop-reached chunks with spec §4.6's formula. pool is the patient- (and
// optionally temporally-) scoped candidate set from PreFilter.Candidates —
// deliberately unnarrowed by artifact type, so a hop can cross from e.g.
// a medication chunk into the condition chunk it indicates.
func Expand(seeds []ScoredID, pool map[string]*types.ChunkMetadata, maxHops int) []HopResult {
	if maxHops > MaxHopDistance {
		maxHops = MaxHopDistance
	}

	visited := map[string]*visitedChunk{}
	var frontier []string
	for _, s := range seeds {
		if _, ok := pool[s.ChunkID]; !ok {
			continue
		}
		visited[s.ChunkID] = &visitedChunk{score: s.Score, hopDistance: 0}
		frontier = append(frontier, s.ChunkID)
	}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, parentID := range frontier {
			parent := visited[parentID]
			decayed := parent.score * hopDecay
			for _, candidateID := range sharedRelationshipChunkIDs(pool, pool[parentID]) {
				if _, seen := visited[candidateID]; seen {
					continue
				}
				path := append(append([]string{}, parent.relationshipPath...), sharedIDs(pool[parentID], pool[candidateID])...)
				visited[candidateID] = &visitedChunk{score: decayed, hopDistance: hop, relationshipPath: path}
				next = append(next, candidateID)
			}
		}
		frontier = next
	}

	out := make([]HopResult, 0, len(visited))
	for chunkID, v := range visited {
		c := pool[chunkID]
		final := rerank(v.score, v.hopDistance, enrichmentScore(c))
		out = append(out, HopResult{
			Chunk:            c,
			Score:            final,
			HopDistance:      v.hopDistance,
			RelationshipPath: v.relationshipPath,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].HopDistance != out[j].HopDistance {
			return out[i].HopDistance < out[j].HopDistance
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})
	return out
}

// rerank implements spec §4.6's formula verbatim:
//
//	final = clamp01(score - 0.1*hop_distance + 0.2*enrichment_score + (hop_distance>0 ? relationshipBoost : 0))
func rerank(score float64, hopDistance int, enrichmentScore float64) float64 {
	final := score - 0.1*float64(hopDistance) + 0.2*enrichmentScore
	if hopDistance > 0 {
		final += relationshipBoost
	}
	return clamp01(final)
}

// enrichmentScore implements spec §4.6's per-chunk enrichment term:
// 0.4·has(enriched_text) + 0.3·has(extracted_entities) + min(0.3, 0.05·|relationship_ids|).
func enrichmentScore(c *types.ChunkMetadata) float64 {
	score := 0.0
	if c.EnrichedText != nil && *c.EnrichedText != "" {
		score += 0.4
	}
	if len(c.ExtractedEntities) > 0 {
		score += 0.3
	}
	relCount := 0
	if c.RelationshipIDs != nil {
		relCount = c.RelationshipIDs.Size()
	}
	bonus := 0.05 * float64(relCount)
	if bonus > 0.3 {
		bonus = 0.3
	}
	return score + bonus
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sharedRelationshipChunkIDs returns every other chunk in pool that
// carries at least one relationship_id in common with c.
func sharedRelationshipChunkIDs(pool map[string]*types.ChunkMetadata, c *types.ChunkMetadata) []string {
	if c == nil || c.RelationshipIDs == nil || c.RelationshipIDs.IsEmpty() {
		return nil
	}
	var ids []string
	for otherID, other := range pool {
		if otherID == c.ChunkID || other.RelationshipIDs == nil {
			continue
		}
		if hasSharedID(c, other) {
			ids = append(ids, otherID)
		}
	}
	sort.Strings(ids) // deterministic traversal order within a hop
	return ids
}

func hasSharedID(a, b *types.ChunkMetadata) bool {
	for id := range a.RelationshipIDs.Iter() {
		if b.RelationshipIDs.Contains(id) {
			return true
		}
	}
	return false
}

func sharedIDs(a, b *types.ChunkMetadata) []string {
	var shared []string
	for id := range a.RelationshipIDs.Iter() {
		if b.RelationshipIDs.Contains(id) {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)
	return shared
}
