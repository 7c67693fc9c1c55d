package chunkstore

import (
	"time"

	"github.com/dangrewal8/patientqa/internal/entity"
	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/pkg/sets"
)

// Chunker splits an artifact's text into bounded, overlapping windows and
// fills in every field the Chunk Store indexes on, per spec §4.4's L2
// responsibility ("split artifact text into bounded chunks"). Grounded on
// the teacher's document/transformers/splitter.Splitter: a split function
// over the whole text that yields one document per chunk, generalized here
// from a separator-delimited split to a bounded-length-plus-overlap window
// because the spec's CHUNK_MAX_CHARS/CHUNK_OVERLAP_CHARS knobs have no
// natural separator to split on.
type Chunker struct {
	maxChars     int
	overlapChars int
	extractor    *entity.Extractor
}

// NewChunker constructs a Chunker. maxChars/overlapChars come from
// config.Config's ChunkMaxChars/ChunkOverlapChars (spec §6.4 defaults
// 1000/150); extractor supplies each chunk's denormalized Entities.
func NewChunker(maxChars, overlapChars int, extractor *entity.Extractor) *Chunker {
	if maxChars <= 0 {
		maxChars = 1000
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		overlapChars = 0
	}
	return &Chunker{maxChars: maxChars, overlapChars: overlapChars, extractor: extractor}
}

// Split produces the ordered chunks for one artifact, each starting up to
// overlapChars before the previous chunk's end so consecutive char_offsets
// overlap, optionally carrying an
// enriched text produced by the Artifact Enricher. enrichedText may be
// empty when the artifact hasn't been enriched yet; char_offsets and
// chunk_text are always derived from the artifact's own original text so
// citations stay anchored to it (spec §9's open question: search uses
// enriched_text when present, citations always use chunk_text).
func (c *Chunker) Split(artifact *types.Artifact, enrichedText string, relationshipIDs sets.Set[string], contextLevel types.ContextExpansionLevel, now time.Time) []*types.ChunkMetadata {
	text := artifact.Text
	if text == "" {
		return nil
	}

	var out []*types.ChunkMetadata
	start := 0
	stride := c.maxChars - c.overlapChars
	if stride <= 0 {
		stride = c.maxChars
	}

	for start < len(text) {
		end := start + c.maxChars
		if end > len(text) {
			end = len(text)
		}
		// Avoid splitting mid-word when a later boundary is close by.
		if end < len(text) {
			if boundary := lastWordBoundary(text, start, end); boundary > start {
				end = boundary
			}
		}

		offsets := types.CharOffsets{Start: start, End: end}
		chunkText := text[start:end]

		out = append(out, c.buildChunk(artifact, chunkText, offsets, enrichedText, relationshipIDs, contextLevel, now))

		if end >= len(text) {
			break
		}
		start = end - c.overlapChars
		if start <= offsets.Start {
			start = end
		}
	}
	return out
}

func (c *Chunker) buildChunk(artifact *types.Artifact, chunkText string, offsets types.CharOffsets, enrichedText string, relationshipIDs sets.Set[string], contextLevel types.ContextExpansionLevel, now time.Time) *types.ChunkMetadata {
	var entities []types.ChunkEntity
	if c.extractor != nil {
		entities = entity.ToChunkEntities(c.extractor.Extract(chunkText))
	}

	chunk := &types.ChunkMetadata{
		ChunkID:               types.DeriveChunkID(artifact.ID, offsets),
		ArtifactID:            artifact.ID,
		PatientID:             artifact.PatientID,
		ArtifactType:          artifact.Type,
		ChunkText:             chunkText,
		CharOffsets:           offsets,
		Entities:              entities,
		RelationshipIDs:       relationshipIDs,
		ContextExpansionLevel: contextLevel,
		OccurredAt:            artifact.OccurredAt,
		Author:                artifact.Author,
		SourceURL:             artifact.SourceURL,
		CreatedAt:             now,
	}
	if enrichedText != "" {
		chunk.EnrichedText = &enrichedText
	}
	return chunk
}

// lastWordBoundary finds the last whitespace rune in text[start:end],
// returning its index (exclusive of the whitespace) if found strictly
// after start, or start (meaning "no boundary found") otherwise.
func lastWordBoundary(text string, start, end int) int {
	for i := end - 1; i > start; i-- {
		if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			return i
		}
	}
	return start
}
