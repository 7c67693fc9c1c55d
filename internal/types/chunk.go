package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dangrewal8/patientqa/pkg/sets"
)

// ContextExpansionLevel records how far a chunk's enriched_text reaches
// beyond the artifact's own original text: 0 none, 1 direct relationship
// context, 2 multi-hop context.
type ContextExpansionLevel int

const (
	ContextExpansionNone   ContextExpansionLevel = 0
	ContextExpansionDirect ContextExpansionLevel = 1
	ContextExpansionHop    ContextExpansionLevel = 2
)

// ChunkEntity is a single recognized clinical entity inside a chunk, with
// offsets relative to the chunk's own text (not the artifact's).
type ChunkEntity struct {
	Text       string
	Type       string
	Start      int
	End        int
	Normalized string
}

// CharOffsets is an inclusive-exclusive [start, end) span into some text.
type CharOffsets struct {
	Start int
	End   int
}

// ChunkMetadata is the persisted form of a Chunk: a bounded slice of
// artifact text plus everything the Chunk Store indexes on and everything
// the retriever needs to score and cite it.
type ChunkMetadata struct {
	ChunkID      string
	ArtifactID   string
	PatientID    string
	ArtifactType ArtifactType

	ChunkText    string
	EnrichedText *string

	CharOffsets CharOffsets

	Entities []ChunkEntity

	RelationshipIDs sets.Set[string]

	ContextExpansionLevel ContextExpansionLevel

	ExtractedEntities map[string]any

	OccurredAt time.Time
	Author     *string
	SourceURL  string
	CreatedAt  time.Time
}

// SearchText returns the text the retriever should embed/search: the
// enriched text when present, otherwise the raw chunk text. This is the
// literal resolution of the open question in spec §9: search operates on
// enriched_text when present, citations are always computed against
// chunk_text (see CitationText).
func (c *ChunkMetadata) SearchText() string {
	if c.EnrichedText != nil && *c.EnrichedText != "" {
		return *c.EnrichedText
	}
	return c.ChunkText
}

// CitationText returns the text that provenance/citations are always
// computed against, regardless of whether enriched_text is present.
func (c *ChunkMetadata) CitationText() string {
	return c.ChunkText
}

// DeriveChunkID computes the chunk_id deterministically from the owning
// artifact and the chunk's character offsets into that artifact's text, so
// that re-chunking the same artifact with the same boundaries is an upsert,
// never a duplicate, and collisions between distinct (artifact, offsets)
// pairs are impossible.
func DeriveChunkID(artifactID string, offsets CharOffsets) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", artifactID, offsets.Start, offsets.End)))
	return "chunk_" + hex.EncodeToString(sum[:16])
}

// Validate enforces the Chunk invariants: well-formed, in-bounds offsets.
func (c *ChunkMetadata) Validate(artifactTextLen int) error {
	if c.CharOffsets.Start < 0 || c.CharOffsets.Start >= c.CharOffsets.End {
		return fmt.Errorf("chunk %s: invalid offsets [%d,%d)", c.ChunkID, c.CharOffsets.Start, c.CharOffsets.End)
	}
	if c.CharOffsets.End > artifactTextLen {
		return fmt.Errorf("chunk %s: end offset %d exceeds artifact text length %d", c.ChunkID, c.CharOffsets.End, artifactTextLen)
	}
	return nil
}
