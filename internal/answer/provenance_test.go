package answer

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/dangrewal8/patientqa/internal/types"
)

func provenanceChunk(text string, occurredAt time.Time) *types.ChunkMetadata {
	return &types.ChunkMetadata{
		ChunkID:      "chunk_1",
		ArtifactID:   "A1",
		PatientID:    "P1",
		ArtifactType: types.ArtifactNote,
		ChunkText:    text,
		OccurredAt:   occurredAt,
	}
}

func TestFormatProvenance_RecentDateIsRelative(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	occurredAt := now.Add(-2 * 24 * time.Hour)
	c := provenanceChunk("Patient takes metformin 500mg twice daily for diabetes management.", occurredAt)

	p := FormatProvenance(c, types.CharOffsets{Start: 15, End: 33}, 0.9, now)
	assert.Equal(t, "2 days ago", p.NoteDate)
}

func TestFormatProvenance_OldDateIsAbsolute(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	occurredAt := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	c := provenanceChunk("Patient takes metformin 500mg twice daily for diabetes management.", occurredAt)

	p := FormatProvenance(c, types.CharOffsets{Start: 15, End: 33}, 0.9, now)
	assert.Equal(t, "Jun 1, 2023", p.NoteDate)
}

func TestFormatProvenance_SnippetCapsAtMaxChars(t *testing.T) {
	now := time.Now()
	longText := strings.Repeat("clinical observation text with detail. ", 20) + "metformin dose adjusted. " + strings.Repeat("more detail follows here. ", 20)
	c := provenanceChunk(longText, now)
	citeStart := strings.Index(longText, "metformin")
	span := types.CharOffsets{Start: citeStart, End: citeStart + len("metformin")}

	p := FormatProvenance(c, span, 0.8, now)
	assert.LessOrEqual(t, utf8.RuneCountInString(p.Snippet), snippetMaxChars+2) // +2 for ellipsis runes
	assert.Contains(t, p.Snippet, "metformin")
}

func TestFormatProvenance_NoTruncationWhenTextFits(t *testing.T) {
	now := time.Now()
	text := "Short note: metformin started."
	c := provenanceChunk(text, now)
	span := types.CharOffsets{Start: 12, End: 21}

	p := FormatProvenance(c, span, 0.8, now)
	assert.Equal(t, text, p.Snippet)
}

func TestCanonicalSourceURL_UsesChunkSourceURLWhenPresent(t *testing.T) {
	c := provenanceChunk("text", time.Now())
	c.SourceURL = "https://emr.example.com/notes/1"
	assert.Equal(t, "https://emr.example.com/notes/1", canonicalSourceURL(c))
}

func TestCanonicalSourceURL_DerivesFromArtifactTypeWhenAbsent(t *testing.T) {
	c := provenanceChunk("text", time.Now())
	url := canonicalSourceURL(c)
	assert.Contains(t, url, string(types.ArtifactNote))
	assert.Contains(t, url, "A1")
}
