package answer

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dangrewal8/patientqa/internal/types"
)

// snippetContextChars is the per-side context window before sentence-
// boundary extension, per spec §4.8.
const snippetContextChars = 50

// snippetMaxChars caps a formatted snippet after sentence-boundary
// extension, per spec §4.8.
const snippetMaxChars = 200

// recentThreshold is the age under which NoteDate renders as a relative
// string rather than an absolute date.
const recentThreshold = 7 * 24 * time.Hour

// FormatProvenance implements the Provenance Formatter (spec §4.8): given
// a retrieved chunk, the span within its text that justifies a citation,
// and the chunk's final retrieval score, it produces the human-facing
// FormattedProvenance the UI renders next to an answer.
func FormatProvenance(c *types.ChunkMetadata, citedSpan types.CharOffsets, relevanceScore float64, now time.Time) types.Provenance {
	author := ""
	if c.Author != nil {
		author = *c.Author
	}
	return types.Provenance{
		ArtifactID:     c.ArtifactID,
		ArtifactType:   c.ArtifactType,
		Snippet:        snippet(c.ChunkText, citedSpan),
		NoteDate:       formatNoteDate(c.OccurredAt, now),
		Author:         author,
		SourceURL:      canonicalSourceURL(c),
		CharOffsets:    citedSpan,
		RelevanceScore: relevanceScore,
	}
}

// snippet extends span by snippetContextChars on each side to the nearest
// sentence boundary, caps the result at snippetMaxChars, truncates at the
// last whole word, and adds ellipsis markers wherever content was cut.
func snippet(text string, span types.CharOffsets) string {
	start := clampIndex(span.Start-snippetContextChars, 0, len(text))
	end := clampIndex(span.End+snippetContextChars, 0, len(text))

	start = extendToSentenceStart(text, start)
	end = extendToSentenceEnd(text, end)

	cutLeft := start > 0
	cutRight := end < len(text)

	for end-start > snippetMaxChars {
		// Shrink from whichever side has more slack outside the cited span,
		// keeping the cited span itself intact.
		if span.Start-start > end-span.End {
			start++
			cutLeft = true
		} else {
			end--
			cutRight = true
		}
	}

	excerpt := text[start:end]
	// Trim a word only where the cut actually split it.
	if cutLeft && start < end && !unicode.IsSpace(rune(text[start-1])) && !unicode.IsSpace(rune(text[start])) {
		excerpt = truncateToWordBoundary(excerpt, true)
	}
	if cutRight && start < end && !unicode.IsSpace(rune(text[end-1])) && !unicode.IsSpace(rune(text[end])) {
		excerpt = truncateToWordBoundary(excerpt, false)
	}

	if cutLeft {
		excerpt = "…" + strings.TrimLeftFunc(excerpt, unicode.IsSpace)
	}
	if cutRight {
		excerpt = strings.TrimRightFunc(excerpt, unicode.IsSpace) + "…"
	}
	return excerpt
}

func clampIndex(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

var sentenceEnders = map[rune]bool{'.': true, '!': true, '?': true, '\n': true}

func extendToSentenceStart(text string, i int) int {
	for i > 0 && !sentenceEnders[rune(text[i-1])] {
		i--
	}
	return i
}

func extendToSentenceEnd(text string, i int) int {
	for i < len(text) && !sentenceEnders[rune(text[i])] {
		i++
	}
	if i < len(text) {
		i++ // include the sentence-ending punctuation itself
	}
	return i
}

// truncateToWordBoundary drops a partial leading (fromLeft=true) or
// trailing word so a cut snippet never starts or ends mid-word.
func truncateToWordBoundary(s string, fromLeft bool) string {
	if s == "" {
		return s
	}
	if fromLeft {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			return s
		}
		return strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s
	}
	return strings.TrimRightFunc(s[:i], unicode.IsSpace)
}

func formatNoteDate(occurredAt, now time.Time) string {
	age := now.Sub(occurredAt)
	if age >= 0 && age < recentThreshold {
		days := int(age.Hours() / 24)
		if days <= 0 {
			return "today"
		}
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	return occurredAt.Format("Jan 2, 2006")
}

// canonicalSourceURL derives a stable reference URL from the artifact
// type and ID when the chunk carries no explicit source URL of its own.
func canonicalSourceURL(c *types.ChunkMetadata) string {
	if c.SourceURL != "" {
		return c.SourceURL
	}
	return fmt.Sprintf("patientqa://%s/%s/%s", c.PatientID, c.ArtifactType, c.ArtifactID)
}
