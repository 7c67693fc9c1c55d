package retrieval

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/dangrewal8/patientqa/internal/types"
)

// HighlightKind ranks how a span in a chunk's text was matched against the
// query, per spec §4.5's entity > exact > fuzzy precedence.
type HighlightKind string

const (
	HighlightEntity HighlightKind = "entity"
	HighlightExact  HighlightKind = "exact"
	HighlightFuzzy  HighlightKind = "fuzzy"
)

// fuzzyMatchThreshold is the minimum normalized similarity (1 - distance /
// max(len)) for a fuzzy highlight to count as a match.
const fuzzyMatchThreshold = 0.8

// Highlight is one matched span inside a chunk's citation text.
type Highlight struct {
	Start int
	End   int
	Kind  HighlightKind
	Term  string
}

var wordRe = regexp.MustCompile(`[A-Za-z0-9]+`)

// HighlightChunk finds every span in c.CitationText() that matches one of
// the query's recognized entities or free-text terms, keeping only the
// highest-precedence match for any overlapping span (entity wins over
// exact wins over fuzzy), then returns the spans sorted by position.
func HighlightChunk(c *types.ChunkMetadata, queryEntities []types.QueryEntity, queryTerms []string) []Highlight {
	text := c.CitationText()
	lowerText := strings.ToLower(text)

	var found []Highlight

	for _, qe := range queryEntities {
		for _, span := range findAllOccurrences(lowerText, strings.ToLower(qe.Text)) {
			found = append(found, Highlight{Start: span[0], End: span[1], Kind: HighlightEntity, Term: qe.Text})
		}
	}

	for _, term := range queryTerms {
		lowerTerm := strings.ToLower(term)
		for _, span := range findAllOccurrences(lowerText, lowerTerm) {
			found = append(found, Highlight{Start: span[0], End: span[1], Kind: HighlightExact, Term: term})
		}
	}

	for _, term := range queryTerms {
		found = append(found, fuzzyMatches(text, term)...)
	}

	return dedupeHighlights(found)
}

func findAllOccurrences(haystack, needle string) [][2]int {
	if needle == "" {
		return nil
	}
	var spans [][2]int
	offset := 0
	for {
		i := strings.Index(haystack[offset:], needle)
		if i < 0 {
			break
		}
		start := offset + i
		spans = append(spans, [2]int{start, start + len(needle)})
		offset = start + len(needle)
	}
	return spans
}

// fuzzyMatches scores every word-like token in text against term using
// normalized Levenshtein similarity, keeping tokens at or above
// fuzzyMatchThreshold. This catches the clinical-note misspellings/
// abbreviations exact matching would miss.
func fuzzyMatches(text, term string) []Highlight {
	if term == "" {
		return nil
	}
	lowerTerm := strings.ToLower(term)
	var matches []Highlight
	for _, loc := range wordRe.FindAllStringIndex(text, -1) {
		token := text[loc[0]:loc[1]]
		if strings.EqualFold(token, term) {
			continue // already covered by exact matching
		}
		if similarity(strings.ToLower(token), lowerTerm) >= fuzzyMatchThreshold {
			matches = append(matches, Highlight{Start: loc[0], End: loc[1], Kind: HighlightFuzzy, Term: term})
		}
	}
	return matches
}

func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.Distance(a, b, nil)
	return 1 - float64(dist)/float64(maxLen)
}

// dedupeHighlights resolves overlapping spans by precedence (entity > exact
// > fuzzy), then returns the survivors sorted by start offset.
func dedupeHighlights(in []Highlight) []Highlight {
	sort.SliceStable(in, func(i, j int) bool {
		if ri, rj := highlightRank(in[i].Kind), highlightRank(in[j].Kind); ri != rj {
			return ri < rj
		}
		return in[i].Start < in[j].Start
	})

	var out []Highlight
	for _, h := range in {
		overlaps := false
		for _, kept := range out {
			if h.Start < kept.End && kept.Start < h.End {
				overlaps = true // lower-precedence span already covered by a kept one
				break
			}
		}
		if !overlaps {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func highlightRank(k HighlightKind) int {
	switch k {
	case HighlightEntity:
		return 0
	case HighlightExact:
		return 1
	default:
		return 2
	}
}
