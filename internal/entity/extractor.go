// Package entity implements the clinical entity extractor: a pattern-based
// recognizer over chunk text for medications, dosages, conditions, symptoms,
// and procedures, with abbreviation normalization. No ML, no external NLP
// dependencies — lexicons are data tables loaded once from embedded JSON.
package entity

import (
	"embed"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dangrewal8/patientqa/internal/types"
)

var titleCaser = cases.Title(language.English)

//go:embed lexicon/*.json
var lexiconFS embed.FS

// Kind enumerates the entity categories recognized by the extractor, in the
// precedence order ties are broken by (earlier wins).
type Kind string

const (
	KindDosage     Kind = "dosage"
	KindMedication Kind = "medication"
	KindCondition  Kind = "condition"
	KindSymptom    Kind = "symptom"
	KindProcedure  Kind = "procedure"
)

// kindPrecedence gives each Kind its tie-break rank; lower wins.
var kindPrecedence = map[Kind]int{
	KindDosage:     0,
	KindMedication: 1,
	KindCondition:  2,
	KindSymptom:    3,
	KindProcedure:  4,
}

// Entity is a single recognized clinical entity with offsets relative to
// the text passed to Extract.
type Entity struct {
	Text       string
	Type       Kind
	Start      int
	End        int
	Normalized string
}

var (
	dosageAmountRe = regexp.MustCompile(`(?i)\d+(\.\d+)?\s?(mg|mcg|ml|units|tab|cap|%)\b`)
	frequencyRe    = regexp.MustCompile(`(?i)\b(BID|TID|QID|QD|q\d+h|PRN)\b`)
)

var canonicalUnit = map[string]string{
	"mg":    "mg",
	"mcg":   "mcg",
	"ml":    "ml",
	"units": "units",
	"tab":   "tab",
	"cap":   "cap",
	"%":     "%",
}

// Extractor recognizes clinical entities in free text using lexicon
// tables loaded once at construction.
type Extractor struct {
	medications      map[string]string
	medicationSuffix []string
	conditions       map[string]string
	symptoms         map[string]string
	procedures       map[string]string
	abbreviations    map[string]string
}

// New loads all lexicon tables from the embedded filesystem. It never
// returns an error in practice since the lexicons are compiled in, but the
// signature stays fallible in case lexicons are ever externalized.
func New() (*Extractor, error) {
	e := &Extractor{}
	var err error
	if e.medications, err = loadMap("lexicon/medications.json"); err != nil {
		return nil, err
	}
	if e.medicationSuffix, err = loadSlice("lexicon/medication_suffixes.json"); err != nil {
		return nil, err
	}
	if e.conditions, err = loadMap("lexicon/conditions.json"); err != nil {
		return nil, err
	}
	if e.symptoms, err = loadMap("lexicon/symptoms.json"); err != nil {
		return nil, err
	}
	if e.procedures, err = loadMap("lexicon/procedures.json"); err != nil {
		return nil, err
	}
	if e.abbreviations, err = loadMap("lexicon/abbreviations.json"); err != nil {
		return nil, err
	}
	return e, nil
}

func loadMap(name string) (map[string]string, error) {
	b, err := lexiconFS.ReadFile(name)
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func loadSlice(name string) ([]string, error) {
	b, err := lexiconFS.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var s []string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// Extract recognizes every clinical entity in text, in the order specified:
// dosage regexes, medication lexicon + suffixes, condition lexicon,
// symptom lexicon, procedure lexicon, abbreviation expansion. Overlapping
// spans are deduplicated, keeping the longer span and breaking ties by
// earlier type precedence. Extract never raises; empty input yields nil.
func (e *Extractor) Extract(text string) []Entity {
	if text == "" {
		return nil
	}

	var found []Entity
	found = append(found, e.matchDosages(text)...)
	found = append(found, e.matchLexicon(text, e.medications, KindMedication)...)
	found = append(found, e.matchSuffixes(text)...)
	found = append(found, e.matchLexicon(text, e.conditions, KindCondition)...)
	found = append(found, e.matchLexicon(text, e.symptoms, KindSymptom)...)
	found = append(found, e.matchLexicon(text, e.procedures, KindProcedure)...)
	found = append(found, e.matchLexicon(text, e.abbreviations, KindCondition)...)

	for i := range found {
		found[i].Normalized = e.normalize(found[i])
	}
	return dedupeSpans(found)
}

func (e *Extractor) matchDosages(text string) []Entity {
	var out []Entity
	for _, loc := range dosageAmountRe.FindAllStringIndex(text, -1) {
		out = append(out, Entity{Text: text[loc[0]:loc[1]], Type: KindDosage, Start: loc[0], End: loc[1]})
	}
	for _, loc := range frequencyRe.FindAllStringIndex(text, -1) {
		out = append(out, Entity{Text: text[loc[0]:loc[1]], Type: KindDosage, Start: loc[0], End: loc[1]})
	}
	return out
}

func (e *Extractor) matchSuffixes(text string) []Entity {
	var out []Entity
	lower := strings.ToLower(text)
	wordRe := regexp.MustCompile(`[a-zA-Z]+`)
	for _, loc := range wordRe.FindAllStringIndex(text, -1) {
		word := lower[loc[0]:loc[1]]
		if _, known := e.medications[word]; known {
			continue
		}
		for _, suf := range e.medicationSuffix {
			if strings.HasSuffix(word, suf) && len(word) > len(suf) {
				out = append(out, Entity{Text: text[loc[0]:loc[1]], Type: KindMedication, Start: loc[0], End: loc[1]})
				break
			}
		}
	}
	return out
}

// matchLexicon finds every occurrence of a lexicon key (case-insensitive,
// longest key first so multi-word phrases win over their substrings).
func (e *Extractor) matchLexicon(text string, lexicon map[string]string, kind Kind) []Entity {
	if len(lexicon) == 0 {
		return nil
	}
	keys := make([]string, 0, len(lexicon))
	for k := range lexicon {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	lower := strings.ToLower(text)
	var out []Entity
	for _, k := range keys {
		start := 0
		for {
			idx := strings.Index(lower[start:], k)
			if idx < 0 {
				break
			}
			absStart := start + idx
			absEnd := absStart + len(k)
			if wordBoundary(lower, absStart, absEnd) {
				out = append(out, Entity{Text: text[absStart:absEnd], Type: kind, Start: absStart, End: absEnd})
			}
			start = absStart + len(k)
		}
	}
	return out
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 && isWordChar(s[start-1]) {
		return false
	}
	if end < len(s) && isWordChar(s[end]) {
		return false
	}
	return true
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// dedupeSpans removes overlapping entities, keeping the longer span and
// breaking ties by earlier type precedence (lower kindPrecedence value).
func dedupeSpans(in []Entity) []Entity {
	if len(in) == 0 {
		return nil
	}
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Start != in[j].Start {
			return in[i].Start < in[j].Start
		}
		li, lj := in[i].End-in[i].Start, in[j].End-in[j].Start
		if li != lj {
			return li > lj
		}
		return kindPrecedence[in[i].Type] < kindPrecedence[in[j].Type]
	})

	var out []Entity
	lastEnd := -1
	for _, ent := range in {
		if ent.Start < lastEnd {
			continue
		}
		out = append(out, ent)
		lastEnd = ent.End
	}
	return out
}

// normalize is idempotent: running it on an already-normalized value
// returns that value unchanged.
func (e *Extractor) normalize(ent Entity) string {
	switch ent.Type {
	case KindDosage:
		return normalizeDosage(ent.Text)
	case KindMedication:
		if canon, ok := e.medications[strings.ToLower(ent.Text)]; ok {
			return canon
		}
		return titleCaser.String(strings.ToLower(ent.Text))
	case KindCondition:
		if canon, ok := e.conditions[strings.ToLower(ent.Text)]; ok {
			return canon
		}
		if canon, ok := e.abbreviations[strings.ToLower(ent.Text)]; ok {
			return canon
		}
		return titleCaser.String(strings.ToLower(ent.Text))
	case KindSymptom:
		if canon, ok := e.symptoms[strings.ToLower(ent.Text)]; ok {
			return canon
		}
		return titleCaser.String(strings.ToLower(ent.Text))
	case KindProcedure:
		if canon, ok := e.procedures[strings.ToLower(ent.Text)]; ok {
			return canon
		}
		return titleCaser.String(strings.ToLower(ent.Text))
	default:
		return ent.Text
	}
}

func normalizeDosage(text string) string {
	if frequencyRe.MatchString(text) {
		return strings.ToUpper(strings.TrimSpace(text))
	}
	m := dosageAmountRe.FindStringSubmatch(text)
	if m == nil {
		return strings.ToLower(strings.TrimSpace(text))
	}
	digits := regexp.MustCompile(`\d+(\.\d+)?`).FindString(text)
	unit := regexp.MustCompile(`(?i)(mg|mcg|ml|units|tab|cap|%)`).FindString(text)
	unit = strings.ToLower(unit)
	if canon, ok := canonicalUnit[unit]; ok {
		unit = canon
	}
	if _, err := strconv.ParseFloat(digits, 64); err != nil {
		return strings.ToLower(strings.TrimSpace(text))
	}
	return digits + unit
}

// ToChunkEntities converts extractor output to the persisted ChunkEntity
// form used by the Chunk Store.
func ToChunkEntities(entities []Entity) []types.ChunkEntity {
	out := make([]types.ChunkEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, types.ChunkEntity{
			Text:       e.Text,
			Type:       string(e.Type),
			Start:      e.Start,
			End:        e.End,
			Normalized: e.Normalized,
		})
	}
	return out
}
