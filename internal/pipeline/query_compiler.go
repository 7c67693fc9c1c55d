package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dangrewal8/patientqa/internal/entity"
	"github.com/dangrewal8/patientqa/internal/types"
)

// intentLexicon maps a small set of keywords onto the Intent they imply,
// checked in order; the first match wins. Kept as a data table per spec
// §9's "keep lexicons as data" redesign note, the same shape
// conversation.followUpLexicon and entity's embedded lexicons use.
var intentLexicon = []struct {
	keywords []string
	intent   types.Intent
}{
	{[]string{"medication", "med", "prescri", "dose", "dosage", "drug"}, types.IntentRetrieveMedications},
	{[]string{"condition", "diagnos", "disease"}, types.IntentRetrieveConditions},
	{[]string{"care plan", "treatment plan", "goal", "intervention"}, types.IntentRetrieveCarePlans},
	{[]string{"lab", "result", "test", "level", "panel"}, types.IntentRetrieveLabs},
	{[]string{"history", "timeline", "past"}, types.IntentRetrieveHistory},
}

// QueryCompiler turns a raw natural-language question into the
// StructuredQuery the retriever and conversation manager operate on:
// intent classification and entity recognition over the question text
// itself, grounded on the same entity.Extractor the Chunk Store uses over
// artifact text (spec §4.1's recognizer is declared text-source agnostic).
type QueryCompiler struct {
	extractor *entity.Extractor
}

// NewQueryCompiler constructs a QueryCompiler.
func NewQueryCompiler(extractor *entity.Extractor) *QueryCompiler {
	return &QueryCompiler{extractor: extractor}
}

// Compile produces a fresh StructuredQuery for originalQuery, with no
// conversation context applied yet (that is conversation.Manager's job,
// via ResolveFollowUp on the result).
func (c *QueryCompiler) Compile(patientID, originalQuery string, now time.Time) types.StructuredQuery {
	return types.StructuredQuery{
		QueryID:       uuid.NewString(),
		OriginalQuery: originalQuery,
		PatientID:     patientID,
		Intent:        classifyIntent(originalQuery),
		Entities:      c.extractQueryEntities(originalQuery),
		Filters:       map[string]any{},
		DetailLevel:   3,
		ProcessedAt:   now,
	}
}

func classifyIntent(query string) types.Intent {
	lower := strings.ToLower(query)
	for _, rule := range intentLexicon {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return types.IntentGeneral
}

func (c *QueryCompiler) extractQueryEntities(query string) []types.QueryEntity {
	if c.extractor == nil {
		return nil
	}
	extracted := c.extractor.Extract(query)
	if len(extracted) == 0 {
		return nil
	}
	out := make([]types.QueryEntity, 0, len(extracted))
	for _, e := range extracted {
		out = append(out, types.QueryEntity{Text: e.Normalized, Type: string(e.Type)})
	}
	return out
}
