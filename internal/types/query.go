package types

import "time"

// Intent is the coarse classification of what a StructuredQuery is asking
// for. The Conversation Manager's follow-up resolution inherits this field
// when a follow-up query carries no new intent signal.
type Intent string

const (
	IntentRetrieveMedications Intent = "RETRIEVE_MEDICATIONS"
	IntentRetrieveConditions  Intent = "RETRIEVE_CONDITIONS"
	IntentRetrieveCarePlans   Intent = "RETRIEVE_CARE_PLANS"
	IntentRetrieveLabs        Intent = "RETRIEVE_LABS"
	IntentRetrieveHistory     Intent = "RETRIEVE_HISTORY"
	IntentGeneral             Intent = "GENERAL"
)

// QueryEntity is an entity recognized inside a user question, shaped like a
// ChunkEntity but without chunk-relative offsets.
type QueryEntity struct {
	Text string
	Type string
}

// TemporalFilter narrows a query to an occurred_at range.
type TemporalFilter struct {
	From *time.Time
	To   *time.Time
}

// StructuredQuery is the compiled form of a user question, produced by the
// Conversation Manager (optionally via follow-up resolution) and consumed by
// the Metadata Filter and Multi-Hop Retriever.
type StructuredQuery struct {
	QueryID        string
	OriginalQuery  string
	PatientID      string
	Intent         Intent
	Entities       []QueryEntity
	TemporalFilter *TemporalFilter
	Filters        map[string]any
	DetailLevel    int // 1..5
	ProcessedAt    time.Time
}
