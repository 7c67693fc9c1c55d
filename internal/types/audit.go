package types

import "time"

// AuditEntry is one append-only audit log record, written exactly once per
// query by the Audit Logger.
type AuditEntry struct {
	QueryID         string    `json:"query_id"`
	Timestamp       time.Time `json:"timestamp"`
	PatientID       string    `json:"patient_id"`
	QueryText       string    `json:"query_text"`
	ResponseSummary string    `json:"response_summary"`
	SourcesUsed     []string  `json:"sources_used"`
	ConfidenceScore float64   `json:"confidence_score"`
	TotalTimeMs     int64     `json:"total_time_ms"`
	Success         bool      `json:"success"`
	Error           *string   `json:"error,omitempty"`
	UserID          *string   `json:"user_id,omitempty"`
	SessionID       *string   `json:"session_id,omitempty"`
}

// QualityMetrics is the set of judge-supplied (or heuristically derived)
// quality signals persisted alongside a ConversationRecord. Spec §9 treats
// these as externally supplied; this repo only defines their storage and
// aggregation plus an optional conservative fallback (see
// internal/history.DefaultQualityHeuristic) for environments with no judge
// model wired up.
type QualityMetrics struct {
	GroundingScore      float64
	ConsistencyScore    float64
	ConfidenceScore     float64
	HallucinationRisk   float64
	OverallQualityScore float64
}

// ConversationRecord is the durable, per-patient history row maintained by
// the Conversation History store.
type ConversationRecord struct {
	ID             int64
	PatientID      string
	Query          string
	QueryIntent    Intent
	QueryTimestamp time.Time

	ShortAnswer     string
	DetailedSummary string
	ModelUsed       string

	Extractions         []StructuredExtraction
	Sources             []string
	RetrievalCandidates []string

	Quality QualityMetrics

	EnrichmentEnabled bool
	MultiHopEnabled   bool
	ReasoningEnabled  bool

	ExecutionTimeMs  int64
	RetrievalTimeMs  int64
	GenerationTimeMs int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
