package types

import "time"

// ConfidenceLabel is the bucketed, human-facing confidence level derived
// from a Confidence.Score.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// ConfidenceComponents is the breakdown behind a Confidence.Score, per the
// fixed weighted formula in spec §4.7.
type ConfidenceComponents struct {
	AvgRetrievalScore float64
	ExtractionQuality float64
	SupportDensity    float64
}

// Confidence is the scored, labeled, explained confidence of one answer.
type Confidence struct {
	Score      float64
	Label      ConfidenceLabel
	Components ConfidenceComponents
	Reason     string
}

// Provenance is Provenance Formatter's per-citation, human-facing output.
type Provenance struct {
	ArtifactID     string
	ArtifactType   ArtifactType
	Snippet        string
	NoteDate       string // relative ("3 days ago") or absolute ("Mon D, YYYY")
	Author         string
	SourceURL      string
	CharOffsets    CharOffsets
	RelevanceScore float64
}

// ExtractionProvenance is the chunk-level citation backing a single
// structured extraction.
type ExtractionProvenance struct {
	ArtifactID     string
	ChunkID        string
	CharOffsets    CharOffsets
	SupportingText string
}

// StructuredExtraction is one discrete fact the Generator extracted from
// retrieved context, with the provenance that justifies it.
type StructuredExtraction struct {
	Type       string
	Content    string
	Provenance *ExtractionProvenance
}

// ResponseMetadata carries timings and bookkeeping that aren't part of the
// answer itself.
type ResponseMetadata struct {
	PatientID        string
	QueryTimestamp   time.Time
	ResponseTimestamp time.Time
	TotalTimeMs      int64
	SourcesCount     int
	ModelUsed        string
}

// AuditTrailMetadata is the audit block embedded in the wire-level response
// envelope (distinct from the durable AuditEntry persisted by the Audit
// Logger, though the Response Builder derives one from the other).
type AuditTrailMetadata struct {
	QueryID           string
	ComponentsExecuted []string
	PipelineVersion    string
	Timestamps         map[string]time.Time
}

// UIResponse is the success envelope described in spec §6.3.
type UIResponse struct {
	QueryID               string
	ShortAnswer           string
	DetailedSummary       string
	StructuredExtractions []StructuredExtraction
	Provenance            []Provenance
	Confidence            Confidence
	Metadata              ResponseMetadata
	Audit                 AuditTrailMetadata
}

// ErrorCode is the taxonomy from spec §7, carried onto the wire so clients
// can branch without parsing HTTP status text.
type ErrorCode string

const (
	ErrCodeValidation   ErrorCode = "VALIDATION"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited  ErrorCode = "RATE_LIMITED"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// ErrorDetail is the {code, message, user_message, details} triple from
// spec §4.9/§6.3.
type ErrorDetail struct {
	Code        ErrorCode
	Message     string
	UserMessage string
	Details     map[string]any
}

// ErrorResponse is the failure envelope described in spec §6.3.
type ErrorResponse struct {
	QueryID  string
	Error    ErrorDetail
	Metadata struct {
		QueryTimestamp time.Time
		ErrorTimestamp time.Time
	}
	Audit AuditTrailMetadata
}

// MaxResponseBytes bounds the serialized size of a UIResponse, per spec
// §4.9.
const MaxResponseBytes = 1 << 20 // 1 MB

// MaxDetailedSummaryChars is the cap applied to DetailedSummary when a
// response needs to be truncated to fit MaxResponseBytes.
const MaxDetailedSummaryChars = 2000
