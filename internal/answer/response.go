package answer

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// PipelineVersion is embedded in every response's audit trail.
const PipelineVersion = "patientqa-1"

// BuildRequest carries everything the Response Builder needs to assemble
// a UIResponse: the generated text, the structured extractions and
// provenance the upstream stages produced, the confidence already scored
// by ScoreConfidence, and bookkeeping for the audit/metadata blocks.
type BuildRequest struct {
	QueryID            string
	PatientID          string
	QueryTimestamp     time.Time
	ShortAnswer        string
	DetailedSummary    string
	StructuredExtractions []types.StructuredExtraction
	Provenance         []types.Provenance
	Confidence         types.Confidence
	ModelUsed          string
	ComponentsExecuted []string
	StageTimestamps    map[string]time.Time
	SourcesCount       int
}

// Build assembles a UIResponse from req, validating it against spec
// §4.9's invariants before returning it: every extraction carrying
// provenance must reference a real chunk, short_answer must be
// non-empty, and the serialized response must fit within
// types.MaxResponseBytes (truncated by dropping lowest-ranked provenance,
// then capping detailed_summary, if it doesn't).
func Build(req BuildRequest, now time.Time) (*types.UIResponse, error) {
	if req.ShortAnswer == "" {
		return nil, xerrors.Validation("answer.Build", "short_answer must be non-empty on success")
	}
	if err := validateExtractionProvenance(req.StructuredExtractions); err != nil {
		return nil, err
	}

	resp := &types.UIResponse{
		QueryID:               req.QueryID,
		ShortAnswer:           req.ShortAnswer,
		DetailedSummary:       req.DetailedSummary,
		StructuredExtractions: req.StructuredExtractions,
		Provenance:            sortedByRelevance(req.Provenance),
		Confidence:            req.Confidence,
		Metadata: types.ResponseMetadata{
			PatientID:         req.PatientID,
			QueryTimestamp:    req.QueryTimestamp,
			ResponseTimestamp: now,
			TotalTimeMs:       now.Sub(req.QueryTimestamp).Milliseconds(),
			SourcesCount:      req.SourcesCount,
			ModelUsed:         req.ModelUsed,
		},
		Audit: types.AuditTrailMetadata{
			QueryID:            req.QueryID,
			ComponentsExecuted: req.ComponentsExecuted,
			PipelineVersion:    PipelineVersion,
			Timestamps:         req.StageTimestamps,
		},
	}

	fitToSizeBudget(resp)
	return resp, nil
}

// validateExtractionProvenance enforces that every extraction which
// carries provenance references an existing chunk ID — an empty
// ChunkID means the provenance was never actually resolved against the
// Chunk Store.
func validateExtractionProvenance(extractions []types.StructuredExtraction) error {
	for _, e := range extractions {
		if e.Provenance != nil && e.Provenance.ChunkID == "" {
			return xerrors.Validation("answer.Build",
				"extraction \""+e.Content+"\" carries provenance with no chunk_id")
		}
	}
	return nil
}

func sortedByRelevance(p []types.Provenance) []types.Provenance {
	out := append([]types.Provenance{}, p...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// fitToSizeBudget enforces spec §4.9's 1 MB response cap: first by
// dropping the lowest-ranked provenance entries, then — if that alone
// doesn't suffice — by capping detailed_summary.
func fitToSizeBudget(resp *types.UIResponse) {
	for len(resp.Provenance) > 0 && serializedSize(resp) > types.MaxResponseBytes {
		resp.Provenance = resp.Provenance[:len(resp.Provenance)-1]
	}
	if serializedSize(resp) > types.MaxResponseBytes && len(resp.DetailedSummary) > types.MaxDetailedSummaryChars {
		resp.DetailedSummary = resp.DetailedSummary[:types.MaxDetailedSummaryChars]
	}
}

func serializedSize(resp *types.UIResponse) int {
	b, err := json.Marshal(resp)
	if err != nil {
		return 0
	}
	return len(b)
}

// BuildError assembles the failure envelope spec §4.9/§6.3 describes from
// a taxonomy-tagged error.
func BuildError(queryID string, err error, queryTimestamp, now time.Time, audit types.AuditTrailMetadata) *types.ErrorResponse {
	kind := xerrors.KindOf(err)
	userFacing := xerrors.ToUserFacing(err)
	resp := &types.ErrorResponse{
		QueryID: queryID,
		Error: types.ErrorDetail{
			Code:        errorCodeFor(kind),
			Message:     err.Error(),
			UserMessage: userFacing.Message,
			Details:     map[string]any{},
		},
		Audit: audit,
	}
	resp.Metadata.QueryTimestamp = queryTimestamp
	resp.Metadata.ErrorTimestamp = now
	return resp
}

func errorCodeFor(kind xerrors.Kind) types.ErrorCode {
	switch kind {
	case xerrors.KindValidation:
		return types.ErrCodeValidation
	case xerrors.KindUnauthorized:
		return types.ErrCodeUnauthorized
	case xerrors.KindForbidden:
		return types.ErrCodeForbidden
	case xerrors.KindNotFound:
		return types.ErrCodeNotFound
	case xerrors.KindRateLimited:
		return types.ErrCodeRateLimited
	case xerrors.KindTimeout:
		return types.ErrCodeTimeout
	case xerrors.KindUnavailable:
		return types.ErrCodeUnavailable
	default:
		return types.ErrCodeInternal
	}
}
