package history

import "github.com/dangrewal8/patientqa/internal/types"

// DefaultQualityHeuristic derives a QualityMetrics record from signals the
// query pipeline already computed — the answer's Confidence and the
// fraction of extractions that carry resolved provenance — rather than a
// second model call, for deployments with no separate judge model wired up
// (spec §9, referenced from types.QualityMetrics's doc comment).
//
// groundingScore tracks how much of the answer is actually cited:
// consistencyScore and hallucinationRisk are both read off of
// confidence.Components.SupportDensity, since an answer whose chunks barely
// support the extracted facts is exactly the one a judge model would flag
// as inconsistent or fabricated.
func DefaultQualityHeuristic(confidence types.Confidence, extractions []types.StructuredExtraction) types.QualityMetrics {
	grounded := 0
	for _, e := range extractions {
		if e.Provenance != nil && e.Provenance.ChunkID != "" {
			grounded++
		}
	}
	groundingScore := 1.0
	if len(extractions) > 0 {
		groundingScore = float64(grounded) / float64(len(extractions))
	}

	consistencyScore := confidence.Components.SupportDensity
	hallucinationRisk := clamp01(1 - groundingScore*consistencyScore)

	overall := clamp01(0.4*groundingScore + 0.3*consistencyScore + 0.3*confidence.Score)

	return types.QualityMetrics{
		GroundingScore:      groundingScore,
		ConsistencyScore:    consistencyScore,
		ConfidenceScore:     confidence.Score,
		HallucinationRisk:   hallucinationRisk,
		OverallQualityScore: overall,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
