// Package answer implements the grounded answer assembly stage of the
// query pipeline (spec §4.7-§4.9): scoring confidence, formatting
// provenance, and building the final UIResponse/ErrorResponse envelope.
package answer

import (
	"fmt"

	"github.com/dangrewal8/patientqa/internal/types"
)

// highConfidenceThreshold and mediumConfidenceThreshold are the label
// cutoffs spec §4.7 fixes.
const (
	highConfidenceThreshold   = 0.7
	mediumConfidenceThreshold = 0.4
)

// ScoreConfidence implements spec §4.7's fixed weighted formula exactly:
// confidence = 0.6*avg_retrieval_score + 0.3*extraction_quality + 0.1*support_density.
func ScoreConfidence(candidateScores []float64, extractions []types.StructuredExtraction) types.Confidence {
	components := types.ConfidenceComponents{
		AvgRetrievalScore: avgRetrievalScore(candidateScores),
		ExtractionQuality: extractionQuality(extractions),
		SupportDensity:    supportDensity(extractions, candidateScores),
	}
	score := 0.6*components.AvgRetrievalScore + 0.3*components.ExtractionQuality + 0.1*components.SupportDensity

	label := labelFor(score)
	return types.Confidence{
		Score:      score,
		Label:      label,
		Components: components,
		Reason:     reasonFor(label, components),
	}
}

func avgRetrievalScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// extractionQuality is the mean over extractions of
// 0.5 + 0.3*has(provenance) + 0.2*has(char_offsets); 0 if there are none.
func extractionQuality(extractions []types.StructuredExtraction) float64 {
	if len(extractions) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range extractions {
		q := 0.5
		if e.Provenance != nil {
			q += 0.3
			if e.Provenance.CharOffsets.End > e.Provenance.CharOffsets.Start {
				q += 0.2
			}
		}
		sum += q
	}
	return sum / float64(len(extractions))
}

// supportDensity is |unique supporting source IDs| / |candidates|; 0 if
// there are no candidates.
func supportDensity(extractions []types.StructuredExtraction, candidateScores []float64) float64 {
	if len(candidateScores) == 0 {
		return 0
	}
	sources := map[string]struct{}{}
	for _, e := range extractions {
		if e.Provenance != nil && e.Provenance.ArtifactID != "" {
			sources[e.Provenance.ArtifactID] = struct{}{}
		}
	}
	return float64(len(sources)) / float64(len(candidateScores))
}

func labelFor(score float64) types.ConfidenceLabel {
	switch {
	case score >= highConfidenceThreshold:
		return types.ConfidenceHigh
	case score >= mediumConfidenceThreshold:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// reasonFor names the weakest component when the label isn't "high", per
// spec §4.7's `reason` field.
func reasonFor(label types.ConfidenceLabel, c types.ConfidenceComponents) string {
	if label == types.ConfidenceHigh {
		return ""
	}
	weakest, value := "avg_retrieval_score", c.AvgRetrievalScore
	if c.ExtractionQuality < value {
		weakest, value = "extraction_quality", c.ExtractionQuality
	}
	if c.SupportDensity < value {
		weakest, value = "support_density", c.SupportDensity
	}
	return fmt.Sprintf("%s is low (%.2f)", weakest, value)
}
