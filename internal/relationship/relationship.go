// Package relationship implements the Relationship Extractor (spec §4.2):
// given a patient's medications, conditions, and care plans, it derives
// typed ClinicalRelationship edges using a four-strategy cascade for
// medication→indication links and an analogous two-stage cascade for
// care-plan→condition links.
package relationship

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/dangrewal8/patientqa/internal/types"
)

const (
	temporalCorrelationWindow   = 90 * 24 * time.Hour
	textSimilarityThreshold     = 0.6
	carePlanSimilarityThreshold = 0.7
)

// Extractor derives ClinicalRelationship edges from a patient's artifacts.
type Extractor struct {
	now func() time.Time
}

// New constructs an Extractor. nowFn lets callers supply a deterministic
// clock for tests; nil defaults to time.Now.
func New(nowFn func() time.Time) *Extractor {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Extractor{now: nowFn}
}

// Extract derives every relationship the cascades can establish across the
// given medications, conditions, and care plans, which MUST all belong to
// the same patient. Output order is deterministic: the same inputs in the
// same order always produce the same output.
func (e *Extractor) Extract(patientID string, medications, conditions, carePlans []*types.Artifact) []*types.ClinicalRelationship {
	var out []*types.ClinicalRelationship
	for _, med := range medications {
		out = append(out, e.medicationIndications(patientID, med, conditions)...)
	}
	for _, cp := range carePlans {
		out = append(out, e.carePlanConditions(patientID, cp, conditions)...)
	}
	return out
}

// medicationIndications runs the four-strategy cascade for a single
// medication against every candidate condition, trying each strategy in
// order and stopping at the first one that succeeds — except temporal
// correlation, which may emit multiple edges.
func (e *Extractor) medicationIndications(patientID string, med *types.Artifact, conditions []*types.Artifact) []*types.ClinicalRelationship {
	if med.Medication == nil {
		return nil
	}

	if edge := e.explicitMedicationMatch(patientID, med, conditions); edge != nil {
		return []*types.ClinicalRelationship{edge}
	}
	if edge := e.codeMedicationMatch(patientID, med, conditions); edge != nil {
		return []*types.ClinicalRelationship{edge}
	}
	if edge := e.textSimilarityMedicationMatch(patientID, med, conditions); edge != nil {
		return []*types.ClinicalRelationship{edge}
	}
	return e.temporalCorrelationMatch(patientID, med, conditions)
}

func (e *Extractor) explicitMedicationMatch(patientID string, med *types.Artifact, conditions []*types.Artifact) *types.ClinicalRelationship {
	if len(med.Medication.RelatedConditionIDs) == 0 {
		return nil
	}
	related := lo.Filter(conditions, func(c *types.Artifact, _ int) bool {
		return lo.Contains(med.Medication.RelatedConditionIDs, c.ID)
	})
	if len(related) == 0 {
		return nil
	}
	target := bestByTargetID(related)
	return e.newMedicationIndication(patientID, med, target, 1.0, types.MethodExplicitAPI)
}

func (e *Extractor) codeMedicationMatch(patientID string, med *types.Artifact, conditions []*types.Artifact) *types.ClinicalRelationship {
	if med.Medication.IndicationCode == "" {
		return nil
	}
	matches := lo.Filter(conditions, func(c *types.Artifact, _ int) bool {
		return c.Condition != nil && c.Condition.Code != "" && c.Condition.Code == med.Medication.IndicationCode
	})
	if len(matches) == 0 {
		return nil
	}
	target := bestByTargetID(matches)
	return e.newMedicationIndication(patientID, med, target, 0.95, types.MethodExplicitAPI)
}

func (e *Extractor) textSimilarityMedicationMatch(patientID string, med *types.Artifact, conditions []*types.Artifact) *types.ClinicalRelationship {
	source := med.Medication.Indication
	if source == "" {
		return nil
	}
	sourceTokens := tokenize(source)
	if len(sourceTokens) == 0 {
		return nil
	}

	type scored struct {
		condition *types.Artifact
		score     float64
	}
	var candidates []scored
	for _, c := range conditions {
		if c.Condition == nil || c.Condition.Name == "" {
			continue
		}
		sim := jaccard(sourceTokens, tokenize(c.Condition.Name))
		if sim > textSimilarityThreshold {
			candidates = append(candidates, scored{c, sim})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].condition.ID < candidates[j].condition.ID
	})
	best := candidates[0]
	return e.newMedicationIndication(patientID, med, best.condition, best.score, types.MethodLLMInferred)
}

func (e *Extractor) temporalCorrelationMatch(patientID string, med *types.Artifact, conditions []*types.Artifact) []*types.ClinicalRelationship {
	if med.Medication.PrescribedAt == nil {
		return nil
	}
	var out []*types.ClinicalRelationship
	for _, c := range conditions {
		if c.Condition == nil || c.Condition.DiagnosedAt == nil {
			continue
		}
		if strings.EqualFold(c.Condition.Status, "resolved") {
			continue
		}
		delta := med.Medication.PrescribedAt.Sub(*c.Condition.DiagnosedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta > temporalCorrelationWindow {
			continue
		}
		days := delta.Hours() / 24
		confidence := 0.8 - (days/90)*0.3
		if confidence < 0.5 {
			confidence = 0.5
		}
		out = append(out, e.newMedicationIndication(patientID, med, c, confidence, types.MethodTemporalCorrelation))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ConfidenceScore != out[j].ConfidenceScore {
			return out[i].ConfidenceScore > out[j].ConfidenceScore
		}
		return out[i].TargetArtifactID < out[j].TargetArtifactID
	})
	return out
}

func (e *Extractor) newMedicationIndication(patientID string, med, condition *types.Artifact, confidence float64, method types.EnrichmentMethod) *types.ClinicalRelationship {
	return &types.ClinicalRelationship{
		RelationshipID:     uuid.NewString(),
		RelationshipType:   types.RelMedicationIndication,
		SourceArtifactID:   med.ID,
		SourceArtifactType: med.Type,
		SourceEntityText:   med.Medication.Name,
		TargetArtifactID:   condition.ID,
		TargetArtifactType: condition.Type,
		TargetEntityText:   conditionName(condition),
		PatientID:          patientID,
		ConfidenceScore:    clamp01(confidence),
		ExtractionMethod:   method,
		EstablishedAt:      e.now(),
	}
}

// carePlanConditions runs the two-stage cascade (explicit IDs, else
// Jaccard similarity on title/description vs condition name) for a single
// care plan against every candidate condition.
func (e *Extractor) carePlanConditions(patientID string, cp *types.Artifact, conditions []*types.Artifact) []*types.ClinicalRelationship {
	if cp.CarePlan == nil {
		return nil
	}

	if len(cp.CarePlan.AddressedConditionIDs) > 0 {
		matches := lo.Filter(conditions, func(c *types.Artifact, _ int) bool {
			return lo.Contains(cp.CarePlan.AddressedConditionIDs, c.ID)
		})
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
		return lo.Map(matches, func(c *types.Artifact, _ int) *types.ClinicalRelationship {
			return e.newCarePlanCondition(patientID, cp, c, 1.0, types.MethodExplicitAPI)
		})
	}

	sourceText := strings.TrimSpace(cp.CarePlan.Title + " " + cp.CarePlan.Description)
	sourceTokens := tokenize(sourceText)
	if len(sourceTokens) == 0 {
		return nil
	}

	type scored struct {
		condition *types.Artifact
		score     float64
	}
	var candidates []scored
	for _, c := range conditions {
		if c.Condition == nil || c.Condition.Name == "" {
			continue
		}
		sim := jaccard(sourceTokens, tokenize(c.Condition.Name))
		if sim > carePlanSimilarityThreshold {
			candidates = append(candidates, scored{c, sim})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].condition.ID < candidates[j].condition.ID
	})
	return lo.Map(candidates, func(s scored, _ int) *types.ClinicalRelationship {
		return e.newCarePlanCondition(patientID, cp, s.condition, s.score, types.MethodLLMInferred)
	})
}

func (e *Extractor) newCarePlanCondition(patientID string, cp, condition *types.Artifact, confidence float64, method types.EnrichmentMethod) *types.ClinicalRelationship {
	return &types.ClinicalRelationship{
		RelationshipID:     uuid.NewString(),
		RelationshipType:   types.RelCarePlanCondition,
		SourceArtifactID:   cp.ID,
		SourceArtifactType: cp.Type,
		SourceEntityText:   cp.CarePlan.Title,
		TargetArtifactID:   condition.ID,
		TargetArtifactType: condition.Type,
		TargetEntityText:   conditionName(condition),
		PatientID:          patientID,
		ConfidenceScore:    clamp01(confidence),
		ExtractionMethod:   method,
		EstablishedAt:      e.now(),
	}
}

func conditionName(c *types.Artifact) string {
	if c.Condition != nil {
		return c.Condition.Name
	}
	return ""
}

// bestByTargetID picks a deterministic winner among several equally-valid
// explicit/code matches: smallest target_artifact_id.
func bestByTargetID(candidates []*types.Artifact) *types.Artifact {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ID < best.ID {
			best = c
		}
	}
	return best
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

// tokenize lowercases, strips punctuation, and keeps tokens of length >= 3,
// per spec §4.2's Jaccard text-similarity rule.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
