// Package enrichment implements the Artifact Enricher (spec §4.3): it
// assembles an EnrichedArtifact whose enriched_text inlines relationship
// context and computes the two deterministic quality scores.
package enrichment

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/dangrewal8/patientqa/internal/entity"
	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/pkg/sets"
)

// Enricher produces EnrichedArtifact records from an Artifact plus the
// ClinicalRelationship edges and related artifacts it participates in.
type Enricher struct {
	extractor *entity.Extractor
	now       func() time.Time
}

// New constructs an Enricher. extractor supplies extracted_entities;
// nowFn lets callers supply a deterministic clock for tests.
func New(extractor *entity.Extractor, nowFn func() time.Time) *Enricher {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Enricher{extractor: extractor, now: nowFn}
}

// Context bundles the peripheral data a single artifact's enrichment
// needs: the relationships it participates in (either direction), and a
// lookup from artifact_id to the artifact itself so relationship targets
// can be rendered by name.
type Context struct {
	Relationships []*types.ClinicalRelationship
	ArtifactsByID map[string]*types.Artifact
}

// Enrich produces the EnrichedArtifact for a single artifact. Calling
// Enrich twice on byte-identical inputs yields byte-identical enriched_text
// and identical scores (spec §8's idempotence property).
func (e *Enricher) Enrich(a *types.Artifact, ctx Context) *types.EnrichedArtifact {
	enriched := &types.EnrichedArtifact{
		ArtifactID:         a.ID,
		PatientID:          a.PatientID,
		ArtifactType:       a.Type,
		OccurredAt:         a.OccurredAt,
		OriginalText:       a.Text,
		EnrichmentVersion:  types.CurrentEnrichmentVersion,
		EnrichedAt:         e.now(),
		RelatedArtifactIDs: sets.NewHashSet[string](),
	}

	outbound := relationshipsFrom(ctx.Relationships, a.ID)
	inbound := relationshipsTo(ctx.Relationships, a.ID)

	for _, r := range outbound {
		enriched.RelatedArtifactIDs.Add(r.TargetArtifactID)
	}
	for _, r := range inbound {
		enriched.RelatedArtifactIDs.Add(r.SourceArtifactID)
	}

	switch a.Type {
	case types.ArtifactMedication:
		enriched.EnrichedText = e.enrichMedication(a, outbound, ctx.ArtifactsByID)
		enriched.CompletenessScore = medicationCompleteness(a.Medication)
	case types.ArtifactCondition:
		enriched.EnrichedText = e.enrichCondition(a, inbound, ctx.ArtifactsByID)
		enriched.CompletenessScore = conditionCompleteness(a.Condition)
	case types.ArtifactCarePlan:
		enriched.EnrichedText = e.enrichCarePlan(a)
		enriched.CompletenessScore = carePlanCompleteness(a.CarePlan)
	default:
		enriched.EnrichedText = a.Text
		enriched.CompletenessScore = 1.0
	}

	enriched.ContextDepthScore = contextDepthScore(enriched.RelatedArtifactIDs.Size())
	enriched.RelationshipSummary = relationshipSummary(outbound, inbound, ctx.ArtifactsByID)
	enriched.EnrichmentMethod = dominantMethod(append(append([]*types.ClinicalRelationship{}, outbound...), inbound...))

	if e.extractor != nil {
		enriched.ExtractedEntities = entitiesAsMap(e.extractor.Extract(enriched.EnrichedText))
	}
	enriched.ClinicalContext = clinicalContext(a)

	return enriched
}

func (e *Enricher) enrichMedication(a *types.Artifact, outbound []*types.ClinicalRelationship, byID map[string]*types.Artifact) string {
	m := a.Medication
	var parts []string

	header := "Medication: " + m.Name
	if m.Dosage != "" {
		header += " " + m.Dosage
	}
	if m.Frequency != "" {
		header += " " + m.Frequency
	}
	if m.Route != "" {
		header += fmt.Sprintf(" (%s)", m.Route)
	}
	parts = append(parts, header+".")

	if m.Indication != "" {
		ind := "Indication: " + m.Indication
		if m.IndicationCode != "" {
			ind += fmt.Sprintf(" (%s)", m.IndicationCode)
		}
		parts = append(parts, ind+".")
	}

	if !a.OccurredAt.IsZero() && m.PrescribedAt != nil {
		parts = append(parts, fmt.Sprintf("Prescribed for %s.", a.OccurredAt.Format("2006-01-02")))
	}

	if len(outbound) > 0 {
		var related []string
		for _, r := range outbound {
			cond, ok := byID[r.TargetArtifactID]
			status := ""
			if ok && cond.Condition != nil {
				status = cond.Condition.Status
			}
			if status != "" {
				related = append(related, fmt.Sprintf("%s (%s)", r.TargetEntityText, status))
			} else {
				related = append(related, r.TargetEntityText)
			}
		}
		parts = append(parts, "Related Conditions: "+strings.Join(related, ", ")+".")
	}

	if m.Prescriber != "" {
		parts = append(parts, "Prescribed by: "+m.Prescriber+".")
	}
	if m.PrescribedAt != nil {
		parts = append(parts, "Prescribed on: "+m.PrescribedAt.Format("2006-01-02")+".")
	}

	return strings.Join(parts, " ")
}

func (e *Enricher) enrichCondition(a *types.Artifact, inbound []*types.ClinicalRelationship, byID map[string]*types.Artifact) string {
	c := a.Condition
	var parts []string

	header := "Condition: " + c.Name
	if c.Code != "" {
		header += fmt.Sprintf(" (%s)", c.Code)
	}
	parts = append(parts, header+".")

	if c.Status != "" || c.Severity != "" {
		status := strings.TrimSpace(strings.Join(lo.Filter([]string{c.Status, c.Severity}, func(s string, _ int) bool { return s != "" }), ", "))
		parts = append(parts, "Status: "+status+".")
	}

	if c.DiagnosedAt != nil {
		parts = append(parts, "Diagnosed: "+c.DiagnosedAt.Format("2006-01-02")+".")
	}

	var treatments []string
	for _, r := range inbound {
		if r.RelationshipType != types.RelMedicationIndication {
			continue
		}
		treatments = append(treatments, r.SourceEntityText)
	}
	if len(treatments) > 0 {
		parts = append(parts, "Current Treatments: "+strings.Join(treatments, ", ")+".")
	}

	hasCarePlan := lo.SomeBy(inbound, func(r *types.ClinicalRelationship) bool {
		return r.RelationshipType == types.RelCarePlanCondition
	})
	if hasCarePlan {
		parts = append(parts, "A care plan addresses this condition.")
	}

	if c.ClinicalNote != "" {
		parts = append(parts, c.ClinicalNote)
	}

	return strings.Join(parts, " ")
}

func (e *Enricher) enrichCarePlan(a *types.Artifact) string {
	cp := a.CarePlan
	var parts []string

	parts = append(parts, "Care Plan: "+cp.Title+".")

	if len(cp.AddressedConditionIDs) > 0 {
		parts = append(parts, fmt.Sprintf("Addresses %d condition(s).", len(cp.AddressedConditionIDs)))
	}

	if len(cp.Goals) > 0 {
		var numbered []string
		for i, g := range cp.Goals {
			numbered = append(numbered, fmt.Sprintf("%d. %s", i+1, g))
		}
		parts = append(parts, "Goals: "+strings.Join(numbered, " "))
	}

	if len(cp.Interventions) > 0 {
		var numbered []string
		for i, iv := range cp.Interventions {
			numbered = append(numbered, fmt.Sprintf("%d. %s", i+1, iv))
		}
		parts = append(parts, "Interventions: "+strings.Join(numbered, " "))
	}

	if cp.Rationale != "" {
		parts = append(parts, "Rationale: "+cp.Rationale)
	}

	return strings.Join(parts, " ")
}

// medicationCompleteness implements spec §4.3's medication rubric.
func medicationCompleteness(m *types.MedicationFields) float64 {
	if m == nil {
		return 0
	}
	score := 0.0
	score += boolScore(m.Dosage != "", 0.2)
	score += boolScore(m.Frequency != "", 0.2)
	score += boolScore(m.Route != "", 0.1)
	score += boolScore(m.Indication != "" || m.IndicationCode != "", 0.3)
	score += boolScore(m.Prescriber != "", 0.1)
	score += boolScore(m.PrescribedAt != nil, 0.1)
	return clamp01(score)
}

// conditionCompleteness follows the analogous rubric referenced by spec
// §4.3 against the condition fields named in §3: name/code, status,
// severity, diagnosis date, clinical note.
func conditionCompleteness(c *types.ConditionFields) float64 {
	if c == nil {
		return 0
	}
	score := 0.0
	score += boolScore(c.Code != "", 0.2)
	score += boolScore(c.Status != "", 0.2)
	score += boolScore(c.Severity != "", 0.2)
	score += boolScore(c.DiagnosedAt != nil, 0.2)
	score += boolScore(c.ClinicalNote != "", 0.2)
	return clamp01(score)
}

func carePlanCompleteness(cp *types.CarePlanFields) float64 {
	if cp == nil {
		return 0
	}
	score := 0.0
	score += boolScore(cp.Description != "", 0.2)
	score += boolScore(len(cp.AddressedConditionIDs) > 0, 0.2)
	score += boolScore(len(cp.Goals) > 0, 0.3)
	score += boolScore(len(cp.Interventions) > 0, 0.2)
	score += boolScore(cp.Rationale != "", 0.1)
	return clamp01(score)
}

func boolScore(present bool, weight float64) float64 {
	if present {
		return weight
	}
	return 0
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

// contextDepthScore implements spec §4.3's piecewise relationship-count
// rubric.
func contextDepthScore(relationshipCount int) float64 {
	switch {
	case relationshipCount >= 5:
		return 1.0
	case relationshipCount >= 3:
		return 0.9
	case relationshipCount == 2:
		return 0.7
	case relationshipCount == 1:
		return 0.5
	default:
		return 0.0
	}
}

func relationshipsFrom(rels []*types.ClinicalRelationship, artifactID string) []*types.ClinicalRelationship {
	return lo.Filter(rels, func(r *types.ClinicalRelationship, _ int) bool { return r.SourceArtifactID == artifactID })
}

func relationshipsTo(rels []*types.ClinicalRelationship, artifactID string) []*types.ClinicalRelationship {
	return lo.Filter(rels, func(r *types.ClinicalRelationship, _ int) bool { return r.TargetArtifactID == artifactID })
}

func relationshipSummary(outbound, inbound []*types.ClinicalRelationship, byID map[string]*types.Artifact) string {
	if len(outbound) == 0 && len(inbound) == 0 {
		return ""
	}
	var parts []string
	for _, r := range outbound {
		parts = append(parts, fmt.Sprintf("%s -> %s (%s)", r.SourceEntityText, r.TargetEntityText, r.RelationshipType))
	}
	for _, r := range inbound {
		parts = append(parts, fmt.Sprintf("%s -> %s (%s)", r.SourceEntityText, r.TargetEntityText, r.RelationshipType))
	}
	return strings.Join(parts, "; ")
}

// dominantMethod picks the enrichment method reported for the artifact as
// a whole: hybrid if the relationships driving this enrichment came from
// more than one method, else that single method, else explicit_api when
// there were no relationships at all (a context-free artifact still
// reflects fields supplied explicitly by the EMR).
func dominantMethod(rels []*types.ClinicalRelationship) types.EnrichmentMethod {
	if len(rels) == 0 {
		return types.MethodExplicitAPI
	}
	methods := lo.Uniq(lo.Map(rels, func(r *types.ClinicalRelationship, _ int) types.EnrichmentMethod { return r.ExtractionMethod }))
	if len(methods) > 1 {
		return types.MethodHybrid
	}
	return methods[0]
}

func clinicalContext(a *types.Artifact) map[string]any {
	ctx := map[string]any{}
	switch a.Type {
	case types.ArtifactMedication:
		if a.Medication != nil {
			ctx["dosage"] = a.Medication.Dosage
			ctx["frequency"] = a.Medication.Frequency
			ctx["route"] = a.Medication.Route
		}
	case types.ArtifactCondition:
		if a.Condition != nil {
			ctx["status"] = a.Condition.Status
			ctx["severity"] = a.Condition.Severity
		}
	case types.ArtifactCarePlan:
		if a.CarePlan != nil {
			ctx["goal_count"] = len(a.CarePlan.Goals)
			ctx["intervention_count"] = len(a.CarePlan.Interventions)
		}
	}
	return ctx
}

func entitiesAsMap(ents []entity.Entity) map[string]any {
	out := make(map[string]any, len(ents))
	for _, e := range ents {
		out[e.Normalized] = string(e.Type)
	}
	return out
}
