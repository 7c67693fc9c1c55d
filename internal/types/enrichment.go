package types

import (
	"time"

	"github.com/dangrewal8/patientqa/pkg/sets"
)

// EnrichmentMethod records how an EnrichedArtifact or ClinicalRelationship
// was derived.
type EnrichmentMethod string

const (
	MethodExplicitAPI         EnrichmentMethod = "explicit_api"
	MethodLLMInferred         EnrichmentMethod = "llm_inferred"
	MethodTemporalCorrelation EnrichmentMethod = "temporal_correlation"
	MethodHybrid              EnrichmentMethod = "hybrid"
)

// CurrentEnrichmentVersion is stamped onto every EnrichedArtifact produced by
// this build of the Artifact Enricher; it is bumped whenever the enrichment
// algorithm changes in a way that would change enriched_text for the same
// input.
const CurrentEnrichmentVersion = "enrich-v1"

// EnrichedArtifact is the Artifact Enricher's output: original text plus
// inlined relationship context, extracted entities, and the two quality
// scores defined in spec §4.3.
//
// Lifecycle: created by the Enricher; a later enrichment run of the same
// artifact_id replaces the whole record (upsert), never a partial field
// update.
type EnrichedArtifact struct {
	ArtifactID   string
	PatientID    string
	ArtifactType ArtifactType
	OccurredAt   time.Time

	OriginalText string
	EnrichedText string

	ExtractedEntities map[string]any
	ClinicalContext   map[string]any

	RelatedArtifactIDs  sets.Set[string]
	RelationshipSummary string

	EnrichmentVersion string
	EnrichedAt        time.Time
	EnrichmentMethod  EnrichmentMethod

	CompletenessScore float64
	ContextDepthScore float64
}

// RelationshipType enumerates the directed, typed edges the Relationship
// Extractor draws between artifacts.
type RelationshipType string

const (
	RelMedicationIndication RelationshipType = "medication_indication"
	RelProcedureDiagnosis    RelationshipType = "procedure_diagnosis"
	RelCarePlanCondition     RelationshipType = "care_plan_condition"
	RelLabCondition          RelationshipType = "lab_condition"
	RelSymptomDiagnosis      RelationshipType = "symptom_diagnosis"
	RelMedicationInteraction RelationshipType = "medication_interaction"
)

// ClinicalRelationship is a typed directed edge between two artifacts
// belonging to the same patient.
type ClinicalRelationship struct {
	RelationshipID   string
	RelationshipType RelationshipType

	SourceArtifactID   string
	SourceArtifactType ArtifactType
	SourceEntityText   string

	TargetArtifactID   string
	TargetArtifactType ArtifactType
	TargetEntityText   string

	PatientID        string
	ConfidenceScore  float64
	ExtractionMethod EnrichmentMethod

	EstablishedAt time.Time
	EndedAt       *time.Time
	ClinicalNotes *string

	EvidenceChunkIDs sets.Set[string]
}

// Validate enforces the ClinicalRelationship invariant that source and
// target differ. It does not check that both endpoints belong to
// PatientID: the edge holds only the endpoints' artifact IDs.
func (r *ClinicalRelationship) Validate() error {
	if r.SourceArtifactID == r.TargetArtifactID {
		return errRelationshipSelfLoop(r.RelationshipID)
	}
	return nil
}

func errRelationshipSelfLoop(id string) error {
	return &relationshipError{relationshipID: id, msg: "source_artifact_id equals target_artifact_id"}
}

type relationshipError struct {
	relationshipID string
	msg            string
}

func (e *relationshipError) Error() string {
	return "relationship " + e.relationshipID + ": " + e.msg
}
