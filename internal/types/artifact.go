// Package types holds the shared data model described by the system's
// indexing and retrieval pipeline: artifacts ingested from the EMR, the
// relationships and enrichment derived from them, the chunks that make up
// the retrieval unit, and the query/response/session/audit envelopes that
// flow through the rest of the packages in this module.
package types

import (
	"fmt"
	"time"
)

// ArtifactType enumerates the kinds of clinical artifact the Normalizer can
// produce. The zero value is not a valid artifact type.
type ArtifactType string

const (
	ArtifactNote            ArtifactType = "note"
	ArtifactDocument        ArtifactType = "document"
	ArtifactMedication      ArtifactType = "medication"
	ArtifactCondition       ArtifactType = "condition"
	ArtifactAllergy         ArtifactType = "allergy"
	ArtifactCarePlan        ArtifactType = "care_plan"
	ArtifactFormResponse    ArtifactType = "form_response"
	ArtifactMessage         ArtifactType = "message"
	ArtifactLabObservation  ArtifactType = "lab_observation"
	ArtifactVital           ArtifactType = "vital"
	ArtifactAppointment     ArtifactType = "appointment"
	ArtifactSuperbill       ArtifactType = "superbill"
	ArtifactInsurancePolicy ArtifactType = "insurance_policy"
	ArtifactTask            ArtifactType = "task"
	ArtifactFamilyHistory   ArtifactType = "family_history"
	ArtifactIntakeFlow      ArtifactType = "intake_flow"
	ArtifactForm            ArtifactType = "form"
)

// Valid reports whether t is one of the artifact types the Normalizer is
// allowed to emit.
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactNote, ArtifactDocument, ArtifactMedication, ArtifactCondition,
		ArtifactAllergy, ArtifactCarePlan, ArtifactFormResponse, ArtifactMessage,
		ArtifactLabObservation, ArtifactVital, ArtifactAppointment, ArtifactSuperbill,
		ArtifactInsurancePolicy, ArtifactTask, ArtifactFamilyHistory, ArtifactIntakeFlow,
		ArtifactForm:
		return true
	}
	return false
}

// Artifact is a normalized source record produced by the Normalizer (L0)
// from a raw, heterogeneous EMR payload.
//
// Once written, an Artifact is immutable; a later EMR revision is modeled as
// a new Artifact sharing the same ID, re-ingested through the full pipeline.
type Artifact struct {
	ID         string         `json:"id"`
	PatientID  string         `json:"patient_id"`
	Type       ArtifactType   `json:"type"`
	Author     *string        `json:"author,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Title      *string        `json:"title,omitempty"`
	Text       string         `json:"text"`
	SourceURL  string         `json:"source_url"`
	Meta       map[string]any `json:"meta,omitempty"`

	// Typed, per-artifact-type fields. Only the field matching Type is ever
	// populated; the rest are nil. This is the "tagged variant, not a bigger
	// meta bag" shape called for by the redesign notes: strongly-typed
	// fields for what downstream components actually branch on, with Meta
	// left as the passthrough bag for everything else.
	Medication *MedicationFields `json:"medication,omitempty"`
	Condition  *ConditionFields  `json:"condition,omitempty"`
	CarePlan   *CarePlanFields   `json:"care_plan,omitempty"`
}

// MedicationFields carries the typed fields the Relationship Extractor and
// Artifact Enricher need out of a medication artifact.
type MedicationFields struct {
	Name                  string
	Dosage                string
	Frequency             string
	Route                 string
	Code                  string
	Indication            string
	IndicationCode        string
	RelatedConditionIDs   []string
	Prescriber            string
	PrescribedAt          *time.Time
}

// ConditionFields carries the typed fields the Relationship Extractor and
// Artifact Enricher need out of a condition artifact.
type ConditionFields struct {
	Name         string
	Code         string
	Status       string // e.g. active, resolved
	Severity     string
	DiagnosedAt  *time.Time
	ClinicalNote string
}

// CarePlanFields carries the typed fields the Relationship Extractor and
// Artifact Enricher need out of a care-plan artifact.
type CarePlanFields struct {
	Title               string
	Description          string
	AddressedConditionIDs []string
	Goals                []string
	Interventions        []string
	Rationale            string
}

// Validate checks the Artifact invariants from the data model: Text must be
// non-empty, OccurredAt must parse as a valid instant no more than one day
// in the future, and Type must be a recognized artifact type.
func (a *Artifact) Validate(now time.Time) error {
	if a.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if a.PatientID == "" {
		return fmt.Errorf("artifact %s: patient_id is required", a.ID)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("artifact %s: invalid type %q", a.ID, a.Type)
	}
	if a.Text == "" {
		return fmt.Errorf("artifact %s: text must be non-empty after normalization", a.ID)
	}
	if a.OccurredAt.IsZero() {
		return fmt.Errorf("artifact %s: occurred_at does not parse as a valid instant", a.ID)
	}
	if a.OccurredAt.After(now.Add(24 * time.Hour)) {
		return fmt.Errorf("artifact %s: occurred_at %s is more than one day in the future", a.ID, a.OccurredAt)
	}
	return nil
}
