// Package normalize implements the Normalizer (spec §4.0 / L0): it
// canonicalizes heterogeneous raw EMR records into validated Artifact
// records. All field-name aliasing lives here; every downstream component
// only ever sees the canonical types.Artifact shape (spec §9: "isolate
// all field-name aliasing inside the Normalizer").
package normalize

import (
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// aliasTable lists, per canonical field, every raw key the EMR is known to
// use instead. Checked in order; first present key wins.
type aliasTable map[string][]string

var textAliases = aliasTable{
	"text":        {"text", "content.text", "note_text", "body"},
	"title":       {"title", "subject", "name"},
	"author":      {"author", "provider", "clinician"},
	"occurred_at": {"occurred_at", "prescribed_at", "start_date", "date", "created_at"},
	"source_url":  {"source_url", "url", "link"},
}

var medicationAliases = aliasTable{
	"name":                  {"medication_name", "name", "drug_name"},
	"dosage":                {"dosage", "dose", "strength"},
	"frequency":             {"frequency", "freq", "sig"},
	"route":                 {"route", "administration_route"},
	"code":                  {"code", "ndc_code", "rxnorm_code"},
	"indication":            {"indication", "reason", "diagnosis"},
	"indication_code":       {"indication_code", "diagnosis_code"},
	"prescriber":            {"prescriber", "prescribed_by", "provider"},
	"prescribed_at":         {"prescribed_at", "start_date", "date_prescribed"},
	"related_condition_ids": {"related_condition_ids", "condition_ids", "linked_conditions"},
}

var conditionAliases = aliasTable{
	"name":          {"condition_name", "name", "diagnosis"},
	"code":          {"code", "icd_code", "icd10_code"},
	"status":        {"status", "clinical_status"},
	"severity":      {"severity"},
	"diagnosed_at":  {"diagnosed_at", "diagnosis_date", "onset_date"},
	"clinical_note": {"clinical_note", "notes", "comment"},
}

var carePlanAliases = aliasTable{
	"title":                   {"title", "name"},
	"description":             {"description", "summary"},
	"addressed_condition_ids": {"addressed_condition_ids", "condition_ids", "target_conditions"},
	"goals":                   {"goals"},
	"interventions":           {"interventions", "actions"},
	"rationale":               {"rationale", "justification"},
}

// Normalizer canonicalizes raw EMR records into types.Artifact.
type Normalizer struct {
	now func() time.Time
}

// New constructs a Normalizer. nowFn lets callers supply a deterministic
// clock for tests; nil defaults to time.Now.
func New(nowFn func() time.Time) *Normalizer {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Normalizer{now: nowFn}
}

// Normalize transforms one raw record of the given artifact type and
// patient into a validated Artifact. It never panics; malformed records
// surface as a xerrors.Validation error.
func (n *Normalizer) Normalize(patientID string, artifactType types.ArtifactType, rec emrRawRecord) (*types.Artifact, error) {
	if !artifactType.Valid() {
		return nil, xerrors.Validation("normalize", fmt.Sprintf("unknown artifact type %q", artifactType))
	}

	a := &types.Artifact{
		PatientID: patientID,
		Type:      artifactType,
		Meta:      map[string]any{},
	}

	id := lookupString(rec, "id", "artifact_id", "_id")
	if id == "" {
		id = lookupString(rec, "uuid")
	}
	a.ID = id

	if text := resolveString(rec, textAliases["text"]); text != "" {
		a.Text = text
	}
	if title := resolveString(rec, textAliases["title"]); title != "" {
		a.Title = &title
	}
	if author := resolveString(rec, textAliases["author"]); author != "" {
		a.Author = &author
	}
	if url := resolveString(rec, textAliases["source_url"]); url != "" {
		a.SourceURL = url
	}

	occurred, err := resolveTime(rec, textAliases["occurred_at"])
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindValidation, "normalize", "parsing occurred_at", err)
	}
	a.OccurredAt = occurred

	switch artifactType {
	case types.ArtifactMedication:
		a.Medication = n.normalizeMedication(rec)
		if a.Text == "" {
			a.Text = medicationFallbackText(a.Medication)
		}
	case types.ArtifactCondition:
		a.Condition = n.normalizeCondition(rec)
		if a.Text == "" {
			a.Text = conditionFallbackText(a.Condition)
		}
	case types.ArtifactCarePlan:
		a.CarePlan = n.normalizeCarePlan(rec)
		if a.Text == "" {
			a.Text = carePlanFallbackText(a.CarePlan)
		}
	}

	for k, v := range rec {
		a.Meta[k] = v
	}

	if err := a.Validate(n.now()); err != nil {
		return nil, xerrors.Wrap(xerrors.KindValidation, "normalize", "validating normalized artifact", err)
	}
	return a, nil
}

type emrRawRecord = map[string]any

func (n *Normalizer) normalizeMedication(rec emrRawRecord) *types.MedicationFields {
	m := &types.MedicationFields{
		Name:           resolveString(rec, medicationAliases["name"]),
		Dosage:         resolveString(rec, medicationAliases["dosage"]),
		Frequency:      resolveString(rec, medicationAliases["frequency"]),
		Route:          resolveString(rec, medicationAliases["route"]),
		Code:           resolveString(rec, medicationAliases["code"]),
		Indication:     resolveString(rec, medicationAliases["indication"]),
		IndicationCode: resolveString(rec, medicationAliases["indication_code"]),
		Prescriber:     resolveString(rec, medicationAliases["prescriber"]),
	}
	if ids, ok := resolveValue(rec, medicationAliases["related_condition_ids"]); ok {
		m.RelatedConditionIDs = cast.ToStringSlice(ids)
	}
	if t, err := resolveTime(rec, medicationAliases["prescribed_at"]); err == nil && !t.IsZero() {
		m.PrescribedAt = &t
	}
	return m
}

func (n *Normalizer) normalizeCondition(rec emrRawRecord) *types.ConditionFields {
	c := &types.ConditionFields{
		Name:         resolveString(rec, conditionAliases["name"]),
		Code:         resolveString(rec, conditionAliases["code"]),
		Status:       resolveString(rec, conditionAliases["status"]),
		Severity:     resolveString(rec, conditionAliases["severity"]),
		ClinicalNote: resolveString(rec, conditionAliases["clinical_note"]),
	}
	if t, err := resolveTime(rec, conditionAliases["diagnosed_at"]); err == nil && !t.IsZero() {
		c.DiagnosedAt = &t
	}
	return c
}

func (n *Normalizer) normalizeCarePlan(rec emrRawRecord) *types.CarePlanFields {
	cp := &types.CarePlanFields{
		Title:       resolveString(rec, carePlanAliases["title"]),
		Description: resolveString(rec, carePlanAliases["description"]),
		Rationale:   resolveString(rec, carePlanAliases["rationale"]),
	}
	if ids, ok := resolveValue(rec, carePlanAliases["addressed_condition_ids"]); ok {
		cp.AddressedConditionIDs = cast.ToStringSlice(ids)
	}
	if goals, ok := resolveValue(rec, carePlanAliases["goals"]); ok {
		cp.Goals = cast.ToStringSlice(goals)
	}
	if interventions, ok := resolveValue(rec, carePlanAliases["interventions"]); ok {
		cp.Interventions = cast.ToStringSlice(interventions)
	}
	return cp
}

func medicationFallbackText(m *types.MedicationFields) string {
	if m == nil || m.Name == "" {
		return ""
	}
	return "Medication: " + m.Name
}

func conditionFallbackText(c *types.ConditionFields) string {
	if c == nil || c.Name == "" {
		return ""
	}
	return "Condition: " + c.Name
}

func carePlanFallbackText(cp *types.CarePlanFields) string {
	if cp == nil || cp.Title == "" {
		return ""
	}
	return "Care Plan: " + cp.Title
}

// resolveValue returns the first present value among keys, supporting one
// level of dotted nesting (e.g. "content.text").
func resolveValue(rec emrRawRecord, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := lookupNested(rec, key); ok {
			return v, true
		}
	}
	return nil, false
}

func resolveString(rec emrRawRecord, keys []string) string {
	v, ok := resolveValue(rec, keys)
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

func lookupString(rec emrRawRecord, keys ...string) string {
	return resolveString(rec, keys)
}

// resolveTime parses a timestamp from the first present key among keys.
// Accepts ISO-8601 strings, epoch seconds, and epoch milliseconds.
func resolveTime(rec emrRawRecord, keys []string) (time.Time, error) {
	v, ok := resolveValue(rec, keys)
	if !ok || v == nil {
		return time.Time{}, nil
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time format %q", val)
	default:
		epoch, err := cast.ToInt64E(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized time value %v: %w", v, err)
		}
		if epoch > 1_000_000_000_000 {
			return time.UnixMilli(epoch).UTC(), nil
		}
		return time.Unix(epoch, 0).UTC(), nil
	}
}

// lookupNested resolves a key that may contain one dotted nesting level
// (spec §6.1's "nested content.text" example) against a raw record.
func lookupNested(rec emrRawRecord, key string) (any, bool) {
	if v, ok := rec[key]; ok {
		return v, true
	}
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			outer, inner := key[:i], key[i+1:]
			nested, ok := rec[outer]
			if !ok {
				continue
			}
			m, ok := nested.(map[string]any)
			if !ok {
				continue
			}
			return lookupNested(m, inner)
		}
	}
	return nil, false
}
