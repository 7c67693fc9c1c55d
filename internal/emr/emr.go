// Package emr declares the external EMR collaborator contract. The HTTP
// client that actually talks to a remote EMR is out of scope; this package
// only defines the interface the rest of the system depends on and the raw
// record shape the Normalizer consumes.
package emr

import "context"

// RawRecord is a single heterogeneous record as returned by the EMR. Field
// names vary by source system (e.g. "medication_name" vs "name",
// "prescribed_at" vs "start_date"); the Normalizer is solely responsible
// for reconciling that variance. Nested values (e.g. content.text) appear
// as nested map[string]any.
type RawRecord map[string]any

// Fetcher is the EMR collaborator contract consumed by the ingestion
// pipeline. Every method returns raw, unnormalized records for a single
// patient; the ingestion pipeline routes every call through the circuit
// breaker keyed "emr", so implementations do not wrap calls themselves.
type Fetcher interface {
	FetchMedications(ctx context.Context, patientID string) ([]RawRecord, error)
	FetchConditions(ctx context.Context, patientID string) ([]RawRecord, error)
	FetchCarePlans(ctx context.Context, patientID string) ([]RawRecord, error)
	FetchNotes(ctx context.Context, patientID string) ([]RawRecord, error)
	FetchAllergies(ctx context.Context, patientID string) ([]RawRecord, error)
	FetchLabObservations(ctx context.Context, patientID string) ([]RawRecord, error)
	FetchVitals(ctx context.Context, patientID string) ([]RawRecord, error)
	FetchAppointments(ctx context.Context, patientID string) ([]RawRecord, error)
}
