package emr

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// FileFetcher is a dev/test Fetcher backed by local JSON fixtures: one file
// per record category, per patient, laid out as
// <dir>/<patientID>/<category>.json, each holding a JSON array of raw
// records. The production HTTP-backed Fetcher talking to a real EMR is out
// of scope (see this package's doc comment); FileFetcher exists so the CLI
// entrypoint and integration tests have something concrete to run against.
type FileFetcher struct {
	dir string
}

// NewFileFetcher constructs a FileFetcher rooted at dir.
func NewFileFetcher(dir string) *FileFetcher {
	return &FileFetcher{dir: dir}
}

var _ Fetcher = (*FileFetcher)(nil)

func (f *FileFetcher) FetchMedications(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "medications")
}

func (f *FileFetcher) FetchConditions(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "conditions")
}

func (f *FileFetcher) FetchCarePlans(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "care_plans")
}

func (f *FileFetcher) FetchNotes(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "notes")
}

func (f *FileFetcher) FetchAllergies(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "allergies")
}

func (f *FileFetcher) FetchLabObservations(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "lab_observations")
}

func (f *FileFetcher) FetchVitals(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "vitals")
}

func (f *FileFetcher) FetchAppointments(ctx context.Context, patientID string) ([]RawRecord, error) {
	return f.read(patientID, "appointments")
}

// read returns an empty slice, not an error, when the fixture file for a
// category doesn't exist — a patient with no recorded allergies looks
// exactly like a patient whose allergies file is absent.
func (f *FileFetcher) read(patientID, category string) ([]RawRecord, error) {
	path := filepath.Join(f.dir, patientID, category+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "emr.FileFetcher", "read "+path, err)
	}

	var records []RawRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, xerrors.Wrap(xerrors.KindValidation, "emr.FileFetcher", "parse "+path, err)
	}
	return records, nil
}
