package enrichment

import (
	"context"
	"sync"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// Store is the Enrichment Store contract (spec §3's ownership rule: "the
// Enrichment Store exclusively owns EnrichedArtifact and
// ClinicalRelationship"). InMemoryStore and the Postgres-backed PGStore in
// store_pg.go both satisfy it; InMemoryStore is the one the in-process
// pipeline and unit tests use, mirroring chunkstore.Store's split.
type Store interface {
	// StoreEnrichedArtifacts upserts by artifact_id — a later enrichment
	// run of the same artifact replaces the whole record, never a partial
	// field update, per spec §3's EnrichedArtifact lifecycle note.
	StoreEnrichedArtifacts(ctx context.Context, artifacts []*types.EnrichedArtifact) error
	GetEnrichedArtifact(ctx context.Context, artifactID string) (*types.EnrichedArtifact, bool, error)
	GetEnrichedArtifactsByPatient(ctx context.Context, patientID string) ([]*types.EnrichedArtifact, error)

	StoreRelationships(ctx context.Context, relationships []*types.ClinicalRelationship) error
	GetRelationshipsByPatient(ctx context.Context, patientID string) ([]*types.ClinicalRelationship, error)
}

// InMemoryStore is the in-process Enrichment Store, grounded on the same
// mutex-guarded-map shape chunkstore.InMemoryStore and conversation.Manager
// use for their own shared mutable state (spec §5: "each MUST serialize
// mutations").
type InMemoryStore struct {
	mu sync.RWMutex

	enriched          map[string]*types.EnrichedArtifact   // artifact_id -> record
	enrichedByPatient map[string]map[string]struct{}       // patient_id -> artifact_ids

	relationships          map[string]*types.ClinicalRelationship // relationship_id -> record
	relationshipsByPatient map[string]map[string]struct{}         // patient_id -> relationship_ids
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		enriched:               map[string]*types.EnrichedArtifact{},
		enrichedByPatient:       map[string]map[string]struct{}{},
		relationships:           map[string]*types.ClinicalRelationship{},
		relationshipsByPatient:  map[string]map[string]struct{}{},
	}
}

// StoreEnrichedArtifacts replaces each artifact's record wholesale. Spec §5
// models this as one transaction per call for the database-backed variant;
// the in-memory variant has no partial-failure mode to roll back, so every
// call always succeeds in full.
func (s *InMemoryStore) StoreEnrichedArtifacts(_ context.Context, artifacts []*types.EnrichedArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range artifacts {
		s.enriched[a.ArtifactID] = a
		if s.enrichedByPatient[a.PatientID] == nil {
			s.enrichedByPatient[a.PatientID] = map[string]struct{}{}
		}
		s.enrichedByPatient[a.PatientID][a.ArtifactID] = struct{}{}
	}
	return nil
}

func (s *InMemoryStore) GetEnrichedArtifact(_ context.Context, artifactID string) (*types.EnrichedArtifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.enriched[artifactID]
	return a, ok, nil
}

func (s *InMemoryStore) GetEnrichedArtifactsByPatient(_ context.Context, patientID string) ([]*types.EnrichedArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.enrichedByPatient[patientID]
	out := make([]*types.EnrichedArtifact, 0, len(ids))
	for id := range ids {
		out = append(out, s.enriched[id])
	}
	return out, nil
}

func (s *InMemoryStore) StoreRelationships(_ context.Context, relationships []*types.ClinicalRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range relationships {
		if err := r.Validate(); err != nil {
			return xerrors.Validation("enrichment.StoreRelationships", err.Error())
		}
		s.relationships[r.RelationshipID] = r
		if s.relationshipsByPatient[r.PatientID] == nil {
			s.relationshipsByPatient[r.PatientID] = map[string]struct{}{}
		}
		s.relationshipsByPatient[r.PatientID][r.RelationshipID] = struct{}{}
	}
	return nil
}

func (s *InMemoryStore) GetRelationshipsByPatient(_ context.Context, patientID string) ([]*types.ClinicalRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.relationshipsByPatient[patientID]
	out := make([]*types.ClinicalRelationship, 0, len(ids))
	for id := range ids {
		out = append(out, s.relationships[id])
	}
	return out, nil
}
