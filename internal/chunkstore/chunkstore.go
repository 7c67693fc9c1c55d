// Package chunkstore implements the Chunk Store (spec §4.4): the
// persistent, queryable home for Chunks. Store provides the shared
// contract; InMemoryStore and the Postgres-backed store in store_pg.go
// both satisfy it.
package chunkstore

import (
	"context"
	"strings"
	"time"

	"github.com/dangrewal8/patientqa/internal/types"
)

// Filter combines its non-zero predicates with AND, per spec §4.4.
type Filter struct {
	PatientID    string
	ArtifactID   string
	ArtifactType types.ArtifactType
	DateFrom     *time.Time
	DateTo       *time.Time
	EntityType   string
	EntityText   string // case-insensitive substring match on entities' normalized text
	Limit        int
	Offset       int
}

// StoreResult reports per-call outcome of Store, per spec §4.4's
// atomic-per-chunk semantics: one chunk's failure never rolls back
// chunks that stored successfully in the same call.
type StoreResult struct {
	Stored  int
	Skipped int
	Errors  map[string]error // chunk_id -> error, for chunks that failed to store
}

// Statistics is the shape getStatistics returns.
type Statistics struct {
	CountsByType  map[types.ArtifactType]int
	PatientCount  int
	ArtifactCount int
	OldestDate    *time.Time
	NewestDate    *time.Time
}

// Store is the Chunk Store contract. Every method must be safe for
// concurrent use.
type Store interface {
	Store(ctx context.Context, chunks []*types.ChunkMetadata) (StoreResult, error)
	Retrieve(ctx context.Context, chunkID string) (*types.ChunkMetadata, bool, error)
	Query(ctx context.Context, filter Filter) ([]*types.ChunkMetadata, error)
	DeleteByArtifact(ctx context.Context, artifactID string) (int, error)
	DeleteByPatient(ctx context.Context, patientID string) (int, error)
	Clear(ctx context.Context) error
	GarbageCollect(ctx context.Context, cutoff time.Time) (int, error)
	GetStatistics(ctx context.Context) (Statistics, error)
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func matchesFilter(c *types.ChunkMetadata, f Filter) bool {
	if f.PatientID != "" && c.PatientID != f.PatientID {
		return false
	}
	if f.ArtifactID != "" && c.ArtifactID != f.ArtifactID {
		return false
	}
	if f.ArtifactType != "" && c.ArtifactType != f.ArtifactType {
		return false
	}
	if f.DateFrom != nil && c.OccurredAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && c.OccurredAt.After(*f.DateTo) {
		return false
	}
	if f.EntityType != "" || f.EntityText != "" {
		if !hasMatchingEntity(c, f.EntityType, f.EntityText) {
			return false
		}
	}
	return true
}

func hasMatchingEntity(c *types.ChunkMetadata, entityType, entityText string) bool {
	wantText := strings.ToLower(entityText)
	for _, e := range c.Entities {
		if entityType != "" && e.Type != entityType {
			continue
		}
		if entityText != "" && !strings.Contains(strings.ToLower(e.Normalized), wantText) {
			continue
		}
		return true
	}
	return false
}
