package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
	"github.com/dangrewal8/patientqa/pkg/sets"
)

// PGStore is the database-backed Enrichment Store variant, grounded on the
// same raw-SQL-over-pgxpool idiom as chunkstore.PGStore (same PGConfig pool
// knobs; chunkstore.PGConfig is reused here rather than duplicated, since
// both stores are configured identically and share a connection pool in
// practice).
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore opens a connection pool against cfg.DSN and verifies it with a
// ping before returning.
func NewPGStore(ctx context.Context, cfg chunkstore.PGConfig) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "enrichment.NewPGStore", "parse dsn", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "enrichment.NewPGStore", "open pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "enrichment.NewPGStore", "ping", err)
	}
	return &PGStore{pool: pool}, nil
}

// NewPGStoreFromPool wraps an already-constructed pool, for tests that
// stand up a pool against a test container or mock.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PGStore) Close() { s.pool.Close() }

const enrichedArtifactColumns = `artifact_id, patient_id, artifact_type, occurred_at, original_text, enriched_text,
	extracted_entities, clinical_context, related_artifact_ids, relationship_summary,
	enrichment_version, enriched_at, enrichment_method, completeness_score, context_depth_score, updated_at`

// StoreEnrichedArtifacts writes every record in one transaction, rolling
// back entirely if any row fails, per spec §5: "database writes within a
// single call ... execute inside one transaction; rollback on any row
// failure" — in contrast to chunkstore.PGStore.Store's deliberately
// per-chunk atomicity, because chunk_metadata's contract explicitly
// requires partial success to be reportable, while the Enrichment Store's
// upsert has no equivalent per-row reporting need.
func (s *PGStore) StoreEnrichedArtifacts(ctx context.Context, artifacts []*types.EnrichedArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.KindUnavailable, "enrichment.StoreEnrichedArtifacts", "begin tx", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range artifacts {
		extractedEntities, err := json.Marshal(a.ExtractedEntities)
		if err != nil {
			return xerrors.Wrap(xerrors.KindInternal, "enrichment.StoreEnrichedArtifacts", "marshal extracted_entities", err)
		}
		clinicalContext, err := json.Marshal(a.ClinicalContext)
		if err != nil {
			return xerrors.Wrap(xerrors.KindInternal, "enrichment.StoreEnrichedArtifacts", "marshal clinical_context", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO enriched_artifacts (`+enrichedArtifactColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (artifact_id) DO UPDATE SET
				patient_id = EXCLUDED.patient_id,
				artifact_type = EXCLUDED.artifact_type,
				occurred_at = EXCLUDED.occurred_at,
				original_text = EXCLUDED.original_text,
				enriched_text = EXCLUDED.enriched_text,
				extracted_entities = EXCLUDED.extracted_entities,
				clinical_context = EXCLUDED.clinical_context,
				related_artifact_ids = EXCLUDED.related_artifact_ids,
				relationship_summary = EXCLUDED.relationship_summary,
				enrichment_version = EXCLUDED.enrichment_version,
				enriched_at = EXCLUDED.enriched_at,
				enrichment_method = EXCLUDED.enrichment_method,
				completeness_score = EXCLUDED.completeness_score,
				context_depth_score = EXCLUDED.context_depth_score,
				updated_at = EXCLUDED.updated_at`,
			a.ArtifactID, a.PatientID, a.ArtifactType, a.OccurredAt, a.OriginalText, a.EnrichedText,
			extractedEntities, clinicalContext, relatedArtifactIDSlice(a.RelatedArtifactIDs), a.RelationshipSummary,
			a.EnrichmentVersion, a.EnrichedAt, a.EnrichmentMethod, a.CompletenessScore, a.ContextDepthScore, nowOrDefault(time.Time{}),
		)
		if err != nil {
			return xerrors.Wrap(xerrors.KindUnavailable, "enrichment.StoreEnrichedArtifacts", "upsert artifact "+a.ArtifactID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return xerrors.Wrap(xerrors.KindUnavailable, "enrichment.StoreEnrichedArtifacts", "commit tx", err)
	}
	return nil
}

func (s *PGStore) GetEnrichedArtifact(ctx context.Context, artifactID string) (*types.EnrichedArtifact, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+enrichedArtifactColumns+` FROM enriched_artifacts WHERE artifact_id = $1`, artifactID)
	a, err := scanEnrichedArtifact(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, xerrors.Wrap(xerrors.KindUnavailable, "enrichment.GetEnrichedArtifact", "query", err)
	}
	return a, true, nil
}

func (s *PGStore) GetEnrichedArtifactsByPatient(ctx context.Context, patientID string) ([]*types.EnrichedArtifact, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+enrichedArtifactColumns+` FROM enriched_artifacts WHERE patient_id = $1 ORDER BY occurred_at DESC`, patientID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "enrichment.GetEnrichedArtifactsByPatient", "query", err)
	}
	defer rows.Close()

	var out []*types.EnrichedArtifact
	for rows.Next() {
		a, err := scanEnrichedArtifact(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "enrichment.GetEnrichedArtifactsByPatient", "scan", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const relationshipColumns = `relationship_id, relationship_type, source_artifact_id, source_artifact_type, source_entity_text,
	target_artifact_id, target_artifact_type, target_entity_text, patient_id, confidence_score, extraction_method,
	established_at, ended_at, clinical_notes, evidence_chunk_ids`

func (s *PGStore) StoreRelationships(ctx context.Context, relationships []*types.ClinicalRelationship) error {
	if len(relationships) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.KindUnavailable, "enrichment.StoreRelationships", "begin tx", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range relationships {
		if err := r.Validate(); err != nil {
			return xerrors.Validation("enrichment.StoreRelationships", err.Error())
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO clinical_relationships (`+relationshipColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (relationship_id) DO UPDATE SET
				confidence_score = EXCLUDED.confidence_score,
				ended_at = EXCLUDED.ended_at,
				clinical_notes = EXCLUDED.clinical_notes,
				evidence_chunk_ids = EXCLUDED.evidence_chunk_ids`,
			r.RelationshipID, r.RelationshipType, r.SourceArtifactID, r.SourceArtifactType, r.SourceEntityText,
			r.TargetArtifactID, r.TargetArtifactType, r.TargetEntityText, r.PatientID, r.ConfidenceScore, r.ExtractionMethod,
			r.EstablishedAt, r.EndedAt, r.ClinicalNotes, relatedArtifactIDSlice(r.EvidenceChunkIDs),
		)
		if err != nil {
			return xerrors.Wrap(xerrors.KindUnavailable, "enrichment.StoreRelationships", "upsert relationship "+r.RelationshipID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return xerrors.Wrap(xerrors.KindUnavailable, "enrichment.StoreRelationships", "commit tx", err)
	}
	return nil
}

func (s *PGStore) GetRelationshipsByPatient(ctx context.Context, patientID string) ([]*types.ClinicalRelationship, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+relationshipColumns+` FROM clinical_relationships WHERE patient_id = $1 ORDER BY established_at DESC`, patientID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "enrichment.GetRelationshipsByPatient", "query", err)
	}
	defer rows.Close()

	var out []*types.ClinicalRelationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "enrichment.GetRelationshipsByPatient", "scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan
// — the same narrowing chunkstore.PGStore and history.Store use.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrichedArtifact(row rowScanner) (*types.EnrichedArtifact, error) {
	var a types.EnrichedArtifact
	var extractedEntitiesRaw, clinicalContextRaw []byte
	var relatedIDs []string
	var updatedAt time.Time

	err := row.Scan(
		&a.ArtifactID, &a.PatientID, &a.ArtifactType, &a.OccurredAt, &a.OriginalText, &a.EnrichedText,
		&extractedEntitiesRaw, &clinicalContextRaw, &relatedIDs, &a.RelationshipSummary,
		&a.EnrichmentVersion, &a.EnrichedAt, &a.EnrichmentMethod, &a.CompletenessScore, &a.ContextDepthScore, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.RelatedArtifactIDs = sets.NewHashSet[string](len(relatedIDs))
	a.RelatedArtifactIDs.AddAll(relatedIDs...)
	if len(extractedEntitiesRaw) > 0 {
		if err := json.Unmarshal(extractedEntitiesRaw, &a.ExtractedEntities); err != nil {
			return nil, fmt.Errorf("unmarshal extracted_entities: %w", err)
		}
	}
	if len(clinicalContextRaw) > 0 {
		if err := json.Unmarshal(clinicalContextRaw, &a.ClinicalContext); err != nil {
			return nil, fmt.Errorf("unmarshal clinical_context: %w", err)
		}
	}
	return &a, nil
}

func scanRelationship(row rowScanner) (*types.ClinicalRelationship, error) {
	var r types.ClinicalRelationship
	var evidenceChunkIDs []string

	err := row.Scan(
		&r.RelationshipID, &r.RelationshipType, &r.SourceArtifactID, &r.SourceArtifactType, &r.SourceEntityText,
		&r.TargetArtifactID, &r.TargetArtifactType, &r.TargetEntityText, &r.PatientID, &r.ConfidenceScore, &r.ExtractionMethod,
		&r.EstablishedAt, &r.EndedAt, &r.ClinicalNotes, &evidenceChunkIDs,
	)
	if err != nil {
		return nil, err
	}
	r.EvidenceChunkIDs = sets.NewHashSet[string](len(evidenceChunkIDs))
	r.EvidenceChunkIDs.AddAll(evidenceChunkIDs...)
	return &r, nil
}

func relatedArtifactIDSlice(s sets.Set[string]) []string {
	if s == nil {
		return nil
	}
	return s.ToSlice()
}

func nowOrDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
