package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
	"github.com/dangrewal8/patientqa/pkg/sets"
)

// PGConfig holds the connection pool settings for PGStore, mirroring the
// pool knobs the EMR/embedder collaborators already expose.
type PGConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PGStore is the database-backed Chunk Store variant. It talks to the
// chunk_metadata table from spec §6.2 with raw SQL; no ORM sits between it
// and Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore opens a connection pool against cfg.DSN and verifies it with a
// ping before returning.
func NewPGStore(ctx context.Context, cfg PGConfig) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "chunkstore.NewPGStore", "parse dsn", err)
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
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.NewPGStore", "open pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.NewPGStore", "ping", err)
	}
	return &PGStore{pool: pool}, nil
}

// NewPGStoreFromPool wraps an already-constructed pool, for tests that stand
// up a pool against a test container or mock.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

const chunkColumns = `chunk_id, artifact_id, patient_id, artifact_type, chunk_text, enriched_text,
	extracted_entities, relationship_ids, context_expansion_level, offset_start, offset_end,
	occurred_at, author, source_url, created_at`

func (s *PGStore) Store(ctx context.Context, chunks []*types.ChunkMetadata) (StoreResult, error) {
	result := StoreResult{Errors: map[string]error{}}
	for _, c := range chunks {
		if c.CharOffsets.Start < 0 || c.CharOffsets.Start >= c.CharOffsets.End {
			result.Errors[c.ChunkID] = invalidOffsetsError(c)
			continue
		}
		// Entities is the only entity representation this table persists;
		// ExtractedEntities is an EnrichedArtifact-side concern and has no
		// column of its own here (see chunk_metadata in spec §6.2).
		entities, err := json.Marshal(c.Entities)
		if err != nil {
			result.Errors[c.ChunkID] = fmt.Errorf("chunk %s: marshal entities: %w", c.ChunkID, err)
			continue
		}

		tag, err := s.pool.Exec(ctx, `
			INSERT INTO chunk_metadata (`+chunkColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (chunk_id) DO NOTHING`,
			c.ChunkID, c.ArtifactID, c.PatientID, c.ArtifactType, c.ChunkText, c.EnrichedText,
			entities, relationshipIDSlice(c.RelationshipIDs), int(c.ContextExpansionLevel),
			c.CharOffsets.Start, c.CharOffsets.End, c.OccurredAt, c.Author, c.SourceURL, nowOrDefault(c.CreatedAt),
		)
		if err != nil {
			result.Errors[c.ChunkID] = xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.Store", "insert chunk", err)
			continue
		}
		// chunk_id is deterministic from (artifact_id, offsets): a conflict
		// means the exact same chunk already exists, so ON CONFLICT DO
		// NOTHING's zero-rows-affected is a full skip, never an update.
		if tag.RowsAffected() == 0 {
			result.Skipped++
			continue
		}
		result.Stored++
	}
	return result, nil
}

func nowOrDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func relationshipIDSlice(s sets.Set[string]) []string {
	if s == nil {
		return nil
	}
	return s.ToSlice()
}

func (s *PGStore) Retrieve(ctx context.Context, chunkID string) (*types.ChunkMetadata, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chunkColumns+` FROM chunk_metadata WHERE chunk_id = $1`, chunkID)
	c, err := scanChunk(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.Retrieve", "query chunk", err)
	}
	return c, true, nil
}

// Query builds the filter's predicates into a single parameterized WHERE
// clause, matching matchesFilter's AND semantics, then sorts and paginates
// in SQL rather than in memory.
func (s *PGStore) Query(ctx context.Context, filter Filter) ([]*types.ChunkMetadata, error) {
	where := "TRUE"
	args := []any{}
	add := func(clause string, val any) {
		args = append(args, val)
		where += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}

	if filter.PatientID != "" {
		add("patient_id", filter.PatientID)
	}
	if filter.ArtifactID != "" {
		add("artifact_id", filter.ArtifactID)
	}
	if filter.ArtifactType != "" {
		add("artifact_type", filter.ArtifactType)
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}
	if filter.EntityText != "" || filter.EntityType != "" {
		// extracted_entities holds the chunk's []types.ChunkEntity as a JSON
		// array (untagged, so keys are the Go field names); entity
		// filtering scans its elements rather than a structured join,
		// matching the single-table layout §6.2 lays out for chunk_metadata.
		args = append(args, "%"+filter.EntityText+"%")
		where += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM jsonb_array_elements(extracted_entities::jsonb) e WHERE e->>'Normalized' ILIKE $%d", len(args))
		if filter.EntityType != "" {
			args = append(args, filter.EntityType)
			where += fmt.Sprintf(" AND e->>'Type' = $%d", len(args))
		}
		where += ")"
	}

	query := `SELECT ` + chunkColumns + ` FROM chunk_metadata WHERE ` + where + ` ORDER BY occurred_at DESC, chunk_id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.Query", "query chunks", err)
	}
	defer rows.Close()

	var out []*types.ChunkMetadata
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "chunkstore.Query", "scan chunk", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) DeleteByArtifact(ctx context.Context, artifactID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunk_metadata WHERE artifact_id = $1`, artifactID)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.DeleteByArtifact", "delete", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) DeleteByPatient(ctx context.Context, patientID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunk_metadata WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.DeleteByPatient", "delete", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE chunk_metadata`); err != nil {
		return xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.Clear", "truncate", err)
	}
	return nil
}

func (s *PGStore) GarbageCollect(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunk_metadata WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.GarbageCollect", "delete", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) GetStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{CountsByType: map[types.ArtifactType]int{}}

	rows, err := s.pool.Query(ctx, `SELECT artifact_type, count(*) FROM chunk_metadata GROUP BY artifact_type`)
	if err != nil {
		return stats, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.GetStatistics", "count by type", err)
	}
	for rows.Next() {
		var t types.ArtifactType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return stats, xerrors.Wrap(xerrors.KindInternal, "chunkstore.GetStatistics", "scan count", err)
		}
		stats.CountsByType[t] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.GetStatistics", "count by type", err)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT count(DISTINCT patient_id), count(DISTINCT artifact_id), min(occurred_at), max(occurred_at)
		FROM chunk_metadata`)
	var oldest, newest *time.Time
	if err := row.Scan(&stats.PatientCount, &stats.ArtifactCount, &oldest, &newest); err != nil {
		return stats, xerrors.Wrap(xerrors.KindUnavailable, "chunkstore.GetStatistics", "aggregate", err)
	}
	stats.OldestDate = oldest
	stats.NewestDate = newest
	return stats, nil
}

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*types.ChunkMetadata, error) {
	var c types.ChunkMetadata
	var entitiesRaw []byte
	var relationshipIDs []string
	var contextLevel int
	var offsetStart, offsetEnd int

	err := row.Scan(
		&c.ChunkID, &c.ArtifactID, &c.PatientID, &c.ArtifactType, &c.ChunkText, &c.EnrichedText,
		&entitiesRaw, &relationshipIDs, &contextLevel, &offsetStart, &offsetEnd,
		&c.OccurredAt, &c.Author, &c.SourceURL, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CharOffsets = types.CharOffsets{Start: offsetStart, End: offsetEnd}
	c.ContextExpansionLevel = types.ContextExpansionLevel(contextLevel)
	c.RelationshipIDs = sets.NewHashSet[string](len(relationshipIDs))
	c.RelationshipIDs.AddAll(relationshipIDs...)

	if len(entitiesRaw) > 0 {
		if err := json.Unmarshal(entitiesRaw, &c.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	return &c, nil
}
