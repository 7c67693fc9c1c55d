// Package history implements the Conversation History store (spec §4.12):
// a durable, per-patient record of every question/answer pair with its
// quality metrics, backed by Postgres the same way internal/chunkstore's
// PGStore is.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// PGConfig mirrors chunkstore.PGConfig's pool knobs.
type PGConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store is the Postgres-backed Conversation History store. It talks to
// the conversation_history table from spec §6.2 with raw SQL.
type Store struct {
	pool             *pgxpool.Pool
	trigramAvailable bool
}

// NewStore opens a connection pool against cfg.DSN, verifies it with a
// ping, and probes for the pg_trgm extension so SearchSimilar can decide
// between a trigram similarity query and a plaintext fallback.
func NewStore(ctx context.Context, cfg PGConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "history.NewStore", "parse dsn", err)
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
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "history.NewStore", "open pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "history.NewStore", "ping", err)
	}

	s := &Store{pool: pool}
	s.trigramAvailable = s.probeTrigram(ctx)
	return s, nil
}

// NewStoreFromPool wraps an already-constructed pool, for tests that
// stand up a pool against a test container.
func NewStoreFromPool(pool *pgxpool.Pool, trigramAvailable bool) *Store {
	return &Store{pool: pool, trigramAvailable: trigramAvailable}
}

func (s *Store) probeTrigram(ctx context.Context) bool {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'pg_trgm')`).Scan(&exists)
	return err == nil && exists
}

// Close releases the underlying pool.
func (s *Store) Close() { s.pool.Close() }

const insertColumns = `patient_id, query, query_intent, query_timestamp, short_answer, detailed_summary,
	model_used, extractions, sources, retrieval_candidates, grounding_score, consistency_score,
	confidence_score, hallucination_risk, overall_quality_score, enrichment_enabled, multi_hop_enabled,
	reasoning_enabled, execution_time_ms, retrieval_time_ms, generation_time_ms, created_at, updated_at`

// Insert writes rec and returns the generated id.
func (s *Store) Insert(ctx context.Context, rec *types.ConversationRecord) (int64, error) {
	extractions, err := json.Marshal(rec.Extractions)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindValidation, "history.Insert", "marshal extractions", err)
	}
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindValidation, "history.Insert", "marshal sources", err)
	}
	candidates, err := json.Marshal(rec.RetrievalCandidates)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindValidation, "history.Insert", "marshal retrieval candidates", err)
	}

	now := nowOrDefault(rec.CreatedAt)
	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO conversation_history (`+insertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		RETURNING id`,
		rec.PatientID, rec.Query, rec.QueryIntent, rec.QueryTimestamp, rec.ShortAnswer, rec.DetailedSummary,
		rec.ModelUsed, extractions, sources, candidates, rec.Quality.GroundingScore, rec.Quality.ConsistencyScore,
		rec.Quality.ConfidenceScore, rec.Quality.HallucinationRisk, rec.Quality.OverallQualityScore,
		rec.EnrichmentEnabled, rec.MultiHopEnabled, rec.ReasoningEnabled,
		rec.ExecutionTimeMs, rec.RetrievalTimeMs, rec.GenerationTimeMs, now, now,
	).Scan(&id)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindUnavailable, "history.Insert", "insert record", err)
	}
	return id, nil
}

// UpdateMetrics updates id's quality metrics in place.
func (s *Store) UpdateMetrics(ctx context.Context, id int64, metrics types.QualityMetrics) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversation_history
		SET grounding_score = $1, consistency_score = $2, confidence_score = $3,
		    hallucination_risk = $4, overall_quality_score = $5, updated_at = $6
		WHERE id = $7`,
		metrics.GroundingScore, metrics.ConsistencyScore, metrics.ConfidenceScore,
		metrics.HallucinationRisk, metrics.OverallQualityScore, time.Now().UTC(), id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.KindUnavailable, "history.UpdateMetrics", "update record", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.NotFound("history.UpdateMetrics", fmt.Sprintf("conversation record %d not found", id))
	}
	return nil
}

// GetByPatient returns patientID's records, newest query first, paged by
// limit/offset.
func (s *Store) GetByPatient(ctx context.Context, patientID string, limit, offset int) ([]*types.ConversationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM conversation_history WHERE patient_id = $1
		ORDER BY query_timestamp DESC, id DESC`
	args := []any{patientID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "history.GetByPatient", "query records", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// SearchSimilar finds patientID's past queries most similar to queryText.
// It uses pg_trgm's similarity() when the extension is available at the
// store's construction time, and falls back to a plain ILIKE substring
// match otherwise (spec §4.12).
func (s *Store) SearchSimilar(ctx context.Context, patientID, queryText string, limit int) ([]*types.ConversationRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	if s.trigramAvailable {
		rows, err := s.pool.Query(ctx, `
			SELECT `+recordColumns+`, similarity(query, $2) AS sim
			FROM conversation_history
			WHERE patient_id = $1 AND similarity(query, $2) > 0.1
			ORDER BY sim DESC, query_timestamp DESC
			LIMIT $3`, patientID, queryText, limit)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindUnavailable, "history.SearchSimilar", "trigram query", err)
		}
		defer rows.Close()
		return scanRecordsWithTrailingColumn(rows)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM conversation_history
		WHERE patient_id = $1 AND query ILIKE $2
		ORDER BY query_timestamp DESC
		LIMIT $3`, patientID, "%"+normalizeForPlainMatch(queryText)+"%", limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "history.SearchSimilar", "plaintext query", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// normalizeForPlainMatch strips leading/trailing whitespace so the ILIKE
// fallback doesn't fail to match on accidental padding; it intentionally
// does no stemming or tokenization since plain substring match is already
// a degraded mode relative to trigram similarity.
func normalizeForPlainMatch(s string) string {
	return strings.TrimSpace(s)
}

// LowQuality returns patientID's records whose overall_quality_score is
// below threshold, newest first.
func (s *Store) LowQuality(ctx context.Context, patientID string, threshold float64, limit int) ([]*types.ConversationRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM conversation_history
		WHERE patient_id = $1 AND overall_quality_score < $2
		ORDER BY query_timestamp DESC`
	args := []any{patientID, threshold}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnavailable, "history.LowQuality", "query records", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Trends is the aggregate returned by GetTrends.
type Trends struct {
	Count                int
	AvgConfidenceScore   float64
	AvgGroundingScore    float64
	AvgConsistencyScore  float64
	AvgHallucinationRisk float64
	LowQualityCount      int
	P95ExecutionTimeMs   float64
}

// GetTrends aggregates over every record whose query_timestamp falls in
// [from, to], including counts below lowQualityThreshold and the p95
// execution time.
func (s *Store) GetTrends(ctx context.Context, from, to time.Time, lowQualityThreshold float64) (Trends, error) {
	var t Trends
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			COALESCE(avg(confidence_score), 0),
			COALESCE(avg(grounding_score), 0),
			COALESCE(avg(consistency_score), 0),
			COALESCE(avg(hallucination_risk), 0),
			count(*) FILTER (WHERE overall_quality_score < $3),
			COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY execution_time_ms), 0)
		FROM conversation_history
		WHERE query_timestamp >= $1 AND query_timestamp <= $2`,
		from, to, lowQualityThreshold,
	).Scan(&t.Count, &t.AvgConfidenceScore, &t.AvgGroundingScore, &t.AvgConsistencyScore,
		&t.AvgHallucinationRisk, &t.LowQualityCount, &t.P95ExecutionTimeMs)
	if err != nil {
		return Trends{}, xerrors.Wrap(xerrors.KindUnavailable, "history.GetTrends", "aggregate", err)
	}
	return t, nil
}

func nowOrDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

const recordColumns = `id, patient_id, query, query_intent, query_timestamp, short_answer, detailed_summary,
	model_used, extractions, sources, retrieval_candidates, grounding_score, consistency_score,
	confidence_score, hallucination_risk, overall_quality_score, enrichment_enabled, multi_hop_enabled,
	reasoning_enabled, execution_time_ms, retrieval_time_ms, generation_time_ms, created_at, updated_at`

// rowScanner abstracts over pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.ConversationRecord, error) {
	var rec types.ConversationRecord
	var extractionsRaw, sourcesRaw, candidatesRaw []byte

	err := row.Scan(
		&rec.ID, &rec.PatientID, &rec.Query, &rec.QueryIntent, &rec.QueryTimestamp, &rec.ShortAnswer, &rec.DetailedSummary,
		&rec.ModelUsed, &extractionsRaw, &sourcesRaw, &candidatesRaw,
		&rec.Quality.GroundingScore, &rec.Quality.ConsistencyScore, &rec.Quality.ConfidenceScore,
		&rec.Quality.HallucinationRisk, &rec.Quality.OverallQualityScore,
		&rec.EnrichmentEnabled, &rec.MultiHopEnabled, &rec.ReasoningEnabled,
		&rec.ExecutionTimeMs, &rec.RetrievalTimeMs, &rec.GenerationTimeMs,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(extractionsRaw, &rec.Extractions); err != nil {
		return nil, fmt.Errorf("unmarshal extractions: %w", err)
	}
	if err := json.Unmarshal(sourcesRaw, &rec.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	if err := json.Unmarshal(candidatesRaw, &rec.RetrievalCandidates); err != nil {
		return nil, fmt.Errorf("unmarshal retrieval candidates: %w", err)
	}
	return &rec, nil
}

func scanRecords(rows pgx.Rows) ([]*types.ConversationRecord, error) {
	var out []*types.ConversationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "history.scanRecords", "scan record", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanRecordsWithTrailingColumn scans rows whose SELECT list appends a
// trailing similarity score column after recordColumns, discarding it —
// ordering already reflects it, callers only need the record itself.
func scanRecordsWithTrailingColumn(rows pgx.Rows) ([]*types.ConversationRecord, error) {
	var out []*types.ConversationRecord
	for rows.Next() {
		var rec types.ConversationRecord
		var extractionsRaw, sourcesRaw, candidatesRaw []byte
		var similarity float64

		err := rows.Scan(
			&rec.ID, &rec.PatientID, &rec.Query, &rec.QueryIntent, &rec.QueryTimestamp, &rec.ShortAnswer, &rec.DetailedSummary,
			&rec.ModelUsed, &extractionsRaw, &sourcesRaw, &candidatesRaw,
			&rec.Quality.GroundingScore, &rec.Quality.ConsistencyScore, &rec.Quality.ConfidenceScore,
			&rec.Quality.HallucinationRisk, &rec.Quality.OverallQualityScore,
			&rec.EnrichmentEnabled, &rec.MultiHopEnabled, &rec.ReasoningEnabled,
			&rec.ExecutionTimeMs, &rec.RetrievalTimeMs, &rec.GenerationTimeMs,
			&rec.CreatedAt, &rec.UpdatedAt, &similarity,
		)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "history.scanRecordsWithTrailingColumn", "scan record", err)
		}
		if err := json.Unmarshal(extractionsRaw, &rec.Extractions); err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "history.scanRecordsWithTrailingColumn", "unmarshal extractions", err)
		}
		if err := json.Unmarshal(sourcesRaw, &rec.Sources); err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "history.scanRecordsWithTrailingColumn", "unmarshal sources", err)
		}
		if err := json.Unmarshal(candidatesRaw, &rec.RetrievalCandidates); err != nil {
			return nil, xerrors.Wrap(xerrors.KindInternal, "history.scanRecordsWithTrailingColumn", "unmarshal retrieval candidates", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
