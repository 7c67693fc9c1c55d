// Package pipeline wires the per-package modules (normalize, relationship,
// enrichment, chunkstore, embedder, retrieval, conversation, answer, audit,
// history) into the two end-to-end operations described in spec §4: bounded
// ingestion and query answering. Nothing here holds domain logic of its
// own — every decision is delegated to the module that owns it.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/errgroup"

	"github.com/dangrewal8/patientqa/internal/breaker"
	"github.com/dangrewal8/patientqa/internal/cache"
	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/concurrency"
	"github.com/dangrewal8/patientqa/internal/embedder"
	"github.com/dangrewal8/patientqa/internal/emr"
	"github.com/dangrewal8/patientqa/internal/enrichment"
	"github.com/dangrewal8/patientqa/internal/normalize"
	"github.com/dangrewal8/patientqa/internal/relationship"
	"github.com/dangrewal8/patientqa/internal/retrieval"
	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
	"github.com/dangrewal8/patientqa/pkg/sets"
)

// embedBatchTokenBudget caps how many estimated tokens go into one Embed
// call, the same way the teacher's document loaders cap batch size by byte
// count rather than item count; tiktoken-go gives an exact-enough count
// without a round-trip to the embedding provider.
const embedBatchTokenBudget = 6000

// tokenEncoding is resolved once; cl100k_base covers every OpenAI
// embedding/chat model this module targets.
var tokenEncoding = mustEncoding("cl100k_base")

func mustEncoding(name string) *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		// The encoding name is a compile-time constant; a failure here means
		// the encoding's BPE vocabulary could not be loaded, not a bad input.
		panic("pipeline: tiktoken encoding " + name + " unavailable: " + err.Error())
	}
	return enc
}

func countTokens(s string) int {
	return len(tokenEncoding.Encode(s, nil, nil))
}

// IngestPipeline fetches a patient's full EMR record set, normalizes it,
// derives clinical relationships, enriches every artifact, splits each into
// chunks, and indexes those chunks for retrieval — the L0 through L2
// responsibilities of spec §4, run as a single bounded operation.
type IngestPipeline struct {
	fetcher    emr.Fetcher
	normalizer *normalize.Normalizer
	extractor  *relationship.Extractor
	enricher   *enrichment.Enricher
	chunker    *chunkstore.Chunker

	enrichmentStore enrichment.Store
	chunkStore      chunkstore.Store

	embedder    embedder.Embedder
	vectorIndex retrieval.VectorIndex
	embedCache  *cache.EmbeddingCache

	breakers *breaker.Manager
	pool     concurrency.Pool
}

// NewIngestPipeline wires every collaborator the ingestion operation
// depends on. Callers own the lifetimes of pool, embedCache, and the
// stores; IngestPipeline only ever reads or writes through the interfaces
// given to it.
func NewIngestPipeline(
	fetcher emr.Fetcher,
	normalizer *normalize.Normalizer,
	extractor *relationship.Extractor,
	enricher *enrichment.Enricher,
	chunker *chunkstore.Chunker,
	enrichmentStore enrichment.Store,
	chunkStore chunkstore.Store,
	emb embedder.Embedder,
	vectorIndex retrieval.VectorIndex,
	embedCache *cache.EmbeddingCache,
	breakers *breaker.Manager,
	pool concurrency.Pool,
) *IngestPipeline {
	return &IngestPipeline{
		fetcher:         fetcher,
		normalizer:      normalizer,
		extractor:       extractor,
		enricher:        enricher,
		chunker:         chunker,
		enrichmentStore: enrichmentStore,
		chunkStore:      chunkStore,
		embedder:        emb,
		vectorIndex:     vectorIndex,
		embedCache:      embedCache,
		breakers:        breakers,
		pool:            pool,
	}
}

// artifactCategory pairs one of the EMR's eight record categories with the
// ArtifactType the Normalizer should stamp onto its output.
type artifactCategory struct {
	artifactType types.ArtifactType
	fetch        func(emr.Fetcher, context.Context, string) ([]emr.RawRecord, error)
}

var artifactCategories = []artifactCategory{
	{types.ArtifactMedication, emr.Fetcher.FetchMedications},
	{types.ArtifactCondition, emr.Fetcher.FetchConditions},
	{types.ArtifactCarePlan, emr.Fetcher.FetchCarePlans},
	{types.ArtifactNote, emr.Fetcher.FetchNotes},
	{types.ArtifactAllergy, emr.Fetcher.FetchAllergies},
	{types.ArtifactLabObservation, emr.Fetcher.FetchLabObservations},
	{types.ArtifactVital, emr.Fetcher.FetchVitals},
	{types.ArtifactAppointment, emr.Fetcher.FetchAppointments},
}

// IngestResult summarizes one Ingest call's outcome for logging/audit.
type IngestResult struct {
	ArtifactsIngested int
	RelationshipsFound int
	ChunksStored       int
	ChunksSkipped      int
}

// Ingest runs the full pipeline for one patient. Every EMR category is
// fetched concurrently (spec §5: "independent I/O-bound collaborator calls
// MUST run concurrently, not as a serial loop") through the "emr" circuit
// breaker; a single category's permanent failure fails the whole call,
// since a partial patient record would silently under-serve every query
// run against it afterward.
func (p *IngestPipeline) Ingest(ctx context.Context, patientID string, now time.Time) (IngestResult, error) {
	byCategory, err := p.fetchAll(ctx, patientID)
	if err != nil {
		return IngestResult{}, err
	}

	artifacts, err := p.normalizeAll(byCategory, patientID)
	if err != nil {
		return IngestResult{}, err
	}

	relationships := p.extractor.Extract(patientID, artifacts[types.ArtifactMedication], artifacts[types.ArtifactCondition], artifacts[types.ArtifactCarePlan])
	if err := p.enrichmentStore.StoreRelationships(ctx, relationships); err != nil {
		return IngestResult{}, err
	}

	artifactsByID := map[string]*types.Artifact{}
	var all []*types.Artifact
	for _, list := range artifacts {
		for _, a := range list {
			artifactsByID[a.ID] = a
			all = append(all, a)
		}
	}

	enriched, chunks := p.enrichAndChunk(all, artifactsByID, relationships, now)

	if err := p.enrichmentStore.StoreEnrichedArtifacts(ctx, enriched); err != nil {
		return IngestResult{}, err
	}

	storeResult, err := p.chunkStore.Store(ctx, chunks)
	if err != nil {
		return IngestResult{}, err
	}

	if err := p.indexChunks(ctx, chunks); err != nil {
		return IngestResult{}, err
	}

	return IngestResult{
		ArtifactsIngested:  len(all),
		RelationshipsFound: len(relationships),
		ChunksStored:       storeResult.Stored,
		ChunksSkipped:      storeResult.Skipped,
	}, nil
}

func (p *IngestPipeline) fetchAll(ctx context.Context, patientID string) (map[types.ArtifactType][]emr.RawRecord, error) {
	results := make([][]emr.RawRecord, len(artifactCategories))

	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range artifactCategories {
		i, cat := i, cat
		g.Go(func() error {
			return p.breakers.Execute(gctx, "emr", func(ctx context.Context) error {
				records, err := cat.fetch(p.fetcher, ctx, patientID)
				if err != nil {
					return err
				}
				results[i] = records
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[types.ArtifactType][]emr.RawRecord, len(artifactCategories))
	for i, cat := range artifactCategories {
		out[cat.artifactType] = results[i]
	}
	return out, nil
}

func (p *IngestPipeline) normalizeAll(byCategory map[types.ArtifactType][]emr.RawRecord, patientID string) (map[types.ArtifactType][]*types.Artifact, error) {
	out := make(map[types.ArtifactType][]*types.Artifact, len(byCategory))
	for artifactType, records := range byCategory {
		list := make([]*types.Artifact, 0, len(records))
		for _, rec := range records {
			a, err := p.normalizer.Normalize(patientID, artifactType, rec)
			if err != nil {
				return nil, err
			}
			list = append(list, a)
		}
		out[artifactType] = list
	}
	return out, nil
}

// enrichAndChunk runs the Artifact Enricher and Chunker over every artifact
// concurrently through the bounded pool (spec §5: CPU-bound fan-out, unlike
// the I/O-bound EMR fetch above), then hands back the combined results in
// a fixed, input-deterministic order.
func (p *IngestPipeline) enrichAndChunk(all []*types.Artifact, artifactsByID map[string]*types.Artifact, relationships []*types.ClinicalRelationship, now time.Time) ([]*types.EnrichedArtifact, []*types.ChunkMetadata) {
	enriched := make([]*types.EnrichedArtifact, len(all))
	chunksByArtifact := make([][]*types.ChunkMetadata, len(all))

	var wg sync.WaitGroup
	wg.Add(len(all))
	for i, a := range all {
		i, a := i, a
		_ = p.pool.Submit(func() {
			defer wg.Done()

			outbound := relationshipIDsFor(relationships, a.ID)
			contextLevel := types.ContextExpansionNone
			if outbound.Size() > 0 {
				contextLevel = types.ContextExpansionDirect
			}

			ea := p.enricher.Enrich(a, enrichment.Context{Relationships: relationships, ArtifactsByID: artifactsByID})
			enriched[i] = ea

			chunksByArtifact[i] = p.chunker.Split(a, ea.EnrichedText, outbound, contextLevel, now)
		})
	}
	wg.Wait()

	var chunks []*types.ChunkMetadata
	for _, cs := range chunksByArtifact {
		chunks = append(chunks, cs...)
	}
	return enriched, chunks
}

func relationshipIDsFor(relationships []*types.ClinicalRelationship, artifactID string) sets.Set[string] {
	ids := sets.NewHashSet[string]()
	for _, r := range relationships {
		if r.SourceArtifactID == artifactID || r.TargetArtifactID == artifactID {
			ids.Add(r.RelationshipID)
		}
	}
	return ids
}

// indexChunks embeds each chunk's search text (through the embedding cache
// and the "embed" circuit breaker, batched by estimated token count) and
// upserts the resulting vectors, validating each vector's dimensionality
// against the configured Embedder before it ever reaches the vector index
// (spec §9's open question: embedding dimension must be checked on both
// insert and query, since nothing upstream asserts it).
func (p *IngestPipeline) indexChunks(ctx context.Context, chunks []*types.ChunkMetadata) error {
	var toEmbed []*types.ChunkMetadata
	var texts []string

	for _, c := range chunks {
		text := c.SearchText()
		if vec, ok := p.embedCache.Get(text); ok {
			if err := p.validateAndUpsert(ctx, c.ChunkID, vec); err != nil {
				return err
			}
			continue
		}
		toEmbed = append(toEmbed, c)
		texts = append(texts, text)
	}

	for start := 0; start < len(texts); {
		end := start + 1
		budget := countTokens(texts[start])
		for end < len(texts) {
			next := countTokens(texts[end])
			if budget+next > embedBatchTokenBudget {
				break
			}
			budget += next
			end++
		}

		batchChunks := toEmbed[start:end]
		batchTexts := texts[start:end]

		var vectors [][]float32
		err := p.breakers.Execute(ctx, "embed", func(ctx context.Context) error {
			v, err := p.embedder.Embed(ctx, batchTexts)
			vectors = v
			return err
		})
		if err != nil {
			return err
		}
		if len(vectors) != len(batchChunks) {
			return xerrors.New(xerrors.KindInternal, "pipeline.indexChunks", "embedder returned a mismatched vector count for the batch")
		}

		for i, c := range batchChunks {
			p.embedCache.Put(batchTexts[i], vectors[i])
			if err := p.validateAndUpsert(ctx, c.ChunkID, vectors[i]); err != nil {
				return err
			}
		}
		start = end
	}
	return nil
}

func (p *IngestPipeline) validateAndUpsert(ctx context.Context, chunkID string, vector []float32) error {
	if len(vector) != p.embedder.Dimensions() {
		return xerrors.Validation("pipeline.indexChunks", "embedding dimension mismatch for chunk "+chunkID)
	}
	return p.vectorIndex.Upsert(ctx, chunkID, vector)
}
