package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dangrewal8/patientqa/internal/answer"
	"github.com/dangrewal8/patientqa/internal/audit"
	"github.com/dangrewal8/patientqa/internal/breaker"
	"github.com/dangrewal8/patientqa/internal/cache"
	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/conversation"
	"github.com/dangrewal8/patientqa/internal/generator"
	"github.com/dangrewal8/patientqa/internal/history"
	"github.com/dangrewal8/patientqa/internal/retrieval"
	"github.com/dangrewal8/patientqa/internal/types"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// defaultSystemPrompt instructs the Generator to ground every claim in the
// retrieved context it's given, never outside knowledge.
const defaultSystemPrompt = "You are a clinical assistant answering questions about a single patient " +
	"using only the context provided below. Never state a fact that is not supported by the context."

// defaultTopK is used when a StructuredQuery carries no explicit override.
const defaultTopK = 10

// QueryPipeline answers one question against a patient's indexed chunks:
// conversation/follow-up resolution, cache lookup, retrieval, generation,
// citation validation, confidence scoring, provenance formatting, response
// assembly, cache write, audit logging, and history persistence — the L3
// through L5 responsibilities of spec §4.
type QueryPipeline struct {
	compiler     *QueryCompiler
	conversation *conversation.Manager
	retriever    *retrieval.Retriever
	chunkStore   chunkstore.Store
	generator    generator.Generator

	queryCache *cache.QueryResultCache
	breakers   *breaker.Manager

	auditLogger  *audit.Logger
	historyStore *history.Store
	modelUsed    string
}

// NewQueryPipeline wires every collaborator the query operation depends on.
func NewQueryPipeline(
	compiler *QueryCompiler,
	conv *conversation.Manager,
	retriever *retrieval.Retriever,
	chunkStore chunkstore.Store,
	gen generator.Generator,
	queryCache *cache.QueryResultCache,
	breakers *breaker.Manager,
	auditLogger *audit.Logger,
	historyStore *history.Store,
	modelUsed string,
) *QueryPipeline {
	return &QueryPipeline{
		compiler:     compiler,
		conversation: conv,
		retriever:    retriever,
		chunkStore:   chunkStore,
		generator:    gen,
		queryCache:   queryCache,
		breakers:     breakers,
		auditLogger:  auditLogger,
		historyStore: historyStore,
		modelUsed:    modelUsed,
	}
}

// Ask answers question for patientID within sessionID (created by the
// caller via conversation.Manager.CreateSession beforehand). On error it
// still logs an audit entry marking the query as failed before returning.
func (p *QueryPipeline) Ask(ctx context.Context, sessionID, patientID, question string, now time.Time) (*types.UIResponse, error) {
	resp, err := p.ask(ctx, sessionID, patientID, question, now)
	if err != nil {
		p.auditLogger.LogQuery(ctx, types.AuditEntry{
			QueryID:   uuid.NewString(),
			Timestamp: now,
			PatientID: patientID,
			QueryText: question,
			Success:   false,
			Error:     errString(err),
			SessionID: &sessionID,
		})
	}
	return resp, err
}

func (p *QueryPipeline) ask(ctx context.Context, sessionID, patientID, question string, now time.Time) (*types.UIResponse, error) {
	query := p.compiler.Compile(patientID, question, now)

	resolved, err := p.conversation.ResolveFollowUp(sessionID, query, now)
	if err != nil {
		return nil, err
	}
	query = resolved

	if cached, ok := p.queryCache.Get(query.OriginalQuery, query.PatientID, query.Filters); ok {
		return cached, nil
	}

	topK := query.DetailLevel * 2
	if topK <= 0 {
		topK = defaultTopK
	}

	results, err := p.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, xerrors.New(xerrors.KindNotFound, "pipeline.Ask", "no supporting context found for this patient")
	}

	contextChunks := make([]string, 0, len(results))
	for _, r := range results {
		contextChunks = append(contextChunks, r.Chunk.SearchText())
	}

	var genResult generator.Result
	err = p.breakers.Execute(ctx, "llm", func(ctx context.Context) error {
		res, err := p.generator.Generate(ctx, generator.Request{
			Question:      query.OriginalQuery,
			ContextChunks: contextChunks,
			SystemPrompt:  defaultSystemPrompt,
		})
		genResult = res
		return err
	})
	if err != nil {
		return nil, err
	}

	extractions, provenance, err := p.buildExtractions(ctx, results, now)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, len(results))
	for _, r := range results {
		scores = append(scores, r.Score)
	}
	confidence := answer.ScoreConfidence(scores, extractions)

	resp, err := answer.Build(answer.BuildRequest{
		QueryID:               query.QueryID,
		PatientID:             patientID,
		QueryTimestamp:        query.ProcessedAt,
		ShortAnswer:           genResult.ShortAnswer,
		DetailedSummary:       genResult.DetailedSummary,
		StructuredExtractions: extractions,
		Provenance:            provenance,
		Confidence:            confidence,
		ModelUsed:             p.modelUsed,
		ComponentsExecuted:    []string{"retriever", "generator", "answer"},
		StageTimestamps:       map[string]time.Time{"processed_at": query.ProcessedAt, "responded_at": now},
		SourcesCount:          len(provenance),
	}, now)
	if err != nil {
		return nil, err
	}

	if err := p.conversation.UpdateContext(sessionID, &query, resp, now); err != nil {
		return nil, err
	}

	p.queryCache.Put(query.OriginalQuery, query.PatientID, query.Filters, resp)

	sources := make([]string, 0, len(provenance))
	for _, prov := range provenance {
		sources = append(sources, prov.ArtifactID)
	}
	p.auditLogger.LogQuery(ctx, types.AuditEntry{
		QueryID:         query.QueryID,
		Timestamp:       now,
		PatientID:       patientID,
		QueryText:       query.OriginalQuery,
		ResponseSummary: resp.ShortAnswer,
		SourcesUsed:     sources,
		ConfidenceScore: confidence.Score,
		TotalTimeMs:     resp.Metadata.TotalTimeMs,
		Success:         true,
		SessionID:       &sessionID,
	})

	quality := history.DefaultQualityHeuristic(confidence, extractions)
	_, err = p.historyStore.Insert(ctx, &types.ConversationRecord{
		PatientID:           patientID,
		Query:               query.OriginalQuery,
		QueryIntent:         query.Intent,
		QueryTimestamp:      query.ProcessedAt,
		ShortAnswer:         resp.ShortAnswer,
		DetailedSummary:     resp.DetailedSummary,
		ModelUsed:           resp.Metadata.ModelUsed,
		Extractions:         extractions,
		Sources:             sources,
		RetrievalCandidates: sources,
		Quality:             quality,
		ExecutionTimeMs:     resp.Metadata.TotalTimeMs,
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// buildExtractions turns retrieved, highlighted chunks into structured
// extractions with resolved provenance, validating every chunk_id against
// the live Chunk Store before it reaches answer.Build — the citation
// validator that Build's own hermetic, store-free check can't perform.
func (p *QueryPipeline) buildExtractions(ctx context.Context, results []retrieval.Result, now time.Time) ([]types.StructuredExtraction, []types.Provenance, error) {
	extractions := make([]types.StructuredExtraction, 0, len(results))
	provenance := make([]types.Provenance, 0, len(results))

	for _, r := range results {
		stored, ok, err := p.chunkStore.Retrieve(ctx, r.Chunk.ChunkID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, xerrors.New(xerrors.KindNotFound, "pipeline.buildExtractions",
				"retrieved chunk "+r.Chunk.ChunkID+" no longer resolves against the chunk store")
		}

		offsets := stored.CharOffsets
		extractions = append(extractions, types.StructuredExtraction{
			Type:    string(stored.ArtifactType),
			Content: stored.CitationText(),
			Provenance: &types.ExtractionProvenance{
				ArtifactID:     stored.ArtifactID,
				ChunkID:        stored.ChunkID,
				CharOffsets:    offsets,
				SupportingText: stored.CitationText(),
			},
		})
		provenance = append(provenance, answer.FormatProvenance(stored, offsets, r.Score, now))
	}
	return extractions, provenance, nil
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}
