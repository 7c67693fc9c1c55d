package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/qdrant/go-client/qdrant"

	"github.com/dangrewal8/patientqa/internal/audit"
	"github.com/dangrewal8/patientqa/internal/breaker"
	"github.com/dangrewal8/patientqa/internal/cache"
	"github.com/dangrewal8/patientqa/internal/chunkstore"
	"github.com/dangrewal8/patientqa/internal/concurrency"
	"github.com/dangrewal8/patientqa/internal/config"
	"github.com/dangrewal8/patientqa/internal/conversation"
	"github.com/dangrewal8/patientqa/internal/embedder"
	"github.com/dangrewal8/patientqa/internal/emr"
	"github.com/dangrewal8/patientqa/internal/enrichment"
	"github.com/dangrewal8/patientqa/internal/entity"
	"github.com/dangrewal8/patientqa/internal/generator"
	"github.com/dangrewal8/patientqa/internal/history"
	"github.com/dangrewal8/patientqa/internal/normalize"
	"github.com/dangrewal8/patientqa/internal/pipeline"
	"github.com/dangrewal8/patientqa/internal/relationship"
	"github.com/dangrewal8/patientqa/internal/retrieval"
	"github.com/dangrewal8/patientqa/internal/xerrors"
)

// application holds every long-lived collaborator main needs, plus what it
// takes to shut them down in the right order.
type application struct {
	ingest       *pipeline.IngestPipeline
	conversation *conversation.Manager
	query        *pipeline.QueryPipeline

	pool        concurrency.Pool
	auditLogger *audit.Logger
	chunkCloser func()
	enrichCloser func()
	historyCloser func()
}

func (a *application) Close() {
	a.pool.Release()
	if err := a.auditLogger.Close(); err != nil {
		slog.Default().Error("close audit logger", "error", err)
	}
	if a.chunkCloser != nil {
		a.chunkCloser()
	}
	if a.enrichCloser != nil {
		a.enrichCloser()
	}
	if a.historyCloser != nil {
		a.historyCloser()
	}
}

// build wires every module named by the spec into the two CLI operations.
// dsn selects Postgres-backed chunk/enrichment/history stores over the
// in-memory defaults; qdrantHost selects the Qdrant vector index over the
// in-memory brute-force one. Both default to the dev-friendly in-memory
// path, so ingest runs with nothing more than an OpenAI API key; the query
// pipeline is only built when dsn is set, since conversation history has
// no in-memory store.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, fixtureDir, dsn, qdrantHost string, qdrantPort int) (*application, error) {
	extractor, err := entity.New()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "build", "construct entity extractor", err)
	}

	nowFn := func() time.Time { return time.Now().UTC() }

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, xerrors.New(xerrors.KindValidation, "build", "OPENAI_API_KEY must be set")
	}
	openaiClient := openai.NewClient(option.WithAPIKey(apiKey))
	emb := embedder.NewOpenAIEmbedder(&openaiClient, embedModel, embedDimensions)
	gen := generator.NewOpenAIGenerator(&openaiClient, chatModel)

	var (
		chunkStore     chunkstore.Store
		enrichmentStore enrichment.Store
		historyStore   *history.Store
		chunkCloser    func()
		enrichCloser   func()
		historyCloser  func()
	)
	if dsn != "" {
		pgChunks, err := chunkstore.NewPGStore(ctx, chunkstore.PGConfig{DSN: dsn})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindUnavailable, "build", "connect chunk store", err)
		}
		chunkStore = pgChunks
		chunkCloser = pgChunks.Close

		pgEnrich, err := enrichment.NewPGStore(ctx, chunkstore.PGConfig{DSN: dsn})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindUnavailable, "build", "connect enrichment store", err)
		}
		enrichmentStore = pgEnrich
		enrichCloser = pgEnrich.Close

		histStore, err := history.NewStore(ctx, history.PGConfig{DSN: dsn})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindUnavailable, "build", "connect history store", err)
		}
		historyStore = histStore
		historyCloser = histStore.Close
	} else {
		chunkStore = chunkstore.NewInMemoryStore()
		enrichmentStore = enrichment.NewInMemoryStore()
		logger.Warn("no -dsn given: using in-memory stores; the ask command is unavailable without a conversation history store")
	}

	var vectorIndex retrieval.VectorIndex
	if qdrantHost != "" {
		client, err := qdrant.NewClient(&qdrant.Config{Host: qdrantHost, Port: qdrantPort})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindUnavailable, "build", "connect qdrant", err)
		}
		qi := retrieval.NewQdrantVectorIndex(client, qdrantCollection)
		if err := qi.EnsureCollection(ctx, embedDimensions); err != nil {
			return nil, xerrors.Wrap(xerrors.KindUnavailable, "build", "ensure qdrant collection", err)
		}
		vectorIndex = qi
	} else {
		vectorIndex = retrieval.NewInMemoryVectorIndex()
	}

	pool, err := concurrency.NewBoundedPool(0)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "build", "construct worker pool", err)
	}

	if err := os.MkdirAll(cfg.AuditLogDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "build", "create audit log directory", err)
	}
	auditLogger, err := audit.NewLogger(filepath.Join(cfg.AuditLogDir, "audit.jsonl"), cfg.AuditInMemoryMax, logger)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindInternal, "build", "construct audit logger", err)
	}

	breakers := breaker.NewManager(cfg.CBFailureThreshold, cfg.CBResetTimeout())
	embedCache := cache.NewEmbeddingCache()
	queryCache := cache.NewQueryResultCache()

	chunker := chunkstore.NewChunker(cfg.ChunkMaxChars, cfg.ChunkOverlapChars, extractor)

	ingestPipeline := pipeline.NewIngestPipeline(
		emr.NewFileFetcher(fixtureDir),
		normalize.New(nowFn),
		relationship.New(nowFn),
		enrichment.New(extractor, nowFn),
		chunker,
		enrichmentStore,
		chunkStore,
		emb,
		vectorIndex,
		embedCache,
		breakers,
		pool,
	)

	retriever := retrieval.New(chunkStore, vectorIndex, emb, cfg.RetrieverMultiHopMax)
	convManager := conversation.NewManager()

	var queryPipeline *pipeline.QueryPipeline
	if historyStore != nil {
		queryPipeline = pipeline.NewQueryPipeline(
			pipeline.NewQueryCompiler(extractor),
			convManager,
			retriever,
			chunkStore,
			gen,
			queryCache,
			breakers,
			auditLogger,
			historyStore,
			chatModel,
		)
	}

	return &application{
		ingest:        ingestPipeline,
		conversation:  convManager,
		query:         queryPipeline,
		pool:          pool,
		auditLogger:   auditLogger,
		chunkCloser:   chunkCloser,
		enrichCloser:  enrichCloser,
		historyCloser: historyCloser,
	}, nil
}
