// Command patientqa wires every module described by the spec into the two
// operations it defines: ingesting a patient's EMR record set, and
// answering a question against what's been ingested. It is deliberately a
// thin CLI, not a server — spec §6 describes the operations, not a
// transport; a caller wanting HTTP would add a handler package that calls
// the same two pipelines.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dangrewal8/patientqa/internal/answer"
	"github.com/dangrewal8/patientqa/internal/config"
	"github.com/dangrewal8/patientqa/internal/logging"
	"github.com/dangrewal8/patientqa/internal/types"
)

const (
	embedModel      = "text-embedding-3-small"
	embedDimensions = 1536
	chatModel       = "gpt-4o-mini"
	qdrantCollection = "patientqa_chunks"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		fixtureDir = flag.String("fixtures", "./data/fixtures", "directory of local EMR JSON fixtures (FileFetcher)")
		auditDir   = flag.String("audit-dir", "", "override audit log directory")
		dsn        = flag.String("dsn", "", "Postgres DSN for the chunk/enrichment/history stores; empty uses in-memory stores")
		qdrantHost = flag.String("qdrant-host", "", "Qdrant host; empty uses the in-memory vector index")
		qdrantPort = flag.Int("qdrant-port", 6334, "Qdrant gRPC port")
	)
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: patientqa [flags] ingest <patient-id> | ask <patient-id> <question>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("load config", err)
	}
	if *auditDir != "" {
		cfg.AuditLogDir = *auditDir
	}

	logger := logging.New(logging.Options{Level: slog.LevelInfo, JSON: cfg.IsProduction()})

	app, err := build(context.Background(), cfg, logger, *fixtureDir, *dsn, *qdrantHost, *qdrantPort)
	if err != nil {
		fatal("build application", err)
	}
	defer app.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	switch args[0] {
	case "ingest":
		if len(args) != 2 {
			fatal("ingest", fmt.Errorf("usage: ingest <patient-id>"))
		}
		result, err := app.ingest.Ingest(ctx, args[1], now)
		if err != nil {
			fatal("ingest", err)
		}
		logger.Info("ingest complete",
			"patient_id", args[1],
			"artifacts", result.ArtifactsIngested,
			"relationships", result.RelationshipsFound,
			"chunks_stored", result.ChunksStored,
			"chunks_skipped", result.ChunksSkipped,
		)
	case "ask":
		if len(args) != 3 {
			fatal("ask", fmt.Errorf("usage: ask <patient-id> <question>"))
		}
		if app.query == nil {
			fatal("ask", fmt.Errorf("the ask command requires -dsn (conversation history has no in-memory store)"))
		}
		patientID, question := args[1], args[2]

		session, err := app.conversation.CreateSession(patientID, now)
		if err != nil {
			fatal("create session", err)
		}

		resp, err := app.query.Ask(ctx, session.SessionID, patientID, question, now)
		if err != nil {
			errResp := answer.BuildError(uuid.NewString(), err, now, time.Now().UTC(), types.AuditTrailMetadata{})
			fmt.Fprintf(os.Stderr, "error [%s]: %s\n", errResp.Error.Code, errResp.Error.UserMessage)
			os.Exit(1)
		}
		fmt.Println(resp.ShortAnswer)
		fmt.Println()
		fmt.Println(resp.DetailedSummary)
	default:
		fatal("main", fmt.Errorf("unknown command %q", args[0]))
	}
}

func fatal(op string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", op, err)
	os.Exit(1)
}
