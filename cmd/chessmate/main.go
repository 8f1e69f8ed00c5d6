// Chessmate CLI - PGN ingestion and hybrid chess game search.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/smilemakc/chessmate/internal/agent"
	"github.com/smilemakc/chessmate/internal/api"
	"github.com/smilemakc/chessmate/internal/chess/pgn"
	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/config"
	"github.com/smilemakc/chessmate/internal/embedder"
	"github.com/smilemakc/chessmate/internal/embedworker"
	"github.com/smilemakc/chessmate/internal/hybrid"
	"github.com/smilemakc/chessmate/internal/ingest"
	"github.com/smilemakc/chessmate/internal/logger"
	"github.com/smilemakc/chessmate/internal/opening"
	"github.com/smilemakc/chessmate/internal/query"
	"github.com/smilemakc/chessmate/internal/storage"
	"github.com/smilemakc/chessmate/internal/vectorstore"
)

const usage = `chessmate - PGN ingestion and hybrid chess game search

USAGE:
    chessmate <command> [options]

COMMANDS:
    migrate                              Apply pending schema migrations
    ingest <pgn-path>                    Parse and commit a PGN file
    query <question>                     Run a free-text search
    embedding-worker [--workers N] [--poll-sleep S]
                                          Run the embedding worker pool
    serve                                Run the HTTP API
    fen <pgn-path>                       Print one FEN per line
    twic-precheck <pgn-path>             Report offending games

ENVIRONMENT VARIABLES: DATABASE_URL, QDRANT_URL, OPENAI_API_KEY,
    CHESSMATE_MAX_PENDING_EMBEDDINGS, AGENT_API_KEY and related AGENT_*
    variables.
`

// Exit codes per spec §6: 0 success, 1 user error, 2 infra error.
const (
	exitOK        = 0
	exitUserError = 1
	exitInfraErr  = 2
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitUserError)
	}

	switch os.Args[1] {
	case "fen":
		os.Exit(runFEN(os.Args[2:]))
	case "twic-precheck":
		os.Exit(runTwicPrecheck(os.Args[2:]))
	case "help", "-h", "--help":
		fmt.Print(usage)
		os.Exit(exitOK)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(exitUserError)
	}
	log := logger.New(cfg.Logging)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var code int
	switch os.Args[1] {
	case "migrate":
		code = runMigrate(ctx, cfg, log)
	case "ingest":
		code = runIngest(ctx, cfg, log, os.Args[2:])
	case "query":
		code = runQuery(ctx, cfg, log, os.Args[2:])
	case "embedding-worker":
		code = runEmbeddingWorker(ctx, cfg, log, os.Args[2:])
	case "serve":
		code = runServe(ctx, cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		code = exitUserError
	}
	os.Exit(code)
}

func exitCodeFor(err error) int {
	kind, ok := chesserr.KindOf(err)
	if !ok {
		return exitInfraErr
	}
	switch kind {
	case chesserr.BadInput, chesserr.BadEncoding:
		return exitUserError
	default:
		return exitInfraErr
	}
}

func runMigrate(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to database: %v\n", err)
		return exitInfraErr
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to build migrator: %v\n", err)
		return exitInfraErr
	}
	if err := migrator.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to init migration tables: %v\n", err)
		return exitInfraErr
	}
	if err := migrator.Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: migration failed: %v\n", err)
		return exitInfraErr
	}
	return exitOK
}

func runIngest(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: ingest requires a <pgn-path>")
		return exitUserError
	}
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open %q: %v\n", path, err)
		return exitUserError
	}
	defer f.Close()

	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to database: %v\n", err)
		return exitInfraErr
	}
	defer db.Close()

	controller := ingest.New(db, opening.New(), cfg.Ingest.MaxPendingEmbeddings, log)
	controller.OnCommit(func(gameID string, positions int) {
		fmt.Printf("Stored game %s with %d positions\n", gameID, positions)
	})
	result, err := controller.Ingest(ctx, f)
	fmt.Printf("Committed %d games (%d positions), skipped %d\n", result.GamesCommitted, result.PositionsAdded, result.GamesSkipped)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: ingest aborted: %v\n", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func runQuery(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: query requires a question")
		return exitUserError
	}
	question := args[0]

	if apiURL := os.Getenv("CHESSMATE_API_URL"); apiURL != "" {
		return runQueryRemote(ctx, apiURL, question)
	}

	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to database: %v\n", err)
		return exitInfraErr
	}
	defer db.Close()

	store := storage.NewStore(db, cfg.Worker.MaxAttempts)
	vectors := vectorstore.New(cfg.Vector.URL, "chessmate_positions", cfg.Vector.Timeout, log)

	var queryEmbedder embedder.Embedder
	if cfg.Embedder.APIKey != "" {
		queryEmbedder = embedder.New(cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.Embedder.Timeout, log)
	}

	executor := hybrid.New(store, vectors, queryEmbedder, log)

	var evaluator *agent.Evaluator
	if cfg.AgentEnabled() {
		evaluator = agent.NewOpenAI(cfg.Agent, log)
	}

	pipeline := query.New(opening.New(), executor, store, evaluator, log)
	resp, err := pipeline.Run(ctx, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: query failed: %v\n", err)
		return exitCodeFor(err)
	}

	printQueryResponse(resp)
	return exitOK
}

func runQueryRemote(ctx context.Context, apiURL, question string) int {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUserError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/query", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitUserError
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: request to %s failed: %v\n", apiURL, err)
		return exitInfraErr
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to decode response: %v\n", err)
		return exitInfraErr
	}

	encoded, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(encoded))

	if resp.StatusCode == http.StatusBadRequest {
		return exitUserError
	}
	if resp.StatusCode >= 500 {
		return exitInfraErr
	}
	return exitOK
}

func printQueryResponse(resp query.Response) {
	for _, w := range resp.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. %s vs %s (%s) total=%.3f\n", i+1, r.Game.WhiteName, r.Game.BlackName, r.Game.OpeningName, r.FinalScore)
	}
	if resp.Agent != nil {
		fmt.Printf("agent: %d calls, %d input tokens, %d output tokens, $%.4f\n",
			resp.Agent.Calls, resp.Agent.InputTokens, resp.Agent.OutputTokens, resp.Agent.EstimatedCostUSD)
	}
}

func runEmbeddingWorker(ctx context.Context, cfg *config.Config, log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("embedding-worker", flag.ContinueOnError)
	workers := fs.Int("workers", cfg.Worker.Workers, "number of concurrent worker loops")
	pollSleep := fs.Duration("poll-sleep", cfg.Worker.PollSleep, "sleep between empty poll attempts")
	if err := fs.Parse(args); err != nil {
		return exitUserError
	}

	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to database: %v\n", err)
		return exitInfraErr
	}
	defer db.Close()

	store := storage.NewStore(db, cfg.Worker.MaxAttempts)
	vectors := vectorstore.New(cfg.Vector.URL, "chessmate_positions", cfg.Vector.Timeout, log)
	embed := embedder.New(cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.Embedder.Timeout, log)

	pool := embedworker.New(store, embed, vectors, embedworker.Config{
		Workers:       *workers,
		BatchSize:     cfg.Worker.BatchSize,
		PollSleep:     *pollSleep,
		InProgressTTL: cfg.Worker.InProgressTimeout,
	}, log)

	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: embedding worker failed: %v\n", err)
		return exitInfraErr
	}
	return exitOK
}

func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to database: %v\n", err)
		return exitInfraErr
	}
	defer db.Close()

	store := storage.NewStore(db, cfg.Worker.MaxAttempts)
	vectors := vectorstore.New(cfg.Vector.URL, "chessmate_positions", cfg.Vector.Timeout, log)

	var queryEmbedder embedder.Embedder
	if cfg.Embedder.APIKey != "" {
		queryEmbedder = embedder.New(cfg.Embedder.APIKey, cfg.Embedder.Model, cfg.Embedder.Timeout, log)
	}
	executor := hybrid.New(store, vectors, queryEmbedder, log)

	var evaluator *agent.Evaluator
	if cfg.AgentEnabled() {
		evaluator = agent.NewOpenAI(cfg.Agent, log)
	}

	pipeline := query.New(opening.New(), executor, store, evaluator, log)
	server := api.New(pipeline, log, cfg.Logging.Level == "debug")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("chessmate API listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: graceful shutdown failed: %v\n", err)
			return exitInfraErr
		}
		return exitOK
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Error: server failed: %v\n", err)
			return exitInfraErr
		}
		return exitOK
	}
}

func runFEN(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: fen requires a <pgn-path>")
		return exitUserError
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open %q: %v\n", args[0], err)
		return exitUserError
	}
	defer f.Close()

	var parseErr error
	err = pgn.ParseAll(f, func(g *pgn.Game, gameErr error) {
		if gameErr != nil {
			parseErr = gameErr
			return
		}
		for _, ply := range g.Plies {
			fmt.Println(ply.FEN)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	if parseErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", parseErr)
		return exitCodeFor(parseErr)
	}
	return exitOK
}

func runTwicPrecheck(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: twic-precheck requires a <pgn-path>")
		return exitUserError
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open %q: %v\n", args[0], err)
		return exitUserError
	}
	defer f.Close()

	offenders := 0
	index := 0
	streamErr := pgn.ParseAll(f, func(g *pgn.Game, gameErr error) {
		index++
		if gameErr != nil {
			offenders++
			fmt.Printf("game %d: %v\n", index, gameErr)
			return
		}
		if g.Result == "" {
			offenders++
			fmt.Printf("game %d: missing Result tag\n", index)
		}
	})
	if streamErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", streamErr)
		return exitCodeFor(streamErr)
	}

	fmt.Printf("checked %d games, %d offending\n", index, offenders)
	if offenders > 0 {
		return exitUserError
	}
	return exitOK
}
