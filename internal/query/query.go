// Package query wires the Intent Analyzer, Hybrid Executor, and the
// optional Agent Evaluator into the single pipeline both the HTTP API
// and the CLI's query subcommand drive, per spec §6's POST /query and
// §4.10's agent gate on AGENT_API_KEY.
package query

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/smilemakc/chessmate/internal/agent"
	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/hybrid"
	"github.com/smilemakc/chessmate/internal/intent"
	"github.com/smilemakc/chessmate/internal/opening"
)

// PGNFetcher is the subset of *storage.Repository the pipeline needs to
// source full game text for the agent stage.
type PGNFetcher interface {
	FetchGamesWithPGN(ctx context.Context, gameIDs []string) ([]domain.GameDetail, error)
}

// HybridExecutor is the subset of *hybrid.Executor the pipeline needs,
// so tests can substitute a fake.
type HybridExecutor interface {
	Execute(ctx context.Context, plan domain.Plan) (hybrid.Result, error)
}

// Pipeline runs a free-text question through analysis, hybrid
// retrieval, and (if configured) agent re-ranking.
type Pipeline struct {
	catalogue *opening.Catalogue
	executor  HybridExecutor
	fetcher   PGNFetcher
	evaluator *agent.Evaluator
	log       zerolog.Logger
}

// New constructs a Pipeline. evaluator may be nil, in which case the
// agent stage is skipped and Response.Agent is never populated.
func New(catalogue *opening.Catalogue, executor HybridExecutor, fetcher PGNFetcher, evaluator *agent.Evaluator, log zerolog.Logger) *Pipeline {
	return &Pipeline{catalogue: catalogue, executor: executor, fetcher: fetcher, evaluator: evaluator, log: log}
}

// AgentSummary is the optional cost/usage envelope returned alongside a
// re-ranked result set.
type AgentSummary struct {
	Calls            int     `json:"calls"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	ReasoningTokens  int     `json:"reasoning_tokens"`
	EstimatedCostUSD float64 `json:"cost_usd"`
}

// Response is the pipeline's output, matching spec §6's POST /query
// body shape.
type Response struct {
	Plan     domain.Plan
	Results  []domain.ScoredResult
	Warnings []string
	Agent    *AgentSummary
}

// Run analyses question, executes the hybrid search, and (when an
// evaluator is configured) re-ranks the result with the agent stage.
func (p *Pipeline) Run(ctx context.Context, question string) (Response, error) {
	plan := intent.Analyse(p.catalogue, question)

	hr, err := p.executor.Execute(ctx, plan)
	if err != nil {
		return Response{}, fmt.Errorf("hybrid execute: %w", err)
	}

	resp := Response{Plan: plan, Results: hr.Results, Warnings: hr.Warnings}
	if p.evaluator == nil || len(hr.Results) == 0 {
		return resp, nil
	}

	gameIDs := make([]string, len(hr.Results))
	pgnByGame := make(map[string]int, len(hr.Results))
	for i, r := range hr.Results {
		gameIDs[i] = r.Game.GameID
		pgnByGame[r.Game.GameID] = i
	}

	details, err := p.fetcher.FetchGamesWithPGN(ctx, gameIDs)
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to load PGN for agent stage, skipping re-rank")
		resp.Warnings = append(resp.Warnings, "agent stage skipped: could not load game text")
		return resp, nil
	}

	candidates := make([]agent.Candidate, 0, len(details))
	for _, d := range details {
		idx, ok := pgnByGame[d.GameID]
		if !ok {
			continue
		}
		candidates = append(candidates, agent.Candidate{Result: hr.Results[idx], PGN: d.PGN})
	}

	reranked, tel, warnings := p.evaluator.Rerank(ctx, plan, candidates)
	resp.Results = reranked
	resp.Warnings = append(resp.Warnings, warnings...)
	resp.Agent = &AgentSummary{
		Calls:            tel.Calls,
		InputTokens:      tel.InputTokens,
		OutputTokens:     tel.OutputTokens,
		ReasoningTokens:  tel.ReasoningTokens,
		EstimatedCostUSD: tel.EstimatedCostUSD,
	}
	return resp, nil
}
