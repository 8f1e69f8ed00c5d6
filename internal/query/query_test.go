package query

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/chessmate/internal/agent"
	"github.com/smilemakc/chessmate/internal/config"
	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/hybrid"
	"github.com/smilemakc/chessmate/internal/opening"
)

type fakeChatClient struct{}

func (fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: `{"score":0.8}`}}},
	}, nil
}

type fakeExecutor struct {
	result hybrid.Result
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, plan domain.Plan) (hybrid.Result, error) {
	return f.result, f.err
}

type fakeFetcher struct {
	details []domain.GameDetail
	err     error
}

func (f *fakeFetcher) FetchGamesWithPGN(ctx context.Context, gameIDs []string) ([]domain.GameDetail, error) {
	return f.details, f.err
}

func TestRun_WithoutAgentReturnsHybridResultVerbatim(t *testing.T) {
	exec := &fakeExecutor{result: hybrid.Result{
		Results: []domain.ScoredResult{{Game: domain.GameSummary{GameID: "A"}, TotalScore: 0.9}},
	}}
	p := New(opening.New(), exec, &fakeFetcher{}, nil, zerolog.Nop())

	resp, err := p.Run(context.Background(), "find 5 sicilian games")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "A", resp.Results[0].Game.GameID)
	assert.Nil(t, resp.Agent)
}

func TestRun_HybridFailureSurfaces(t *testing.T) {
	exec := &fakeExecutor{err: assertError{"metadata down"}}
	p := New(opening.New(), exec, &fakeFetcher{}, nil, zerolog.Nop())

	_, err := p.Run(context.Background(), "find games")
	require.Error(t, err)
}

func TestRun_FetchFailureDegradesGracefullyWithAgentConfigured(t *testing.T) {
	exec := &fakeExecutor{result: hybrid.Result{
		Results: []domain.ScoredResult{{Game: domain.GameSummary{GameID: "A"}}},
	}}
	eval := agent.New(fakeChatClient{}, config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 0.5}, zerolog.Nop())
	p := New(opening.New(), exec, &fakeFetcher{err: assertError{"db down"}}, eval, zerolog.Nop())

	resp, err := p.Run(context.Background(), "find games")
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Nil(t, resp.Agent)
	require.NotEmpty(t, resp.Warnings)
}

func TestRun_WithAgentRerankMergesScores(t *testing.T) {
	exec := &fakeExecutor{result: hybrid.Result{
		Results: []domain.ScoredResult{{Game: domain.GameSummary{GameID: "A"}, TotalScore: 0.2}},
	}}
	fetcher := &fakeFetcher{details: []domain.GameDetail{{GameSummary: domain.GameSummary{GameID: "A"}, PGN: "1. e4 e5"}}}
	eval := agent.New(fakeChatClient{}, config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 0.5}, zerolog.Nop())
	p := New(opening.New(), exec, fetcher, eval, zerolog.Nop())

	resp, err := p.Run(context.Background(), "find games")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.NotNil(t, resp.Agent)
	assert.Equal(t, 1, resp.Agent.Calls)
	require.NotNil(t, resp.Results[0].AgentScore)
	assert.InDelta(t, 0.8, *resp.Results[0].AgentScore, 1e-9)
	assert.InDelta(t, 0.5*0.2+0.5*0.8, resp.Results[0].FinalScore, 1e-9)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
