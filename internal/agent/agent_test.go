package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/chessmate/internal/config"
	"github.com/smilemakc/chessmate/internal/domain"
)

type fakeChatClient struct {
	calls     int32
	responses []fakeResponse
}

type fakeResponse struct {
	content string
	err     error
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := atomic.AddInt32(&f.calls, 1) - 1
	if int(i) >= len(f.responses) {
		i = int32(len(f.responses) - 1)
	}
	r := f.responses[i]
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: r.content}},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func baseCandidate(gameID string, total float64) Candidate {
	return Candidate{
		Result: domain.ScoredResult{Game: domain.GameSummary{GameID: gameID}, TotalScore: total},
		PGN:    "1. e4 e5 2. Nf3 Nc6",
	}
}

func TestRerank_MergesAndResorts(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{content: `{"score": 0.2, "themes": ["quiet"], "explanation": "nothing special"}`},
		{content: `{"score": 0.9, "themes": ["sacrifice"], "explanation": "brilliant attack"}`},
	}}
	cfg := config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 0.5}
	eval := New(client, cfg, zerolog.Nop())

	candidates := []Candidate{
		baseCandidate("A", 0.9),
		baseCandidate("B", 0.3),
	}

	results, tel, warnings := eval.Rerank(context.Background(), domain.Plan{Limit: 2}, candidates)
	require.Len(t, results, 2)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, tel.Calls)

	assert.Equal(t, "B", results[0].Game.GameID)
	require.NotNil(t, results[0].AgentScore)
	assert.InDelta(t, 0.9, *results[0].AgentScore, 1e-9)
	assert.InDelta(t, 0.5*0.3+0.5*0.9, results[0].FinalScore, 1e-9)

	assert.Equal(t, "A", results[1].Game.GameID)
	assert.InDelta(t, 0.5*0.9+0.5*0.2, results[1].FinalScore, 1e-9)
}

func TestRerank_MalformedJSONFallsBackNeutral(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{{content: "not json"}}}
	cfg := config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 1.0}
	eval := New(client, cfg, zerolog.Nop())

	results, _, warnings := eval.Rerank(context.Background(), domain.Plan{Limit: 1}, []Candidate{baseCandidate("A", 0.5)})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].AgentScore)
	assert.Equal(t, 0.5, *results[0].AgentScore)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "malformed JSON")
}

func TestRerank_RetriesThenSucceeds(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{err: errors.New("rate limited")},
		{content: `{"score": 0.75}`},
	}}
	cfg := config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 1.0}
	eval := New(client, cfg, zerolog.Nop())

	results, tel, warnings := eval.Rerank(context.Background(), domain.Plan{Limit: 1}, []Candidate{baseCandidate("A", 0.0)})
	require.Len(t, results, 1)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, tel.Calls)
	require.NotNil(t, results[0].AgentScore)
	assert.Equal(t, 0.75, *results[0].AgentScore)
}

func TestRerank_ExhaustsRetriesFallsBackNeutral(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{err: errors.New("boom")},
	}}
	cfg := config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 1.0}
	eval := New(client, cfg, zerolog.Nop())

	results, tel, warnings := eval.Rerank(context.Background(), domain.Plan{Limit: 1}, []Candidate{baseCandidate("A", 0.0)})
	require.Len(t, results, 1)
	assert.Equal(t, 0.5, *results[0].AgentScore)
	assert.Equal(t, maxAttempts, tel.Calls)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "retries")
}

func TestRerank_CacheHitSkipsCall(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{{content: `{"score": 0.6}`}}}
	cfg := config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 1.0, CacheCapacity: 10}
	eval := New(client, cfg, zerolog.Nop())

	plan := domain.Plan{Limit: 1}
	cand := baseCandidate("A", 0.0)

	_, tel1, _ := eval.Rerank(context.Background(), plan, []Candidate{cand})
	assert.Equal(t, 1, tel1.Calls)

	results2, tel2, _ := eval.Rerank(context.Background(), plan, []Candidate{cand})
	assert.Equal(t, 0, tel2.Calls)
	assert.Equal(t, 1, tel2.CacheHits)
	require.NotNil(t, results2[0].AgentScore)
	assert.Equal(t, 0.6, *results2[0].AgentScore)

	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
}

func TestRerank_CacheDisabledByDefaultCapacityZero(t *testing.T) {
	client := &fakeChatClient{responses: []fakeResponse{
		{content: `{"score": 0.6}`},
		{content: `{"score": 0.6}`},
	}}
	cfg := config.AgentConfig{Model: "gpt-5", MaxConcurrency: 1, Weight: 1.0}
	eval := New(client, cfg, zerolog.Nop())

	plan := domain.Plan{Limit: 1}
	cand := baseCandidate("A", 0.0)

	eval.Rerank(context.Background(), plan, []Candidate{cand})
	_, tel2, _ := eval.Rerank(context.Background(), plan, []Candidate{cand})
	assert.Equal(t, 1, tel2.Calls)
	assert.Equal(t, 0, tel2.CacheHits)
}

func TestFingerprint_StableAcrossFilterOrder(t *testing.T) {
	p1 := domain.Plan{
		CleanedText: "king's indian games",
		Limit:       3,
		Filters:     []domain.Filter{{Field: "opening", Value: "kings_indian_defense"}, {Field: "eco_range", Value: "E60-E99"}},
		Keywords:    []string{"b", "a"},
	}
	p2 := domain.Plan{
		CleanedText: "king's indian games",
		Limit:       3,
		Filters:     []domain.Filter{{Field: "eco_range", Value: "E60-E99"}, {Field: "opening", Value: "kings_indian_defense"}},
		Keywords:    []string{"a", "b"},
	}
	assert.Equal(t, Fingerprint(p1), Fingerprint(p2))
}

func TestFingerprint_DiffersOnLimit(t *testing.T) {
	p1 := domain.Plan{CleanedText: "x", Limit: 3}
	p2 := domain.Plan{CleanedText: "x", Limit: 5}
	assert.NotEqual(t, Fingerprint(p1), Fingerprint(p2))
}
