// Package agent implements the optional Agent Evaluator: a
// bounded-concurrency re-ranking stage over an LLM, adapted from the
// teacher's OpenAICompletionExecutor (chat completion call shape) and
// RetryExecutor (attempt/backoff/jitter shape), generalized from
// workflow-node execution to scoring chess games.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/smilemakc/chessmate/internal/config"
	"github.com/smilemakc/chessmate/internal/domain"
)

const (
	maxAttempts       = 3
	retryBaseDelay    = 200 * time.Millisecond
	retryMaxDelay     = 2 * time.Second
	pgnTruncateLength = 2000
)

// ChatClient is the subset of *openai.Client the evaluator needs, so
// tests can substitute a fake without a network dependency.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Candidate is one post-ranking result plus the PGN text the agent needs
// to judge it.
type Candidate struct {
	Result domain.ScoredResult
	PGN    string
}

// Telemetry aggregates per-query cost/usage accounting.
type Telemetry struct {
	Calls            int
	CacheHits        int
	InputTokens      int
	OutputTokens     int
	ReasoningTokens  int
	EstimatedCostUSD float64
}

// Evaluator re-ranks the Hybrid Executor's top-K using an LLM judge.
type Evaluator struct {
	client ChatClient
	cfg    config.AgentConfig
	cache  *lruCache
	log    zerolog.Logger
}

// New constructs an Evaluator against an already-configured client.
func New(client ChatClient, cfg config.AgentConfig, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		client: client,
		cfg:    cfg,
		cache:  newLRUCache(cfg.CacheCapacity),
		log:    log,
	}
}

// NewOpenAI constructs an Evaluator backed by the OpenAI API.
func NewOpenAI(cfg config.AgentConfig, log zerolog.Logger) *Evaluator {
	return New(openai.NewClient(cfg.APIKey), cfg, log)
}

// verdict is the JSON object the agent is asked to return per candidate.
type verdict struct {
	Score       float64  `json:"score"`
	Themes      []string `json:"themes"`
	Explanation string   `json:"explanation"`
}

// Rerank scores candidates concurrently (bounded by AGENT_MAX_CONCURRENCY),
// merges each agent_score into total_score with weight AGENT_WEIGHT,
// re-sorts, and returns the updated results alongside aggregate
// telemetry and any per-candidate warnings.
func (e *Evaluator) Rerank(ctx context.Context, plan domain.Plan, candidates []Candidate) ([]domain.ScoredResult, Telemetry, []string) {
	fingerprint := Fingerprint(plan)

	results := make([]domain.ScoredResult, len(candidates))
	telemetries := make([]Telemetry, len(candidates))
	warnings := make([]string, len(candidates))

	sem := make(chan struct{}, maxInt(1, e.cfg.MaxConcurrency))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cand Candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			v, tel, warn := e.evaluate(ctx, fingerprint, cand)

			r := cand.Result
			score := v.Score
			r.AgentScore = &score
			r.Themes = v.Themes
			r.Explanation = v.Explanation
			r.FinalScore = (1-e.cfg.Weight)*r.TotalScore + e.cfg.Weight*score

			results[i] = r
			telemetries[i] = tel
			warnings[i] = warn
		}(i, cand)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	var total Telemetry
	var nonEmptyWarnings []string
	for i, tel := range telemetries {
		total.Calls += tel.Calls
		total.CacheHits += tel.CacheHits
		total.InputTokens += tel.InputTokens
		total.OutputTokens += tel.OutputTokens
		total.ReasoningTokens += tel.ReasoningTokens
		total.EstimatedCostUSD += tel.EstimatedCostUSD
		if warnings[i] != "" {
			nonEmptyWarnings = append(nonEmptyWarnings, warnings[i])
		}
	}
	return results, total, nonEmptyWarnings
}

func (e *Evaluator) evaluate(ctx context.Context, fingerprint string, cand Candidate) (verdict, Telemetry, string) {
	key := cacheKey(e.cfg.Model, e.cfg.ReasoningEffort, fingerprint, cand.Result.Game.GameID)
	if hit, ok := e.cache.Get(key); ok {
		return verdict{Score: hit.Score, Themes: hit.Themes, Explanation: hit.Explanation}, Telemetry{CacheHits: 1}, ""
	}

	prompt := buildPrompt(fingerprint, cand)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return neutralVerdict(), Telemetry{Calls: attempt - 1}, "agent evaluation cancelled"
			case <-time.After(jitteredDelay(attempt)):
			}
		}

		start := time.Now()
		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: e.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		latency := time.Since(start)
		if err != nil {
			lastErr = err
			e.log.Warn().Err(err).Int("attempt", attempt).Str("game_id", cand.Result.Game.GameID).Msg("agent call failed")
			continue
		}

		tel := e.telemetryFor(resp, latency)
		tel.Calls = attempt
		if len(resp.Choices) == 0 {
			return neutralVerdict(), tel, "agent returned no choices"
		}

		v, parseErr := parseVerdict(resp.Choices[0].Message.Content)
		if parseErr != nil {
			e.log.Warn().Err(parseErr).Str("game_id", cand.Result.Game.GameID).Msg("agent returned malformed JSON")
			return neutralVerdict(), tel, "agent returned malformed JSON, using neutral score"
		}

		e.cache.Set(key, cacheEntry{Score: v.Score, Themes: v.Themes, Explanation: v.Explanation})
		return v, tel, ""
	}

	e.log.Error().Err(lastErr).Str("game_id", cand.Result.Game.GameID).Msg("agent evaluation exhausted retries")
	return neutralVerdict(), Telemetry{Calls: maxAttempts}, "agent evaluation failed after retries, using neutral score"
}

func (e *Evaluator) telemetryFor(resp openai.ChatCompletionResponse, latency time.Duration) Telemetry {
	reasoningTokens := 0
	if resp.Usage.CompletionTokensDetails != nil {
		reasoningTokens = resp.Usage.CompletionTokensDetails.ReasoningTokens
	}
	cost := float64(resp.Usage.PromptTokens)/1000*e.cfg.CostInputPer1K +
		float64(resp.Usage.CompletionTokens)/1000*e.cfg.CostOutputPer1K +
		float64(reasoningTokens)/1000*e.cfg.CostReasoningPer1K

	e.log.Info().
		Str("tag", "agent-telemetry").
		Int64("latency_ms", latency.Milliseconds()).
		Int("input_tokens", resp.Usage.PromptTokens).
		Int("output_tokens", resp.Usage.CompletionTokens).
		Int("reasoning_tokens", reasoningTokens).
		Str("reasoning_effort", e.cfg.ReasoningEffort).
		Float64("estimated_cost_usd", cost).
		Msg("agent call complete")

	return Telemetry{
		Calls:            1,
		InputTokens:      resp.Usage.PromptTokens,
		OutputTokens:     resp.Usage.CompletionTokens,
		ReasoningTokens:  reasoningTokens,
		EstimatedCostUSD: cost,
	}
}

func neutralVerdict() verdict {
	return verdict{Score: 0.5}
}

func parseVerdict(content string) (verdict, error) {
	content = strings.TrimSpace(content)
	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return verdict{}, fmt.Errorf("decode agent verdict: %w", err)
	}
	if v.Score < 0 || v.Score > 1 {
		return verdict{}, fmt.Errorf("agent score %v out of range", v.Score)
	}
	return v, nil
}

func buildPrompt(fingerprint string, cand Candidate) string {
	pgn := cand.PGN
	if len(pgn) > pgnTruncateLength {
		pgn = pgn[:pgnTruncateLength] + "..."
	}
	var b strings.Builder
	b.WriteString("You are judging how well a chess game matches a search query.\n")
	b.WriteString("Query fingerprint: " + fingerprint + "\n")
	b.WriteString("Game: " + cand.Result.Game.WhiteName + " vs " + cand.Result.Game.BlackName + "\n")
	b.WriteString("Opening: " + cand.Result.Game.OpeningName + " (" + cand.Result.Game.ECOCode + ")\n")
	b.WriteString("PGN:\n" + pgn + "\n")
	b.WriteString(`Respond with a JSON object only: {"score": 0..1, "themes": [...], "explanation": "..."}`)
	return b.String()
}

// jitteredDelay mirrors the teacher's RetryExecutor backoff shape:
// exponential growth capped at retryMaxDelay, plus up to 10% jitter.
func jitteredDelay(attempt int) time.Duration {
	delay := float64(retryBaseDelay) * float64(uint(1)<<uint(attempt-1))
	if delay > float64(retryMaxDelay) {
		delay = float64(retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// Fingerprint derives a stable identifier for a Plan's query-relevant
// fields, used to key the agent cache across requests with identical
// intent.
func Fingerprint(plan domain.Plan) string {
	h := sha256.New()
	h.Write([]byte(plan.CleanedText))
	h.Write([]byte(strconv.Itoa(plan.Limit)))
	filters := append([]domain.Filter(nil), plan.Filters...)
	sort.Slice(filters, func(i, j int) bool {
		if filters[i].Field != filters[j].Field {
			return filters[i].Field < filters[j].Field
		}
		return filters[i].Value < filters[j].Value
	})
	for _, f := range filters {
		h.Write([]byte(f.Field + "=" + f.Value + ";"))
	}
	if plan.Rating.WhiteMin != nil {
		h.Write([]byte("white_min=" + strconv.Itoa(*plan.Rating.WhiteMin) + ";"))
	}
	if plan.Rating.BlackMin != nil {
		h.Write([]byte("black_min=" + strconv.Itoa(*plan.Rating.BlackMin) + ";"))
	}
	if plan.Rating.MaxRatingDelta != nil {
		h.Write([]byte("max_delta=" + strconv.Itoa(*plan.Rating.MaxRatingDelta) + ";"))
	}
	keywords := append([]string(nil), plan.Keywords...)
	sort.Strings(keywords)
	h.Write([]byte(strings.Join(keywords, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

func cacheKey(model, reasoningEffort, planFingerprint, gameID string) string {
	return model + "|" + reasoningEffort + "|" + planFingerprint + "|" + gameID
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
