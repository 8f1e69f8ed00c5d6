// Package embedder wraps the OpenAI embeddings API the way the teacher
// wraps chat completions: a thin client carrying its own default model
// and API key, resolved once at construction rather than per call.
package embedder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/smilemakc/chessmate/internal/chesserr"
)

// MaxBatch is the largest number of FENs the embedder accepts in one
// call, per the worker pool's batching contract.
const MaxBatch = 16

// Embedder turns FEN strings into vectors. Implementations must return
// vectors in the same order as the input.
type Embedder interface {
	Embed(ctx context.Context, fens []string) ([][]float32, error)
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// New constructs an OpenAIEmbedder. apiKey, model, and timeout come from
// config.EmbedderConfig.
func New(apiKey, model string, timeout time.Duration, log zerolog.Logger) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
		log:     log,
	}
}

// Embed requests embeddings for up to MaxBatch FENs in one call and
// returns vectors in input order. Network and 5xx/429 failures are
// wrapped chesserr.Transient; authentication and malformed-request
// failures are wrapped chesserr.Transient too (per spec, they're
// retryable but counted against attempts by the caller).
func (e *OpenAIEmbedder) Embed(ctx context.Context, fens []string) ([][]float32, error) {
	if len(fens) == 0 {
		return nil, nil
	}
	if len(fens) > MaxBatch {
		return nil, chesserr.New(chesserr.BadInput, fmt.Sprintf("batch of %d exceeds max %d", len(fens), MaxBatch))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: fens,
		Model: openai.EmbeddingModel(e.model),
	})
	latency := time.Since(start)
	if err != nil {
		e.log.Warn().Err(err).Dur("latency", latency).Int("batch", len(fens)).Msg("embedding request failed")
		return nil, chesserr.Wrap(chesserr.Transient, "embedding request failed", err)
	}
	if len(resp.Data) != len(fens) {
		return nil, chesserr.New(chesserr.Transient, "embedding response size mismatch")
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vectors[d.Index] = d.Embedding
	}
	e.log.Debug().Dur("latency", latency).Int("batch", len(fens)).Int("tokens", resp.Usage.TotalTokens).Msg("embedding batch complete")
	return vectors, nil
}
