// Package hybrid implements the Hybrid Executor: it runs the metadata
// and vector lookups a Plan implies, fuses their scores, and returns an
// ordered result set. It degrades to keyword-only scoring when the
// vector store reports Unavailable, per spec §4.9/§7.
package hybrid

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/embedder"
	"github.com/smilemakc/chessmate/internal/storage"
	"github.com/smilemakc/chessmate/internal/vectorstore"
)

const (
	pseudoVectorDim  = 8
	vectorSearchSize = 100
	vectorWeight     = 0.7
	keywordWeight    = 0.3
	fallbackBase     = 0.5
	fallbackPerMatch = 0.01
	fallbackCap      = 0.7
)

// MetadataSearcher is the subset of *storage.Repository the executor
// needs, so tests can substitute a fake.
type MetadataSearcher interface {
	SearchGames(ctx context.Context, params storage.SearchParams) ([]domain.GameSummary, error)
}

// VectorSearcher is the subset of *vectorstore.Store the executor needs.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, filter vectorstore.Filter, limit int) ([]vectorstore.Hit, error)
}

// Executor runs plans end to end. Embed may be nil, in which case the
// query vector is derived from plan keywords via a hash-and-normalize
// heuristic (see §9's open question on query-vector derivation).
type Executor struct {
	metadata MetadataSearcher
	vectors  VectorSearcher
	embed    embedder.Embedder
	log      zerolog.Logger
}

// New constructs an Executor.
func New(metadata MetadataSearcher, vectors VectorSearcher, embed embedder.Embedder, log zerolog.Logger) *Executor {
	return &Executor{metadata: metadata, vectors: vectors, embed: embed, log: log}
}

// Result is the Hybrid Executor's response envelope.
type Result struct {
	Results  []domain.ScoredResult
	Warnings []string
}

// Execute runs plan through metadata search, vector search, fusion, and
// truncation.
func (e *Executor) Execute(ctx context.Context, plan domain.Plan) (Result, error) {
	overfetch := plan.Limit * 10
	if overfetch < 50 {
		overfetch = 50
	}

	summaries, err := e.metadata.SearchGames(ctx, storage.SearchParams{
		Filters: plan.Filters,
		Rating:  plan.Rating,
		Limit:   overfetch,
	})
	if err != nil {
		return Result{}, chesserr.Wrap(chesserr.Unavailable, "metadata search failed", err)
	}

	var warnings []string
	hitsByGame, degraded, err := e.searchVectors(ctx, plan)
	if err != nil {
		return Result{}, err
	}
	useVector := !degraded
	if degraded {
		warnings = append(warnings, "Vector search unavailable")
	}

	scored := make([]domain.ScoredResult, len(summaries))
	for i, summary := range summaries {
		matches := keywordMatches(plan.Keywords, summary)
		keywordScore := float64(matches) / float64(maxInt(1, len(plan.Keywords)))

		var vectorScore float64
		if useVector {
			if hit, ok := hitsByGame[summary.GameID]; ok {
				vectorScore = hit.Score
			} else {
				vectorScore = math.Min(fallbackCap, fallbackBase+fallbackPerMatch*float64(matches))
			}
		}

		vw, kw := vectorWeight, keywordWeight
		if degraded {
			vw, kw = 0, 1
		}
		total := vw*vectorScore + kw*keywordScore

		scored[i] = domain.ScoredResult{
			Game:         summary,
			VectorScore:  vectorScore,
			KeywordScore: keywordScore,
			TotalScore:   total,
			FinalScore:   total,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].TotalScore != scored[j].TotalScore {
			return scored[i].TotalScore > scored[j].TotalScore
		}
		pi, pj := scored[i].Game.PlayedOn, scored[j].Game.PlayedOn
		switch {
		case pi != nil && pj != nil && !pi.Equal(*pj):
			return pi.After(*pj)
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		return scored[i].Game.GameID < scored[j].Game.GameID
	})

	if len(scored) > plan.Limit {
		scored = scored[:plan.Limit]
	}

	return Result{Results: scored, Warnings: warnings}, nil
}

// searchVectors returns vector hits indexed by game_id (highest score per
// game kept), and whether the search degraded due to an Unavailable
// vector store.
func (e *Executor) searchVectors(ctx context.Context, plan domain.Plan) (map[string]vectorstore.Hit, bool, error) {
	queryVector, err := e.buildQueryVector(ctx, plan)
	if err != nil {
		return nil, false, fmt.Errorf("build query vector: %w", err)
	}

	hits, err := e.vectors.Search(ctx, queryVector, buildFilter(plan), vectorSearchSize)
	if err != nil {
		if chesserr.Is(err, chesserr.Unavailable) {
			e.log.Warn().Err(err).Msg("vector search unavailable, degrading to keyword-only scoring")
			return nil, true, nil
		}
		return nil, false, chesserr.Wrap(chesserr.Unavailable, "vector search failed", err)
	}

	byGame := make(map[string]vectorstore.Hit, len(hits))
	for _, h := range hits {
		existing, ok := byGame[h.Payload.GameID]
		if !ok || h.Score > existing.Score {
			byGame[h.Payload.GameID] = h
		}
	}
	return byGame, false, nil
}

func (e *Executor) buildQueryVector(ctx context.Context, plan domain.Plan) ([]float32, error) {
	if e.embed != nil {
		vecs, err := e.embed.Embed(ctx, []string{plan.CleanedText})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 1 {
			return vecs[0], nil
		}
	}
	return pseudoVector(plan.Keywords), nil
}

// pseudoVector hashes each keyword into one of pseudoVectorDim buckets
// and L2-normalizes the result, per §9's compatibility fallback.
func pseudoVector(keywords []string) []float32 {
	v := make([]float32, pseudoVectorDim)
	for _, kw := range keywords {
		h := fnv.New32a()
		_, _ = h.Write([]byte(kw))
		v[h.Sum32()%pseudoVectorDim]++
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// buildFilter translates the plan filters the vector payload schema can
// express: opening_slug/result equality and elo lower bounds. eco_range
// and max_rating_delta have no single-key representation in the
// payload and are already enforced by the metadata search.
func buildFilter(plan domain.Plan) vectorstore.Filter {
	f := vectorstore.Filter{Equals: map[string]any{}, Ranges: map[string]vectorstore.Range{}}
	for _, filt := range plan.Filters {
		switch filt.Field {
		case "opening":
			f.Equals["opening_slug"] = filt.Value
		case "result":
			f.Equals["result"] = filt.Value
		}
	}
	if plan.Rating.WhiteMin != nil {
		gte := float64(*plan.Rating.WhiteMin)
		f.Ranges["white_elo"] = vectorstore.Range{Gte: &gte}
	}
	if plan.Rating.BlackMin != nil {
		gte := float64(*plan.Rating.BlackMin)
		f.Ranges["black_elo"] = vectorstore.Range{Gte: &gte}
	}
	if len(f.Equals) == 0 {
		f.Equals = nil
	}
	if len(f.Ranges) == 0 {
		f.Ranges = nil
	}
	return f
}

func keywordMatches(keywords []string, summary domain.GameSummary) int {
	text := strings.ToLower(summary.WhiteName + " " + summary.BlackName + " " + summary.OpeningName + " " + summary.Event)
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			matches++
		}
	}
	return matches
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
