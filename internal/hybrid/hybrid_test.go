package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/chessmate/internal/chesserr"
	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/storage"
	"github.com/smilemakc/chessmate/internal/vectorstore"
)

type fakeMetadata struct {
	summaries []domain.GameSummary
	err       error
}

func (f *fakeMetadata) SearchGames(ctx context.Context, params storage.SearchParams) ([]domain.GameSummary, error) {
	return f.summaries, f.err
}

type fakeVectors struct {
	hits []vectorstore.Hit
	err  error
}

func (f *fakeVectors) Search(ctx context.Context, queryVector []float32, filter vectorstore.Filter, limit int) ([]vectorstore.Hit, error) {
	return f.hits, f.err
}

func gameSummary(id, white string) domain.GameSummary {
	return domain.GameSummary{GameID: id, WhiteName: white, BlackName: "Opponent"}
}

// TestExecute_Fusion mirrors spec §8 scenario 5's shape: metadata returns
// [A,B], a vector hit exists for A (and for C, which is absent from the
// metadata set and must be excluded from the final result), and A's
// keyword overlap outweighs B's. Expected order: A ranks above B, and C
// never appears.
func TestExecute_Fusion(t *testing.T) {
	meta := &fakeMetadata{summaries: []domain.GameSummary{
		{GameID: "A", WhiteName: "kw1 kw2", BlackName: "kw3 kw4"},
		{GameID: "B", WhiteName: "kw5"},
	}}
	vectors := &fakeVectors{hits: []vectorstore.Hit{
		{ID: "p1", Score: 0.9, Payload: vectorstore.Payload{GameID: "A"}},
		{ID: "p2", Score: 0.95, Payload: vectorstore.Payload{GameID: "C"}},
	}}

	exec := New(meta, vectors, nil, zerolog.Nop())
	plan := domain.Plan{
		Limit:    10,
		Keywords: []string{"kw1", "kw2", "kw3", "kw4", "kw5"},
	}

	res, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.NotEqual(t, "C", r.Game.GameID)
	}
	assert.Equal(t, "A", res.Results[0].Game.GameID)
	assert.Equal(t, "B", res.Results[1].Game.GameID)
	assert.InDelta(t, 0.8, res.Results[0].KeywordScore, 1e-9)
	assert.Equal(t, 0.9, res.Results[0].VectorScore)
	assert.InDelta(t, 0.9*vectorWeight+0.8*keywordWeight, res.Results[0].TotalScore, 1e-9)
	assert.Empty(t, res.Warnings)
}

// TestExecute_VectorOutageDegrades matches spec §8 scenario 6.
func TestExecute_VectorOutageDegrades(t *testing.T) {
	meta := &fakeMetadata{summaries: []domain.GameSummary{gameSummary("A", "Carlsen")}}
	vectors := &fakeVectors{err: chesserr.New(chesserr.Unavailable, "vector store down")}

	exec := New(meta, vectors, nil, zerolog.Nop())
	plan := domain.Plan{Limit: 10, Keywords: []string{"carlsen"}}

	res, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 0.0, res.Results[0].VectorScore)
	assert.Equal(t, res.Results[0].KeywordScore, res.Results[0].TotalScore)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "Vector search unavailable", res.Warnings[0])
}

func TestExecute_MetadataFailureSurfaces(t *testing.T) {
	meta := &fakeMetadata{err: chesserr.New(chesserr.Unavailable, "db down")}
	vectors := &fakeVectors{}

	exec := New(meta, vectors, nil, zerolog.Nop())
	_, err := exec.Execute(context.Background(), domain.Plan{Limit: 5})
	require.Error(t, err)
	assert.True(t, chesserr.Is(err, chesserr.Unavailable))
}

func TestExecute_TieBreaksByPlayedOnThenGameID(t *testing.T) {
	older := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	meta := &fakeMetadata{summaries: []domain.GameSummary{
		{GameID: "Z", PlayedOn: &older},
		{GameID: "A", PlayedOn: &newer},
	}}
	vectors := &fakeVectors{}

	exec := New(meta, vectors, nil, zerolog.Nop())
	res, err := exec.Execute(context.Background(), domain.Plan{Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "A", res.Results[0].Game.GameID)
	assert.Equal(t, "Z", res.Results[1].Game.GameID)
}

func TestPseudoVector_Normalized(t *testing.T) {
	v := pseudoVector([]string{"sicilian", "sacrifice", "endgame"})
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-6)
}
