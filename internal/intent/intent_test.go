package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/chessmate/internal/opening"
)

func TestAnalyse_KingsIndianExample(t *testing.T) {
	cat := opening.New()
	plan := Analyse(cat, "Find 3 King's Indian games where white is 2500 and black within 100 points")

	assert.Equal(t, 3, plan.Limit)
	require.NotNil(t, plan.Rating.WhiteMin)
	assert.Equal(t, 2500, *plan.Rating.WhiteMin)
	require.NotNil(t, plan.Rating.MaxRatingDelta)
	assert.Equal(t, 100, *plan.Rating.MaxRatingDelta)
	assert.Nil(t, plan.Rating.BlackMin)

	var hasOpening, hasRange bool
	for _, f := range plan.Filters {
		if f.Field == "opening" && f.Value == "kings_indian_defense" {
			hasOpening = true
		}
		if f.Field == "eco_range" && f.Value == "E60-E99" {
			hasRange = true
		}
	}
	assert.True(t, hasOpening, "expected opening filter, got %+v", plan.Filters)
	assert.True(t, hasRange, "expected eco_range filter, got %+v", plan.Filters)
}

func TestAnalyse_LimitClampedLow(t *testing.T) {
	cat := opening.New()
	plan := Analyse(cat, "show 0 games about endgames")
	assert.Equal(t, minLimit, plan.Limit)
}

func TestAnalyse_LimitClampedHigh(t *testing.T) {
	cat := opening.New()
	plan := Analyse(cat, "top 9999 results")
	assert.Equal(t, maxLimit, plan.Limit)
}

func TestAnalyse_LimitDefault(t *testing.T) {
	cat := opening.New()
	plan := Analyse(cat, "games with sacrifices")
	assert.Equal(t, defaultLimit, plan.Limit)
}

func TestAnalyse_EnglishNumeral(t *testing.T) {
	cat := opening.New()
	plan := Analyse(cat, "find seven games with a queenside majority")
	assert.Equal(t, 7, plan.Limit)

	var hasTheme bool
	for _, f := range plan.Filters {
		if f.Field == "theme" && f.Value == "queenside_majority" {
			hasTheme = true
		}
	}
	assert.True(t, hasTheme)
}

func TestAnalyse_BothRatingSetsWhiteAndBlack(t *testing.T) {
	cat := opening.New()
	plan := Analyse(cat, "find 5 games where both is 2600")
	require.NotNil(t, plan.Rating.WhiteMin)
	require.NotNil(t, plan.Rating.BlackMin)
	assert.Equal(t, 2600, *plan.Rating.WhiteMin)
	assert.Equal(t, 2600, *plan.Rating.BlackMin)
}

func TestAnalyse_KeywordsDropStopwordsAndDedup(t *testing.T) {
	cat := opening.New()
	plan := Analyse(cat, "show the sicilian games with a sicilian sacrifice")
	for _, kw := range plan.Keywords {
		assert.NotEqual(t, "the", kw)
		assert.NotEqual(t, "with", kw)
		assert.NotEqual(t, "a", kw)
	}
	seen := map[string]bool{}
	for _, kw := range plan.Keywords {
		assert.False(t, seen[kw], "duplicate keyword %q", kw)
		seen[kw] = true
	}
}
