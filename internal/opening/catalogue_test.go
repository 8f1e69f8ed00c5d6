package opening

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugForECO(t *testing.T) {
	c := New()
	assert.Equal(t, "kings_indian_defense", c.SlugForECO("E70"))
	assert.Equal(t, "sicilian_sveshnikov", c.SlugForECO("B33"))
	assert.Equal(t, "", c.SlugForECO("Z99"))
}

func TestFiltersForText_KingsIndian(t *testing.T) {
	c := New()
	filters := c.FiltersForText("Find King's Indian games from the 90s")

	var gotOpening, gotRange bool
	for _, f := range filters {
		if f.Field == "opening" && f.Value == "kings_indian_defense" {
			gotOpening = true
		}
		if f.Field == "eco_range" && f.Value == "E60-E99" {
			gotRange = true
		}
	}
	assert.True(t, gotOpening)
	assert.True(t, gotRange)
}

func TestFiltersForText_NoMatch(t *testing.T) {
	c := New()
	filters := c.FiltersForText("show me some games please")
	assert.Empty(t, filters)
}

func TestFiltersForText_WholeWordOnly(t *testing.T) {
	c := New()
	// "reti" should not match inside "retirement"
	filters := c.FiltersForText("games about retirement planning")
	assert.Empty(t, filters)
}

func TestHasSlug(t *testing.T) {
	c := New()
	assert.True(t, c.HasSlug("ruy_lopez"))
	assert.False(t, c.HasSlug("not_a_real_opening"))
}

func TestECORange_Contains(t *testing.T) {
	r := ECORange{"E60", "E99"}
	assert.True(t, r.Contains("E70"))
	assert.True(t, r.Contains("E60"))
	assert.True(t, r.Contains("E99"))
	assert.False(t, r.Contains("E59"))
	assert.False(t, r.Contains("D99"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "king s indian defense", normalize("  King's   Indian, Defense!! "))
}
