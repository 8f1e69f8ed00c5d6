// Package opening implements the static opening taxonomy: a table keyed
// by canonical slug, mapping names/synonyms/ECO ranges to each other. The
// table's row shape follows the ECOEntry style of a classic ECO
// classifier, simplified from position-hash matching (no games are
// replayed here) to the synonym/range matching the intent analyzer needs.
package opening

import (
	"regexp"
	"strings"
)

// ECORange is an inclusive range of 3-character ECO codes sharing the
// same leading letter, e.g. E60..E99.
type ECORange struct {
	From, To string
}

// Contains reports whether code falls within the range, comparing by
// letter then numeric suffix so "E60".."E99" is exact.
func (r ECORange) Contains(code string) bool {
	if len(code) != 3 || len(r.From) != 3 || len(r.To) != 3 {
		return false
	}
	if code[0] != r.From[0] || code[0] != r.To[0] {
		return false
	}
	n, ok1 := numericSuffix(code)
	lo, ok2 := numericSuffix(r.From)
	hi, ok3 := numericSuffix(r.To)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	return n >= lo && n <= hi
}

func (r ECORange) String() string {
	return r.From + "-" + r.To
}

func numericSuffix(code string) (int, bool) {
	if len(code) != 3 {
		return 0, false
	}
	n := 0
	for _, ch := range code[1:] {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}

// Entry is one catalogue row.
type Entry struct {
	Slug      string
	Name      string
	Synonyms  []string
	ECORange  ECORange
}

// Filter is one extracted opening or ECO-range hint, disjunctive with its
// siblings per the intent analyzer's semantics.
type Filter struct {
	Field string // "opening" or "eco_range"
	Value string
}

// Catalogue is the immutable, process-wide opening taxonomy.
type Catalogue struct {
	entries   []Entry
	bySlug    map[string]Entry
	synonyms  map[string]Entry // normalized synonym -> entry
}

// New builds a Catalogue from the static table. It is constructed once at
// startup and passed down explicitly; it carries no mutable state after
// construction.
func New() *Catalogue {
	c := &Catalogue{
		bySlug:   make(map[string]Entry, len(defaultEntries)),
		synonyms: make(map[string]Entry),
	}
	c.entries = append(c.entries, defaultEntries...)
	for _, e := range c.entries {
		c.bySlug[e.Slug] = e
		for _, syn := range e.Synonyms {
			c.synonyms[normalize(syn)] = e
		}
	}
	return c
}

// SlugForECO returns the most specific slug whose range contains code, or
// "" if none matches. "Most specific" means the narrowest numeric range.
func (c *Catalogue) SlugForECO(code string) string {
	best := ""
	bestWidth := -1
	for _, e := range c.entries {
		if !e.ECORange.Contains(code) {
			continue
		}
		lo, _ := numericSuffix(e.ECORange.From)
		hi, _ := numericSuffix(e.ECORange.To)
		width := hi - lo
		if bestWidth == -1 || width < bestWidth {
			best = e.Slug
			bestWidth = width
		}
	}
	return best
}

// FiltersForText returns one (opening, eco_range) Filter pair per
// whole-word synonym match found in the normalized text. Multiple
// distinct matches are all returned; callers treat them as a disjunction.
func (c *Catalogue) FiltersForText(text string) []Filter {
	normalized := normalize(text)
	seen := map[string]bool{}
	var filters []Filter

	for syn, entry := range c.synonyms {
		if !wholeWordContains(normalized, syn) {
			continue
		}
		if seen[entry.Slug] {
			continue
		}
		seen[entry.Slug] = true
		filters = append(filters, Filter{Field: "opening", Value: entry.Slug})
		filters = append(filters, Filter{Field: "eco_range", Value: entry.ECORange.String()})
	}
	return filters
}

// Entry looks up a catalogue row by slug.
func (c *Catalogue) Entry(slug string) (Entry, bool) {
	e, ok := c.bySlug[slug]
	return e, ok
}

// HasSlug reports whether slug is a known catalogue entry, used to
// enforce the invariant that Game.opening_slug is null or present in the
// catalogue.
func (c *Catalogue) HasSlug(slug string) bool {
	_, ok := c.bySlug[slug]
	return ok
}

var punctRE = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
var spaceRE = regexp.MustCompile(`\s+`)

// normalize lowercases, replaces punctuation with spaces, and collapses
// whitespace.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = punctRE.ReplaceAllString(s, " ")
	s = spaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func wholeWordContains(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(needle) + `\b`)
	return re.MatchString(haystack)
}
