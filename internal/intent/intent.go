// Package intent implements the Intent Analyzer: a deterministic,
// external-call-free pass from a natural-language question to a
// structured Plan. There is no ecosystem NL parsing library anywhere in
// this codebase's dependency pack, so normalization and extraction are
// hand-rolled over stdlib regexp/strings, matching the catalogue's own
// normalize/wholeWordContains style.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/smilemakc/chessmate/internal/domain"
	"github.com/smilemakc/chessmate/internal/opening"
)

const (
	defaultLimit = 5
	minLimit     = 1
	maxLimit     = 50
)

var englishNumerals = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

var limitRE = regexp.MustCompile(`\b(?:find|show|top|give)\s+(\w+)\b.*\b(?:games|results)\b`)

var (
	ratingBothRE  = regexp.MustCompile(`\bboth\s+(?:is|at|>=|over)\s+(\d+)\b`)
	ratingWhiteRE = regexp.MustCompile(`\bwhite\s+(?:is|at|>=|over)\s+(\d+)\b`)
	ratingBlackRE = regexp.MustCompile(`\bblack\s+(?:is|at|>=|over)\s+(\d+)\b`)
	deltaWithinRE = regexp.MustCompile(`\bwithin\s+(\d+)\s+(?:points|elo)\b`)
	deltaPointsRE = regexp.MustCompile(`\b(\d+)\s+points\s+(?:lower|higher)\b`)
)

// phaseVocabulary maps a normalized phrase to its Plan field/value. Phase
// entries describe where in the game the question is focused; theme
// entries describe a tactical or strategic motif.
var phaseVocabulary = []struct {
	phrase string
	field  string
	value  string
}{
	{"middlegame", "phase", "middlegame"},
	{"endgame", "phase", "endgame"},
	{"opening", "phase", "opening"},
	{"sacrifice", "theme", "sacrifice"},
	{"king attack", "theme", "king_attack"},
	{"queenside majority", "theme", "queenside_majority"},
	{"passed pawn", "theme", "passed_pawn"},
	{"zugzwang", "theme", "zugzwang"},
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "at": true, "is": true, "are": true, "where": true,
	"find": true, "show": true, "top": true, "give": true, "games": true,
	"game": true, "results": true, "result": true, "with": true, "white": true,
	"black": true, "both": true, "within": true, "points": true, "elo": true,
	"over": true, "lower": true, "higher": true, "from": true, "to": true, "for": true,
}

// Analyse turns raw text into a Plan. It never performs I/O.
func Analyse(catalogue *opening.Catalogue, text string) domain.Plan {
	cleaned := normalize(text)

	plan := domain.Plan{
		CleanedText: cleaned,
		Limit:       extractLimit(cleaned),
		Rating:      extractRating(cleaned),
	}

	consumed := cleaned
	for _, f := range catalogue.FiltersForText(cleaned) {
		if f.Field == "opening" {
			plan.Filters = append(plan.Filters, domain.Filter{Field: "opening", Value: f.Value})
		} else {
			plan.Filters = append(plan.Filters, domain.Filter{Field: "eco_range", Value: f.Value})
		}
	}

	for _, pv := range phaseVocabulary {
		if wholeWordContains(cleaned, pv.phrase) {
			plan.Filters = append(plan.Filters, domain.Filter{Field: pv.field, Value: pv.value})
			consumed = strings.ReplaceAll(consumed, pv.phrase, " ")
		}
	}

	plan.Keywords = extractKeywords(consumed)
	return plan
}

// normalize lowercases, collapses whitespace, and strips punctuation the
// way the opening catalogue does, so Analyse and the catalogue agree on
// what "the same text" means.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func extractLimit(text string) int {
	m := limitRE.FindStringSubmatch(text)
	if m == nil {
		return defaultLimit
	}
	n, ok := parseNumber(m[1])
	if !ok {
		return defaultLimit
	}
	return clamp(n, minLimit, maxLimit)
}

func parseNumber(word string) (int, bool) {
	if n, err := strconv.Atoi(word); err == nil {
		return n, true
	}
	if n, ok := englishNumerals[word]; ok {
		return n, true
	}
	return 0, false
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func extractRating(text string) domain.RatingFilter {
	var rf domain.RatingFilter

	if m := ratingBothRE.FindStringSubmatch(text); m != nil {
		v := atoiPtr(m[1])
		rf.WhiteMin = v
		rf.BlackMin = v
	}
	if m := ratingWhiteRE.FindStringSubmatch(text); m != nil {
		rf.WhiteMin = atoiPtr(m[1])
	}
	if m := ratingBlackRE.FindStringSubmatch(text); m != nil {
		rf.BlackMin = atoiPtr(m[1])
	}
	if m := deltaWithinRE.FindStringSubmatch(text); m != nil {
		rf.MaxRatingDelta = atoiPtr(m[1])
	} else if m := deltaPointsRE.FindStringSubmatch(text); m != nil {
		rf.MaxRatingDelta = atoiPtr(m[1])
	}
	return rf
}

func atoiPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func extractKeywords(text string) []string {
	var keywords []string
	seen := map[string]bool{}
	for _, tok := range strings.Fields(text) {
		if stopwords[tok] {
			continue
		}
		if _, err := strconv.Atoi(tok); err == nil {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

func wholeWordContains(haystack, needle string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(needle) + `\b`)
	return re.MatchString(haystack)
}
