// Package domain holds the value types chessmate's pipeline operates on:
// Player, Game, Position, and EmbeddingJob, and the result shapes the
// hybrid executor and agent evaluator produce.
package domain

import "time"

// Result is a chess game's outcome.
type Result string

const (
	ResultWhiteWin Result = "1-0"
	ResultBlackWin Result = "0-1"
	ResultDraw     Result = "½-½"
	ResultUnknown  Result = "*"
)

// Side is which color moved.
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

// JobStatus is an EmbeddingJob's lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Player is a unique (name, federation id) pair. Created on first
// reference; never mutated after insert except to raise PeakRating.
type Player struct {
	ID         string
	Name       string
	FedID      string // "" if unknown
	PeakRating *int
}

// Game is immutable after insert.
type Game struct {
	ID           string
	WhiteID      string
	BlackID      string
	Event        string
	Site         string
	Round        string
	PlayedOn     *time.Time
	Result       Result
	ECOCode      string // "" if unknown
	OpeningSlug  string // "" if unknown
	OpeningName  string // "" if unknown
	WhiteRating  *int
	BlackRating  *int
	PGN          string
}

// Position belongs to exactly one Game.
type Position struct {
	ID         string
	GameID     string
	Ply        int
	MoveNumber int
	SideToMove Side
	SAN        string
	FEN        string
	VectorID   string // "" until embedded
}

// EmbeddingJob tracks the at-most-one live job per Position.
type EmbeddingJob struct {
	ID          string
	PositionID  string
	FEN         string
	Status      JobStatus
	Attempts    int
	LastError   string
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// GameSummary is the row shape search_games returns: enough to score and
// render a result without the full PGN text.
type GameSummary struct {
	GameID      string
	WhiteName   string
	BlackName   string
	WhiteRating *int
	BlackRating *int
	Event       string
	OpeningSlug string
	OpeningName string
	ECOCode     string
	Result      Result
	PlayedOn    *time.Time
}

// GameDetail is GameSummary plus the full PGN text, used once a result
// set has been ranked and needs to be rendered or sent to the agent.
type GameDetail struct {
	GameSummary
	PGN string
}

// RatingFilter is the rating-constraint portion of a parsed Plan.
type RatingFilter struct {
	WhiteMin       *int
	BlackMin       *int
	MaxRatingDelta *int
}

// Filter is one structured plan filter: opening slug, eco_range, result,
// phase, or theme.
type Filter struct {
	Field string
	Value string
}

// Plan is the Intent Analyzer's pure-data output.
type Plan struct {
	CleanedText string
	Limit       int
	Filters     []Filter
	Rating      RatingFilter
	Keywords    []string
}

// ScoredResult is one ranked game in a Hybrid Executor or Agent Evaluator
// response.
type ScoredResult struct {
	Game         GameSummary
	VectorScore  float64
	KeywordScore float64
	TotalScore   float64
	AgentScore   *float64
	FinalScore   float64
	Themes       []string
	Explanation  string
}
