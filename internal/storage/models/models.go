// Package models holds the bun row models backing the Metadata Repository
// and Job Queue.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PlayerModel is a unique (name, fed_id) row, created on first reference.
type PlayerModel struct {
	bun.BaseModel `bun:"table:players,alias:pl"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	Name       string    `bun:"name,notnull"`
	FedID      string    `bun:"fed_id,notnull,default:''"`
	PeakRating *int      `bun:"peak_rating"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// GameModel is immutable after insert.
type GameModel struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	WhiteID     uuid.UUID  `bun:"white_id,notnull,type:uuid"`
	BlackID     uuid.UUID  `bun:"black_id,notnull,type:uuid"`
	Event       string     `bun:"event,notnull,default:''"`
	Site        string     `bun:"site,notnull,default:''"`
	Round       string     `bun:"round,notnull,default:''"`
	PlayedOn    *time.Time `bun:"played_on"`
	Result      string     `bun:"result,notnull"`
	ECOCode     string     `bun:"eco_code,notnull,default:''"`
	OpeningSlug string     `bun:"opening_slug,notnull,default:''"`
	OpeningName string     `bun:"opening_name,notnull,default:''"`
	WhiteRating *int       `bun:"white_rating"`
	BlackRating *int       `bun:"black_rating"`
	PGN         string     `bun:"pgn,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`

	White *PlayerModel `bun:"rel:belongs-to,join:white_id=id"`
	Black *PlayerModel `bun:"rel:belongs-to,join:black_id=id"`
}

// PositionModel belongs to exactly one GameModel; (game_id, ply) is unique.
type PositionModel struct {
	bun.BaseModel `bun:"table:positions,alias:pos"`

	ID         uuid.UUID `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	GameID     uuid.UUID `bun:"game_id,notnull,type:uuid"`
	Ply        int       `bun:"ply,notnull"`
	MoveNumber int       `bun:"move_number,notnull"`
	SideToMove string    `bun:"side_to_move,notnull"`
	SAN        string    `bun:"san,notnull"`
	FEN        string    `bun:"fen,notnull"`
	VectorID   string    `bun:"vector_id,notnull,default:''"`
}

// EmbeddingJobModel backs the durable job queue; PositionID is unique —
// each position has at most one live job.
type EmbeddingJobModel struct {
	bun.BaseModel `bun:"table:embedding_jobs,alias:ej"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	PositionID  uuid.UUID  `bun:"position_id,notnull,type:uuid,unique"`
	FEN         string     `bun:"fen,notnull"`
	Status      string     `bun:"status,notnull,default:'pending'"`
	Attempts    int        `bun:"attempts,notnull,default:0"`
	LastError   string     `bun:"last_error,notnull,default:''"`
	EnqueuedAt  time.Time  `bun:"enqueued_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
}
