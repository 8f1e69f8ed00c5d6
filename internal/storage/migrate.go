package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrator wraps bun's migrate.Migrator the way the rest of the pipeline
// wraps bun: a thin adapter that logs via the injected logger instead of
// a package-level default.
type Migrator struct {
	migrator *migrate.Migrator
	log      zerolog.Logger
}

// NewMigrator registers the chessmate schema migrations against db.
func NewMigrator(db *bun.DB, log zerolog.Logger) (*Migrator, error) {
	migrations := migrate.NewMigrations()
	if err := migrations.Register(upSchema, downSchema); err != nil {
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	return &Migrator{migrator: migrate.NewMigrator(db, migrations), log: log}, nil
}

// Init initializes bun's migration tracking tables.
func (m *Migrator) Init(ctx context.Context) error {
	return m.migrator.Init(ctx)
}

// Up runs all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	group, err := m.migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if group.IsZero() {
		m.log.Info().Msg("no new migrations to run")
		return nil
	}
	m.log.Info().Int64("group_id", group.ID).Msg("migrations applied")
	return nil
}

func upSchema(ctx context.Context, db *bun.DB) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,
		`CREATE TABLE IF NOT EXISTS players (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			name TEXT NOT NULL,
			fed_id TEXT NOT NULL DEFAULT '',
			peak_rating INTEGER,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(name, fed_id)
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			white_id UUID NOT NULL REFERENCES players(id),
			black_id UUID NOT NULL REFERENCES players(id),
			event TEXT NOT NULL DEFAULT '',
			site TEXT NOT NULL DEFAULT '',
			round TEXT NOT NULL DEFAULT '',
			played_on TIMESTAMPTZ,
			result TEXT NOT NULL,
			eco_code TEXT NOT NULL DEFAULT '',
			opening_slug TEXT NOT NULL DEFAULT '',
			opening_name TEXT NOT NULL DEFAULT '',
			white_rating INTEGER,
			black_rating INTEGER,
			pgn TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_opening_slug ON games (opening_slug)`,
		`CREATE INDEX IF NOT EXISTS idx_games_eco_code ON games (eco_code)`,
		`CREATE INDEX IF NOT EXISTS idx_games_white_rating ON games (white_rating)`,
		`CREATE INDEX IF NOT EXISTS idx_games_black_rating ON games (black_rating)`,
		`CREATE INDEX IF NOT EXISTS idx_games_played_on ON games (played_on)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			ply INTEGER NOT NULL,
			move_number INTEGER NOT NULL,
			side_to_move TEXT NOT NULL,
			san TEXT NOT NULL,
			fen TEXT NOT NULL,
			vector_id TEXT NOT NULL DEFAULT '',
			UNIQUE(game_id, ply)
		)`,
		`CREATE TABLE IF NOT EXISTS embedding_jobs (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			position_id UUID NOT NULL UNIQUE REFERENCES positions(id) ON DELETE CASCADE,
			fen TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embedding_jobs_status_enqueued ON embedding_jobs (status, enqueued_at)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func downSchema(ctx context.Context, db *bun.DB) error {
	statements := []string{
		`DROP TABLE IF EXISTS embedding_jobs`,
		`DROP TABLE IF EXISTS positions`,
		`DROP TABLE IF EXISTS games`,
		`DROP TABLE IF EXISTS players`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
