package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/chessmate/internal/config"
)

// Connect opens a pooled Postgres connection through bun, adapted from
// the teacher's storage.NewDB: a pgdriver connector sized by cfg, wrapped
// in bun.DB, verified with a ping before returning.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.URL),
		pgdriver.WithTimeout(30*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.MaxConnections)
	sqldb.SetConnMaxIdleTime(cfg.MaxIdleTime)
	sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
