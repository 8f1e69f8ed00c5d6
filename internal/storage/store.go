package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Store combines the Metadata Repository and Job Queue behind one handle
// so the Embedding Worker Pool can commit a completed job and its
// position's vector_id atomically, per the worker's single-transaction
// requirement.
type Store struct {
	*Repository
	*JobQueue

	db *bun.DB
}

// NewStore wraps db for both the Metadata Repository and Job Queue.
func NewStore(db *bun.DB, maxAttempts int) *Store {
	return &Store{
		Repository: NewRepository(db),
		JobQueue:   NewJobQueue(db, maxAttempts),
		db:         db,
	}
}

// CompleteEmbedding marks jobID completed and records vectorID on
// positionID's row in a single transaction, so a crash between the two
// writes can never leave a completed job pointing at an un-vectored
// position.
func (s *Store) CompleteEmbedding(ctx context.Context, jobID, positionID, vectorID string) error {
	jid, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}
	pid, err := uuid.Parse(positionID)
	if err != nil {
		return fmt.Errorf("invalid position id: %w", err)
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, markCompletedSQL, jid); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE positions SET vector_id = $2 WHERE id = $1`, pid, vectorID); err != nil {
			return fmt.Errorf("set vector id: %w", err)
		}
		return nil
	})
}
