package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SQL kept as constants, as the claim/complete/fail statements matter bit
// for bit to the concurrency guarantees the Job Queue makes.
const (
	claimBatchSQL = `
SELECT id, position_id, fen, status, attempts, last_error, enqueued_at, started_at, completed_at
FROM embedding_jobs
WHERE status = 'pending'
ORDER BY enqueued_at ASC
FOR UPDATE SKIP LOCKED
LIMIT $1`

	markClaimedSQL = `UPDATE embedding_jobs SET status = 'in_progress', started_at = now(), attempts = attempts + 1 WHERE id = ANY($1)`

	markCompletedSQL = `UPDATE embedding_jobs SET status = 'completed', completed_at = now() WHERE id = $1`

	markFailedRetrySQL = `
UPDATE embedding_jobs
SET status = 'pending', last_error = $2, started_at = NULL
WHERE id = $1`

	markFailedTerminalSQL = `
UPDATE embedding_jobs
SET status = 'failed', last_error = $2, completed_at = now()
WHERE id = $1`

	reclaimStaleSQL = `
UPDATE embedding_jobs
SET status = 'pending', started_at = NULL
WHERE status = 'in_progress' AND started_at < $1`

	countByStatusSQL = `SELECT status, count(*) FROM embedding_jobs GROUP BY status`

	flipCompletedAgainstPositionsSQL = `
UPDATE embedding_jobs
SET status = 'completed', completed_at = now()
WHERE id IN (
	SELECT ej.id
	FROM embedding_jobs ej
	JOIN positions p ON p.id = ej.position_id
	WHERE ej.status = 'pending' AND p.vector_id <> ''
	LIMIT $1
)`
)

// Job is one claimed or queued unit of embedding work.
type Job struct {
	ID          string
	PositionID  string
	FEN         string
	Status      string
	Attempts    int
	LastError   string
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// JobQueue implements the durable embedding job queue backing the
// Embedding Worker Pool: atomic claim via FOR UPDATE SKIP LOCKED so
// concurrent workers never see the same pending row twice. db is
// bun.IDB so Enqueue can run inside the Ingestion Controller's per-game
// transaction; bunDB is kept separately because Claim must open its own
// top-level transaction and nested bun transactions aren't supported.
type JobQueue struct {
	db    bun.IDB
	bunDB *bun.DB

	maxAttempts int
}

// NewJobQueue wraps db. maxAttempts bounds retry before a job is marked
// terminally failed.
func NewJobQueue(db *bun.DB, maxAttempts int) *JobQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &JobQueue{db: db, bunDB: db, maxAttempts: maxAttempts}
}

// WithTx returns a JobQueue whose Enqueue/Complete/Fail statements run
// against tx. Claim is not meaningful on a tx-scoped queue and is not
// exposed through this path.
func (q *JobQueue) WithTx(tx bun.Tx) *JobQueue {
	return &JobQueue{db: tx, maxAttempts: q.maxAttempts}
}

// NewJobQueueTx is a JobQueue scoped directly to tx, for callers that
// never hold a non-transactional handle.
func NewJobQueueTx(tx bun.Tx, maxAttempts int) *JobQueue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &JobQueue{db: tx, maxAttempts: maxAttempts}
}

// Enqueue creates a pending job for a position. Positions have at most
// one live job; a second enqueue for the same position is a no-op.
func (q *JobQueue) Enqueue(ctx context.Context, positionID, fen string) error {
	id, err := uuid.Parse(positionID)
	if err != nil {
		return fmt.Errorf("invalid position id: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
INSERT INTO embedding_jobs (position_id, fen, status)
VALUES ($1, $2, 'pending')
ON CONFLICT (position_id) DO NOTHING`, id, fen)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Claim atomically leases up to batchSize pending jobs and marks them
// in_progress, returning them to the caller for embedding.
func (q *JobQueue) Claim(ctx context.Context, batchSize int) ([]Job, error) {
	var jobs []Job

	err := q.bunDB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		rows, err := tx.QueryContext(ctx, claimBatchSQL, batchSize)
		if err != nil {
			return fmt.Errorf("select ready jobs: %w", err)
		}
		ids := make([]uuid.UUID, 0, batchSize)
		for rows.Next() {
			var j Job
			var id uuid.UUID
			if err := rows.Scan(&id, &j.PositionID, &j.FEN, &j.Status, &j.Attempts,
				&j.LastError, &j.EnqueuedAt, &j.StartedAt, &j.CompletedAt); err != nil {
				rows.Close()
				return fmt.Errorf("scan claimed job: %w", err)
			}
			j.ID = id.String()
			ids = append(ids, id)
			jobs = append(jobs, j)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, markClaimedSQL, pqArray(ids)); err != nil {
			return fmt.Errorf("mark claimed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Status = "in_progress"
		jobs[i].Attempts++
	}
	return jobs, nil
}

// Complete marks a job completed after its embedding was upserted.
func (q *JobQueue) Complete(ctx context.Context, jobID string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}
	_, err = q.db.ExecContext(ctx, markCompletedSQL, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// Fail records a job failure. attempts is the job's current attempt count
// (already incremented by Claim); jobs under maxAttempts go back to
// pending for retry, jobs at the limit are marked terminally failed.
func (q *JobQueue) Fail(ctx context.Context, jobID string, attempts int, cause error) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	stmt := markFailedRetrySQL
	if attempts >= q.maxAttempts {
		stmt = markFailedTerminalSQL
	}
	if _, err := q.db.ExecContext(ctx, stmt, id, msg); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ReclaimStale resets in_progress jobs whose worker died without
// completing them within timeout back to pending.
func (q *JobQueue) ReclaimStale(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	res, err := q.db.ExecContext(ctx, reclaimStaleSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns the number of jobs in each lifecycle state, used
// for admission control against CHESSMATE_MAX_PENDING_EMBEDDINGS.
func (q *JobQueue) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, countByStatusSQL)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PruneCompletedAgainstPositions flips up to batch pending jobs whose
// owning position already carries a vector_id to completed, reconciling
// jobs left stale when a position was re-ingested after it was already
// embedded. Call repeatedly until it returns 0 to settle a backlog larger
// than batch.
func (q *JobQueue) PruneCompletedAgainstPositions(ctx context.Context, batch int) (int64, error) {
	if batch <= 0 {
		batch = 1000
	}
	res, err := q.db.ExecContext(ctx, flipCompletedAgainstPositionsSQL, batch)
	if err != nil {
		return 0, fmt.Errorf("prune completed jobs: %w", err)
	}
	return res.RowsAffected()
}

// pqArray renders a uuid slice as a Postgres array literal for ANY($1).
func pqArray(ids []uuid.UUID) string {
	s := "{"
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += id.String()
	}
	s += "}"
	return s
}
