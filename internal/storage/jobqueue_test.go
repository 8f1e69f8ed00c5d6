package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func newMockQueue(t *testing.T) (*JobQueue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bunDB := bun.NewDB(db, pgdialect.New())
	return NewJobQueue(bunDB, 5), mock
}

func TestJobQueue_Enqueue(t *testing.T) {
	q, mock := newMockQueue(t)
	positionID := uuid.New()

	mock.ExpectExec("INSERT INTO embedding_jobs").
		WithArgs(positionID, "startpos").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := q.Enqueue(context.Background(), positionID.String(), "startpos")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_Claim_EmptyBatch(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM embedding_jobs").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "position_id", "fen", "status", "attempts", "last_error",
			"enqueued_at", "started_at", "completed_at",
		}))
	mock.ExpectCommit()

	jobs, err := q.Claim(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_Claim_MarksInProgress(t *testing.T) {
	q, mock := newMockQueue(t)
	jobID := uuid.New()
	positionID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM embedding_jobs").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "position_id", "fen", "status", "attempts", "last_error",
			"enqueued_at", "started_at", "completed_at",
		}).AddRow(jobID, positionID, "startpos", "pending", 0, "", now, nil, nil))
	mock.ExpectExec("UPDATE embedding_jobs SET status = 'in_progress'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	jobs, err := q.Claim(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID.String(), jobs[0].ID)
	assert.Equal(t, "in_progress", jobs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_Complete(t *testing.T) {
	q, mock := newMockQueue(t)
	jobID := uuid.New()

	mock.ExpectExec("UPDATE embedding_jobs SET status = 'completed'").
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.Complete(context.Background(), jobID.String())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_Fail_RetriesUnderLimit(t *testing.T) {
	q, mock := newMockQueue(t)
	jobID := uuid.New()

	mock.ExpectExec("UPDATE embedding_jobs\\s+SET status = 'pending'").
		WithArgs(jobID, "transient error").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.Fail(context.Background(), jobID.String(), 1, errors.New("transient error"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_Fail_TerminalAtLimit(t *testing.T) {
	q, mock := newMockQueue(t)
	jobID := uuid.New()

	mock.ExpectExec("UPDATE embedding_jobs\\s+SET status = 'failed'").
		WithArgs(jobID, "terminal error").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.Fail(context.Background(), jobID.String(), 5, errors.New("terminal error"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_ReclaimStale(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec("UPDATE embedding_jobs\\s+SET status = 'pending'").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := q.ReclaimStale(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_CountByStatus(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectQuery("SELECT status, count").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).
			AddRow("completed", 7))

	counts, err := q.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts["pending"])
	assert.Equal(t, 7, counts["completed"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_PruneCompletedAgainstPositions(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec("UPDATE embedding_jobs\\s+SET status = 'completed'").
		WithArgs(100).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := q.PruneCompletedAgainstPositions(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobQueue_PruneCompletedAgainstPositions_DefaultsBatch(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec("UPDATE embedding_jobs\\s+SET status = 'completed'").
		WithArgs(1000).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := q.PruneCompletedAgainstPositions(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
