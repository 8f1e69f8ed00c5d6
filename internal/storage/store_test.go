package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func TestStore_CompleteEmbedding(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bunDB := bun.NewDB(db, pgdialect.New())
	s := NewStore(bunDB, 5)

	jobID, positionID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE embedding_jobs SET status = 'completed'").
		WithArgs(jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE positions SET vector_id").
		WithArgs(positionID, "vec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.CompleteEmbedding(context.Background(), jobID.String(), positionID.String(), "vec-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
