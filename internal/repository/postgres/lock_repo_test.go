package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/openexposure/gaen-server/internal/utc"
)

func TestLockRepo_Acquire_Won(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLockRepo(db)

	now := utc.OfEpochMillis(1593086400000)
	until := now.Plus(30 * time.Minute)

	mock.ExpectExec(`INSERT INTO t_shedlock`).
		WithArgs("cleanData", until.Timestamp(), now.Timestamp(), "replica-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := r.Acquire(context.Background(), "cleanData", "replica-1", now, until)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepo_Acquire_HeldByOther(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLockRepo(db)

	now := utc.OfEpochMillis(1593086400000)
	until := now.Plus(30 * time.Minute)

	mock.ExpectExec(`INSERT INTO t_shedlock`).
		WithArgs("cleanData", until.Timestamp(), now.Timestamp(), "replica-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := r.Acquire(context.Background(), "cleanData", "replica-2", now, until)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepo_Release(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewLockRepo(db)

	until := utc.OfEpochMillis(1593086400000)
	mock.ExpectExec(`UPDATE t_shedlock SET lock_until = \$3`).
		WithArgs("cleanData", "replica-1", until.Timestamp()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.Release(context.Background(), "cleanData", "replica-1", until))
	require.NoError(t, mock.ExpectationsWereMet())
}
