package postgres

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/openexposure/gaen-server/internal/utc"
)

func TestRedeemRepo_Insert_Unseen(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRedeemRepo(db)

	nonce := uuid.Must(uuid.NewV4())
	expiry := utc.OfEpochMillis(1593086400000)

	mock.ExpectExec(`INSERT INTO t_redeem`).
		WithArgs(nonce, expiry.Timestamp()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ok, err := r.Insert(context.Background(), nonce, expiry)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemRepo_Insert_Replayed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRedeemRepo(db)

	nonce := uuid.Must(uuid.NewV4())
	expiry := utc.OfEpochMillis(1593086400000)

	mock.ExpectExec(`INSERT INTO t_redeem`).
		WithArgs(nonce, expiry.Timestamp()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	ok, err := r.Insert(context.Background(), nonce, expiry)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemRepo_CleanDB(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewRedeemRepo(db)

	now := utc.OfEpochMillis(1593086400000)
	mock.ExpectExec(`DELETE FROM t_redeem WHERE expiry < \$1`).
		WithArgs(now.Timestamp()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := r.CleanDB(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
