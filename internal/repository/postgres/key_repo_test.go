package postgres

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/utc"
)

const bucket = 2 * time.Hour

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func testKey(data string, start int64) model.GaenKey {
	return model.GaenKey{
		KeyData:               base64.StdEncoding.EncodeToString([]byte(data)),
		RollingStartNumber:    uint32(start),
		RollingPeriod:         144,
		TransmissionRiskLevel: 1,
	}
}

func TestKeyRepo_UpsertExposed_CountsInserted(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db, bucket)

	ctx := context.Background()
	receivedAt := utc.OfEpochMillis(1593086400000)
	k1 := testKey("testKey16Bytes00", 2650000)
	k2 := testKey("testKey16Bytes01", 2650000)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t_exposed`).
		WithArgs(k1.KeyData, int64(2650000), int32(144), int32(1),
			receivedAt.Timestamp(), "ES", "", int32(1), int32(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO t_exposed`).
		WithArgs(k2.KeyData, int64(2650000), int32(144), int32(1),
			receivedAt.Timestamp(), "ES", "", int32(1), int32(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0)) // conflict, already present
	mock.ExpectCommit()

	n, err := r.UpsertExposed(ctx, []model.GaenKey{k1, k2}, receivedAt, "ES", 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_UpsertExposed_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db, bucket)

	receivedAt := utc.OfEpochMillis(1593086400000)
	k := testKey("testKey16Bytes00", 2650000)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t_exposed`).
		WithArgs(k.KeyData, int64(2650000), int32(144), int32(1),
			receivedAt.Timestamp(), "ES", "", int32(1), int32(0)).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := r.UpsertExposed(context.Background(), []model.GaenKey{k}, receivedAt, "ES", 1)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_UpsertExposedBatches_SingleTransaction(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db, bucket)

	first := utc.OfEpochMillis(1593086400000)
	second := first.Plus(16 * time.Hour)
	k1 := testKey("testKey16Bytes00", 2650000)
	k2 := testKey("testKey16Bytes01", 2650144)

	// a failure in the second bucket rolls back the first as well
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO t_exposed`).
		WithArgs(k1.KeyData, int64(2650000), int32(144), int32(1),
			first.Timestamp(), "ES", "", int32(1), int32(0)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO t_exposed`).
		WithArgs(k2.KeyData, int64(2650144), int32(144), int32(1),
			second.Timestamp(), "ES", "", int32(1), int32(0)).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	batches := []repository.ExposedBatch{
		{Keys: []model.GaenKey{k1}, ReceivedAt: first},
		{Keys: []model.GaenKey{k2}, ReceivedAt: second},
	}
	_, err := r.UpsertExposedBatches(context.Background(), batches, "ES", 1)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_GetSortedExposedSince_BucketUpperBound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db, bucket)

	now := utc.OfTime(time.Date(2020, 6, 25, 5, 30, 0, 0, time.UTC))
	since := now.Minus(24 * time.Hour).BucketStart(bucket)

	rows := pgxmock.NewRows([]string{
		"key_data", "rolling_start_number", "rolling_period", "transmission_risk",
		"origin", "report_type", "days_since_onset",
	}).
		AddRow("AAAA", int64(2650000), int32(144), int32(0), "ES", int32(1), int32(0)).
		AddRow("BBBB", int64(2650144), int32(144), int32(0), "ES", int32(1), int32(0))

	mock.ExpectQuery(`SELECT key_data, rolling_start_number`).
		WithArgs(since.Timestamp(), now.BucketStart(bucket).Timestamp(), []string{}, []string{}).
		WillReturnRows(rows)

	keys, err := r.GetSortedExposedSince(context.Background(), since, now, nil, nil)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "AAAA", keys[0].KeyData)
	require.Equal(t, uint32(2650144), keys[1].RollingStartNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_GetSortedExposedSince_CountryFilters(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db, bucket)

	now := utc.OfTime(time.Date(2020, 6, 25, 5, 30, 0, 0, time.UTC))
	since := now.Minus(24 * time.Hour).BucketStart(bucket)

	mock.ExpectQuery(`SELECT key_data, rolling_start_number`).
		WithArgs(since.Timestamp(), now.BucketStart(bucket).Timestamp(),
			[]string{"IT", "DE"}, []string{"ES"}).
		WillReturnRows(pgxmock.NewRows([]string{
			"key_data", "rolling_start_number", "rolling_period", "transmission_risk",
			"origin", "report_type", "days_since_onset",
		}))

	keys, err := r.GetSortedExposedSince(context.Background(), since, now,
		[]string{"IT", "DE"}, []string{"ES"})
	require.NoError(t, err)
	require.Empty(t, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyRepo_CleanDB(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db, bucket)

	now := utc.OfTime(time.Date(2020, 6, 25, 0, 0, 0, 0, time.UTC))
	retention := 14 * 24 * time.Hour

	mock.ExpectExec(`DELETE FROM t_exposed WHERE rolling_start_number \* 600000 < \$1`).
		WithArgs(now.Minus(retention).Timestamp()).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := r.CleanDB(context.Background(), retention, now)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
