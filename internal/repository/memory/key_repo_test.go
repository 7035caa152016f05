package memory

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/utc"
)

const bucket = 2 * time.Hour

func key(data string, start utc.UTCInstant) model.GaenKey {
	n, _ := start.Get10MinutesSince1970()
	return model.GaenKey{
		KeyData:            base64.StdEncoding.EncodeToString([]byte(data)),
		RollingStartNumber: uint32(n),
		RollingPeriod:      144,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	r := NewKeyRepo(bucket)
	ctx := context.Background()
	now := utc.OfTime(time.Date(2020, 6, 25, 5, 0, 0, 0, time.UTC))

	keys := []model.GaenKey{key("testKey16Bytes00", now.StartOfDay())}

	n, err := r.UpsertExposed(ctx, keys, now.NextBucket(bucket), "ES", 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = r.UpsertExposed(ctx, keys, now.NextBucket(bucket), "ES", 1)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 1, r.Len())
}

func TestGetSortedExposedSince_OrderAndBounds(t *testing.T) {
	r := NewKeyRepo(bucket)
	ctx := context.Background()
	now := utc.OfTime(time.Date(2020, 6, 25, 5, 0, 0, 0, time.UTC))

	closed := now.Minus(4 * time.Hour).BucketStart(bucket)
	open := now.BucketStart(bucket) // current, not yet closed

	_, err := r.UpsertExposed(ctx, []model.GaenKey{
		key("zzzzKey16Bytes00", now.StartOfDay()),
		key("aaaaKey16Bytes00", now.StartOfDay()),
	}, closed, "ES", 1)
	require.NoError(t, err)
	_, err = r.UpsertExposed(ctx, []model.GaenKey{
		key("mmmmKey16Bytes00", now.StartOfDay()),
	}, open, "ES", 1)
	require.NoError(t, err)

	got, err := r.GetSortedExposedSince(ctx, utc.OfEpochMillis(0), now, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2) // the open bucket stays invisible
	require.True(t, got[0].KeyData < got[1].KeyData)
}

func TestCountryFilters(t *testing.T) {
	r := NewKeyRepo(bucket)
	ctx := context.Background()
	now := utc.OfTime(time.Date(2020, 6, 25, 5, 0, 0, 0, time.UTC))
	closed := now.Minus(4 * time.Hour).BucketStart(bucket)

	es := key("aaaaKey16Bytes00", now.StartOfDay())
	es.CountryOrigin = "ES"
	it := key("bbbbKey16Bytes00", now.StartOfDay())
	it.CountryOrigin = "IT"

	_, err := r.UpsertExposed(ctx, []model.GaenKey{es}, closed, "ES", 1)
	require.NoError(t, err)
	_, err = r.UpsertExposed(ctx, []model.GaenKey{it}, closed, "IT", 1)
	require.NoError(t, err)

	got, err := r.GetSortedExposedSince(ctx, utc.OfEpochMillis(0), now, []string{"IT"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, it.KeyData, got[0].KeyData)

	got, err = r.GetSortedExposedSince(ctx, utc.OfEpochMillis(0), now, nil, []string{"ES"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, es.KeyData, got[0].KeyData)
}

func TestCleanDBRespectsRetention(t *testing.T) {
	r := NewKeyRepo(bucket)
	ctx := context.Background()
	now := utc.OfTime(time.Date(2020, 6, 25, 5, 0, 0, 0, time.UTC))
	closed := now.Minus(4 * time.Hour).BucketStart(bucket)

	_, err := r.UpsertExposed(ctx, []model.GaenKey{
		key("oldkKey16Bytes00", now.Minus(20*24*time.Hour)),
		key("newkKey16Bytes00", now.Minus(24*time.Hour)),
	}, closed, "ES", 1)
	require.NoError(t, err)

	n, err := r.CleanDB(ctx, 14*24*time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 1, r.Len())
}
