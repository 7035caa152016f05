package fakekeys

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/repository/memory"
	"github.com/openexposure/gaen-server/internal/utc"
)

func newService(store *memory.KeyRepo, clock utc.Clock) *Service {
	return New(Options{
		Store:         store,
		Clock:         clock,
		Amount:        10,
		RetentionDays: 14,
		KeySizeBytes:  16,
		ReleaseBucket: 2 * time.Hour,
		CountryOrigin: "ES",
		ReportType:    1,
		Logger:        zap.NewNop(),
	})
}

func TestRefreshFillsEveryDayBucket(t *testing.T) {
	bucket := 2 * time.Hour
	store := memory.NewKeyRepo(bucket)
	now := utc.OfTime(time.Date(2020, 6, 25, 10, 0, 0, 0, time.UTC))
	clock := &utc.FixedClock{Instant: now}

	s := newService(store, clock)
	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, 10*14, store.Len())

	// every synthetic key is already visible to downloads
	got, err := store.GetSortedExposedSince(context.Background(), utc.OfEpochMillis(0), now, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 10*14)
	for _, k := range got {
		require.Equal(t, uint32(144), k.RollingPeriod)
		require.Equal(t, int32(0), k.Fake)
		require.Equal(t, "ES", k.CountryOrigin)
		require.Equal(t, int32(1), k.ReportType)
	}
}

func TestRefreshReplacesThePreviousSet(t *testing.T) {
	bucket := 2 * time.Hour
	store := memory.NewKeyRepo(bucket)
	now := utc.OfTime(time.Date(2020, 6, 25, 10, 0, 0, 0, time.UTC))
	clock := &utc.FixedClock{Instant: now}

	s := newService(store, clock)
	require.NoError(t, s.Refresh(context.Background()))
	first, err := store.GetSortedExposedSince(context.Background(), utc.OfEpochMillis(0), now, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Refresh(context.Background()))
	second, err := store.GetSortedExposedSince(context.Background(), utc.OfEpochMillis(0), now, nil, nil)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	seen := make(map[string]bool, len(first))
	for _, k := range first {
		seen[k.KeyData] = true
	}
	overlap := 0
	for _, k := range second {
		if seen[k.KeyData] {
			overlap++
		}
	}
	require.Zero(t, overlap)
}
