package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	require.Equal(t, 2*time.Hour, c.ReleaseBucketDuration)
	require.Equal(t, 1500*time.Millisecond, c.RequestTime)
	require.Equal(t, 14, c.RetentionDays)
	require.Equal(t, 16, c.GaenKeySizeBytes)
	require.False(t, c.RandomKeysEnabled)
	require.Equal(t, 10, c.RandomKeyAmount)
	require.Equal(t, "1.2.840.10045.4.3.2", c.GaenAlgorithm)
	require.Equal(t, "es", c.GaenRegion)
	require.Equal(t, 2*time.Hour, c.TimeSkew)
	require.Equal(t, "ES", c.EFGSCountryOrigin)
	require.Equal(t, int32(1), c.EFGSReportType)
	require.Equal(t, 14*24*time.Hour, c.Retention())
}
