package insertmanager

import (
	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/utc"
)

// OriginStamp fills in the federation origin and report type on keys the
// client left blank. Mandatory on every pipeline.
type OriginStamp struct {
	CountryOrigin string
	ReportType    int32
}

func (m OriginStamp) Modify(_ utc.UTCInstant, keys []model.GaenKey, _ model.Platform) []model.GaenKey {
	for i := range keys {
		if keys[i].CountryOrigin == "" {
			keys[i].CountryOrigin = m.CountryOrigin
		}
		if keys[i].ReportType == 0 {
			keys[i].ReportType = m.ReportType
		}
	}
	return keys
}

// AndroidZeroRollingPeriod rewrites the zero rolling period sent by old
// Android clients to a full day. Config-gated.
type AndroidZeroRollingPeriod struct{}

func (AndroidZeroRollingPeriod) Modify(_ utc.UTCInstant, keys []model.GaenKey, platform model.Platform) []model.GaenKey {
	if platform != model.PlatformAndroid {
		return keys
	}
	for i := range keys {
		if keys[i].RollingPeriod == 0 {
			keys[i].RollingPeriod = model.MaxRollingPeriod
		}
	}
	return keys
}

// IOSShortPeriod stretches short rolling periods from iOS clients to a full
// day so same-day keys stay importable. Config-gated.
type IOSShortPeriod struct{}

func (IOSShortPeriod) Modify(_ utc.UTCInstant, keys []model.GaenKey, platform model.Platform) []model.GaenKey {
	if platform != model.PlatformIOS {
		return keys
	}
	for i := range keys {
		if keys[i].RollingPeriod < model.MaxRollingPeriod {
			keys[i].RollingPeriod = model.MaxRollingPeriod
		}
	}
	return keys
}
