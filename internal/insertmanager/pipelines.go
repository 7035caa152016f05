package insertmanager

import (
	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/auth"
	"github.com/openexposure/gaen-server/internal/config"
	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/validation"
)

// NewExposedPipeline assembles the pipeline behind the exposed endpoints.
func NewExposedPipeline(store repository.KeyStore, utils *validation.Utils, cfg *config.Config, log *zap.Logger) *Manager {
	m := New(Options{
		Store:         store,
		CountryOrigin: cfg.EFGSCountryOrigin,
		ReportType:    cfg.EFGSReportType,
		ReleaseBucket: cfg.ReleaseBucketDuration,
		Logger:        log,
	})
	m.AddFilter(AssertKeyFormat{Utils: utils}).
		AddFilter(EnforceMatchingJWTClaims{Scope: auth.ScopeExposed}).
		AddFilter(EnforceRetentionPeriod{Utils: utils}).
		AddFilter(RemoveFakeKeys{}).
		AddFilter(EnforceValidRollingPeriod{}).
		AddModifier(OriginStamp{CountryOrigin: cfg.EFGSCountryOrigin, ReportType: cfg.EFGSReportType})
	addGatedModifiers(m, cfg)
	return m
}

// NewNextDayPipeline assembles the pipeline behind the V1 delayed-key upload.
func NewNextDayPipeline(store repository.KeyStore, utils *validation.Utils, cfg *config.Config, log *zap.Logger) *Manager {
	m := New(Options{
		Store:         store,
		CountryOrigin: cfg.EFGSCountryOrigin,
		ReportType:    cfg.EFGSReportType,
		ReleaseBucket: cfg.ReleaseBucketDuration,
		Logger:        log,
	})
	m.AddFilter(AssertKeyFormat{Utils: utils}).
		AddFilter(EnforceMatchingJWTClaims{Scope: auth.ScopeExposedNextDay}).
		AddFilter(EnforceDelayedKeyDate{}).
		AddFilter(RemoveKeysFromFuture{Skew: cfg.TimeSkew}).
		AddFilter(EnforceRetentionPeriod{Utils: utils}).
		AddFilter(RemoveFakeKeys{}).
		AddFilter(EnforceValidRollingPeriod{}).
		AddModifier(OriginStamp{CountryOrigin: cfg.EFGSCountryOrigin, ReportType: cfg.EFGSReportType})
	addGatedModifiers(m, cfg)
	return m
}

func addGatedModifiers(m *Manager, cfg *config.Config) {
	if cfg.Android0RPModifierEnabled {
		m.AddModifier(AndroidZeroRollingPeriod{})
	}
	if cfg.IOSRPLT144ModifierEnabled {
		m.AddModifier(IOSShortPeriod{})
	}
}
