package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/utc"
)

// Refresher regenerates the synthetic key set.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CleanDataJob sweeps expired keys and spent upload nonces.
func CleanDataJob(keys repository.KeyStore, redeem repository.RedeemStore, retention time.Duration, clock utc.Clock, log *zap.Logger) Job {
	return Job{
		Name:    "cleanData",
		MinHold: 15 * time.Second,
		MaxHold: 10 * time.Minute,
		Run: func(ctx context.Context) error {
			now := clock.Now()
			deletedKeys, err := keys.CleanDB(ctx, retention, now)
			if err != nil {
				return err
			}
			deletedNonces, err := redeem.CleanDB(ctx, now)
			if err != nil {
				return err
			}
			log.Info("clean data finished",
				zap.Int64("deletedKeys", deletedKeys),
				zap.Int64("deletedNonces", deletedNonces))
			return nil
		},
	}
}

// UpdateFakeKeysJob regenerates the padding key set.
func UpdateFakeKeysJob(svc Refresher) Job {
	return Job{
		Name:    "updateFakeKeys",
		MinHold: time.Minute,
		MaxHold: 30 * time.Minute,
		Run:     svc.Refresh,
	}
}
