// Package fakekeys pads exports with synthetic keys so the published bundle
// size does not leak the true number of diagnoses.
package fakekeys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/utc"
)

// Store is the independent key store the synthetic keys live in, kept apart
// from the uploaded keys so retention sweeps and real uploads never touch
// them.
type Store interface {
	UpsertExposed(ctx context.Context, keys []model.GaenKey, receivedAt utc.UTCInstant, country string, reportType int32) (int, error)
	GetSortedExposedSince(ctx context.Context, since, now utc.UTCInstant, visitedCountries, originCountries []string) ([]model.GaenKey, error)
	DeleteAll(ctx context.Context) error
}

// Service regenerates the synthetic key set on startup and on the daily
// schedule.
type Service struct {
	store         Store
	clock         utc.Clock
	amount        int
	retentionDays int
	keySize       int
	bucket        time.Duration
	origin        string
	reportType    int32
	log           *zap.Logger
}

// Options fixes the generation parameters.
type Options struct {
	Store         Store
	Clock         utc.Clock
	Amount        int
	RetentionDays int
	KeySizeBytes  int
	ReleaseBucket time.Duration
	CountryOrigin string
	ReportType    int32
	Logger        *zap.Logger
}

// New constructs the service. Call Refresh once at startup.
func New(opts Options) *Service {
	return &Service{
		store:         opts.Store,
		clock:         opts.Clock,
		amount:        opts.Amount,
		retentionDays: opts.RetentionDays,
		keySize:       opts.KeySizeBytes,
		bucket:        opts.ReleaseBucket,
		origin:        opts.CountryOrigin,
		reportType:    opts.ReportType,
		log:           opts.Logger,
	}
}

// Refresh throws the previous synthetic set away and generates amount fresh
// keys for each of the past retentionDays whole-day buckets. Each key gets
// the receivedAt a real upload of that day would have ended up with: the
// bucket after the key's expiry.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing synthetic keys: %w", err)
	}

	now := s.clock.Now()
	total := 0
	for d := 1; d <= s.retentionDays; d++ {
		day := now.Minus(time.Duration(d) * 24 * time.Hour).StartOfDay()
		keys, err := s.generateDay(day)
		if err != nil {
			return err
		}
		receivedAt := day.Plus(24 * time.Hour).NextBucket(s.bucket)
		n, err := s.store.UpsertExposed(ctx, keys, receivedAt, s.origin, s.reportType)
		if err != nil {
			return fmt.Errorf("storing synthetic keys: %w", err)
		}
		total += n
	}
	s.log.Info("refreshed synthetic keys",
		zap.Int("keys", total),
		zap.Int("days", s.retentionDays))
	return nil
}

func (s *Service) generateDay(day utc.UTCInstant) ([]model.GaenKey, error) {
	start, err := day.Get10MinutesSince1970()
	if err != nil {
		return nil, err
	}
	keys := make([]model.GaenKey, 0, s.amount)
	for i := 0; i < s.amount; i++ {
		data := make([]byte, s.keySize)
		if _, err := rand.Read(data); err != nil {
			return nil, fmt.Errorf("generating key data: %w", err)
		}
		keys = append(keys, model.GaenKey{
			KeyData:            base64.StdEncoding.EncodeToString(data),
			RollingStartNumber: uint32(start),
			RollingPeriod:      model.MaxRollingPeriod,
			CountryOrigin:      s.origin,
			ReportType:         s.reportType,
		})
	}
	return keys, nil
}
