// Package insertmanager runs uploaded keys through an ordered pipeline of
// filters and modifiers before writing them to the key store.
package insertmanager

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openexposure/gaen-server/internal/auth"
	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/utc"
)

// Filter inspects the surviving keys and returns the subset to keep. A filter
// may instead return an error, which aborts the whole insert.
type Filter interface {
	Filter(now utc.UTCInstant, keys []model.GaenKey, p *auth.Principal) ([]model.GaenKey, error)
}

// Modifier rewrites keys. Modifiers never fail; a key that cannot be
// transformed passes through unchanged.
type Modifier interface {
	Modify(now utc.UTCInstant, keys []model.GaenKey, platform model.Platform) []model.GaenKey
}

// Manager is the upload pipeline: filters in order, then modifiers in order,
// then a single atomic store write.
type Manager struct {
	store      repository.KeyStore
	filters    []Filter
	modifiers  []Modifier
	origin     string
	reportType int32
	bucket     time.Duration
	log        *zap.Logger
}

// Options fixes the pipeline's store write parameters.
type Options struct {
	Store         repository.KeyStore
	CountryOrigin string
	ReportType    int32
	ReleaseBucket time.Duration
	Logger        *zap.Logger
}

// New builds a manager around the given store. Filters and modifiers are
// added with AddFilter/AddModifier in the order they should run.
func New(opts Options) *Manager {
	return &Manager{
		store:      opts.Store,
		origin:     opts.CountryOrigin,
		reportType: opts.ReportType,
		bucket:     opts.ReleaseBucket,
		log:        opts.Logger,
	}
}

// AddFilter appends a filter stage.
func (m *Manager) AddFilter(f Filter) *Manager {
	m.filters = append(m.filters, f)
	return m
}

// AddModifier appends a modifier stage.
func (m *Manager) AddModifier(mod Modifier) *Manager {
	m.modifiers = append(m.modifiers, mod)
	return m
}

// InsertIntoDatabase runs the pipeline over the uploaded keys and writes all
// survivors in one atomic store write. Hard filter failures abort before any
// row is written.
func (m *Manager) InsertIntoDatabase(ctx context.Context, keys []model.GaenKey, userAgent string, p *auth.Principal, now utc.UTCInstant) error {
	var err error
	for _, f := range m.filters {
		keys, err = f.Filter(now, keys, p)
		if err != nil {
			return err
		}
	}

	platform := model.PlatformFromUserAgent(userAgent)
	for _, mod := range m.modifiers {
		keys = mod.Modify(now, keys, platform)
	}

	if len(keys) == 0 {
		return nil
	}

	// An already-expired key belongs to the bucket open at upload time and
	// is served once that bucket closes. A key still valid at upload must
	// not be published while clients may still broadcast it, so its release
	// bucket is pushed past its expiry.
	groups := make(map[int64][]model.GaenKey)
	for _, k := range keys {
		receivedAt := now.BucketStart(m.bucket)
		if k.ValidityEnd().After(now) {
			receivedAt = k.ValidityEnd().NextBucket(m.bucket)
		}
		groups[receivedAt.Timestamp()] = append(groups[receivedAt.Timestamp()], k)
	}

	batches := make([]repository.ExposedBatch, 0, len(groups))
	for ts, group := range groups {
		batches = append(batches, repository.ExposedBatch{Keys: group, ReceivedAt: utc.OfEpochMillis(ts)})
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ReceivedAt.Before(batches[j].ReceivedAt) })

	n, err := m.store.UpsertExposedBatches(ctx, batches, m.origin, m.reportType)
	if err != nil {
		return err
	}
	m.log.Debug("inserted exposed keys",
		zap.Int("inserted", n),
		zap.Int("uploaded", len(keys)),
		zap.Int("buckets", len(batches)))
	return nil
}
