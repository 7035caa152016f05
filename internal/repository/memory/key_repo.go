// Package memory provides an in-process KeyStore. The fake-key service keeps
// its synthetic keys here so that retention sweeps on the main table never
// touch them and real uploads cannot collide.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/utc"
)

type rowKey struct {
	keyData string
	start   uint32
}

// KeyRepo is a mutex-guarded map with the same contract as the Postgres
// exposed-key repository.
type KeyRepo struct {
	bucket time.Duration

	mu   sync.RWMutex
	rows map[rowKey]model.ExposedKey
}

// NewKeyRepo constructs an empty in-memory key store.
func NewKeyRepo(bucket time.Duration) *KeyRepo {
	return &KeyRepo{bucket: bucket, rows: make(map[rowKey]model.ExposedKey)}
}

// UpsertExposed inserts all keys; duplicates on (keyData, rollingStartNumber)
// are skipped. Returns the number of keys actually inserted.
func (r *KeyRepo) UpsertExposed(
	_ context.Context, keys []model.GaenKey, receivedAt utc.UTCInstant, country string, reportType int32,
) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(keys, receivedAt, country, reportType), nil
}

// UpsertExposedBatches inserts all batches under one lock, so an upload
// spanning several release buckets becomes visible as a whole.
func (r *KeyRepo) UpsertExposedBatches(
	_ context.Context, batches []repository.ExposedBatch, country string, reportType int32,
) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, b := range batches {
		inserted += r.insertLocked(b.Keys, b.ReceivedAt, country, reportType)
	}
	return inserted, nil
}

func (r *KeyRepo) insertLocked(keys []model.GaenKey, receivedAt utc.UTCInstant, country string, reportType int32) int {
	inserted := 0
	for _, k := range keys {
		id := rowKey{keyData: k.KeyData, start: k.RollingStartNumber}
		if _, ok := r.rows[id]; ok {
			continue
		}
		if k.ReportType == 0 {
			k.ReportType = reportType
		}
		r.rows[id] = model.ExposedKey{GaenKey: k, ReceivedAt: receivedAt, Country: country}
		inserted++
	}
	return inserted
}

// GetSortedExposedSince returns keys with since <= receivedAt <
// bucketStart(now), sorted by keyData ascending.
func (r *KeyRepo) GetSortedExposedSince(
	_ context.Context, since, now utc.UTCInstant, visitedCountries, originCountries []string,
) ([]model.GaenKey, error) {
	maxBucket := now.BucketStart(r.bucket)

	r.mu.RLock()
	var out []model.GaenKey
	for _, row := range r.rows {
		if row.ReceivedAt.Before(since) || !row.ReceivedAt.Before(maxBucket) {
			continue
		}
		if !matches(visitedCountries, row.Country) || !matches(originCountries, row.CountryOrigin) {
			continue
		}
		out = append(out, row.GaenKey)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].KeyData < out[j].KeyData })
	return out, nil
}

// CleanDB deletes keys whose rolling start lies beyond the retention horizon.
func (r *KeyRepo) CleanDB(_ context.Context, retention time.Duration, now utc.UTCInstant) (int64, error) {
	horizon := now.Minus(retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, row := range r.rows {
		if row.ValidityStart().Before(horizon) {
			delete(r.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteAll empties the store; the fake-key refresh regenerates from scratch.
func (r *KeyRepo) DeleteAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make(map[rowKey]model.ExposedKey)
	return nil
}

// Len reports the number of stored keys.
func (r *KeyRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func matches(filter []string, val string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == val {
			return true
		}
	}
	return false
}
