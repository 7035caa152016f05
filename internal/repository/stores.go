// Package repository defines the persistence contracts for exposed keys,
// upload-token nonces and scheduler leases.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/utc"
)

// ExposedBatch groups uploaded keys sharing one release bucket.
type ExposedBatch struct {
	Keys       []model.GaenKey
	ReceivedAt utc.UTCInstant
}

// KeyStore is the persistent set of TEKs indexed by rolling-start and
// receivedAt.
type KeyStore interface {
	// UpsertExposed inserts all keys atomically with the given release
	// bucket; (keyData, rollingStartNumber) conflicts are silently ignored.
	// Returns the number of rows actually inserted.
	UpsertExposed(ctx context.Context, keys []model.GaenKey, receivedAt utc.UTCInstant, country string, reportType int32) (int, error)

	// UpsertExposedBatches inserts all batches as one atomic write: either
	// every batch commits or none does.
	UpsertExposedBatches(ctx context.Context, batches []ExposedBatch, country string, reportType int32) (int, error)

	// GetSortedExposedSince returns keys with since <= receivedAt <
	// bucketStart(now), sorted by keyData ascending. Country filters are
	// set-membership; empty means any.
	GetSortedExposedSince(ctx context.Context, since, now utc.UTCInstant, visitedCountries, originCountries []string) ([]model.GaenKey, error)

	// CleanDB deletes keys whose rolling start lies beyond the retention
	// horizon. Returns the number of rows deleted.
	CleanDB(ctx context.Context, retention time.Duration, now utc.UTCInstant) (int64, error)
}

// RedeemStore bounds replay of upload tokens via single-use nonces.
type RedeemStore interface {
	// Insert records the nonce and returns true iff it was previously unseen.
	Insert(ctx context.Context, nonce uuid.UUID, expiry utc.UTCInstant) (bool, error)

	// CleanDB removes expired nonces. Returns the number of rows deleted.
	CleanDB(ctx context.Context, now utc.UTCInstant) (int64, error)
}

// LockStore is the distributed lease used to serialize scheduled jobs across
// replicas.
type LockStore interface {
	// Acquire takes the named lease until the given instant. Returns true
	// iff this owner now holds the lease.
	Acquire(ctx context.Context, name, owner string, now, until utc.UTCInstant) (bool, error)

	// Release shortens the held lease to the given instant. A lease held by
	// another owner is left untouched.
	Release(ctx context.Context, name, owner string, until utc.UTCInstant) error
}
