// Package validation implements the key-format, batch-release-time and
// retention-window checks shared by the insert pipeline and the controllers.
package validation

import (
	"encoding/base64"
	"time"

	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/utc"
)

// Utils bundles the validation parameters fixed at startup.
type Utils struct {
	keySizeBytes int
	retention    time.Duration
	bucket       time.Duration
}

// NewUtils constructs validation utilities for the configured key size,
// retention window and release bucket width.
func NewUtils(keySizeBytes int, retention, bucket time.Duration) *Utils {
	return &Utils{keySizeBytes: keySizeBytes, retention: retention, bucket: bucket}
}

// IsValidKeyFormat reports whether the decoded key data has exactly the
// configured length.
func (v *Utils) IsValidKeyFormat(k model.GaenKey) bool {
	data, err := base64.StdEncoding.DecodeString(k.KeyData)
	if err != nil {
		return false
	}
	return len(data) == v.keySizeBytes
}

// IsValidBatchReleaseTime reports whether since is bucket-aligned, not in the
// future, and no older than the start of the retention window's bucket.
// The lower bound is the bucket start so that tags clamped by the download
// controller always validate.
func (v *Utils) IsValidBatchReleaseTime(since, now utc.UTCInstant) bool {
	if !since.IsBucketAligned(v.bucket) {
		return false
	}
	if since.After(now) {
		return false
	}
	minTag := now.Minus(v.retention).BucketStart(v.bucket)
	return !since.Before(minTag)
}

// IsBeforeRetention reports whether the key's validity window lies entirely
// beyond the retention horizon.
func (v *Utils) IsBeforeRetention(k model.GaenKey, now utc.UTCInstant) bool {
	return k.ValidityEnd().Before(now.Minus(v.retention))
}

// IsInFuture reports whether the key starts after now plus the tolerated skew.
func IsInFuture(k model.GaenKey, now utc.UTCInstant, skew time.Duration) bool {
	return k.ValidityStart().After(now.Plus(skew))
}

// IsValidRollingPeriod reports whether the rolling period lies in [1,144].
func IsValidRollingPeriod(k model.GaenKey) bool {
	return k.RollingPeriod >= 1 && k.RollingPeriod <= model.MaxRollingPeriod
}
