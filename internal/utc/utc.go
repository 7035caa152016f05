// Package utc implements the UTC time grid used by the release protocol:
// epoch-millisecond instants, release-bucket rounding and the GAEN
// 10-minute interval representation.
package utc

import (
	"errors"
	"time"
)

// TenMinutes is the GAEN interval unit.
const TenMinutes = 10 * time.Minute

// ErrNegativeInterval is returned when a 10-minute interval conversion
// would produce or consume a negative value.
var ErrNegativeInterval = errors.New("negative 10-minute interval")

// UTCInstant is a point in time as milliseconds since the Unix epoch, UTC.
type UTCInstant struct {
	ms int64
}

// OfEpochMillis builds an instant from epoch milliseconds.
func OfEpochMillis(ms int64) UTCInstant { return UTCInstant{ms: ms} }

// OfTime converts a time.Time, truncating to millisecond precision.
func OfTime(t time.Time) UTCInstant { return UTCInstant{ms: t.UnixMilli()} }

// FromTenMinutes converts a 10-minute interval index to an instant.
// Negative indices are rejected.
func FromTenMinutes(n int64) (UTCInstant, error) {
	if n < 0 {
		return UTCInstant{}, ErrNegativeInterval
	}
	return UTCInstant{ms: n * TenMinutes.Milliseconds()}, nil
}

// Timestamp returns epoch milliseconds.
func (u UTCInstant) Timestamp() int64 { return u.ms }

// Time returns the instant as a time.Time in UTC.
func (u UTCInstant) Time() time.Time { return time.UnixMilli(u.ms).UTC() }

// Get10MinutesSince1970 returns the 10-minute interval index, rounding
// toward zero. Instants before the epoch are rejected.
func (u UTCInstant) Get10MinutesSince1970() (int64, error) {
	if u.ms < 0 {
		return 0, ErrNegativeInterval
	}
	return u.ms / TenMinutes.Milliseconds(), nil
}

// BucketStart rounds down to the start of the bucket containing u.
func (u UTCInstant) BucketStart(bucket time.Duration) UTCInstant {
	b := bucket.Milliseconds()
	return UTCInstant{ms: (u.ms / b) * b}
}

// NextBucket rounds up to the start of the bucket after the one containing u.
// An instant exactly on a boundary advances to the next boundary.
func (u UTCInstant) NextBucket(bucket time.Duration) UTCInstant {
	b := bucket.Milliseconds()
	return UTCInstant{ms: (u.ms/b + 1) * b}
}

// StartOfDay rounds down to 00:00 UTC of the containing day.
func (u UTCInstant) StartOfDay() UTCInstant {
	return u.BucketStart(24 * time.Hour)
}

// IsBucketAligned reports whether u lies exactly on a bucket boundary.
func (u UTCInstant) IsBucketAligned(bucket time.Duration) bool {
	return u.ms%bucket.Milliseconds() == 0
}

// Plus returns u shifted forward by d.
func (u UTCInstant) Plus(d time.Duration) UTCInstant {
	return UTCInstant{ms: u.ms + d.Milliseconds()}
}

// Minus returns u shifted back by d.
func (u UTCInstant) Minus(d time.Duration) UTCInstant {
	return UTCInstant{ms: u.ms - d.Milliseconds()}
}

// Before reports u < other.
func (u UTCInstant) Before(other UTCInstant) bool { return u.ms < other.ms }

// After reports u > other.
func (u UTCInstant) After(other UTCInstant) bool { return u.ms > other.ms }

// Clock supplies the current instant. Handlers and services take a Clock
// instead of calling time.Now so tests can pin time without global state.
type Clock interface {
	Now() UTCInstant
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC instant.
func (SystemClock) Now() UTCInstant { return OfTime(time.Now()) }

// FixedClock always returns the instant it was set to.
type FixedClock struct {
	Instant UTCInstant
}

// Now returns the pinned instant.
func (c *FixedClock) Now() UTCInstant { return c.Instant }

// Set pins the clock to a new instant.
func (c *FixedClock) Set(u UTCInstant) { c.Instant = u }
