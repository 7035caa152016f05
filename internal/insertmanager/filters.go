package insertmanager

import (
	"time"

	"github.com/openexposure/gaen-server/internal/auth"
	"github.com/openexposure/gaen-server/internal/errs"
	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/utc"
	"github.com/openexposure/gaen-server/internal/validation"
)

// AssertKeyFormat hard-fails the upload when any key is not base64 of the
// configured length. Malformed keys mean a broken client, not a droppable
// outlier.
type AssertKeyFormat struct {
	Utils *validation.Utils
}

func (f AssertKeyFormat) Filter(_ utc.UTCInstant, keys []model.GaenKey, _ *auth.Principal) ([]model.GaenKey, error) {
	for _, k := range keys {
		if !f.Utils.IsValidKeyFormat(k) {
			return nil, errs.ErrBadKeyFormat
		}
	}
	return keys, nil
}

// EnforceMatchingJWTClaims hard-fails when the batch contradicts the upload
// token: wrong scope, a fake token carrying real keys, or a real key that was
// active before the claimed onset day.
type EnforceMatchingJWTClaims struct {
	Scope string
}

func (f EnforceMatchingJWTClaims) Filter(_ utc.UTCInstant, keys []model.GaenKey, p *auth.Principal) ([]model.GaenKey, error) {
	if p == nil {
		return keys, nil
	}
	if err := p.Validate(f.Scope); err != nil {
		return nil, err
	}
	if p.Fake {
		for _, k := range keys {
			if k.Fake == 0 {
				return nil, errs.ErrWrongScope
			}
		}
		return keys, nil
	}
	if p.HasOnset {
		for _, k := range keys {
			if k.Fake == 0 && k.ValidityStart().Before(p.Onset) {
				return nil, errs.ErrClaimIsBeforeOnset
			}
		}
	}
	return keys, nil
}

// EnforceDelayedKeyDate hard-fails the next-day upload when the key's start
// does not match the delayedKeyDate claimed yesterday.
type EnforceDelayedKeyDate struct{}

func (EnforceDelayedKeyDate) Filter(_ utc.UTCInstant, keys []model.GaenKey, p *auth.Principal) ([]model.GaenKey, error) {
	if p == nil {
		return keys, nil
	}
	for _, k := range keys {
		if k.Fake == 0 && int64(k.RollingStartNumber) != p.DelayedKeyDate {
			return nil, errs.ErrClaimIsBeforeOnset
		}
	}
	return keys, nil
}

// EnforceRetentionPeriod silently drops keys whose validity ended before the
// retention horizon.
type EnforceRetentionPeriod struct {
	Utils *validation.Utils
}

func (f EnforceRetentionPeriod) Filter(now utc.UTCInstant, keys []model.GaenKey, _ *auth.Principal) ([]model.GaenKey, error) {
	kept := keys[:0]
	for _, k := range keys {
		if !f.Utils.IsBeforeRetention(k, now) {
			kept = append(kept, k)
		}
	}
	return kept, nil
}

// RemoveKeysFromFuture silently drops keys starting beyond now plus the
// tolerated clock skew.
type RemoveKeysFromFuture struct {
	Skew time.Duration
}

func (f RemoveKeysFromFuture) Filter(now utc.UTCInstant, keys []model.GaenKey, _ *auth.Principal) ([]model.GaenKey, error) {
	kept := keys[:0]
	for _, k := range keys {
		if !validation.IsInFuture(k, now, f.Skew) {
			kept = append(kept, k)
		}
	}
	return kept, nil
}

// RemoveFakeKeys silently drops padding keys so they never reach the store.
type RemoveFakeKeys struct{}

func (RemoveFakeKeys) Filter(_ utc.UTCInstant, keys []model.GaenKey, _ *auth.Principal) ([]model.GaenKey, error) {
	kept := keys[:0]
	for _, k := range keys {
		if k.Fake == 0 {
			kept = append(kept, k)
		}
	}
	return kept, nil
}

// EnforceValidRollingPeriod silently drops keys whose rolling period lies
// outside [1,144].
type EnforceValidRollingPeriod struct{}

func (EnforceValidRollingPeriod) Filter(_ utc.UTCInstant, keys []model.GaenKey, _ *auth.Principal) ([]model.GaenKey, error) {
	kept := keys[:0]
	for _, k := range keys {
		if validation.IsValidRollingPeriod(k) {
			kept = append(kept, k)
		}
	}
	return kept, nil
}
