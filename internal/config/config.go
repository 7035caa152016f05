// Package config holds the typed server configuration. Values are immutable
// after startup; cmd/server populates them from flags.
package config

import "time"

// Config collects all recognized options.
type Config struct {
	// ReleaseBucketDuration is the width of a release bucket; all keys
	// inserted within one bucket share a receivedAt tag.
	ReleaseBucketDuration time.Duration

	// RequestTime levels upload response times: the handler does not answer
	// before arrival+RequestTime.
	RequestTime time.Duration

	// ExposedListCacheControl is the max-age sent on successful downloads.
	ExposedListCacheControl time.Duration

	// RetentionDays bounds how long keys are stored and served.
	RetentionDays int

	// GaenKeySizeBytes is the exact decoded key length accepted.
	GaenKeySizeBytes int

	// RandomKeysEnabled turns on fake-key padding of exports.
	RandomKeysEnabled bool

	// RandomKeyAmount is the number of synthetic keys per day bucket.
	RandomKeyAmount int

	// GaenAlgorithm is the signing algorithm OID placed in SignatureInfo.
	GaenAlgorithm string

	// GaenRegion is the region string placed in the export header.
	GaenRegion string

	// BundleID and PackageName identify the iOS/Android clients in the
	// export signing info.
	BundleID    string
	PackageName string

	// KeyVersion and KeyIdentifier name the verification key for clients.
	KeyVersion    string
	KeyIdentifier string

	// TimeSkew is the tolerated clock drift for future-dated keys.
	TimeSkew time.Duration

	// EFGSCountryOrigin and EFGSReportType are stamped on keys that carry no
	// federation metadata of their own.
	EFGSCountryOrigin string
	EFGSReportType    int32

	// Android0RPModifierEnabled rewrites rollingPeriod 0 to 144 for legacy
	// Android clients.
	Android0RPModifierEnabled bool

	// IOSRPLT144ModifierEnabled rewrites short rolling periods to 144 for
	// legacy iOS clients.
	IOSRPLT144ModifierEnabled bool
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		ReleaseBucketDuration:   7200000 * time.Millisecond,
		RequestTime:             1500 * time.Millisecond,
		ExposedListCacheControl: 300000 * time.Millisecond,
		RetentionDays:           14,
		GaenKeySizeBytes:        16,
		RandomKeysEnabled:       false,
		RandomKeyAmount:         10,
		GaenAlgorithm:           "1.2.840.10045.4.3.2",
		GaenRegion:              "es",
		BundleID:                "org.dpppt.ios.demo",
		PackageName:             "org.dpppt.android.demo",
		KeyVersion:              "v1",
		KeyIdentifier:           "214",
		TimeSkew:                2 * time.Hour,
		EFGSCountryOrigin:       "ES",
		EFGSReportType:          1,
	}
}

// Retention is the retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
