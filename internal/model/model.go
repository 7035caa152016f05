// Package model defines domain entities shared by services, repositories and
// the HTTP layer.
package model

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/openexposure/gaen-server/internal/utc"
)

// MaxRollingPeriod is one UTC day in 10-minute slots.
const MaxRollingPeriod = 144

// GaenKey is a Temporary Exposure Key as uploaded by clients. KeyData stays
// base64-encoded in transport and storage; decode it only at export time.
type GaenKey struct {
	KeyData                  string `json:"keyData"`
	RollingStartNumber       uint32 `json:"rollingStartNumber"`
	RollingPeriod            uint32 `json:"rollingPeriod"`
	TransmissionRiskLevel    int32  `json:"transmissionRiskLevel"`
	Fake                     int32  `json:"fake"`
	CountryOrigin            string `json:"countryOrigin,omitempty"`
	ReportType               int32  `json:"reportType,omitempty"`
	DaysSinceOnsetOfSymptoms int32  `json:"daysSinceOnsetOfSymptoms,omitempty"`
}

// DecodedKeyData returns the raw key bytes.
func (k GaenKey) DecodedKeyData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(k.KeyData)
}

// ValidityStart is the instant the key became active.
func (k GaenKey) ValidityStart() utc.UTCInstant {
	return utc.OfEpochMillis(int64(k.RollingStartNumber) * utc.TenMinutes.Milliseconds())
}

// ValidityEnd is the instant the key expired.
func (k GaenKey) ValidityEnd() utc.UTCInstant {
	return k.ValidityStart().Plus(time.Duration(k.RollingPeriod) * utc.TenMinutes)
}

// ExposedKey is a stored row: the uploaded key plus the release bucket it was
// assigned to and the uploader's country. ReceivedAt is the release bucket
// used for pagination, not the true arrival time.
type ExposedKey struct {
	GaenKey
	ReceivedAt utc.UTCInstant
	Country    string
}

// UploadRequestV1 carries keys plus the start-of-day (as a 10-minute interval
// index) whose key will be uploaded the following day.
type UploadRequestV1 struct {
	GaenKeys       []GaenKey `json:"gaenKeys"`
	DelayedKeyDate int64     `json:"delayedKeyDate"`
}

// UploadRequestV2 carries keys only; same-day keys ride the normal pipeline
// and become visible once their release bucket closes.
type UploadRequestV2 struct {
	GaenKeys []GaenKey `json:"gaenKeys"`
}

// UploadRequestNextDay carries the single delayed key authorized by the
// next-day JWT issued on a V1 upload.
type UploadRequestNextDay struct {
	DelayedKey GaenKey `json:"delayedKey"`
	Fake       int32   `json:"fake"`
}

// Platform is the client OS parsed from the User-Agent header.
type Platform int

// Recognized platforms.
const (
	PlatformUnknown Platform = iota
	PlatformAndroid
	PlatformIOS
)

// PlatformFromUserAgent extracts the OS from the app user agent
// ("PackageName;Version;OS;OSVersion").
func PlatformFromUserAgent(ua string) Platform {
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "ios"):
		return PlatformIOS
	case strings.Contains(lower, "android"):
		return PlatformAndroid
	default:
		return PlatformUnknown
	}
}
