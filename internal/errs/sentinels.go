// Package errs contains sentinel errors used across layers for stable error
// mapping at the HTTP edge.
package errs

import "errors"

var (
	// ErrBadKeyFormat indicates a key whose decoded data has the wrong length
	// or is not valid base64.
	ErrBadKeyFormat = errors.New("bad key format")

	// ErrInvalidDate indicates a malformed or out-of-range time parameter.
	ErrInvalidDate = errors.New("invalid date")

	// ErrBadBatchReleaseTime indicates a misaligned or out-of-window batch tag.
	ErrBadBatchReleaseTime = errors.New("bad batch release time")

	// ErrInvalidRollingPeriod indicates a rolling period outside [1,144].
	ErrInvalidRollingPeriod = errors.New("invalid rolling period")

	// ErrClaimIsBeforeOnset indicates keys dated before the JWT onset claim.
	ErrClaimIsBeforeOnset = errors.New("claim is before onset")

	// ErrWrongScope indicates a JWT scope mismatch for the endpoint.
	ErrWrongScope = errors.New("wrong scope")

	// ErrAuthFailure indicates a failed JWT signature or expiry check.
	ErrAuthFailure = errors.New("authentication failure")

	// ErrNotFound indicates the requested entity or bucket does not exist.
	ErrNotFound = errors.New("not found")
)
