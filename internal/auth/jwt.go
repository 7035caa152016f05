// Package auth verifies upload bearer tokens and issues the next-day JWT for
// the V1 delayed-key flow.
package auth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/openexposure/gaen-server/internal/errs"
	"github.com/openexposure/gaen-server/internal/utc"
)

// Scopes accepted on upload endpoints.
const (
	ScopeExposed        = "exposed"
	ScopeExposedNextDay = "exposed-next-day"
)

const onsetLayout = "2006-01-02"

// Principal is the claim set extracted from a verified upload token.
type Principal struct {
	Scope          string
	Fake           bool
	HasOnset       bool
	Onset          utc.UTCInstant // start of the onset day
	DelayedKeyDate int64          // 10-minute interval index; next-day tokens only
	ExpiresAt      utc.UTCInstant
}

// Validate checks the token's scope against the endpoint's expectation.
func (p *Principal) Validate(expectedScope string) error {
	if p.Scope != expectedScope {
		return errs.ErrWrongScope
	}
	return nil
}

// Verifier turns a bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, tokenString string) (*Principal, error)
}

// RedeemStore is the nonce side-channel consulted to bound token replay.
type RedeemStore interface {
	Insert(ctx context.Context, nonce uuid.UUID, expiry utc.UTCInstant) (bool, error)
}

// ES256Verifier validates real tokens against the configured EC public key.
type ES256Verifier struct {
	pub    *ecdsa.PublicKey
	clock  utc.Clock
	redeem RedeemStore // optional; nil disables replay accounting
}

// NewES256Verifier constructs a production verifier. redeem may be nil.
func NewES256Verifier(pub *ecdsa.PublicKey, clock utc.Clock, redeem RedeemStore) *ES256Verifier {
	return &ES256Verifier{pub: pub, clock: clock, redeem: redeem}
}

// Verify parses and validates the token, then extracts the claims the insert
// pipeline needs. Any signature, expiry or replay problem maps to
// errs.ErrAuthFailure.
func (v *ES256Verifier) Verify(ctx context.Context, tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) { return v.pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return v.clock.Now().Time() }),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuthFailure, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errs.ErrAuthFailure
	}

	p, err := principalFromClaims(claims)
	if err != nil {
		return nil, err
	}

	if v.redeem != nil {
		if err := v.redeemJTI(ctx, claims, p.ExpiresAt); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (v *ES256Verifier) redeemJTI(ctx context.Context, claims jwt.MapClaims, expiry utc.UTCInstant) error {
	raw, ok := claims["jti"].(string)
	if !ok {
		return nil // tokens without a nonce are not replay-bounded
	}
	nonce, err := uuid.FromString(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed jti", errs.ErrAuthFailure)
	}
	fresh, err := v.redeem.Insert(ctx, nonce, expiry)
	if err != nil {
		return err
	}
	if !fresh {
		return fmt.Errorf("%w: token replayed", errs.ErrAuthFailure)
	}
	return nil
}

func principalFromClaims(claims jwt.MapClaims) (*Principal, error) {
	p := &Principal{}

	if s, ok := claims["scope"].(string); ok {
		p.Scope = s
	}
	if f, ok := claims["fake"].(string); ok {
		p.Fake = f == "1"
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		p.ExpiresAt = utc.OfTime(exp.Time)
	}
	if onset, ok := claims["onset"].(string); ok {
		day, err := time.Parse(onsetLayout, onset)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed onset", errs.ErrAuthFailure)
		}
		p.HasOnset = true
		p.Onset = utc.OfTime(day)
	}
	switch d := claims["delayedKeyDate"].(type) {
	case string:
		n, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed delayedKeyDate", errs.ErrAuthFailure)
		}
		p.DelayedKeyDate = n
	case float64:
		p.DelayedKeyDate = int64(d)
	}
	return p, nil
}

// PassThroughVerifier accepts every token and returns a fixed principal.
// Test deployments only.
type PassThroughVerifier struct {
	Principal Principal
}

// Verify returns a copy of the fixed principal regardless of input.
func (v *PassThroughVerifier) Verify(context.Context, string) (*Principal, error) {
	p := v.Principal
	return &p, nil
}

// NextDayIssuer signs the JWT a V1 upload hands back, authorizing the client
// to upload its same-day key tomorrow.
type NextDayIssuer struct {
	priv  *ecdsa.PrivateKey
	clock utc.Clock
}

// NewNextDayIssuer constructs an issuer around the nextDayJWT vault key.
func NewNextDayIssuer(priv *ecdsa.PrivateKey, clock utc.Clock) *NextDayIssuer {
	return &NextDayIssuer{priv: priv, clock: clock}
}

// Issue signs a token for the given delayed key date (10-minute interval
// index). The fake flag is carried through so padding uploads stay
// indistinguishable end to end.
func (i *NextDayIssuer) Issue(delayedKeyDate int64, fake bool) (string, error) {
	now := i.clock.Now()
	fakeClaim := "0"
	if fake {
		fakeClaim = "1"
	}
	jti, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	claims := jwt.MapClaims{
		"scope":          ScopeExposedNextDay,
		"delayedKeyDate": strconv.FormatInt(delayedKeyDate, 10),
		"fake":           fakeClaim,
		"jti":            jti.String(),
		"iat":            jwt.NewNumericDate(now.Time()),
		"exp":            jwt.NewNumericDate(now.Plus(48 * time.Hour).Time()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(i.priv)
}
