package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenExpiry decodes the exp claim of rawToken without verifying the
// signature. Verification is the backend's job; the client only needs the
// timestamp to plan refreshes.
func TokenExpiry(rawToken string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return time.Time{}, errors.Wrap(err, "[TokenExpiry] ParseUnverified")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(err, "[TokenExpiry] GetExpirationTime")
	}
	if exp == nil {
		return time.Time{}, errors.New("[TokenExpiry] token has no exp claim")
	}
	return exp.Time, nil
}

// IsExpiredAt reports whether rawToken is expired at the given instant.
// A token that cannot be decoded counts as expired, so a garbled credential
// forces re-authentication instead of being sent to the backend.
func IsExpiredAt(rawToken string, now time.Time) bool {
	expiry, err := TokenExpiry(rawToken)
	if err != nil {
		return true
	}
	return !now.Before(expiry)
}

// IsExpired is IsExpiredAt against the wall clock.
func IsExpired(rawToken string) bool {
	return IsExpiredAt(rawToken, time.Now())
}
