package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeUnverified extracts the claims of an access token without checking
// its signature or freshness. The client has no signing key; the backend is
// the only party that can reject a forged token. Callers must treat the
// result as a hint, not as proof of identity.
func DecodeUnverified(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.ExpiresAt == nil {
		return nil, errors.New("token has no exp claim")
	}
	return &claims, nil
}

// Expired reports whether the token's exp claim is strictly in the past.
func Expired(claims *AccessClaims, now time.Time) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Time.Before(now)
}
