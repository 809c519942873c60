// ABOUTME: JWT expiry extraction for backend-issued tokens
// ABOUTME: Reads the exp claim without verifying the signature

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the exp claim from a JWT access token. The signature
// is not verified; the backend owns token validity, this side only needs the
// expiry for local bookkeeping. Returns ok == false when the value is not a
// JWT or carries no exp claim.
func TokenExpiry(raw string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
