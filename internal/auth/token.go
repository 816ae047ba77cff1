// ABOUTME: Bearer token claim inspection for display and diagnostics
// ABOUTME: The server owns verification; the agent only reads claims it can show

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrNotAToken = errors.New("token is not a parseable JWT")
	ErrNoExpiry  = errors.New("token carries no expiry claim")
)

// TokenExpiry extracts the expiry from a stored bearer token without
// verifying its signature. The agent never validates tokens — the server
// does that on every call — but surfacing when the stored token lapses makes
// "why did posting stop" diagnosable from status output.
func TokenExpiry(token string) (time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNotAToken, err)
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrNoExpiry
	}

	return exp.Time, nil
}

// TokenExpired reports whether the token's expiry claim is in the past.
// Tokens without a readable expiry are treated as not expired; the server
// remains the authority either way.
func TokenExpired(token string, now time.Time) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return exp.Before(now)
}
