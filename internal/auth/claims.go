package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims the client reads from the backend's access token
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// ParseTokenClaims reads the subject and expiry of a JWT without verifying
// its signature. The backend verifies every request; the client only uses
// the expiry to drop stale credentials early.
func ParseTokenClaims(token string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	var result TokenClaims

	sub, err := claims.GetSubject()
	if err != nil {
		return TokenClaims{}, fmt.Errorf("invalid sub claim: %w", err)
	}
	result.Subject = sub

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenClaims{}, fmt.Errorf("invalid exp claim: %w", err)
	}
	if exp != nil {
		result.ExpiresAt = exp.Time
	}

	return result, nil
}
