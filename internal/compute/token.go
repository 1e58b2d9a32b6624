package compute

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of an agent session token.
const DefaultTokenTTL = time.Hour

// sessionClaims are the JWT claims carried by an agent session token.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// IssueSessionToken mints an HS256 session token for the given session ID,
// signed with the shared agent token.
func IssueSessionToken(agentToken, sessionID string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	expiresAt := now.Add(ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			Issuer:    "mallard-agent",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(agentToken))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifySessionToken validates an agent session token and returns the
// session ID it was issued for.
func VerifySessionToken(agentToken, tokenString string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(agentToken), nil
	}, jwt.WithIssuer("mallard-agent"), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid session token")
	}
	return claims.Subject, nil
}
