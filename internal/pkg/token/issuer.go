// internal/pkg/token/issuer.go
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuerName = "auth-service"

	// AccessTokenTTL bounds how long a stolen access token stays usable;
	// revocation beyond this window is the blacklist's job.
	AccessTokenTTL = 15 * time.Minute

	// ServiceTokenTTL is deliberately short: service tokens are neither
	// stored nor revocable.
	ServiceTokenTTL = 60 * time.Second
)

// Verification failures. Every call site must treat either as
// "unauthenticated", not as a fatal error.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Issuer mints and verifies both token kinds with one shared HMAC key.
// Verification is stateless: no store or cache is consulted here.
type Issuer struct {
	key []byte
}

// NewIssuer builds an Issuer from the shared signing secret.
func NewIssuer(secret string) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("signing secret too short: %d bytes, need 32", len(secret))
	}
	return &Issuer{key: []byte(secret)}, nil
}

// IssueAccessToken mints a short-lived user access token bound to a session.
func (i *Issuer) IssueAccessToken(sessionID, credentialID, userID, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		CredentialID: credentialID,
		UserID:       userID,
		Role:         role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// IssueServiceToken mints a 60-second token proving caller's identity to a
// single audience service.
func (i *Issuer) IssueServiceToken(caller, audience string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Type: serviceTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   "service:" + caller,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ServiceTokenTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Verify parses and validates a token. Malformed input of any shape returns
// ErrTokenInvalid; a good signature past its expiry returns ErrTokenExpired.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// RemainingTTL returns how long the token's own signature stays valid. Used
// to size blacklist TTLs so a blacklisted token never outlives itself.
// Returns 0 on any parse failure, including expiry.
func (i *Issuer) RemainingTTL(tokenString string) time.Duration {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining < 0 {
		return 0
	}
	return remaining
}
