package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret!"

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(testSecret)
	require.NoError(t, err)
	return issuer
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer("short")
	assert.Error(t, err)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, err := issuer.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)

	claims, err := issuer.Verify(signed)
	require.NoError(t, err)

	assert.Equal(t, "sess-1", claims.SessionID())
	assert.Equal(t, "cred-1", claims.CredentialID)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "customer", claims.Role)
	assert.False(t, claims.IsService())

	remaining := time.Until(claims.ExpiresAt.Time)
	assert.Greater(t, remaining, 14*time.Minute)
	assert.LessOrEqual(t, remaining, AccessTokenTTL)
}

func TestServiceTokenClaims(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, err := issuer.IssueServiceToken("order-service", "delivery-service")
	require.NoError(t, err)

	claims, err := issuer.Verify(signed)
	require.NoError(t, err)

	assert.True(t, claims.IsService())
	assert.Equal(t, "order-service", claims.ServiceName())
	assert.Equal(t, "auth-service", claims.Issuer)
	assert.True(t, claims.ForAudience("delivery-service"))
	assert.False(t, claims.ForAudience("shop-service"))

	remaining := time.Until(claims.ExpiresAt.Time)
	assert.LessOrEqual(t, remaining, ServiceTokenTTL)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, err := issuer.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)

	tampered := signed[:len(signed)-2] + "xx"
	_, err = issuer.Verify(tampered)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewIssuer(strings.Repeat("other-secret!", 3))
	require.NoError(t, err)

	signed, err := other.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)

	now := time.Now()
	claims := &Claims{
		CredentialID: "cred-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sess-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRemainingTTL(t *testing.T) {
	issuer := newTestIssuer(t)

	signed, err := issuer.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)

	remaining := issuer.RemainingTTL(signed)
	assert.Greater(t, remaining, 14*time.Minute)

	assert.Equal(t, time.Duration(0), issuer.RemainingTTL("not-a-token"))
	assert.Equal(t, time.Duration(0), issuer.RemainingTTL(""))
}
