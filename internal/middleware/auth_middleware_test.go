package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"finditnow-auth/internal/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret!"

type stubBlacklist struct {
	revoked map[string]bool
}

func (s *stubBlacklist) IsAccessTokenBlacklisted(_ context.Context, accessToken string) bool {
	return s.revoked[accessToken]
}

type mwFixture struct {
	issuer    *token.Issuer
	blacklist *stubBlacklist
	router    *gin.Engine
}

func newMWFixture(t *testing.T) *mwFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer, err := token.NewIssuer(testSecret)
	require.NoError(t, err)

	blacklist := &stubBlacklist{revoked: make(map[string]bool)}
	mw := NewAuthMiddleware(issuer, blacklist)

	router := gin.New()
	router.GET("/private", mw.Auth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"credId": MustGetCredentialID(c),
			"role":   GetRole(c),
		})
	})
	router.GET("/admin", mw.Auth(), mw.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/internal/users", mw.ServiceAuth("auth-service"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": c.GetString("caller_service")})
	})

	return &mwFixture{issuer: issuer, blacklist: blacklist, router: router}
}

func (f *mwFixture) get(path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthAcceptsValidAccessToken(t *testing.T) {
	f := newMWFixture(t)

	access, err := f.issuer.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)

	rec := f.get("/private", "Bearer "+access)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cred-1")
	assert.Contains(t, rec.Body.String(), "customer")
}

func TestAuthRejectsMissingAndMalformedTokens(t *testing.T) {
	f := newMWFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.get("/private", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.get("/private", "Bearer not-a-jwt").Code)
	assert.Equal(t, http.StatusUnauthorized, f.get("/private", "Basic abc123").Code)
}

func TestAuthRejectsBlacklistedToken(t *testing.T) {
	f := newMWFixture(t)

	access, err := f.issuer.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)
	f.blacklist.revoked[access] = true

	rec := f.get("/private", "Bearer "+access)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "token revoked")
}

func TestAuthRejectsServiceToken(t *testing.T) {
	f := newMWFixture(t)

	svc, err := f.issuer.IssueServiceToken("order-service", "auth-service")
	require.NoError(t, err)

	rec := f.get("/private", "Bearer "+svc)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoleEnforcesRole(t *testing.T) {
	f := newMWFixture(t)

	customer, err := f.issuer.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)
	admin, err := f.issuer.IssueAccessToken("sess-2", "cred-2", "user-2", "admin")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, f.get("/admin", "Bearer "+customer).Code)
	assert.Equal(t, http.StatusOK, f.get("/admin", "Bearer "+admin).Code)
}

func TestServiceAuthRequiresServiceToken(t *testing.T) {
	f := newMWFixture(t)

	user, err := f.issuer.IssueAccessToken("sess-1", "cred-1", "user-1", "customer")
	require.NoError(t, err)

	rec := f.get("/internal/users", "Bearer "+user)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceAuthChecksAudience(t *testing.T) {
	f := newMWFixture(t)

	right, err := f.issuer.IssueServiceToken("order-service", "auth-service")
	require.NoError(t, err)
	wrong, err := f.issuer.IssueServiceToken("order-service", "delivery-service")
	require.NoError(t, err)

	rec := f.get("/internal/users", "Bearer "+right)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "order-service")

	assert.Equal(t, http.StatusForbidden, f.get("/internal/users", "Bearer "+wrong).Code)
}
