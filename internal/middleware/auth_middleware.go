// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"finditnow-auth/internal/pkg/response"
	"finditnow-auth/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// BlacklistChecker reports whether an access token has been revoked. It
// applies the fail-open policy internally.
type BlacklistChecker interface {
	IsAccessTokenBlacklisted(ctx context.Context, accessToken string) bool
}

type AuthMiddleware struct {
	issuer    *token.Issuer
	blacklist BlacklistChecker
}

func NewAuthMiddleware(issuer *token.Issuer, blacklist BlacklistChecker) *AuthMiddleware {
	return &AuthMiddleware{
		issuer:    issuer,
		blacklist: blacklist,
	}
}

// Auth validates the bearer token and sets credential context. Service
// tokens are rejected here; they never authenticate user routes.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		if m.blacklist.IsAccessTokenBlacklisted(c.Request.Context(), raw) {
			response.Unauthorized(c, "token revoked")
			return
		}

		claims, err := m.issuer.Verify(raw)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		if claims.IsService() {
			response.Unauthorized(c, "service tokens cannot access user routes")
			return
		}

		c.Set("access_token", raw)
		c.Set("session_id", claims.SessionID())
		c.Set("cred_id", claims.CredentialID)
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// RequireRole requires the authenticated credential to hold one of the
// given roles. MUST be used after Auth().
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			response.Error(c, http.StatusForbidden, "no role found - authentication required", nil)
			return
		}

		current, ok := role.(string)
		if !ok {
			response.Error(c, http.StatusInternalServerError, "invalid role format", nil)
			return
		}

		for _, required := range roles {
			if current == required {
				c.Next()
				return
			}
		}

		response.Forbidden(c, "insufficient permissions")
	}
}

// ServiceAuth guards machine-only routes: only a service token addressed to
// this service passes.
func (m *AuthMiddleware) ServiceAuth(audience string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		claims, err := m.issuer.Verify(raw)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		if !claims.IsService() {
			response.Unauthorized(c, "user tokens cannot access service routes")
			return
		}
		if !claims.ForAudience(audience) {
			response.Forbidden(c, "token not issued for this service")
			return
		}

		c.Set("caller_service", claims.ServiceName())
		c.Next()
	}
}

// extractToken pulls the bearer token from the Authorization header.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
