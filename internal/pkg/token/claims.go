// internal/pkg/token/claims.go
package token

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const serviceTokenType = "service"

// Claims is the payload of every token minted by the Issuer. For user access
// tokens the subject is the session id; for service tokens the subject is
// "service:<caller>" and Type is "service".
type Claims struct {
	CredentialID string `json:"credId,omitempty"`
	UserID       string `json:"userId,omitempty"`
	Role         string `json:"role,omitempty"`
	Type         string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// SessionID returns the session the access token is bound to.
func (c *Claims) SessionID() string {
	return c.Subject
}

// IsService reports whether this is a service-to-service token.
func (c *Claims) IsService() bool {
	return c.Type == serviceTokenType
}

// ServiceName returns the calling service for a service token, "" otherwise.
func (c *Claims) ServiceName() string {
	if !c.IsService() {
		return ""
	}
	return strings.TrimPrefix(c.Subject, "service:")
}

// ForAudience reports whether the token is scoped to the given audience.
func (c *Claims) ForAudience(audience string) bool {
	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}
