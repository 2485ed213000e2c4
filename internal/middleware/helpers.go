// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetCredentialID gets the credential id from context.
func GetCredentialID(c *gin.Context) (string, bool) {
	return getString(c, "cred_id")
}

// MustGetCredentialID gets the credential id from context or panics.
func MustGetCredentialID(c *gin.Context) string {
	id, exists := GetCredentialID(c)
	if !exists {
		panic("cred_id not found in context")
	}
	return id
}

// GetUserID gets the profile user id from context.
func GetUserID(c *gin.Context) (string, bool) {
	return getString(c, "user_id")
}

// GetSessionID gets the session id from context.
func GetSessionID(c *gin.Context) (string, bool) {
	return getString(c, "session_id")
}

// GetAccessToken returns the raw bearer token that authenticated the request.
func GetAccessToken(c *gin.Context) (string, bool) {
	return getString(c, "access_token")
}

// GetRole gets the credential role from context.
func GetRole(c *gin.Context) string {
	role, _ := getString(c, "role")
	return role
}

// IsAuthenticated checks if the request carries an authenticated credential.
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("cred_id")
	return exists
}

// HasRole checks whether the authenticated credential holds a role.
func HasRole(c *gin.Context, role string) bool {
	return GetRole(c) == role
}

func getString(c *gin.Context, key string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}
