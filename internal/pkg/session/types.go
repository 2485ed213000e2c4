// internal/pkg/session/types.go
package session

import "time"

// CachedSession is the denormalized projection of a durable session mirrored
// into the cache, keyed by refresh token. Presence here is a hint, not proof:
// refresh must corroborate against the durable store before extending
// anything.
type CachedSession struct {
	SessionID    string    `json:"session_id"`
	CredentialID string    `json:"credential_id"`
	UserID       string    `json:"user_id"`
	Role         string    `json:"role"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OTP purposes namespace the one-time-code keys.
const (
	PurposeEmailVerify = "emailOtp"
	PurposeReset       = "resetOtp"
)
