package auth

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role is the coarse authorization level carried in access tokens.
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleAdmin         Role = "admin"
	RoleShop          Role = "shop"
	RoleDeliveryAgent Role = "delivery-agent"
	RoleUnassigned    Role = "unassigned"
)

// ParseRole maps a stored role string to a Role, defaulting to unassigned.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleCustomer, RoleAdmin, RoleShop, RoleDeliveryAgent:
		return Role(s)
	default:
		return RoleUnassigned
	}
}

// Credential is one authenticatable identity. At least one of Email/Phone is
// set; PasswordHash is absent for OAuth-only identities.
type Credential struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Email           sql.NullString
	Phone           sql.NullString
	PasswordHash    sql.NullString
	Role            Role
	IsEmailVerified bool
	IsPhoneVerified bool
	CreatedAt       time.Time
}

// HasPassword reports whether password sign-in is possible at all.
func (c *Credential) HasPassword() bool {
	return c.PasswordHash.Valid && c.PasswordHash.String != ""
}

// IsVerified reports whether any contact channel has been verified.
func (c *Credential) IsVerified() bool {
	return c.IsEmailVerified || c.IsPhoneVerified
}

// Session is one active login backed by a durable row. The session token is
// the opaque refresh token handed to the client.
type Session struct {
	ID            string
	CredentialID  uuid.UUID
	SessionToken  string
	SessionMethod string
	IPAddress     sql.NullString
	UserAgent     sql.NullString
	ExpiresAt     time.Time
	IsValid       bool
	CreatedAt     time.Time
	RevokedAt     sql.NullTime
}

// Usable reports whether the session may still authenticate anything.
// Both conditions are checked on every use; a failing session is treated
// as absent.
func (s *Session) Usable(now time.Time) bool {
	return s.IsValid && now.Before(s.ExpiresAt)
}
