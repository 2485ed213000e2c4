// internal/repository/postgres/auth_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finditnow-auth/internal/domain/auth"
	xerrors "finditnow-auth/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuthRepository is the durable credential/session store. It is the single
// source of truth: the cache only ever mirrors what is written here.
type AuthRepository struct {
	db *pgxpool.Pool
}

func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

// BeginTx opens a transaction for the multi-step session protocol.
func (r *AuthRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// ========== Credential Methods ==========

const credentialColumns = `
	id, user_id, email, phone, password_hash, role,
	is_email_verified, is_phone_verified, created_at`

// FindCredentialByEmail retrieves a credential by email.
func (r *AuthRepository) FindCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM auth_credentials
		WHERE LOWER(email) = LOWER($1)`

	return r.queryCredential(ctx, query, email)
}

// FindCredentialByIdentifier retrieves a credential by email or phone.
func (r *AuthRepository) FindCredentialByIdentifier(ctx context.Context, identifier string) (*auth.Credential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM auth_credentials
		WHERE LOWER(email) = LOWER($1) OR phone = $1
		LIMIT 1`

	return r.queryCredential(ctx, query, identifier)
}

// FindCredentialByID retrieves a credential by id.
func (r *AuthRepository) FindCredentialByID(ctx context.Context, id string) (*auth.Credential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM auth_credentials
		WHERE id = $1`

	return r.queryCredential(ctx, query, id)
}

// CreateCredential inserts a new credential row.
func (r *AuthRepository) CreateCredential(ctx context.Context, c *auth.Credential) error {
	query := `
		INSERT INTO auth_credentials
			(id, user_id, email, phone, password_hash, role, is_email_verified, is_phone_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		c.ID, c.UserID, c.Email, c.Phone, c.PasswordHash, string(c.Role),
		c.IsEmailVerified, c.IsPhoneVerified,
	).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// SetEmailVerified flips the email verification flag and records the user id
// assigned by the profile service, inside the caller's transaction.
func (r *AuthRepository) SetEmailVerified(ctx context.Context, tx pgx.Tx, credentialID string, userID uuid.UUID) error {
	query := `UPDATE auth_credentials SET is_email_verified = TRUE, user_id = $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, query, credentialID, userID); err != nil {
		return fmt.Errorf("failed to set email verified: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash after a reset or change.
func (r *AuthRepository) UpdatePasswordHash(ctx context.Context, credentialID, hash string) error {
	query := `UPDATE auth_credentials SET password_hash = $1 WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, hash, credentialID)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateRole changes a credential's role.
func (r *AuthRepository) UpdateRole(ctx context.Context, credentialID string, role auth.Role) error {
	query := `UPDATE auth_credentials SET role = $1 WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, string(role), credentialID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *AuthRepository) queryCredential(ctx context.Context, query string, arg any) (*auth.Credential, error) {
	var (
		c    auth.Credential
		role string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.UserID, &c.Email, &c.Phone, &c.PasswordHash, &role,
		&c.IsEmailVerified, &c.IsPhoneVerified, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	c.Role = auth.ParseRole(role)
	return &c, nil
}

// ========== Session Methods ==========

const sessionColumns = `
	id, credential_id, session_token, session_method, ip_address, user_agent,
	expires_at, is_valid, created_at, revoked_at`

// CreateSession inserts a session row inside the caller's transaction.
func (r *AuthRepository) CreateSession(ctx context.Context, tx pgx.Tx, s *auth.Session) error {
	query := `
		INSERT INTO auth_sessions
			(id, credential_id, session_token, session_method, ip_address, user_agent, expires_at, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := tx.QueryRow(ctx, query,
		s.ID, s.CredentialID, s.SessionToken, s.SessionMethod,
		s.IPAddress, s.UserAgent, s.ExpiresAt, s.IsValid,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindSessionByTokenForUpdate re-reads a session by refresh token with a row
// lock, making the durable store the arbiter between concurrent refreshes.
func (r *AuthRepository) FindSessionByTokenForUpdate(ctx context.Context, tx pgx.Tx, token string) (*auth.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM auth_sessions
		WHERE session_token = $1
		FOR UPDATE`

	var s auth.Session
	err := tx.QueryRow(ctx, query, token).Scan(
		&s.ID, &s.CredentialID, &s.SessionToken, &s.SessionMethod,
		&s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.IsValid,
		&s.CreatedAt, &s.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &s, nil
}

// ExtendSession rewrites the session expiry to the new absolute value.
// "Extend", never "increment": safe to repeat under racing refreshes.
func (r *AuthRepository) ExtendSession(ctx context.Context, tx pgx.Tx, sessionID string, expiresAt time.Time) error {
	query := `UPDATE auth_sessions SET expires_at = $1 WHERE id = $2`
	if _, err := tx.Exec(ctx, query, expiresAt, sessionID); err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// InvalidateSessionByToken flips validity and stamps revocation. Idempotent.
func (r *AuthRepository) InvalidateSessionByToken(ctx context.Context, token string) error {
	query := `
		UPDATE auth_sessions
		SET is_valid = FALSE, revoked_at = NOW()
		WHERE session_token = $1 AND is_valid = TRUE`

	if _, err := r.db.Exec(ctx, query, token); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// RevokeExpiredSessions marks every expired-but-still-valid session invalid.
// Run periodically by the sweeper.
func (r *AuthRepository) RevokeExpiredSessions(ctx context.Context) (int64, error) {
	query := `
		UPDATE auth_sessions
		SET is_valid = FALSE, revoked_at = NOW()
		WHERE is_valid = TRUE AND expires_at <= NOW()`

	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
