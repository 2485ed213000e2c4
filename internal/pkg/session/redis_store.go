// internal/pkg/session/redis_store.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	xerrors "finditnow-auth/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// Key namespaces. Every key the auth core writes lives under one of these.
const (
	refreshPrefix      = "refresh:"
	blacklistPrefix    = "blacklist:access:"
	resetAllowedPrefix = "resetAllowed:"
	apiCachePrefix     = "api-cache:"
	pendingPrefix      = "signup:pending:"
)

// Store is the advisory session cache on Redis. It is never the source of
// truth: callers fall back to (or reconcile against) the durable store for
// every security-relevant decision.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// PutRefresh mirrors a session into the cache under its refresh token.
func (s *Store) PutRefresh(ctx context.Context, refreshToken string, cs *CachedSession, ttl time.Duration) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("failed to marshal cached session: %w", err)
	}
	if err := s.client.Set(ctx, refreshPrefix+refreshToken, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh entry: %w", err)
	}
	return nil
}

// GetRefresh returns the cached session for a refresh token, or ErrNotFound.
func (s *Store) GetRefresh(ctx context.Context, refreshToken string) (*CachedSession, error) {
	data, err := s.client.Get(ctx, refreshPrefix+refreshToken).Bytes()
	if err == redis.Nil {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh entry: %w", err)
	}

	var cs CachedSession
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached session: %w", err)
	}
	return &cs, nil
}

// DeleteRefresh drops a refresh entry. Idempotent.
func (s *Store) DeleteRefresh(ctx context.Context, refreshToken string) error {
	return s.client.Del(ctx, refreshPrefix+refreshToken).Err()
}

// BlacklistAccessToken rejects an access token for its remaining lifetime.
// A non-positive TTL is a no-op: the token's own expiry already covers it.
func (s *Store) BlacklistAccessToken(ctx context.Context, accessToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, blacklistPrefix+accessToken, "1", ttl).Err()
}

// IsAccessTokenBlacklisted checks the blacklist. Errors propagate so the
// caller can apply its fail-open policy explicitly.
func (s *Store) IsAccessTokenBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	n, err := s.client.Exists(ctx, blacklistPrefix+accessToken).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

// PutOTP stores a one-time code under purpose:subject.
func (s *Store) PutOTP(ctx context.Context, purpose, subject, code string, ttl time.Duration) error {
	return s.client.Set(ctx, otpKey(purpose, subject), code, ttl).Err()
}

// GetOTP returns the stored code or ErrNotFound once it has expired or was
// consumed.
func (s *Store) GetOTP(ctx context.Context, purpose, subject string) (string, error) {
	code, err := s.client.Get(ctx, otpKey(purpose, subject)).Result()
	if err == redis.Nil {
		return "", xerrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read otp: %w", err)
	}
	return code, nil
}

// DeleteOTP consumes a code. Single use is enforced by deletion.
func (s *Store) DeleteOTP(ctx context.Context, purpose, subject string) error {
	return s.client.Del(ctx, otpKey(purpose, subject)).Err()
}

// PutPendingName holds the sign-up first name until verification creates the
// profile. The credential row does not carry it.
func (s *Store) PutPendingName(ctx context.Context, credentialID, firstName string, ttl time.Duration) error {
	return s.client.Set(ctx, pendingPrefix+credentialID, firstName, ttl).Err()
}

// GetPendingName returns the held first name, or ErrNotFound after expiry.
func (s *Store) GetPendingName(ctx context.Context, credentialID string) (string, error) {
	name, err := s.client.Get(ctx, pendingPrefix+credentialID).Result()
	if err == redis.Nil {
		return "", xerrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read pending name: %w", err)
	}
	return name, nil
}

// DeletePendingName drops the held first name once the profile exists.
func (s *Store) DeletePendingName(ctx context.Context, credentialID string) error {
	return s.client.Del(ctx, pendingPrefix+credentialID).Err()
}

// AllowReset opens the short window in which a password change is accepted
// after a reset OTP was exchanged.
func (s *Store) AllowReset(ctx context.Context, email string, ttl time.Duration) error {
	return s.client.Set(ctx, resetAllowedPrefix+email, "1", ttl).Err()
}

// IsResetAllowed checks the reset gate.
func (s *Store) IsResetAllowed(ctx context.Context, email string) (bool, error) {
	n, err := s.client.Exists(ctx, resetAllowedPrefix+email).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check reset gate: %w", err)
	}
	return n > 0, nil
}

// ClearReset closes the reset window after a successful password change.
func (s *Store) ClearReset(ctx context.Context, email string) error {
	return s.client.Del(ctx, resetAllowedPrefix+email).Err()
}

// GetAPICache reads a generic response-cache entry.
func (s *Store) GetAPICache(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, apiCachePrefix+key).Bytes()
	if err == redis.Nil {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read api cache: %w", err)
	}
	return data, nil
}

// PutAPICache writes a generic response-cache entry with a caller-chosen TTL.
func (s *Store) PutAPICache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, apiCachePrefix+key, value, ttl).Err()
}

func otpKey(purpose, subject string) string {
	return fmt.Sprintf("%s:%s", purpose, subject)
}
