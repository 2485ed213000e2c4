package session

import (
	"context"
	"os"
	"testing"
	"time"

	xerrors "finditnow-auth/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis returns a client against a local Redis, skipping the test
// when none is reachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestRefreshEntryRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()

	cs := &CachedSession{
		SessionID:    "sess-1",
		CredentialID: "cred-1",
		UserID:       "user-1",
		Role:         "customer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.PutRefresh(ctx, "tok-1", cs, time.Minute))

	got, err := store.GetRefresh(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, cs.SessionID, got.SessionID)
	assert.Equal(t, cs.CredentialID, got.CredentialID)
	assert.True(t, cs.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.DeleteRefresh(ctx, "tok-1"))
	_, err = store.GetRefresh(ctx, "tok-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	// Deleting again is harmless.
	assert.NoError(t, store.DeleteRefresh(ctx, "tok-1"))
}

func TestBlacklist(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()

	listed, err := store.IsAccessTokenBlacklisted(ctx, "tok-x")
	require.NoError(t, err)
	assert.False(t, listed)

	require.NoError(t, store.BlacklistAccessToken(ctx, "tok-x", time.Minute))
	listed, err = store.IsAccessTokenBlacklisted(ctx, "tok-x")
	require.NoError(t, err)
	assert.True(t, listed)

	// Non-positive TTL is a no-op.
	require.NoError(t, store.BlacklistAccessToken(ctx, "tok-y", 0))
	listed, err = store.IsAccessTokenBlacklisted(ctx, "tok-y")
	require.NoError(t, err)
	assert.False(t, listed)
}

func TestOTPNamespaces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()

	require.NoError(t, store.PutOTP(ctx, PurposeEmailVerify, "cred-1", "111111", time.Minute))
	require.NoError(t, store.PutOTP(ctx, PurposeReset, "cred-1", "222222", time.Minute))

	emailCode, err := store.GetOTP(ctx, PurposeEmailVerify, "cred-1")
	require.NoError(t, err)
	resetCode, err := store.GetOTP(ctx, PurposeReset, "cred-1")
	require.NoError(t, err)
	assert.NotEqual(t, emailCode, resetCode, "purposes must not collide")

	require.NoError(t, store.DeleteOTP(ctx, PurposeEmailVerify, "cred-1"))
	_, err = store.GetOTP(ctx, PurposeEmailVerify, "cred-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	// The other purpose is untouched.
	_, err = store.GetOTP(ctx, PurposeReset, "cred-1")
	assert.NoError(t, err)
}

func TestResetGate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()

	allowed, err := store.IsResetAllowed(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, store.AllowReset(ctx, "a@x.com", time.Minute))
	allowed, err = store.IsResetAllowed(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, store.ClearReset(ctx, "a@x.com"))
	allowed, err = store.IsResetAllowed(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAPICache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()

	_, err := store.GetAPICache(ctx, "svc:/path:hash")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	require.NoError(t, store.PutAPICache(ctx, "svc:/path:hash", []byte(`{"a":1}`), time.Minute))
	data, err := store.GetAPICache(ctx, "svc:/path:hash")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)
}

func TestPendingName(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := NewStore(setupTestRedis(t))
	ctx := context.Background()

	_, err := store.GetPendingName(ctx, "cred-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	require.NoError(t, store.PutPendingName(ctx, "cred-1", "Al", time.Minute))
	name, err := store.GetPendingName(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "Al", name)

	require.NoError(t, store.DeletePendingName(ctx, "cred-1"))
	_, err = store.GetPendingName(ctx, "cred-1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
