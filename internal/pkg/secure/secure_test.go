package secure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2hunter2", hash)

	assert.True(t, VerifyPassword("hunter2hunter2", hash))
	assert.False(t, VerifyPassword("wrong-password", hash))
	assert.False(t, VerifyPassword("hunter2hunter2", "not-a-hash"))
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare("123456", "123456"))
	assert.False(t, SecureCompare("123456", "123457"))
	assert.False(t, SecureCompare("123456", "12345"))
	assert.True(t, SecureCompare("", ""))
}

func TestNewRefreshToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := NewRefreshToken()
		require.NoError(t, err)
		// 32 random bytes in unpadded base64url
		assert.Len(t, tok, 43)
		assert.False(t, seen[tok], "refresh tokens must not repeat")
		seen[tok] = true
	}
}

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := GenerateOTP(6)
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "otp must be numeric, got %q", code)
		}
	}
}
