package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folioapp/folio-server/internal/domain"
)

const testKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestTokenService(t *testing.T, accessDuration time.Duration) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testKeyHex, accessDuration, 30*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func testUser() *domain.User {
	return &domain.User{
		Syncable:    domain.Syncable{ID: "usr-test123"},
		Email:       "alice@example.com",
		Role:        domain.RoleMember,
		DisplayName: "Alice",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService(t, 15*time.Minute)

	token, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)

	assert.Equal(t, "usr-test123", claims.UserID)
	assert.Equal(t, "usr-test123", claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "member", claims.Role)
	assert.False(t, claims.IsRoot)
	assert.False(t, claims.IsAdmin())
	assert.NotEmpty(t, claims.TokenID)
	assert.Equal(t, "folio-server", claims.Issuer)
	assert.Equal(t, "folio-client", claims.Audience)
}

func TestAccessTokenAdminClaims(t *testing.T) {
	svc := newTestTokenService(t, 15*time.Minute)

	user := testUser()
	user.IsRoot = true
	user.Role = domain.RoleAdmin

	token, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsRoot)
	assert.True(t, claims.IsAdmin())
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := newTestTokenService(t, -time.Minute)

	token, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(token)
	assert.Error(t, err)
}

func TestVerifyTamperedToken(t *testing.T) {
	svc := newTestTokenService(t, 15*time.Minute)

	token, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	// Flip a character in the ciphertext.
	tampered := []byte(token)
	idx := len(tampered) - 10
	if tampered[idx] == 'a' {
		tampered[idx] = 'b'
	} else {
		tampered[idx] = 'a'
	}

	_, err = svc.VerifyAccessToken(string(tampered))
	assert.Error(t, err)
}

func TestNewTokenService_RejectsBadKeys(t *testing.T) {
	_, err := NewTokenService("deadbeef", 15*time.Minute, time.Hour)
	assert.Error(t, err, "short key must fail")

	badHex := strings.Repeat("zz", 32)
	_, err = NewTokenService(badHex, 15*time.Minute, time.Hour)
	assert.Error(t, err, "non-hex key must fail")
}

func TestGenerateRefreshToken(t *testing.T) {
	svc := newTestTokenService(t, 15*time.Minute)

	a, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	b, err := svc.GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	decoded, err := base64.URLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, decoded, refreshTokenSize)
}

func TestHashRefreshToken(t *testing.T) {
	hash := HashRefreshToken("some-opaque-token")

	// Deterministic, hex-encoded SHA-256.
	assert.Equal(t, HashRefreshToken("some-opaque-token"), hash)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, HashRefreshToken("other-token"), hash)
	assert.NotContains(t, hash, "some-opaque-token")
}
