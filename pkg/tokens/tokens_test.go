package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret        = []byte("test-jwt-secret")
	testRefreshSecret = []byte("test-refresh-secret")
)

func TestSignAccess_RoundTrip(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(15 * time.Minute).UTC()
	token, err := SignAccess(42, "alice", exp, testSecret)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := AccessClaimsFromToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestSignRefresh_RoundTrip(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(7 * 24 * time.Hour).UTC()
	token, err := SignRefresh(42, exp, testRefreshSecret)
	require.NoError(t, err)

	claims, err := RefreshClaimsFromToken(token, testRefreshSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "refresh", claims.Typ)
	assert.NotEmpty(t, claims.ID)
}

func TestAccessClaimsFromToken_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := SignAccess(1, "bob", time.Now().Add(time.Minute), testSecret)
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(token, []byte("other-secret"))
	require.Error(t, err)
}

func TestRefreshClaimsFromToken_RejectsAccessToken(t *testing.T) {
	t.Parallel()

	token, err := SignAccess(1, "bob", time.Now().Add(time.Minute), testRefreshSecret)
	require.NoError(t, err)

	_, err = RefreshClaimsFromToken(token, testRefreshSecret)
	require.Error(t, err)
}

func TestDecodeUnverified_IgnoresSignatureAndExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(-10 * time.Second)
	token, err := SignAccess(7, "carol", exp, []byte("a-key-the-client-never-sees"))
	require.NoError(t, err)

	claims, err := DecodeUnverified(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "carol", claims.Username)
}

func TestDecodeUnverified_Garbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeUnverified("not-a-jwt")
	require.Error(t, err)
}

func TestExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	fresh, err := SignAccess(1, "u", now.Add(time.Minute), testSecret)
	require.NoError(t, err)
	stale, err := SignAccess(1, "u", now.Add(-10*time.Second), testSecret)
	require.NoError(t, err)

	freshClaims, err := DecodeUnverified(fresh)
	require.NoError(t, err)
	staleClaims, err := DecodeUnverified(stale)
	require.NoError(t, err)

	assert.False(t, Expired(freshClaims, now))
	assert.True(t, Expired(staleClaims, now))
	assert.True(t, Expired(nil, now))
}
