package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-0123456789"

func TestHasherSaltsAndVerifies(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	a, err := h.Hash("hunter22")
	require.NoError(t, err)
	b, err := h.Hash("hunter22")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "hunter22")
	assert.True(t, h.Verify("hunter22", a))
	assert.True(t, h.Verify("hunter22", b))
	assert.False(t, h.Verify("hunter23", a))
	assert.False(t, h.Verify("hunter22", "not-a-hash"))
	assert.False(t, h.VerifyDummy("hunter22"))
}

func TestNewHasherRejectsBadCost(t *testing.T) {
	_, err := NewHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	m, err := NewTokenManager(testSecret, 24*time.Hour)
	require.NoError(t, err)

	tok, err := m.Issue("user-1", true)
	require.NoError(t, err)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "user-1", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenRejected(t *testing.T) {
	m, err := NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)
	valid, err := m.Issue("user-1", false)
	require.NoError(t, err)

	other, err := NewTokenManager("another-secret-0123456789", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue("user-1", true)
	require.NoError(t, err)

	expired := &TokenManager{secret: []byte(testSecret), ttl: time.Hour, now: func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}}
	stale, err := expired.Issue("user-1", false)
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:           "user-1",
		IsAdmin:          true,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":         "",
		"garbage":       "not.a.token",
		"wrong secret":  foreign,
		"expired":       stale,
		"tampered":      tampered,
		"alg none":      none,
		"no expiration": noExp,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Parse(tok)
			assert.Error(t, err)
		})
	}
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFrom(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{UserID: "u"})
	c, ok := ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", c.UserID)
}
