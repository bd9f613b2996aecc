package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/vetdesk/internal/config"
)

func testFactory(t *testing.T) *TokenFactory {
	t.Helper()
	f, err := NewTokenFactory(&config.Config{
		JwtSecret:       "test-secret",
		JwtIssuer:       "vetdesk-test",
		JwtAudience:     "vetdesk-test",
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return f
}

func testAccount() *Account {
	return &Account{
		ID:   "7f9c36a1-9f2b-4f43-9a3e-2f4f0a55d101",
		Name: "alice",
		Role: RoleSupervisor,
	}
}

func TestTokenFactoryRequiresSecret(t *testing.T) {
	_, err := NewTokenFactory(&config.Config{})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestAccessTokenClaims(t *testing.T) {
	f := testFactory(t)
	acct := testAccount()
	acct.PasswordResetRequired = true

	signed, claims, err := f.AccessToken(acct, "rt-1")
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	require.Equal(t, acct.ID, claims.Subject)
	require.Equal(t, "alice", claims.Name)
	require.Equal(t, RoleSupervisor, claims.Role)
	require.True(t, claims.PasswordResetRequired)
	require.Equal(t, "rt-1", claims.RefreshTokenID)
	require.WithinDuration(t, claims.IssuedAt.Time.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)

	parsed, err := f.ParseAccess(signed)
	require.NoError(t, err)
	require.Equal(t, acct.ID, parsed.Subject)
	require.Equal(t, RoleSupervisor, parsed.Role)
	require.Equal(t, "rt-1", parsed.RefreshTokenID)
}

func TestParseAccessRejectsExpired(t *testing.T) {
	f := testFactory(t)
	// Mint in the past so the token is already outside its window.
	f.now = func() time.Time { return time.Now().Add(-time.Hour) }
	signed, _, err := f.AccessToken(testAccount(), "rt-1")
	require.NoError(t, err)

	f.now = time.Now
	_, err = f.ParseAccess(signed)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseAccessRejectsWrongKey(t *testing.T) {
	f := testFactory(t)
	signed, _, err := f.AccessToken(testAccount(), "rt-1")
	require.NoError(t, err)

	other, err := NewTokenFactory(&config.Config{JwtSecret: "other-secret", JwtIssuer: "vetdesk-test", JwtAudience: "vetdesk-test"})
	require.NoError(t, err)
	_, err = other.ParseAccess(signed)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseAccessRejectsGarbage(t *testing.T) {
	f := testFactory(t)
	_, err := f.ParseAccess("not-a-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshTokenDefaults(t *testing.T) {
	f := testFactory(t)
	signed, rec, err := f.RefreshToken("acct-1", RefreshTokenOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, rec.TokenID)
	require.Equal(t, "acct-1", rec.AccountID)
	require.WithinDuration(t, time.Now(), rec.Issued, time.Second)
	require.WithinDuration(t, time.Now().Add(7*24*time.Hour), rec.Expires, time.Second)

	claims, err := f.ParseRefresh(signed)
	require.NoError(t, err)
	require.Equal(t, rec.TokenID, claims.ID)
	require.Equal(t, "acct-1", claims.Subject)
}

func TestRefreshTokenReusesSuppliedID(t *testing.T) {
	f := testFactory(t)
	_, rec, err := f.RefreshToken("acct-1", RefreshTokenOptions{TokenID: "keep-me"})
	require.NoError(t, err)
	require.Equal(t, "keep-me", rec.TokenID)
}

func TestVerifyPasswordLegacyScheme(t *testing.T) {
	// sha512("s3cret!") hex
	stored := legacyHash("s3cret!")
	require.True(t, verifyPassword(stored, "s3cret!"))
	require.False(t, verifyPassword(stored, "wrong"))
	// Uppercase digests from older tooling still verify.
	require.True(t, verifyPassword(strings.ToUpper(stored), "s3cret!"))
}

func TestVerifyPasswordLegacyEmbeddedNull(t *testing.T) {
	// Passwords with embedded NUL bytes must hash over raw UTF-8 bytes.
	pw := "pa\x00ss"
	stored := legacyHash(pw)
	require.True(t, verifyPassword(stored, pw))
	require.False(t, verifyPassword(stored, "pass"))
}

func TestVerifyPasswordBcryptScheme(t *testing.T) {
	stored, err := hashPassword("s3cret!")
	require.NoError(t, err)
	require.True(t, verifyPassword(stored, "s3cret!"))
	require.False(t, verifyPassword(stored, "wrong"))
}
