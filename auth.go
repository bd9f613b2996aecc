package main

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/vetdesk/internal/config"
)

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

// legacyHash is the historical scheme: unsalted SHA-512 over the password's
// UTF-8 bytes, hex encoded. It is kept only so credentials enrolled under it
// keep working; new passwords go through hashPassword.
func legacyHash(p string) string {
	sum := sha512.Sum512([]byte(p))
	return hex.EncodeToString(sum[:])
}

// verifyPassword checks a supplied password against a stored hash, picking
// the scheme from the stored format.
func verifyPassword(stored, supplied string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	computed := legacyHash(supplied)
	stored = strings.ToLower(stored)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(computed)) == 1
}

// AccessClaims is the typed claim set carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Name                  string `json:"name"`
	Role                  Role   `json:"role"`
	PasswordResetRequired bool   `json:"pwdReset"`
	RefreshTokenID        string `json:"rtid"`
}

// RefreshClaims is the claim set carried by a refresh token. The registered
// ID claim is the store key; Subject is the owning account.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// RefreshTokenOptions override the defaults when minting a refresh token.
// Zero values mean: new token id, issued now, expires now plus the configured
// TTL. Supplying TokenID keeps an existing store key across a rotation.
type RefreshTokenOptions struct {
	TokenID string
	Issued  time.Time
	Expires time.Time
}

// TokenFactory mints and parses signed tokens. All state is set at
// construction; it is safe for concurrent use.
type TokenFactory struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenFactory builds a factory from configuration. The signing key has no
// usable default; tokens minted under a guessable key are forgeable, so its
// absence is fatal at startup.
func NewTokenFactory(cfg *config.Config) (*TokenFactory, error) {
	if cfg.JwtSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is not set", ErrConfiguration)
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenFactory{
		secret:     []byte(cfg.JwtSecret),
		issuer:     cfg.JwtIssuer,
		audience:   cfg.JwtAudience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// AccessToken signs a short-lived bearer token for the account. The refresh
// token id is embedded so a client can tell which session the token belongs to.
func (f *TokenFactory) AccessToken(acct *Account, refreshTokenID string) (string, *AccessClaims, error) {
	now := f.now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			Issuer:    f.issuer,
			Audience:  jwt.ClaimStrings{f.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(f.accessTTL)),
		},
		Name:                  acct.Name,
		Role:                  acct.Role,
		PasswordResetRequired: acct.PasswordResetRequired,
		RefreshTokenID:        refreshTokenID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing access token: %w", err)
	}
	return signed, claims, nil
}

// RefreshToken signs a refresh token for the account and returns the store
// record that must be persisted alongside it.
func (f *TokenFactory) RefreshToken(accountID string, opts RefreshTokenOptions) (string, RefreshToken, error) {
	now := f.now()
	rec := RefreshToken{
		TokenID:   opts.TokenID,
		AccountID: accountID,
		Issued:    opts.Issued,
		Expires:   opts.Expires,
	}
	if rec.TokenID == "" {
		rec.TokenID = uuid.NewString()
	}
	if rec.Issued.IsZero() {
		rec.Issued = now
	}
	if rec.Expires.IsZero() {
		rec.Expires = now.Add(f.refreshTTL)
	}
	claims := &RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.TokenID,
			Subject:   accountID,
			Issuer:    f.issuer,
			Audience:  jwt.ClaimStrings{f.audience},
			IssuedAt:  jwt.NewNumericDate(rec.Issued),
			ExpiresAt: jwt.NewNumericDate(rec.Expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		return "", RefreshToken{}, fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, rec, nil
}

// ParseAccess validates an access token string and returns its claims.
func (f *TokenFactory) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := f.parse(token, claims); err != nil {
		return nil, err
	}
	if !claims.Role.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh validates a refresh token string and returns its claims.
func (f *TokenFactory) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := f.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (f *TokenFactory) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return f.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(f.issuer),
		jwt.WithAudience(f.audience),
		jwt.WithTimeFunc(f.now),
	)
	switch {
	case err == nil && parsed.Valid:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
