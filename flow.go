package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken           string
	RefreshToken          string
	TokenType             string
	Issued                time.Time
	Expires               time.Time
	AccountID             string
	Role                  Role
	PasswordResetRequired bool
}

// Auth orchestrates credential verification, token minting and the refresh
// token store. Access tokens are validated statelessly elsewhere; every
// refresh-token operation re-checks the durable store.
type Auth struct {
	db     DB
	tokens *TokenFactory
	now    func() time.Time
}

func NewAuth(db DB, tokens *TokenFactory) *Auth {
	return &Auth{db: db, tokens: tokens, now: time.Now}
}

// Login verifies the credentials and issues a fresh token pair. An unknown
// name and a wrong password fail identically so callers cannot enumerate
// accounts. A successful login supersedes any existing session for the
// account: one active refresh token per account.
func (a *Auth) Login(name, password string) (*TokenPair, error) {
	acct, err := a.db.GetAccountByName(name)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if acct == nil || !verifyPassword(acct.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	refresh, rec, err := a.tokens.RefreshToken(acct.ID, RefreshTokenOptions{})
	if err != nil {
		return nil, err
	}
	if err := a.db.DeleteRefreshTokensForAccount(acct.ID); err != nil {
		return nil, fmt.Errorf("superseding refresh token: %w", err)
	}
	if err := a.db.CreateRefreshToken(rec); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return a.pair(acct, refresh, rec)
}

// Refresh exchanges a valid, unrevoked refresh token for a new pair. The
// stored record keeps its token id; issued/expires are rotated forward.
func (a *Auth) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := a.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	rec, err := a.db.GetRefreshToken(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh token lookup: %w", err)
	}
	if rec == nil {
		// Valid signature but no record: logged out or superseded.
		return nil, ErrTokenRevoked
	}
	if rec.AccountID != claims.Subject {
		return nil, ErrTokenInvalid
	}
	if rec.Expired(a.now()) {
		return nil, ErrTokenExpired
	}

	acct, err := a.db.GetAccountByID(rec.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	refresh, newRec, err := a.tokens.RefreshToken(acct.ID, RefreshTokenOptions{TokenID: rec.TokenID})
	if err != nil {
		return nil, err
	}
	if err := a.db.UpdateRefreshToken(newRec); err != nil {
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	return a.pair(acct, refresh, newRec)
}

// Logout revokes the session behind the presented refresh token. It is
// idempotent: unknown, expired, or already-deleted tokens all succeed.
func (a *Auth) Logout(refreshToken string) error {
	claims := &RefreshClaims{}
	// Expiry is irrelevant here; only the signature gates the delete.
	_, err := jwt.ParseWithClaims(refreshToken, claims,
		func(t *jwt.Token) (interface{}, error) { return a.tokens.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.ID == "" {
		return nil
	}
	if err := a.db.DeleteRefreshToken(claims.ID); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

// SweepExpired removes refresh records past their expiry.
func (a *Auth) SweepExpired() (int64, error) {
	return a.db.DeleteExpiredRefreshTokens(a.now())
}

func (a *Auth) pair(acct *Account, refresh string, rec RefreshToken) (*TokenPair, error) {
	access, claims, err := a.tokens.AccessToken(acct, rec.TokenID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		TokenType:             "Bearer",
		Issued:                claims.IssuedAt.Time,
		Expires:               claims.ExpiresAt.Time,
		AccountID:             acct.ID,
		Role:                  acct.Role,
		PasswordResetRequired: acct.PasswordResetRequired,
	}, nil
}
