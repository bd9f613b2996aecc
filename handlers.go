package main

import (
	"encoding/json"
	"net/http"
	"time"
)

type creds struct{ Name, Password string }

// tokenResponse is the wire shape shared by login and refresh.
type tokenResponse struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	TokenType             string    `json:"tokenType"`
	Expires               time.Time `json:"expires"`
	Issued                time.Time `json:"issued"`
	ID                    string    `json:"id"`
	Role                  Role      `json:"role"`
	PasswordResetRequired bool      `json:"passwordResetRequired"`
}

func toTokenResponse(pair *TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		TokenType:             pair.TokenType,
		Expires:               pair.Expires,
		Issued:                pair.Issued,
		ID:                    pair.AccountID,
		Role:                  pair.Role,
		PasswordResetRequired: pair.PasswordResetRequired,
	}
}

// HandleToken issues a token pair for valid credentials.
// POST /token
func (a *App) HandleToken(w http.ResponseWriter, r *http.Request) {
	var c creds
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if c.Name == "" || c.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name and password are required")
		return
	}
	pair, err := a.Auth.Login(c.Name, c.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// HandleTokenRefresh exchanges a refresh token for a new pair.
// POST /token/refresh
func (a *App) HandleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct{ RefreshToken string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	pair, err := a.Auth.Refresh(in.RefreshToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// HandleLogout deletes the session behind a refresh token.
// POST /token/logout
func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in struct{ RefreshToken string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Refresh token is required")
		return
	}
	if err := a.Auth.Logout(in.RefreshToken); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"revoked": true})
}
