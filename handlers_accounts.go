package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type accountResponse struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Role                  Role      `json:"role"`
	PasswordResetRequired bool      `json:"passwordResetRequired"`
	CreatedBy             string    `json:"createdBy,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedBy             string    `json:"updatedBy,omitempty"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// toAccountResponse strips the password hash; it never leaves the server.
func toAccountResponse(a *Account) accountResponse {
	return accountResponse{
		ID:                    a.ID,
		Name:                  a.Name,
		Role:                  a.Role,
		PasswordResetRequired: a.PasswordResetRequired,
		CreatedBy:             a.CreatedBy,
		CreatedAt:             a.CreatedAt,
		UpdatedBy:             a.UpdatedBy,
		UpdatedAt:             a.UpdatedAt,
	}
}

func validAccountName(name string) bool {
	return len(name) >= 2 && len(name) <= 256
}

// HandleCreateAccount creates a staff account.
// POST /api/v1/accounts
func (a *App) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name     string `json:"name"`
		Password string `json:"password"`
		Role     Role   `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if !validAccountName(in.Name) || in.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name must be 2-256 characters and password is required")
		return
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !in.Role.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown role")
		return
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
		return
	}

	actor := ""
	if claims := claimsFrom(r); claims != nil {
		actor = claims.Name
	}
	now := time.Now().UTC()
	acct := &Account{
		ID:           uuid.NewString(),
		Name:         in.Name,
		PasswordHash: hash,
		Role:         in.Role,
		// Admin-issued passwords are temporary until the owner changes them.
		PasswordResetRequired: true,
		CreatedBy:             actor,
		CreatedAt:             now,
		UpdatedBy:             actor,
		UpdatedAt:             now,
	}
	if _, err := a.DB.CreateAccount(acct); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(acct))
}

// HandleListAccounts lists accounts.
// GET /api/v1/accounts
func (a *App) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.DB.ListAccounts()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, toAccountResponse(acct))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetAccount returns a single account.
// GET /api/v1/accounts/{id}
func (a *App) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := a.DB.GetAccountByID(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if acct == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Account not found")
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// HandleUpdateAccount renames an account or changes its role.
// PUT /api/v1/accounts/{id}
func (a *App) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
		Role Role   `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	acct, err := a.DB.GetAccountByID(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if acct == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Account not found")
		return
	}
	if in.Name != "" {
		if !validAccountName(in.Name) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Name must be 2-256 characters")
			return
		}
		acct.Name = in.Name
	}
	if in.Role != "" {
		if !in.Role.Valid() {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unknown role")
			return
		}
		acct.Role = in.Role
	}
	if claims := claimsFrom(r); claims != nil {
		acct.UpdatedBy = claims.Name
	}
	acct.UpdatedAt = time.Now().UTC()
	if err := a.DB.UpdateAccount(acct); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// HandleDeleteAccount removes an account and its session.
// DELETE /api/v1/accounts/{id}
func (a *App) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.DB.DeleteRefreshTokensForAccount(id); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := a.DB.DeleteAccount(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"deleted": true})
}

// HandleChangePassword sets a new password for the caller's own account, or
// for any account when the caller is an administrator. Changing a password
// clears the reset flag and rehashes under the current scheme.
// POST /api/v1/accounts/{id}/password
func (a *App) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Password == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Password is required")
		return
	}

	id := mux.Vars(r)["id"]
	claims := claimsFrom(r)
	if claims == nil || (claims.Subject != id && claims.Role != RoleAdministrator) {
		writeDomainError(w, ErrForbidden)
		return
	}

	acct, err := a.DB.GetAccountByID(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if acct == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Account not found")
		return
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process password")
		return
	}
	acct.PasswordHash = hash
	acct.PasswordResetRequired = false
	acct.UpdatedBy = claims.Name
	acct.UpdatedAt = time.Now().UTC()
	if err := a.DB.UpdateAccount(acct); err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"changed": true})
}
