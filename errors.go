package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

var (
	// ErrInvalidCredentials covers both unknown-name and wrong-password logins.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid means a token failed signature or structural validation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired means a token validated but is outside its validity window.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked means a refresh token validated but has no store record.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrAccountNotFound means the token's owning account no longer exists.
	ErrAccountNotFound = errors.New("account not found")
	// ErrForbidden means a validated identity lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint was violated.
	ErrConflict = errors.New("conflict")
	// ErrValidation means the request payload failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrConfiguration means required configuration is absent at startup.
	ErrConfiguration = errors.New("configuration error")
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// writeDomainError maps a domain error to its HTTP response. Every
// authentication failure collapses to the same 401 body so the caller cannot
// tell which check failed; only role failures are distinguishable as 403.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrAccountNotFound):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials or token")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient role")
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request")
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "Resource already exists")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
