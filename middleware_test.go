package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggingRecordsActor(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "alice", "s3cret!", RoleUser)
	tok := login(t, app, "alice", "s3cret!")

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	w := doJSON(t, app, "GET", "/api/v1/patrons", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, buf.String(), "(actor: alice)")
}

func TestLoggingAnonymousActor(t *testing.T) {
	app, _ := newTestApp(t)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	w := doJSON(t, app, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, buf.String(), "(actor: -)")
}

func TestRateLimitOnTokenEndpoint(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "alice", "s3cret!", RoleUser)
	app.rateLimiter = NewRateLimiter(2)

	body := map[string]string{"name": "alice", "password": "s3cret!"}
	for i := 0; i < 2; i++ {
		w := doJSON(t, app, "POST", "/token", "", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := doJSON(t, app, "POST", "/token", "", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	require.Equal(t, "RATE_LIMIT_EXCEEDED", apiErr.Code)

	// A different client host gets its own bucket.
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest("POST", "/token", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4567"
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
