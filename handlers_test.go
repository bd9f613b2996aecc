package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*App, DB) {
	t.Helper()
	db := NewMemoryDB()
	factory := testFactory(t)
	return &App{DB: db, Tokens: factory, Auth: NewAuth(db, factory)}, db
}

func doJSON(t *testing.T, app *App, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	app.Router().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, app *App, name, password string) tokenResponse {
	t.Helper()
	w := doJSON(t, app, "POST", "/token", "", map[string]string{"name": name, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleTokenSuccess(t *testing.T) {
	app, db := newTestApp(t)
	acct := seedAccount(t, db, "alice", "s3cret!", RoleSupervisor)

	resp := login(t, app, "alice", "s3cret!")
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, acct.ID, resp.ID)
	require.Equal(t, RoleSupervisor, resp.Role)
	require.False(t, resp.PasswordResetRequired)
	require.True(t, resp.Expires.After(resp.Issued))
}

func TestHandleTokenBadCredentials(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "alice", "s3cret!", RoleUser)

	for _, body := range []map[string]string{
		{"name": "alice", "password": "wrong"},
		{"name": "nobody", "password": "s3cret!"},
	} {
		w := doJSON(t, app, "POST", "/token", "", body)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		var apiErr APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
		require.Equal(t, "UNAUTHORIZED", apiErr.Code)
	}
}

func TestHandleTokenMissingFields(t *testing.T) {
	app, _ := newTestApp(t)
	w := doJSON(t, app, "POST", "/token", "", map[string]string{"name": "alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTokenRefreshAndLogout(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "alice", "s3cret!", RoleUser)

	first := login(t, app, "alice", "s3cret!")

	w := doJSON(t, app, "POST", "/token/refresh", "", map[string]string{"refreshToken": first.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.False(t, second.Issued.Before(first.Issued))

	w = doJSON(t, app, "POST", "/token/logout", "", map[string]string{"refreshToken": second.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, app, "POST", "/token/refresh", "", map[string]string{"refreshToken": second.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuardRejectsMissingAndBadTokens(t *testing.T) {
	app, _ := newTestApp(t)

	w := doJSON(t, app, "GET", "/api/v1/patrons", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, app, "GET", "/api/v1/patrons", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuardEnforcesRoles(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "desk", "pw-front", RoleUser)
	seedAccount(t, db, "lead", "pw-lead1", RoleSupervisor)

	user := login(t, app, "desk", "pw-front")
	lead := login(t, app, "lead", "pw-lead1")

	patron := map[string]interface{}{"firstName": "Sam", "lastName": "Jones"}

	// Writes need supervisor or administrator.
	w := doJSON(t, app, "POST", "/api/v1/patrons", user.AccessToken, patron)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, app, "POST", "/api/v1/patrons", lead.AccessToken, patron)
	require.Equal(t, http.StatusCreated, w.Code)

	// Reads need any authenticated role.
	w = doJSON(t, app, "GET", "/api/v1/patrons", user.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Account management needs administrator.
	w = doJSON(t, app, "GET", "/api/v1/accounts", lead.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAccountLifecycle(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "root", "pw-root1", RoleAdministrator)
	admin := login(t, app, "root", "pw-root1")

	w := doJSON(t, app, "POST", "/api/v1/accounts", admin.AccessToken,
		map[string]string{"name": "bob", "password": "temp-pw1", "role": "User"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created accountResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, "bob", created.Name)
	require.True(t, created.PasswordResetRequired)
	require.Equal(t, "root", created.CreatedBy)

	// Duplicate name conflicts.
	w = doJSON(t, app, "POST", "/api/v1/accounts", admin.AccessToken,
		map[string]string{"name": "bob", "password": "temp-pw2"})
	require.Equal(t, http.StatusConflict, w.Code)

	// The new account logs in with the temp password and the reset flag set.
	bob := login(t, app, "bob", "temp-pw1")
	require.True(t, bob.PasswordResetRequired)

	// Changing the password clears the flag.
	w = doJSON(t, app, "POST", fmt.Sprintf("/api/v1/accounts/%s/password", created.ID), bob.AccessToken,
		map[string]string{"password": "chosen-pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	bob = login(t, app, "bob", "chosen-pw")
	require.False(t, bob.PasswordResetRequired)

	// A user cannot change someone else's password.
	other := seedAccount(t, db, "carol", "pw-carol", RoleUser)
	w = doJSON(t, app, "POST", fmt.Sprintf("/api/v1/accounts/%s/password", other.ID), bob.AccessToken,
		map[string]string{"password": "hijack"})
	require.Equal(t, http.StatusForbidden, w.Code)

	// Role change, then delete.
	w = doJSON(t, app, "PUT", fmt.Sprintf("/api/v1/accounts/%s", created.ID), admin.AccessToken,
		map[string]string{"role": "Supervisor"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, app, "DELETE", fmt.Sprintf("/api/v1/accounts/%s", created.ID), admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/accounts/%s", created.ID), admin.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccountValidation(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "root", "pw-root1", RoleAdministrator)
	admin := login(t, app, "root", "pw-root1")

	// Single-character name is too short.
	w := doJSON(t, app, "POST", "/api/v1/accounts", admin.AccessToken,
		map[string]string{"name": "x", "password": "pw"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, app, "POST", "/api/v1/accounts", admin.AccessToken,
		map[string]string{"name": "ok-name", "password": "pw", "role": "SuperDuper"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckInFlow(t *testing.T) {
	app, db := newTestApp(t)
	seedAccount(t, db, "lead", "pw-lead1", RoleSupervisor)
	seedAccount(t, db, "desk", "pw-front", RoleUser)
	lead := login(t, app, "lead", "pw-lead1")
	desk := login(t, app, "desk", "pw-front")

	w := doJSON(t, app, "POST", "/api/v1/patrons", lead.AccessToken,
		map[string]interface{}{"cardNumber": "C-100", "firstName": "Sam", "lastName": "Jones", "veteran": true, "branch": "Army"})
	require.Equal(t, http.StatusCreated, w.Code)
	var patron Patron
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patron))

	w = doJSON(t, app, "POST", "/api/v1/events", lead.AccessToken,
		map[string]interface{}{"name": "Stand Down 2026"})
	require.Equal(t, http.StatusCreated, w.Code)
	var event Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))

	w = doJSON(t, app, "POST", "/api/v1/services", lead.AccessToken,
		map[string]interface{}{"name": "Housing counseling"})
	require.Equal(t, http.StatusCreated, w.Code)
	var svc Service
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &svc))

	// Front desk checks the patron in by card number.
	w = doJSON(t, app, "POST", "/api/v1/scans", desk.AccessToken,
		map[string]interface{}{"cardNumber": "C-100", "eventId": event.ID, "serviceId": svc.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var scan Scan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scan))
	require.Equal(t, patron.ID, scan.PatronID)
	require.Equal(t, "desk", scan.RecordedBy)

	// Unknown card is a 404, not a silent insert.
	w = doJSON(t, app, "POST", "/api/v1/scans", desk.AccessToken,
		map[string]interface{}{"cardNumber": "C-999", "eventId": event.ID})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/scans?event=%d", event.ID), desk.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var scans []Scan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scans))
	require.Len(t, scans, 1)

	// Attendance report needs supervisor.
	w = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/reports/events/%d", event.ID), desk.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/reports/events/%d", event.ID), lead.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var att EventAttendance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &att))
	require.EqualValues(t, 1, att.TotalScans)
	require.EqualValues(t, 1, att.UniquePatrons)
	require.EqualValues(t, 1, att.ServiceCounts[svc.ID])

	w = doJSON(t, app, "GET", fmt.Sprintf("/api/v1/reports/patrons/%d", patron.ID), lead.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	app, _ := newTestApp(t)
	w := doJSON(t, app, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, app, "GET", "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
