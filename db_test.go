package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "vetdesk_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.close() })
	return db
}

func sqliteAccount(t *testing.T, db *SQLiteDB, name string) *Account {
	t.Helper()
	now := time.Now().UTC()
	acct, err := db.CreateAccount(&Account{
		ID:           name + "-id",
		Name:         name,
		PasswordHash: legacyHash("pw-" + name),
		Role:         RoleUser,
		CreatedBy:    "test",
		CreatedAt:    now,
		UpdatedBy:    "test",
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	return acct
}

func TestSQLiteAccountCRUD(t *testing.T) {
	db := testSQLite(t)

	acct := sqliteAccount(t, db, "alice")

	got, err := db.GetAccountByID(acct.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, acct.Name, got.Name)
	require.Equal(t, acct.PasswordHash, got.PasswordHash)
	require.Equal(t, RoleUser, got.Role)
	require.WithinDuration(t, acct.CreatedAt, got.CreatedAt, time.Second)

	byName, err := db.GetAccountByName("alice")
	require.NoError(t, err)
	require.NotNil(t, byName)
	require.Equal(t, acct.ID, byName.ID)

	missing, err := db.GetAccountByName("nobody")
	require.NoError(t, err)
	require.Nil(t, missing)

	// Duplicate name violates the unique constraint.
	_, err = db.CreateAccount(&Account{ID: "other-id", Name: "alice", PasswordHash: "x", Role: RoleUser})
	require.ErrorIs(t, err, ErrConflict)

	got.Role = RoleSupervisor
	got.PasswordResetRequired = true
	require.NoError(t, db.UpdateAccount(got))
	updated, err := db.GetAccountByID(acct.ID)
	require.NoError(t, err)
	require.Equal(t, RoleSupervisor, updated.Role)
	require.True(t, updated.PasswordResetRequired)

	n, err := db.CountAccounts()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, db.DeleteAccount(acct.ID))
	gone, err := db.GetAccountByID(acct.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestSQLiteRefreshTokenLifecycle(t *testing.T) {
	db := testSQLite(t)
	acct := sqliteAccount(t, db, "alice")

	now := time.Now().UTC()
	rec := RefreshToken{
		TokenID:   "tok-1",
		AccountID: acct.ID,
		Issued:    now,
		Expires:   now.Add(168 * time.Hour),
	}
	require.NoError(t, db.CreateRefreshToken(rec))

	got, err := db.GetRefreshToken("tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, rec.EquivalentTo(*got))

	byAccount, err := db.GetRefreshTokenForAccount(acct.ID)
	require.NoError(t, err)
	require.NotNil(t, byAccount)
	require.Equal(t, "tok-1", byAccount.TokenID)

	// One row per account: a second token for the same account conflicts.
	err = db.CreateRefreshToken(RefreshToken{TokenID: "tok-2", AccountID: acct.ID, Issued: now, Expires: now.Add(time.Hour)})
	require.ErrorIs(t, err, ErrConflict)

	// Same token id for another account conflicts on the primary key.
	other := sqliteAccount(t, db, "bob")
	err = db.CreateRefreshToken(RefreshToken{TokenID: "tok-1", AccountID: other.ID, Issued: now, Expires: now.Add(time.Hour)})
	require.ErrorIs(t, err, ErrConflict)

	// Rotation keeps the id but moves the window.
	rec.Expires = now.Add(300 * time.Hour)
	require.NoError(t, db.UpdateRefreshToken(rec))
	rotated, err := db.GetRefreshToken("tok-1")
	require.NoError(t, err)
	require.WithinDuration(t, rec.Expires, rotated.Expires, time.Second)

	require.NoError(t, db.DeleteRefreshToken("tok-1"))
	gone, err := db.GetRefreshToken("tok-1")
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestSQLiteDeleteExpiredRefreshTokens(t *testing.T) {
	db := testSQLite(t)
	now := time.Now().UTC()

	live := sqliteAccount(t, db, "live")
	stale := sqliteAccount(t, db, "stale")
	require.NoError(t, db.CreateRefreshToken(RefreshToken{
		TokenID: "tok-live", AccountID: live.ID, Issued: now, Expires: now.Add(time.Hour),
	}))
	require.NoError(t, db.CreateRefreshToken(RefreshToken{
		TokenID: "tok-stale", AccountID: stale.ID, Issued: now.Add(-2 * time.Hour), Expires: now.Add(-time.Hour),
	}))

	n, err := db.DeleteExpiredRefreshTokens(now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	kept, err := db.GetRefreshToken("tok-live")
	require.NoError(t, err)
	require.NotNil(t, kept)
	swept, err := db.GetRefreshToken("tok-stale")
	require.NoError(t, err)
	require.Nil(t, swept)
}

func TestSQLitePatronCardLookup(t *testing.T) {
	db := testSQLite(t)

	p, err := db.CreatePatron(&Patron{
		CardNumber: "C-100", FirstName: "Sam", LastName: "Jones",
		Veteran: true, Branch: "Navy",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotZero(t, p.ID)

	got, err := db.GetPatronByCard("C-100")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, p.ID, got.ID)
	require.True(t, got.Veteran)

	missing, err := db.GetPatronByCard("C-999")
	require.NoError(t, err)
	require.Nil(t, missing)

	_, err = db.CreatePatron(&Patron{CardNumber: "C-100", FirstName: "Pat", LastName: "Doe"})
	require.ErrorIs(t, err, ErrConflict)

	got.Email = "sam@example.org"
	require.NoError(t, db.UpdatePatron(got))
	updated, err := db.GetPatron(p.ID)
	require.NoError(t, err)
	require.Equal(t, "sam@example.org", updated.Email)

	require.NoError(t, db.DeletePatron(p.ID))
	gone, err := db.GetPatron(p.ID)
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestSQLiteAttendanceReport(t *testing.T) {
	db := testSQLite(t)
	now := time.Now().UTC()

	event, err := db.CreateEvent(&Event{Name: "Stand Down", StartsAt: now, EndsAt: now.Add(8 * time.Hour), CreatedAt: now})
	require.NoError(t, err)
	svc, err := db.CreateService(&Service{Name: "Housing counseling", CreatedAt: now})
	require.NoError(t, err)

	sam, err := db.CreatePatron(&Patron{CardNumber: "C-1", FirstName: "Sam", LastName: "Jones"})
	require.NoError(t, err)
	ray, err := db.CreatePatron(&Patron{CardNumber: "C-2", FirstName: "Ray", LastName: "Lee"})
	require.NoError(t, err)

	for _, s := range []*Scan{
		{PatronID: sam.ID, EventID: event.ID, ServiceID: &svc.ID, RecordedBy: "desk", ScannedAt: now},
		{PatronID: sam.ID, EventID: event.ID, RecordedBy: "desk", ScannedAt: now.Add(time.Hour)},
		{PatronID: ray.ID, EventID: event.ID, ServiceID: &svc.ID, RecordedBy: "desk", ScannedAt: now.Add(2 * time.Hour)},
	} {
		_, err := db.CreateScan(s)
		require.NoError(t, err)
	}

	byEvent, err := db.ListScansByEvent(event.ID)
	require.NoError(t, err)
	require.Len(t, byEvent, 3)

	bySam, err := db.ListScansByPatron(sam.ID)
	require.NoError(t, err)
	require.Len(t, bySam, 2)

	att, err := db.EventAttendance(event.ID)
	require.NoError(t, err)
	require.Equal(t, event.ID, att.EventID)
	require.EqualValues(t, 3, att.TotalScans)
	require.EqualValues(t, 2, att.UniquePatrons)
	require.EqualValues(t, 2, att.ServiceCounts[svc.ID])

	visits, err := db.PatronVisitCount(ray.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, visits)
}
