package main

import "time"

// Role governs which operations an account may perform.
type Role string

const (
	RoleUser          Role = "User"
	RoleSupervisor    Role = "Supervisor"
	RoleAdministrator Role = "Administrator"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSupervisor, RoleAdministrator:
		return true
	}
	return false
}

// In reports whether r is a member of roles.
func (r Role) In(roles ...Role) bool {
	for _, allowed := range roles {
		if r == allowed {
			return true
		}
	}
	return false
}

// Account is a staff identity record.
type Account struct {
	ID                    string
	Name                  string
	PasswordHash          string
	Role                  Role
	PasswordResetRequired bool
	CreatedBy             string
	CreatedAt             time.Time
	UpdatedBy             string
	UpdatedAt             time.Time
}

// RefreshToken is the durable record of one outstanding refresh credential.
// At most one row exists per account.
type RefreshToken struct {
	TokenID   string
	AccountID string
	Issued    time.Time
	Expires   time.Time
}

// EquivalentTo treats two records as equal when the ids match exactly and the
// timestamps differ by no more than one second, which absorbs the precision
// lost in database round-trips.
func (t RefreshToken) EquivalentTo(other RefreshToken) bool {
	if t.TokenID != other.TokenID || t.AccountID != other.AccountID {
		return false
	}
	const tolerance = time.Second
	if d := t.Issued.Sub(other.Issued); d < -tolerance || d > tolerance {
		return false
	}
	if d := t.Expires.Sub(other.Expires); d < -tolerance || d > tolerance {
		return false
	}
	return true
}

// Expired reports whether the record is past its expiry at the given instant.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.Expires)
}

// Patron is a veteran or visitor being served by the center.
type Patron struct {
	ID         int64     `json:"id"`
	CardNumber string    `json:"cardNumber,omitempty"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email,omitempty"`
	Veteran    bool      `json:"veteran"`
	Branch     string    `json:"branch,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Event is a scheduled gathering patrons check in to.
type Event struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Address     string    `json:"address,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Service is an offering a patron can be scanned into at an event.
type Service struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Scan is one check-in: a patron at an event, optionally for a service.
type Scan struct {
	ID         int64     `json:"id"`
	PatronID   int64     `json:"patronId"`
	EventID    int64     `json:"eventId"`
	ServiceID  *int64    `json:"serviceId,omitempty"`
	RecordedBy string    `json:"recordedBy,omitempty"`
	ScannedAt  time.Time `json:"scannedAt"`
}

// EventAttendance is the aggregate report for a single event.
type EventAttendance struct {
	EventID       int64           `json:"eventId"`
	TotalScans    int64           `json:"totalScans"`
	UniquePatrons int64           `json:"uniquePatrons"`
	ServiceCounts map[int64]int64 `json:"serviceCounts"`
}
