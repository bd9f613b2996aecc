package main

import (
	"database/sql"
	"strings"
	"sync"
	"time"
)

// DB interface for database operations
type DB interface {
	Init() error
	// Account operations
	CreateAccount(a *Account) (*Account, error)
	GetAccountByID(id string) (*Account, error)
	GetAccountByName(name string) (*Account, error)
	ListAccounts() ([]*Account, error)
	UpdateAccount(a *Account) error
	DeleteAccount(id string) error
	CountAccounts() (int64, error)
	// Refresh token operations
	CreateRefreshToken(t RefreshToken) error
	GetRefreshToken(tokenID string) (*RefreshToken, error)
	GetRefreshTokenForAccount(accountID string) (*RefreshToken, error)
	UpdateRefreshToken(t RefreshToken) error
	DeleteRefreshToken(tokenID string) error
	DeleteRefreshTokensForAccount(accountID string) error
	DeleteExpiredRefreshTokens(now time.Time) (int64, error)
	// Patron operations
	CreatePatron(p *Patron) (*Patron, error)
	GetPatron(id int64) (*Patron, error)
	GetPatronByCard(card string) (*Patron, error)
	ListPatrons() ([]*Patron, error)
	UpdatePatron(p *Patron) error
	DeletePatron(id int64) error
	// Event operations
	CreateEvent(e *Event) (*Event, error)
	GetEvent(id int64) (*Event, error)
	ListEvents() ([]*Event, error)
	UpdateEvent(e *Event) error
	DeleteEvent(id int64) error
	// Service operations
	CreateService(s *Service) (*Service, error)
	GetService(id int64) (*Service, error)
	ListServices() ([]*Service, error)
	UpdateService(s *Service) error
	DeleteService(id int64) error
	// Scan operations
	CreateScan(s *Scan) (*Scan, error)
	ListScansByEvent(eventID int64) ([]*Scan, error)
	ListScansByPatron(patronID int64) ([]*Scan, error)
	// Report queries
	EventAttendance(eventID int64) (*EventAttendance, error)
	PatronVisitCount(patronID int64) (int64, error)
}

// Memory DB
type MemDB struct {
	mu       sync.Mutex
	accounts map[string]*Account
	tokens   map[string]*RefreshToken // keyed by token id
	patrons  map[int64]*Patron
	events   map[int64]*Event
	services map[int64]*Service
	scans    []*Scan
	seq      int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		accounts: map[string]*Account{},
		tokens:   map[string]*RefreshToken{},
		patrons:  map[int64]*Patron{},
		events:   map[int64]*Event{},
		services: map[int64]*Service{},
		seq:      1,
	}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) nextID() int64 {
	id := m.seq
	m.seq++
	return id
}

func (m *MemDB) CreateAccount(a *Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Name == a.Name {
			return nil, ErrConflict
		}
	}
	if _, ok := m.accounts[a.ID]; ok {
		return nil, ErrConflict
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return a, nil
}

func (m *MemDB) GetAccountByID(id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetAccountByName(name string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) ListAccounts() ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemDB) UpdateAccount(a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.accounts {
		if existing.ID != a.ID && existing.Name == a.Name {
			return ErrConflict
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *MemDB) DeleteAccount(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *MemDB) CountAccounts() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.accounts)), nil
}

func (m *MemDB) CreateRefreshToken(t RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.TokenID]; ok {
		return ErrConflict
	}
	for _, existing := range m.tokens {
		if existing.AccountID == t.AccountID {
			return ErrConflict
		}
	}
	m.tokens[t.TokenID] = &t
	return nil
}

func (m *MemDB) GetRefreshToken(tokenID string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[tokenID]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetRefreshTokenForAccount(accountID string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.AccountID == accountID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) UpdateRefreshToken(t RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.tokens {
		if existing.AccountID == t.AccountID {
			delete(m.tokens, id)
			m.tokens[t.TokenID] = &t
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemDB) DeleteRefreshToken(tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenID)
	return nil
}

func (m *MemDB) DeleteRefreshTokensForAccount(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.AccountID == accountID {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *MemDB) DeleteExpiredRefreshTokens(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.Expired(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *MemDB) CreatePatron(p *Patron) (*Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.patrons {
		if p.CardNumber != "" && existing.CardNumber == p.CardNumber {
			return nil, ErrConflict
		}
	}
	p.ID = m.nextID()
	cp := *p
	m.patrons[p.ID] = &cp
	return p, nil
}

func (m *MemDB) GetPatron(id int64) (*Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.patrons[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetPatronByCard(card string) (*Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patrons {
		if p.CardNumber == card {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) ListPatrons() ([]*Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Patron, 0, len(m.patrons))
	for _, p := range m.patrons {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemDB) UpdatePatron(p *Patron) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patrons[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.patrons[p.ID] = &cp
	return nil
}

func (m *MemDB) DeletePatron(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.patrons, id)
	return nil
}

func (m *MemDB) CreateEvent(e *Event) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID()
	cp := *e
	m.events[e.ID] = &cp
	return e, nil
}

func (m *MemDB) GetEvent(id int64) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ListEvents() ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, 0, len(m.events))
	for _, e := range m.events {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemDB) UpdateEvent(e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return ErrNotFound
	}
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *MemDB) DeleteEvent(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

func (m *MemDB) CreateService(s *Service) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID()
	cp := *s
	m.services[s.ID] = &cp
	return s, nil
}

func (m *MemDB) GetService(id int64) (*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.services[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) ListServices() ([]*Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Service, 0, len(m.services))
	for _, s := range m.services {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemDB) UpdateService(s *Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.services[s.ID] = &cp
	return nil
}

func (m *MemDB) DeleteService(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, id)
	return nil
}

func (m *MemDB) CreateScan(s *Scan) (*Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID()
	cp := *s
	m.scans = append(m.scans, &cp)
	return s, nil
}

func (m *MemDB) ListScansByEvent(eventID int64) ([]*Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Scan
	for _, s := range m.scans {
		if s.EventID == eventID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemDB) ListScansByPatron(patronID int64) ([]*Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Scan
	for _, s := range m.scans {
		if s.PatronID == patronID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemDB) EventAttendance(eventID int64) (*EventAttendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att := &EventAttendance{EventID: eventID, ServiceCounts: map[int64]int64{}}
	seen := map[int64]bool{}
	for _, s := range m.scans {
		if s.EventID != eventID {
			continue
		}
		att.TotalScans++
		if !seen[s.PatronID] {
			seen[s.PatronID] = true
			att.UniquePatrons++
		}
		if s.ServiceID != nil {
			att.ServiceCounts[*s.ServiceID]++
		}
	}
	return att, nil
}

func (m *MemDB) PatronVisitCount(patronID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.scans {
		if s.PatronID == patronID {
			n++
		}
	}
	return n, nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			password_reset_required INTEGER NOT NULL DEFAULT 0,
			created_by TEXT, created_at INTEGER,
			updated_by TEXT, updated_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			tokenid TEXT PRIMARY KEY,
			accountid TEXT UNIQUE NOT NULL,
			issued INTEGER NOT NULL,
			expires INTEGER NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS patrons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			card_number TEXT UNIQUE,
			first_name TEXT, last_name TEXT, email TEXT,
			veteran INTEGER NOT NULL DEFAULT 0,
			branch TEXT,
			created_at INTEGER, updated_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL, description TEXT, address TEXT,
			starts_at INTEGER, ends_at INTEGER, created_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL, description TEXT, created_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			patron_id INTEGER NOT NULL,
			event_id INTEGER NOT NULL,
			service_id INTEGER,
			recorded_by TEXT,
			scanned_at INTEGER NOT NULL);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// sqliteConflict maps unique-constraint failures onto ErrConflict.
func sqliteConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrConflict
	}
	return err
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeFromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func (s *SQLiteDB) CreateAccount(a *Account) (*Account, error) {
	_, err := s.db.Exec(`INSERT INTO accounts(id,name,password_hash,role,password_reset_required,created_by,created_at,updated_by,updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.PasswordHash, string(a.Role), boolToInt(a.PasswordResetRequired),
		a.CreatedBy, unixOrZero(a.CreatedAt), a.UpdatedBy, unixOrZero(a.UpdatedAt))
	if err != nil {
		return nil, sqliteConflict(err)
	}
	return a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteDB) scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var role string
	var reset int
	var created, updated int64
	if err := row.Scan(&a.ID, &a.Name, &a.PasswordHash, &role, &reset, &a.CreatedBy, &created, &a.UpdatedBy, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.Role = Role(role)
	a.PasswordResetRequired = reset != 0
	a.CreatedAt = timeFromUnix(created)
	a.UpdatedAt = timeFromUnix(updated)
	return &a, nil
}

const sqliteAccountCols = `id,name,password_hash,role,password_reset_required,created_by,created_at,updated_by,updated_at`

func (s *SQLiteDB) GetAccountByID(id string) (*Account, error) {
	return s.scanAccount(s.db.QueryRow(`SELECT `+sqliteAccountCols+` FROM accounts WHERE id = ?`, id))
}

func (s *SQLiteDB) GetAccountByName(name string) (*Account, error) {
	return s.scanAccount(s.db.QueryRow(`SELECT `+sqliteAccountCols+` FROM accounts WHERE name = ?`, name))
}

func (s *SQLiteDB) ListAccounts() ([]*Account, error) {
	rows, err := s.db.Query(`SELECT ` + sqliteAccountCols + ` FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Account
	for rows.Next() {
		var a Account
		var role string
		var reset int
		var created, updated int64
		if err := rows.Scan(&a.ID, &a.Name, &a.PasswordHash, &role, &reset, &a.CreatedBy, &created, &a.UpdatedBy, &updated); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		a.PasswordResetRequired = reset != 0
		a.CreatedAt = timeFromUnix(created)
		a.UpdatedAt = timeFromUnix(updated)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateAccount(a *Account) error {
	res, err := s.db.Exec(`UPDATE accounts SET name=?,password_hash=?,role=?,password_reset_required=?,updated_by=?,updated_at=? WHERE id=?`,
		a.Name, a.PasswordHash, string(a.Role), boolToInt(a.PasswordResetRequired), a.UpdatedBy, unixOrZero(a.UpdatedAt), a.ID)
	if err != nil {
		return sqliteConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) DeleteAccount(id string) error {
	_, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) CountAccounts() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

func (s *SQLiteDB) CreateRefreshToken(t RefreshToken) error {
	_, err := s.db.Exec(`INSERT INTO refresh_tokens(tokenid,accountid,issued,expires) VALUES(?,?,?,?)`,
		t.TokenID, t.AccountID, t.Issued.Unix(), t.Expires.Unix())
	return sqliteConflict(err)
}

func (s *SQLiteDB) scanRefreshToken(row *sql.Row) (*RefreshToken, error) {
	var t RefreshToken
	var issued, expires int64
	if err := row.Scan(&t.TokenID, &t.AccountID, &issued, &expires); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.Issued = timeFromUnix(issued)
	t.Expires = timeFromUnix(expires)
	return &t, nil
}

func (s *SQLiteDB) GetRefreshToken(tokenID string) (*RefreshToken, error) {
	return s.scanRefreshToken(s.db.QueryRow(`SELECT tokenid,accountid,issued,expires FROM refresh_tokens WHERE tokenid = ?`, tokenID))
}

func (s *SQLiteDB) GetRefreshTokenForAccount(accountID string) (*RefreshToken, error) {
	return s.scanRefreshToken(s.db.QueryRow(`SELECT tokenid,accountid,issued,expires FROM refresh_tokens WHERE accountid = ?`, accountID))
}

func (s *SQLiteDB) UpdateRefreshToken(t RefreshToken) error {
	res, err := s.db.Exec(`UPDATE refresh_tokens SET tokenid=?,issued=?,expires=? WHERE accountid=?`,
		t.TokenID, t.Issued.Unix(), t.Expires.Unix(), t.AccountID)
	if err != nil {
		return sqliteConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) DeleteRefreshToken(tokenID string) error {
	_, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE tokenid = ?`, tokenID)
	return err
}

func (s *SQLiteDB) DeleteRefreshTokensForAccount(accountID string) error {
	_, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE accountid = ?`, accountID)
	return err
}

func (s *SQLiteDB) DeleteExpiredRefreshTokens(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE expires < ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteDB) CreatePatron(p *Patron) (*Patron, error) {
	res, err := s.db.Exec(`INSERT INTO patrons(card_number,first_name,last_name,email,veteran,branch,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		nullIfEmpty(p.CardNumber), p.FirstName, p.LastName, p.Email, boolToInt(p.Veteran), p.Branch, unixOrZero(p.CreatedAt), unixOrZero(p.UpdatedAt))
	if err != nil {
		return nil, sqliteConflict(err)
	}
	p.ID, _ = res.LastInsertId()
	return p, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *SQLiteDB) scanPatron(row *sql.Row) (*Patron, error) {
	var p Patron
	var card sql.NullString
	var veteran int
	var created, updated int64
	if err := row.Scan(&p.ID, &card, &p.FirstName, &p.LastName, &p.Email, &veteran, &p.Branch, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.CardNumber = card.String
	p.Veteran = veteran != 0
	p.CreatedAt = timeFromUnix(created)
	p.UpdatedAt = timeFromUnix(updated)
	return &p, nil
}

const sqlitePatronCols = `id,card_number,first_name,last_name,email,veteran,branch,created_at,updated_at`

func (s *SQLiteDB) GetPatron(id int64) (*Patron, error) {
	return s.scanPatron(s.db.QueryRow(`SELECT `+sqlitePatronCols+` FROM patrons WHERE id = ?`, id))
}

func (s *SQLiteDB) GetPatronByCard(card string) (*Patron, error) {
	return s.scanPatron(s.db.QueryRow(`SELECT `+sqlitePatronCols+` FROM patrons WHERE card_number = ?`, card))
}

func (s *SQLiteDB) ListPatrons() ([]*Patron, error) {
	rows, err := s.db.Query(`SELECT ` + sqlitePatronCols + ` FROM patrons ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Patron
	for rows.Next() {
		var p Patron
		var card sql.NullString
		var veteran int
		var created, updated int64
		if err := rows.Scan(&p.ID, &card, &p.FirstName, &p.LastName, &p.Email, &veteran, &p.Branch, &created, &updated); err != nil {
			return nil, err
		}
		p.CardNumber = card.String
		p.Veteran = veteran != 0
		p.CreatedAt = timeFromUnix(created)
		p.UpdatedAt = timeFromUnix(updated)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdatePatron(p *Patron) error {
	res, err := s.db.Exec(`UPDATE patrons SET card_number=?,first_name=?,last_name=?,email=?,veteran=?,branch=?,updated_at=? WHERE id=?`,
		nullIfEmpty(p.CardNumber), p.FirstName, p.LastName, p.Email, boolToInt(p.Veteran), p.Branch, unixOrZero(p.UpdatedAt), p.ID)
	if err != nil {
		return sqliteConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) DeletePatron(id int64) error {
	_, err := s.db.Exec(`DELETE FROM patrons WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) CreateEvent(e *Event) (*Event, error) {
	res, err := s.db.Exec(`INSERT INTO events(name,description,address,starts_at,ends_at,created_at) VALUES(?,?,?,?,?,?)`,
		e.Name, e.Description, e.Address, unixOrZero(e.StartsAt), unixOrZero(e.EndsAt), unixOrZero(e.CreatedAt))
	if err != nil {
		return nil, err
	}
	e.ID, _ = res.LastInsertId()
	return e, nil
}

func (s *SQLiteDB) GetEvent(id int64) (*Event, error) {
	row := s.db.QueryRow(`SELECT id,name,description,address,starts_at,ends_at,created_at FROM events WHERE id = ?`, id)
	var e Event
	var starts, ends, created int64
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Address, &starts, &ends, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.StartsAt = timeFromUnix(starts)
	e.EndsAt = timeFromUnix(ends)
	e.CreatedAt = timeFromUnix(created)
	return &e, nil
}

func (s *SQLiteDB) ListEvents() ([]*Event, error) {
	rows, err := s.db.Query(`SELECT id,name,description,address,starts_at,ends_at,created_at FROM events ORDER BY starts_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		var e Event
		var starts, ends, created int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Address, &starts, &ends, &created); err != nil {
			return nil, err
		}
		e.StartsAt = timeFromUnix(starts)
		e.EndsAt = timeFromUnix(ends)
		e.CreatedAt = timeFromUnix(created)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateEvent(e *Event) error {
	res, err := s.db.Exec(`UPDATE events SET name=?,description=?,address=?,starts_at=?,ends_at=? WHERE id=?`,
		e.Name, e.Description, e.Address, unixOrZero(e.StartsAt), unixOrZero(e.EndsAt), e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) DeleteEvent(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) CreateService(sv *Service) (*Service, error) {
	res, err := s.db.Exec(`INSERT INTO services(name,description,created_at) VALUES(?,?,?)`,
		sv.Name, sv.Description, unixOrZero(sv.CreatedAt))
	if err != nil {
		return nil, err
	}
	sv.ID, _ = res.LastInsertId()
	return sv, nil
}

func (s *SQLiteDB) GetService(id int64) (*Service, error) {
	row := s.db.QueryRow(`SELECT id,name,description,created_at FROM services WHERE id = ?`, id)
	var sv Service
	var created int64
	if err := row.Scan(&sv.ID, &sv.Name, &sv.Description, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	sv.CreatedAt = timeFromUnix(created)
	return &sv, nil
}

func (s *SQLiteDB) ListServices() ([]*Service, error) {
	rows, err := s.db.Query(`SELECT id,name,description,created_at FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Service
	for rows.Next() {
		var sv Service
		var created int64
		if err := rows.Scan(&sv.ID, &sv.Name, &sv.Description, &created); err != nil {
			return nil, err
		}
		sv.CreatedAt = timeFromUnix(created)
		out = append(out, &sv)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) UpdateService(sv *Service) error {
	res, err := s.db.Exec(`UPDATE services SET name=?,description=? WHERE id=?`, sv.Name, sv.Description, sv.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) DeleteService(id int64) error {
	_, err := s.db.Exec(`DELETE FROM services WHERE id = ?`, id)
	return err
}

func (s *SQLiteDB) CreateScan(sc *Scan) (*Scan, error) {
	res, err := s.db.Exec(`INSERT INTO scans(patron_id,event_id,service_id,recorded_by,scanned_at) VALUES(?,?,?,?,?)`,
		sc.PatronID, sc.EventID, sc.ServiceID, sc.RecordedBy, sc.ScannedAt.Unix())
	if err != nil {
		return nil, err
	}
	sc.ID, _ = res.LastInsertId()
	return sc, nil
}

func (s *SQLiteDB) listScans(query string, arg int64) ([]*Scan, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Scan
	for rows.Next() {
		var sc Scan
		var serviceID sql.NullInt64
		var scanned int64
		if err := rows.Scan(&sc.ID, &sc.PatronID, &sc.EventID, &serviceID, &sc.RecordedBy, &scanned); err != nil {
			return nil, err
		}
		if serviceID.Valid {
			sc.ServiceID = &serviceID.Int64
		}
		sc.ScannedAt = timeFromUnix(scanned)
		out = append(out, &sc)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) ListScansByEvent(eventID int64) ([]*Scan, error) {
	return s.listScans(`SELECT id,patron_id,event_id,service_id,recorded_by,scanned_at FROM scans WHERE event_id = ? ORDER BY scanned_at`, eventID)
}

func (s *SQLiteDB) ListScansByPatron(patronID int64) ([]*Scan, error) {
	return s.listScans(`SELECT id,patron_id,event_id,service_id,recorded_by,scanned_at FROM scans WHERE patron_id = ? ORDER BY scanned_at`, patronID)
}

func (s *SQLiteDB) EventAttendance(eventID int64) (*EventAttendance, error) {
	att := &EventAttendance{EventID: eventID, ServiceCounts: map[int64]int64{}}
	err := s.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT patron_id) FROM scans WHERE event_id = ?`, eventID).
		Scan(&att.TotalScans, &att.UniquePatrons)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT service_id, COUNT(*) FROM scans WHERE event_id = ? AND service_id IS NOT NULL GROUP BY service_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var serviceID, n int64
		if err := rows.Scan(&serviceID, &n); err != nil {
			return nil, err
		}
		att.ServiceCounts[serviceID] = n
	}
	return att, rows.Err()
}

func (s *SQLiteDB) PatronVisitCount(patronID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM scans WHERE patron_id = ?`, patronID).Scan(&n)
	return n, err
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
