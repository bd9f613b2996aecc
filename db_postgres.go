package main

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

// pgConflict maps unique-violation errors onto ErrConflict.
func pgConflict(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

const pgAccountCols = `id,name,password_hash,role,password_reset_required,created_by,created_at,updated_by,updated_at`

func (p *PostgresDB) CreateAccount(a *Account) (*Account, error) {
	_, err := p.db.Exec(`INSERT INTO accounts(id,name,password_hash,role,password_reset_required,created_by,created_at,updated_by,updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.Name, a.PasswordHash, string(a.Role), a.PasswordResetRequired,
		a.CreatedBy, a.CreatedAt, a.UpdatedBy, a.UpdatedAt)
	if err != nil {
		return nil, pgConflict(err)
	}
	return a, nil
}

func (p *PostgresDB) scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var role string
	if err := row.Scan(&a.ID, &a.Name, &a.PasswordHash, &role, &a.PasswordResetRequired, &a.CreatedBy, &a.CreatedAt, &a.UpdatedBy, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.Role = Role(role)
	return &a, nil
}

func (p *PostgresDB) GetAccountByID(id string) (*Account, error) {
	return p.scanAccount(p.db.QueryRow(`SELECT `+pgAccountCols+` FROM accounts WHERE id = $1`, id))
}

func (p *PostgresDB) GetAccountByName(name string) (*Account, error) {
	return p.scanAccount(p.db.QueryRow(`SELECT `+pgAccountCols+` FROM accounts WHERE name = $1`, name))
}

func (p *PostgresDB) ListAccounts() ([]*Account, error) {
	rows, err := p.db.Query(`SELECT ` + pgAccountCols + ` FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Account
	for rows.Next() {
		var a Account
		var role string
		if err := rows.Scan(&a.ID, &a.Name, &a.PasswordHash, &role, &a.PasswordResetRequired, &a.CreatedBy, &a.CreatedAt, &a.UpdatedBy, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Role = Role(role)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdateAccount(a *Account) error {
	res, err := p.db.Exec(`UPDATE accounts SET name=$1,password_hash=$2,role=$3,password_reset_required=$4,updated_by=$5,updated_at=$6 WHERE id=$7`,
		a.Name, a.PasswordHash, string(a.Role), a.PasswordResetRequired, a.UpdatedBy, a.UpdatedAt, a.ID)
	if err != nil {
		return pgConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) DeleteAccount(id string) error {
	_, err := p.db.Exec(`DELETE FROM accounts WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) CountAccounts() (int64, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

func (p *PostgresDB) CreateRefreshToken(t RefreshToken) error {
	_, err := p.db.Exec(`INSERT INTO refresh_tokens(tokenid,accountid,issued,expires) VALUES($1,$2,$3,$4)`,
		t.TokenID, t.AccountID, t.Issued, t.Expires)
	return pgConflict(err)
}

func (p *PostgresDB) scanRefreshToken(row *sql.Row) (*RefreshToken, error) {
	var t RefreshToken
	if err := row.Scan(&t.TokenID, &t.AccountID, &t.Issued, &t.Expires); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (p *PostgresDB) GetRefreshToken(tokenID string) (*RefreshToken, error) {
	return p.scanRefreshToken(p.db.QueryRow(`SELECT tokenid,accountid,issued,expires FROM refresh_tokens WHERE tokenid = $1`, tokenID))
}

func (p *PostgresDB) GetRefreshTokenForAccount(accountID string) (*RefreshToken, error) {
	return p.scanRefreshToken(p.db.QueryRow(`SELECT tokenid,accountid,issued,expires FROM refresh_tokens WHERE accountid = $1`, accountID))
}

func (p *PostgresDB) UpdateRefreshToken(t RefreshToken) error {
	res, err := p.db.Exec(`UPDATE refresh_tokens SET tokenid=$1,issued=$2,expires=$3 WHERE accountid=$4`,
		t.TokenID, t.Issued, t.Expires, t.AccountID)
	if err != nil {
		return pgConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) DeleteRefreshToken(tokenID string) error {
	_, err := p.db.Exec(`DELETE FROM refresh_tokens WHERE tokenid = $1`, tokenID)
	return err
}

func (p *PostgresDB) DeleteRefreshTokensForAccount(accountID string) error {
	_, err := p.db.Exec(`DELETE FROM refresh_tokens WHERE accountid = $1`, accountID)
	return err
}

func (p *PostgresDB) DeleteExpiredRefreshTokens(now time.Time) (int64, error) {
	res, err := p.db.Exec(`DELETE FROM refresh_tokens WHERE expires < $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const pgPatronCols = `id,card_number,first_name,last_name,email,veteran,branch,created_at,updated_at`

func (p *PostgresDB) CreatePatron(pt *Patron) (*Patron, error) {
	err := p.db.QueryRow(`INSERT INTO patrons(card_number,first_name,last_name,email,veteran,branch,created_at,updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		nullIfEmpty(pt.CardNumber), pt.FirstName, pt.LastName, pt.Email, pt.Veteran, pt.Branch, pt.CreatedAt, pt.UpdatedAt).Scan(&pt.ID)
	if err != nil {
		return nil, pgConflict(err)
	}
	return pt, nil
}

func (p *PostgresDB) scanPatron(row *sql.Row) (*Patron, error) {
	var pt Patron
	var card sql.NullString
	if err := row.Scan(&pt.ID, &card, &pt.FirstName, &pt.LastName, &pt.Email, &pt.Veteran, &pt.Branch, &pt.CreatedAt, &pt.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	pt.CardNumber = card.String
	return &pt, nil
}

func (p *PostgresDB) GetPatron(id int64) (*Patron, error) {
	return p.scanPatron(p.db.QueryRow(`SELECT `+pgPatronCols+` FROM patrons WHERE id = $1`, id))
}

func (p *PostgresDB) GetPatronByCard(card string) (*Patron, error) {
	return p.scanPatron(p.db.QueryRow(`SELECT `+pgPatronCols+` FROM patrons WHERE card_number = $1`, card))
}

func (p *PostgresDB) ListPatrons() ([]*Patron, error) {
	rows, err := p.db.Query(`SELECT ` + pgPatronCols + ` FROM patrons ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Patron
	for rows.Next() {
		var pt Patron
		var card sql.NullString
		if err := rows.Scan(&pt.ID, &card, &pt.FirstName, &pt.LastName, &pt.Email, &pt.Veteran, &pt.Branch, &pt.CreatedAt, &pt.UpdatedAt); err != nil {
			return nil, err
		}
		pt.CardNumber = card.String
		out = append(out, &pt)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdatePatron(pt *Patron) error {
	res, err := p.db.Exec(`UPDATE patrons SET card_number=$1,first_name=$2,last_name=$3,email=$4,veteran=$5,branch=$6,updated_at=$7 WHERE id=$8`,
		nullIfEmpty(pt.CardNumber), pt.FirstName, pt.LastName, pt.Email, pt.Veteran, pt.Branch, pt.UpdatedAt, pt.ID)
	if err != nil {
		return pgConflict(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) DeletePatron(id int64) error {
	_, err := p.db.Exec(`DELETE FROM patrons WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) CreateEvent(e *Event) (*Event, error) {
	err := p.db.QueryRow(`INSERT INTO events(name,description,address,starts_at,ends_at,created_at) VALUES($1,$2,$3,$4,$5,$6) RETURNING id`,
		e.Name, e.Description, e.Address, e.StartsAt, e.EndsAt, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (p *PostgresDB) GetEvent(id int64) (*Event, error) {
	row := p.db.QueryRow(`SELECT id,name,description,address,starts_at,ends_at,created_at FROM events WHERE id = $1`, id)
	var e Event
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Address, &e.StartsAt, &e.EndsAt, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (p *PostgresDB) ListEvents() ([]*Event, error) {
	rows, err := p.db.Query(`SELECT id,name,description,address,starts_at,ends_at,created_at FROM events ORDER BY starts_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Address, &e.StartsAt, &e.EndsAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdateEvent(e *Event) error {
	res, err := p.db.Exec(`UPDATE events SET name=$1,description=$2,address=$3,starts_at=$4,ends_at=$5 WHERE id=$6`,
		e.Name, e.Description, e.Address, e.StartsAt, e.EndsAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) DeleteEvent(id int64) error {
	_, err := p.db.Exec(`DELETE FROM events WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) CreateService(sv *Service) (*Service, error) {
	err := p.db.QueryRow(`INSERT INTO services(name,description,created_at) VALUES($1,$2,$3) RETURNING id`,
		sv.Name, sv.Description, sv.CreatedAt).Scan(&sv.ID)
	if err != nil {
		return nil, err
	}
	return sv, nil
}

func (p *PostgresDB) GetService(id int64) (*Service, error) {
	row := p.db.QueryRow(`SELECT id,name,description,created_at FROM services WHERE id = $1`, id)
	var sv Service
	if err := row.Scan(&sv.ID, &sv.Name, &sv.Description, &sv.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &sv, nil
}

func (p *PostgresDB) ListServices() ([]*Service, error) {
	rows, err := p.db.Query(`SELECT id,name,description,created_at FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Service
	for rows.Next() {
		var sv Service
		if err := rows.Scan(&sv.ID, &sv.Name, &sv.Description, &sv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &sv)
	}
	return out, rows.Err()
}

func (p *PostgresDB) UpdateService(sv *Service) error {
	res, err := p.db.Exec(`UPDATE services SET name=$1,description=$2 WHERE id=$3`, sv.Name, sv.Description, sv.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) DeleteService(id int64) error {
	_, err := p.db.Exec(`DELETE FROM services WHERE id = $1`, id)
	return err
}

func (p *PostgresDB) CreateScan(sc *Scan) (*Scan, error) {
	err := p.db.QueryRow(`INSERT INTO scans(patron_id,event_id,service_id,recorded_by,scanned_at) VALUES($1,$2,$3,$4,$5) RETURNING id`,
		sc.PatronID, sc.EventID, sc.ServiceID, sc.RecordedBy, sc.ScannedAt).Scan(&sc.ID)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (p *PostgresDB) listScans(query string, arg int64) ([]*Scan, error) {
	rows, err := p.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Scan
	for rows.Next() {
		var sc Scan
		var serviceID sql.NullInt64
		if err := rows.Scan(&sc.ID, &sc.PatronID, &sc.EventID, &serviceID, &sc.RecordedBy, &sc.ScannedAt); err != nil {
			return nil, err
		}
		if serviceID.Valid {
			sc.ServiceID = &serviceID.Int64
		}
		out = append(out, &sc)
	}
	return out, rows.Err()
}

func (p *PostgresDB) ListScansByEvent(eventID int64) ([]*Scan, error) {
	return p.listScans(`SELECT id,patron_id,event_id,service_id,recorded_by,scanned_at FROM scans WHERE event_id = $1 ORDER BY scanned_at`, eventID)
}

func (p *PostgresDB) ListScansByPatron(patronID int64) ([]*Scan, error) {
	return p.listScans(`SELECT id,patron_id,event_id,service_id,recorded_by,scanned_at FROM scans WHERE patron_id = $1 ORDER BY scanned_at`, patronID)
}

func (p *PostgresDB) EventAttendance(eventID int64) (*EventAttendance, error) {
	att := &EventAttendance{EventID: eventID, ServiceCounts: map[int64]int64{}}
	err := p.db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT patron_id) FROM scans WHERE event_id = $1`, eventID).
		Scan(&att.TotalScans, &att.UniquePatrons)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(`SELECT service_id, COUNT(*) FROM scans WHERE event_id = $1 AND service_id IS NOT NULL GROUP BY service_id`, eventID)
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

func (p *PostgresDB) PatronVisitCount(patronID int64) (int64, error) {
	var n int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM scans WHERE patron_id = $1`, patronID).Scan(&n)
	return n, err
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
