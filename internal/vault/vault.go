// Package vault implements the Credential Vault (spec.md §4.1): an
// encrypted key/value store of named credentials with expiry-aware status,
// backed by a SQLite file under data_root/settings/credentials.db.
package vault

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nerdfunk-net/cockpit/internal/errs"
)

// Type enumerates the recognized credential kinds (spec.md §3).
type Type string

const (
	TypeSSH     Type = "ssh"
	TypeTACACS  Type = "tacacs"
	TypeGeneric Type = "generic"
	TypeToken   Type = "token"
)

func validType(t Type) bool {
	switch t {
	case TypeSSH, TypeTACACS, TypeGeneric, TypeToken:
		return true
	default:
		return false
	}
}

// Status is the derived lifecycle state of a credential, computed on read
// from valid_until.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpiring Status = "expiring"
	StatusExpired  Status = "expired"
)

// expiringWindow is the original's boundary: valid_until - today <= 7 days.
const expiringWindow = 7 * 24 * time.Hour

// Credential is the metadata row returned by List/Create/Update. It never
// carries the plaintext or ciphertext password.
type Credential struct {
	ID         int64
	Name       string
	Username   string
	Type       Type
	ValidUntil *time.Time
	IsActive   bool
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func deriveStatus(now time.Time, validUntil *time.Time) Status {
	if validUntil == nil {
		return StatusActive
	}
	if validUntil.Before(now) {
		return StatusExpired
	}
	if validUntil.Sub(now) <= expiringWindow {
		return StatusExpiring
	}
	return StatusActive
}

// Vault is the encrypted credential store. It is safe for concurrent use;
// writes are serialized by the underlying SQLite database (spec.md §5:
// "Credential Vault is read-mostly; writes are serialized by the underlying
// key/value store").
type Vault struct {
	db  *sql.DB
	key [32]byte
	now func() time.Time
}

// Open opens (creating if necessary) the SQLite file at path, deriving the
// encryption key from secret.
func Open(path, secret string) (*Vault, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "open credential store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindInternal, "migrate credential store", err)
	}
	return &Vault{db: db, key: deriveKey(secret), now: time.Now}, nil
}

func (v *Vault) Close() error { return v.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('ssh','tacacs','generic','token')),
	password_ciphertext BLOB NOT NULL,
	valid_until TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// List returns metadata for all credentials, including expired ones only
// when includeExpired is true.
func (v *Vault) List(includeExpired bool) ([]Credential, error) {
	rows, err := v.db.Query(`SELECT id, name, username, type, valid_until, is_active, created_at, updated_at FROM credentials ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "list credentials", err)
	}
	defer rows.Close()

	now := v.now()
	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows, now)
		if err != nil {
			return nil, err
		}
		if !includeExpired && c.Status == StatusExpired {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(r rowScanner, now time.Time) (Credential, error) {
	var (
		c          Credential
		validUntil sql.NullString
		isActive   int
		created    string
		updated    string
		typ        string
	)
	if err := r.Scan(&c.ID, &c.Name, &c.Username, &typ, &validUntil, &isActive, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return Credential{}, err
		}
		return Credential{}, errs.Wrap(errs.KindInternal, "scan credential row", err)
	}
	c.Type = Type(typ)
	c.IsActive = isActive != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	if validUntil.Valid && validUntil.String != "" {
		t, err := time.Parse(time.RFC3339, validUntil.String)
		if err == nil {
			c.ValidUntil = &t
		}
	}
	c.Status = deriveStatus(now, c.ValidUntil)
	return c, nil
}

// Create encrypts plaintextPassword and inserts a new credential.
func (v *Vault) Create(name, username string, typ Type, plaintextPassword string, validUntil *time.Time) (Credential, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Credential{}, errs.New(errs.KindValidation, "name is required")
	}
	if plaintextPassword == "" {
		return Credential{}, errs.New(errs.KindValidation, "password is required")
	}
	if !validType(typ) {
		return Credential{}, errs.New(errs.KindValidation, fmt.Sprintf("unknown credential type %q", typ))
	}

	ciphertext, err := encrypt(v.key, []byte(plaintextPassword))
	if err != nil {
		return Credential{}, err
	}

	now := v.now()
	var validStr any
	if validUntil != nil {
		validStr = validUntil.Format(time.RFC3339)
	}

	res, err := v.db.Exec(
		`INSERT INTO credentials (name, username, type, password_ciphertext, valid_until, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		name, username, string(typ), ciphertext, validStr, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Credential{}, errs.Wrap(errs.KindInternal, "insert credential", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Credential{}, errs.Wrap(errs.KindInternal, "read inserted id", err)
	}

	return Credential{
		ID: id, Name: name, Username: username, Type: typ,
		ValidUntil: validUntil, IsActive: true,
		Status:    deriveStatus(now, validUntil),
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Update applies a partial update. The password is re-encrypted only if
// newPassword is non-nil.
type Update struct {
	Username      *string
	Type          *Type
	NewPassword   *string
	ValidUntil    **time.Time // nil: leave unchanged; points-to-nil: clear
	IsActive      *bool
}

func (v *Vault) Update(id int64, u Update) (Credential, error) {
	if u.Type != nil && !validType(*u.Type) {
		return Credential{}, errs.New(errs.KindValidation, fmt.Sprintf("unknown credential type %q", *u.Type))
	}

	row := v.db.QueryRow(`SELECT id, name, username, type, valid_until, is_active, created_at, updated_at FROM credentials WHERE id = ?`, id)
	existing, err := scanCredential(row, v.now())
	if err != nil {
		if err == sql.ErrNoRows {
			return Credential{}, errs.New(errs.KindNotFound, fmt.Sprintf("credential %d not found", id))
		}
		return Credential{}, err
	}

	username := existing.Username
	if u.Username != nil {
		username = *u.Username
	}
	typ := existing.Type
	if u.Type != nil {
		typ = *u.Type
	}
	isActive := existing.IsActive
	if u.IsActive != nil {
		isActive = *u.IsActive
	}
	validUntil := existing.ValidUntil
	if u.ValidUntil != nil {
		validUntil = *u.ValidUntil
	}

	now := v.now()
	var validStr any
	if validUntil != nil {
		validStr = validUntil.Format(time.RFC3339)
	}

	if u.NewPassword != nil {
		ciphertext, err := encrypt(v.key, []byte(*u.NewPassword))
		if err != nil {
			return Credential{}, err
		}
		_, err = v.db.Exec(
			`UPDATE credentials SET username=?, type=?, password_ciphertext=?, valid_until=?, is_active=?, updated_at=? WHERE id=?`,
			username, string(typ), ciphertext, validStr, boolToInt(isActive), now.Format(time.RFC3339), id,
		)
		if err != nil {
			return Credential{}, errs.Wrap(errs.KindInternal, "update credential", err)
		}
	} else {
		_, err = v.db.Exec(
			`UPDATE credentials SET username=?, type=?, valid_until=?, is_active=?, updated_at=? WHERE id=?`,
			username, string(typ), validStr, boolToInt(isActive), now.Format(time.RFC3339), id,
		)
		if err != nil {
			return Credential{}, errs.Wrap(errs.KindInternal, "update credential", err)
		}
	}

	return Credential{
		ID: id, Name: existing.Name, Username: username, Type: typ,
		ValidUntil: validUntil, IsActive: isActive,
		Status:    deriveStatus(now, validUntil),
		CreatedAt: existing.CreatedAt, UpdatedAt: now,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Delete removes a credential. Deleting an unknown id is a no-op (spec.md
// §4.1: "idempotent").
func (v *Vault) Delete(id int64) error {
	_, err := v.db.Exec(`DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "delete credential", err)
	}
	return nil
}

// Decrypt returns the plaintext password for id. It is the only operation
// that ever exposes a password, and is intended for use by the Scan
// Subsystem and Git Orchestrator only.
func (v *Vault) Decrypt(id int64) (string, error) {
	var ciphertext []byte
	err := v.db.QueryRow(`SELECT password_ciphertext FROM credentials WHERE id = ?`, id).Scan(&ciphertext)
	if err == sql.ErrNoRows {
		return "", errs.New(errs.KindNotFound, fmt.Sprintf("credential %d not found", id))
	}
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "read credential ciphertext", err)
	}
	plaintext, err := decrypt(v.key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Get returns a single credential's metadata by id.
func (v *Vault) Get(id int64) (Credential, error) {
	row := v.db.QueryRow(`SELECT id, name, username, type, valid_until, is_active, created_at, updated_at FROM credentials WHERE id = ?`, id)
	c, err := scanCredential(row, v.now())
	if err == sql.ErrNoRows {
		return Credential{}, errs.New(errs.KindNotFound, fmt.Sprintf("credential %d not found", id))
	}
	return c, err
}

// GetByName returns a single credential's metadata by name, used by the
// Git Orchestrator's "credential_name wins" resolution (spec.md §4.3).
func (v *Vault) GetByName(name string) (Credential, error) {
	row := v.db.QueryRow(`SELECT id, name, username, type, valid_until, is_active, created_at, updated_at FROM credentials WHERE name = ?`, name)
	c, err := scanCredential(row, v.now())
	if err == sql.ErrNoRows {
		return Credential{}, errs.New(errs.KindNotFound, fmt.Sprintf("credential %q not found", name))
	}
	return c, err
}
