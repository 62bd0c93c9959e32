package gitrepo

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nerdfunk-net/cockpit/internal/errs"
)

// Record is the persisted GitRepository row (spec.md §3): Repository plus
// the API-layer metadata the orchestrator itself doesn't need (id, active
// flag, "selected for configuration comparison", last sync outcome).
type Record struct {
	ID         int64
	Repository Repository
	IsActive   bool
	Selected   bool
	SyncStatus string
	LastSync   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store is the SQLite-backed GitRepository metadata CRUD store, mirroring
// the Credential Vault's "repository struct holds a *sql.DB, relies on
// SQLite's own locking" shape (see DESIGN.md).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens (creating if necessary) the SQLite file at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "open git repository store", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindInternal, "migrate git repository store", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const storeSchema = `
CREATE TABLE IF NOT EXISTS git_repositories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL CHECK (category IN ('configs','templates','onboarding')),
	url TEXT NOT NULL,
	branch TEXT NOT NULL DEFAULT 'main',
	username TEXT NOT NULL DEFAULT '',
	token TEXT NOT NULL DEFAULT '',
	credential_name TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	verify_ssl INTEGER NOT NULL DEFAULT 1,
	ssl_cainfo TEXT NOT NULL DEFAULT '',
	ssl_cert TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	selected INTEGER NOT NULL DEFAULT 0,
	sync_status TEXT NOT NULL DEFAULT '',
	last_sync TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

func scanRecord(r rowScanner) (Record, error) {
	var (
		rec        Record
		category   string
		verifySSL  int
		isActive   int
		selected   int
		lastSync   sql.NullString
		created    string
		updated    string
	)
	err := r.Scan(
		&rec.ID, &rec.Repository.Name, &category, &rec.Repository.URL, &rec.Repository.Branch,
		&rec.Repository.Username, &rec.Repository.Token, &rec.Repository.CredentialName, &rec.Repository.Path,
		&verifySSL, &rec.Repository.SSLCAInfo, &rec.Repository.SSLCert,
		&isActive, &selected, &rec.SyncStatus, &lastSync, &created, &updated,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Repository.Category = Category(category)
	rec.Repository.VerifySSL = verifySSL != 0
	rec.IsActive = isActive != 0
	rec.Selected = selected != 0
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	if lastSync.Valid && lastSync.String != "" {
		t, err := time.Parse(time.RFC3339, lastSync.String)
		if err == nil {
			rec.LastSync = &t
		}
	}
	return rec, nil
}

const selectColumns = `id, name, category, url, branch, username, token, credential_name, path, verify_ssl, ssl_cainfo, ssl_cert, is_active, selected, sync_status, last_sync, created_at, updated_at`

// rowScanner lets scanRecord work against both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// List returns every stored repository record.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(`SELECT ` + selectColumns + ` FROM git_repositories ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "list git repositories", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "scan git repository row", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns a single record by id.
func (s *Store) Get(id int64) (Record, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM git_repositories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, errs.New(errs.KindNotFound, fmt.Sprintf("git repository %d not found", id))
	}
	if err != nil {
		return Record{}, errs.Wrap(errs.KindInternal, "get git repository", err)
	}
	return rec, nil
}

// Create inserts a new repository. name uniqueness (across all rows,
// active or not) is enforced by the table's UNIQUE constraint (spec.md §3:
// "name uniqueness across active rows").
func (s *Store) Create(repo Repository) (Record, error) {
	repo.Name = strings.TrimSpace(repo.Name)
	if repo.Name == "" {
		return Record{}, errs.New(errs.KindValidation, "name is required")
	}
	if repo.URL == "" {
		return Record{}, errs.New(errs.KindValidation, "url is required")
	}
	if !validCategory(repo.Category) {
		return Record{}, errs.New(errs.KindValidation, fmt.Sprintf("unknown repository category %q", repo.Category))
	}
	if repo.Branch == "" {
		repo.Branch = "main"
	}

	now := s.now()
	res, err := s.db.Exec(
		`INSERT INTO git_repositories (name, category, url, branch, username, token, credential_name, path, verify_ssl, ssl_cainfo, ssl_cert, is_active, selected, sync_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, '', ?, ?)`,
		repo.Name, string(repo.Category), repo.URL, repo.Branch, repo.Username, repo.Token, repo.CredentialName, repo.Path,
		boolToInt(repo.VerifySSL), repo.SSLCAInfo, repo.SSLCert, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return Record{}, errs.New(errs.KindValidation, fmt.Sprintf("repository name %q already exists", repo.Name))
		}
		return Record{}, errs.Wrap(errs.KindInternal, "insert git repository", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, errs.Wrap(errs.KindInternal, "read inserted id", err)
	}
	return s.Get(id)
}

func validCategory(c Category) bool {
	switch c {
	case CategoryConfigs, CategoryTemplates, CategoryOnboarding:
		return true
	default:
		return false
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Update applies a full replacement of repo's mutable fields plus
// is_active. id's category/name are preserved unless repo sets them.
func (s *Store) Update(id int64, repo Repository, isActive bool) (Record, error) {
	existing, err := s.Get(id)
	if err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(repo.Name) == "" {
		repo.Name = existing.Repository.Name
	}
	if repo.Category == "" {
		repo.Category = existing.Repository.Category
	}
	if !validCategory(repo.Category) {
		return Record{}, errs.New(errs.KindValidation, fmt.Sprintf("unknown repository category %q", repo.Category))
	}

	now := s.now()
	_, err = s.db.Exec(
		`UPDATE git_repositories SET name=?, category=?, url=?, branch=?, username=?, token=?, credential_name=?, path=?, verify_ssl=?, ssl_cainfo=?, ssl_cert=?, is_active=?, updated_at=? WHERE id=?`,
		repo.Name, string(repo.Category), repo.URL, repo.Branch, repo.Username, repo.Token, repo.CredentialName, repo.Path,
		boolToInt(repo.VerifySSL), repo.SSLCAInfo, repo.SSLCert, boolToInt(isActive), now.Format(time.RFC3339), id,
	)
	if err != nil {
		return Record{}, errs.Wrap(errs.KindInternal, "update git repository", err)
	}
	return s.Get(id)
}

// SetSyncStatus records the outcome of the most recent sync/clone.
func (s *Store) SetSyncStatus(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE git_repositories SET sync_status=?, last_sync=?, updated_at=? WHERE id=?`,
		status, s.now().Format(time.RFC3339), s.now().Format(time.RFC3339), id,
	)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "update sync status", err)
	}
	return nil
}

// Delete removes a repository record. Idempotent.
func (s *Store) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM git_repositories WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "delete git repository", err)
	}
	return nil
}

// Selected returns the single repository currently marked "selected for
// configuration comparison" (spec.md §3), if any.
func (s *Store) Selected() (Record, bool, error) {
	row := s.db.QueryRow(`SELECT ` + selectColumns + ` FROM git_repositories WHERE selected = 1 LIMIT 1`)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errs.Wrap(errs.KindInternal, "read selected repository", err)
	}
	return rec, true, nil
}

// SetSelected marks id as the single selected repository, clearing any
// previous selection. id must be active and of category "configs" (spec.md
// §3 invariant, §6 "must be active and of category configs").
func (s *Store) SetSelected(id int64) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}
	if !rec.IsActive {
		return errs.New(errs.KindStateConflict, "repository is not active")
	}
	if rec.Repository.Category != CategoryConfigs {
		return errs.New(errs.KindStateConflict, "only configs-category repositories may be selected")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.KindInternal, "begin selection transaction", err)
	}
	if _, err := tx.Exec(`UPDATE git_repositories SET selected = 0`); err != nil {
		tx.Rollback()
		return errs.Wrap(errs.KindInternal, "clear previous selection", err)
	}
	if _, err := tx.Exec(`UPDATE git_repositories SET selected = 1 WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return errs.Wrap(errs.KindInternal, "set selection", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindInternal, "commit selection", err)
	}
	return nil
}
