// Package templatestore persists the Template records (spec.md §3: "id,
// name, source, type, content, category, variables, tags, versions[]")
// used, for type "textfsm", by the Scan Subsystem's ssh-login hostname
// recovery, its only consumer. It mirrors the Credential
// Vault's SQLite-backed CRUD shape.
package templatestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nerdfunk-net/cockpit/internal/errs"
	"github.com/nerdfunk-net/cockpit/internal/template"
	"github.com/nerdfunk-net/cockpit/internal/textfsm"
)

// Version is one prior revision of a template's content, kept so an
// operator can diff or roll back (spec.md §3 "versions[]").
type Version struct {
	Content   string
	CreatedAt time.Time
}

// Record is a stored Template.
type Record struct {
	ID        int64
	Name      string
	Source    template.Source
	Kind      template.Kind
	Content   string
	Category  string
	Variables map[string]string
	Tags      []string
	Versions  []Version
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the SQLite-backed Template CRUD store.
type Store struct {
	db  *sql.DB
	now func() time.Time

	compiledMu sync.Mutex
	compiled   map[int64]compiledEntry
}

type compiledEntry struct {
	tpl       *textfsm.Template
	updatedAt time.Time
}

// Open opens (creating if necessary) the SQLite file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "open template store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindInternal, "migrate template store", err)
	}
	return &Store{db: db, now: time.Now, compiled: make(map[int64]compiledEntry)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS templates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	variables TEXT NOT NULL DEFAULT '{}',
	tags TEXT NOT NULL DEFAULT '[]',
	versions TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

const selectColumns = `id, name, source, kind, content, category, variables, tags, versions, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var (
		rec                            Record
		source, kind                   string
		variablesJSON, tagsJSON, vJSON string
		created, updated               string
	)
	err := row.Scan(&rec.ID, &rec.Name, &source, &kind, &rec.Content, &rec.Category,
		&variablesJSON, &tagsJSON, &vJSON, &created, &updated)
	if err != nil {
		return Record{}, err
	}
	rec.Source = template.Source(source)
	rec.Kind = template.Kind(kind)
	_ = json.Unmarshal([]byte(variablesJSON), &rec.Variables)
	_ = json.Unmarshal([]byte(tagsJSON), &rec.Tags)
	_ = json.Unmarshal([]byte(vJSON), &rec.Versions)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return rec, nil
}

// List returns every stored template.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(`SELECT ` + selectColumns + ` FROM templates ORDER BY id`)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "list templates", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "scan template row", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns one template by id.
func (s *Store) Get(id int64) (Record, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM templates WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, errs.New(errs.KindNotFound, fmt.Sprintf("template %d not found", id))
	}
	if err != nil {
		return Record{}, errs.Wrap(errs.KindInternal, "get template", err)
	}
	return rec, nil
}

// Create inserts a new template.
func (s *Store) Create(rec Record) (Record, error) {
	if rec.Name == "" {
		return Record{}, errs.New(errs.KindValidation, "name is required")
	}
	if rec.Kind == template.KindTextFSM {
		if _, err := textfsm.Parse(rec.Content); err != nil {
			return Record{}, errs.Wrap(errs.KindValidation, "invalid textfsm template", err)
		}
	}

	now := s.now()
	variablesJSON, _ := json.Marshal(rec.Variables)
	tagsJSON, _ := json.Marshal(rec.Tags)

	res, err := s.db.Exec(
		`INSERT INTO templates (name, source, kind, content, category, variables, tags, versions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)`,
		rec.Name, string(rec.Source), string(rec.Kind), rec.Content, rec.Category,
		string(variablesJSON), string(tagsJSON), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Record{}, errs.Wrap(errs.KindInternal, "insert template", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, errs.Wrap(errs.KindInternal, "read inserted id", err)
	}
	return s.Get(id)
}

// Update replaces content/category/variables/tags, archiving the prior
// content as a Version (spec.md §3 "versions[]").
func (s *Store) Update(id int64, content, category string, variables map[string]string, tags []string) (Record, error) {
	existing, err := s.Get(id)
	if err != nil {
		return Record{}, err
	}
	if existing.Kind == template.KindTextFSM && content != existing.Content {
		if _, err := textfsm.Parse(content); err != nil {
			return Record{}, errs.Wrap(errs.KindValidation, "invalid textfsm template", err)
		}
	}

	versions := append(existing.Versions, Version{Content: existing.Content, CreatedAt: existing.UpdatedAt})
	versionsJSON, _ := json.Marshal(versions)
	variablesJSON, _ := json.Marshal(variables)
	tagsJSON, _ := json.Marshal(tags)
	now := s.now()

	_, err = s.db.Exec(
		`UPDATE templates SET content=?, category=?, variables=?, tags=?, versions=?, updated_at=? WHERE id=?`,
		content, category, string(variablesJSON), string(tagsJSON), string(versionsJSON), now.Format(time.RFC3339), id,
	)
	if err != nil {
		return Record{}, errs.Wrap(errs.KindInternal, "update template", err)
	}

	s.compiledMu.Lock()
	delete(s.compiled, id)
	s.compiledMu.Unlock()

	return s.Get(id)
}

// Delete removes a template record. Idempotent.
func (s *Store) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "delete template", err)
	}
	s.compiledMu.Lock()
	delete(s.compiled, id)
	s.compiledMu.Unlock()
	return nil
}

// GetTextFSM resolves id to a compiled TextFSM template, satisfying
// internal/scan's TemplateSource interface. Compiled programs are cached
// by id+updated_at so a concurrent scan job's per-host workers never
// re-parse the same template body.
func (s *Store) GetTextFSM(id int64) (*textfsm.Template, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != template.KindTextFSM {
		return nil, errs.New(errs.KindValidation, fmt.Sprintf("template %d is not a textfsm template", id))
	}

	s.compiledMu.Lock()
	if entry, ok := s.compiled[id]; ok && entry.updatedAt.Equal(rec.UpdatedAt) {
		s.compiledMu.Unlock()
		return entry.tpl, nil
	}
	s.compiledMu.Unlock()

	tpl, err := textfsm.Parse(rec.Content)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "compile textfsm template", err)
	}

	s.compiledMu.Lock()
	s.compiled[id] = compiledEntry{tpl: tpl, updatedAt: rec.UpdatedAt}
	s.compiledMu.Unlock()

	return tpl, nil
}
