// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/wren/internal/store"
)

// Compile-time interface checks.
var (
	_ store.Store          = (*Store)(nil)
	_ store.SessionStore   = (*SessionStore)(nil)
	_ store.JournalStore   = (*JournalStore)(nil)
	_ store.EndRecordStore = (*EndRecordStore)(nil)
)

// Store is a SQLite-backed store.Store sharing one database handle between
// its sub-stores.
type Store struct {
	db         *sql.DB
	sessions   *SessionStore
	journals   *JournalStore
	endRecords *EndRecordStore
}

// New opens (or creates) a SQLite database at dbPath and initialises its
// tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time keeps appends and end transitions serialised
	// without relying on busy retries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}

	return &Store{
		db:         db,
		sessions:   &SessionStore{db: db},
		journals:   &JournalStore{db: db},
		endRecords: &EndRecordStore{db: db},
	}, nil
}

func (s *Store) Sessions() store.SessionStore     { return s.sessions }
func (s *Store) Journals() store.JournalStore     { return s.journals }
func (s *Store) EndRecords() store.EndRecordStore { return s.endRecords }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TEXT NOT NULL,
	ended_at      TEXT NOT NULL DEFAULT '',
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	owner_id        TEXT NOT NULL,
	attachment_kind TEXT NOT NULL DEFAULT '',
	attachment_id   TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	text            TEXT NOT NULL,
	audio_locator   TEXT NOT NULL DEFAULT '',
	audio_duration_ms INTEGER NOT NULL DEFAULT 0,
	audio_format    TEXT NOT NULL DEFAULT '',
	voice           TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_attachment ON messages(attachment_kind, attachment_id, created_at, seq);

CREATE TABLE IF NOT EXISTS journals (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	content           TEXT NOT NULL,
	tags              TEXT NOT NULL DEFAULT '[]',
	kind              TEXT NOT NULL DEFAULT 'entry',
	source_session_id TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journals_owner ON journals(owner_id, created_at);

CREATE TABLE IF NOT EXISTS end_records (
	id                     TEXT PRIMARY KEY,
	session_id             TEXT NOT NULL UNIQUE,
	owner_id               TEXT NOT NULL,
	summary                TEXT NOT NULL DEFAULT '',
	notes_journal_id       TEXT NOT NULL DEFAULT '',
	notes_content          TEXT NOT NULL DEFAULT '',
	summarization_degraded INTEGER NOT NULL DEFAULT 0,
	ended_at               TEXT NOT NULL,
	created_at             TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

// timeLayout is fixed-width UTC, so stored times order correctly as text.
// RFC3339Nano trims trailing zeros and would sort "12:00:00Z" after
// "12:00:00.5Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func limitOrAll(opts store.ListOpts) int {
	if opts.Limit <= 0 {
		return -1
	}
	return opts.Limit
}
