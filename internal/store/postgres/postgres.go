// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package postgres is the PostgreSQL store backend. Schema changes live in
// migrations/ and are applied with golang-migrate when the store opens.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var (
	_ store.Store          = (*Store)(nil)
	_ store.SessionStore   = (*SessionStore)(nil)
	_ store.JournalStore   = (*JournalStore)(nil)
	_ store.EndRecordStore = (*EndRecordStore)(nil)
)

func init() {
	store.RegisterBackend("postgres", func(cfg *store.StorageConfig) (store.Store, error) {
		return New(cfg.DSN)
	})
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db         *sql.DB
	sessions   *SessionStore
	journals   *JournalStore
	endRecords *EndRecordStore
}

// New migrates the database at dsn to the latest schema and opens a pool.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, wrenerr.New(wrenerr.CodeStoreInvalidInput, "postgres backend requires a DSN")
	}

	if err := Migrate(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, wrenerr.Wrap(err, wrenerr.CodeStoreDatabaseFailure, "opening postgres db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, wrenerr.Wrap(err, wrenerr.CodeStoreDatabaseFailure, "pinging postgres db")
	}

	return &Store{
		db:         db,
		sessions:   &SessionStore{db: db},
		journals:   &JournalStore{db: db},
		endRecords: &EndRecordStore{db: db},
	}, nil
}

// Migrate applies every pending up migration. Already being at the latest
// version is not an error.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return wrenerr.Wrap(err, wrenerr.CodeStoreMigrateFailure, "opening migration source")
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return wrenerr.Wrap(err, wrenerr.CodeStoreMigrateFailure, "creating migrator")
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return wrenerr.Wrap(err, wrenerr.CodeStoreMigrateFailure, "applying migrations")
	}
	return nil
}

func (s *Store) Sessions() store.SessionStore     { return s.sessions }
func (s *Store) Journals() store.JournalStore     { return s.journals }
func (s *Store) EndRecords() store.EndRecordStore { return s.endRecords }

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func limitOrAll(opts store.ListOpts) any {
	if opts.Limit <= 0 {
		return nil // LIMIT NULL means no limit
	}
	return opts.Limit
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func expectOneRow(result sql.Result, code wrenerr.Code, msg string, fields ...wrenerr.Attr) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return wrenerr.New(code, msg, fields...)
	}
	return nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return wrenerr.Wrap(err, wrenerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrenerr.Wrap(err, wrenerr.CodeStoreDatabaseFailure, "committing transaction")
	}
	return nil
}
