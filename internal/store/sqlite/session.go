// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// SessionStore implements store.SessionStore backed by SQLite.
type SessionStore struct {
	db *sql.DB
}

const sessionColumns = `id, owner_id, system_prompt, status, created_at, ended_at, updated_at`

func (s *SessionStore) CreateSession(ctx context.Context, session *store.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		session.OwnerID,
		session.SystemPrompt,
		string(session.Status),
		formatTime(session.CreatedAt),
		formatTime(session.EndedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "creating session %s", session.ID)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	sess, err := scanSession(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrenerr.New(wrenerr.CodeStoreSessionGetNotFound, "session not found", wrenerr.FieldSessionID(id))
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "getting session %s", id)
	}
	return sess, nil
}

func (s *SessionStore) ListSessions(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_id = ?
ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, ownerID, limitOrAll(opts), opts.Offset)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "listing sessions for owner %s", ownerID)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*store.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) EndSession(ctx context.Context, id string, endedAt time.Time) (*store.Session, bool, error) {
	const q = `UPDATE sessions SET status = ?, ended_at = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := s.db.ExecContext(ctx, q,
		string(store.SessionStatusEnded),
		formatTime(endedAt),
		formatTime(endedAt),
		id,
		string(store.SessionStatusActive),
	)
	if err != nil {
		return nil, false, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "ending session %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking rows affected for session %s: %w", id, err)
	}

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, rows == 1, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting session %s", id)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected for session %s: %w", id, err)
		}
		if rows == 0 {
			return wrenerr.New(wrenerr.CodeStoreSessionGetNotFound, "session not found", wrenerr.FieldSessionID(id))
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE attachment_kind = ? AND attachment_id = ?`,
			string(store.AttachmentSession), id); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting messages of session %s", id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM end_records WHERE session_id = ?`, id); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting end record of session %s", id)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*store.Session, error) {
	var sess store.Session
	var createdAt, endedAt, updatedAt string
	if err := row.Scan(
		&sess.ID,
		&sess.OwnerID,
		&sess.SystemPrompt,
		&sess.Status,
		&createdAt,
		&endedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.EndedAt = parseTime(endedAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// withTx runs fn in a transaction, committing on success.
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
