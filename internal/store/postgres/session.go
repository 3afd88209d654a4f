// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// SessionStore implements store.SessionStore backed by PostgreSQL.
type SessionStore struct {
	db *sql.DB
}

const sessionColumns = `id, owner_id, system_prompt, status, created_at, ended_at, updated_at`

func (s *SessionStore) CreateSession(ctx context.Context, session *store.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		session.OwnerID,
		session.SystemPrompt,
		string(session.Status),
		session.CreatedAt,
		nullTime(session.EndedAt),
		session.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return wrenerr.Errorf(wrenerr.CodeStoreConflict, "session %s already exists", session.ID)
	}
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "creating session %s", session.ID)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrenerr.New(wrenerr.CodeStoreSessionGetNotFound, "session not found", wrenerr.FieldSessionID(id))
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "getting session %s", id)
	}
	return sess, nil
}

func (s *SessionStore) ListSessions(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_id = $1
ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`

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

// EndSession flips the status in one conditional UPDATE; RETURNING tells
// whether this call won the transition.
func (s *SessionStore) EndSession(ctx context.Context, id string, endedAt time.Time) (*store.Session, bool, error) {
	const q = `UPDATE sessions SET status = $1, ended_at = $2, updated_at = $2
WHERE id = $3 AND status = $4 RETURNING ` + sessionColumns

	sess, err := scanSession(s.db.QueryRowContext(ctx, q,
		string(store.SessionStatusEnded), endedAt, id, string(store.SessionStatusActive)))
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "ending session %s", id)
	}

	sess, err = s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
		if err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting session %s", id)
		}
		if err := expectOneRow(result, wrenerr.CodeStoreSessionGetNotFound, "session not found", wrenerr.FieldSessionID(id)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE attachment_kind = $1 AND attachment_id = $2`,
			string(store.AttachmentSession), id); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting messages of session %s", id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM end_records WHERE session_id = $1`, id); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting end record of session %s", id)
		}
		return nil
	})
}

func scanSession(row rowScanner) (*store.Session, error) {
	var (
		sess    store.Session
		endedAt sql.NullTime
	)
	if err := row.Scan(
		&sess.ID,
		&sess.OwnerID,
		&sess.SystemPrompt,
		&sess.Status,
		&sess.CreatedAt,
		&endedAt,
		&sess.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	if endedAt.Valid {
		sess.EndedAt = endedAt.Time.UTC()
	}
	return &sess, nil
}
