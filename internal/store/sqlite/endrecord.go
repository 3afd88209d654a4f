// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// EndRecordStore implements store.EndRecordStore backed by SQLite.
type EndRecordStore struct {
	db *sql.DB
}

func (s *EndRecordStore) PutEndRecord(ctx context.Context, rec *store.EndRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO end_records (id, session_id, owner_id, summary, notes_journal_id, notes_content,
summarization_degraded, ended_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.OwnerID,
		rec.Summary,
		rec.NotesJournalID,
		rec.NotesContent,
		rec.SummarizationDegraded,
		formatTime(rec.EndedAt),
		formatTime(rec.CreatedAt),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return wrenerr.New(wrenerr.CodeStoreSessionEndConflict, "end record already exists", wrenerr.FieldSessionID(rec.SessionID))
	}
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "storing end record for session %s", rec.SessionID)
	}
	return nil
}

func (s *EndRecordStore) GetEndRecord(ctx context.Context, sessionID string) (*store.EndRecord, error) {
	const q = `SELECT id, session_id, owner_id, summary, notes_journal_id, notes_content,
summarization_degraded, ended_at, created_at FROM end_records WHERE session_id = ?`

	var (
		rec                store.EndRecord
		endedAt, createdAt string
	)
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.OwnerID,
		&rec.Summary,
		&rec.NotesJournalID,
		&rec.NotesContent,
		&rec.SummarizationDegraded,
		&endedAt,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrenerr.New(wrenerr.CodeStoreEndRecordGetNotFound, "end record not found", wrenerr.FieldSessionID(sessionID))
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "getting end record for session %s", sessionID)
	}
	rec.EndedAt = parseTime(endedAt)
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}
