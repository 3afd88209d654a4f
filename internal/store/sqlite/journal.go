// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// JournalStore implements store.JournalStore backed by SQLite.
type JournalStore struct {
	db *sql.DB
}

const journalColumns = `id, owner_id, title, content, tags, kind, source_session_id, created_at, updated_at`

func (s *JournalStore) CreateJournal(ctx context.Context, journal *store.Journal) error {
	if err := journal.Validate(); err != nil {
		return err
	}

	tags, err := json.Marshal(nonNilTags(journal.Tags))
	if err != nil {
		return fmt.Errorf("marshalling journal tags: %w", err)
	}

	const q = `INSERT INTO journals (` + journalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		journal.ID,
		journal.OwnerID,
		journal.Title,
		journal.Content,
		string(tags),
		string(journal.Kind),
		journal.SourceSessionID,
		formatTime(journal.CreatedAt),
		formatTime(journal.UpdatedAt),
	)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "creating journal %s", journal.ID)
	}
	return nil
}

func (s *JournalStore) GetJournal(ctx context.Context, id string) (*store.Journal, error) {
	const q = `SELECT ` + journalColumns + ` FROM journals WHERE id = ?`

	j, err := scanJournal(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrenerr.New(wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(id))
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "getting journal %s", id)
	}
	return j, nil
}

func (s *JournalStore) ListJournals(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Journal, error) {
	const q = `SELECT ` + journalColumns + ` FROM journals WHERE owner_id = ?
ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, ownerID, limitOrAll(opts), opts.Offset)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "listing journals for owner %s", ownerID)
	}
	defer func() { _ = rows.Close() }()

	journals := make([]*store.Journal, 0)
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		journals = append(journals, j)
	}
	return journals, rows.Err()
}

func (s *JournalStore) UpdateJournal(ctx context.Context, journal *store.Journal) error {
	if err := journal.Validate(); err != nil {
		return err
	}

	tags, err := json.Marshal(nonNilTags(journal.Tags))
	if err != nil {
		return fmt.Errorf("marshalling journal tags: %w", err)
	}

	const q = `UPDATE journals SET title = ?, content = ?, tags = ?, kind = ?, source_session_id = ?, updated_at = ?
WHERE id = ?`

	result, err := s.db.ExecContext(ctx, q,
		journal.Title,
		journal.Content,
		string(tags),
		string(journal.Kind),
		journal.SourceSessionID,
		formatTime(journal.UpdatedAt),
		journal.ID,
	)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "updating journal %s", journal.ID)
	}
	return expectOneRow(result, wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(journal.ID))
}

func (s *JournalStore) DeleteJournal(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM journals WHERE id = ?`, id)
		if err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting journal %s", id)
		}
		if err := expectOneRow(result, wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(id)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE attachment_kind = ? AND attachment_id = ?`,
			string(store.AttachmentJournal), id); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting messages of journal %s", id)
		}
		return nil
	})
}

func scanJournal(row rowScanner) (*store.Journal, error) {
	var (
		j                    store.Journal
		tags                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&j.ID,
		&j.OwnerID,
		&j.Title,
		&j.Content,
		&tags,
		&j.Kind,
		&j.SourceSessionID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &j.Tags); err != nil {
			return nil, fmt.Errorf("unmarshalling journal tags: %w", err)
		}
	}
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
