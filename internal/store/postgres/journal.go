// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// JournalStore implements store.JournalStore backed by PostgreSQL.
type JournalStore struct {
	db *sql.DB
}

const journalColumns = `id, owner_id, title, content, tags, kind, source_session_id, created_at, updated_at`

func (s *JournalStore) CreateJournal(ctx context.Context, journal *store.Journal) error {
	if err := journal.Validate(); err != nil {
		return err
	}
	tags, err := marshalTags(journal.Tags)
	if err != nil {
		return err
	}

	const q = `INSERT INTO journals (` + journalColumns + `) VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, q,
		journal.ID,
		journal.OwnerID,
		journal.Title,
		journal.Content,
		tags,
		string(journal.Kind),
		journal.SourceSessionID,
		journal.CreatedAt,
		journal.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return wrenerr.Errorf(wrenerr.CodeStoreConflict, "journal %s already exists", journal.ID)
	}
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "creating journal %s", journal.ID)
	}
	return nil
}

func (s *JournalStore) GetJournal(ctx context.Context, id string) (*store.Journal, error) {
	j, err := scanJournal(s.db.QueryRowContext(ctx, `SELECT `+journalColumns+` FROM journals WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrenerr.New(wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(id))
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "getting journal %s", id)
	}
	return j, nil
}

func (s *JournalStore) ListJournals(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Journal, error) {
	const q = `SELECT ` + journalColumns + ` FROM journals WHERE owner_id = $1
ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`

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
	tags, err := marshalTags(journal.Tags)
	if err != nil {
		return err
	}

	const q = `UPDATE journals SET title = $1, content = $2, tags = $3::jsonb, kind = $4, source_session_id = $5,
updated_at = $6 WHERE id = $7`

	result, err := s.db.ExecContext(ctx, q,
		journal.Title,
		journal.Content,
		tags,
		string(journal.Kind),
		journal.SourceSessionID,
		journal.UpdatedAt,
		journal.ID,
	)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "updating journal %s", journal.ID)
	}
	return expectOneRow(result, wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(journal.ID))
}

func (s *JournalStore) DeleteJournal(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM journals WHERE id = $1`, id)
		if err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting journal %s", id)
		}
		if err := expectOneRow(result, wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(id)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE attachment_kind = $1 AND attachment_id = $2`,
			string(store.AttachmentJournal), id); err != nil {
			return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting messages of journal %s", id)
		}
		return nil
	})
}

func scanJournal(row rowScanner) (*store.Journal, error) {
	var (
		j    store.Journal
		tags []byte
	)
	if err := row.Scan(
		&j.ID,
		&j.OwnerID,
		&j.Title,
		&j.Content,
		&tags,
		&j.Kind,
		&j.SourceSessionID,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(tags) > 0 && string(tags) != "[]" {
		if err := json.Unmarshal(tags, &j.Tags); err != nil {
			return nil, fmt.Errorf("unmarshalling journal tags: %w", err)
		}
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshalling journal tags: %w", err)
	}
	return string(raw), nil
}
