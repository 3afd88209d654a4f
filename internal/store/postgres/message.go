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

const messageColumns = `seq, id, owner_id, attachment_kind, attachment_id, role, text,
audio_locator, audio_duration_ms, audio_format, voice, created_at`

func (s *SessionStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO messages (id, owner_id, attachment_kind, attachment_id, role, text,
audio_locator, audio_duration_ms, audio_format, voice, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING seq`

	err := s.db.QueryRowContext(ctx, q,
		msg.ID,
		msg.OwnerID,
		string(msg.Attachment.Kind()),
		msg.Attachment.ID(),
		string(msg.Role),
		msg.Text,
		msg.AudioLocator,
		msg.AudioDuration.Milliseconds(),
		msg.AudioFormat,
		msg.Voice,
		msg.CreatedAt,
	).Scan(&msg.Seq)
	if isUniqueViolation(err) {
		return wrenerr.Errorf(wrenerr.CodeStoreConflict, "message %s already exists", msg.ID)
	}
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "appending message %s to %s", msg.ID, msg.Attachment)
	}
	return nil
}

func (s *SessionStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrenerr.New(wrenerr.CodeStoreMessageGetNotFound, "message not found", wrenerr.FieldMessageID(id))
	}
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "getting message %s", id)
	}
	return msg, nil
}

func (s *SessionStore) ListMessages(ctx context.Context, att store.Attachment, opts store.ListOpts) ([]*store.Message, error) {
	if att.Kind() == store.AttachmentNone {
		return nil, wrenerr.New(wrenerr.CodeStoreInvalidInput, "listing messages requires a session or journal attachment")
	}

	const q = `SELECT ` + messageColumns + ` FROM messages
WHERE attachment_kind = $1 AND attachment_id = $2
ORDER BY created_at ASC, seq ASC LIMIT $3 OFFSET $4`

	rows, err := s.db.QueryContext(ctx, q, string(att.Kind()), att.ID(), limitOrAll(opts), opts.Offset)
	if err != nil {
		return nil, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "listing messages for %s", att)
	}
	defer func() { _ = rows.Close() }()

	msgs := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SessionStore) CountMessages(ctx context.Context, att store.Attachment) (int, error) {
	const q = `SELECT COUNT(*) FROM messages WHERE attachment_kind = $1 AND attachment_id = $2`

	var n int
	if err := s.db.QueryRowContext(ctx, q, string(att.Kind()), att.ID()).Scan(&n); err != nil {
		return 0, wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "counting messages for %s", att)
	}
	return n, nil
}

func (s *SessionStore) UpdateMessageText(ctx context.Context, id string, text string) error {
	if text == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "message text is required", wrenerr.FieldMessageID(id))
	}

	result, err := s.db.ExecContext(ctx, `UPDATE messages SET text = $1 WHERE id = $2`, text, id)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "updating message %s", id)
	}
	return expectOneRow(result, wrenerr.CodeStoreMessageGetNotFound, "message not found", wrenerr.FieldMessageID(id))
}

func (s *SessionStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return wrenerr.Wrapf(err, wrenerr.CodeStoreDatabaseFailure, "deleting message %s", id)
	}
	return expectOneRow(result, wrenerr.CodeStoreMessageGetNotFound, "message not found", wrenerr.FieldMessageID(id))
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg         store.Message
		kind, attID string
		durationMS  int64
	)
	if err := row.Scan(
		&msg.Seq,
		&msg.ID,
		&msg.OwnerID,
		&kind,
		&attID,
		&msg.Role,
		&msg.Text,
		&msg.AudioLocator,
		&durationMS,
		&msg.AudioFormat,
		&msg.Voice,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}

	att, err := store.ParseAttachment(kind, attID)
	if err != nil {
		return nil, err
	}
	msg.Attachment = att
	msg.AudioDuration = time.Duration(durationMS) * time.Millisecond
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}
