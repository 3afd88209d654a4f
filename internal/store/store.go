// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"time"
)

// SessionStore manages sessions and the ordered message log of sessions and
// journals. Implementations must be safe for concurrent use.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, ownerID string, opts ListOpts) ([]*Session, error)
	// EndSession atomically moves an active session to ended. It returns the
	// stored session and whether this call performed the transition; ending
	// an already ended session is not an error.
	EndSession(ctx context.Context, id string, endedAt time.Time) (*Session, bool, error)
	// DeleteSession removes the session and every message attached to it.
	DeleteSession(ctx context.Context, id string) error

	// AppendMessage persists msg as a single all-or-nothing write and sets
	// msg.Seq.
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	// ListMessages returns the messages attached to att ordered by CreatedAt
	// then Seq.
	ListMessages(ctx context.Context, att Attachment, opts ListOpts) ([]*Message, error)
	CountMessages(ctx context.Context, att Attachment) (int, error)
	UpdateMessageText(ctx context.Context, id string, text string) error
	DeleteMessage(ctx context.Context, id string) error
}

// JournalStore manages journal entries.
type JournalStore interface {
	CreateJournal(ctx context.Context, journal *Journal) error
	GetJournal(ctx context.Context, id string) (*Journal, error)
	ListJournals(ctx context.Context, ownerID string, opts ListOpts) ([]*Journal, error)
	UpdateJournal(ctx context.Context, journal *Journal) error
	// DeleteJournal removes the journal and every message attached to it.
	DeleteJournal(ctx context.Context, id string) error
}

// EndRecordStore keeps the outcome of session termination.
type EndRecordStore interface {
	// PutEndRecord fails with a conflict when the session already has one.
	PutEndRecord(ctx context.Context, rec *EndRecord) error
	GetEndRecord(ctx context.Context, sessionID string) (*EndRecord, error)
}

// Store groups the stores a backend provides over one shared connection.
type Store interface {
	Sessions() SessionStore
	Journals() JournalStore
	EndRecords() EndRecordStore
	Close() error
}
