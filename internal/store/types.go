// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import "time"

// --- Session types ---

// SessionStatus represents the lifecycle state of a voice session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// Session is one interactive voice conversation. SystemPrompt never changes
// after creation; Status moves from active to ended at most once.
type Session struct {
	ID           string
	OwnerID      string
	SystemPrompt string
	Status       SessionStatus
	CreatedAt    time.Time
	EndedAt      time.Time // zero while active
	UpdatedAt    time.Time
}

// Active reports whether the session still accepts turns.
func (s *Session) Active() bool {
	return s.Status == SessionStatusActive
}

// --- Attachment ---

// AttachmentKind names what a message hangs off.
type AttachmentKind string

const (
	AttachmentNone    AttachmentKind = ""
	AttachmentSession AttachmentKind = "session"
	AttachmentJournal AttachmentKind = "journal"
)

// Attachment binds a message to exactly one session, exactly one journal, or
// nothing. The zero value is the detached attachment.
type Attachment struct {
	kind AttachmentKind
	id   string
}

func SessionAttachment(sessionID string) Attachment {
	return Attachment{kind: AttachmentSession, id: sessionID}
}

func JournalAttachment(journalID string) Attachment {
	return Attachment{kind: AttachmentJournal, id: journalID}
}

func NoAttachment() Attachment {
	return Attachment{}
}

func (a Attachment) Kind() AttachmentKind { return a.kind }

// ID returns the session or journal id, or "" when detached.
func (a Attachment) ID() string { return a.id }

func (a Attachment) SessionID() (string, bool) {
	return a.id, a.kind == AttachmentSession
}

func (a Attachment) JournalID() (string, bool) {
	return a.id, a.kind == AttachmentJournal
}

func (a Attachment) String() string {
	if a.kind == AttachmentNone {
		return "none"
	}
	return string(a.kind) + ":" + a.id
}

// --- Message types ---

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// Message is one utterance within a session or attached to a journal.
// Messages are ordered by CreatedAt, ties broken by Seq. Seq is assigned by
// the store on append.
type Message struct {
	ID            string
	OwnerID       string
	Attachment    Attachment
	Role          MessageRole
	Text          string
	AudioLocator  string // "" when the message has no audio
	AudioDuration time.Duration
	AudioFormat   string
	Voice         string
	Seq           int64
	CreatedAt     time.Time
}

// HasAudio reports whether an audio blob is attached to the message.
func (m *Message) HasAudio() bool {
	return m.AudioLocator != ""
}

// --- Journal types ---

// JournalKind distinguishes user-written entries from generated session notes.
type JournalKind string

const (
	JournalKindEntry JournalKind = "entry"
	JournalKindNotes JournalKind = "notes"
)

// Journal is a standalone text entry owned by a user.
type Journal struct {
	ID              string
	OwnerID         string
	Title           string
	Content         string
	Tags            []string
	Kind            JournalKind
	SourceSessionID string // set for notes derived from a session
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// --- End records ---

// EndRecord is the persisted outcome of ending a session. Exactly one exists
// per ended session.
type EndRecord struct {
	ID                    string
	SessionID             string
	OwnerID               string
	Summary               string
	NotesJournalID        string
	NotesContent          string
	SummarizationDegraded bool
	EndedAt               time.Time
	CreatedAt             time.Time
}

// ListOpts controls pagination for list queries. A zero Limit means no limit.
type ListOpts struct {
	Limit  int
	Offset int
}
