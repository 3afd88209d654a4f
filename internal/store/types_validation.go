// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"strings"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Valid reports whether the status is a known session lifecycle state.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusEnded:
		return true
	default:
		return false
	}
}

// Valid reports whether the role is a known message role.
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAgent:
		return true
	default:
		return false
	}
}

// Valid reports whether the kind is a known journal kind.
func (k JournalKind) Valid() bool {
	switch k {
	case JournalKindEntry, JournalKindNotes:
		return true
	default:
		return false
	}
}

// ParseAttachment rebuilds an Attachment from its persisted kind and id.
func ParseAttachment(kind, id string) (Attachment, error) {
	switch AttachmentKind(kind) {
	case AttachmentNone:
		if id != "" {
			return Attachment{}, wrenerr.Errorf(wrenerr.CodeStoreInvalidInput, "attachment: id %q without kind", id)
		}
		return NoAttachment(), nil
	case AttachmentSession:
		return SessionAttachment(id), nil
	case AttachmentJournal:
		return JournalAttachment(id), nil
	default:
		return Attachment{}, wrenerr.Errorf(wrenerr.CodeStoreInvalidInput, "attachment: unknown kind %q", kind)
	}
}

// Validate checks that a non-detached attachment names its target.
func (a Attachment) Validate() error {
	if a.kind != AttachmentNone && a.id == "" {
		return wrenerr.Errorf(wrenerr.CodeStoreInvalidInput, "attachment: %s id is required", a.kind)
	}
	return nil
}

// Validate checks that the Session has all required fields set correctly.
func (s Session) Validate() error {
	if s.ID == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "session: ID is required")
	}
	if s.OwnerID == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "session: OwnerID is required")
	}
	if strings.TrimSpace(s.SystemPrompt) == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "session: SystemPrompt is required")
	}
	if !s.Status.Valid() {
		return wrenerr.Errorf(wrenerr.CodeStoreInvalidInput, "session: invalid status %q", s.Status)
	}
	if s.CreatedAt.IsZero() {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "session: CreatedAt is required")
	}
	return nil
}

// Validate checks that the Message has all required fields set correctly.
func (m Message) Validate() error {
	if m.ID == "" {
		return wrenerr.New(wrenerr.CodeStoreMessageAppendInvalid, "message: ID is required")
	}
	if m.OwnerID == "" {
		return wrenerr.New(wrenerr.CodeStoreMessageAppendInvalid, "message: OwnerID is required")
	}
	if err := m.Attachment.Validate(); err != nil {
		return err
	}
	if !m.Role.Valid() {
		return wrenerr.Errorf(wrenerr.CodeStoreMessageAppendInvalid, "message: invalid role %q", m.Role)
	}
	if m.Text == "" {
		return wrenerr.Errorf(wrenerr.CodeStoreMessageAppendInvalid, "message: Text is required for role %q", m.Role)
	}
	if m.CreatedAt.IsZero() {
		return wrenerr.New(wrenerr.CodeStoreMessageAppendInvalid, "message: CreatedAt is required")
	}
	return nil
}

// Validate checks that the Journal has all required fields set correctly.
func (j Journal) Validate() error {
	if j.ID == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "journal: ID is required")
	}
	if j.OwnerID == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "journal: OwnerID is required")
	}
	if !j.Kind.Valid() {
		return wrenerr.Errorf(wrenerr.CodeStoreInvalidInput, "journal: invalid kind %q", j.Kind)
	}
	if strings.TrimSpace(j.Content) == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "journal: Content is required")
	}
	return nil
}

// Validate checks that the EndRecord has all required fields set correctly.
func (r EndRecord) Validate() error {
	if r.ID == "" || r.SessionID == "" || r.OwnerID == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "end record: ID, SessionID and OwnerID are required")
	}
	if r.EndedAt.IsZero() {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "end record: EndedAt is required")
	}
	if r.NotesJournalID == "" && r.NotesContent != "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "end record: NotesContent without NotesJournalID")
	}
	return nil
}
