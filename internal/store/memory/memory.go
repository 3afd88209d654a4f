// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package memory provides an in-process store backend. Data lives only as
// long as the process; it backs tests and single-run CLI sessions.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func init() {
	store.RegisterBackend("memory", func(*store.StorageConfig) (store.Store, error) {
		return New(), nil
	})
}

var (
	_ store.Store          = (*Store)(nil)
	_ store.SessionStore   = (*Store)(nil)
	_ store.JournalStore   = (*Store)(nil)
	_ store.EndRecordStore = (*Store)(nil)
)

// Store keeps every entity in maps guarded by a single RWMutex. Values are
// copied on the way in and out so callers never share memory with the store.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]store.Session
	messages   map[string]store.Message
	attached   map[store.Attachment][]string
	journals   map[string]store.Journal
	endRecords map[string]store.EndRecord
	seq        int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sessions:   make(map[string]store.Session),
		messages:   make(map[string]store.Message),
		attached:   make(map[store.Attachment][]string),
		journals:   make(map[string]store.Journal),
		endRecords: make(map[string]store.EndRecord),
	}
}

func (s *Store) Sessions() store.SessionStore     { return s }
func (s *Store) Journals() store.JournalStore     { return s }
func (s *Store) EndRecords() store.EndRecordStore { return s }
func (s *Store) Close() error                     { return nil }

// --- sessions ---

func (s *Store) CreateSession(_ context.Context, session *store.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return wrenerr.Errorf(wrenerr.CodeStoreConflict, "session %s already exists", session.ID)
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, wrenerr.New(wrenerr.CodeStoreSessionGetNotFound, "session not found", wrenerr.FieldSessionID(id))
	}
	return &sess, nil
}

func (s *Store) ListSessions(_ context.Context, ownerID string, opts store.ListOpts) ([]*store.Session, error) {
	s.mu.RLock()
	out := make([]*store.Session, 0)
	for _, sess := range s.sessions {
		if sess.OwnerID == ownerID {
			out = append(out, &sess)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, opts), nil
}

func (s *Store) EndSession(_ context.Context, id string, endedAt time.Time) (*store.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, wrenerr.New(wrenerr.CodeStoreSessionGetNotFound, "session not found", wrenerr.FieldSessionID(id))
	}
	if !sess.Active() {
		return &sess, false, nil
	}

	sess.Status = store.SessionStatusEnded
	sess.EndedAt = endedAt
	sess.UpdatedAt = endedAt
	s.sessions[id] = sess
	return &sess, true, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return wrenerr.New(wrenerr.CodeStoreSessionGetNotFound, "session not found", wrenerr.FieldSessionID(id))
	}
	delete(s.sessions, id)
	delete(s.endRecords, id)
	s.dropAttachedLocked(store.SessionAttachment(id))
	return nil
}

// --- messages ---

func (s *Store) AppendMessage(_ context.Context, msg *store.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return wrenerr.Errorf(wrenerr.CodeStoreConflict, "message %s already exists", msg.ID)
	}

	s.seq++
	msg.Seq = s.seq
	s.messages[msg.ID] = *msg
	if msg.Attachment.Kind() != store.AttachmentNone {
		s.attached[msg.Attachment] = append(s.attached[msg.Attachment], msg.ID)
	}
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, wrenerr.New(wrenerr.CodeStoreMessageGetNotFound, "message not found", wrenerr.FieldMessageID(id))
	}
	return &msg, nil
}

func (s *Store) ListMessages(_ context.Context, att store.Attachment, opts store.ListOpts) ([]*store.Message, error) {
	if att.Kind() == store.AttachmentNone {
		return nil, wrenerr.New(wrenerr.CodeStoreInvalidInput, "listing messages requires a session or journal attachment")
	}

	s.mu.RLock()
	ids := s.attached[att]
	out := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		msg := s.messages[id]
		out = append(out, &msg)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, opts), nil
}

func (s *Store) CountMessages(_ context.Context, att store.Attachment) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attached[att]), nil
}

func (s *Store) UpdateMessageText(_ context.Context, id string, text string) error {
	if text == "" {
		return wrenerr.New(wrenerr.CodeStoreInvalidInput, "message text is required", wrenerr.FieldMessageID(id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return wrenerr.New(wrenerr.CodeStoreMessageGetNotFound, "message not found", wrenerr.FieldMessageID(id))
	}
	msg.Text = text
	s.messages[id] = msg
	return nil
}

func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return wrenerr.New(wrenerr.CodeStoreMessageGetNotFound, "message not found", wrenerr.FieldMessageID(id))
	}
	delete(s.messages, id)
	if ids, ok := s.attached[msg.Attachment]; ok {
		s.attached[msg.Attachment] = slices.DeleteFunc(ids, func(v string) bool { return v == id })
	}
	return nil
}

func (s *Store) dropAttachedLocked(att store.Attachment) {
	for _, id := range s.attached[att] {
		delete(s.messages, id)
	}
	delete(s.attached, att)
}

// --- journals ---

func (s *Store) CreateJournal(_ context.Context, journal *store.Journal) error {
	if err := journal.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.journals[journal.ID]; ok {
		return wrenerr.Errorf(wrenerr.CodeStoreConflict, "journal %s already exists", journal.ID)
	}
	s.journals[journal.ID] = cloneJournal(*journal)
	return nil
}

func (s *Store) GetJournal(_ context.Context, id string) (*store.Journal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.journals[id]
	if !ok {
		return nil, wrenerr.New(wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(id))
	}
	j = cloneJournal(j)
	return &j, nil
}

func (s *Store) ListJournals(_ context.Context, ownerID string, opts store.ListOpts) ([]*store.Journal, error) {
	s.mu.RLock()
	out := make([]*store.Journal, 0)
	for _, j := range s.journals {
		if j.OwnerID == ownerID {
			j := cloneJournal(j)
			out = append(out, &j)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, opts), nil
}

func (s *Store) UpdateJournal(_ context.Context, journal *store.Journal) error {
	if err := journal.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.journals[journal.ID]; !ok {
		return wrenerr.New(wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(journal.ID))
	}
	s.journals[journal.ID] = cloneJournal(*journal)
	return nil
}

func (s *Store) DeleteJournal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.journals[id]; !ok {
		return wrenerr.New(wrenerr.CodeStoreJournalGetNotFound, "journal not found", wrenerr.FieldJournalID(id))
	}
	delete(s.journals, id)
	s.dropAttachedLocked(store.JournalAttachment(id))
	return nil
}

// --- end records ---

func (s *Store) PutEndRecord(_ context.Context, rec *store.EndRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endRecords[rec.SessionID]; ok {
		return wrenerr.New(wrenerr.CodeStoreSessionEndConflict, "end record already exists", wrenerr.FieldSessionID(rec.SessionID))
	}
	s.endRecords[rec.SessionID] = *rec
	return nil
}

func (s *Store) GetEndRecord(_ context.Context, sessionID string) (*store.EndRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.endRecords[sessionID]
	if !ok {
		return nil, wrenerr.New(wrenerr.CodeStoreEndRecordGetNotFound, "end record not found", wrenerr.FieldSessionID(sessionID))
	}
	return &rec, nil
}

func cloneJournal(j store.Journal) store.Journal {
	j.Tags = slices.Clone(j.Tags)
	return j
}

func page[T any](items []T, opts store.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
