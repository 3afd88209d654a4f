// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// JournalInput carries the writable fields of a journal entry.
type JournalInput struct {
	Title   string
	Content string
	Tags    []string
}

// JournalService manages a user's journal entries and their one-shot agent
// replies. Every operation is scoped to the owner.
type JournalService struct {
	journals     store.JournalStore
	sessions     store.SessionStore
	orchestrator *TurnOrchestrator
	now          func() time.Time
}

// NewJournalService creates a JournalService.
func NewJournalService(st store.Store, orchestrator *TurnOrchestrator) *JournalService {
	return &JournalService{
		journals:     st.Journals(),
		sessions:     st.Sessions(),
		orchestrator: orchestrator,
		now:          time.Now,
	}
}

func (s *JournalService) Create(ctx context.Context, ownerID string, in JournalInput) (*store.Journal, error) {
	if err := validateJournalInput(ownerID, in); err != nil {
		return nil, err
	}

	now := s.now()
	journal := &store.Journal{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Tags:      in.Tags,
		Kind:      store.JournalKindEntry,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.journals.CreateJournal(ctx, journal); err != nil {
		return nil, err
	}
	return journal, nil
}

func (s *JournalService) Get(ctx context.Context, ownerID, journalID string) (*store.Journal, error) {
	return loadOwnedJournal(ctx, s.journals, ownerID, journalID)
}

// List returns the owner's journals, newest first. Session notes are
// included with Kind set to notes.
func (s *JournalService) List(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Journal, error) {
	return s.journals.ListJournals(ctx, ownerID, opts)
}

// Update replaces the writable fields of a journal.
func (s *JournalService) Update(ctx context.Context, ownerID, journalID string, in JournalInput) (*store.Journal, error) {
	if err := validateJournalInput(ownerID, in); err != nil {
		return nil, err
	}
	journal, err := loadOwnedJournal(ctx, s.journals, ownerID, journalID)
	if err != nil {
		return nil, err
	}

	journal.Title = strings.TrimSpace(in.Title)
	journal.Content = in.Content
	journal.Tags = in.Tags
	journal.UpdatedAt = s.now()
	if err := s.journals.UpdateJournal(ctx, journal); err != nil {
		return nil, err
	}
	return journal, nil
}

// Delete removes the journal together with its replies.
func (s *JournalService) Delete(ctx context.Context, ownerID, journalID string) error {
	if _, err := loadOwnedJournal(ctx, s.journals, ownerID, journalID); err != nil {
		return err
	}
	return s.journals.DeleteJournal(ctx, journalID)
}

// Reply asks the agent for a voiced reply to the journal.
func (s *JournalService) Reply(ctx context.Context, ownerID, journalID string) (*TurnResult, error) {
	return s.orchestrator.ReplyToJournal(ctx, ownerID, journalID)
}

// Replies returns the messages attached to the journal in order.
func (s *JournalService) Replies(ctx context.Context, ownerID, journalID string) ([]*store.Message, error) {
	if _, err := loadOwnedJournal(ctx, s.journals, ownerID, journalID); err != nil {
		return nil, err
	}
	return s.sessions.ListMessages(ctx, store.JournalAttachment(journalID), store.ListOpts{})
}

func validateJournalInput(ownerID string, in JournalInput) error {
	if strings.TrimSpace(ownerID) == "" {
		return wrenerr.New(wrenerr.CodeJournalInvalidInput, "owner id is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return wrenerr.New(wrenerr.CodeJournalInvalidInput, "journal content is required",
			wrenerr.FieldOwnerID(ownerID))
	}
	return nil
}
