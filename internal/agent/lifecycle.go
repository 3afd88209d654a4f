// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigil-dev/wren/internal/store"
	"github.com/sigil-dev/wren/internal/telemetry"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// EndResult is the outcome of ending a session. Repeated End calls return
// the same result.
type EndResult struct {
	Session               *store.Session
	Summary               string
	Notes                 []string
	NotesJournalID        string
	SummarizationDegraded bool
}

// ManagerConfig holds dependencies for the Manager.
type ManagerConfig struct {
	Store        store.Store
	Orchestrator *TurnOrchestrator
	Generator    ReplyGenerator
	Context      ContextBuilder
	Lanes        *LanePool
	Tracer       trace.Tracer
	Instruments  *telemetry.Instruments
	Now          func() time.Time
}

// Manager owns the session lifecycle: it creates sessions, dispatches turns
// onto the session's lane and ends sessions with optional summarization.
// Sessions move from active to ended once and never back.
type Manager struct {
	sessions     store.SessionStore
	journals     store.JournalStore
	endRecords   store.EndRecordStore
	orchestrator *TurnOrchestrator
	generator    ReplyGenerator
	context      ContextBuilder
	lanes        *LanePool
	tracer       trace.Tracer
	instruments  *telemetry.Instruments
	now          func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	var missing []string
	if cfg.Store == nil {
		missing = append(missing, "Store")
	}
	if cfg.Orchestrator == nil {
		missing = append(missing, "Orchestrator")
	}
	if cfg.Generator == nil {
		missing = append(missing, "Generator")
	}
	if len(missing) > 0 {
		return nil, wrenerr.New(wrenerr.CodeConfigValidateInvalidValue,
			"manager: missing dependencies: "+strings.Join(missing, ", "))
	}

	lanes := cfg.Lanes
	if lanes == nil {
		lanes = NewLanePool()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.InstrumentationName)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		sessions:     cfg.Store.Sessions(),
		journals:     cfg.Store.Journals(),
		endRecords:   cfg.Store.EndRecords(),
		orchestrator: cfg.Orchestrator,
		generator:    cfg.Generator,
		context:      cfg.Context,
		lanes:        lanes,
		tracer:       tracer,
		instruments:  cfg.Instruments,
		now:          now,
	}, nil
}

// Start creates an active session for ownerID.
func (m *Manager) Start(ctx context.Context, ownerID, systemPrompt string) (*store.Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, wrenerr.New(wrenerr.CodeSessionStartInvalidInput, "owner id is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, wrenerr.New(wrenerr.CodeSessionStartInvalidInput, "system prompt is required",
			wrenerr.FieldOwnerID(ownerID))
	}

	now := m.now()
	session := &store.Session{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		SystemPrompt: systemPrompt,
		Status:       store.SessionStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	slog.Info("session started", "session_id", session.ID, "owner_id", ownerID)
	return session, nil
}

// Turn runs one turn on an active session owned by ownerID. Turns and End on
// the same session execute one at a time in submission order.
func (m *Manager) Turn(ctx context.Context, sessionID, ownerID string, in TurnInput) (*TurnResult, error) {
	session, err := m.ownedSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		return nil, inactiveErr(sessionID)
	}

	var result *TurnResult
	err = m.lanes.Get(sessionID).Submit(ctx, func(ctx context.Context) error {
		// Re-read under the lane: an End queued ahead of us has run by now.
		current, err := m.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !current.Active() {
			return inactiveErr(sessionID)
		}
		result, err = m.orchestrator.ProcessTurn(ctx, current, in)
		return err
	})
	switch {
	case wrenerr.HasCode(err, wrenerr.CodeAgentLaneClosed):
		return nil, inactiveErr(sessionID)
	case wrenerr.IsInactive(err):
		// The lane was recreated after End released it.
		m.lanes.Release(sessionID)
		return nil, err
	case err != nil:
		return nil, err
	}
	return result, nil
}

// End ends the session. With summarize set and at least one message, a
// summary and a list of notes are generated and the notes are saved as a
// journal owned by the user. A failed summarization still ends the session
// and reports SummarizationDegraded. Ending an ended session returns the
// result of the first End.
func (m *Manager) End(ctx context.Context, sessionID, ownerID string, summarize bool) (*EndResult, error) {
	session, err := m.ownedSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	ctx, span := m.tracer.Start(ctx, "wren.session.end", trace.WithAttributes(
		attribute.String("wren.session_id", sessionID),
		attribute.Bool("wren.session.summarize", summarize),
	))

	// Ended sessions still go through the lane, so a repeated End waits for
	// the first one to write its record.
	var result *EndResult
	err = m.lanes.Get(sessionID).Submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = m.end(ctx, sessionID, summarize)
		return err
	})
	telemetry.EndSpan(span, err)
	if wrenerr.HasCode(err, wrenerr.CodeAgentLaneClosed) {
		// A concurrent End won the race and released the lane.
		if session, err = m.sessions.GetSession(ctx, sessionID); err != nil {
			return nil, err
		}
		return m.priorEnd(ctx, session)
	}
	if err != nil {
		return nil, err
	}

	m.lanes.Release(sessionID)
	return result, nil
}

// end runs on the session lane.
func (m *Manager) end(ctx context.Context, sessionID string, summarize bool) (*EndResult, error) {
	session, changed, err := m.sessions.EndSession(ctx, sessionID, m.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return m.priorEnd(ctx, session)
	}
	// The session has ended. Its record is written even if the caller
	// goes away during summarization.
	persist := context.WithoutCancel(ctx)

	rec := &store.EndRecord{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		OwnerID:   session.OwnerID,
		EndedAt:   session.EndedAt,
		CreatedAt: m.now(),
	}
	result := &EndResult{Session: session}

	if summarize {
		m.summarize(ctx, session, rec, result)
	}

	if err := m.endRecords.PutEndRecord(persist, rec); err != nil {
		if wrenerr.IsConflict(err) {
			return m.priorEnd(persist, session)
		}
		return nil, err
	}

	m.instruments.RecordEnd(persist, summarize, result.SummarizationDegraded)
	slog.Info("session ended",
		"session_id", session.ID,
		"owner_id", session.OwnerID,
		"summarized", result.Summary != "",
		"summarization_degraded", result.SummarizationDegraded)
	return result, nil
}

// summarize fills rec and result with a summary and notes. Any failure leaves
// both empty and marks the result degraded.
func (m *Manager) summarize(ctx context.Context, session *store.Session, rec *store.EndRecord, result *EndResult) {
	messages, err := m.sessions.ListMessages(ctx, store.SessionAttachment(session.ID), store.ListOpts{})
	if err != nil {
		m.degradeSummary(session, rec, result, err)
		return
	}
	if len(messages) == 0 {
		return
	}

	transcript := m.context.Transcript(messages)

	start := time.Now()
	summary, err := m.generator.Generate(ctx, GenerateRequest{Context: transcript, Mode: ModeSummarize})
	if err == nil && strings.TrimSpace(summary) == "" {
		err = wrenerr.New(wrenerr.CodeServiceSummarizeUpstreamFailure, "summary is empty")
	}
	if err != nil {
		m.instruments.RecordStage(ctx, telemetry.StageSummarize, time.Since(start), err)
		m.degradeSummary(session, rec, result, err)
		return
	}

	raw, err := m.generator.Generate(ctx, GenerateRequest{Context: transcript, Mode: ModeNotes})
	notes := NormalizeNotes(raw, NotesCount)
	if err == nil && len(notes) == 0 {
		err = wrenerr.New(wrenerr.CodeServiceSummarizeUpstreamFailure, "notes are empty")
	}
	m.instruments.RecordStage(ctx, telemetry.StageSummarize, time.Since(start), err)
	if err != nil {
		m.degradeSummary(session, rec, result, err)
		return
	}

	content := FormatNotes(notes)
	now := m.now()
	journal := &store.Journal{
		ID:              uuid.New().String(),
		OwnerID:         session.OwnerID,
		Title:           "Session notes " + session.EndedAt.Format("2006-01-02"),
		Content:         content,
		Kind:            store.JournalKindNotes,
		SourceSessionID: session.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.journals.CreateJournal(context.WithoutCancel(ctx), journal); err != nil {
		m.degradeSummary(session, rec, result, err)
		return
	}

	rec.Summary = strings.TrimSpace(summary)
	rec.NotesJournalID = journal.ID
	rec.NotesContent = content
	result.Summary = rec.Summary
	result.Notes = notes
	result.NotesJournalID = journal.ID
}

func (m *Manager) degradeSummary(session *store.Session, rec *store.EndRecord, result *EndResult, err error) {
	slog.Warn("summarization degraded",
		"session_id", session.ID,
		"owner_id", session.OwnerID,
		"error", err)
	rec.SummarizationDegraded = true
	result.SummarizationDegraded = true
}

// priorEnd rebuilds the result of an earlier End from its record.
func (m *Manager) priorEnd(ctx context.Context, session *store.Session) (*EndResult, error) {
	rec, err := m.endRecords.GetEndRecord(ctx, session.ID)
	if err != nil {
		if wrenerr.IsNotFound(err) {
			// Ended without a record, e.g. a crash between the two writes.
			// Whatever summary was asked for is lost.
			return &EndResult{Session: session, SummarizationDegraded: true}, nil
		}
		return nil, err
	}
	return &EndResult{
		Session:               session,
		Summary:               rec.Summary,
		Notes:                 NormalizeNotes(rec.NotesContent, NotesCount),
		NotesJournalID:        rec.NotesJournalID,
		SummarizationDegraded: rec.SummarizationDegraded,
	}, nil
}

// Get returns a session owned by ownerID.
func (m *Manager) Get(ctx context.Context, sessionID, ownerID string) (*store.Session, error) {
	return m.ownedSession(ctx, sessionID, ownerID)
}

// List returns the sessions of ownerID, newest first.
func (m *Manager) List(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Session, error) {
	return m.sessions.ListSessions(ctx, ownerID, opts)
}

// Messages returns the ordered message log of a session owned by ownerID.
func (m *Manager) Messages(ctx context.Context, sessionID, ownerID string) ([]*store.Message, error) {
	if _, err := m.ownedSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	return m.sessions.ListMessages(ctx, store.SessionAttachment(sessionID), store.ListOpts{})
}

// EndRecord returns the stored outcome of an ended session.
func (m *Manager) EndRecord(ctx context.Context, sessionID, ownerID string) (*store.EndRecord, error) {
	if _, err := m.ownedSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	return m.endRecords.GetEndRecord(ctx, sessionID)
}

// UpdateMessage replaces the text of a message owned by ownerID. The message
// keeps its place in the log and its audio.
func (m *Manager) UpdateMessage(ctx context.Context, ownerID, messageID, text string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, wrenerr.New(wrenerr.CodeMessageEditInvalidInput, "message text is required",
			wrenerr.FieldMessageID(messageID))
	}
	msg, err := m.ownedMessage(ctx, ownerID, messageID)
	if err != nil {
		return nil, err
	}
	if err := m.sessions.UpdateMessageText(ctx, messageID, text); err != nil {
		return nil, err
	}
	msg.Text = text
	return msg, nil
}

// DeleteMessage removes a message owned by ownerID. Its audio is left in the
// audio store.
func (m *Manager) DeleteMessage(ctx context.Context, ownerID, messageID string) error {
	if _, err := m.ownedMessage(ctx, ownerID, messageID); err != nil {
		return err
	}
	if err := m.sessions.DeleteMessage(ctx, messageID); err != nil {
		if wrenerr.IsNotFound(err) {
			return messageNotFound(messageID)
		}
		return err
	}
	slog.Info("message deleted", "message_id", messageID, "owner_id", ownerID)
	return nil
}

// Close releases every session lane.
func (m *Manager) Close() {
	m.lanes.Close()
}

func (m *Manager) ownedSession(ctx context.Context, sessionID, ownerID string) (*store.Session, error) {
	session, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if wrenerr.IsNotFound(err) {
			return nil, sessionNotFound(sessionID)
		}
		return nil, err
	}
	// A session owned by someone else is indistinguishable from a missing one.
	if session.OwnerID != ownerID {
		return nil, sessionNotFound(sessionID)
	}
	return session, nil
}

func (m *Manager) ownedMessage(ctx context.Context, ownerID, messageID string) (*store.Message, error) {
	msg, err := m.sessions.GetMessage(ctx, messageID)
	if err != nil {
		if wrenerr.IsNotFound(err) {
			return nil, messageNotFound(messageID)
		}
		return nil, err
	}
	if msg.OwnerID != ownerID {
		return nil, messageNotFound(messageID)
	}
	return msg, nil
}

func messageNotFound(messageID string) error {
	return wrenerr.New(wrenerr.CodeMessageGetNotFound, "message not found",
		wrenerr.FieldMessageID(messageID))
}

func sessionNotFound(sessionID string) error {
	return wrenerr.New(wrenerr.CodeSessionGetNotFound, "session not found",
		wrenerr.FieldSessionID(sessionID))
}

func inactiveErr(sessionID string) error {
	return wrenerr.New(wrenerr.CodeSessionTurnInactive, "session has ended",
		wrenerr.FieldSessionID(sessionID))
}
