// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/audio"
	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

func (s *Server) registerHealth() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		Summary:       "Start a session",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
	}, s.handleStartSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get a session",
		Tags:        []string{"sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-session-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "List the messages of a session",
		Tags:        []string{"sessions"},
	}, s.handleListMessages)

	huma.Register(s.api, huma.Operation{
		OperationID: "session-turn",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/turns",
		Summary:     "Run one conversational turn",
		Description: "Send a recording (base64 audio plus its MIME type) or text. " +
			"The reply is transcribed, answered and voiced before the call returns.",
		Tags: []string{"sessions"},
		// base64 inflates the recording by a third.
		MaxBodyBytes: s.cfg.MaxAudioBytes*4/3 + 64<<10,
	}, s.handleTurn)

	huma.Register(s.api, huma.Operation{
		OperationID: "end-session",
		Method:      http.MethodPost,
		Path:        "/api/v1/sessions/{id}/end",
		Summary:     "End a session",
		Tags:        []string{"sessions"},
	}, s.handleEndSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-end-record",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/end",
		Summary:     "Get the outcome of an ended session",
		Description: "Returns 404 while the session is active.",
		Tags:        []string{"sessions"},
	}, s.handleGetEndRecord)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-message",
		Method:      http.MethodPut,
		Path:        "/api/v1/messages/{id}",
		Summary:     "Correct the text of a message",
		Tags:        []string{"messages"},
	}, s.handleUpdateMessage)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-message",
		Method:        http.MethodDelete,
		Path:          "/api/v1/messages/{id}",
		Summary:       "Delete a message",
		Tags:          []string{"messages"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteMessage)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-audio",
		Method:      http.MethodGet,
		Path:        "/api/v1/audio/{locator}",
		Summary:     "Fetch stored audio",
		Tags:        []string{"audio"},
	}, s.handleGetAudio)

	s.registerJournalRoutes()
}

// --- Bodies ---

// SessionBody is the API shape of a session.
type SessionBody struct {
	ID           string     `json:"id"`
	SystemPrompt string     `json:"system_prompt"`
	Status       string     `json:"status" enum:"active,ended"`
	CreatedAt    time.Time  `json:"created_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// MessageBody is the API shape of a message.
type MessageBody struct {
	ID              string    `json:"id"`
	Role            string    `json:"role" enum:"user,agent"`
	Text            string    `json:"text"`
	AudioLocator    string    `json:"audio_locator,omitempty" doc:"Fetch with GET /api/v1/audio/{locator}"`
	AudioFormat     string    `json:"audio_format,omitempty"`
	AudioDurationMS int64     `json:"audio_duration_ms,omitempty"`
	Voice           string    `json:"voice,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TurnBody is the outcome of a turn or journal reply.
type TurnBody struct {
	UserMessage       *MessageBody `json:"user_message,omitempty"`
	AgentMessage      MessageBody  `json:"agent_message"`
	SynthesisDegraded bool         `json:"synthesis_degraded" doc:"The reply has no audio because synthesis failed"`
}

// EndBody is the outcome of ending a session.
type EndBody struct {
	Session               SessionBody `json:"session"`
	Summary               string      `json:"summary,omitempty"`
	Notes                 []string    `json:"notes,omitempty"`
	NotesJournalID        string      `json:"notes_journal_id,omitempty"`
	SummarizationDegraded bool        `json:"summarization_degraded"`
}

// EndRecordBody is the stored outcome of an ended session.
type EndRecordBody struct {
	SessionID             string    `json:"session_id"`
	Summary               string    `json:"summary,omitempty"`
	Notes                 []string  `json:"notes,omitempty"`
	NotesJournalID        string    `json:"notes_journal_id,omitempty"`
	SummarizationDegraded bool      `json:"summarization_degraded"`
	EndedAt               time.Time `json:"ended_at"`
}

func sessionBody(s *store.Session) SessionBody {
	b := SessionBody{
		ID:           s.ID,
		SystemPrompt: s.SystemPrompt,
		Status:       string(s.Status),
		CreatedAt:    s.CreatedAt,
	}
	if !s.EndedAt.IsZero() {
		ended := s.EndedAt
		b.EndedAt = &ended
	}
	return b
}

func messageBody(m *store.Message) MessageBody {
	return MessageBody{
		ID:              m.ID,
		Role:            string(m.Role),
		Text:            m.Text,
		AudioLocator:    m.AudioLocator,
		AudioFormat:     m.AudioFormat,
		AudioDurationMS: m.AudioDuration.Milliseconds(),
		Voice:           m.Voice,
		CreatedAt:       m.CreatedAt,
	}
}

func messageBodies(msgs []*store.Message) []MessageBody {
	out := make([]MessageBody, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageBody(m))
	}
	return out
}

func turnBody(res *agent.TurnResult) TurnBody {
	b := TurnBody{
		AgentMessage:      messageBody(res.AgentMessage),
		SynthesisDegraded: res.SynthesisDegraded,
	}
	if res.UserMessage != nil {
		user := messageBody(res.UserMessage)
		b.UserMessage = &user
	}
	return b
}

// --- Inputs and outputs ---

type healthOutput struct {
	Body struct {
		Status    string                    `json:"status" example:"ok" enum:"ok,degraded"`
		Version   string                    `json:"version"`
		Providers map[string]providerHealth `json:"providers,omitempty"`
	}
}

type providerHealth struct {
	Available           bool       `json:"available"`
	FailureCount        int64      `json:"failure_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
}

type pageInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"500" doc:"Maximum number of items, 0 for all"`
	Offset int `query:"offset" minimum:"0"`
}

func (p pageInput) opts() store.ListOpts {
	return store.ListOpts{Limit: p.Limit, Offset: p.Offset}
}

type idInput struct {
	ID string `path:"id"`
}

type startSessionInput struct {
	Body struct {
		SystemPrompt string `json:"system_prompt" minLength:"1" doc:"Persona and instructions for the agent"`
	}
}

type sessionOutput struct {
	Body SessionBody
}

type listSessionsOutput struct {
	Body struct {
		Sessions []SessionBody `json:"sessions"`
	}
}

type messagesOutput struct {
	Body struct {
		Messages []MessageBody `json:"messages"`
	}
}

type turnInput struct {
	ID   string `path:"id"`
	Body struct {
		Audio    []byte `json:"audio,omitempty" doc:"Base64 encoded recording"`
		MIMEType string `json:"mime_type,omitempty" example:"audio/wav"`
		Text     string `json:"text,omitempty" doc:"Typed input used instead of audio"`
	}
}

type turnOutput struct {
	Body TurnBody
}

type endSessionInput struct {
	ID   string `path:"id"`
	Body struct {
		Summarize bool `json:"summarize" doc:"Generate a summary and notes"`
	}
}

type endSessionOutput struct {
	Body EndBody
}

type endRecordOutput struct {
	Body EndRecordBody
}

type updateMessageInput struct {
	ID   string `path:"id"`
	Body struct {
		Text string `json:"text" minLength:"1" doc:"Replacement text, e.g. a corrected transcript"`
	}
}

type messageOutput struct {
	Body MessageBody
}

type audioInput struct {
	Locator string `path:"locator"`
}

type audioOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// --- Handlers ---

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{}
	out.Body.Status = "ok"
	out.Body.Version = s.cfg.Version
	if s.services == nil || s.services.providers == nil {
		return out, nil
	}

	health := s.services.providers.Health()
	out.Body.Providers = make(map[string]providerHealth, len(health))
	anyAvailable := len(health) == 0
	for name, h := range health {
		out.Body.Providers[name] = providerHealth{
			Available:           h.Available,
			FailureCount:        h.FailureCount,
			ConsecutiveFailures: h.ConsecutiveFailures,
			CooldownUntil:       h.CooldownUntil,
		}
		anyAvailable = anyAvailable || h.Available
	}
	if !anyAvailable {
		out.Body.Status = "degraded"
	}
	return out, nil
}

func (s *Server) handleStartSession(ctx context.Context, in *startSessionInput) (*sessionOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.services.sessions.Start(ctx, owner, in.Body.SystemPrompt)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &sessionOutput{Body: sessionBody(sess)}, nil
}

func (s *Server) handleListSessions(ctx context.Context, in *pageInput) (*listSessionsOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.services.sessions.List(ctx, owner, in.opts())
	if err != nil {
		return nil, apiError(ctx, err)
	}
	out := &listSessionsOutput{}
	out.Body.Sessions = make([]SessionBody, 0, len(sessions))
	for _, sess := range sessions {
		out.Body.Sessions = append(out.Body.Sessions, sessionBody(sess))
	}
	return out, nil
}

func (s *Server) handleGetSession(ctx context.Context, in *idInput) (*sessionOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := s.services.sessions.Get(ctx, in.ID, owner)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &sessionOutput{Body: sessionBody(sess)}, nil
}

func (s *Server) handleListMessages(ctx context.Context, in *idInput) (*messagesOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.services.sessions.Messages(ctx, in.ID, owner)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	out := &messagesOutput{}
	out.Body.Messages = messageBodies(msgs)
	return out, nil
}

func (s *Server) handleTurn(ctx context.Context, in *turnInput) (*turnOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if int64(len(in.Body.Audio)) > s.cfg.MaxAudioBytes {
		return nil, huma.Error413RequestEntityTooLarge("recording exceeds the size limit")
	}
	if len(in.Body.Audio) > 0 && in.Body.MIMEType == "" {
		return nil, huma.Error422UnprocessableEntity("mime_type is required with audio")
	}

	res, err := s.services.sessions.Turn(ctx, in.ID, owner, agent.TurnInput{
		Audio:    in.Body.Audio,
		MIMEType: in.Body.MIMEType,
		Text:     in.Body.Text,
	})
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &turnOutput{Body: turnBody(res)}, nil
}

func (s *Server) handleEndSession(ctx context.Context, in *endSessionInput) (*endSessionOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.sessions.End(ctx, in.ID, owner, in.Body.Summarize)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &endSessionOutput{Body: EndBody{
		Session:               sessionBody(res.Session),
		Summary:               res.Summary,
		Notes:                 res.Notes,
		NotesJournalID:        res.NotesJournalID,
		SummarizationDegraded: res.SummarizationDegraded,
	}}, nil
}

func (s *Server) handleGetEndRecord(ctx context.Context, in *idInput) (*endRecordOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.services.sessions.EndRecord(ctx, in.ID, owner)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &endRecordOutput{Body: EndRecordBody{
		SessionID:             rec.SessionID,
		Summary:               rec.Summary,
		Notes:                 agent.NormalizeNotes(rec.NotesContent, agent.NotesCount),
		NotesJournalID:        rec.NotesJournalID,
		SummarizationDegraded: rec.SummarizationDegraded,
		EndedAt:               rec.EndedAt,
	}}, nil
}

func (s *Server) handleUpdateMessage(ctx context.Context, in *updateMessageInput) (*messageOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.services.sessions.UpdateMessage(ctx, owner, in.ID, in.Body.Text)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &messageOutput{Body: messageBody(msg)}, nil
}

func (s *Server) handleDeleteMessage(ctx context.Context, in *idInput) (*struct{}, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.sessions.DeleteMessage(ctx, owner, in.ID); err != nil {
		return nil, apiError(ctx, err)
	}
	return nil, nil
}

// handleGetAudio serves any locator to any caller with an owner header. A
// locator is unguessable and only handed out in the owner's own messages, so
// holding it is the permission to read it.
func (s *Server) handleGetAudio(ctx context.Context, in *audioInput) (*audioOutput, error) {
	if _, err := requireOwner(ctx); err != nil {
		return nil, err
	}
	blob, err := s.services.audio.Get(ctx, audio.Locator(in.Locator))
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &audioOutput{
		ContentType: blob.MIMEType,
		// Blobs are write-once.
		CacheControl: "private, max-age=31536000, immutable",
		Body:         blob.Data,
	}, nil
}

func requireOwner(ctx context.Context) (string, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return "", huma.Error401Unauthorized("missing " + OwnerHeader + " header")
	}
	return owner, nil
}

// apiError maps a coded error onto an HTTP problem. Internal failures are
// logged and reported without detail.
func apiError(ctx context.Context, err error) error {
	status := wrenerr.HTTPStatus(err)
	code := wrenerr.CodeOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		slog.ErrorContext(ctx, "request failed", "code", code, "error", err)
		return huma.NewError(status, "internal error")
	}

	fields := wrenerr.FieldsOf(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	details := []error{&huma.ErrorDetail{Location: "code", Message: string(code), Value: string(code)}}
	for _, k := range keys {
		details = append(details, &huma.ErrorDetail{Location: k, Message: "context", Value: fields[k]})
	}
	return huma.NewError(status, err.Error(), details...)
}
