// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/store"
)

func (s *Server) registerJournalRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-journal",
		Method:        http.MethodPost,
		Path:          "/api/v1/journals",
		Summary:       "Write a journal entry",
		Tags:          []string{"journals"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateJournal)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-journals",
		Method:      http.MethodGet,
		Path:        "/api/v1/journals",
		Summary:     "List journal entries and session notes",
		Tags:        []string{"journals"},
	}, s.handleListJournals)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-journal",
		Method:      http.MethodGet,
		Path:        "/api/v1/journals/{id}",
		Summary:     "Get a journal entry",
		Tags:        []string{"journals"},
	}, s.handleGetJournal)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-journal",
		Method:      http.MethodPut,
		Path:        "/api/v1/journals/{id}",
		Summary:     "Replace a journal entry",
		Tags:        []string{"journals"},
	}, s.handleUpdateJournal)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-journal",
		Method:        http.MethodDelete,
		Path:          "/api/v1/journals/{id}",
		Summary:       "Delete a journal entry and its replies",
		Tags:          []string{"journals"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteJournal)

	huma.Register(s.api, huma.Operation{
		OperationID: "reply-journal",
		Method:      http.MethodPost,
		Path:        "/api/v1/journals/{id}/reply",
		Summary:     "Ask the agent to reply to a journal entry",
		Tags:        []string{"journals"},
	}, s.handleReplyJournal)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-journal-replies",
		Method:      http.MethodGet,
		Path:        "/api/v1/journals/{id}/replies",
		Summary:     "List the agent's replies to a journal entry",
		Tags:        []string{"journals"},
	}, s.handleListReplies)
}

// JournalBody is the API shape of a journal.
type JournalBody struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	Tags            []string  `json:"tags,omitempty"`
	Kind            string    `json:"kind" enum:"entry,notes"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func journalBody(j *store.Journal) JournalBody {
	return JournalBody{
		ID:              j.ID,
		Title:           j.Title,
		Content:         j.Content,
		Tags:            j.Tags,
		Kind:            string(j.Kind),
		SourceSessionID: j.SourceSessionID,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

type journalWrite struct {
	Title   string   `json:"title,omitempty" maxLength:"200"`
	Content string   `json:"content" minLength:"1"`
	Tags    []string `json:"tags,omitempty"`
}

func (w journalWrite) input() agent.JournalInput {
	return agent.JournalInput{Title: w.Title, Content: w.Content, Tags: w.Tags}
}

type createJournalInput struct {
	Body journalWrite
}

type updateJournalInput struct {
	ID   string `path:"id"`
	Body journalWrite
}

type journalOutput struct {
	Body JournalBody
}

type listJournalsOutput struct {
	Body struct {
		Journals []JournalBody `json:"journals"`
	}
}

func (s *Server) handleCreateJournal(ctx context.Context, in *createJournalInput) (*journalOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	j, err := s.services.journals.Create(ctx, owner, in.Body.input())
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &journalOutput{Body: journalBody(j)}, nil
}

func (s *Server) handleListJournals(ctx context.Context, in *pageInput) (*listJournalsOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	journals, err := s.services.journals.List(ctx, owner, in.opts())
	if err != nil {
		return nil, apiError(ctx, err)
	}
	out := &listJournalsOutput{}
	out.Body.Journals = make([]JournalBody, 0, len(journals))
	for _, j := range journals {
		out.Body.Journals = append(out.Body.Journals, journalBody(j))
	}
	return out, nil
}

func (s *Server) handleGetJournal(ctx context.Context, in *idInput) (*journalOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	j, err := s.services.journals.Get(ctx, owner, in.ID)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &journalOutput{Body: journalBody(j)}, nil
}

func (s *Server) handleUpdateJournal(ctx context.Context, in *updateJournalInput) (*journalOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	j, err := s.services.journals.Update(ctx, owner, in.ID, in.Body.input())
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &journalOutput{Body: journalBody(j)}, nil
}

func (s *Server) handleDeleteJournal(ctx context.Context, in *idInput) (*struct{}, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.journals.Delete(ctx, owner, in.ID); err != nil {
		return nil, apiError(ctx, err)
	}
	return nil, nil
}

func (s *Server) handleReplyJournal(ctx context.Context, in *idInput) (*turnOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.services.journals.Reply(ctx, owner, in.ID)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	return &turnOutput{Body: turnBody(res)}, nil
}

func (s *Server) handleListReplies(ctx context.Context, in *idInput) (*messagesOutput, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.services.journals.Replies(ctx, owner, in.ID)
	if err != nil {
		return nil, apiError(ctx, err)
	}
	out := &messagesOutput{}
	out.Body.Messages = messageBodies(msgs)
	return out, nil
}
