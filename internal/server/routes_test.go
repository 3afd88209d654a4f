// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/server"
	"github.com/sigil-dev/wren/internal/voice/tts"
)

var recording = tts.EncodeWAV(make([]byte, 3200), 16000)

func TestRoutes_SessionFlow(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)

	var turn server.TurnBody
	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner,
		map[string]any{"audio": recording, "mime_type": "audio/wav"}, &turn)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, turn.UserMessage)
	assert.Equal(t, "I had a rough day", turn.UserMessage.Text)
	assert.Equal(t, "user", turn.UserMessage.Role)
	assert.Equal(t, replyText, turn.AgentMessage.Text)
	assert.Equal(t, "agent", turn.AgentMessage.Role)
	assert.False(t, turn.SynthesisDegraded)
	require.NotEmpty(t, turn.AgentMessage.AudioLocator)

	w = api.do(t, http.MethodGet, "/api/v1/audio/"+turn.AgentMessage.AudioLocator, owner, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Cache-Control"), "immutable")
	assert.True(t, strings.HasPrefix(w.Body.String(), "RIFF"))

	var msgs struct {
		Messages []server.MessageBody `json:"messages"`
	}
	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/messages", owner, nil, &msgs)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, "user", msgs.Messages[0].Role)
	assert.Equal(t, "agent", msgs.Messages[1].Role)

	var end server.EndBody
	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", owner, map[string]any{"summarize": true}, &end)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ended", end.Session.Status)
	assert.NotNil(t, end.Session.EndedAt)
	assert.Equal(t, "A short summary.", end.Summary)
	assert.Len(t, end.Notes, 5)
	assert.False(t, end.SummarizationDegraded)
	require.NotEmpty(t, end.NotesJournalID)

	var journals struct {
		Journals []server.JournalBody `json:"journals"`
	}
	w = api.do(t, http.MethodGet, "/api/v1/journals", owner, nil, &journals)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, journals.Journals, 1)
	assert.Equal(t, "notes", journals.Journals[0].Kind)
	assert.Equal(t, id, journals.Journals[0].SourceSessionID)
	assert.Equal(t, end.NotesJournalID, journals.Journals[0].ID)
}

func TestRoutes_TextTurn(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)

	var turn server.TurnBody
	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner, map[string]any{"text": "typed"}, &turn)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "typed", turn.UserMessage.Text)
	assert.Empty(t, turn.UserMessage.AudioLocator)
}

func TestRoutes_ListAndGetSessions(t *testing.T) {
	api := newTestAPI(t)
	first := api.startSession(t)
	api.startSession(t)

	var list struct {
		Sessions []server.SessionBody `json:"sessions"`
	}
	w := api.do(t, http.MethodGet, "/api/v1/sessions", owner, nil, &list)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list.Sessions, 2)

	w = api.do(t, http.MethodGet, "/api/v1/sessions?limit=1", owner, nil, &list)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list.Sessions, 1)

	var sess server.SessionBody
	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+first, owner, nil, &sess)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", sess.Status)
	assert.Equal(t, "Be supportive", sess.SystemPrompt)
	assert.Nil(t, sess.EndedAt)

	w = api.do(t, http.MethodGet, "/api/v1/sessions", "someone-else", nil, &list)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, list.Sessions)
}

func TestRoutes_Errors(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)

	tests := []struct {
		name   string
		method string
		path   string
		as     string
		body   any
		status int
	}{
		{
			name:   "blank prompt",
			method: http.MethodPost, path: "/api/v1/sessions", as: owner,
			body:   map[string]any{"system_prompt": "   "},
			status: http.StatusBadRequest,
		},
		{
			name:   "empty prompt fails schema",
			method: http.MethodPost, path: "/api/v1/sessions", as: owner,
			body:   map[string]any{"system_prompt": ""},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown session",
			method: http.MethodGet, path: "/api/v1/sessions/missing", as: owner,
			status: http.StatusNotFound,
		},
		{
			name:   "other owner",
			method: http.MethodPost, path: "/api/v1/sessions/" + id + "/turns", as: "someone-else",
			body:   map[string]any{"text": "hi"},
			status: http.StatusNotFound,
		},
		{
			name:   "empty turn",
			method: http.MethodPost, path: "/api/v1/sessions/" + id + "/turns", as: owner,
			body:   map[string]any{"text": "  "},
			status: http.StatusBadRequest,
		},
		{
			name:   "audio without mime type",
			method: http.MethodPost, path: "/api/v1/sessions/" + id + "/turns", as: owner,
			body:   map[string]any{"audio": recording},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown audio",
			method: http.MethodGet, path: "/api/v1/audio/mem:00000000-0000-0000-0000-000000000000.wav", as: owner,
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, tt.method, tt.path, tt.as, tt.body, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRoutes_OversizedRecording(t *testing.T) {
	api := newTestAPI(t, func(cfg *server.Config) {
		cfg.MaxAudioBytes = 1024
	})
	id := api.startSession(t)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner,
		map[string]any{"audio": make([]byte, 2048), "mime_type": "audio/wav"}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}

func TestRoutes_TurnAfterEnd(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", owner, map[string]any{"summarize": false}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner, map[string]any{"text": "hello?"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "agent.session.turn.inactive", decodeProblem(t, w).value("code"))

	// Ending again returns the recorded outcome.
	var end server.EndBody
	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", owner, map[string]any{"summarize": true}, &end)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, end.Summary)
}

func TestRoutes_GenerationFailureReportsUserMessage(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)
	api.gen.fail(errors.New("model overloaded"))

	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner, map[string]any{"text": "hello"}, nil)
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	p := decodeProblem(t, w)
	assert.Equal(t, "service.generate.upstream.failure", p.value("code"))
	userMessageID, _ := p.value("user_message_id").(string)
	require.NotEmpty(t, userMessageID)

	var msgs struct {
		Messages []server.MessageBody `json:"messages"`
	}
	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/messages", owner, nil, &msgs)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, userMessageID, msgs.Messages[0].ID)
}

func TestRoutes_SummarizationFailureDegrades(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)
	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner, map[string]any{"text": "hello"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	api.gen.fail(errors.New("model overloaded"))

	var end server.EndBody
	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", owner, map[string]any{"summarize": true}, &end)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, end.SummarizationDegraded)
	assert.Equal(t, "ended", end.Session.Status)
}

func TestRoutes_Journals(t *testing.T) {
	api := newTestAPI(t)

	var j server.JournalBody
	w := api.do(t, http.MethodPost, "/api/v1/journals", owner,
		map[string]any{"title": "Tuesday", "content": "Walked by the sea.", "tags": []string{"calm"}}, &j)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "entry", j.Kind)
	assert.Equal(t, []string{"calm"}, j.Tags)

	w = api.do(t, http.MethodPut, "/api/v1/journals/"+j.ID, owner,
		map[string]any{"title": "Tue", "content": "Walked by the sea at dusk."}, &j)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Walked by the sea at dusk.", j.Content)

	var turn server.TurnBody
	w = api.do(t, http.MethodPost, "/api/v1/journals/"+j.ID+"/reply", owner, nil, &turn)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, turn.UserMessage)
	assert.Equal(t, replyText, turn.AgentMessage.Text)
	assert.NotEmpty(t, turn.AgentMessage.AudioLocator)

	var replies struct {
		Messages []server.MessageBody `json:"messages"`
	}
	w = api.do(t, http.MethodGet, "/api/v1/journals/"+j.ID+"/replies", owner, nil, &replies)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, replies.Messages, 1)

	w = api.do(t, http.MethodGet, "/api/v1/journals/"+j.ID, "someone-else", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/journals", owner, map[string]any{"content": ""}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(t, http.MethodDelete, "/api/v1/journals/"+j.ID, owner, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/journals/"+j.ID, owner, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_EndRecord(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)
	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner, map[string]any{"text": "typed"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/end", owner, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "active sessions have no end record")

	var end server.EndBody
	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", owner, map[string]any{"summarize": true}, &end)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec server.EndRecordBody
	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/end", owner, nil, &rec)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, id, rec.SessionID)
	assert.Equal(t, end.Summary, rec.Summary)
	assert.Equal(t, end.Notes, rec.Notes)
	assert.Equal(t, end.NotesJournalID, rec.NotesJournalID)
	assert.False(t, rec.SummarizationDegraded)
	require.NotNil(t, end.Session.EndedAt)
	assert.True(t, end.Session.EndedAt.Equal(rec.EndedAt))

	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/end", "someone-else", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_EditAndDeleteMessages(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)

	var turn server.TurnBody
	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner,
		map[string]any{"audio": recording, "mime_type": "audio/wav"}, &turn)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	userID := turn.UserMessage.ID

	w = api.do(t, http.MethodPut, "/api/v1/messages/"+userID, "someone-else", map[string]any{"text": "hijacked"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(t, http.MethodDelete, "/api/v1/messages/"+userID, "someone-else", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPut, "/api/v1/messages/"+userID, owner, map[string]any{"text": "   "}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var edited server.MessageBody
	w = api.do(t, http.MethodPut, "/api/v1/messages/"+userID, owner, map[string]any{"text": "I had a long day"}, &edited)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "I had a long day", edited.Text)
	assert.Equal(t, turn.UserMessage.AudioLocator, edited.AudioLocator, "audio is kept")

	w = api.do(t, http.MethodDelete, "/api/v1/messages/"+turn.AgentMessage.ID, owner, nil, nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	w = api.do(t, http.MethodDelete, "/api/v1/messages/"+turn.AgentMessage.ID, owner, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var msgs struct {
		Messages []server.MessageBody `json:"messages"`
	}
	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/messages", owner, nil, &msgs)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, msgs.Messages, 1)
	assert.Equal(t, userID, msgs.Messages[0].ID)
	assert.Equal(t, "I had a long day", msgs.Messages[0].Text)
}

func TestRoutes_AudioLocatorGrantsAccess(t *testing.T) {
	api := newTestAPI(t)
	id := api.startSession(t)

	var turn server.TurnBody
	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/turns", owner,
		map[string]any{"audio": recording, "mime_type": "audio/wav"}, &turn)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	loc := turn.UserMessage.AudioLocator
	require.NotEmpty(t, loc)

	w = api.do(t, http.MethodGet, "/api/v1/audio/"+loc, "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Whoever was handed the locator may read it.
	w = api.do(t, http.MethodGet, "/api/v1/audio/"+loc, "shared-with", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/audio/mem:00000000-0000-0000-0000-000000000000.wav", owner, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
