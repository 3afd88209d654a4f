// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package storetest holds the behaviour every store backend must share.
// Backend test packages call Run with a constructor for a fresh store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Run exercises a backend. newStore must return an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"SessionCRUD", testSessionCRUD},
		{"EndSessionOnce", testEndSessionOnce},
		{"EndSessionConcurrent", testEndSessionConcurrent},
		{"MessageOrdering", testMessageOrdering},
		{"SubSecondOrdering", testSubSecondOrdering},
		{"ConcurrentAppends", testConcurrentAppends},
		{"MessageEditAndDelete", testMessageEditAndDelete},
		{"DeleteSessionCascades", testDeleteSessionCascades},
		{"JournalCRUD", testJournalCRUD},
		{"EndRecords", testEndRecords},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

// now is truncated to microseconds, the coarsest precision of any backend.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newSession(owner string, created time.Time) *store.Session {
	return &store.Session{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		SystemPrompt: "Be supportive",
		Status:       store.SessionStatusActive,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func newMessage(owner string, att store.Attachment, role store.MessageRole, text string, at time.Time) *store.Message {
	return &store.Message{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Attachment: att,
		Role:       role,
		Text:       text,
		CreatedAt:  at,
	}
}

func testSessionCRUD(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	base := now()

	first := newSession("u-1", base)
	second := newSession("u-1", base.Add(time.Second))
	other := newSession("u-2", base)
	for _, s := range []*store.Session{first, second, other} {
		require.NoError(t, ss.CreateSession(ctx, s))
	}

	got, err := ss.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.OwnerID, got.OwnerID)
	assert.Equal(t, "Be supportive", got.SystemPrompt)
	assert.True(t, got.Active())
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt))
	assert.True(t, got.EndedAt.IsZero())

	list, err := ss.ListSessions(ctx, "u-1", store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	limited, err := ss.ListSessions(ctx, "u-1", store.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, first.ID, limited[0].ID)

	_, err = ss.GetSession(ctx, "missing")
	require.Error(t, err)
	assert.True(t, wrenerr.IsNotFound(err))

	assert.Error(t, ss.CreateSession(ctx, &store.Session{ID: "bad"}))
}

func testEndSessionOnce(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	sess := newSession("u-1", now())
	require.NoError(t, ss.CreateSession(ctx, sess))

	endedAt := now().Add(time.Minute)
	ended, changed, err := ss.EndSession(ctx, sess.ID, endedAt)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, ended.Active())
	assert.True(t, ended.EndedAt.Equal(endedAt))

	again, changed, err := ss.EndSession(ctx, sess.ID, endedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, again.EndedAt.Equal(endedAt), "second end keeps the first timestamp")

	_, _, err = ss.EndSession(ctx, "missing", endedAt)
	assert.True(t, wrenerr.IsNotFound(err))
}

func testEndSessionConcurrent(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	sess := newSession("u-1", now())
	require.NoError(t, ss.CreateSession(ctx, sess))

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := ss.EndSession(ctx, sess.ID, now().Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, changes)
}

func testMessageOrdering(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	sess := newSession("u-1", now())
	require.NoError(t, ss.CreateSession(ctx, sess))
	att := store.SessionAttachment(sess.ID)

	tie := now()
	later := newMessage("u-1", att, store.MessageRoleAgent, "later", tie.Add(time.Second))
	firstTie := newMessage("u-1", att, store.MessageRoleUser, "first tie", tie)
	secondTie := newMessage("u-1", att, store.MessageRoleUser, "second tie", tie)
	secondTie.AudioLocator = "mem:abc.wav"
	secondTie.AudioDuration = 1500 * time.Millisecond
	secondTie.AudioFormat = "wav"
	secondTie.Voice = "Kore"

	for _, m := range []*store.Message{later, firstTie, secondTie} {
		require.NoError(t, ss.AppendMessage(ctx, m))
	}
	assert.Less(t, firstTie.Seq, secondTie.Seq)

	msgs, err := ss.ListMessages(ctx, att, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first tie", "second tie", "later"}, []string{msgs[0].Text, msgs[1].Text, msgs[2].Text})
	assert.Equal(t, "mem:abc.wav", msgs[1].AudioLocator)
	assert.Equal(t, 1500*time.Millisecond, msgs[1].AudioDuration)
	assert.Equal(t, "Kore", msgs[1].Voice)
	assert.Equal(t, att, msgs[1].Attachment)
	assert.False(t, msgs[0].HasAudio())

	n, err := ss.CountMessages(ctx, att)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := ss.GetMessage(ctx, secondTie.ID)
	require.NoError(t, err)
	assert.Equal(t, secondTie.Seq, got.Seq)

	_, err = ss.ListMessages(ctx, store.NoAttachment(), store.ListOpts{})
	assert.True(t, wrenerr.IsInvalidInput(err))

	detached := newMessage("u-1", store.NoAttachment(), store.MessageRoleUser, "orphan", now())
	require.NoError(t, ss.AppendMessage(ctx, detached))
	got, err = ss.GetMessage(ctx, detached.ID)
	require.NoError(t, err)
	assert.Equal(t, store.AttachmentNone, got.Attachment.Kind())
}

func testSubSecondOrdering(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	whole := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)

	older := newSession("u-1", whole)
	newer := newSession("u-1", half)
	require.NoError(t, ss.CreateSession(ctx, older))
	require.NoError(t, ss.CreateSession(ctx, newer))

	sessions, err := ss.ListSessions(ctx, "u-1", store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, []string{newer.ID, older.ID}, []string{sessions[0].ID, sessions[1].ID})

	att := store.SessionAttachment(older.ID)
	require.NoError(t, ss.AppendMessage(ctx, newMessage("u-1", att, store.MessageRoleUser, "first", whole)))
	require.NoError(t, ss.AppendMessage(ctx, newMessage("u-1", att, store.MessageRoleAgent, "second", half)))

	msgs, err := ss.ListMessages(ctx, att, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"first", "second"}, []string{msgs[0].Text, msgs[1].Text})
	assert.True(t, msgs[0].CreatedAt.Equal(whole), "got %s", msgs[0].CreatedAt)
	assert.True(t, msgs[1].CreatedAt.Equal(half), "got %s", msgs[1].CreatedAt)

	for _, m := range []*store.Message{
		newMessage("u-1", att, store.MessageRoleUser, "third", whole.Add(2*time.Second)),
		newMessage("u-1", att, store.MessageRoleUser, "fourth", whole.Add(2*time.Second+time.Microsecond)),
	} {
		require.NoError(t, ss.AppendMessage(ctx, m))
	}
	msgs, err = ss.ListMessages(ctx, att, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "third", msgs[2].Text)
	assert.Equal(t, "fourth", msgs[3].Text)
}

func testConcurrentAppends(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	sess := newSession("u-1", now())
	require.NoError(t, ss.CreateSession(ctx, sess))
	att := store.SessionAttachment(sess.ID)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				msg := newMessage("u-1", att, store.MessageRoleUser, fmt.Sprintf("w%d-%d", w, i), now())
				assert.NoError(t, ss.AppendMessage(ctx, msg))
			}
		}()
	}
	wg.Wait()

	msgs, err := ss.ListMessages(ctx, att, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)

	seen := make(map[string]bool, len(msgs))
	for i, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate message %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			prev := msgs[i-1]
			ordered := prev.CreatedAt.Before(m.CreatedAt) || (prev.CreatedAt.Equal(m.CreatedAt) && prev.Seq < m.Seq)
			assert.True(t, ordered, "messages %d and %d out of order", i-1, i)
		}
	}
}

func testMessageEditAndDelete(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	sess := newSession("u-1", now())
	require.NoError(t, ss.CreateSession(ctx, sess))
	msg := newMessage("u-1", store.SessionAttachment(sess.ID), store.MessageRoleUser, "helo", now())
	require.NoError(t, ss.AppendMessage(ctx, msg))

	require.NoError(t, ss.UpdateMessageText(ctx, msg.ID, "hello"))
	got, err := ss.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)

	assert.True(t, wrenerr.IsInvalidInput(ss.UpdateMessageText(ctx, msg.ID, "")))
	assert.True(t, wrenerr.IsNotFound(ss.UpdateMessageText(ctx, "missing", "x")))

	require.NoError(t, ss.DeleteMessage(ctx, msg.ID))
	_, err = ss.GetMessage(ctx, msg.ID)
	assert.True(t, wrenerr.IsNotFound(err))
	assert.True(t, wrenerr.IsNotFound(ss.DeleteMessage(ctx, msg.ID)))

	n, err := ss.CountMessages(ctx, store.SessionAttachment(sess.ID))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testDeleteSessionCascades(t *testing.T, st store.Store) {
	ctx := context.Background()
	ss := st.Sessions()
	sess := newSession("u-1", now())
	require.NoError(t, ss.CreateSession(ctx, sess))
	msg := newMessage("u-1", store.SessionAttachment(sess.ID), store.MessageRoleUser, "hi", now())
	require.NoError(t, ss.AppendMessage(ctx, msg))

	require.NoError(t, ss.DeleteSession(ctx, sess.ID))
	_, err := ss.GetSession(ctx, sess.ID)
	assert.True(t, wrenerr.IsNotFound(err))
	_, err = ss.GetMessage(ctx, msg.ID)
	assert.True(t, wrenerr.IsNotFound(err))
	assert.True(t, wrenerr.IsNotFound(ss.DeleteSession(ctx, sess.ID)))
}

func testJournalCRUD(t *testing.T, st store.Store) {
	ctx := context.Background()
	js := st.Journals()
	created := now()
	j := &store.Journal{
		ID:        uuid.NewString(),
		OwnerID:   "u-1",
		Title:     "Tuesday",
		Content:   "Long day at work.",
		Tags:      []string{"work", "tired"},
		Kind:      store.JournalKindEntry,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, js.CreateJournal(ctx, j))

	got, err := js.GetJournal(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tuesday", got.Title)
	assert.Equal(t, []string{"work", "tired"}, got.Tags)
	assert.Equal(t, store.JournalKindEntry, got.Kind)

	got.Content = "Long day at work, but a good walk."
	got.Tags = []string{"work"}
	got.UpdatedAt = created.Add(time.Minute)
	require.NoError(t, js.UpdateJournal(ctx, got))

	again, err := js.GetJournal(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "Long day at work, but a good walk.", again.Content)
	assert.Equal(t, []string{"work"}, again.Tags)

	notes := &store.Journal{
		ID:              uuid.NewString(),
		OwnerID:         "u-1",
		Title:           "Session notes",
		Content:         "- rest",
		Kind:            store.JournalKindNotes,
		SourceSessionID: "s-1",
		CreatedAt:       created.Add(time.Second),
		UpdatedAt:       created.Add(time.Second),
	}
	require.NoError(t, js.CreateJournal(ctx, notes))

	list, err := js.ListJournals(ctx, "u-1", store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, notes.ID, list[0].ID)
	assert.Equal(t, "s-1", list[0].SourceSessionID)

	reply := newMessage("u-1", store.JournalAttachment(j.ID), store.MessageRoleAgent, "That sounds tiring.", now())
	require.NoError(t, st.Sessions().AppendMessage(ctx, reply))

	require.NoError(t, js.DeleteJournal(ctx, j.ID))
	_, err = js.GetJournal(ctx, j.ID)
	assert.True(t, wrenerr.IsNotFound(err))
	_, err = st.Sessions().GetMessage(ctx, reply.ID)
	assert.True(t, wrenerr.IsNotFound(err), "journal replies are removed with the journal")

	missing := *j
	missing.ID = "missing"
	assert.True(t, wrenerr.IsNotFound(js.UpdateJournal(ctx, &missing)))
}

func testEndRecords(t *testing.T, st store.Store) {
	ctx := context.Background()
	rs := st.EndRecords()

	_, err := rs.GetEndRecord(ctx, "s-1")
	assert.True(t, wrenerr.IsNotFound(err))

	endedAt := now()
	rec := &store.EndRecord{
		ID:                    uuid.NewString(),
		SessionID:             "s-1",
		OwnerID:               "u-1",
		Summary:               "Talked about work.",
		NotesJournalID:        "j-1",
		NotesContent:          "- rest",
		SummarizationDegraded: false,
		EndedAt:               endedAt,
		CreatedAt:             endedAt,
	}
	require.NoError(t, rs.PutEndRecord(ctx, rec))

	got, err := rs.GetEndRecord(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Summary, got.Summary)
	assert.Equal(t, "j-1", got.NotesJournalID)
	assert.True(t, got.EndedAt.Equal(endedAt))

	dup := *rec
	dup.ID = uuid.NewString()
	err = rs.PutEndRecord(ctx, &dup)
	require.Error(t, err)
	assert.True(t, wrenerr.IsConflict(err))
}
