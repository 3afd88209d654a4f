// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/sigil-dev/wren/internal/agent"
	"github.com/sigil-dev/wren/internal/audio"
	"github.com/sigil-dev/wren/internal/provider"
	"github.com/sigil-dev/wren/internal/store"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// SessionService is the session lifecycle as the API uses it.
// *agent.Manager implements it.
type SessionService interface {
	Start(ctx context.Context, ownerID, systemPrompt string) (*store.Session, error)
	Turn(ctx context.Context, sessionID, ownerID string, in agent.TurnInput) (*agent.TurnResult, error)
	End(ctx context.Context, sessionID, ownerID string, summarize bool) (*agent.EndResult, error)
	Get(ctx context.Context, sessionID, ownerID string) (*store.Session, error)
	List(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Session, error)
	Messages(ctx context.Context, sessionID, ownerID string) ([]*store.Message, error)
	EndRecord(ctx context.Context, sessionID, ownerID string) (*store.EndRecord, error)
	UpdateMessage(ctx context.Context, ownerID, messageID, text string) (*store.Message, error)
	DeleteMessage(ctx context.Context, ownerID, messageID string) error
}

// JournalService manages journals. *agent.JournalService implements it.
type JournalService interface {
	Create(ctx context.Context, ownerID string, in agent.JournalInput) (*store.Journal, error)
	Get(ctx context.Context, ownerID, journalID string) (*store.Journal, error)
	List(ctx context.Context, ownerID string, opts store.ListOpts) ([]*store.Journal, error)
	Update(ctx context.Context, ownerID, journalID string, in agent.JournalInput) (*store.Journal, error)
	Delete(ctx context.Context, ownerID, journalID string) error
	Reply(ctx context.Context, ownerID, journalID string) (*agent.TurnResult, error)
	Replies(ctx context.Context, ownerID, journalID string) ([]*store.Message, error)
}

// ProviderHealth reports the health of the configured model providers.
// *provider.Registry implements it.
type ProviderHealth interface {
	Health() map[string]provider.HealthMetrics
}

// Services holds the dependencies of the API routes.
type Services struct {
	sessions  SessionService
	journals  JournalService
	audio     audio.Store
	providers ProviderHealth
}

// NewServices validates and bundles route dependencies. providers may be nil.
func NewServices(sessions SessionService, journals JournalService, blobs audio.Store, providers ProviderHealth) (*Services, error) {
	if sessions == nil {
		return nil, wrenerr.New(wrenerr.CodeServerConfigInvalid, "session service is required")
	}
	if journals == nil {
		return nil, wrenerr.New(wrenerr.CodeServerConfigInvalid, "journal service is required")
	}
	if blobs == nil {
		return nil, wrenerr.New(wrenerr.CodeServerConfigInvalid, "audio store is required")
	}
	return &Services{
		sessions:  sessions,
		journals:  journals,
		audio:     blobs,
		providers: providers,
	}, nil
}
