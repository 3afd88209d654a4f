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

	"github.com/sigil-dev/wren/internal/audio"
	"github.com/sigil-dev/wren/internal/store"
	"github.com/sigil-dev/wren/internal/telemetry"
	"github.com/sigil-dev/wren/internal/voice/stt"
	"github.com/sigil-dev/wren/internal/voice/tts"
	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// TurnInput is either recorded audio with its MIME type, or text that is
// already known. Audio wins when both are set.
type TurnInput struct {
	Audio    []byte
	MIMEType string
	Text     string
}

func (in TurnInput) hasAudio() bool { return len(in.Audio) > 0 }

// TurnResult is the outcome of one turn. AgentMessage.AudioLocator is empty
// when synthesis degraded.
type TurnResult struct {
	UserMessage       *store.Message
	AgentMessage      *store.Message
	SynthesisDegraded bool
}

// OrchestratorHooks provides optional test hooks fired after each stage.
type OrchestratorHooks struct {
	OnTranscribed    func()
	OnUserPersisted  func()
	OnGenerated      func()
	OnSynthesized    func()
	OnAgentPersisted func()
}

// OrchestratorConfig holds dependencies for the TurnOrchestrator.
type OrchestratorConfig struct {
	Sessions    store.SessionStore
	Journals    store.JournalStore
	Audio       audio.Store
	Transcriber stt.Transcriber
	Generator   ReplyGenerator
	Synthesizer tts.Synthesizer
	Context     ContextBuilder
	// Voice is passed to the synthesizer; empty uses its default voice.
	Voice       string
	Tracer      trace.Tracer
	Instruments *telemetry.Instruments
	Hooks       *OrchestratorHooks
	Now         func() time.Time
}

// TurnOrchestrator drives one conversational turn through transcription,
// context building, generation and synthesis, persisting the user message
// before the reply is requested.
type TurnOrchestrator struct {
	sessions    store.SessionStore
	journals    store.JournalStore
	audio       audio.Store
	transcriber stt.Transcriber
	generator   ReplyGenerator
	synthesizer tts.Synthesizer
	context     ContextBuilder
	voice       string
	tracer      trace.Tracer
	instruments *telemetry.Instruments
	hooks       *OrchestratorHooks
	now         func() time.Time
}

// NewTurnOrchestrator creates a TurnOrchestrator with the given dependencies.
func NewTurnOrchestrator(cfg OrchestratorConfig) (*TurnOrchestrator, error) {
	var missing []string
	if cfg.Sessions == nil {
		missing = append(missing, "Sessions")
	}
	if cfg.Audio == nil {
		missing = append(missing, "Audio")
	}
	if cfg.Transcriber == nil {
		missing = append(missing, "Transcriber")
	}
	if cfg.Generator == nil {
		missing = append(missing, "Generator")
	}
	if cfg.Synthesizer == nil {
		missing = append(missing, "Synthesizer")
	}
	if len(missing) > 0 {
		return nil, wrenerr.New(wrenerr.CodeConfigValidateInvalidValue,
			"orchestrator: missing dependencies: "+strings.Join(missing, ", "))
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(telemetry.InstrumentationName)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TurnOrchestrator{
		sessions:    cfg.Sessions,
		journals:    cfg.Journals,
		audio:       cfg.Audio,
		transcriber: cfg.Transcriber,
		generator:   cfg.Generator,
		synthesizer: cfg.Synthesizer,
		context:     cfg.Context,
		voice:       cfg.Voice,
		tracer:      tracer,
		instruments: cfg.Instruments,
		hooks:       cfg.Hooks,
		now:         now,
	}, nil
}

// ProcessTurn runs one turn for an active session. It is not idempotent:
// every successful call appends a user and an agent message.
//
// Failures are reported in three shapes. A transcription error means nothing
// was persisted. A generation error carries the persisted user message id in
// the "user_message_id" field. A degraded synthesis is a successful result
// with SynthesisDegraded set and no agent audio.
func (o *TurnOrchestrator) ProcessTurn(ctx context.Context, session *store.Session, in TurnInput) (*TurnResult, error) {
	ctx, span := o.tracer.Start(ctx, "wren.turn", trace.WithAttributes(
		attribute.String("wren.session_id", session.ID),
		attribute.Bool("wren.turn.audio", in.hasAudio()),
	))
	res, err := o.processTurn(ctx, session, in)
	telemetry.EndSpan(span, err)
	o.instruments.RecordTurn(ctx, turnOutcome(err))
	return res, err
}

func (o *TurnOrchestrator) processTurn(ctx context.Context, session *store.Session, in TurnInput) (*TurnResult, error) {
	// Step 1: TRANSCRIBE the audio, or take the text as given.
	userText, err := o.userText(ctx, session.ID, in)
	if err != nil {
		return nil, err
	}
	o.fireHook(hookTranscribed)

	// History is read before the user message is appended so the context
	// shows the new utterance exactly once.
	history, err := o.sessions.ListMessages(ctx, store.SessionAttachment(session.ID), store.ListOpts{})
	if err != nil {
		return nil, err
	}

	// Step 2: PERSIST USER. Later failures never lose the utterance.
	userMsg := &store.Message{
		ID:         uuid.New().String(),
		OwnerID:    session.OwnerID,
		Attachment: store.SessionAttachment(session.ID),
		Role:       store.MessageRoleUser,
		Text:       userText,
		CreatedAt:  o.now(),
	}
	if in.hasAudio() {
		o.attachUserAudio(ctx, userMsg, in)
	}
	if err := o.sessions.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	o.fireHook(hookUserPersisted)

	// Steps 3-6: CONTEXT, GENERATE, SYNTHESIZE, PERSIST AGENT.
	req := GenerateRequest{
		Context:      o.context.Build(session.SystemPrompt, history, userText),
		Mode:         ModeReply,
		SystemPrompt: session.SystemPrompt,
	}
	agentMsg, degraded, err := o.respond(ctx, session.OwnerID, store.SessionAttachment(session.ID), req, userMsg.ID)
	if err != nil {
		return nil, err
	}

	return &TurnResult{
		UserMessage:       userMsg,
		AgentMessage:      agentMsg,
		SynthesisDegraded: degraded,
	}, nil
}

// ReplyToJournal generates, voices and persists one agent reply attached to
// the journal. Earlier replies to the same journal are part of the context.
func (o *TurnOrchestrator) ReplyToJournal(ctx context.Context, ownerID, journalID string) (*TurnResult, error) {
	ctx, span := o.tracer.Start(ctx, "wren.journal.reply", trace.WithAttributes(
		attribute.String("wren.journal_id", journalID),
	))
	res, err := o.replyToJournal(ctx, ownerID, journalID)
	telemetry.EndSpan(span, err)
	return res, err
}

func (o *TurnOrchestrator) replyToJournal(ctx context.Context, ownerID, journalID string) (*TurnResult, error) {
	if o.journals == nil {
		return nil, wrenerr.New(wrenerr.CodeConfigValidateInvalidValue, "orchestrator: no journal store configured")
	}
	journal, err := loadOwnedJournal(ctx, o.journals, ownerID, journalID)
	if err != nil {
		return nil, err
	}

	att := store.JournalAttachment(journal.ID)
	attached, err := o.sessions.ListMessages(ctx, att, store.ListOpts{})
	if err != nil {
		return nil, err
	}
	var prior []*store.Message
	for _, m := range attached {
		if m.Role == store.MessageRoleAgent {
			prior = append(prior, m)
		}
	}

	req := GenerateRequest{
		Context: o.context.JournalContext(journal.Content, prior),
		Mode:    ModeReply,
	}
	agentMsg, degraded, err := o.respond(ctx, ownerID, att, req, "")
	if err != nil {
		return nil, err
	}
	return &TurnResult{AgentMessage: agentMsg, SynthesisDegraded: degraded}, nil
}

// respond generates a reply, voices it and persists the agent message.
func (o *TurnOrchestrator) respond(
	ctx context.Context,
	ownerID string,
	att store.Attachment,
	req GenerateRequest,
	userMessageID string,
) (*store.Message, bool, error) {
	reply, err := o.generate(ctx, req, userMessageID)
	if err != nil {
		return nil, false, err
	}
	o.fireHook(hookGenerated)

	agentMsg := &store.Message{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Attachment: att,
		Role:       store.MessageRoleAgent,
		Text:       reply,
	}
	degraded := !o.voiceReply(ctx, agentMsg)
	if degraded {
		o.instruments.RecordDegraded(ctx, telemetry.DegradedSynthesis)
	}
	o.fireHook(hookSynthesized)

	agentMsg.CreatedAt = o.now()
	if err := o.sessions.AppendMessage(ctx, agentMsg); err != nil {
		if userMessageID != "" {
			err = wrenerr.With(err, wrenerr.Field("user_message_id", userMessageID))
		}
		return nil, false, err
	}
	o.fireHook(hookAgentPersisted)

	return agentMsg, degraded, nil
}

func (o *TurnOrchestrator) userText(ctx context.Context, sessionID string, in TurnInput) (string, error) {
	if !in.hasAudio() {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return "", wrenerr.New(wrenerr.CodeSessionTurnInvalidInput,
				"turn requires audio or text", wrenerr.FieldSessionID(sessionID))
		}
		return text, nil
	}

	start := time.Now()
	tr, err := o.transcriber.Transcribe(ctx, in.Audio, in.MIMEType)
	o.instruments.RecordStage(ctx, telemetry.StageTranscribe, time.Since(start), err)
	if err != nil {
		if wrenerr.IsTranscriptionError(err) {
			return "", err
		}
		return "", wrenerr.Reclassify(err, wrenerr.CodeServiceTranscribeUpstreamFailure,
			"transcribing turn audio", wrenerr.FieldSessionID(sessionID))
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return "", wrenerr.New(wrenerr.CodeServiceTranscribeUpstreamFailure,
			"transcript is empty", wrenerr.FieldSessionID(sessionID))
	}
	return text, nil
}

// attachUserAudio stores the recording and records its locator on msg. A
// storage failure keeps the turn going without the recording.
func (o *TurnOrchestrator) attachUserAudio(ctx context.Context, msg *store.Message, in TurnInput) {
	loc, err := o.audio.Put(ctx, in.Audio, audio.Hint{MIMEType: in.MIMEType})
	if err != nil {
		slog.Warn("storing user audio failed",
			"message_id", msg.ID,
			"error", err)
		return
	}
	msg.AudioLocator = loc.String()
	msg.AudioFormat = strings.TrimPrefix(audio.ExtensionFor(in.MIMEType), ".")
}

func (o *TurnOrchestrator) generate(ctx context.Context, req GenerateRequest, userMessageID string) (string, error) {
	var fields []wrenerr.Attr
	if userMessageID != "" {
		fields = append(fields, wrenerr.Field("user_message_id", userMessageID))
	}

	start := time.Now()
	reply, err := o.generator.Generate(ctx, req)
	o.instruments.RecordStage(ctx, telemetry.StageGenerate, time.Since(start), err)
	if err != nil {
		return "", wrenerr.Reclassify(err, wrenerr.CodeServiceGenerateUpstreamFailure,
			"generating reply", fields...)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", wrenerr.New(wrenerr.CodeServiceGenerateUpstreamFailure, "reply is empty", fields...)
	}
	return reply, nil
}

// voiceReply synthesizes msg.Text and stores the audio, filling the audio
// fields of msg. It reports false when the reply must go out as text only.
func (o *TurnOrchestrator) voiceReply(ctx context.Context, msg *store.Message) bool {
	start := time.Now()
	syn, err := o.synthesizer.Synthesize(ctx, msg.Text, o.voice)
	o.instruments.RecordStage(ctx, telemetry.StageSynthesize, time.Since(start), err)
	if err != nil {
		slog.Warn("synthesis degraded",
			"message_id", msg.ID,
			"synthesizer", o.synthesizer.Name(),
			"error", err)
		return false
	}

	loc, err := o.audio.Put(ctx, syn.Audio, audio.Hint{MIMEType: syn.MIMEType})
	if err != nil {
		slog.Warn("synthesis degraded: storing reply audio failed",
			"message_id", msg.ID,
			"error", err)
		return false
	}

	msg.AudioLocator = loc.String()
	msg.AudioDuration = syn.Duration
	msg.AudioFormat = syn.Format
	msg.Voice = syn.Voice
	return true
}

func turnOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeOK
	case wrenerr.IsTranscriptionError(err):
		return telemetry.OutcomeTranscriptionFailed
	case wrenerr.IsGenerationError(err):
		return telemetry.OutcomeGenerationFailed
	case wrenerr.IsInvalidInput(err), wrenerr.IsInactive(err), wrenerr.IsNotFound(err):
		return telemetry.OutcomeRejected
	default:
		return telemetry.OutcomeFailed
	}
}

// hookKind identifies which hook to fire.
type hookKind int

const (
	hookTranscribed hookKind = iota
	hookUserPersisted
	hookGenerated
	hookSynthesized
	hookAgentPersisted
)

func (o *TurnOrchestrator) fireHook(kind hookKind) {
	if o.hooks == nil {
		return
	}

	var fn func()
	switch kind {
	case hookTranscribed:
		fn = o.hooks.OnTranscribed
	case hookUserPersisted:
		fn = o.hooks.OnUserPersisted
	case hookGenerated:
		fn = o.hooks.OnGenerated
	case hookSynthesized:
		fn = o.hooks.OnSynthesized
	case hookAgentPersisted:
		fn = o.hooks.OnAgentPersisted
	}

	if fn != nil {
		fn()
	}
}

func loadOwnedJournal(ctx context.Context, journals store.JournalStore, ownerID, journalID string) (*store.Journal, error) {
	journal, err := journals.GetJournal(ctx, journalID)
	if err != nil {
		if wrenerr.IsNotFound(err) {
			return nil, wrenerr.New(wrenerr.CodeJournalGetNotFound, "journal not found",
				wrenerr.FieldJournalID(journalID))
		}
		return nil, err
	}
	// A journal owned by someone else is indistinguishable from a missing one.
	if journal.OwnerID != ownerID {
		return nil, wrenerr.New(wrenerr.CodeJournalGetNotFound, "journal not found",
			wrenerr.FieldJournalID(journalID))
	}
	return journal, nil
}
