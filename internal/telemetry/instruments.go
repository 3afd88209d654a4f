// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Turn outcomes recorded by RecordTurn.
const (
	OutcomeOK                  = "ok"
	OutcomeTranscriptionFailed = "transcription_failed"
	OutcomeGenerationFailed    = "generation_failed"
	OutcomeRejected            = "rejected"
	OutcomeFailed              = "failed"
)

// Degradation kinds recorded by RecordDegraded.
const (
	DegradedSynthesis     = "synthesis"
	DegradedSummarization = "summarization"
)

// Pipeline stages recorded by RecordStage.
const (
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
	StageSummarize  = "summarize"
)

var (
	attrOutcome    = attribute.Key("wren.turn.outcome")
	attrDegraded   = attribute.Key("wren.degraded.kind")
	attrStage      = attribute.Key("wren.stage")
	attrStageError = attribute.Key("wren.stage.error")
	attrSummarized = attribute.Key("wren.session.summarized")
)

// Instruments records engine metrics. A nil *Instruments is valid and
// records nothing.
type Instruments struct {
	turns    metric.Int64Counter
	degraded metric.Int64Counter
	ends     metric.Int64Counter
	stages   metric.Float64Histogram
}

// NewInstruments creates the engine instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	turns, err := meter.Int64Counter("wren.turns",
		metric.WithDescription("Turns processed, by outcome."))
	if err != nil {
		return nil, err
	}
	degraded, err := meter.Int64Counter("wren.degraded",
		metric.WithDescription("Results returned without an optional enhancement."))
	if err != nil {
		return nil, err
	}
	ends, err := meter.Int64Counter("wren.sessions.ended",
		metric.WithDescription("Sessions ended."))
	if err != nil {
		return nil, err
	}
	stages, err := meter.Float64Histogram("wren.stage.duration",
		metric.WithDescription("External service call latency."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Instruments{turns: turns, degraded: degraded, ends: ends, stages: stages}, nil
}

func (i *Instruments) RecordTurn(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.turns.Add(ctx, 1, metric.WithAttributes(attrOutcome.String(outcome)))
}

func (i *Instruments) RecordDegraded(ctx context.Context, kind string) {
	if i == nil {
		return
	}
	i.degraded.Add(ctx, 1, metric.WithAttributes(attrDegraded.String(kind)))
}

func (i *Instruments) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	if i == nil {
		return
	}
	i.stages.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attrStage.String(stage), attrStageError.Bool(err != nil)))
}

func (i *Instruments) RecordEnd(ctx context.Context, summarized, degraded bool) {
	if i == nil {
		return
	}
	i.ends.Add(ctx, 1, metric.WithAttributes(attrSummarized.Bool(summarized)))
	if degraded {
		i.RecordDegraded(ctx, DegradedSummarization)
	}
}
