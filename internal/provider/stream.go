// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"strings"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

const streamDepth = 64

// Emit hands one event to the consumer. It returns false once the request
// context is done, at which point the pump should return.
type Emit func(ChatEvent) bool

// Stream runs pump on its own goroutine and exposes what it emits as a chat
// stream. A nil return from pump ends the stream with Done, an error ends it
// with Error. The outcome is recorded on health unless ctx was cancelled,
// since a caller hanging up says nothing about the vendor.
func Stream(ctx context.Context, health *HealthTracker, pump func(Emit) error) <-chan ChatEvent {
	ch := make(chan ChatEvent, streamDepth)
	emit := func(ev ChatEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)
		err := pump(emit)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if health != nil {
				health.RecordFailure()
			}
			emit(ChatEvent{Type: EventTypeError, Error: err.Error()})
			return
		}
		if health != nil {
			health.RecordSuccess()
		}
		emit(ChatEvent{Type: EventTypeDone})
	}()
	return ch
}

// Collect drains a chat stream into its full text. When the stream reports
// an error the partial text is dropped and the error is returned as an
// upstream failure attributed to name. A stream that closes without a
// terminal event is taken as complete unless ctx is done.
func Collect(ctx context.Context, name string, events <-chan ChatEvent) (string, Usage, error) {
	var (
		text  strings.Builder
		usage Usage
	)
	for ev := range events {
		switch ev.Type {
		case EventTypeTextDelta:
			text.WriteString(ev.Text)
		case EventTypeUsage:
			usage.merge(ev.Usage)
		case EventTypeError:
			for range events {
			}
			return "", usage, wrenerr.New(wrenerr.CodeProviderUpstreamFailure, ev.Error,
				wrenerr.FieldProvider(name))
		}
	}
	if err := ctx.Err(); err != nil {
		return "", usage, err
	}
	return text.String(), usage, nil
}
