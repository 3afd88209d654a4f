// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	wrenerr "github.com/sigil-dev/wren/pkg/errors"
)

// Lane runs the turns and the end of one session one at a time, in the
// order they were submitted. It is a FIFO lock: each Submit takes a ticket,
// the head ticket runs, and leaving hands the lane to the next ticket.
// Sessions each have their own Lane, so different sessions run in parallel.
type Lane struct {
	sessionID string

	mu      sync.Mutex
	tickets []chan struct{} // tickets[0] holds the lane
	closed  bool
	drained chan struct{} // closed once the lane is closed and empty
	done    bool          // drained has been closed
}

// NewLane returns an open, empty lane for sessionID.
func NewLane(sessionID string) *Lane {
	return &Lane{sessionID: sessionID, drained: make(chan struct{})}
}

// Submit waits for the lane, runs fn, and returns its error. fn does not run
// when ctx ends first; ctx.Err() is returned instead. A panic in fn is
// recovered and reported as CodeAgentLanePanic.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ticket, err := l.take()
	if err != nil {
		return err
	}
	defer l.leave(ticket)

	select {
	case <-ticket:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.run(ctx, fn)
}

func (l *Lane) take() (chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, wrenerr.New(wrenerr.CodeAgentLaneClosed, "lane is closed",
			wrenerr.FieldSessionID(l.sessionID))
	}
	ticket := make(chan struct{})
	l.tickets = append(l.tickets, ticket)
	if len(l.tickets) == 1 {
		close(ticket)
	}
	return ticket, nil
}

// leave drops ticket from the queue, passing the lane on when ticket held it.
func (l *Lane) leave(ticket chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := slices.Index(l.tickets, ticket)
	if i < 0 {
		return
	}
	l.tickets = slices.Delete(l.tickets, i, i+1)
	if i == 0 && len(l.tickets) > 0 {
		close(l.tickets[0])
	}
	l.signalDrainedLocked()
}

func (l *Lane) signalDrainedLocked() {
	if l.closed && len(l.tickets) == 0 && !l.done {
		close(l.drained)
		l.done = true
	}
}

func (l *Lane) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session lane panic recovered",
				"session_id", l.sessionID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = wrenerr.Errorf(wrenerr.CodeAgentLanePanic, "worker panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Close refuses new work and waits for queued work to finish. It may be
// called more than once, but not from work running on the lane.
func (l *Lane) Close() {
	l.mu.Lock()
	l.closed = true
	l.signalDrainedLocked()
	l.mu.Unlock()
	<-l.drained
}

// LanePool hands out one Lane per session ID.
type LanePool struct {
	mu    sync.Mutex
	lanes map[string]*Lane
}

func NewLanePool() *LanePool {
	return &LanePool{lanes: make(map[string]*Lane)}
}

// Get returns the session's lane, creating it on first use.
func (p *LanePool) Get(sessionID string) *Lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.lanes[sessionID]
	if !ok {
		l = NewLane(sessionID)
		p.lanes[sessionID] = l
	}
	return l
}

// Len reports how many sessions currently hold a lane.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Release forgets the lane of an ended session and closes it. Work already
// queued still runs; later submitters on the old lane get CodeAgentLaneClosed.
func (p *LanePool) Release(sessionID string) {
	p.mu.Lock()
	l := p.lanes[sessionID]
	delete(p.lanes, sessionID)
	p.mu.Unlock()

	if l != nil {
		l.Close()
	}
}

// Close closes every lane.
func (p *LanePool) Close() {
	p.mu.Lock()
	lanes := p.lanes
	p.lanes = make(map[string]*Lane)
	p.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}
