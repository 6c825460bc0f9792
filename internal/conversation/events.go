// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"fmt"
	"sync"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is the orchestrator's externally visible activity.
type State int

const (
	StateIdle State = iota
	StateThinking
	StateResponding
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateThinking:
		return "thinking"
	case StateResponding:
		return "responding"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies what changed.
type EventKind int

const (
	// EventStateChanged carries the new State.
	EventStateChanged EventKind = iota
	// EventMessageAppended carries a copy of the new message.
	EventMessageAppended
	// EventMessageUpdated carries a copy of a message whose status changed.
	EventMessageUpdated
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventMessageAppended:
		return "message_appended"
	case EventMessageUpdated:
		return "message_updated"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a notification delivered to subscribers.
type Event struct {
	Kind    EventKind
	State   State
	Message *model.Message
}

// subscribers is a registry of event callbacks.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

func (s *subscribers) add(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// snapshot returns the callbacks in registration order.
func (s *subscribers) snapshot() []func(Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(Event), 0, len(s.fns))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.fns[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// eventQueue is an unbounded FIFO drained by a single dispatcher goroutine.
// Producers push while holding the orchestrator lock so the queue order is
// the order of the changes; delivery happens with no lock held.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	busy   bool
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *eventQueue) push(events ...Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, events...)
	q.cond.Broadcast()
}

// run delivers events until the queue is closed and empty.
func (q *eventQueue) run(deliver func(Event)) {
	q.mu.Lock()
	for {
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.busy = true
		q.mu.Unlock()

		deliver(ev)

		q.mu.Lock()
		q.busy = false
		if len(q.items) == 0 {
			q.cond.Broadcast()
		}
	}
}

// waitIdle blocks until every pushed event has been delivered.
func (q *eventQueue) waitIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) > 0 || q.busy {
		q.cond.Wait()
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
