// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sync"
)

// PhotoPlaceholder stands in for a photo-only turn in text history.
const PhotoPlaceholder = "[photo]"

// =============================================================================
// STORE TYPE
// =============================================================================

// Store is the ordered conversation for one session. Messages are only ever
// appended; the status of a stored message is the only mutable field.
// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages []*Message
	index    map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		messages: make([]*Message, 0),
		index:    make(map[string]int),
	}
}

// Append adds msg at the end of the conversation. Appending a message whose
// id is already stored is an error.
func (s *Store) Append(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("append: nil message")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[msg.ID]; exists {
		return fmt.Errorf("append %s: duplicate id", msg.ID)
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg.clone())
	return nil
}

// Messages returns a snapshot of the conversation in insertion order.
func (s *Store) Messages() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.messages[i].clone(), true
}

// SetStatus moves the message with the given id to status. Only
// sending -> sent and sending -> failed are accepted.
func (s *Store) SetStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("set status %s: %w", id, ErrMessageNotFound)
	}
	msg := s.messages[i]
	if !canTransition(msg.Status, status) {
		return fmt.Errorf("set status %s: %s -> %s: %w", id, msg.Status, status, ErrInvalidTransition)
	}
	msg.Status = status
	return nil
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastUser returns a copy of the most recent user message.
func (s *Store) LastUser() (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].IsFromUser {
			return s.messages[i].clone(), true
		}
	}
	return nil, false
}

// SendingCount returns the number of messages still in the sending state.
func (s *Store) SendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.messages {
		if m.Status.Kind == StatusSending {
			n++
		}
	}
	return n
}

// =============================================================================
// TEXT HISTORY
// =============================================================================

// HistoryEntry is a text-only turn sent to a chat provider as context.
type HistoryEntry struct {
	Role Role
	Text string
}

// NewHistoryEntry projects msg to a text-only entry. Images are dropped; a
// photo-only turn becomes PhotoPlaceholder.
func NewHistoryEntry(msg *Message) HistoryEntry {
	text := msg.Text
	if text == "" && msg.HasImages() {
		text = PhotoPlaceholder
	}
	return HistoryEntry{Role: msg.Role(), Text: text}
}
