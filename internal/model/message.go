// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message as seen by a chat provider.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// StatusKind is the delivery state of a message.
type StatusKind int

const (
	StatusSending StatusKind = iota
	StatusSent
	StatusFailed
)

// String returns the status name.
func (k StatusKind) String() string {
	switch k {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// Status is the delivery state of a message plus the failure reason, if any.
type Status struct {
	Kind   StatusKind
	Reason string
}

// Sending returns the initial status of an outgoing message.
func Sending() Status { return Status{Kind: StatusSending} }

// Sent returns the terminal success status.
func Sent() Status { return Status{Kind: StatusSent} }

// Failed returns the terminal failure status with the given reason.
func Failed(reason string) Status { return Status{Kind: StatusFailed, Reason: reason} }

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s.Kind == StatusSent || s.Kind == StatusFailed
}

// String returns "sending", "sent", or "failed(reason)".
func (s Status) String() string {
	if s.Kind == StatusFailed && s.Reason != "" {
		return "failed(" + s.Reason + ")"
	}
	return s.Kind.String()
}

// canTransition reports whether from -> to is allowed. Status only moves from
// sending to a terminal state.
func canTransition(from, to Status) bool {
	return from.Kind == StatusSending && to.IsTerminal()
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

var (
	// ErrEmptyMessage is returned when a user message has neither text nor images.
	ErrEmptyMessage = errors.New("message has no text and no images")

	// ErrInvalidTransition is returned when a status change would move a
	// message backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMessageNotFound is returned when no stored message has the given id.
	ErrMessageNotFound = errors.New("message not found")
)

// Message represents a single exchanged turn.
//
// Text and Images are nil when absent. Only Status changes after creation,
// and only through Store.SetStatus.
type Message struct {
	ID            string
	Text          string
	Images        [][]byte
	IsFromUser    bool
	Timestamp     time.Time
	Status        Status
	IsSearchQuery bool
}

// NewUserMessage creates an outgoing user message in the sending state.
// An empty image slice is normalized to nil; a message with no text and no
// images is rejected with ErrEmptyMessage.
func NewUserMessage(text string, images [][]byte, isSearch bool) (*Message, error) {
	if len(images) == 0 {
		images = nil
	} else {
		images = append([][]byte(nil), images...)
	}
	if text == "" && images == nil {
		return nil, ErrEmptyMessage
	}
	return &Message{
		ID:            uuid.NewString(),
		Text:          text,
		Images:        images,
		IsFromUser:    true,
		Timestamp:     time.Now(),
		Status:        Sending(),
		IsSearchQuery: isSearch,
	}, nil
}

// NewAIMessage creates a text-only reply that is already delivered.
func NewAIMessage(text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: time.Now(),
		Status:    Sent(),
	}
}

// Role returns the provider role of the message.
func (m *Message) Role() Role {
	if m.IsFromUser {
		return RoleUser
	}
	return RoleAssistant
}

// HasText reports whether the message carries text.
func (m *Message) HasText() bool {
	return m.Text != ""
}

// HasImages reports whether the message carries images.
func (m *Message) HasImages() bool {
	return len(m.Images) > 0
}

// clone returns a copy that shares image buffers but not the slice header.
func (m *Message) clone() *Message {
	c := *m
	if m.Images != nil {
		c.Images = append([][]byte(nil), m.Images...)
	}
	return &c
}
