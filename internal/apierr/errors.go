// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierr defines the error taxonomy shared by the provider clients
// and the conversation orchestrator, and turns those errors into the short
// reason strings shown next to a failed message.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/jeranaias/rigchat/internal/offline"
)

// Kind is the coarse class of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindProtocol
	KindCancelled
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	// ErrChatNotConfigured indicates the chat provider API key is not set.
	ErrChatNotConfigured = errors.New("chat API key not configured")

	// ErrSearchNotConfigured indicates the search provider API key is not set.
	ErrSearchNotConfigured = errors.New("search API key not configured")

	// ErrEmptyCompletion indicates a 2xx response carried no completion text.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrMalformedResponse indicates a 2xx response body could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrCancelled indicates the send was cancelled by the user or superseded.
	ErrCancelled = errors.New("cancelled")
)

// =============================================================================
// TRANSPORT ERRORS
// =============================================================================

// Code identifies a transport failure.
type Code string

const (
	CodeTimeout   Code = "timeout"
	CodeOffline   Code = "offline"
	CodeCancelled Code = "cancelled"
	CodeNetwork   Code = "network"
)

// TransportError wraps a failure that happened before an HTTP response arrived.
type TransportError struct {
	Code Code
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s]: %v", e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports cancelled transport errors as ErrCancelled.
func (e *TransportError) Is(target error) bool {
	return target == ErrCancelled && e.Code == CodeCancelled
}

// FromTransport classifies an error returned by http.Client.Do (or by a
// pre-flight check) into a *TransportError. Nil stays nil.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	code := CodeNetwork
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	// Cancellation first: a cancelled context must never read as a timeout.
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		code = CodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		code = CodeTimeout
	case errors.Is(err, offline.ErrNetworkBlocked),
		errors.As(err, &dnsErr),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH):
		code = CodeOffline
	}
	return &TransportError{Code: code, Err: err}
}

// =============================================================================
// PROVIDER ERRORS
// =============================================================================

// Provider names carried on ProviderError.
const (
	ProviderOpenRouter = "openrouter"
	ProviderExa        = "exa"
)

// ProviderError is an error reported by a provider, either through a non-2xx
// status or through an error object embedded in a 2xx body.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// Classify returns the Kind of err.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, ErrChatNotConfigured) || errors.Is(err, ErrSearchNotConfigured) {
		return KindConfig
	}
	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}
	var pe *ProviderError
	if errors.As(err, &pe) || errors.Is(err, ErrEmptyCompletion) || errors.Is(err, ErrMalformedResponse) {
		return KindProtocol
	}
	return KindUnknown
}

// IsCancelled reports whether err represents a cancellation.
func IsCancelled(err error) bool {
	return Classify(err) == KindCancelled
}
