// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/offline"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestFromTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"context cancelled", context.Canceled, CodeCancelled},
		{"wrapped cancel in url error", &url.Error{Op: "Post", URL: "https://x", Err: context.Canceled}, CodeCancelled},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"client timeout", &url.Error{Op: "Post", URL: "https://x", Err: timeoutErr{}}, CodeTimeout},
		{"offline guard", fmt.Errorf("check: %w", offline.ErrNetworkBlocked), CodeOffline},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "openrouter.ai"}, CodeOffline},
		{"other", errors.New("connection reset by peer"), CodeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromTransport(tt.err)
			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.want, te.Code)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, FromTransport(nil))
}

func TestFromTransport_Idempotent(t *testing.T) {
	first := FromTransport(context.DeadlineExceeded)
	assert.Same(t, first, FromTransport(first))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"chat config", ErrChatNotConfigured, KindConfig},
		{"search config", fmt.Errorf("answer: %w", ErrSearchNotConfigured), KindConfig},
		{"cancelled sentinel", ErrCancelled, KindCancelled},
		{"cancelled transport", &TransportError{Code: CodeCancelled, Err: context.Canceled}, KindCancelled},
		{"timeout transport", &TransportError{Code: CodeTimeout, Err: context.DeadlineExceeded}, KindTransport},
		{"provider", &ProviderError{Status: 500}, KindProtocol},
		{"empty completion", ErrEmptyCompletion, KindProtocol},
		{"malformed", fmt.Errorf("decode: %w", ErrMalformedResponse), KindProtocol},
		{"unknown", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cancelled", ErrCancelled, "cancelled"},
		{"chat not configured", ErrChatNotConfigured, ReasonChatNotConfigured},
		{"search not configured", ErrSearchNotConfigured, ReasonSearchNotConfigured},
		{"timeout", &TransportError{Code: CodeTimeout, Err: context.DeadlineExceeded}, transportReasons[CodeTimeout]},
		{"offline", &TransportError{Code: CodeOffline, Err: offline.ErrNetworkBlocked}, transportReasons[CodeOffline]},
		{"too many requests", &ProviderError{Status: http.StatusTooManyRequests, Message: "slow down"}, ReasonTooManyRequests},
		{"server error", &ProviderError{Status: http.StatusBadGateway}, "The AI service is having trouble right now. Please try again later."},
		{"provider detail", &ProviderError{Status: http.StatusBadRequest, Message: "  context too long  "}, "context too long"},
		{"status text fallback", &ProviderError{Status: http.StatusConflict}, "Conflict"},
		{"embedded 200 error", &ProviderError{Status: http.StatusOK, Message: "model overloaded"}, "model overloaded"},
		{"empty completion", ErrEmptyCompletion, ReasonEmptyCompletion},
		{"malformed", ErrMalformedResponse, ReasonMalformedResponse},
		{"generic", errors.New("boom"), ReasonGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Humanize(tt.err))
		})
	}
}

func TestHumanize_WordingFollowsProvider(t *testing.T) {
	chatNotFound := &ProviderError{Provider: ProviderOpenRouter, Status: http.StatusNotFound}
	searchNotFound := &ProviderError{Provider: ProviderExa, Status: http.StatusNotFound}

	assert.Equal(t, "The requested model is not available.", Humanize(chatNotFound))
	assert.Equal(t, "The search service could not be found.", Humanize(searchNotFound))
	assert.NotContains(t, Humanize(searchNotFound), "model")

	assert.Equal(t, "The search account is out of credits.",
		Humanize(&ProviderError{Provider: ProviderExa, Status: http.StatusPaymentRequired}))
	assert.Equal(t, "The search service is having trouble right now. Please try again later.",
		Humanize(&ProviderError{Provider: ProviderExa, Status: http.StatusServiceUnavailable}))
	assert.Equal(t, ReasonTooManyRequests,
		Humanize(&ProviderError{Provider: ProviderExa, Status: http.StatusTooManyRequests}))
}

func TestHumanize_TimeoutNotConfusedWithCancel(t *testing.T) {
	timeout := FromTransport(context.DeadlineExceeded)
	cancel := FromTransport(context.Canceled)

	assert.NotEqual(t, Humanize(timeout), Humanize(cancel))
	assert.Equal(t, ReasonCancelled, Humanize(cancel))
	assert.True(t, IsCancelled(cancel))
	assert.False(t, IsCancelled(timeout))
}
