// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/apierr"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/offline"
)

const testKey = "sk-or-test-abcdefghijklmnopqrstuvwxyz0123456789"

// =============================================================================
// TEST HELPERS
// =============================================================================

// stubServer returns a server that replies with status and body and counts
// requests.
func stubServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(baseURL string) *OpenRouterClient {
	return NewOpenRouterClient(testKey).WithBaseURL(baseURL)
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerate_Success(t *testing.T) {
	server, calls := stubServer(t, http.StatusOK, `{"choices":[{"message":{"content":"  hello \n"}}]}`)

	reply, err := newTestClient(server.URL).Generate(context.Background(), GenerateRequest{UserText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_ContentPartsResponse(t *testing.T) {
	server, _ := stubServer(t, http.StatusOK,
		`{"choices":[{"message":{"content":[{"type":"text","text":"a "},{"type":"image_url","image_url":"x"},{"type":"text","text":"b"}]}}]}`)

	reply, err := newTestClient(server.URL).Generate(context.Background(), GenerateRequest{UserText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "a b", reply)
}

func TestGenerate_RequestShape(t *testing.T) {
	var got ChatRequest
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	png := []byte{0x89, 'P', 'N', 'G', 1, 2}
	jpg := []byte{0xFF, 0xD8, 0xFF, 3}
	client := newTestClient(server.URL).
		WithModel("gpt4o").
		WithSiteURL("https://example.test").
		WithSiteName("rigchat-test")

	_, err := client.Generate(context.Background(), GenerateRequest{
		SystemPrompt: "be nice",
		UserText:     "what is this?",
		UserImages:   [][]byte{png, jpg},
		History: []model.HistoryEntry{
			{Role: model.RoleUser, Text: "earlier"},
			{Role: model.RoleAssistant, Text: "reply"},
		},
		MaxTokens:   256,
		Temperature: 0.4,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+testKey, headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "https://example.test", headers.Get("HTTP-Referer"))
	assert.Equal(t, "rigchat-test", headers.Get("X-Title"))

	assert.Equal(t, "openai/gpt-4o", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.4, got.Temperature, 1e-9)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be nice", got.Messages[0].Content[0].Text)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "earlier", got.Messages[1].Content[0].Text)
	assert.Equal(t, "assistant", got.Messages[2].Role)

	current := got.Messages[3]
	assert.Equal(t, "user", current.Role)
	require.Len(t, current.Content, 3)
	assert.Equal(t, ContentPart{Type: PartText, Text: "what is this?"}, current.Content[0])
	assert.Equal(t, PartImage, current.Content[1].Type)
	assert.True(t, strings.HasPrefix(current.Content[1].ImageURL, "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(current.Content[2].ImageURL, "data:image/jpeg;base64,"))

	for _, m := range got.Messages[:3] {
		for _, part := range m.Content {
			assert.Equal(t, PartText, part.Type, "history must be text only")
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
		wantErr    error
	}{
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"message":"Rate limit exceeded","code":429}}`,
			wantStatus: 429,
			wantMsg:    "Rate limit exceeded",
		},
		{
			name:       "non-json error falls back to status text",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantStatus: 502,
			wantMsg:    "Bad Gateway",
		},
		{
			name:       "error embedded in 200",
			status:     http.StatusOK,
			body:       `{"error":{"message":"model overloaded"},"choices":[{"message":{"content":"ignored"}}]}`,
			wantStatus: 200,
			wantMsg:    "model overloaded",
		},
		{
			name:    "empty completion",
			status:  http.StatusOK,
			body:    `{"choices":[{"message":{"content":"   "}}]}`,
			wantErr: apierr.ErrEmptyCompletion,
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"choices":[]}`,
			wantErr: apierr.ErrEmptyCompletion,
		},
		{
			name:    "malformed",
			status:  http.StatusOK,
			body:    `{"choices":[`,
			wantErr: apierr.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := stubServer(t, tt.status, tt.body)
			_, err := newTestClient(server.URL).Generate(context.Background(), GenerateRequest{UserText: "hi"})
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var pe *apierr.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantStatus, pe.Status)
			assert.Equal(t, tt.wantMsg, pe.Message)
		})
	}
}

func TestGenerate_429Humanized(t *testing.T) {
	server, _ := stubServer(t, http.StatusTooManyRequests, `{}`)
	_, err := newTestClient(server.URL).Generate(context.Background(), GenerateRequest{UserText: "hi"})
	assert.Equal(t, apierr.ReasonTooManyRequests, apierr.Humanize(err))
}

func TestGenerate_NotConfigured(t *testing.T) {
	server, calls := stubServer(t, http.StatusOK, `{}`)

	_, err := NewOpenRouterClient("   ").WithBaseURL(server.URL).Generate(context.Background(), GenerateRequest{UserText: "hi"})
	assert.ErrorIs(t, err, apierr.ErrChatNotConfigured)
	assert.Equal(t, int32(0), calls.Load())
}

func TestGenerate_Offline(t *testing.T) {
	offline.SetOfflineMode(true)
	t.Cleanup(func() { offline.SetOfflineMode(false) })

	_, err := newTestClient("https://openrouter.invalid/api/v1").Generate(context.Background(), GenerateRequest{UserText: "hi"})
	var te *apierr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, apierr.CodeOffline, te.Code)
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := newTestClient(server.URL).WithTimeout(50*time.Millisecond).
		Generate(context.Background(), GenerateRequest{UserText: "hi"})

	var te *apierr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, apierr.CodeTimeout, te.Code)
	assert.False(t, apierr.IsCancelled(err))
}

func TestGenerate_Cancelled(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := newTestClient(server.URL).Generate(ctx, GenerateRequest{UserText: "hi"})
	assert.True(t, apierr.IsCancelled(err), "got %v", err)
	assert.Equal(t, apierr.ReasonCancelled, apierr.Humanize(err))
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"second time"}}]}`))
	}))
	defer server.Close()

	reply, err := newTestClient(server.URL).WithMaxRetries(2).
		Generate(context.Background(), GenerateRequest{UserText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "second time", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerate_DefaultIsSingleAttempt(t *testing.T) {
	server, calls := stubServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`)

	_, err := newTestClient(server.URL).Generate(context.Background(), GenerateRequest{UserText: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_DoesNotRetryClientErrors(t *testing.T) {
	server, calls := stubServer(t, http.StatusBadRequest, `{"error":{"message":"bad"}}`)

	_, err := newTestClient(server.URL).WithMaxRetries(3).
		Generate(context.Background(), GenerateRequest{UserText: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

// =============================================================================
// MISC
// =============================================================================

func TestKeyFingerprint(t *testing.T) {
	assert.Equal(t, "none", KeyFingerprint(""))
	fp := KeyFingerprint(testKey)
	assert.Len(t, fp, 8)
	assert.Equal(t, fp, NewOpenRouterClient(testKey).KeyFingerprint())
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o", ResolveModel("gpt4o"))
	assert.Equal(t, "vendor/custom", ResolveModel("vendor/custom"))
	assert.Equal(t, DefaultModel, NewOpenRouterClient(testKey).WithModel("").Model())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&apierr.ProviderError{Status: 429}))
	assert.True(t, isRetryable(&apierr.ProviderError{Status: 503}))
	assert.False(t, isRetryable(&apierr.ProviderError{Status: 401}))
	assert.False(t, isRetryable(errors.New("other")))
	assert.False(t, isRetryable(apierr.ErrEmptyCompletion))
}
