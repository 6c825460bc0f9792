// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/apierr"
	"github.com/jeranaias/rigchat/internal/offline"
)

// Configuration constants for OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultModel is a vision-capable model used when none is configured.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts. One attempt means
	// no retry.
	DefaultMaxRetries = 1

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024

	providerName = apierr.ProviderOpenRouter
)

// OpenRouterModels maps friendly names to full model identifiers.
var OpenRouterModels = map[string]string{
	"auto":       "openrouter/auto",
	"gpt4o":      "openai/gpt-4o",
	"gpt4o-mini": "openai/gpt-4o-mini",
	"haiku":      "anthropic/claude-3.5-haiku",
	"sonnet":     "anthropic/claude-3.5-sonnet",
	"gemini":     "google/gemini-flash-1.5",
	"llama3-11b": "meta-llama/llama-3.2-11b-vision-instruct",
}

// ResolveModel maps a friendly name to its identifier; unknown names pass
// through unchanged.
func ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if full, ok := OpenRouterModels[name]; ok {
		return full
	}
	return name
}

// defaultHTTPClient is shared by clients that do not supply their own.
// Timeouts are applied per request through the context.
var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	},
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenRouterClient is a client for the OpenRouter chat completions API.
// It holds no per-request state and is safe for concurrent use once
// configured.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	maxRetries int
	timeout    time.Duration
	siteURL    string
	siteName   string
	logger     *slog.Logger
}

// NewOpenRouterClient creates a new OpenRouter client with the given API key.
//
// If the API key is empty the client is still created, but Generate fails
// with apierr.ErrChatNotConfigured without touching the network.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultOpenRouterURL,
		httpClient: defaultHTTPClient,
		model:      DefaultModel,
		maxRetries: DefaultMaxRetries,
		timeout:    DefaultTimeout,
		siteURL:    "https://rigchat.app",
		siteName:   "rigchat",
		logger:     slog.New(slog.DiscardHandler),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *OpenRouterClient) WithBaseURL(url string) *OpenRouterClient {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// WithModel sets the model, resolving friendly names.
func (c *OpenRouterClient) WithModel(name string) *OpenRouterClient {
	if m := ResolveModel(name); m != "" {
		c.model = m
	}
	return c
}

// WithTimeout sets the per-request timeout.
func (c *OpenRouterClient) WithTimeout(timeout time.Duration) *OpenRouterClient {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithMaxRetries sets the total number of attempts for 429 and 5xx responses.
func (c *OpenRouterClient) WithMaxRetries(maxRetries int) *OpenRouterClient {
	c.maxRetries = max(1, maxRetries)
	return c
}

// WithSiteURL sets the HTTP-Referer header value.
func (c *OpenRouterClient) WithSiteURL(url string) *OpenRouterClient {
	c.siteURL = url
	return c
}

// WithSiteName sets the X-Title header value.
func (c *OpenRouterClient) WithSiteName(name string) *OpenRouterClient {
	c.siteName = name
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *OpenRouterClient) WithHTTPClient(hc *http.Client) *OpenRouterClient {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the structured logger.
func (c *OpenRouterClient) WithLogger(logger *slog.Logger) *OpenRouterClient {
	if logger != nil {
		c.logger = logger.With("component", "cloud", "provider", providerName)
	}
	return c
}

// Model returns the configured model identifier.
func (c *OpenRouterClient) Model() string {
	return c.model
}

// IsConfigured returns true if an API key is set.
func (c *OpenRouterClient) IsConfigured() bool {
	return c.apiKey != ""
}

// KeyFingerprint returns a short, non-reversible identifier of the API key
// for logs.
func (c *OpenRouterClient) KeyFingerprint() string {
	return KeyFingerprint(c.apiKey)
}

// KeyFingerprint returns the first 8 hex characters of the SHA-256 of key,
// or "none" for an empty key.
func KeyFingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// GENERATE
// =============================================================================

// Generate sends one chat turn and returns the first completion's text,
// trimmed of surrounding whitespace.
func (c *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if !c.IsConfigured() {
		return "", apierr.ErrChatNotConfigured
	}

	requestURL := c.baseURL + "/chat/completions"
	if err := offline.CheckURL(requestURL); err != nil {
		return "", apierr.FromTransport(err)
	}

	body, err := json.Marshal(ChatRequest{
		Model:       c.model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			c.logger.Debug("retrying request", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", apierr.FromTransport(ctx.Err())
			case <-time.After(delay):
			}
		}

		text, err := c.doRequest(ctx, requestURL, body)
		if err == nil {
			return text, nil
		}
		if !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// doRequest performs a single HTTP request to the chat completions endpoint.
func (c *OpenRouterClient) doRequest(ctx context.Context, requestURL string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "path", req.URL.Path, "duration", time.Since(start), "error", err)
		return "", apierr.FromTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := readResponse(resp)
	if err != nil {
		if ctx.Err() != nil {
			return "", apierr.FromTransport(ctx.Err())
		}
		return "", err
	}

	c.logger.Debug("api response",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"bytes", len(respBody),
		"key", c.KeyFingerprint(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errorFromStatus(resp.StatusCode, respBody)
	}
	return parseCompletion(resp.StatusCode, respBody)
}

// setHeaders sets the required headers for OpenRouter API requests.
func (c *OpenRouterClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, apierr.FromTransport(fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes: %w", MaxResponseSize, apierr.ErrMalformedResponse)
	}
	return body, nil
}

// isRetryable reports whether a failed attempt may be repeated.
func isRetryable(err error) bool {
	var pe *apierr.ProviderError
	if errors.As(err, &pe) {
		return pe.Status == http.StatusTooManyRequests || (pe.Status >= 500 && pe.Status < 600)
	}
	return false
}

// calculateBackoff returns the delay to wait before the next retry.
func (c *OpenRouterClient) calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
