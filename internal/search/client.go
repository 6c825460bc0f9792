// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/apierr"
	"github.com/jeranaias/rigchat/internal/offline"
)

const (
	// DefaultBaseURL is the search API endpoint.
	DefaultBaseURL = "https://api.exa.ai"

	// DefaultTimeout is the default HTTP timeout for search requests.
	DefaultTimeout = 30 * time.Second

	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 5

	// MaxLimit caps the number of requested results.
	MaxLimit = 10

	// DefaultRate is the default request rate in requests per second.
	DefaultRate = 5

	// maxResponseSize bounds response bodies.
	maxResponseSize = 5 * 1024 * 1024

	providerName = apierr.ProviderExa
)

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("empty search query")

// =============================================================================
// TYPES
// =============================================================================

// Result represents a single search result.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Citation is a source backing a drafted answer.
type Citation struct {
	Title string
	URL   string
	Text  string
}

// Answer is a drafted answer with its sources.
type Answer struct {
	Text      string
	Citations []Citation
}

type searchRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
}

type answerRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Text       bool   `json:"text"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a search API client. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a search client. An empty key yields a client whose
// operations fail with apierr.ErrSearchNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRate), DefaultRate),
		logger:     slog.New(slog.DiscardHandler),
	}
}

// WithBaseURL sets a custom base URL.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithRateLimit paces outgoing requests.
func (c *Client) WithRateLimit(limit rate.Limit, burst int) *Client {
	c.limiter = rate.NewLimiter(limit, max(1, burst))
	return c
}

// WithLogger sets the structured logger.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger.With("component", "search", "provider", providerName)
	}
	return c
}

// IsConfigured returns true if an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Search returns up to limit pages for query. Results without a title or
// URL are dropped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	limit = clampLimit(limit)
	doc, err := c.post(ctx, "/search", query, searchRequest{Query: query, NumResults: limit})
	if err != nil {
		return nil, err
	}
	return parseResults(doc, limit), nil
}

// Answer returns a drafted answer for query with its citations. A response
// with no recognisable answer field yields an empty Text, not an error.
func (c *Client) Answer(ctx context.Context, query string, limit int) (*Answer, error) {
	limit = clampLimit(limit)
	doc, err := c.post(ctx, "/answer", query, answerRequest{Query: query, NumResults: limit, Text: false})
	if err != nil {
		return nil, err
	}
	ans := parseAnswer(doc)
	c.logger.Debug("answer parsed", "answer_chars", len(ans.Text), "citations", len(ans.Citations))
	return ans, nil
}

// post sends payload to path and returns the parsed JSON body.
func (c *Client) post(ctx context.Context, path, query string, payload any) (gjson.Result, error) {
	if !c.IsConfigured() {
		return gjson.Result{}, apierr.ErrSearchNotConfigured
	}
	if strings.TrimSpace(query) == "" {
		return gjson.Result{}, ErrEmptyQuery
	}

	requestURL := c.baseURL + path
	if err := offline.CheckURL(requestURL); err != nil {
		return gjson.Result{}, apierr.FromTransport(err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, apierr.FromTransport(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, apierr.FromTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return gjson.Result{}, apierr.FromTransport(err)
	}
	if len(respBody) > maxResponseSize {
		return gjson.Result{}, fmt.Errorf("response exceeded maximum size of %d bytes: %w", maxResponseSize, apierr.ErrMalformedResponse)
	}

	c.logger.Debug("api response", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return gjson.Result{}, &apierr.ProviderError{Provider: providerName, Status: resp.StatusCode, Message: msg}
	}

	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, apierr.ErrMalformedResponse
	}
	doc := gjson.ParseBytes(respBody)
	if !doc.IsObject() {
		return gjson.Result{}, apierr.ErrMalformedResponse
	}
	return doc, nil
}

// clampLimit bounds limit to 1..MaxLimit, defaulting non-positive values.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
