// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/rigchat/internal/apierr"
	"github.com/jeranaias/rigchat/internal/imagecache"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// REQUEST
// =============================================================================

// Content part types.
const (
	PartText  = "text"
	PartImage = "image_url"
)

// ContentPart is one block of a message's content.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatMessage represents a single message in a chat request.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ChatRequest represents a request to the chat completions endpoint.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// GenerateRequest is one chat turn plus its context.
type GenerateRequest struct {
	SystemPrompt string
	UserText     string
	UserImages   [][]byte
	History      []model.HistoryEntry
	MaxTokens    int
	Temperature  float64
}

// textMessage creates a message with a single text part.
func textMessage(role model.Role, text string) ChatMessage {
	return ChatMessage{
		Role:    role.String(),
		Content: []ContentPart{{Type: PartText, Text: text}},
	}
}

// buildMessages orders the system prompt, the history and the current turn.
// Only the current turn carries images.
func buildMessages(req GenerateRequest) []ChatMessage {
	messages := make([]ChatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, textMessage(model.RoleSystem, req.SystemPrompt))
	}
	for _, h := range req.History {
		messages = append(messages, textMessage(h.Role, h.Text))
	}

	user := ChatMessage{Role: model.RoleUser.String()}
	if req.UserText != "" {
		user.Content = append(user.Content, ContentPart{Type: PartText, Text: req.UserText})
	}
	for _, img := range req.UserImages {
		user.Content = append(user.Content, ContentPart{Type: PartImage, ImageURL: imagecache.DataURI(img)})
	}
	return append(messages, user)
}

// =============================================================================
// RESPONSE
// =============================================================================

// parseCompletion extracts the first completion's text from a 2xx body.
// An embedded error object wins over any choices.
func parseCompletion(status int, body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", apierr.ErrMalformedResponse
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return "", apierr.ErrMalformedResponse
	}

	if e := doc.Get("error"); e.Exists() && e.Type != gjson.Null {
		return "", &apierr.ProviderError{
			Provider: providerName,
			Status:   status,
			Message:  errorMessage(e, status),
		}
	}

	text := strings.TrimSpace(contentText(doc.Get("choices.0.message.content")))
	if text == "" {
		return "", apierr.ErrEmptyCompletion
	}
	return text, nil
}

// contentText accepts either a plain string or an array of content parts.
func contentText(content gjson.Result) string {
	if !content.IsArray() {
		if content.Type == gjson.String {
			return content.Str
		}
		return ""
	}
	var sb strings.Builder
	content.ForEach(func(_, part gjson.Result) bool {
		if part.Type == gjson.String {
			sb.WriteString(part.Str)
		} else if t := part.Get("type").Str; t == "" || t == PartText {
			sb.WriteString(part.Get("text").Str)
		}
		return true
	})
	return sb.String()
}

// errorMessage reads a structured error, falling back to the status phrase.
func errorMessage(e gjson.Result, status int) string {
	var msg string
	switch {
	case e.Type == gjson.String:
		msg = e.Str
	case e.IsObject():
		msg = e.Get("message").String()
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "unknown error"
}

// errorFromStatus converts a non-2xx response to a ProviderError.
func errorFromStatus(status int, body []byte) error {
	var e gjson.Result
	if gjson.ValidBytes(body) {
		e = gjson.GetBytes(body, "error")
	}
	return &apierr.ProviderError{
		Provider: providerName,
		Status:   status,
		Message:  errorMessage(e, status),
	}
}
