// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apierr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jeranaias/rigchat/internal/util"
)

// User-facing reason strings.
const (
	ReasonCancelled           = "cancelled"
	ReasonChatNotConfigured   = "AI chat isn't set up yet. Add an API key in settings to start chatting."
	ReasonSearchNotConfigured = "Web search isn't set up yet. Add a search API key in settings to use /search."
	ReasonEmptyCompletion     = "The AI returned an empty response. Please try again."
	ReasonMalformedResponse   = "Received an unexpected response from the server. Please try again."
	ReasonTooManyRequests     = "Too many requests. Please wait a moment and try again."
	ReasonGeneric             = "Something went wrong. Please try again."
)

// maxDetailRunes bounds provider-supplied detail shown to the user.
const maxDetailRunes = 300

// transportReasons maps transport codes to fixed reasons.
var transportReasons = map[Code]string{
	CodeTimeout:   "The request timed out. Check your connection and try again.",
	CodeOffline:   "You appear to be offline. Check your internet connection and try again.",
	CodeCancelled: ReasonCancelled,
	CodeNetwork:   "Couldn't reach the server. Please try again.",
}

// statusReasons maps well-known chat provider HTTP statuses to fixed reasons.
// Statuses not listed fall back to the provider's own message.
var statusReasons = map[int]string{
	http.StatusUnauthorized:          "The API key was rejected. Check your settings.",
	http.StatusPaymentRequired:       "The AI account is out of credits.",
	http.StatusForbidden:             "Access to this model was denied.",
	http.StatusNotFound:              "The requested model is not available.",
	http.StatusRequestTimeout:        "The request timed out. Check your connection and try again.",
	http.StatusRequestEntityTooLarge: "The message or photos are too large to send.",
	http.StatusTooManyRequests:       ReasonTooManyRequests,
}

// searchStatusReasons is statusReasons for the search provider.
var searchStatusReasons = map[int]string{
	http.StatusUnauthorized:          "The search API key was rejected. Check your settings.",
	http.StatusPaymentRequired:       "The search account is out of credits.",
	http.StatusForbidden:             "Access to web search was denied.",
	http.StatusNotFound:              "The search service could not be found.",
	http.StatusRequestTimeout:        "The request timed out. Check your connection and try again.",
	http.StatusRequestEntityTooLarge: "The search query is too large.",
	http.StatusTooManyRequests:       ReasonTooManyRequests,
}

// Humanize returns the reason string recorded on a failed message.
func Humanize(err error) string {
	if err == nil {
		return ""
	}

	switch Classify(err) {
	case KindCancelled:
		return ReasonCancelled
	case KindConfig:
		if errors.Is(err, ErrSearchNotConfigured) {
			return ReasonSearchNotConfigured
		}
		return ReasonChatNotConfigured
	}

	var te *TransportError
	if errors.As(err, &te) {
		if reason, ok := transportReasons[te.Code]; ok {
			return reason
		}
		return ReasonGeneric
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return humanizeStatus(pe)
	}

	switch {
	case errors.Is(err, ErrEmptyCompletion):
		return ReasonEmptyCompletion
	case errors.Is(err, ErrMalformedResponse):
		return ReasonMalformedResponse
	}
	return ReasonGeneric
}

func humanizeStatus(pe *ProviderError) string {
	reasons, service := statusReasons, "AI"
	if pe.Provider == ProviderExa {
		reasons, service = searchStatusReasons, "search"
	}
	if reason, ok := reasons[pe.Status]; ok {
		return reason
	}
	if pe.Status >= 500 {
		return "The " + service + " service is having trouble right now. Please try again later."
	}
	if detail := strings.TrimSpace(pe.Message); detail != "" {
		return util.ClampRunes(detail, maxDetailRunes)
	}
	if text := http.StatusText(pe.Status); text != "" {
		return text
	}
	return ReasonGeneric
}
