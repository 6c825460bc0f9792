// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the OpenRouter chat-completion client.
//
// OpenRouter provides access to multiple multimodal models through a single
// OpenAI-style API. The client turns a system prompt, a text-only history and
// the current turn (text plus inline photos) into one request and returns the
// first completion's text.
//
// # Key Types
//
//   - OpenRouterClient: HTTP client with builder-style options
//   - GenerateRequest: one chat turn plus context
//   - ChatRequest, ChatMessage, ContentPart: the wire format
//
// # Usage
//
//	client := cloud.NewOpenRouterClient(apiKey).
//	    WithModel("gpt4o-mini").
//	    WithLogger(logger)
//	reply, err := client.Generate(ctx, cloud.GenerateRequest{
//	    SystemPrompt: "You are a helpful assistant.",
//	    UserText:     "What is in this photo?",
//	    UserImages:   [][]byte{jpeg},
//	})
//
// # Errors
//
// Failures are reported with the apierr taxonomy: ErrChatNotConfigured before
// any network call, *apierr.TransportError for transport failures,
// *apierr.ProviderError for provider-reported errors (including errors
// embedded in a 200 response), and ErrMalformedResponse / ErrEmptyCompletion
// for unusable bodies. API keys are never logged; use KeyFingerprint.
package cloud
