// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search provides the web search client used by /search turns.
//
// The client talks to an Exa-style API with two endpoints: /search returns a
// ranked list of pages and /answer returns a drafted answer with citations.
// Answer responses come in several shapes, so they are read through ordered
// tables of candidate field paths rather than a fixed struct.
//
// # Usage
//
//	client := search.NewClient(apiKey).WithLogger(logger)
//	if !client.IsConfigured() {
//	    // prompt for a key
//	}
//	ans, err := client.Answer(ctx, "tallest building in europe", 5)
package search
