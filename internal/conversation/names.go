// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// introPattern matches a self-introduction and captures the next word.
var introPattern = regexp.MustCompile(
	`(?i)(?:^|[^\p{L}])(?:my name is|call me|i am called|i[’']m called|name[’']s)\s+([\p{L}][\p{L}'’-]*)`)

// notNames are words that commonly follow an introduction phrase without
// being a name ("call me back").
var notNames = map[string]bool{
	"a": true, "an": true, "the": true, "back": true, "later": true,
	"maybe": true, "now": true, "please": true, "when": true, "if": true,
	"not": true, "at": true, "on": true, "tomorrow": true,
}

// extractName returns a display name introduced in text, or "".
func extractName(text string) string {
	m := introPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	word := strings.TrimRight(m[1], "'’-")
	if word == "" || notNames[strings.ToLower(word)] {
		return ""
	}
	// A Caser is stateful, so each call gets its own.
	return cases.Title(language.Und).String(word)
}

// personalize appends the user's name to the system prompt.
func personalize(prompt, name string) string {
	if name == "" {
		return prompt
	}
	return strings.TrimSpace(prompt) + " The user's name is " + name + "; address them by name when it feels natural."
}
