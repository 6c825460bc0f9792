// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across rigchat.
//
// # Key Functions
//
//   - ClampRunes: hard, rune-safe truncation without an ellipsis (input limits)
//   - Preview: display truncation with an ellipsis, measured in terminal cells
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	text = util.ClampRunes(text, cfg.MaxUserChars)
//	line := util.Preview(msg.Text, 60)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
