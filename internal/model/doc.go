// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Message: one exchanged turn with text, images, status and timestamp
//   - Status: sending, sent or failed(reason); moves forward only
//   - Store: the ordered, append-only conversation for one session
//   - HistoryEntry: text-only projection of a stored turn sent as context
//
// # Usage
//
//	store := model.NewStore()
//	msg, err := model.NewUserMessage("hi", nil, false)
//	if err != nil {
//	    return err
//	}
//	store.Append(msg)
//	_ = store.SetStatus(msg.ID, model.Sent())
package model
