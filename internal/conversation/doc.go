// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation coordinates one chat session.
//
// The Orchestrator appends the user's turn to the store, compresses attached
// photos, calls the chat or search provider on a background goroutine, and
// records the outcome as the message status plus, on success, one reply.
// Only one send is in flight at a time: a new send or an explicit cancel
// marks the pending message failed("cancelled") and cancels its request, and
// a late completion for a superseded send is dropped.
//
// UIs observe progress through Subscribe, which delivers state changes and
// message appends/updates in the order they happened.
//
// # Usage
//
//	orch := conversation.New(conversation.Deps{
//	    Store:  model.NewStore(),
//	    Codec:  codec,
//	    Chat:   chatClient,
//	    Search: searchClient,
//	    Logger: logger,
//	}, cfg.AI)
//	unsubscribe := orch.Subscribe(func(ev conversation.Event) { render(ev) })
//	defer unsubscribe()
//	orch.SubmitMessage("hi", nil, false)
package conversation
