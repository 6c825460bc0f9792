// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the terminal front end for rigchat.
//
// It parses command-line flags, runs an interactive REPL on top of a
// conversation.Orchestrator and renders events as they arrive.
//
// # Usage
//
//	args, err := cli.ParseArgs(os.Args[1:])
//	session := cli.NewSession(orch, codec, os.Stdout, opts)
//	err = session.Run(ctx)
//
// # Interactive Commands
//
//   - /search <query>: answer a question from the web
//   - /attach <path>: queue a photo for the next message
//   - /photos: list queued photos
//   - /cancel: abort the message being sent
//   - /reset: clear an error state
//   - /stats, /purge: image cache statistics and eviction
//   - /status: configuration summary
//   - /help, /quit
package cli
