// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigchat.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, validation, and optional hot reload.
//
// # Key Types
//
//   - Config: main configuration structure with all settings
//   - AIConfig: per-send tunables (history window, limits, sampling)
//   - ChatConfig, SearchConfig: provider credentials and endpoints
//   - ImageConfig: attachment downscaling and cache pool ceilings
//   - LogConfig: structured logging level and format
//   - Watcher: reloads the file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*)
//   - ~/.rigchat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger := config.NewLogger(cfg.Logging, os.Stderr)
package config
