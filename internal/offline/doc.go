// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline provides the process-wide offline switch for rigchat.
//
// When offline mode is on, the provider clients refuse to contact any host
// other than the loopback interface. The refusal surfaces as a transport
// "offline" failure on the message being sent, exactly as a real loss of
// connectivity would.
//
// # Usage
//
//	offline.SetOfflineMode(cfg.Offline)
//	if err := offline.CheckURL(endpoint); err != nil {
//	    return err // errors.Is(err, offline.ErrNetworkBlocked)
//	}
package offline
