// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
)

var (
	// ErrNetworkBlocked is returned for a non-loopback host in offline mode.
	ErrNetworkBlocked = errors.New("network access disabled in offline mode")

	// ErrInvalidURLScheme is returned for anything but http and https.
	ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")
)

// enabled is process-wide so that every client sees a config reload.
var enabled atomic.Bool

// SetOfflineMode turns offline mode on or off.
func SetOfflineMode(on bool) {
	enabled.Store(on)
}

// IsOfflineMode reports whether offline mode is on.
func IsOfflineMode() bool {
	return enabled.Load()
}

// IsLocalhost reports whether host (optionally with a port) names the
// loopback interface: "localhost", 127.0.0.0/8 or ::1.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// CheckURL validates an outbound request URL. The scheme must be http or
// https; in offline mode the host must also be loopback.
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURLScheme, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrInvalidURLScheme
	}
	if IsOfflineMode() && !IsLocalhost(u.Hostname()) {
		return fmt.Errorf("%w: %s", ErrNetworkBlocked, u.Hostname())
	}
	return nil
}

// StatusBadge returns "[OFFLINE]" in offline mode and "" otherwise.
func StatusBadge() string {
	if IsOfflineMode() {
		return "[OFFLINE]"
	}
	return ""
}
