// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits raw arguments into flags and positional arguments.
// Accepted forms are --flag value, --flag=value, -f value and bare boolean
// flags.
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

// boolOnly lists flags that never take a value, so that a following
// positional argument is not swallowed.
var boolOnly = map[string]bool{
	"offline": true, "quiet": true, "q": true, "help": true, "h": true,
	"version": true, "verbose": true, "v": true, "init-config": true,
}

// NewArgParser parses raw.
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if key, value, ok := strings.Cut(name, "="); ok {
			if b, err := ParseBoolString(value); err == nil && boolOnly[key] {
				p.boolFlags[key] = b
			} else {
				p.flags[key] = value
			}
			continue
		}

		if !boolOnly[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		p.boolFlags[name] = true
	}
	return p
}

// Flag returns the first non-empty value among names.
func (p *ArgParser) Flag(names ...string) string {
	for _, name := range names {
		if v, ok := p.flags[strings.TrimLeft(name, "-")]; ok && v != "" {
			return v
		}
	}
	return ""
}

// BoolFlag reports whether any of names was set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, name := range names {
		if p.boolFlags[strings.TrimLeft(name, "-")] {
			return true
		}
	}
	return false
}

// Positional returns the positional arguments.
func (p *ArgParser) Positional() []string {
	return p.positional
}

// ParseBoolString parses true/false, yes/no, y/n, 1/0 and on/off.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// =============================================================================
// PROGRAM ARGUMENTS
// =============================================================================

// Args are the parsed command-line options.
type Args struct {
	ConfigPath string
	EnvFile    string
	Model      string
	LogLevel   string
	Offline    bool
	Quiet      bool
	Help       bool
	Version    bool
	InitConfig bool

	// Message, when set, is sent once and the program exits after the reply.
	Message string
}

// ParseArgs parses the program arguments (without the program name).
func ParseArgs(raw []string) (Args, error) {
	p := NewArgParser(raw)
	args := Args{
		ConfigPath: p.Flag("config", "c"),
		EnvFile:    p.Flag("env-file"),
		Model:      p.Flag("model", "m"),
		LogLevel:   p.Flag("log-level"),
		Offline:    p.BoolFlag("offline"),
		Quiet:      p.BoolFlag("quiet", "q"),
		Help:       p.BoolFlag("help", "h"),
		Version:    p.BoolFlag("version"),
		InitConfig: p.BoolFlag("init-config"),
		Message:    strings.TrimSpace(strings.Join(p.Positional(), " ")),
	}
	if p.BoolFlag("verbose", "v") && args.LogLevel == "" {
		args.LogLevel = "debug"
	}
	for name := range p.boolFlags {
		if !boolOnly[name] {
			return args, fmt.Errorf("flag --%s requires a value", name)
		}
	}
	for name := range p.flags {
		switch name {
		case "config", "c", "env-file", "model", "m", "log-level":
		default:
			return args, fmt.Errorf("unknown flag --%s", name)
		}
	}
	return args, nil
}

// Usage is the help text for the program.
const Usage = `rigchat - chat with an AI model from your terminal

Usage:
  rigchat [flags] [message]

Flags:
  -c, --config PATH     Config file (default ~/.rigchat/config.toml)
      --env-file PATH   Load environment variables from PATH (default .env)
  -m, --model NAME      Chat model or alias (overrides config)
      --log-level LVL   debug, info, warn or error
  -v, --verbose         Same as --log-level debug
      --offline         Block all non-localhost network access
  -q, --quiet           Minimal output
  -h, --help            Show this help
      --version         Show version
      --init-config     Write a default config file and exit

With a message argument rigchat sends it once, prints the reply and exits.
`
