// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigchat/internal/imagecache"
	"github.com/jeranaias/rigchat/internal/util"
)

// ErrConfigExists is returned by WriteDefault when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Version string `toml:"version"`

	// Offline blocks every non-loopback request.
	Offline bool `toml:"offline"`

	AI      AIConfig     `toml:"ai"`
	Chat    ChatConfig   `toml:"chat"`
	Search  SearchConfig `toml:"search"`
	Images  ImageConfig  `toml:"images"`
	Logging LogConfig    `toml:"logging"`
}

// AIConfig holds the tunables read by each send. A send uses the values
// current when it starts.
type AIConfig struct {
	// HistoryTurns is how many stored messages are sent as context.
	HistoryTurns int `toml:"history_turns"`
	// MaxUserChars truncates user text, in runes.
	MaxUserChars int `toml:"max_user_chars"`
	// MaxOutputTokens bounds the reply length.
	MaxOutputTokens int `toml:"max_output_tokens"`
	// Temperature is the sampling temperature (0..2).
	Temperature float64 `toml:"temperature"`
	// MaxImageBytes is the per-image upload budget.
	MaxImageBytes int `toml:"max_image_bytes"`
	// JPEGQuality is the first-attempt compression quality (0..1].
	JPEGQuality float64 `toml:"jpeg_quality"`
	// SystemPrompt is sent before the history on every chat turn.
	SystemPrompt string `toml:"system_prompt"`
}

// ChatConfig contains chat provider (OpenRouter) configuration.
type ChatConfig struct {
	OpenRouterKey string `toml:"openrouter_key"`
	Model         string `toml:"model"`
	BaseURL       string `toml:"base_url"`
	TimeoutSecs   int    `toml:"timeout_secs"`
	MaxRetries    int    `toml:"max_retries"`
	SiteURL       string `toml:"site_url"`
	SiteName      string `toml:"site_name"`
}

// SearchConfig contains search provider configuration.
type SearchConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	TimeoutSecs int     `toml:"timeout_secs"`
	RatePerSec  float64 `toml:"rate_per_sec"`
	Burst       int     `toml:"burst"`
	ResultLimit int     `toml:"result_limit"`
}

// ImageConfig controls attachment downscaling and cache pool ceilings.
type ImageConfig struct {
	EarlyMaxDimension int     `toml:"early_max_dimension"`
	EarlyQuality      float64 `toml:"early_quality"`
	ThumbnailPixels   int     `toml:"thumbnail_pixels"`

	DecodedEntries    int `toml:"decoded_entries"`
	DecodedMB         int `toml:"decoded_mb"`
	ThumbnailEntries  int `toml:"thumbnail_entries"`
	ThumbnailMB       int `toml:"thumbnail_mb"`
	CompressedEntries int `toml:"compressed_entries"`
	CompressedMB      int `toml:"compressed_mb"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Format is text or json.
	Format string `toml:"format"`
	// File, if set, receives logs instead of stderr.
	File string `toml:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// DefaultSystemPrompt is the fixed prompt used when none is configured.
const DefaultSystemPrompt = "You are a friendly, concise assistant in a mobile chat app. " +
	"Answer clearly, and describe photos the user shares when relevant."

// DefaultAIConfig returns the built-in per-send tunables.
func DefaultAIConfig() AIConfig {
	return AIConfig{
		HistoryTurns:    10,
		MaxUserChars:    4000,
		MaxOutputTokens: 1024,
		Temperature:     0.7,
		MaxImageBytes:   1_500_000,
		JPEGQuality:     0.8,
		SystemPrompt:    DefaultSystemPrompt,
	}
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		AI:      DefaultAIConfig(),
		Chat: ChatConfig{
			Model:       "openai/gpt-4o-mini",
			BaseURL:     "https://openrouter.ai/api/v1",
			TimeoutSecs: 30,
			MaxRetries:  1,
			SiteURL:     "https://rigchat.app",
			SiteName:    "rigchat",
		},
		Search: SearchConfig{
			BaseURL:     "https://api.exa.ai",
			TimeoutSecs: 30,
			RatePerSec:  5,
			Burst:       5,
			ResultLimit: 5,
		},
		Images: ImageConfig{
			EarlyMaxDimension: 2048,
			EarlyQuality:      0.82,
			ThumbnailPixels:   256,
			DecodedEntries:    16,
			DecodedMB:         128,
			ThumbnailEntries:  200,
			ThumbnailMB:       32,
			CompressedEntries: 32,
			CompressedMB:      64,
		},
		Logging: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ~/.rigchat/config.toml if present, otherwise the defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return loadDefaults()
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return loadDefaults()
	}
	return LoadFromPath(path)
}

func loadDefaults() (*Config, error) {
	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation. Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, ValidateErrors{{Field: "config", Message: "unknown keys: " + strings.Join(keys, ", ")}}
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults restores defaults for values that are invalid when empty.
// Zero is a valid temperature and history window, so those are kept.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if strings.TrimSpace(cfg.AI.SystemPrompt) == "" {
		cfg.AI.SystemPrompt = defaults.AI.SystemPrompt
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = defaults.Chat.Model
	}
	if cfg.Chat.BaseURL == "" {
		cfg.Chat.BaseURL = defaults.Chat.BaseURL
	}
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = defaults.Search.BaseURL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// WriteDefault writes the default configuration to path. An existing file is
// never overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	return SaveTOML(Default(), path)
}

// SaveTOML writes the configuration atomically with 0600 permissions, since
// the file may hold API keys.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigchat configuration file\n")
	buf.WriteString("# Generated by rigchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// AI
	if c.AI.HistoryTurns < 0 || c.AI.HistoryTurns > 100 {
		add("ai.history_turns", "must be between 0 and 100, got %d", c.AI.HistoryTurns)
	}
	if c.AI.MaxUserChars < 1 || c.AI.MaxUserChars > 100_000 {
		add("ai.max_user_chars", "must be between 1 and 100000, got %d", c.AI.MaxUserChars)
	}
	if c.AI.MaxOutputTokens < 1 || c.AI.MaxOutputTokens > 32_000 {
		add("ai.max_output_tokens", "must be between 1 and 32000, got %d", c.AI.MaxOutputTokens)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		add("ai.temperature", "must be between 0 and 2, got %g", c.AI.Temperature)
	}
	if c.AI.MaxImageBytes < 10_000 {
		add("ai.max_image_bytes", "must be at least 10000, got %d", c.AI.MaxImageBytes)
	}
	if c.AI.JPEGQuality <= 0 || c.AI.JPEGQuality > 1 {
		add("ai.jpeg_quality", "must be in (0, 1], got %g", c.AI.JPEGQuality)
	}

	// Chat
	if err := validateHTTPURL(c.Chat.BaseURL); err != nil {
		add("chat.base_url", "%v", err)
	}
	if c.Chat.TimeoutSecs < 1 || c.Chat.TimeoutSecs > 300 {
		add("chat.timeout_secs", "must be between 1 and 300, got %d", c.Chat.TimeoutSecs)
	}
	if c.Chat.MaxRetries < 1 || c.Chat.MaxRetries > 5 {
		add("chat.max_retries", "must be between 1 and 5, got %d", c.Chat.MaxRetries)
	}

	// Search
	if err := validateHTTPURL(c.Search.BaseURL); err != nil {
		add("search.base_url", "%v", err)
	}
	if c.Search.TimeoutSecs < 1 || c.Search.TimeoutSecs > 300 {
		add("search.timeout_secs", "must be between 1 and 300, got %d", c.Search.TimeoutSecs)
	}
	if c.Search.RatePerSec <= 0 {
		add("search.rate_per_sec", "must be positive, got %g", c.Search.RatePerSec)
	}
	if c.Search.ResultLimit < 1 || c.Search.ResultLimit > 10 {
		add("search.result_limit", "must be between 1 and 10, got %d", c.Search.ResultLimit)
	}

	// Images
	if c.Images.EarlyMaxDimension < 256 || c.Images.EarlyMaxDimension > 8192 {
		add("images.early_max_dimension", "must be between 256 and 8192, got %d", c.Images.EarlyMaxDimension)
	}
	if c.Images.EarlyQuality <= 0 || c.Images.EarlyQuality > 1 {
		add("images.early_quality", "must be in (0, 1], got %g", c.Images.EarlyQuality)
	}
	for field, v := range map[string]int{
		"images.thumbnail_pixels":   c.Images.ThumbnailPixels,
		"images.decoded_entries":    c.Images.DecodedEntries,
		"images.decoded_mb":         c.Images.DecodedMB,
		"images.thumbnail_entries":  c.Images.ThumbnailEntries,
		"images.thumbnail_mb":       c.Images.ThumbnailMB,
		"images.compressed_entries": c.Images.CompressedEntries,
		"images.compressed_mb":      c.Images.CompressedMB,
	} {
		if v < 1 {
			add(field, "must be positive, got %d", v)
		}
	}

	// Logging
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if f := strings.ToLower(c.Logging.Format); f != "text" && f != "json" {
		add("logging.format", "must be text or json, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGCHAT_OPENROUTER_KEY: overrides chat.openrouter_key
//   - RIGCHAT_MODEL: overrides chat.model
//   - RIGCHAT_SEARCH_KEY: overrides search.api_key
//   - RIGCHAT_OFFLINE: set to "1" or "true" to enable offline mode
//   - RIGCHAT_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("RIGCHAT_OPENROUTER_KEY"); key != "" {
		c.Chat.OpenRouterKey = key
	}
	if model := os.Getenv("RIGCHAT_MODEL"); model != "" {
		c.Chat.Model = model
	}
	if key := os.Getenv("RIGCHAT_SEARCH_KEY"); key != "" {
		c.Search.APIKey = key
	}
	if v := os.Getenv("RIGCHAT_OFFLINE"); v != "" {
		c.Offline = v == "1" || strings.EqualFold(v, "true")
	}
	if level := os.Getenv("RIGCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ChatTimeout returns the chat request timeout.
func (c *Config) ChatTimeout() time.Duration {
	return time.Duration(c.Chat.TimeoutSecs) * time.Second
}

// SearchTimeout returns the search request timeout.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSecs) * time.Second
}

// String returns a summary with credentials masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{model=%s chat_key=%s search_key=%s offline=%t history=%d}",
		c.Chat.Model, maskKey(c.Chat.OpenRouterKey), maskKey(c.Search.APIKey), c.Offline, c.AI.HistoryTurns)
}

func maskKey(key string) string {
	if key == "" {
		return "[not set]"
	}
	return "[set]"
}

// CodecOptions converts the image settings to cache pool ceilings.
func (c ImageConfig) CodecOptions(logger *slog.Logger) imagecache.Options {
	const mb = 1024 * 1024
	return imagecache.Options{
		Decoded:    imagecache.PoolLimits{MaxEntries: c.DecodedEntries, MaxBytes: int64(c.DecodedMB) * mb},
		Thumbnails: imagecache.PoolLimits{MaxEntries: c.ThumbnailEntries, MaxBytes: int64(c.ThumbnailMB) * mb},
		Compressed: imagecache.PoolLimits{MaxEntries: c.CompressedEntries, MaxBytes: int64(c.CompressedMB) * mb},
		Logger:     logger,
	}
}
