// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RIGCHAT_OPENROUTER_KEY", "RIGCHAT_MODEL", "RIGCHAT_SEARCH_KEY",
		"RIGCHAT_OFFLINE", "RIGCHAT_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	ai := cfg.AI
	assert.Equal(t, 10, ai.HistoryTurns)
	assert.Equal(t, 4000, ai.MaxUserChars)
	assert.Equal(t, 1_500_000, ai.MaxImageBytes)
	assert.InDelta(t, 0.8, ai.JPEGQuality, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.ChatTimeout())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USERPROFILE", os.Getenv("HOME"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().AI, cfg.AI)
}

func TestLoadFromPath_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), `
[ai]
temperature = 0.0
history_turns = 4

[chat]
openrouter_key = "sk-or-file"
model = "gpt4o"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.AI.Temperature, "explicit zero must survive")
	assert.Equal(t, 4, cfg.AI.HistoryTurns)
	assert.Equal(t, 4000, cfg.AI.MaxUserChars)
	assert.Equal(t, "sk-or-file", cfg.Chat.OpenRouterKey)
	assert.Equal(t, "gpt4o", cfg.Chat.Model)
	assert.Equal(t, "https://api.exa.ai", cfg.Search.BaseURL)
	assert.Equal(t, DefaultSystemPrompt, cfg.AI.SystemPrompt)
}

func TestLoadFromPath_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("unknown key", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "[ai]\nhistroy_turns = 3\n")
		_, err := LoadFromPath(path)
		var verrs ValidateErrors
		require.ErrorAs(t, err, &verrs)
		assert.Contains(t, err.Error(), "ai.histroy_turns")
	})

	t.Run("bad syntax", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "[ai\n")
		_, err := LoadFromPath(path)
		assert.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "[ai]\ntemperature = 3.5\n")
		_, err := LoadFromPath(path)
		var verrs ValidateErrors
		require.ErrorAs(t, err, &verrs)
		assert.Equal(t, "ai.temperature", verrs[0].Field)
	})
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIGCHAT_OPENROUTER_KEY", "sk-or-env")
	t.Setenv("RIGCHAT_MODEL", "sonnet")
	t.Setenv("RIGCHAT_SEARCH_KEY", "exa-env")
	t.Setenv("RIGCHAT_OFFLINE", "TRUE")
	t.Setenv("RIGCHAT_LOG_LEVEL", "debug")

	path := writeConfig(t, t.TempDir(), "[chat]\nopenrouter_key = \"sk-or-file\"\n")
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-or-env", cfg.Chat.OpenRouterKey)
	assert.Equal(t, "sonnet", cfg.Chat.Model)
	assert.Equal(t, "exa-env", cfg.Search.APIKey)
	assert.True(t, cfg.Offline)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.AI.MaxUserChars = 0
	cfg.AI.JPEGQuality = 1.5
	cfg.Chat.BaseURL = "ftp://example.com"
	cfg.Search.ResultLimit = 11
	cfg.Images.ThumbnailMB = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"ai.max_user_chars", "ai.jpeg_quality", "chat.base_url",
		"search.result_limit", "images.thumbnail_mb", "logging.format",
	} {
		assert.True(t, fields[want], "missing error for %s", want)
	}
}

func TestValidateErrors_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", ValidateErrors{}.Error())
	assert.Equal(t, "a: x; b: y", ValidateErrors{{"a", "x"}, {"b", "y"}}.Error())
}

// =============================================================================
// SAVE
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Chat.OpenRouterKey = "sk-or-saved"
	cfg.AI.HistoryTurns = 6
	require.NoError(t, SaveTOML(cfg, path))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWriteDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, WriteDefault(path))
	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)

	require.NoError(t, os.WriteFile(path, []byte("offline = true\n"), 0600))
	assert.ErrorIs(t, WriteDefault(path), ErrConfigExists)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "offline = true\n", string(data))
}

func TestString_MasksKeys(t *testing.T) {
	cfg := Default()
	cfg.Chat.OpenRouterKey = "sk-or-very-secret"
	s := cfg.String()
	assert.NotContains(t, s, "very-secret")
	assert.Contains(t, s, "chat_key=[set]")
	assert.Contains(t, s, "search_key=[not set]")
}

func TestCodecOptions(t *testing.T) {
	opts := Default().Images.CodecOptions(nil)
	assert.Equal(t, 200, opts.Thumbnails.MaxEntries)
	assert.Equal(t, int64(32*1024*1024), opts.Thumbnails.MaxBytes)
}

// =============================================================================
// LOGGING
// =============================================================================

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "rigchat", rec["app"])
	assert.Equal(t, float64(1), rec["k"])
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "INFO", "warn", "warning", "error", ""} {
		_, err := ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

// =============================================================================
// WATCHER
// =============================================================================

func TestWatcher_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, t.TempDir(), "[ai]\nhistory_turns = 2\n")

	var mu sync.Mutex
	var got []*Config
	w, err := NewWatcher(path, nil, func(cfg *Config) {
		mu.Lock()
		got = append(got, cfg)
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Close()

	// An invalid edit is ignored.
	require.NoError(t, os.WriteFile(path, []byte("[ai]\ntemperature = 9\n"), 0600))
	time.Sleep(3 * DefaultDebounce)

	require.NoError(t, os.WriteFile(path, []byte("[ai]\nhistory_turns = 7\n"), 0600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].AI.HistoryTurns == 7
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	for _, cfg := range got {
		assert.InDelta(t, 0.7, cfg.AI.Temperature, 1e-9, "invalid config must never be delivered")
	}
	mu.Unlock()
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, "")

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, nil, func(*Config) { called <- struct{}{} })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0600))

	select {
	case <-called:
		t.Fatal("callback fired for an unrelated file")
	case <-time.After(3 * DefaultDebounce):
	}
}
