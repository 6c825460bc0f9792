// rigchat - a terminal chat client for cloud AI models with photo and web
// search support.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/cli"
	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/imagecache"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/offline"
	"github.com/jeranaias/rigchat/internal/search"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(raw []string) int {
	args, err := cli.ParseArgs(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, cli.Usage)
		return 2
	}
	if args.Help {
		fmt.Print(cli.Usage)
		return 0
	}
	if args.Version {
		fmt.Printf("rigchat %s (%s)\n", Version, GitCommit)
		return 0
	}

	if args.InitConfig {
		return initConfig(args.ConfigPath)
	}

	// Credentials may come from a .env file; real environment variables win.
	envFile := args.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && (args.EnvFile != "" || !errors.Is(err, fs.ErrNotExist)) {
		fmt.Fprintf(os.Stderr, "Error: load %s: %v\n", envFile, err)
		return 1
	}

	cfg, cfgPath, err := loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, closeLog, err := openLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	offline.SetOfflineMode(cfg.Offline)

	codec := imagecache.NewCodec(cfg.Images.CodecOptions(logger))

	chat := cloud.NewOpenRouterClient(cfg.Chat.OpenRouterKey).
		WithModel(cfg.Chat.Model).
		WithTimeout(cfg.ChatTimeout()).
		WithMaxRetries(cfg.Chat.MaxRetries).
		WithSiteURL(cfg.Chat.SiteURL).
		WithSiteName(cfg.Chat.SiteName).
		WithLogger(logger)
	if cfg.Chat.BaseURL != "" {
		chat.WithBaseURL(cfg.Chat.BaseURL)
	}

	searcher := search.NewClient(cfg.Search.APIKey).
		WithTimeout(cfg.SearchTimeout()).
		WithRateLimit(rate.Limit(cfg.Search.RatePerSec), cfg.Search.Burst).
		WithLogger(logger)
	if cfg.Search.BaseURL != "" {
		searcher.WithBaseURL(cfg.Search.BaseURL)
	}

	orch := conversation.New(conversation.Deps{
		Store:             model.NewStore(),
		Codec:             codec,
		Chat:              chat,
		Search:            searcher,
		Logger:            logger,
		EarlyMaxDimension: cfg.Images.EarlyMaxDimension,
		EarlyQuality:      cfg.Images.EarlyQuality,
		SearchLimit:       cfg.Search.ResultLimit,
	}, cfg.AI)
	defer orch.Close()

	logger.Info("rigchat starting",
		"version", Version,
		"model", chat.Model(),
		"chat_key", chat.KeyFingerprint(),
		"search_key", cloud.KeyFingerprint(cfg.Search.APIKey),
		"offline", cfg.Offline,
	)

	if cfgPath != "" {
		watcher, err := config.NewWatcher(cfgPath, logger, func(next *config.Config) {
			orch.SetConfig(next.AI)
			offline.SetOfflineMode(next.Offline || args.Offline)
		})
		if err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else if err := watcher.Start(); err != nil {
			logger.Warn("config watcher unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	session := cli.NewSession(orch, codec, os.Stdout, cli.Options{
		Quiet:            args.Quiet,
		Markdown:         cli.IsStdoutTTY() && cli.ColorsEnabled(),
		Width:            cli.TerminalWidth(),
		ThumbnailPixels:  cfg.Images.ThumbnailPixels,
		Model:            chat.Model(),
		ChatConfigured:   chat.IsConfigured(),
		SearchConfigured: searcher.IsConfigured(),
		Logger:           logger,
	})
	defer session.Close()

	ctx := context.Background()
	if args.Message != "" {
		if err := session.RunOnce(ctx, args.Message); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if err := session.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// initConfig writes the default configuration to path, or to
// ~/.rigchat/config.toml when path is empty.
func initConfig(path string) int {
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		path = p
	}
	if err := config.WriteDefault(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s\n", path)
	return 0
}

// loadConfig loads the config file and applies command-line overrides. The
// returned path is empty when no file backs the configuration.
func loadConfig(args cli.Args) (*config.Config, string, error) {
	path := args.ConfigPath
	if path == "" {
		if p, err := config.ConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}

	if args.Model != "" {
		cfg.Chat.Model = args.Model
	}
	if args.Offline {
		cfg.Offline = true
	}
	if args.LogLevel != "" {
		if _, err := config.ParseLevel(args.LogLevel); err != nil {
			return nil, "", err
		}
		cfg.Logging.Level = args.LogLevel
	}
	return cfg, path, nil
}

// openLogger builds the logger, writing to the configured file or stderr.
func openLogger(lc config.LogConfig) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { f.Close() }
	}
	return config.NewLogger(lc, w), closeFn, nil
}
