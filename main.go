package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mywio/gitlab-credentials/pkg/config"
	"github.com/mywio/gitlab-credentials/pkg/core"
	"github.com/mywio/gitlab-credentials/pkg/credentials"
)

func main() {
	// Setup Logger
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load Config
	cfgMapEnv := config.LoadConfigMapFromEnv()
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfgMapFile, err := config.LoadConfigFile(configPath)
	if err != nil {
		logger.Error("Failed to load config file", "path", configPath, "error", err)
	}
	cfgMap := config.MergeConfigMap(cfgMapFile, cfgMapEnv)
	cfg := cfgMap.Core(config.LoadConfig())
	if cfg.PluginsDir == "" {
		cfg.PluginsDir = "plugins"
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil && cfg.LogLevel != "" {
		logger.Warn("Invalid log level, using INFO", "level", cfg.LogLevel)
	}

	// Setup Module Manager
	mgr := core.NewModuleManager(logger)
	mgr.SetConfig(cfgMap)
	mgr.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})

	if cfg.SecretKey != "" {
		codec, err := core.NewSecretCodecFromString(cfg.SecretKey)
		if err != nil {
			logger.Error("Invalid SECRET_KEY", "error", err)
			os.Exit(1)
		}
		mgr.SetSecretCodec(codec)
	} else {
		logger.Warn("SECRET_KEY not set, encrypted token values will be treated as plain text")
	}

	// Secret providers first so credentials can resolve token_ref at Init.
	if err := mgr.LoadPlugins(cfg.PluginsDir); err != nil {
		logger.Error("Failed to load plugins", "error", err)
	}
	// The credentials plugin is linked in; a gitlab_credentials.so in the
	// plugins dir takes its place.
	if _, err := mgr.GetPlugin(credentials.PluginName); err != nil {
		if err := mgr.Register(credentials.NewPlugin()); err != nil {
			logger.Error("Failed to register credentials plugin", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Using credentials plugin from plugins dir", "dir", cfg.PluginsDir)
	}

	core.Subscribe("credential_*", func(ctx context.Context, event core.InternalEvent) {
		logger.InfoContext(ctx, "Credential event", "type", event.Type, "source", event.Source, "id", event.Subject)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Init(ctx); err != nil {
		logger.Error("Failed to initialize modules", "error", err)
		os.Exit(1)
	}

	mgr.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, shutting down...", "signal", sig)

	mgr.Stop(ctx)
	logger.Info("Shutdown complete")
}
