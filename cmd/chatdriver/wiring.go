package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/neboloop/chatdriver/internal/browser"
	"github.com/neboloop/chatdriver/internal/config"
	"github.com/neboloop/chatdriver/internal/conversation"
	"github.com/neboloop/chatdriver/internal/defaults"
	"github.com/neboloop/chatdriver/internal/logging"
	"github.com/neboloop/chatdriver/internal/session"
	"github.com/neboloop/chatdriver/internal/sites"
)

// loadConfig reads the config file selected by --config, or the one in the data directory.
func loadConfig() (*config.Config, error) {
	if _, err := defaults.EnsureDataDir(); err != nil {
		return nil, err
	}

	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.Log.Verbose = true
	}
	if hardClose {
		cfg.Session.CloseMode = session.CloseHard.String()
	}
	if siteArg != "" {
		cfg.Site = siteArg
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Verbose: cfg.Log.Verbose,
		JSON:    cfg.Log.JSON,
	})
}

// newDaemon builds the launcher for the configured browser. The executable is resolved
// when a launch is actually needed.
func newDaemon(cfg *config.Config, logger *slog.Logger) *browser.Daemon {
	spec := browser.LaunchSpec{
		ExecutablePath: cfg.Browser.ExecutablePath,
		CDPPort:        cfg.Browser.CDPPort,
		UserDataDir:    cfg.Browser.UserDataDir,
		Headless:       cfg.Browser.Headless,
		NoSandbox:      cfg.Browser.NoSandbox,
		ExtraArgs:      cfg.Browser.ExtraArgs,
		LogPath:        filepath.Join(cfg.DataDir, "browser", "daemon.log"),
	}
	if profile, err := sites.FromConfig(cfg); err == nil {
		spec.StartURL = profile.StartURL
	}

	return browser.NewDaemon(browser.DaemonOptions{
		Endpoint:     cfg.Endpoint(),
		Spec:         spec,
		Process:      browser.ExecProcessControl{},
		Prober:       browser.HTTPProber{Timeout: cfg.Session.ProbeTimeout},
		Descriptors:  browser.NewDescriptorStore(cfg.DescriptorPath()),
		PollInterval: cfg.Session.LaunchPollInterval,
		Timeout:      cfg.Session.LaunchTimeout,
		Logger:       logger,
	})
}

// openStore opens the conversation store, with the sqlite index when enabled.
// An index that fails to open is skipped; the JSON files remain authoritative.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*conversation.Store, *conversation.Index) {
	opts := []conversation.Option{conversation.WithLogger(logger)}

	var idx *conversation.Index
	if cfg.Conversations.Index {
		var err error
		idx, err = conversation.OpenIndex(ctx, cfg.IndexPath())
		if err != nil {
			logger.Warn("conversation index unavailable", "path", cfg.IndexPath(), "error", err)
			idx = nil
		} else {
			opts = append(opts, conversation.WithIndex(idx))
		}
	}
	return conversation.NewStore(cfg.Conversations.Dir, opts...), idx
}

// app is everything a session command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	daemon  *browser.Daemon
	store   *conversation.Store
	index   *conversation.Index
	manager *session.Manager
	mode    session.CloseMode
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	profile, err := sites.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	daemon := newDaemon(cfg, logger)
	connector, err := browser.NewConnector(cfg.Browser.Driver, logger)
	if err != nil {
		return nil, err
	}
	mode, err := session.ParseCloseMode(cfg.Session.CloseMode)
	if err != nil {
		return nil, err
	}

	store, idx := openStore(ctx, cfg, logger)

	manager, err := session.New(session.Options{
		Daemon:          daemon,
		Connector:       connector,
		Health:          browser.EvalHealthChecker{Timeout: cfg.Session.HealthTimeout},
		Deliverer:       sites.NewScriptDeliverer(profile, logger),
		Store:           store,
		Retry:           session.RetryPolicy{MaxAttempts: cfg.Session.ConnectAttempts, Backoff: cfg.Session.ConnectBackoff},
		ConnectTimeout:  cfg.Session.ConnectTimeout,
		ResponseTimeout: cfg.Session.ResponseTimeout,
		Descriptors:     browser.NewDescriptorStore(cfg.DescriptorPath()),
		WatchDescriptor: cfg.Session.WatchDescriptor,
		Logger:          logger,
	})
	if err != nil {
		if idx != nil {
			idx.Close()
		}
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		daemon:  daemon,
		store:   store,
		index:   idx,
		manager: manager,
		mode:    mode,
	}, nil
}

func (a *app) Close(ctx context.Context) error {
	err := a.manager.Close(ctx, a.mode)
	if a.index != nil {
		a.index.Close()
	}
	return err
}

// resolveConversation maps a conversation id or file path to a path in the store.
func resolveConversation(store *conversation.Store, ref string) string {
	if strings.HasSuffix(ref, ".json") || strings.ContainsRune(ref, filepath.Separator) {
		return ref
	}
	return store.PathFor(ref)
}
