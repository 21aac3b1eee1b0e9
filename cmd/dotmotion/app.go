package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nvandessel/dotmotion/internal/config"
	"github.com/nvandessel/dotmotion/internal/constants"
	"github.com/nvandessel/dotmotion/internal/engine"
	"github.com/nvandessel/dotmotion/internal/logging"
	"github.com/nvandessel/dotmotion/internal/session"
	"github.com/nvandessel/dotmotion/internal/store"
	"github.com/spf13/cobra"
)

// app is the per-invocation wiring shared by every command that touches data.
type app struct {
	cfg     *config.DotmotionConfig
	dataDir string
	store   store.RecordStore
	engine  *engine.Engine
	events  *logging.EventLogger
	logger  *slog.Logger
}

// loadConfig reads --config when given, otherwise the default config file
// with environment overrides.
func loadConfig(cmd *cobra.Command) (*config.DotmotionConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.DotmotionConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configPath returns --config or the default config location.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// dataDir resolves the data directory from --root and --global.
func dataDir(cmd *cobra.Command) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	global, _ := cmd.Flags().GetBool("global")
	return store.DataPath(constants.ScopeFor(global), root)
}

// openApp loads config, opens the record store and restores pending trials.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir, err := dataDir(cmd)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureDataDir(dir); err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	events := logging.NewEventLogger(dir, cfg.Logging.Level)

	s, err := store.Open(commandContext(cmd), cfg.Store, dir)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if r, ok := s.(store.LoadErrorReporter); ok {
		for _, le := range r.LoadErrors() {
			logger.Warn("skipped unreadable record", "file", le.File, "line", le.Line, "error", le.Error)
		}
	}

	registry, err := session.LoadState(dir, engine.SessionConfig(cfg))
	if err != nil {
		logger.Warn("discarding pending trials", "error", err)
		registry = session.NewRegistry(engine.SessionConfig(cfg))
	}

	e, err := engine.New(engine.Options{
		Config:   cfg,
		Store:    s,
		Registry: registry,
		Events:   events,
		Logger:   logger,
	})
	if err != nil {
		s.Close()
		events.Close()
		return nil, err
	}

	logger.Debug("opened data directory", "dir", dir, "backend", store.BackendName(s))
	return &app{cfg: cfg, dataDir: dir, store: s, engine: e, events: events, logger: logger}, nil
}

// saveSession persists pending trials so the next invocation can answer them.
func (a *app) saveSession() error {
	if err := session.SaveState(a.engine.Registry(), a.dataDir); err != nil {
		return fmt.Errorf("failed to save pending trials: %w", err)
	}
	return nil
}

// Close releases the store and event log.
func (a *app) Close() error {
	err := a.store.Close()
	a.events.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// commandContext returns the command's context, or Background outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// signalContext returns a child of parent that is cancelled on SIGINT or
// SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
