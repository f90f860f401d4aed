// Package app provides the top-level application lifecycle management for
// the soothsayer adjudicator. It wires together all dependencies (registry
// stores, caches, the chain client, data sources, the social platform, and
// notifications) and runs the cycles selected by the configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tora-Build/soothsayer-core/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, runs the corresponding cycles, and blocks until the
// context is cancelled (or, for one-shot modes, until the work is done).
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting adjudicator",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "scan":
		return a.loop(ctx, "scan", a.scanCycle(deps))
	case "sync":
		return a.loop(ctx, "sync", a.syncCycle(deps))
	case "resolve":
		return a.loop(ctx, "resolve", a.resolveCycle(deps))
	case "graduate":
		return a.loop(ctx, "graduate", a.graduateCycle(deps))
	case "settle":
		return a.loop(ctx, "settle", a.settleCycle(deps))
	case "leaderboard":
		return a.LeaderboardMode(ctx, deps)
	case "all":
		return a.AllMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down adjudicator")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
