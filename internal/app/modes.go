package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/graduate"
	"github.com/Tora-Build/soothsayer-core/internal/leaderboard"
	"github.com/Tora-Build/soothsayer-core/internal/resolve"
	"github.com/Tora-Build/soothsayer-core/internal/scan"
	"github.com/Tora-Build/soothsayer-core/internal/scoring"
	"github.com/Tora-Build/soothsayer-core/internal/settle"
)

// cycleFunc is one unit of periodic work. Errors are logged and notified but
// never stop the loop; transient upstream failures heal on the next tick.
type cycleFunc func(ctx context.Context, now time.Time) error

// loop runs fn immediately and then on every cycle interval tick until the
// context is cancelled.
func (a *App) loop(ctx context.Context, name string, fn cycleFunc) error {
	interval := a.cfg.Cycle.Interval.Duration

	run := func() {
		if err := fn(ctx, time.Now().UTC()); err != nil {
			a.logger.ErrorContext(ctx, "cycle failed",
				slog.String("cycle", name),
				slog.String("error", err.Error()),
			)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// scanCycle discovers predictions on the platform and registers them.
func (a *App) scanCycle(deps *Dependencies) cycleFunc {
	scanner := scan.NewScanner(deps.Moltbook, deps.Markets, deps.Commitments, deps.Events, a.logger)
	return func(ctx context.Context, now time.Time) error {
		_, err := scanner.Run(ctx, now)
		if err != nil {
			_ = deps.Notifier.CycleError(ctx, "scan", err)
		}
		return err
	}
}

// syncCycle pulls commitment annotations from market post comments.
func (a *App) syncCycle(deps *Dependencies) cycleFunc {
	sync := scan.NewCommitSync(deps.Moltbook, deps.Markets, deps.Commitments, a.logger)
	return func(ctx context.Context, now time.Time) error {
		_, err := sync.Run(ctx)
		if err != nil {
			_ = deps.Notifier.CycleError(ctx, "sync", err)
		}
		return err
	}
}

// resolveCycle resolves due markets, scores commitments, and announces the
// outcomes on the market posts.
func (a *App) resolveCycle(deps *Dependencies) cycleFunc {
	scorer := scoring.New(deps.Commitments, deps.Reputation, a.logger)
	engine := resolve.NewEngine(
		deps.Markets, deps.Events, deps.Source, deps.LockManager,
		scorer, a.cfg.Cycle.ResolveParallelism, a.logger,
	)
	poster := resolve.NewPoster(deps.Markets, deps.Commitments, deps.Moltbook, a.logger)

	return func(ctx context.Context, now time.Time) error {
		report, err := engine.RunCycle(ctx, now)
		if err != nil {
			_ = deps.Notifier.CycleError(ctx, "resolve", err)
			return err
		}
		_ = deps.Notifier.ResolutionSummary(ctx, report)

		if _, err := poster.Run(ctx); err != nil {
			return fmt.Errorf("post results: %w", err)
		}
		return nil
	}
}

// graduateCycle promotes eligible markets to on-chain contracts.
func (a *App) graduateCycle(deps *Dependencies) cycleFunc {
	controller := graduate.New(
		deps.Markets, deps.Commitments, deps.Mappings, deps.Events,
		deps.Chain, deps.LockManager,
		graduate.Config{
			ChainName:        a.cfg.Chain.Name,
			ChainID:          a.cfg.Chain.ChainID,
			Guardian:         a.cfg.Chain.Guardian,
			InitialLiquidity: a.cfg.Chain.InitialLiquidity,
			MinValidators:    a.cfg.Chain.MinValidators,
		},
		a.logger,
	)
	return func(ctx context.Context, now time.Time) error {
		decisions, err := controller.RunCycle(ctx, now)
		if err != nil {
			_ = deps.Notifier.CycleError(ctx, "graduate", err)
			return err
		}
		for _, d := range decisions {
			if d.Submitted {
				_ = deps.Notifier.Graduated(ctx, d.MarketID, d.Address)
			}
		}
		return nil
	}
}

// settleCycle reconciles graduated markets with their contracts.
func (a *App) settleCycle(deps *Dependencies) cycleFunc {
	sync := settle.New(
		deps.Markets, deps.Mappings, deps.Events,
		deps.Chain, deps.LockManager,
		settle.Config{
			Adjudicator:   deps.Adjudicator,
			DisputeWindow: a.cfg.Chain.DisputeWindow.Duration,
		},
		a.logger,
	)
	return func(ctx context.Context, now time.Time) error {
		reports, err := sync.RunCycle(ctx, now)
		if err != nil {
			_ = deps.Notifier.CycleError(ctx, "settle", err)
			return err
		}
		for _, r := range reports {
			if r.Transitioned && r.TxHash != "" {
				market, err := deps.Markets.Get(ctx, r.MarketID)
				if err != nil {
					continue
				}
				_ = deps.Notifier.SettlementSubmitted(ctx, r.MarketID, market.Outcome)
			}
		}
		return nil
	}
}

// LeaderboardMode builds the current standings and publishes them as a post,
// then returns. It is a one-shot mode for cron-style scheduling.
func (a *App) LeaderboardMode(ctx context.Context, deps *Dependencies) error {
	svc := leaderboard.New(deps.Reputation, deps.Markets, deps.Moltbook, a.cfg.Moltbook.Submolt, a.logger)
	postID, err := svc.Publish(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("leaderboard mode: %w", err)
	}
	a.logger.InfoContext(ctx, "leaderboard published", slog.String("post_id", postID))
	return nil
}

// AllMode runs the full adjudication pipeline on every tick: discover, sync
// commitments, resolve and announce, graduate, and settle. The stages run in
// order because each feeds the next; a failed stage is logged and the
// remaining stages still run.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	stages := []struct {
		name string
		fn   cycleFunc
	}{
		{"scan", a.scanCycle(deps)},
		{"sync", a.syncCycle(deps)},
		{"resolve", a.resolveCycle(deps)},
		{"graduate", a.graduateCycle(deps)},
		{"settle", a.settleCycle(deps)},
	}

	return a.loop(ctx, "all", func(ctx context.Context, now time.Time) error {
		for _, stage := range stages {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := stage.fn(ctx, now); err != nil {
				a.logger.WarnContext(ctx, "stage failed",
					slog.String("stage", stage.name),
					slog.String("error", err.Error()),
				)
			}
		}
		return nil
	})
}
