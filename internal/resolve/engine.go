package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/scoring"
)

// lockTTL bounds how long a single market resolution may hold its lock.
const lockTTL = 2 * time.Minute

// Engine orchestrates a resolution cycle: select open markets past deadline,
// fetch metrics, evaluate, write outcomes, and invoke scoring. Work is
// parallel across markets but serialized per market id through the lock
// manager. A per-market failure never aborts the rest of the cycle.
type Engine struct {
	markets     domain.MarketStore
	events      domain.EventStore
	source      domain.MetricSource
	locks       domain.LockManager
	scorer      *scoring.Service
	parallelism int
	logger      *slog.Logger
}

// NewEngine creates a resolution Engine. parallelism bounds concurrent
// market work; values below 1 fall back to serial execution.
func NewEngine(
	markets domain.MarketStore,
	events domain.EventStore,
	source domain.MetricSource,
	locks domain.LockManager,
	scorer *scoring.Service,
	parallelism int,
	logger *slog.Logger,
) *Engine {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Engine{
		markets:     markets,
		events:      events,
		source:      source,
		locks:       locks,
		scorer:      scorer,
		parallelism: parallelism,
		logger:      logger.With(slog.String("component", "resolve")),
	}
}

// RunCycle resolves every open market whose deadline has passed as of now.
// The returned report enumerates per-market outcomes and errors; nothing
// fails silently.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (domain.ResolutionReport, error) {
	report := domain.ResolutionReport{
		ID:        uuid.New().String(),
		StartedAt: now,
	}

	due, err := e.markets.List(ctx, domain.MarketFilter{
		Status:      domain.MarketStatusOpen,
		DeadlineLTE: &now,
	})
	if err != nil {
		return report, fmt.Errorf("resolve: list due markets: %w", err)
	}
	report.Selected = len(due)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for _, m := range due {
		m := m
		g.Go(func() error {
			res := e.resolveOne(gctx, m, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.Err != "":
				report.Failed = append(report.Failed, res)
			case res.Outcome == domain.OutcomeUnset:
				report.Skipped = append(report.Skipped, res)
			default:
				report.Resolved = append(report.Resolved, res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	e.logger.InfoContext(ctx, "resolution cycle complete",
		slog.String("report_id", report.ID),
		slog.Int("selected", report.Selected),
		slog.Int("resolved", len(report.Resolved)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// resolveOne handles a single market under its per-market lock. Errors are
// reported in the result, never returned, so unrelated markets proceed.
func (e *Engine) resolveOne(ctx context.Context, m domain.Market, now time.Time) domain.MarketResult {
	res := domain.MarketResult{MarketID: m.ID}

	unlock, err := e.locks.Acquire(ctx, m.ID, lockTTL)
	if err != nil {
		res.Err = err.Error()
		res.Retryable = errors.Is(err, domain.ErrLockHeld)
		return res
	}
	defer unlock()

	// Manual markets wait for an out-of-band decision; no transition here.
	if m.Rule.Manual() {
		e.logger.DebugContext(ctx, "manual market skipped",
			slog.String("market_id", m.ID),
		)
		return res
	}

	value, err := e.source.FetchMetric(ctx, m.Rule.Source, m.Rule.Metric)
	if err != nil {
		// Metric unavailable: no state change, retried next cycle.
		res.Err = err.Error()
		res.Retryable = errors.Is(err, domain.ErrIndeterminate)
		e.logger.WarnContext(ctx, "metric fetch failed",
			slog.String("market_id", m.ID),
			slog.String("source", m.Rule.Source),
			slog.String("error", err.Error()),
		)
		return res
	}

	verdict := Evaluate(m.Rule, &value)
	if verdict == VerdictPendingManual {
		// Malformed operator. The market stays open for a manual decision;
		// refetching would never change the answer.
		e.logger.WarnContext(ctx, "rule operator not evaluable, market needs manual review",
			slog.String("market_id", m.ID),
			slog.String("op", string(m.Rule.Op)),
		)
		return res
	}
	outcome := verdict.Outcome()
	if outcome == domain.OutcomeUnset {
		res.Err = "evaluation produced no definite outcome"
		res.Retryable = true
		return res
	}

	resolvedAt := now
	evidence := fmt.Sprintf("%s %s=%v (rule %s %v)", m.Rule.Source, m.Rule.Metric, value, m.Rule.Op, m.Rule.Target)
	err = e.markets.Transition(ctx, m.ID, domain.MarketStatusResolved, domain.TransitionFields{
		Outcome:         outcome,
		OutcomeValue:    &value,
		OutcomeEvidence: evidence,
		ResolvedAt:      &resolvedAt,
	})
	if err != nil {
		res.Err = err.Error()
		res.Retryable = !errors.Is(err, domain.ErrInvalidTransition)
		return res
	}

	if err := e.events.Append(ctx, m.ID, "resolved", map[string]any{
		"outcome":  string(outcome),
		"value":    value,
		"evidence": evidence,
	}); err != nil {
		e.logger.WarnContext(ctx, "event append failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	m.Outcome = outcome
	if _, err := e.scorer.ScoreMarket(ctx, m); err != nil {
		// Outcome is durable; scoring can be replayed via Rebuild.
		e.logger.ErrorContext(ctx, "scoring failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	res.Outcome = outcome
	res.Value = &value
	return res
}

// RecordManualOutcome writes an operator-decided outcome for a manual
// market, then scores it. The transition enforcement in the store still
// applies; a market that is not open is rejected.
func (e *Engine) RecordManualOutcome(ctx context.Context, id string, outcome domain.Outcome, evidence string, now time.Time) error {
	m, err := e.markets.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve: get market %s: %w", id, err)
	}

	to := domain.MarketStatusResolved
	if outcome == domain.OutcomeInvalid {
		to = domain.MarketStatusInvalid
	}
	err = e.markets.Transition(ctx, id, to, domain.TransitionFields{
		Outcome:         outcome,
		OutcomeEvidence: evidence,
		ResolvedAt:      &now,
	})
	if err != nil {
		return err
	}

	if err := e.events.Append(ctx, id, "resolved_manual", map[string]any{
		"outcome":  string(outcome),
		"evidence": evidence,
	}); err != nil {
		e.logger.WarnContext(ctx, "event append failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}

	m.Outcome = outcome
	_, err = e.scorer.ScoreMarket(ctx, m)
	return err
}

// CorrectOutcome appends an operator correction for a market whose outcome
// was already decided. The original resolution row and the scores derived
// from it are never rewritten; the correction stands beside them as a
// later fact.
func (e *Engine) CorrectOutcome(ctx context.Context, id string, outcome domain.Outcome, evidence string, now time.Time) error {
	m, err := e.markets.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve: get market %s: %w", id, err)
	}
	if m.Outcome == domain.OutcomeUnset {
		return fmt.Errorf("resolve: market %s has no outcome to correct: %w", id, domain.ErrInvalidTransition)
	}

	err = e.markets.AppendCorrection(ctx, domain.OutcomeCorrection{
		MarketID:  id,
		Outcome:   outcome,
		Evidence:  evidence,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("resolve: append correction for %s: %w", id, err)
	}

	if err := e.events.Append(ctx, id, "outcome_corrected", map[string]any{
		"outcome":  string(outcome),
		"evidence": evidence,
	}); err != nil {
		e.logger.WarnContext(ctx, "event append failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
