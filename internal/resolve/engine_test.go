package resolve

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/domain/domaintest"
	"github.com/Tora-Build/soothsayer-core/internal/scoring"
)

type engineFixture struct {
	markets     *domaintest.MarketStore
	commitments *domaintest.CommitmentStore
	reputation  *domaintest.ReputationStore
	events      *domaintest.EventStore
	source      *domaintest.StaticSource
	engine      *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	f := &engineFixture{
		markets:     domaintest.NewMarketStore(),
		commitments: domaintest.NewCommitmentStore(),
		reputation:  domaintest.NewReputationStore(),
		events:      domaintest.NewEventStore(),
		source:      &domaintest.StaticSource{Values: map[string]float64{}},
	}
	scorer := scoring.New(f.commitments, f.reputation, logger)
	f.engine = NewEngine(f.markets, f.events, f.source, f.locksNop(), scorer, 4, logger)
	return f
}

func (f *engineFixture) locksNop() domain.LockManager { return domaintest.NopLockManager{} }

func openMarket(id string, deadline time.Time, rule domain.Rule) domain.Market {
	return domain.Market{
		ID:       id,
		Question: "Will it happen?",
		Rule:     rule,
		Category: "crypto",
		Deadline: deadline,
		Status:   domain.MarketStatusOpen,
	}
}

func TestRunCycleResolvesDueMarkets(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	btcRule := domain.Rule{Source: "coingecko:bitcoin", Metric: "price_usd", Op: domain.OpGTE, Target: 75000}
	ethRule := domain.Rule{Source: "coingecko:ethereum", Metric: "price_usd", Op: domain.OpGTE, Target: 5000}
	f.markets.Seed(
		openMarket("pred_btc", past, btcRule),
		openMarket("pred_eth", past, ethRule),
		openMarket("pred_later", future, btcRule),
	)
	f.source.Values["coingecko:bitcoin|price_usd"] = 80000
	f.source.Values["coingecko:ethereum|price_usd"] = 4200

	report, err := f.engine.RunCycle(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Selected)
	require.Len(t, report.Resolved, 2)
	assert.Empty(t, report.Failed)

	btc, err := f.markets.Get(context.Background(), "pred_btc")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, btc.Status)
	assert.Equal(t, domain.OutcomeYes, btc.Outcome)
	require.NotNil(t, btc.OutcomeValue)
	assert.Equal(t, 80000.0, *btc.OutcomeValue)
	require.NotNil(t, btc.ResolvedAt)
	assert.True(t, btc.ResolvedAt.Equal(now))
	assert.NotEmpty(t, btc.OutcomeEvidence)

	eth, err := f.markets.Get(context.Background(), "pred_eth")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNo, eth.Outcome)

	later, err := f.markets.Get(context.Background(), "pred_later")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, later.Status)

	events, err := f.events.ListByMarket(context.Background(), "pred_btc")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "resolved", events[0].Event)
}

func TestRunCycleIndeterminateLeavesMarketOpen(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rule := domain.Rule{Source: "coingecko:bitcoin", Metric: "price_usd", Op: domain.OpGTE, Target: 75000}
	f.markets.Seed(openMarket("pred_btc", now.Add(-time.Hour), rule))
	// No value seeded: the source reports an outage.

	report, err := f.engine.RunCycle(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.True(t, report.Failed[0].Retryable)
	assert.Empty(t, report.Resolved)

	m, err := f.markets.Get(context.Background(), "pred_btc")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Equal(t, domain.OutcomeUnset, m.Outcome)

	// Next cycle with the metric back succeeds.
	f.source.Values["coingecko:bitcoin|price_usd"] = 76000
	report, err = f.engine.RunCycle(context.Background(), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, report.Resolved, 1)
	assert.Equal(t, domain.OutcomeYes, report.Resolved[0].Outcome)
}

func TestRunCycleManualMarketSkipped(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.markets.Seed(openMarket("pred_manual", now.Add(-time.Hour), domain.Rule{Source: domain.SourceManual}))

	report, err := f.engine.RunCycle(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.Empty(t, report.Resolved)
	assert.Empty(t, report.Failed)
	assert.Zero(t, f.source.Calls)

	m, err := f.markets.Get(context.Background(), "pred_manual")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
}

func TestRunCycleScoresCommitments(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rule := domain.Rule{Source: "coingecko:bitcoin", Metric: "price_usd", Op: domain.OpGTE, Target: 75000}
	f.markets.Seed(openMarket("pred_btc", now.Add(-time.Hour), rule))
	f.source.Values["coingecko:bitcoin|price_usd"] = 80000

	require.NoError(t, f.commitments.Upsert(context.Background(), domain.Commitment{
		MarketID: "pred_btc", Agent: "sharp_bot", Position: domain.PositionYes, Confidence: 75,
	}))
	require.NoError(t, f.commitments.Upsert(context.Background(), domain.Commitment{
		MarketID: "pred_btc", Agent: "blunt_bot", Position: domain.PositionNo, Confidence: 75,
	}))

	_, err := f.engine.RunCycle(context.Background(), now)
	require.NoError(t, err)

	commits, err := f.commitments.ListByMarket(context.Background(), "pred_btc")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	for _, c := range commits {
		require.NotNil(t, c.Score, "agent %s", c.Agent)
		switch c.Agent {
		case "sharp_bot":
			assert.InDelta(t, 0.9375, *c.Score, 1e-9)
		case "blunt_bot":
			assert.InDelta(t, 0.4375, *c.Score, 1e-9)
		}
	}

	rep, err := f.reputation.Get(context.Background(), "sharp_bot")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Correct)
	assert.Equal(t, 1, rep.Scored)
}

func TestRunCycleUnknownOperatorNeedsManualReview(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rule := domain.Rule{Source: "coingecko:bitcoin", Metric: "price_usd", Op: "between", Target: 75000}
	f.markets.Seed(openMarket("pred_bogus", now.Add(-time.Hour), rule))
	f.source.Values["coingecko:bitcoin|price_usd"] = 80000

	// A malformed operator is not a transient failure: the market parks in
	// the skipped bucket awaiting an operator decision instead of retrying.
	report, err := f.engine.RunCycle(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, report.Skipped, 1)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Resolved)

	m, err := f.markets.Get(context.Background(), "pred_bogus")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)

	// The operator path still works for it.
	require.NoError(t, f.engine.RecordManualOutcome(context.Background(), "pred_bogus", domain.OutcomeYes, "decided by hand", now))
	m, err = f.markets.Get(context.Background(), "pred_bogus")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
}

func TestRecordManualOutcome(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.markets.Seed(openMarket("pred_manual", now.Add(-time.Hour), domain.Rule{Source: domain.SourceManual}))

	err := f.engine.RecordManualOutcome(context.Background(), "pred_manual", domain.OutcomeYes, "operator review", now)
	require.NoError(t, err)

	m, err := f.markets.Get(context.Background(), "pred_manual")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, m.Status)
	assert.Equal(t, domain.OutcomeYes, m.Outcome)
	assert.Equal(t, "operator review", m.OutcomeEvidence)

	// Resolving again is rejected by the transition rules.
	err = f.engine.RecordManualOutcome(context.Background(), "pred_manual", domain.OutcomeNo, "second thoughts", now)
	require.Error(t, err)
	var ite *domain.InvalidTransitionError
	assert.ErrorAs(t, err, &ite)
}

func TestCorrectOutcome(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.markets.Seed(openMarket("pred_manual", now.Add(-time.Hour), domain.Rule{Source: domain.SourceManual}))

	// No decided outcome yet: nothing to correct.
	err := f.engine.CorrectOutcome(context.Background(), "pred_manual", domain.OutcomeNo, "premature", now)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, f.engine.RecordManualOutcome(context.Background(), "pred_manual", domain.OutcomeYes, "operator review", now))
	require.NoError(t, f.engine.CorrectOutcome(context.Background(), "pred_manual", domain.OutcomeNo, "source retracted", now.Add(time.Hour)))

	// The market row keeps the original resolution.
	m, err := f.markets.Get(context.Background(), "pred_manual")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeYes, m.Outcome)

	corrections, err := f.markets.ListCorrections(context.Background(), "pred_manual")
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, domain.OutcomeNo, corrections[0].Outcome)
	assert.Equal(t, "source retracted", corrections[0].Evidence)

	events, err := f.events.ListByMarket(context.Background(), "pred_manual")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "outcome_corrected", events[1].Event)
}

func TestRecordManualOutcomeInvalid(t *testing.T) {
	f := newEngineFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.markets.Seed(openMarket("pred_manual", now.Add(-time.Hour), domain.Rule{Source: domain.SourceManual}))
	require.NoError(t, f.commitments.Upsert(context.Background(), domain.Commitment{
		MarketID: "pred_manual", Agent: "sharp_bot", Position: domain.PositionYes, Confidence: 90,
	}))

	err := f.engine.RecordManualOutcome(context.Background(), "pred_manual", domain.OutcomeInvalid, "ambiguous question", now)
	require.NoError(t, err)

	m, err := f.markets.Get(context.Background(), "pred_manual")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusInvalid, m.Status)

	// Invalid outcomes leave commitments unscored but counted.
	commits, err := f.commitments.ListByMarket(context.Background(), "pred_manual")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Nil(t, commits[0].Score)

	rep, err := f.reputation.Get(context.Background(), "sharp_bot")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 0, rep.Scored)
}
