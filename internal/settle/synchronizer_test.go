package settle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/domain/domaintest"
)

const (
	adjudicatorAddr = "0xAdjudicator00000000000000000000000000001"
	marketAddr      = "0xMarket0000000000000000000000000000000001"
)

// scriptedChain serves a mutable view and counts submissions. Settle and
// Finalize advance the view the way the real contract would.
type scriptedChain struct {
	view      domain.ChainMarketView
	settles   int
	finalizes int
	failNext  bool
}

func (c *scriptedChain) CreateMarket(ctx context.Context, p domain.CreateMarketParams) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (c *scriptedChain) Settle(ctx context.Context, marketAddress string, outcome domain.Outcome, ts time.Time) (string, error) {
	if c.failNext {
		c.failNext = false
		return "", fmt.Errorf("settle reverted: %w", domain.ErrChainSubmission)
	}
	c.settles++
	c.view.State = domain.ChainStateSettled
	c.view.Outcome = outcome
	c.view.IsSettled = true
	return fmt.Sprintf("0xsettle%d", c.settles), nil
}

func (c *scriptedChain) Finalize(ctx context.Context, marketAddress string) (string, error) {
	c.finalizes++
	c.view.State = domain.ChainStateFinalized
	c.view.IsFinalized = true
	return fmt.Sprintf("0xfinal%d", c.finalizes), nil
}

func (c *scriptedChain) Read(ctx context.Context, marketAddress string) (domain.ChainMarketView, error) {
	return c.view, nil
}

type fixture struct {
	markets  *domaintest.MarketStore
	mappings *domaintest.ChainMappingStore
	chain    *scriptedChain
	sync     *Synchronizer
}

func newFixture(t *testing.T, status domain.MarketStatus, outcome domain.Outcome) *fixture {
	t.Helper()
	resolvedAt := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)

	markets := domaintest.NewMarketStore()
	market := domain.Market{
		ID:       "m1",
		Question: "BTC above 100k",
		Status:   status,
		Outcome:  outcome,
	}
	if status != domain.MarketStatusOpen {
		market.ResolvedAt = &resolvedAt
	}
	markets.Seed(market)

	mappings := domaintest.NewChainMappingStore()
	require.NoError(t, mappings.Create(context.Background(), domain.ChainMapping{
		MarketID:      "m1",
		Chain:         "basecamp",
		MarketAddress: marketAddr,
		Status:        domain.ChainStateLive,
	}))

	chain := &scriptedChain{view: domain.ChainMarketView{
		State:       domain.ChainStateLive,
		Adjudicator: adjudicatorAddr,
	}}

	sync := New(markets, mappings, domaintest.NewEventStore(), chain, domaintest.NopLockManager{},
		Config{Adjudicator: strings.ToLower(adjudicatorAddr)}, // case must not matter
		slog.New(slog.DiscardHandler))

	return &fixture{markets: markets, mappings: mappings, chain: chain, sync: sync}
}

func (f *fixture) run(t *testing.T, now time.Time) []domain.SyncReport {
	t.Helper()
	reports, err := f.sync.RunCycle(context.Background(), now)
	require.NoError(t, err)
	return reports
}

func TestSyncSubmitsSettlementForResolvedMarket(t *testing.T) {
	f := newFixture(t, domain.MarketStatusResolved, domain.OutcomeYes)
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	reports := f.run(t, now)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].Err)
	assert.True(t, reports[0].Transitioned)
	assert.Equal(t, 1, f.chain.settles)

	market, err := f.markets.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusSettled, market.Status)

	mapping, err := f.mappings.GetByMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChainStateSettled, mapping.Status)
	assert.Equal(t, "0xsettle1", mapping.SettleTxHash)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t, domain.MarketStatusResolved, domain.OutcomeNo)
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	f.run(t, now)
	require.Equal(t, 1, f.chain.settles)

	// Second pass: contract already settled, market already settled locally.
	// Finalize fires once (no dispute window configured), then nothing.
	f.run(t, now)
	assert.Equal(t, 1, f.chain.settles)
	assert.Equal(t, 1, f.chain.finalizes)

	reports := f.run(t, now)
	assert.Equal(t, 1, f.chain.settles)
	assert.Equal(t, 1, f.chain.finalizes)

	// A finalized mapping leaves the active set entirely.
	assert.Empty(t, reports)
}

func TestSyncRefusesForeignAdjudicator(t *testing.T) {
	f := newFixture(t, domain.MarketStatusResolved, domain.OutcomeYes)
	f.chain.view.Adjudicator = "0x000000000000000000000000000000000000dEaD"
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	reports := f.run(t, now)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Err, "does not match")
	assert.Equal(t, 0, f.chain.settles)

	market, err := f.markets.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, market.Status)
}

func TestSyncSubmissionFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, domain.MarketStatusResolved, domain.OutcomeYes)
	f.chain.failNext = true
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	reports := f.run(t, now)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Err, "submitting settlement")

	market, err := f.markets.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, market.Status)

	mapping, err := f.mappings.GetByMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChainStateLive, mapping.Status)
	assert.Empty(t, mapping.SettleTxHash)

	// The failure is transient; the next cycle settles.
	f.run(t, now)
	assert.Equal(t, 1, f.chain.settles)
}

func TestSyncMirrorsExternalSettlement(t *testing.T) {
	// Contract settled NO by someone else while the market is still open
	// locally. Sync must adopt the observed outcome, stepping through
	// resolved, and never submit a competing settlement.
	f := newFixture(t, domain.MarketStatusOpen, domain.OutcomeUnset)
	f.chain.view.State = domain.ChainStateSettled
	f.chain.view.IsSettled = true
	f.chain.view.Outcome = domain.OutcomeNo
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	reports := f.run(t, now)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].Err)
	assert.Equal(t, 0, f.chain.settles)

	market, err := f.markets.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNo, market.Outcome)
}

func TestSyncCancelledContractInvalidatesMarket(t *testing.T) {
	f := newFixture(t, domain.MarketStatusOpen, domain.OutcomeUnset)
	f.chain.view.State = domain.ChainStateCancelled
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	reports := f.run(t, now)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].Err)

	market, err := f.markets.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusInvalid, market.Status)
	assert.Equal(t, domain.OutcomeInvalid, market.Outcome)

	mapping, err := f.mappings.GetByMarket(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.ChainStateCancelled, mapping.Status)
}

func TestSyncFinalizeWaitsForDisputeWindow(t *testing.T) {
	f := newFixture(t, domain.MarketStatusResolved, domain.OutcomeYes)
	f.sync.cfg.DisputeWindow = 48 * time.Hour
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)

	f.run(t, now)
	require.Equal(t, 1, f.chain.settles)

	// Within the window: settled, not finalized.
	f.run(t, now.Add(time.Hour))
	assert.Equal(t, 0, f.chain.finalizes)

	// Past the window: finalized exactly once.
	f.run(t, now.Add(72*time.Hour))
	assert.Equal(t, 1, f.chain.finalizes)
}
