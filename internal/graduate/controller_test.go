package graduate

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/domain/domaintest"
)

type fakeChain struct {
	creations int
}

func (f *fakeChain) CreateMarket(ctx context.Context, p domain.CreateMarketParams) (string, error) {
	f.creations++
	return fmt.Sprintf("0x%040d", f.creations), nil
}

func (f *fakeChain) Settle(ctx context.Context, marketAddress string, outcome domain.Outcome, ts time.Time) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (f *fakeChain) Finalize(ctx context.Context, marketAddress string) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (f *fakeChain) Read(ctx context.Context, marketAddress string) (domain.ChainMarketView, error) {
	return domain.ChainMarketView{}, fmt.Errorf("not supported")
}

func eligibleMarket(now time.Time) domain.Market {
	return domain.Market{
		ID:          "m1",
		RawQuestion: "::question BTC above 100k\n::rule\nsource:coingecko:bitcoin\nmetric:price_usd\nop:gte\ntarget:100000",
		Question:    "BTC above 100k",
		Rule: domain.Rule{
			Source: "coingecko:bitcoin",
			Metric: "price_usd",
			Op:     domain.OpGTE,
			Target: 100000,
		},
		Deadline: now.Add(30 * 24 * time.Hour),
		Status:   domain.MarketStatusOpen,
	}
}

func commitN(t *testing.T, store domain.CommitmentStore, marketID string, agents int, perAgent int) {
	t.Helper()
	for a := 0; a < agents; a++ {
		for i := 0; i < perAgent; i++ {
			err := store.Upsert(context.Background(), domain.Commitment{
				MarketID:   marketID,
				Agent:      fmt.Sprintf("agent-%d", a),
				Position:   domain.PositionYes,
				Confidence: 70,
			})
			require.NoError(t, err)
		}
	}
}

func newController(markets *domaintest.MarketStore, commitments *domaintest.CommitmentStore, mappings *domaintest.ChainMappingStore, chain *fakeChain) *Controller {
	return New(
		markets, commitments, mappings, domaintest.NewEventStore(), chain,
		domaintest.NopLockManager{},
		Config{ChainName: "basecamp", ChainID: 8453, InitialLiquidity: 100, MinValidators: 3},
		slog.New(slog.DiscardHandler),
	)
}

func TestEvaluateGraduatesEligibleMarket(t *testing.T) {
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	markets := domaintest.NewMarketStore()
	commitments := domaintest.NewCommitmentStore()
	mappings := domaintest.NewChainMappingStore()
	chain := &fakeChain{}

	m := eligibleMarket(now)
	markets.Seed(m)
	commitN(t, commitments, m.ID, 5, 1)

	ctrl := newController(markets, commitments, mappings, chain)
	decision, err := ctrl.Evaluate(context.Background(), m, now)
	require.NoError(t, err)

	assert.True(t, decision.Eligible)
	assert.True(t, decision.Submitted)
	assert.NotEmpty(t, decision.Address)
	assert.Equal(t, 1, chain.creations)

	mapping, err := mappings.GetByMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, decision.Address, mapping.MarketAddress)
	assert.Equal(t, domain.ChainStateLive, mapping.Status)
	assert.Equal(t, "basecamp", mapping.Chain)
}

func TestEvaluateReportsUnmetCriteria(t *testing.T) {
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	markets := domaintest.NewMarketStore()
	commitments := domaintest.NewCommitmentStore()
	chain := &fakeChain{}

	m := eligibleMarket(now)
	m.Rule = domain.Rule{Source: domain.SourceManual}
	m.Deadline = now.Add(24 * time.Hour)
	markets.Seed(m)
	commitN(t, commitments, m.ID, 2, 1)

	ctrl := newController(markets, commitments, domaintest.NewChainMappingStore(), chain)
	decision, err := ctrl.Evaluate(context.Background(), m, now)
	require.NoError(t, err)

	assert.False(t, decision.Eligible)
	assert.False(t, decision.Submitted)
	// Manual rule, short lead, too few commitments, too few agents.
	assert.Len(t, decision.Reasons, 4)
	assert.Equal(t, 0, chain.creations)
}

func TestEvaluateTwiceSubmitsOnce(t *testing.T) {
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	markets := domaintest.NewMarketStore()
	commitments := domaintest.NewCommitmentStore()
	mappings := domaintest.NewChainMappingStore()
	chain := &fakeChain{}

	m := eligibleMarket(now)
	markets.Seed(m)
	commitN(t, commitments, m.ID, 6, 1)

	ctrl := newController(markets, commitments, mappings, chain)

	first, err := ctrl.Evaluate(context.Background(), m, now)
	require.NoError(t, err)
	assert.True(t, first.Submitted)

	second, err := ctrl.Evaluate(context.Background(), m, now)
	require.NoError(t, err)
	assert.False(t, second.Submitted)
	assert.Contains(t, second.Reasons, "chain mapping already exists")

	assert.Equal(t, 1, chain.creations)
}

func TestRunCycleSkipsMappedMarkets(t *testing.T) {
	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	markets := domaintest.NewMarketStore()
	commitments := domaintest.NewCommitmentStore()
	mappings := domaintest.NewChainMappingStore()
	chain := &fakeChain{}

	m := eligibleMarket(now)
	markets.Seed(m)
	commitN(t, commitments, m.ID, 5, 1)
	require.NoError(t, mappings.Create(context.Background(), domain.ChainMapping{
		MarketID:      m.ID,
		MarketAddress: "0xexisting",
		Status:        domain.ChainStateLive,
	}))

	ctrl := newController(markets, commitments, mappings, chain)
	decisions, err := ctrl.RunCycle(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Submitted)
	assert.Equal(t, 0, chain.creations)
}
