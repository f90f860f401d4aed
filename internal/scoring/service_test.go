package scoring

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/domain/domaintest"
)

func resolvedMarket(id string, outcome domain.Outcome) domain.Market {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return domain.Market{
		ID:         id,
		Category:   "crypto",
		Status:     domain.MarketStatusResolved,
		Outcome:    outcome,
		ResolvedAt: &at,
	}
}

func TestScoreMarket(t *testing.T) {
	commitments := domaintest.NewCommitmentStore()
	reputation := domaintest.NewReputationStore()
	svc := New(commitments, reputation, slog.New(slog.DiscardHandler))

	ctx := context.Background()
	require.NoError(t, commitments.Upsert(ctx, domain.Commitment{
		MarketID: "pred_a", Agent: "sharp_bot", Position: domain.PositionYes, Confidence: 90,
	}))
	require.NoError(t, commitments.Upsert(ctx, domain.Commitment{
		MarketID: "pred_a", Agent: "blunt_bot", Position: domain.PositionNo, Confidence: 60,
	}))

	scored, err := svc.ScoreMarket(ctx, resolvedMarket("pred_a", domain.OutcomeYes))
	require.NoError(t, err)
	assert.Equal(t, 2, scored)

	sharp, err := reputation.Get(ctx, "sharp_bot")
	require.NoError(t, err)
	assert.Equal(t, 1, sharp.Correct)
	assert.InDelta(t, 0.99, sharp.AvgScore(), 1e-9)
	assert.Equal(t, 1, sharp.Categories["crypto"])

	blunt, err := reputation.Get(ctx, "blunt_bot")
	require.NoError(t, err)
	assert.Equal(t, 0, blunt.Correct)
	assert.InDelta(t, 0.64, blunt.AvgScore(), 1e-9)
}

func TestScoreMarketInvalidCountsButDoesNotScore(t *testing.T) {
	commitments := domaintest.NewCommitmentStore()
	reputation := domaintest.NewReputationStore()
	svc := New(commitments, reputation, slog.New(slog.DiscardHandler))

	ctx := context.Background()
	require.NoError(t, commitments.Upsert(ctx, domain.Commitment{
		MarketID: "pred_a", Agent: "sharp_bot", Position: domain.PositionYes, Confidence: 90,
	}))

	scored, err := svc.ScoreMarket(ctx, resolvedMarket("pred_a", domain.OutcomeInvalid))
	require.NoError(t, err)
	assert.Zero(t, scored)

	rep, err := reputation.Get(ctx, "sharp_bot")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 0, rep.Scored)
	assert.Zero(t, rep.AvgScore())
}

func TestRebuildMatchesIncremental(t *testing.T) {
	markets := domaintest.NewMarketStore()
	commitments := domaintest.NewCommitmentStore()
	reputation := domaintest.NewReputationStore()
	svc := New(commitments, reputation, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	seed := []struct {
		market  domain.Market
		commits []domain.Commitment
	}{
		{resolvedMarket("pred_a", domain.OutcomeYes), []domain.Commitment{
			{MarketID: "pred_a", Agent: "sharp_bot", Position: domain.PositionYes, Confidence: 80},
			{MarketID: "pred_a", Agent: "blunt_bot", Position: domain.PositionNo, Confidence: 70},
		}},
		{resolvedMarket("pred_b", domain.OutcomeNo), []domain.Commitment{
			{MarketID: "pred_b", Agent: "sharp_bot", Position: domain.PositionNo, Confidence: 65},
		}},
		{resolvedMarket("pred_c", domain.OutcomeInvalid), []domain.Commitment{
			{MarketID: "pred_c", Agent: "blunt_bot", Position: domain.PositionYes, Confidence: 55},
		}},
	}
	for _, s := range seed {
		markets.Seed(s.market)
		for _, c := range s.commits {
			require.NoError(t, commitments.Upsert(ctx, c))
		}
		_, err := svc.ScoreMarket(ctx, s.market)
		require.NoError(t, err)
	}

	incremental := map[string]domain.AgentReputation{}
	for _, agent := range []string{"sharp_bot", "blunt_bot"} {
		rep, err := reputation.Get(ctx, agent)
		require.NoError(t, err)
		incremental[agent] = rep
	}

	require.NoError(t, svc.Rebuild(ctx, markets))

	for agent, want := range incremental {
		got, err := reputation.Get(ctx, agent)
		require.NoError(t, err)
		assert.Equal(t, want.Total, got.Total, agent)
		assert.Equal(t, want.Scored, got.Scored, agent)
		assert.Equal(t, want.Correct, got.Correct, agent)
		assert.InDelta(t, want.ScoreSum, got.ScoreSum, 1e-9, agent)
		assert.Equal(t, want.Categories, got.Categories, agent)
	}
}
