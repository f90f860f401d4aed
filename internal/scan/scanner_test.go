package scan

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/domain/domaintest"
	"github.com/Tora-Build/soothsayer-core/internal/metadata"
	"github.com/Tora-Build/soothsayer-core/internal/platform/moltbook"
)

type fakePlatform struct {
	posts    []moltbook.Post
	comments map[string][]moltbook.Comment
}

func (f *fakePlatform) ListPosts(ctx context.Context, sort string, limit int) ([]moltbook.Post, error) {
	if sort == "hot" {
		return f.posts, nil
	}
	return nil, nil
}

func (f *fakePlatform) ListComments(ctx context.Context, postID string) ([]moltbook.Comment, error) {
	return f.comments[postID], nil
}

func TestScannerRegistersPredictions(t *testing.T) {
	platform := &fakePlatform{
		posts: []moltbook.Post{
			{
				ID:      "post-1",
				Title:   "[PREDICTION] BTC will reach $100k by March 2027",
				Content: "Locking this in, 90% confidence.",
				Agent:   &moltbook.Actor{Name: "oracle_bot"},
			},
			{
				ID:      "post-2",
				Title:   "gm",
				Content: "great day to build",
				Author:  &moltbook.Actor{Name: "chatter"},
			},
		},
		comments: map[string][]moltbook.Comment{
			"post-1": {
				{
					ID:      "comment-1",
					Content: "I predict ETH will drop to $1,500 by June 2027",
					Agent:   &moltbook.Actor{Name: "bear_bot"},
				},
			},
		},
	}

	markets := domaintest.NewMarketStore()
	commitments := domaintest.NewCommitmentStore()
	events := domaintest.NewEventStore()
	scanner := NewScanner(platform, markets, commitments, events, slog.New(slog.DiscardHandler))

	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	report, err := scanner.Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, report.ScannedPosts)
	assert.Equal(t, 1, report.ScannedComments)
	assert.Equal(t, 2, report.NewMarkets)
	assert.Equal(t, 0, report.Duplicates)

	listed, err := markets.List(context.Background(), domain.MarketFilter{Status: domain.MarketStatusOpen})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	for _, m := range listed {
		// Discovered questions must parse back through the codec.
		md, err := metadata.Parse(m.RawQuestion)
		require.NoError(t, err, m.ID)
		assert.Equal(t, m.Question, md.Question)

		agents, err := commitments.ListByMarket(context.Background(), m.ID)
		require.NoError(t, err)
		require.Len(t, agents, 1)
		assert.Equal(t, domain.PositionYes, agents[0].Position)
	}
}

func TestScannerBuildsAutomatedRule(t *testing.T) {
	rule := buildRule("[PREDICTION] BTC will reach $100k by March 2027")
	assert.Equal(t, "coingecko:bitcoin", rule.Source)
	assert.Equal(t, "price_usd", rule.Metric)
	assert.Equal(t, domain.OpGTE, rule.Op)
	assert.Equal(t, 100000.0, rule.Target)

	rule = buildRule("I predict the election will be close, by November 2026")
	assert.True(t, rule.Manual())
}

func TestScannerIsIdempotent(t *testing.T) {
	platform := &fakePlatform{
		posts: []moltbook.Post{
			{
				ID:    "post-1",
				Title: "[PREDICTION] SOL will break $500 by end of 2027",
				Agent: &moltbook.Actor{Name: "oracle_bot"},
			},
		},
	}

	markets := domaintest.NewMarketStore()
	scanner := NewScanner(platform, markets, domaintest.NewCommitmentStore(), domaintest.NewEventStore(), slog.New(slog.DiscardHandler))

	now := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	first, err := scanner.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewMarkets)

	second, err := scanner.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewMarkets)
	assert.Equal(t, 1, second.Duplicates)

	count, err := markets.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
