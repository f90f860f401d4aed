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
	"github.com/Tora-Build/soothsayer-core/internal/platform/moltbook"
)

func commentBy(id, agent, content string, at time.Time) moltbook.Comment {
	return moltbook.Comment{
		ID:        id,
		Content:   content,
		Agent:     &moltbook.Actor{Name: agent},
		CreatedAt: at,
	}
}

func TestCommitSyncRecordsAnnotations(t *testing.T) {
	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	base := deadline.Add(-48 * time.Hour)

	platform := &fakePlatform{comments: map[string][]moltbook.Comment{
		"post1": {
			commentBy("c1", "sharp_bot", "[COMMIT] YES 80%\nstrong setup here", base),
			commentBy("c2", "blunt_bot", "[COMMIT] NO 60%", base.Add(time.Minute)),
			commentBy("c3", "chatty_bot", "interesting, following this one", base.Add(2*time.Minute)),
		},
	}}
	markets := domaintest.NewMarketStore()
	markets.Seed(domain.Market{
		ID: "pred_a", Status: domain.MarketStatusOpen, PostID: "post1", Deadline: deadline,
	})
	commitments := domaintest.NewCommitmentStore()

	sync := NewCommitSync(platform, markets, commitments, slog.New(slog.DiscardHandler))
	report, err := sync.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Markets)
	assert.Equal(t, 3, report.Comments)
	assert.Equal(t, 2, report.Commitments)

	commits, err := commitments.ListByMarket(context.Background(), "pred_a")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "blunt_bot", commits[0].Agent)
	assert.Equal(t, domain.PositionNo, commits[0].Position)
	assert.Equal(t, 60, commits[0].Confidence)
	assert.Equal(t, "sharp_bot", commits[1].Agent)
	assert.Equal(t, "c1", commits[1].CommentID)
}

func TestCommitSyncLaterAnnotationWins(t *testing.T) {
	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	base := deadline.Add(-48 * time.Hour)

	platform := &fakePlatform{comments: map[string][]moltbook.Comment{
		"post1": {
			// Newest first, the way the platform returns them.
			commentBy("c2", "sharp_bot", "[COMMIT] NO 55%\nchanged my mind", base.Add(time.Hour)),
			commentBy("c1", "sharp_bot", "[COMMIT] YES 80%", base),
		},
	}}
	markets := domaintest.NewMarketStore()
	markets.Seed(domain.Market{
		ID: "pred_a", Status: domain.MarketStatusOpen, PostID: "post1", Deadline: deadline,
	})
	commitments := domaintest.NewCommitmentStore()

	sync := NewCommitSync(platform, markets, commitments, slog.New(slog.DiscardHandler))
	_, err := sync.Run(context.Background())
	require.NoError(t, err)

	commits, err := commitments.ListByMarket(context.Background(), "pred_a")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, domain.PositionNo, commits[0].Position)
	assert.Equal(t, 55, commits[0].Confidence)
	assert.Equal(t, "c2", commits[0].CommentID)
}

func TestCommitSyncIgnoresLateCommitments(t *testing.T) {
	deadline := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	platform := &fakePlatform{comments: map[string][]moltbook.Comment{
		"post1": {
			commentBy("c1", "late_bot", "[COMMIT] YES 99%", deadline.Add(time.Hour)),
		},
	}}
	markets := domaintest.NewMarketStore()
	markets.Seed(domain.Market{
		ID: "pred_a", Status: domain.MarketStatusOpen, PostID: "post1", Deadline: deadline,
	})
	commitments := domaintest.NewCommitmentStore()

	sync := NewCommitSync(platform, markets, commitments, slog.New(slog.DiscardHandler))
	report, err := sync.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Late)
	assert.Zero(t, report.Commitments)

	commits, err := commitments.ListByMarket(context.Background(), "pred_a")
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestCommitSyncSkipsMarketsWithoutPosts(t *testing.T) {
	platform := &fakePlatform{comments: map[string][]moltbook.Comment{}}
	markets := domaintest.NewMarketStore()
	markets.Seed(domain.Market{ID: "pred_a", Status: domain.MarketStatusOpen})
	commitments := domaintest.NewCommitmentStore()

	sync := NewCommitSync(platform, markets, commitments, slog.New(slog.DiscardHandler))
	report, err := sync.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Markets)
}
