package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/metadata"
)

// SyncReport summarizes one commitment sync cycle.
type SyncReport struct {
	Markets     int
	Comments    int
	Commitments int
	Late        int
}

// CommitSync pulls comments on open market posts and records well-formed
// commitment annotations. A later annotation from the same agent replaces
// the earlier one; annotations after the market deadline are ignored.
type CommitSync struct {
	platform    PlatformReader
	markets     domain.MarketStore
	commitments domain.CommitmentStore
	logger      *slog.Logger
}

// NewCommitSync wires a commitment synchronizer.
func NewCommitSync(
	platform PlatformReader,
	markets domain.MarketStore,
	commitments domain.CommitmentStore,
	logger *slog.Logger,
) *CommitSync {
	return &CommitSync{
		platform:    platform,
		markets:     markets,
		commitments: commitments,
		logger:      logger.With(slog.String("component", "commitsync")),
	}
}

// Run syncs commitments for every open market that has a backing post.
// Per-market fetch failures are logged and skipped so one dead post cannot
// stall the cycle.
func (s *CommitSync) Run(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	open, err := s.markets.List(ctx, domain.MarketFilter{Status: domain.MarketStatusOpen})
	if err != nil {
		return report, fmt.Errorf("commitsync: list open markets: %w", err)
	}

	for _, m := range open {
		if m.PostID == "" {
			continue
		}
		report.Markets++

		comments, err := s.platform.ListComments(ctx, m.PostID)
		if err != nil {
			s.logger.Warn("listing comments failed",
				slog.String("market_id", m.ID),
				slog.String("post_id", m.PostID),
				slog.String("error", err.Error()))
			continue
		}
		report.Comments += len(comments)

		// Oldest first, so a repeated annotation lands on the latest one.
		sort.Slice(comments, func(i, j int) bool {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		})

		for _, c := range comments {
			commit, ok := metadata.ParseCommit(c.Content)
			if !ok {
				continue
			}
			agent := c.AuthorName()
			if agent == "" {
				continue
			}
			if !m.Deadline.IsZero() && c.CreatedAt.After(m.Deadline) {
				report.Late++
				continue
			}
			err := s.commitments.Upsert(ctx, domain.Commitment{
				MarketID:    m.ID,
				Agent:       agent,
				Position:    commit.Position,
				Confidence:  commit.Confidence,
				CommentID:   c.ID,
				CommittedAt: c.CreatedAt,
			})
			if err != nil {
				s.logger.Warn("recording commitment failed",
					slog.String("market_id", m.ID),
					slog.String("agent", agent),
					slog.String("error", err.Error()))
				continue
			}
			report.Commitments++
		}
	}

	s.logger.Info("commitment sync complete",
		slog.Int("markets", report.Markets),
		slog.Int("comments", report.Comments),
		slog.Int("commitments", report.Commitments),
		slog.Int("late", report.Late))
	return report, nil
}
