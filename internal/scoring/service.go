package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// Service persists commitment scores and keeps the per-agent reputation
// projection in step. The projection is derived state: Rebuild recomputes it
// from full commitment history and must match the incremental updates.
type Service struct {
	commitments domain.CommitmentStore
	reputation  domain.ReputationStore
	logger      *slog.Logger
}

// New creates a scoring Service.
func New(commitments domain.CommitmentStore, reputation domain.ReputationStore, logger *slog.Logger) *Service {
	return &Service{
		commitments: commitments,
		reputation:  reputation,
		logger:      logger.With(slog.String("component", "scoring")),
	}
}

// ScoreMarket scores every commitment on a resolved market and applies the
// results to the reputation projection. It returns the number of
// commitments scored (nil scores for INVALID outcomes still count as
// applied, but not as scored).
func (s *Service) ScoreMarket(ctx context.Context, m domain.Market) (int, error) {
	commits, err := s.commitments.ListByMarket(ctx, m.ID)
	if err != nil {
		return 0, fmt.Errorf("scoring: list commitments for %s: %w", m.ID, err)
	}

	scored := 0
	for _, c := range commits {
		score := Score(c.Position, c.Confidence, m.Outcome)
		if err := s.commitments.SetScore(ctx, m.ID, c.Agent, score); err != nil {
			return scored, fmt.Errorf("scoring: set score for %s/%s: %w", m.ID, c.Agent, err)
		}
		if err := s.reputation.Apply(ctx, c.Agent, m.Category, score, Correct(c.Position, m.Outcome)); err != nil {
			return scored, fmt.Errorf("scoring: apply reputation for %s: %w", c.Agent, err)
		}
		if score != nil {
			scored++
		}
	}

	s.logger.InfoContext(ctx, "market scored",
		slog.String("market_id", m.ID),
		slog.String("outcome", string(m.Outcome)),
		slog.Int("commitments", len(commits)),
		slog.Int("scored", scored),
	)
	return scored, nil
}

// Rebuild recomputes the reputation projection from scratch by replaying the
// commitment history of every resolved market. The result must equal the
// incrementally-maintained projection.
func (s *Service) Rebuild(ctx context.Context, markets domain.MarketStore) error {
	if err := s.reputation.Reset(ctx); err != nil {
		return fmt.Errorf("scoring: reset reputation: %w", err)
	}

	for _, status := range []domain.MarketStatus{
		domain.MarketStatusResolved,
		domain.MarketStatusSettled,
		domain.MarketStatusFinalized,
		domain.MarketStatusInvalid,
	} {
		resolved, err := markets.List(ctx, domain.MarketFilter{Status: status})
		if err != nil {
			return fmt.Errorf("scoring: list %s markets: %w", status, err)
		}
		for _, m := range resolved {
			if m.Outcome == domain.OutcomeUnset {
				continue
			}
			commits, err := s.commitments.ListByMarket(ctx, m.ID)
			if err != nil {
				return fmt.Errorf("scoring: list commitments for %s: %w", m.ID, err)
			}
			for _, c := range commits {
				score := Score(c.Position, c.Confidence, m.Outcome)
				if err := s.reputation.Apply(ctx, c.Agent, m.Category, score, Correct(c.Position, m.Outcome)); err != nil {
					return fmt.Errorf("scoring: apply reputation for %s: %w", c.Agent, err)
				}
			}
		}
	}
	return nil
}
