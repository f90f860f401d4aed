package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/platform/moltbook"
)

// PlatformWriter is the write side of the social platform for announcing
// outcomes on market posts.
type PlatformWriter interface {
	CreateComment(ctx context.Context, postID, content string) (moltbook.Comment, error)
}

// Poster announces resolved outcomes as a comment on each market's post,
// exactly once per market. The posted flag is only set after the comment
// succeeds, so a failed post is retried next cycle.
type Poster struct {
	markets     domain.MarketStore
	commitments domain.CommitmentStore
	platform    PlatformWriter
	logger      *slog.Logger
}

// NewPoster wires a results poster.
func NewPoster(
	markets domain.MarketStore,
	commitments domain.CommitmentStore,
	platform PlatformWriter,
	logger *slog.Logger,
) *Poster {
	return &Poster{
		markets:     markets,
		commitments: commitments,
		platform:    platform,
		logger:      logger.With(slog.String("component", "results")),
	}
}

// Run posts outcomes for every market resolved since its last visit. It
// returns the number of results posted. Per-market failures are logged and
// retried on a later cycle.
func (p *Poster) Run(ctx context.Context) (int, error) {
	posted := 0
	for _, status := range []domain.MarketStatus{
		domain.MarketStatusResolved,
		domain.MarketStatusSettled,
		domain.MarketStatusFinalized,
		domain.MarketStatusInvalid,
	} {
		markets, err := p.markets.List(ctx, domain.MarketFilter{Status: status})
		if err != nil {
			return posted, fmt.Errorf("results: list %s markets: %w", status, err)
		}
		for _, m := range markets {
			if m.ResultsPosted || m.PostID == "" || m.Outcome == domain.OutcomeUnset {
				continue
			}
			if err := p.postOne(ctx, m); err != nil {
				p.logger.Warn("posting result failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()))
				continue
			}
			posted++
		}
	}
	return posted, nil
}

func (p *Poster) postOne(ctx context.Context, m domain.Market) error {
	commits, err := p.commitments.ListByMarket(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("list commitments: %w", err)
	}

	comment, err := p.platform.CreateComment(ctx, m.PostID, FormatResult(m, commits))
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	if err := p.markets.MarkResultsPosted(ctx, m.ID, comment.ID); err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}

	p.logger.Info("result posted",
		slog.String("market_id", m.ID),
		slog.String("comment_id", comment.ID),
		slog.String("outcome", string(m.Outcome)))
	return nil
}

// FormatResult renders the outcome announcement for a market post.
func FormatResult(m domain.Market, commits []domain.Commitment) string {
	var b strings.Builder

	switch m.Outcome {
	case domain.OutcomeInvalid:
		b.WriteString("**Market INVALID** ⚖️\n\n")
		b.WriteString("This prediction could not be adjudicated. ")
		b.WriteString("No commitments were scored.\n")
	default:
		fmt.Fprintf(&b, "**Resolved: %s** ", m.Outcome)
		if m.Outcome == domain.OutcomeYes {
			b.WriteString("✅\n\n")
		} else {
			b.WriteString("❌\n\n")
		}
		if m.OutcomeValue != nil {
			fmt.Fprintf(&b, "Observed value: %v\n", *m.OutcomeValue)
		}
	}
	if m.OutcomeEvidence != "" {
		fmt.Fprintf(&b, "Evidence: %s\n", m.OutcomeEvidence)
	}

	if len(commits) > 0 && m.Outcome != domain.OutcomeInvalid {
		b.WriteString("\n**Commitments**\n")
		for _, c := range commits {
			mark := "❌"
			if (c.Position == domain.PositionYes) == (m.Outcome == domain.OutcomeYes) {
				mark = "✅"
			}
			fmt.Fprintf(&b, "- %s: %s %d%% %s", c.Agent, c.Position, c.Confidence, mark)
			if c.Score != nil {
				fmt.Fprintf(&b, " (brier %.4f)", *c.Score)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n*Adjudicated automatically by SoothSayer.*")
	return b.String()
}
