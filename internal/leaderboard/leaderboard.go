// Package leaderboard builds agent standings from the scoring projection and
// publishes them as a formatted post.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/platform/moltbook"
)

// maxRanked caps how many agents appear in each section of the post.
const maxRanked = 20

// PlatformWriter is the write side of the social platform for publishing.
type PlatformWriter interface {
	CreatePost(ctx context.Context, submolt, title, content string) (moltbook.Post, error)
}

// Standing is one agent's row on the leaderboard.
type Standing struct {
	Agent      string
	Total      int
	Scored     int
	Correct    int
	Accuracy   float64 // percent, meaningful when Scored > 0
	AvgScore   float64
	Categories map[string]int
}

// Board is a complete leaderboard snapshot.
type Board struct {
	Standings    []Standing
	TotalMarkets int64
	TotalAgents  int
	TotalScored  int
	UpdatedAt    time.Time
}

// Service builds and publishes leaderboards.
type Service struct {
	reputation domain.ReputationStore
	markets    domain.MarketStore
	platform   PlatformWriter
	submolt    string
	logger     *slog.Logger
}

// New wires a leaderboard service. platform may be nil for build-only use.
func New(
	reputation domain.ReputationStore,
	markets domain.MarketStore,
	platform PlatformWriter,
	submolt string,
	logger *slog.Logger,
) *Service {
	return &Service{
		reputation: reputation,
		markets:    markets,
		platform:   platform,
		submolt:    submolt,
		logger:     logger.With(slog.String("component", "leaderboard")),
	}
}

// Build computes current standings. Agents with scored commitments rank
// first by accuracy; unscored agents follow, ordered by activity.
func (s *Service) Build(ctx context.Context, now time.Time) (Board, error) {
	agents, err := s.reputation.List(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("leaderboard: listing reputation: %w", err)
	}

	board := Board{UpdatedAt: now, TotalAgents: len(agents)}
	for _, a := range agents {
		st := Standing{
			Agent:      a.Agent,
			Total:      a.Total,
			Scored:     a.Scored,
			Correct:    a.Correct,
			AvgScore:   a.AvgScore(),
			Categories: a.Categories,
		}
		if a.Scored > 0 {
			st.Accuracy = float64(a.Correct) / float64(a.Scored) * 100
		}
		board.TotalScored += a.Scored
		board.Standings = append(board.Standings, st)
	}

	sort.SliceStable(board.Standings, func(i, j int) bool {
		a, b := board.Standings[i], board.Standings[j]
		if (a.Scored > 0) != (b.Scored > 0) {
			return a.Scored > 0
		}
		if a.Accuracy != b.Accuracy {
			return a.Accuracy > b.Accuracy
		}
		if a.AvgScore != b.AvgScore {
			return a.AvgScore > b.AvgScore
		}
		return a.Total > b.Total
	})

	count, err := s.markets.Count(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("leaderboard: counting markets: %w", err)
	}
	board.TotalMarkets = count

	return board, nil
}

// Publish builds the board and posts it. It returns the created post id.
func (s *Service) Publish(ctx context.Context, now time.Time) (string, error) {
	board, err := s.Build(ctx, now)
	if err != nil {
		return "", err
	}

	title := "Prediction Leaderboard — " + now.Format("January 2, 2006")
	post, err := s.platform.CreatePost(ctx, s.submolt, title, FormatPost(board))
	if err != nil {
		return "", fmt.Errorf("leaderboard: publishing: %w", err)
	}

	s.logger.Info("leaderboard published",
		slog.String("post_id", post.ID),
		slog.Int("agents", board.TotalAgents))
	return post.ID, nil
}

// FormatPost renders a board as the Moltbook markdown post.
func FormatPost(board Board) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "**%d** markets tracked across **%d** agents.\n", board.TotalMarkets, board.TotalAgents)
	fmt.Fprintf(&sb, "**%d** scored commitments.\n\n", board.TotalScored)

	var scored, pending []Standing
	for _, st := range board.Standings {
		if st.Scored > 0 {
			scored = append(scored, st)
		} else {
			pending = append(pending, st)
		}
	}

	if len(scored) > 0 {
		sb.WriteString("## Scored Agents\n\n")
		sb.WriteString("| Rank | Agent | Accuracy | Record | Brier Avg |\n")
		sb.WriteString("|------|-------|----------|--------|-----------|\n")
		for i, st := range scored {
			if i >= maxRanked {
				break
			}
			fmt.Fprintf(&sb, "| %d | **%s** | %.1f%% | %d/%d | %.2f |\n",
				i+1, st.Agent, st.Accuracy, st.Correct, st.Scored, st.AvgScore)
		}
		sb.WriteString("\n")
	}

	if len(pending) > 0 {
		sb.WriteString("## Agents Awaiting Resolution\n\n")
		for i, st := range pending {
			if i >= maxRanked {
				break
			}
			fmt.Fprintf(&sb, "- **%s** — %d commitments%s\n", st.Agent, st.Total, formatCategories(st.Categories))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n\n")
	sb.WriteString("*Tag your predictions with `[PREDICTION]` and a deadline to get tracked. ")
	sb.WriteString("Crypto predictions auto-resolve via price data; everything else resolves manually.*")

	return sb.String()
}

func formatCategories(categories map[string]int) string {
	if len(categories) == 0 {
		return ""
	}
	type kv struct {
		name  string
		count int
	}
	pairs := make([]kv, 0, len(categories))
	for name, count := range categories {
		pairs = append(pairs, kv{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s(%d)", p.name, p.count)
	}
	return " [" + strings.Join(parts, ", ") + "]"
}
