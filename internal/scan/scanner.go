package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/metadata"
	"github.com/Tora-Build/soothsayer-core/internal/platform/moltbook"
)

// postLimit is how many posts one cycle pulls per sort order.
const postLimit = 50

// defaultHorizon is the deadline applied when a prediction names no date.
const defaultHorizon = 30 * 24 * time.Hour

// defaultConfidence is assumed when a prediction states no percentage. A
// bare claim is treated as a strong but not certain position.
const defaultConfidence = 75

// PlatformReader is the read side of the social platform used for discovery.
type PlatformReader interface {
	ListPosts(ctx context.Context, sort string, limit int) ([]moltbook.Post, error)
	ListComments(ctx context.Context, postID string) ([]moltbook.Comment, error)
}

// Report summarizes one scan cycle.
type Report struct {
	ScannedPosts    int
	ScannedComments int
	NewMarkets      int
	Duplicates      int
}

// Scanner discovers predictions and registers them as open markets, with the
// predicting agent's implicit YES commitment.
type Scanner struct {
	platform    PlatformReader
	markets     domain.MarketStore
	commitments domain.CommitmentStore
	events      domain.EventStore
	logger      *slog.Logger
}

// NewScanner wires a scanner.
func NewScanner(
	platform PlatformReader,
	markets domain.MarketStore,
	commitments domain.CommitmentStore,
	events domain.EventStore,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		platform:    platform,
		markets:     markets,
		commitments: commitments,
		events:      events,
		logger:      logger.With(slog.String("component", "scan")),
	}
}

// Run scans hot and new posts plus their comments for predictions. Already
// registered predictions are recognized by their deterministic id and
// counted as duplicates, so re-scanning is harmless.
func (s *Scanner) Run(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	seen := map[string]bool{}

	for _, sort := range []string{"hot", "new"} {
		posts, err := s.platform.ListPosts(ctx, sort, postLimit)
		if err != nil {
			return report, fmt.Errorf("scan: listing %s posts: %w", sort, err)
		}

		for _, post := range posts {
			if seen[post.ID] {
				continue
			}
			seen[post.ID] = true
			report.ScannedPosts++

			fullText := post.Title + " " + post.Content
			s.consider(ctx, &report, post.AuthorName(), fullText, post.ID, "", now)

			comments, err := s.platform.ListComments(ctx, post.ID)
			if err != nil {
				s.logger.Warn("listing comments failed",
					slog.String("post_id", post.ID),
					slog.String("error", err.Error()))
				continue
			}
			for _, comment := range comments {
				report.ScannedComments++
				s.consider(ctx, &report, comment.AuthorName(), comment.Content, post.ID, comment.ID, now)
			}
		}
	}

	s.logger.Info("scan cycle complete",
		slog.Int("posts", report.ScannedPosts),
		slog.Int("comments", report.ScannedComments),
		slog.Int("new_markets", report.NewMarkets),
		slog.Int("duplicates", report.Duplicates))
	return report, nil
}

// consider evaluates one piece of text and registers a market when it
// qualifies. Registration failures are logged, not fatal: one bad candidate
// must not abort the cycle.
func (s *Scanner) consider(ctx context.Context, report *Report, agent, text, postID, commentID string, now time.Time) {
	if agent == "" {
		return
	}
	ok, quality := IsPrediction(text)
	if !ok {
		return
	}

	claim := ExtractClaim(text)
	sourceRef := postID
	if commentID != "" {
		sourceRef = commentID
	}
	marketID := MarketID(agent, claim, sourceRef)

	deadline := ExtractDeadline(text, now)
	if deadline.IsZero() {
		deadline = now.Add(defaultHorizon).UTC()
	}

	market := domain.Market{
		ID:          marketID,
		RawQuestion: metadata.Format(buildMetadata(claim, text)),
		Question:    claim,
		Rule:        buildRule(text),
		Category:    DetectCategory(claim),
		Deadline:    deadline,
		Status:      domain.MarketStatusOpen,
		PostID:      postID,
		CreatedAt:   now,
	}

	err := s.markets.Create(ctx, market)
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		report.Duplicates++
		return
	case err != nil:
		s.logger.Warn("registering market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()))
		return
	}
	report.NewMarkets++

	confidence := defaultConfidence
	if c := ExtractConfidence(text); c != nil {
		confidence = int(*c * 100)
	}
	commitment := domain.Commitment{
		MarketID:    marketID,
		Agent:       agent,
		Position:    domain.PositionYes,
		Confidence:  confidence,
		CommentID:   commentID,
		CommittedAt: now,
	}
	if err := s.commitments.Upsert(ctx, commitment); err != nil {
		s.logger.Warn("recording author commitment failed",
			slog.String("market_id", marketID),
			slog.String("agent", agent),
			slog.String("error", err.Error()))
	}

	if err := s.events.Append(ctx, marketID, "market_discovered", map[string]any{
		"agent":   agent,
		"quality": quality,
		"post_id": postID,
	}); err != nil {
		s.logger.Warn("appending discovery event failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()))
	}

	s.logger.Info("prediction registered",
		slog.String("market_id", marketID),
		slog.String("agent", agent),
		slog.Int("quality", quality))
}

// MarketID derives the deterministic market id for a discovered prediction.
// The same agent making the same claim in the same place always maps to the
// same market.
func MarketID(agent, claim, sourceRef string) string {
	sum := sha256.Sum256([]byte(agent + ":" + claim + ":" + sourceRef))
	return "pred_" + hex.EncodeToString(sum[:])[:8]
}

// buildRule derives the resolution rule. A recognizable crypto price target
// becomes an automated CoinGecko rule; everything else resolves manually.
func buildRule(text string) domain.Rule {
	pt := ExtractPriceTarget(text)
	if pt == nil {
		return domain.Rule{Source: domain.SourceManual}
	}
	op := domain.OpGTE
	if pt.Direction == "below" {
		op = domain.OpLTE
	}
	return domain.Rule{
		Source: "coingecko:" + pt.CoinID,
		Metric: "price_usd",
		Op:     op,
		Target: pt.Price,
	}
}

func buildMetadata(claim, text string) metadata.Metadata {
	return metadata.Metadata{
		Question: claim,
		Rule:     buildRule(text),
		Category: DetectCategory(claim),
	}
}
