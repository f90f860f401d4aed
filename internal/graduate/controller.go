// Package graduate promotes qualifying off-chain markets to on-chain
// contracts. A market graduates at most once: the chain mapping is the
// persistent proof of graduation and its existence is checked before any
// submission.
package graduate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// Eligibility thresholds. A market qualifies when it has enough committed
// agents behind it, enough runway before its deadline, and can be resolved
// without a human in the loop.
const (
	minCommitments  = 5
	minAgents       = 3
	minDeadlineLead = 7 * 24 * time.Hour
)

// lockTTL bounds how long one graduation attempt may hold a market.
const lockTTL = 2 * time.Minute

// Config carries the chain identity and the fixed creation policy.
type Config struct {
	ChainName        string
	ChainID          int64
	Guardian         string
	InitialLiquidity float64
	MinValidators    int
}

// Controller evaluates graduation criteria and drives on-chain creation.
type Controller struct {
	markets     domain.MarketStore
	commitments domain.CommitmentStore
	mappings    domain.ChainMappingStore
	events      domain.EventStore
	chain       domain.MarketChain
	locks       domain.LockManager
	cfg         Config
	logger      *slog.Logger
}

// New wires a graduation controller.
func New(
	markets domain.MarketStore,
	commitments domain.CommitmentStore,
	mappings domain.ChainMappingStore,
	events domain.EventStore,
	chain domain.MarketChain,
	locks domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		markets:     markets,
		commitments: commitments,
		mappings:    mappings,
		events:      events,
		chain:       chain,
		locks:       locks,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "graduate")),
	}
}

// RunCycle evaluates every open market. Per-market failures are recorded in
// the decision and do not abort the cycle.
func (c *Controller) RunCycle(ctx context.Context, now time.Time) ([]domain.GraduationDecision, error) {
	markets, err := c.markets.List(ctx, domain.MarketFilter{Status: domain.MarketStatusOpen})
	if err != nil {
		return nil, fmt.Errorf("graduate: listing open markets: %w", err)
	}

	decisions := make([]domain.GraduationDecision, 0, len(markets))
	for _, m := range markets {
		decision, err := c.Evaluate(ctx, m, now)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				continue
			}
			c.logger.Warn("graduation evaluation failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()))
			decision = domain.GraduationDecision{MarketID: m.ID, Reasons: []string{err.Error()}}
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// Evaluate checks the graduation criteria for one market and, when all hold,
// creates the on-chain market and records the mapping. The mapping-existence
// check runs before any submission, so a market with a mapping is never
// re-submitted regardless of how many times Evaluate is called.
func (c *Controller) Evaluate(ctx context.Context, m domain.Market, now time.Time) (domain.GraduationDecision, error) {
	decision := domain.GraduationDecision{MarketID: m.ID}

	unlock, err := c.locks.Acquire(ctx, "graduate:"+m.ID, lockTTL)
	if err != nil {
		return decision, err
	}
	defer unlock()

	if _, err := c.mappings.GetByMarket(ctx, m.ID); err == nil {
		decision.Reasons = append(decision.Reasons, "chain mapping already exists")
		return decision, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return decision, fmt.Errorf("graduate: checking mapping for %s: %w", m.ID, err)
	}

	if m.Status != domain.MarketStatusOpen {
		decision.Reasons = append(decision.Reasons, "market is not open")
	}
	if m.Rule.Manual() {
		decision.Reasons = append(decision.Reasons, "rule is not automatically resolvable")
	}
	if lead := m.Deadline.Sub(now); lead < minDeadlineLead {
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("deadline lead %s below minimum %s", lead.Round(time.Hour), minDeadlineLead))
	}

	commitments, err := c.commitments.ListByMarket(ctx, m.ID)
	if err != nil {
		return decision, fmt.Errorf("graduate: listing commitments for %s: %w", m.ID, err)
	}
	if len(commitments) < minCommitments {
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("%d commitments below minimum %d", len(commitments), minCommitments))
	}
	agents := map[string]bool{}
	for _, commitment := range commitments {
		agents[commitment.Agent] = true
	}
	if len(agents) < minAgents {
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("%d distinct agents below minimum %d", len(agents), minAgents))
	}

	if len(decision.Reasons) > 0 {
		return decision, nil
	}
	decision.Eligible = true

	// The creation transaction is awaited before the mapping write; a crash
	// in between leaves an orphan contract but never a mapping without one.
	address, err := c.chain.CreateMarket(ctx, domain.CreateMarketParams{
		Question:         m.RawQuestion,
		StartTime:        now,
		Deadline:         m.Deadline,
		Guardian:         c.cfg.Guardian,
		InitialLiquidity: c.cfg.InitialLiquidity,
		AgentID:          m.ID,
		MinValidators:    c.cfg.MinValidators,
	})
	if err != nil {
		return decision, fmt.Errorf("graduate: creating market %s on chain: %w", m.ID, err)
	}

	mapping := domain.ChainMapping{
		MarketID:      m.ID,
		Chain:         c.cfg.ChainName,
		ChainID:       c.cfg.ChainID,
		MarketAddress: address,
		Status:        domain.ChainStateLive,
		CreatedAt:     now,
	}
	if err := c.mappings.Create(ctx, mapping); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a race after submission; the first mapping stands.
			decision.Reasons = append(decision.Reasons, "chain mapping already exists")
			decision.Eligible = false
			return decision, nil
		}
		return decision, fmt.Errorf("graduate: recording mapping for %s: %w", m.ID, err)
	}

	if err := c.events.Append(ctx, m.ID, "market_graduated", map[string]any{
		"chain":          c.cfg.ChainName,
		"market_address": address,
	}); err != nil {
		c.logger.Warn("appending graduation event failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()))
	}

	decision.Submitted = true
	decision.Address = address
	c.logger.Info("market graduated",
		slog.String("market_id", m.ID),
		slog.String("market_address", address))
	return decision, nil
}
