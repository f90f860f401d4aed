// Package settle mirrors on-chain contract state into the local registry and
// submits settle/finalize transactions for markets this adjudicator resolved.
// The chain is the source of truth for irrevocable facts: every pass reads
// the contract fresh immediately before deciding to transact, so a stale
// local row (for example after a crash between submit and local write) can
// never cause a second settlement.
package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// lockTTL bounds how long one sync pass may hold a market.
const lockTTL = 2 * time.Minute

// Config carries the synchronizer's identity and timing policy.
type Config struct {
	// Adjudicator is the address this process settles with. It must match
	// the contract's registered adjudicator or settlement is refused.
	Adjudicator string
	// DisputeWindow is how long after settlement finalize is attempted.
	DisputeWindow time.Duration
}

// Synchronizer reconciles chain mappings with their contracts.
type Synchronizer struct {
	markets  domain.MarketStore
	mappings domain.ChainMappingStore
	events   domain.EventStore
	chain    domain.MarketChain
	locks    domain.LockManager
	cfg      Config
	logger   *slog.Logger
}

// New wires a settlement synchronizer.
func New(
	markets domain.MarketStore,
	mappings domain.ChainMappingStore,
	events domain.EventStore,
	chain domain.MarketChain,
	locks domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Synchronizer {
	return &Synchronizer{
		markets:  markets,
		mappings: mappings,
		events:   events,
		chain:    chain,
		locks:    locks,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "settle")),
	}
}

// RunCycle syncs every active mapping. Per-mapping failures land in that
// mapping's report; the cycle continues.
func (s *Synchronizer) RunCycle(ctx context.Context, now time.Time) ([]domain.SyncReport, error) {
	mappings, err := s.mappings.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("settle: listing active mappings: %w", err)
	}

	reports := make([]domain.SyncReport, 0, len(mappings))
	for _, mapping := range mappings {
		report := s.SyncOne(ctx, mapping, now)
		if report.Err != "" {
			s.logger.Warn("sync failed",
				slog.String("market_id", mapping.MarketID),
				slog.String("error", report.Err))
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// SyncOne reconciles one mapping against its contract. It is idempotent: a
// pass that finds nothing to do changes nothing and submits nothing.
func (s *Synchronizer) SyncOne(ctx context.Context, mapping domain.ChainMapping, now time.Time) domain.SyncReport {
	report := domain.SyncReport{
		MarketID:      mapping.MarketID,
		MarketAddress: mapping.MarketAddress,
	}

	unlock, err := s.locks.Acquire(ctx, "settle:"+mapping.MarketID, lockTTL)
	if err != nil {
		report.Err = err.Error()
		return report
	}
	defer unlock()

	view, err := s.chain.Read(ctx, mapping.MarketAddress)
	if err != nil {
		report.Err = fmt.Sprintf("reading contract: %v", err)
		return report
	}
	report.ChainState = view.State

	market, err := s.markets.Get(ctx, mapping.MarketID)
	if err != nil {
		report.Err = fmt.Sprintf("reading market: %v", err)
		return report
	}

	switch {
	case view.State == domain.ChainStateCancelled:
		s.reconcileCancelled(ctx, mapping, market, &report)
	case view.IsFinalized:
		s.reconcileFinalized(ctx, mapping, market, view, &report)
	case view.IsSettled:
		s.reconcileSettled(ctx, mapping, market, view, now, &report)
	case market.Status == domain.MarketStatusResolved:
		s.submitSettlement(ctx, mapping, market, view, now, &report)
	}
	return report
}

// submitSettlement pushes a locally resolved outcome on chain. The contract
// was just read as unsettled; the identity check guards against settling a
// market registered to a different adjudicator.
func (s *Synchronizer) submitSettlement(ctx context.Context, mapping domain.ChainMapping, market domain.Market, view domain.ChainMarketView, now time.Time, report *domain.SyncReport) {
	if !strings.EqualFold(view.Adjudicator, s.cfg.Adjudicator) {
		report.Err = fmt.Sprintf("contract adjudicator %s does not match %s: %v",
			view.Adjudicator, s.cfg.Adjudicator, domain.ErrUnauthorized)
		return
	}

	settledAt := now
	if market.ResolvedAt != nil {
		settledAt = *market.ResolvedAt
	}

	txHash, err := s.chain.Settle(ctx, mapping.MarketAddress, market.Outcome, settledAt)
	if err != nil {
		// Local state is untouched; the next cycle re-reads and retries.
		report.Err = fmt.Sprintf("submitting settlement: %v", err)
		return
	}
	report.TxHash = txHash

	mapping.Status = domain.ChainStateSettled
	mapping.SettleTxHash = txHash
	mapping.UpdatedAt = now
	if err := s.mappings.Update(ctx, mapping); err != nil {
		report.Err = fmt.Sprintf("recording settle tx: %v", err)
		return
	}

	s.markSettled(ctx, mapping, market, market.Outcome, report)
	s.appendEvent(ctx, mapping.MarketID, "settlement_submitted", map[string]any{
		"tx_hash": txHash,
		"outcome": string(market.Outcome),
	})
}

// reconcileSettled mirrors an on-chain settlement into the registry. The
// first observed settlement wins; when the market is already settled locally
// this is a no-op even if the read raced with another writer.
func (s *Synchronizer) reconcileSettled(ctx context.Context, mapping domain.ChainMapping, market domain.Market, view domain.ChainMarketView, now time.Time, report *domain.SyncReport) {
	if mapping.Status != domain.ChainStateSettled {
		mapping.Status = domain.ChainStateSettled
		mapping.UpdatedAt = now
		if err := s.mappings.Update(ctx, mapping); err != nil {
			report.Err = fmt.Sprintf("updating mapping: %v", err)
			return
		}
	}

	if market.Status == domain.MarketStatusOpen || market.Status == domain.MarketStatusResolved {
		s.markSettled(ctx, mapping, market, view.Outcome, report)
		if report.Err != "" {
			return
		}
		market.Status = domain.MarketStatusSettled
	}

	// Finalize only after the dispute window; the contract rejects earlier
	// attempts anyway and there is no point burning gas on them.
	if s.cfg.DisputeWindow > 0 && now.Sub(mapping.UpdatedAt) < s.cfg.DisputeWindow {
		return
	}
	if market.Status != domain.MarketStatusSettled {
		return
	}

	txHash, err := s.chain.Finalize(ctx, mapping.MarketAddress)
	if err != nil {
		report.Err = fmt.Sprintf("submitting finalize: %v", err)
		return
	}
	report.TxHash = txHash

	mapping.Status = domain.ChainStateFinalized
	mapping.FinalizeTxHash = txHash
	mapping.UpdatedAt = now
	if err := s.mappings.Update(ctx, mapping); err != nil {
		report.Err = fmt.Sprintf("recording finalize tx: %v", err)
		return
	}

	if err := s.markets.Transition(ctx, mapping.MarketID, domain.MarketStatusFinalized, domain.TransitionFields{}); err != nil {
		report.Err = fmt.Sprintf("finalizing market: %v", err)
		return
	}
	report.Transitioned = true
	s.appendEvent(ctx, mapping.MarketID, "market_finalized", map[string]any{"tx_hash": txHash})
}

// reconcileFinalized catches up a registry that missed intermediate states.
func (s *Synchronizer) reconcileFinalized(ctx context.Context, mapping domain.ChainMapping, market domain.Market, view domain.ChainMarketView, report *domain.SyncReport) {
	if market.Status == domain.MarketStatusOpen || market.Status == domain.MarketStatusResolved {
		s.markSettled(ctx, mapping, market, view.Outcome, report)
		if report.Err != "" {
			return
		}
		market.Status = domain.MarketStatusSettled
	}
	if market.Status == domain.MarketStatusSettled {
		if err := s.markets.Transition(ctx, mapping.MarketID, domain.MarketStatusFinalized, domain.TransitionFields{}); err != nil {
			report.Err = fmt.Sprintf("finalizing market: %v", err)
			return
		}
		report.Transitioned = true
	}

	if mapping.Status != domain.ChainStateFinalized {
		mapping.Status = domain.ChainStateFinalized
		mapping.UpdatedAt = time.Now().UTC()
		if err := s.mappings.Update(ctx, mapping); err != nil {
			report.Err = fmt.Sprintf("updating mapping: %v", err)
		}
	}
}

// reconcileCancelled marks a cancelled contract's market invalid.
func (s *Synchronizer) reconcileCancelled(ctx context.Context, mapping domain.ChainMapping, market domain.Market, report *domain.SyncReport) {
	if market.Status == domain.MarketStatusOpen || market.Status == domain.MarketStatusResolved {
		err := s.markets.Transition(ctx, mapping.MarketID, domain.MarketStatusInvalid, domain.TransitionFields{
			Outcome:         domain.OutcomeInvalid,
			OutcomeEvidence: "contract cancelled on chain",
		})
		if err != nil {
			report.Err = fmt.Sprintf("invalidating market: %v", err)
			return
		}
		report.Transitioned = true
	}

	if mapping.Status != domain.ChainStateCancelled {
		mapping.Status = domain.ChainStateCancelled
		mapping.UpdatedAt = time.Now().UTC()
		if err := s.mappings.Update(ctx, mapping); err != nil {
			report.Err = fmt.Sprintf("updating mapping: %v", err)
		}
	}
	s.appendEvent(ctx, mapping.MarketID, "market_cancelled", nil)
}

// markSettled transitions a market to settled with the outcome the chain
// reported. A market still open locally (resolved elsewhere, or a crash lost
// the local write) steps through resolved first; no transition is skipped.
func (s *Synchronizer) markSettled(ctx context.Context, mapping domain.ChainMapping, market domain.Market, outcome domain.Outcome, report *domain.SyncReport) {
	if market.Status == domain.MarketStatusOpen {
		now := time.Now().UTC()
		err := s.markets.Transition(ctx, mapping.MarketID, domain.MarketStatusResolved, domain.TransitionFields{
			Outcome:         outcome,
			OutcomeEvidence: "settlement observed on chain",
			ResolvedAt:      &now,
		})
		if err != nil {
			report.Err = fmt.Sprintf("recording observed resolution: %v", err)
			return
		}
	}

	err := s.markets.Transition(ctx, mapping.MarketID, domain.MarketStatusSettled, domain.TransitionFields{
		Outcome: outcome,
	})
	if err != nil {
		var ite *domain.InvalidTransitionError
		if errors.As(err, &ite) {
			// Already settled by an earlier observation; nothing to do.
			return
		}
		report.Err = fmt.Sprintf("settling market: %v", err)
		return
	}
	report.Transitioned = true
	s.appendEvent(ctx, mapping.MarketID, "market_settled", map[string]any{"outcome": string(outcome)})
}

func (s *Synchronizer) appendEvent(ctx context.Context, marketID, event string, detail map[string]any) {
	if err := s.events.Append(ctx, marketID, event, detail); err != nil {
		s.logger.Warn("appending event failed",
			slog.String("market_id", marketID),
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
