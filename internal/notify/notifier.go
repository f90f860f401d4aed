// Package notify delivers operator alerts for adjudication events: cycle
// resolutions, market graduations, settlement submissions, and failures.
// Each channel renders the alert in its own markup, and operators choose
// which event types they hear about through the notify.events config list.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// Event types emitted by the adjudication cycles. These are the values
// operators list under notify.events to select what they hear about.
const (
	EventResolved  = "market_resolved"
	EventGraduated = "market_graduated"
	EventSettled   = "settlement_submitted"
	EventError     = "error"
)

// Alert is one adjudication notification. Senders render the title and body
// lines in their channel's markup; MarketID is empty for cycle-level alerts.
type Alert struct {
	Event    string
	Title    string
	MarketID string
	Lines    []string
}

// Sender is one delivery channel for alerts.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	Name() string
}

// Notifier fans alerts out to every configured sender, filtered by the
// allowed event types.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// alerts whose event appears in events are forwarded; an empty list allows
// everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// ResolutionSummary alerts the outcome counts of one resolution cycle.
// Cycles that touched nothing are kept quiet.
func (n *Notifier) ResolutionSummary(ctx context.Context, report domain.ResolutionReport) error {
	if len(report.Resolved) == 0 && len(report.Failed) == 0 {
		return nil
	}

	lines := []string{
		fmt.Sprintf("Selected %d, resolved %d, failed %d.", report.Selected, len(report.Resolved), len(report.Failed)),
	}
	for _, r := range report.Resolved {
		lines = append(lines, fmt.Sprintf("%s resolved %s", r.MarketID, r.Outcome))
	}
	for _, r := range report.Failed {
		lines = append(lines, fmt.Sprintf("%s failed: %s", r.MarketID, r.Err))
	}
	return n.deliver(ctx, Alert{
		Event: EventResolved,
		Title: "Markets resolved",
		Lines: lines,
	})
}

// Graduated alerts a market promoted to an on-chain contract.
func (n *Notifier) Graduated(ctx context.Context, marketID, address string) error {
	return n.deliver(ctx, Alert{
		Event:    EventGraduated,
		Title:    "Market graduated",
		MarketID: marketID,
		Lines:    []string{fmt.Sprintf("Now trading at contract %s.", address)},
	})
}

// SettlementSubmitted alerts an outcome pushed to chain.
func (n *Notifier) SettlementSubmitted(ctx context.Context, marketID string, outcome domain.Outcome) error {
	return n.deliver(ctx, Alert{
		Event:    EventSettled,
		Title:    "Settlement submitted",
		MarketID: marketID,
		Lines:    []string{fmt.Sprintf("Outcome %s written on chain.", outcome)},
	})
}

// CycleError alerts a cycle-level failure.
func (n *Notifier) CycleError(ctx context.Context, cycle string, err error) error {
	return n.deliver(ctx, Alert{
		Event: EventError,
		Title: "Cycle failed",
		Lines: []string{fmt.Sprintf("The %s cycle failed: %v", cycle, err)},
	})
}

// deliver fans one alert out to every sender. A failing sender never blocks
// the others; failures are collected into one combined error.
func (n *Notifier) deliver(ctx context.Context, a Alert) error {
	if len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "alert filtered out", slog.String("event", a.Event))
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("event", a.Event),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
