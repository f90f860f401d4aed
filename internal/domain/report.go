package domain

import "time"

// MarketResult is the per-market entry in a cycle report. Exactly one of
// Outcome or Err is meaningful; Retryable marks transient failures that will
// be attempted again next cycle.
type MarketResult struct {
	MarketID  string
	Outcome   Outcome
	Value     *float64
	Err       string
	Retryable bool
}

// ResolutionReport summarizes one resolution cycle.
type ResolutionReport struct {
	ID        string
	StartedAt time.Time
	Selected  int
	Resolved  []MarketResult
	Skipped   []MarketResult // manual markets left for out-of-band decision
	Failed    []MarketResult
}

// SyncReport summarizes one settlement-sync pass over a single mapping.
type SyncReport struct {
	MarketID      string
	MarketAddress string
	ChainState    ChainState
	Transitioned  bool
	TxHash        string
	Err           string
}

// GraduationDecision is the outcome of a graduation eligibility check.
type GraduationDecision struct {
	MarketID  string
	Eligible  bool
	Reasons   []string // unmet criteria, empty when eligible
	Submitted bool
	Address   string
}
