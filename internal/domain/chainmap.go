package domain

import "time"

// ChainState mirrors the on-chain market contract lifecycle.
type ChainState string

const (
	ChainStatePending   ChainState = "PENDING"
	ChainStateLive      ChainState = "LIVE"
	ChainStateSettling  ChainState = "SETTLING"
	ChainStateSettled   ChainState = "SETTLED"
	ChainStateFinalized ChainState = "FINALIZED"
	ChainStateCancelled ChainState = "CANCELLED"
)

// ChainMapping links a registry market to its graduated on-chain contract.
// Created exactly once by the graduation controller; mutated only by the
// settlement synchronizer afterwards.
type ChainMapping struct {
	MarketID       string
	Chain          string
	ChainID        int64
	MarketAddress  string
	Status         ChainState
	SettleTxHash   string
	FinalizeTxHash string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
