package domain

import (
	"context"
	"time"
)

// MarketFilter narrows List queries.
type MarketFilter struct {
	Status      MarketStatus
	DeadlineLTE *time.Time
	Limit       int
	Offset      int
}

// TransitionFields carries the outcome-adjacent fields a transition may set.
// Nil pointers leave the corresponding column untouched.
type TransitionFields struct {
	Outcome         Outcome
	OutcomeValue    *float64
	OutcomeEvidence string
	ResolvedAt      *time.Time
}

// MarketStore persists markets and enforces the status state machine. The
// store never deletes; corrections are appended facts.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, f MarketFilter) ([]Market, error)
	// Transition moves a market to the immediate successor status, applying
	// the given fields atomically. It fails with InvalidTransitionError when
	// the step is not allowed or required fields for it are missing.
	Transition(ctx context.Context, id string, to MarketStatus, fields TransitionFields) error
	// MarkResultsPosted flags that the resolution comment went out.
	MarkResultsPosted(ctx context.Context, id, commentID string) error
	// AppendCorrection records a corrective outcome without touching the
	// original resolution.
	AppendCorrection(ctx context.Context, c OutcomeCorrection) error
	ListCorrections(ctx context.Context, marketID string) ([]OutcomeCorrection, error)
	Count(ctx context.Context) (int64, error)
}

// CommitmentStore persists commitments. Upsert overwrites any prior
// commitment by the same agent on the same market in place.
type CommitmentStore interface {
	Upsert(ctx context.Context, c Commitment) error
	SetScore(ctx context.Context, marketID, agent string, score *float64) error
	ListByMarket(ctx context.Context, marketID string) ([]Commitment, error)
	ListByAgent(ctx context.Context, agent string) ([]Commitment, error)
	ListScored(ctx context.Context) ([]Commitment, error)
}

// ChainMappingStore persists market-to-contract mappings.
type ChainMappingStore interface {
	Create(ctx context.Context, m ChainMapping) error
	GetByMarket(ctx context.Context, marketID string) (ChainMapping, error)
	Update(ctx context.Context, m ChainMapping) error
	ListActive(ctx context.Context) ([]ChainMapping, error)
}

// ReputationStore persists the per-agent scoring projection.
type ReputationStore interface {
	Apply(ctx context.Context, agent, category string, score *float64, correct bool) error
	Get(ctx context.Context, agent string) (AgentReputation, error)
	List(ctx context.Context) ([]AgentReputation, error)
	// Reset clears the projection so it can be rebuilt from history.
	Reset(ctx context.Context) error
}

// RegistryEvent is one appended fact in the registry event log.
type RegistryEvent struct {
	ID        int64
	MarketID  string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// EventStore persists an append-only log of every registry mutation.
type EventStore interface {
	Append(ctx context.Context, marketID, event string, detail map[string]any) error
	ListByMarket(ctx context.Context, marketID string) ([]RegistryEvent, error)
}
