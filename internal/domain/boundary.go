package domain

import (
	"context"
	"time"
)

// MetricSource fetches a numeric metric from an external data source. An
// unavailable metric is reported as an error wrapping ErrIndeterminate; the
// caller retries on a later cycle.
type MetricSource interface {
	FetchMetric(ctx context.Context, sourceID, metric string) (float64, error)
}

// CreateMarketParams are the inputs to on-chain market creation.
type CreateMarketParams struct {
	Question         string
	StartTime        time.Time
	Deadline         time.Time
	Adjudicator      string
	Guardian         string
	InitialLiquidity float64
	AgentID          string
	MinValidators    int
}

// ChainMarketView is a snapshot of an on-chain market's observable state.
type ChainMarketView struct {
	State       ChainState
	Outcome     Outcome
	Adjudicator string
	Deadline    time.Time
	IsSettled   bool
	IsFinalized bool
}

// MarketChain is the on-chain market contract boundary. Submissions are
// awaited (mined and receipt-checked) before they return.
type MarketChain interface {
	CreateMarket(ctx context.Context, p CreateMarketParams) (marketAddress string, err error)
	Settle(ctx context.Context, marketAddress string, outcome Outcome, ts time.Time) (txHash string, err error)
	Finalize(ctx context.Context, marketAddress string) (txHash string, err error)
	Read(ctx context.Context, marketAddress string) (ChainMarketView, error)
}

// LockManager provides mutual exclusion keyed by market id.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting for external API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// MetricCache stores recently fetched metric values so concurrent cycles do
// not refetch the same datapoint. A miss is (0, false, nil).
type MetricCache interface {
	SetMetric(ctx context.Context, sourceID, metric string, value float64, ts time.Time) error
	GetMetric(ctx context.Context, sourceID, metric string, maxAge time.Duration) (float64, bool, error)
}
