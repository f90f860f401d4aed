package domain

import "time"

// MarketStatus represents the lifecycle state of a market in the registry.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusFinalized MarketStatus = "finalized"
	MarketStatusInvalid   MarketStatus = "invalid"
)

// statusRank orders the forward-only lifecycle. Invalid is a terminal state
// reachable from open or resolved and has no successor.
var statusRank = map[MarketStatus]int{
	MarketStatusOpen:      0,
	MarketStatusResolved:  1,
	MarketStatusSettled:   2,
	MarketStatusFinalized: 3,
}

// CanTransition reports whether a market may move from to next in a single
// step. Transitions are monotonic: no skipping, no going back.
func CanTransition(from, to MarketStatus) bool {
	if to == MarketStatusInvalid {
		return from == MarketStatusOpen || from == MarketStatusResolved
	}
	if from == MarketStatusInvalid {
		return false
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr == fr+1
}

// Outcome is the registry-side resolution of a market. The on-chain contract
// uses a different numeric encoding; conversion lives at the chain boundary.
type Outcome string

const (
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
	OutcomeInvalid Outcome = "INVALID"
	OutcomeUnset   Outcome = ""
)

// RuleOp is a threshold comparison operator.
type RuleOp string

const (
	OpGTE RuleOp = "gte"
	OpGT  RuleOp = "gt"
	OpLTE RuleOp = "lte"
	OpLT  RuleOp = "lt"
	OpEQ  RuleOp = "eq"
)

// SourceManual marks a rule that cannot be resolved automatically.
const SourceManual = "manual"

// Rule describes how a market resolves: which source to query, which metric
// to read, and the comparison against the target value.
type Rule struct {
	Source   string
	Metric   string
	Op       RuleOp
	Target   float64
	Resolver string // optional named resolver for manual markets
}

// Manual reports whether the rule requires out-of-band resolution.
func (r Rule) Manual() bool {
	return r.Source == SourceManual
}

// Market is a tracked prediction market. Once Status reaches resolved, the
// Question and Rule fields are immutable; only outcome-adjacent and
// chain-sync fields may still change.
type Market struct {
	ID              string
	RawQuestion     string // metadata-encoded question text as posted
	Question        string // display question
	Rule            Rule
	Category        string
	Event           string
	Deadline        time.Time
	Status          MarketStatus
	Outcome         Outcome
	OutcomeValue    *float64 // fetched metric value that produced the outcome
	OutcomeEvidence string
	ResolvedAt      *time.Time
	PostID          string // moltbook post carrying the market
	ResultsPosted   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OutcomeCorrection is an appended correction to an already-resolved outcome.
// The pre-correction state stays inspectable; nothing is overwritten.
type OutcomeCorrection struct {
	ID        int64
	MarketID  string
	Outcome   Outcome
	Evidence  string
	CreatedAt time.Time
}
