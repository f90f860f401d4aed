package domain

import "time"

// Position is the side of a commitment.
type Position string

const (
	PositionYes Position = "YES"
	PositionNo  Position = "NO"
)

// Commitment is an agent's staked position on a market. There is at most one
// live commitment per (market, agent): a later commitment from the same agent
// overwrites the earlier one in place.
type Commitment struct {
	MarketID    string
	Agent       string
	Position    Position
	Confidence  int // 0-100
	CommentID   string
	CommittedAt time.Time
	Score       *float64 // Brier score, set after resolution; nil for INVALID
}

// AgentReputation is the derived per-agent scoring aggregate. It is a
// rebuildable projection over commitment history, not a source of truth.
type AgentReputation struct {
	Agent      string
	ScoreSum   float64
	Scored     int // commitments with a non-nil score
	Total      int // all commitments on resolved markets
	Correct    int
	Categories map[string]int
	UpdatedAt  time.Time
}

// AvgScore returns the mean Brier score, or 0 when nothing has been scored.
func (r AgentReputation) AvgScore() float64 {
	if r.Scored == 0 {
		return 0
	}
	return r.ScoreSum / float64(r.Scored)
}
