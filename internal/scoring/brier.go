// Package scoring implements Brier scoring of commitments and the derived
// per-agent reputation projection.
package scoring

import "github.com/Tora-Build/soothsayer-core/internal/domain"

// Score computes the Brier-style score for a commitment against a resolved
// outcome: 1 - (p - o)^2 where p is the stated confidence and o is 1 when
// the position matched. Higher is better. Commitments on an INVALID market
// score nil and are excluded from aggregation.
func Score(position domain.Position, confidence int, outcome domain.Outcome) *float64 {
	if outcome != domain.OutcomeYes && outcome != domain.OutcomeNo {
		return nil
	}
	p := float64(confidence) / 100
	o := 0.0
	if Correct(position, outcome) {
		o = 1.0
	}
	s := 1 - (p-o)*(p-o)
	return &s
}

// Correct reports whether the position matched the winning outcome.
func Correct(position domain.Position, outcome domain.Outcome) bool {
	return (position == domain.PositionYes) == (outcome == domain.OutcomeYes)
}
