// Package resolve implements deterministic market resolution: the rule
// evaluator and the cycle engine that drives it.
package resolve

import (
	"math"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// Verdict is the result of evaluating a rule against a fetched value.
type Verdict int

const (
	// VerdictIndeterminate means the metric was unavailable; the market
	// stays open and is retried on a later cycle. Never interpreted as NO.
	VerdictIndeterminate Verdict = iota
	// VerdictPendingManual means the rule requires an out-of-band decision,
	// either because it is declared manual or because its operator is not
	// one the evaluator knows. Unknown operators are permanent rule defects;
	// retrying them would never produce a different answer.
	VerdictPendingManual
	VerdictYes
	VerdictNo
)

// eqRelTolerance is the relative tolerance for the eq operator. Source
// prices are rarely exact, so equality holds within one basis-point-of-a-
// percent of the target.
const eqRelTolerance = 1e-4

// Evaluate computes the outcome of a rule given a fetched metric value. It
// is pure: the same (rule, value) pair always yields the same verdict.
func Evaluate(rule domain.Rule, value *float64) Verdict {
	if rule.Manual() {
		return VerdictPendingManual
	}
	if value == nil {
		return VerdictIndeterminate
	}

	v, target := *value, rule.Target
	var holds bool
	switch rule.Op {
	case domain.OpGTE:
		holds = v >= target
	case domain.OpGT:
		holds = v > target
	case domain.OpLTE:
		holds = v <= target
	case domain.OpLT:
		holds = v < target
	case domain.OpEQ:
		scale := math.Abs(target)
		if scale < 1 {
			scale = 1
		}
		holds = math.Abs(v-target) <= eqRelTolerance*scale
	default:
		return VerdictPendingManual
	}

	if holds {
		return VerdictYes
	}
	return VerdictNo
}

// Outcome maps a definite verdict to the registry outcome encoding.
func (v Verdict) Outcome() domain.Outcome {
	switch v {
	case VerdictYes:
		return domain.OutcomeYes
	case VerdictNo:
		return domain.OutcomeNo
	default:
		return domain.OutcomeUnset
	}
}
