// Package chain implements the on-chain market contract boundary using
// go-ethereum. Transactions are awaited (mined and receipt-checked) before
// any local write that depends on them.
package chain

import (
	"fmt"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// The contract encodes outcomes as 0=NO, 1=YES, 2=INVALID, which differs
// from the registry's own ordering convention. This pair of functions is the
// single place the two encodings meet; do not map them anywhere else.
const (
	chainOutcomeNo      uint8 = 0
	chainOutcomeYes     uint8 = 1
	chainOutcomeInvalid uint8 = 2
)

// ToChainOutcome converts a registry outcome to the contract encoding.
func ToChainOutcome(o domain.Outcome) (uint8, error) {
	switch o {
	case domain.OutcomeNo:
		return chainOutcomeNo, nil
	case domain.OutcomeYes:
		return chainOutcomeYes, nil
	case domain.OutcomeInvalid:
		return chainOutcomeInvalid, nil
	default:
		return 0, fmt.Errorf("chain: outcome %q has no on-chain encoding", o)
	}
}

// FromChainOutcome converts a contract outcome value to the registry
// encoding. Unknown values map to unset so callers cannot mistake them for
// a decided outcome.
func FromChainOutcome(v uint8) domain.Outcome {
	switch v {
	case chainOutcomeNo:
		return domain.OutcomeNo
	case chainOutcomeYes:
		return domain.OutcomeYes
	case chainOutcomeInvalid:
		return domain.OutcomeInvalid
	default:
		return domain.OutcomeUnset
	}
}

// Contract lifecycle states, in declaration order of the contract enum.
var chainStates = []domain.ChainState{
	domain.ChainStatePending,
	domain.ChainStateLive,
	domain.ChainStateSettling,
	domain.ChainStateSettled,
	domain.ChainStateFinalized,
	domain.ChainStateCancelled,
}

// FromChainState converts the contract state enum to the domain state.
func FromChainState(v uint8) (domain.ChainState, error) {
	if int(v) >= len(chainStates) {
		return "", fmt.Errorf("chain: unknown contract state %d", v)
	}
	return chainStates[v], nil
}
