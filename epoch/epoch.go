// Package epoch implements the Γ_fund budget, rollover, and functional
// reservation state machine. All operations are pure functions over
// EpochAccounting with no wall-clock dependency.
package epoch

import "aicf/core/types"

// IndexForHeight computes epoch_idx(h) = floor((h - startHeight) / length)
// for h >= startHeight.
func IndexForHeight(h, startHeight types.Height, length uint64) uint64 {
	if length == 0 || h < startHeight {
		return 0
	}
	return uint64(h-startHeight) / length
}

// StartEpoch creates the EpochAccounting for idx, applying rollover from
// prev when prev directly precedes idx.
func StartEpoch(idx uint64, startHeight, endHeightExclusive types.Height, baseBudget uint64, rolloverRateScaled uint64, prev *types.EpochAccounting) types.EpochAccounting {
	budget := baseBudget
	if prev != nil && prev.EpochIdx == idx-1 {
		unused := prev.Remaining()
		// rolloverRateScaled is a fraction scaled by 1e6 (e.g. 500_000 = 0.5).
		carried := unused * rolloverRateScaled / 1_000_000
		budget += carried
	}
	return types.EpochAccounting{
		EpochIdx:           idx,
		StartHeight:        startHeight,
		EndHeightExclusive: endHeightExclusive,
		BudgetTotal:        budget,
	}
}

// TryReserve attempts to reserve amount against state's remaining budget,
// returning a new state (never mutating the input) and whether it
// succeeded.
func TryReserve(state types.EpochAccounting, amount uint64) (types.EpochAccounting, bool) {
	if amount > state.Remaining() {
		return state, false
	}
	state.BudgetSpent += amount
	state.PayoutsCount++
	return state, true
}

// ApplyRefund reduces budget_spent by amount, floored at zero.
func ApplyRefund(state types.EpochAccounting, amount uint64) types.EpochAccounting {
	if amount >= state.BudgetSpent {
		state.BudgetSpent = 0
	} else {
		state.BudgetSpent -= amount
	}
	return state
}

// CapBatchSpend iterates amounts in order, accepting each while capacity
// permits, returning the updated state and the accepted/rejected indices'
// amounts in their original order.
func CapBatchSpend(state types.EpochAccounting, amounts []uint64) (types.EpochAccounting, []uint64, []uint64) {
	var accepted, rejected []uint64
	for _, amt := range amounts {
		next, ok := TryReserve(state, amt)
		if ok {
			state = next
			accepted = append(accepted, amt)
		} else {
			rejected = append(rejected, amt)
		}
	}
	return state, accepted, rejected
}
