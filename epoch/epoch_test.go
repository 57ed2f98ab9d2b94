package epoch

import (
	"testing"

	"aicf/core/types"
)

func TestIndexForHeight(t *testing.T) {
	cases := []struct {
		h, start types.Height
		length   uint64
		want     uint64
	}{
		{0, 0, 10, 0},
		{9, 0, 10, 0},
		{10, 0, 10, 1},
		{25, 0, 10, 2},
		{5, 10, 10, 0}, // below start clamps to 0
	}
	for _, c := range cases {
		got := IndexForHeight(c.h, c.start, c.length)
		if got != c.want {
			t.Fatalf("IndexForHeight(%d,%d,%d) = %d, want %d", c.h, c.start, c.length, got, c.want)
		}
	}
}

func TestStartEpochNoRollover(t *testing.T) {
	e := StartEpoch(0, 0, 10, 1000, 500_000, nil)
	if e.BudgetTotal != 1000 {
		t.Fatalf("expected budget 1000, got %d", e.BudgetTotal)
	}
}

// TestEpochRolloverScenario: base budget 1000, epoch 0 accepts 700 and
// rejects 600 (only 300 remaining), and with a rollover rate of 1.0 the
// unused 300 carries into epoch 1's budget of 1300.
func TestEpochRolloverScenario(t *testing.T) {
	e0 := StartEpoch(0, 0, 10, 1000, 1_000_000, nil)
	e0, ok := TryReserve(e0, 700)
	if !ok {
		t.Fatalf("expected first reservation of 700 to succeed")
	}
	e0, ok = TryReserve(e0, 600)
	if ok {
		t.Fatalf("expected second reservation of 600 to fail, only 300 remaining")
	}
	if e0.BudgetSpent != 700 {
		t.Fatalf("expected spent=700, got %d", e0.BudgetSpent)
	}
	if e0.Remaining() != 300 {
		t.Fatalf("expected remaining=300, got %d", e0.Remaining())
	}

	e1 := StartEpoch(1, 10, 20, 1000, 1_000_000, &e0)
	if e1.BudgetTotal != 1300 {
		t.Fatalf("expected epoch 1 budget 1300 (1000 base + 300 rollover), got %d", e1.BudgetTotal)
	}
	e1, ok = TryReserve(e1, 200)
	if !ok {
		t.Fatalf("expected 200 reservation to succeed in epoch 1")
	}
	if e1.Remaining() != 1100 {
		t.Fatalf("expected remaining=1100, got %d", e1.Remaining())
	}
}

func TestStartEpochRolloverOnlyFromDirectPredecessor(t *testing.T) {
	e0 := StartEpoch(0, 0, 10, 1000, 1_000_000, nil)
	e0.BudgetSpent = 400
	// idx 2 does not directly follow idx 0, so no rollover applies.
	e2 := StartEpoch(2, 20, 30, 1000, 1_000_000, &e0)
	if e2.BudgetTotal != 1000 {
		t.Fatalf("expected no rollover across non-adjacent epochs, got %d", e2.BudgetTotal)
	}
}

func TestApplyRefundFloorsAtZero(t *testing.T) {
	e := types.EpochAccounting{BudgetTotal: 1000, BudgetSpent: 100}
	e = ApplyRefund(e, 500)
	if e.BudgetSpent != 0 {
		t.Fatalf("expected budget_spent floored at 0, got %d", e.BudgetSpent)
	}
}

func TestApplyRefundPartial(t *testing.T) {
	e := types.EpochAccounting{BudgetTotal: 1000, BudgetSpent: 500}
	e = ApplyRefund(e, 200)
	if e.BudgetSpent != 300 {
		t.Fatalf("expected budget_spent=300, got %d", e.BudgetSpent)
	}
}

// TestCapBatchSpendNeverExceedsBudget is the §8 capacity invariant: after
// any sequence of TryReserve/CapBatchSpend calls, budget_spent never
// exceeds budget_total.
func TestCapBatchSpendNeverExceedsBudget(t *testing.T) {
	state := types.EpochAccounting{BudgetTotal: 1000}
	amounts := []uint64{300, 400, 200, 250, 50, 10}
	state, accepted, rejected := CapBatchSpend(state, amounts)
	if state.BudgetSpent > state.BudgetTotal {
		t.Fatalf("budget_spent %d exceeded budget_total %d", state.BudgetSpent, state.BudgetTotal)
	}
	sum := uint64(0)
	for _, a := range accepted {
		sum += a
	}
	if sum != state.BudgetSpent {
		t.Fatalf("accepted sum %d does not match budget_spent %d", sum, state.BudgetSpent)
	}
	if len(accepted)+len(rejected) != len(amounts) {
		t.Fatalf("expected every amount to be classified accepted or rejected")
	}
}

func TestCapBatchSpendPreservesOrder(t *testing.T) {
	state := types.EpochAccounting{BudgetTotal: 100}
	_, accepted, rejected := CapBatchSpend(state, []uint64{60, 50, 30})
	if len(accepted) != 2 || accepted[0] != 60 || accepted[1] != 30 {
		t.Fatalf("expected accepted=[60,30] in original order, got %v", accepted)
	}
	if len(rejected) != 1 || rejected[0] != 50 {
		t.Fatalf("expected rejected=[50], got %v", rejected)
	}
}
