// Package settlement implements the settlement planner: aggregate
// per-payout shares by payee, order transfers deterministically, then
// enforce the epoch budget cap with strict deferral (no partial payments)
// on overflow.
package settlement

import (
	"sort"

	"aicf/core/types"
	"aicf/epoch"
)

// PayoutLine is one priced-and-split reward prior to aggregation.
type PayoutLine struct {
	ProviderAddress string
	ProviderAmount  uint64
	MinerAddress    string
	MinerAmount     uint64
	TreasuryAmount  uint64
	JobID           types.HexID
}

// Transfer is one outbound settlement line item after aggregation.
type Transfer struct {
	Payee  string
	Amount uint64
	// Kind distinguishes provider transfers from miner transfers for
	// ordering and downstream bookkeeping.
	Kind string // "provider" | "miner"
}

// Plan is the output of one settlement pass.
type Plan struct {
	EpochIdx       uint64
	Accepted       []Transfer
	Rejected       []Transfer
	TreasuryAccrued uint64
	NewEpochState  types.EpochAccounting
}

// MinUnit is the minimum line-item amount worth transferring; smaller
// aggregates are dropped rather than settled.
const MinUnit = 1

// Build aggregates lines by payee, orders deterministically (providers then
// miners, each address-ascending), and applies the epoch cap in that order
// with strict deferral: a transfer that would overflow the remaining
// budget is rejected outright, never partially paid.
func Build(state types.EpochAccounting, lines []PayoutLine) Plan {
	providerTotals := make(map[string]uint64)
	minerTotals := make(map[string]uint64)
	var treasuryAccrued uint64

	for _, l := range lines {
		if l.ProviderAmount > 0 {
			providerTotals[l.ProviderAddress] += l.ProviderAmount
		}
		if l.MinerAddress != "" && l.MinerAmount > 0 {
			minerTotals[l.MinerAddress] += l.MinerAmount
		}
		treasuryAccrued += l.TreasuryAmount
	}

	providerAddrs := sortedKeys(providerTotals)
	minerAddrs := sortedKeys(minerTotals)

	var ordered []Transfer
	for _, addr := range providerAddrs {
		amt := providerTotals[addr]
		if amt < MinUnit {
			continue
		}
		ordered = append(ordered, Transfer{Payee: addr, Amount: amt, Kind: "provider"})
	}
	for _, addr := range minerAddrs {
		amt := minerTotals[addr]
		if amt < MinUnit {
			continue
		}
		ordered = append(ordered, Transfer{Payee: addr, Amount: amt, Kind: "miner"})
	}

	plan := Plan{EpochIdx: state.EpochIdx, TreasuryAccrued: treasuryAccrued}
	current := state
	for _, t := range ordered {
		next, ok := epoch.TryReserve(current, t.Amount)
		if ok {
			current = next
			plan.Accepted = append(plan.Accepted, t)
		} else {
			plan.Rejected = append(plan.Rejected, t)
		}
	}
	plan.NewEpochState = current
	return plan
}

func sortedKeys(m map[string]uint64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
