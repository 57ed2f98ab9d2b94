// Package rewardsaudit implements idempotent application of settlement
// batches to the treasury ledger: a payout id is credited at most once no
// matter how many times its batch is replayed.
package rewardsaudit

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"aicf/core/types"
	"aicf/treasury"
)

// ErrDuplicatePayout is returned when SkipDuplicates is false and a
// (settlementID, payoutID) pair has already been credited.
type ErrDuplicatePayout struct {
	SettlementID string
	PayoutID     string
}

func (e *ErrDuplicatePayout) Error() string {
	return fmt.Sprintf("rewardsaudit: duplicate payout %s/%s", e.SettlementID, e.PayoutID)
}

// CreditID computes the deterministic, domain-separated credit identifier
// for one settlement/payout pair: sha3_256("aicf:rewards:v1|" ||
// settlement_id || "|" || payout_id), hex-encoded with a 0x prefix.
func CreditID(settlementID, payoutID string) string {
	h := sha3.New256()
	h.Write([]byte("aicf:rewards:v1|"))
	h.Write([]byte(settlementID))
	h.Write([]byte("|"))
	h.Write([]byte(payoutID))
	return "0x" + fmt.Sprintf("%x", h.Sum(nil))
}

// CreditRecord is a single applied rewards credit, indexed by its
// deterministic id for idempotency checks.
type CreditRecord struct {
	CreditID     string
	SettlementID string
	PayoutID     string
	ProviderID   types.HexID
	Amount       uint64
	Height       types.Height
}

// BatchPayout is one payout line of a settlement batch to apply.
type BatchPayout struct {
	PayoutID   string
	ProviderID types.HexID
	Amount     uint64
}

// Auditor tracks applied credits and provider totals across batches.
type Auditor struct {
	mu             sync.Mutex
	ledger         *treasury.Ledger
	applied        map[string]CreditRecord // keyed by CreditID
	providerTotals map[types.HexID]uint64
	watermark      uint64
	skipDuplicates bool
}

// New constructs an Auditor over ledger. When skipDuplicates is false,
// ApplyBatch returns ErrDuplicatePayout instead of silently skipping an
// already-applied payout.
func New(ledger *treasury.Ledger, skipDuplicates bool) *Auditor {
	return &Auditor{
		ledger:         ledger,
		applied:        make(map[string]CreditRecord),
		providerTotals: make(map[types.HexID]uint64),
		skipDuplicates: skipDuplicates,
	}
}

// ApplyBatch applies every payout in the batch exactly once, identified by
// (settlementID, payoutID). Re-applying the same batch raises provider
// totals by zero.
func (a *Auditor) ApplyBatch(settlementID string, payouts []BatchPayout, height types.Height) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range payouts {
		id := CreditID(settlementID, p.PayoutID)
		if _, ok := a.applied[id]; ok {
			if a.skipDuplicates {
				continue
			}
			return &ErrDuplicatePayout{SettlementID: settlementID, PayoutID: p.PayoutID}
		}
		if err := a.ledger.Credit(p.ProviderID, p.Amount, height); err != nil {
			return err
		}
		a.applied[id] = CreditRecord{
			CreditID: id, SettlementID: settlementID, PayoutID: p.PayoutID,
			ProviderID: p.ProviderID, Amount: p.Amount, Height: height,
		}
		a.providerTotals[p.ProviderID] += p.Amount
		a.watermark++
	}
	return nil
}

// ProviderTotal returns the cumulative credited amount for a provider.
func (a *Auditor) ProviderTotal(providerID types.HexID) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.providerTotals[providerID]
}

// Watermark returns the count of distinct credits applied so far.
func (a *Auditor) Watermark() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watermark
}
