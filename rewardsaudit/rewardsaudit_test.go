package rewardsaudit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aicf/treasury"
)

func TestCreditIDDeterministic(t *testing.T) {
	a := CreditID("settlement-1", "payout-1")
	b := CreditID("settlement-1", "payout-1")
	require.Equal(t, a, b)
}

func TestCreditIDDistinguishesInputs(t *testing.T) {
	ids := map[string]bool{}
	ids[CreditID("s1", "p1")] = true
	ids[CreditID("s1", "p2")] = true
	ids[CreditID("s2", "p1")] = true
	require.Len(t, ids, 3)
}

// TestApplyBatchIdempotent matches §8: applying the same settlement batch
// twice raises provider totals by zero the second time.
func TestApplyBatchIdempotent(t *testing.T) {
	ledger := treasury.New()
	auditor := New(ledger, true)

	batch := []BatchPayout{
		{PayoutID: "p1", ProviderID: "provA", Amount: 192},
		{PayoutID: "p2", ProviderID: "provB", Amount: 61},
	}
	require.NoError(t, auditor.ApplyBatch("settlement-1", batch, 100))
	require.Equal(t, uint64(192), auditor.ProviderTotal("provA"))
	require.Equal(t, uint64(61), auditor.ProviderTotal("provB"))
	firstWatermark := auditor.Watermark()

	require.NoError(t, auditor.ApplyBatch("settlement-1", batch, 101))
	require.Equal(t, uint64(192), auditor.ProviderTotal("provA"), "re-applying must not double-credit")
	require.Equal(t, uint64(61), auditor.ProviderTotal("provB"))
	require.Equal(t, firstWatermark, auditor.Watermark(), "watermark should not advance on duplicate")

	acc := ledger.Account("provA")
	require.Equal(t, uint64(192), acc.Available)
}

func TestApplyBatchRejectsDuplicateWhenConfigured(t *testing.T) {
	ledger := treasury.New()
	auditor := New(ledger, false)

	batch := []BatchPayout{{PayoutID: "p1", ProviderID: "provA", Amount: 10}}
	require.NoError(t, auditor.ApplyBatch("settlement-1", batch, 1))

	err := auditor.ApplyBatch("settlement-1", batch, 2)
	require.Error(t, err)
	var dup *ErrDuplicatePayout
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "settlement-1", dup.SettlementID)
	require.Equal(t, "p1", dup.PayoutID)
}

// TestApplyBatchSplitFigures replays a two-kind settlement batch: AI
// units=120 at rate -> reward 240 split 80/15/5 gives provider 192, treasury
// 36, miner 12; Quantum units=15 -> reward 75 split 80/15/5 gives provider
// 61 (rounded), treasury 11, miner 3.
func TestApplyBatchSplitFigures(t *testing.T) {
	ledger := treasury.New()
	auditor := New(ledger, true)

	batch := []BatchPayout{
		{PayoutID: "ai-job-1", ProviderID: "provAI", Amount: 192},
		{PayoutID: "quantum-job-1", ProviderID: "provQ", Amount: 61},
	}
	require.NoError(t, auditor.ApplyBatch("settlement-e4", batch, 1))
	require.Equal(t, uint64(192), auditor.ProviderTotal("provAI"))
	require.Equal(t, uint64(61), auditor.ProviderTotal("provQ"))
}

func TestProviderTotalUnknownProviderIsZero(t *testing.T) {
	auditor := New(treasury.New(), true)
	require.Equal(t, uint64(0), auditor.ProviderTotal("nobody"))
}
