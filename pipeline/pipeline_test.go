package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"aicf/completion"
	"aicf/core/types"
	"aicf/proofbridge"
	"aicf/quota"
	"aicf/registry"
	"aicf/rewardsaudit"
	"aicf/sla"
	"aicf/slash"
	"aicf/storage"
	"aicf/treasury"
)

const testDigest = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

type harness struct {
	pl     *Pipeline
	store  storage.Store
	reg    *registry.Registry
	ledger *treasury.Ledger
	quotas *quota.Tracker
}

func newHarness(t *testing.T, rates RateConfig, epochCfg EpochConfig) *harness {
	t.Helper()
	store := storage.NewMemoryStore()
	ledger := treasury.New()
	reg := registry.New(registry.NewMemoryProviderStore(), nil, ledger, registry.Config{})
	quotas := quota.New()
	receiver := completion.New(store, reg, quotas, nil)
	auditor := rewardsaudit.New(ledger, true)
	pl := New(receiver, quotas, ledger, auditor, nil, rates, epochCfg)
	return &harness{pl: pl, store: store, reg: reg, ledger: ledger, quotas: quotas}
}

func (h *harness) addProvider(t *testing.T, id types.HexID, caps uint64, stake uint64) {
	t.Helper()
	_, err := h.reg.RegisterProvider(id, caps, nil, true, stake, "us")
	require.NoError(t, err)
}

func (h *harness) leaseJob(t *testing.T, jobID, providerID types.HexID, kind types.JobKind) {
	t.Helper()
	job := types.Job{
		JobID:       jobID,
		Kind:        kind,
		Status:      types.JobQueued,
		TTLSeconds:  3600,
		MaxAttempts: 3,
	}
	require.NoError(t, h.store.PutJob(context.Background(), job))
	_, err := h.store.Assign(context.Background(), jobID, providerID, 300, 0)
	require.NoError(t, err)
}

func (h *harness) submit(t *testing.T, jobID, providerID types.HexID, env proofbridge.Envelope) ProofResult {
	t.Helper()
	env.ProviderID = providerID
	res, err := h.pl.AcceptCompletion(context.Background(), completion.Submission{
		JobID:        jobID,
		ProviderID:   providerID,
		OutputDigest: testDigest,
	}, env, 100, 5)
	require.NoError(t, err)
	return res
}

// nullifierFor derives a distinct 64-hex nullifier per task for test
// envelopes; replay protection itself lives upstream of the bridge.
func nullifierFor(task types.HexID) types.HexID {
	return types.HexID(fmt.Sprintf("%064x", []byte(task)))
}

func aiEnvelope(task types.HexID, units uint64) proofbridge.Envelope {
	return proofbridge.Envelope{
		Type:      "ai",
		TaskID:    task,
		Nullifier: nullifierFor(task),
		Height:    5,
		Units:     units,
	}
}

func TestProofToPayoutCreditsSplitShares(t *testing.T) {
	h := newHarness(t,
		RateConfig{AIUnitRateNano: 2, QuantumUnitRateNano: 5},
		EpochConfig{LengthBlocks: 10, BaseBudgetNano: 10_000, RolloverRateScaled: 500_000})
	h.addProvider(t, "provai", types.WithCapability(0, types.CapabilityAI), 1_000)
	h.addProvider(t, "provq", types.WithCapability(0, types.CapabilityQuantum), 5_000)
	h.leaseJob(t, "job-ai", "provai", types.JobKindAI)
	h.leaseJob(t, "job-q", "provq", types.JobKindQuantum)

	resAI := h.submit(t, "job-ai", "provai", aiEnvelope("task-ai", 120))
	require.Equal(t, uint64(240), resAI.Reward)
	require.Equal(t, uint64(204), resAI.ProviderAmount)
	require.Equal(t, uint64(24), resAI.TreasuryAmount)
	require.Equal(t, uint64(12), resAI.MinerAmount)

	resQ := h.submit(t, "job-q", "provq", proofbridge.Envelope{
		Type:      "quantum",
		TaskID:    "task-q",
		Nullifier: nullifierFor("task-q"),
		Height:    5,
		Units:     15,
	})
	require.Equal(t, uint64(75), resQ.Reward)
	// 80/15/5 with the 1-unit rounding residue assigned to the provider.
	require.Equal(t, uint64(61), resQ.ProviderAmount)
	require.Equal(t, uint64(11), resQ.TreasuryAmount)
	require.Equal(t, uint64(3), resQ.MinerAmount)

	report, err := h.pl.SettleEpoch(5, 200)
	require.NoError(t, err)
	require.Empty(t, report.Rejected)
	require.Equal(t, uint64(35), report.TreasuryAccrued)

	require.Equal(t, uint64(204), h.ledger.Account("provai").Available)
	require.Equal(t, uint64(61), h.ledger.Account("provq").Available)
	require.Equal(t, uint64(35), h.ledger.Account(TreasuryAccountID).Available)
	require.Equal(t, uint64(15), h.ledger.Account(DefaultMinerAddress).Available)

	// Settling again with nothing queued moves no further money.
	report, err = h.pl.SettleEpoch(6, 300)
	require.NoError(t, err)
	require.Empty(t, report.Accepted)
	require.Equal(t, uint64(204), h.ledger.Account("provai").Available)
}

func TestEpochOverflowDefersToNextSettlement(t *testing.T) {
	h := newHarness(t,
		RateConfig{AIUnitRateNano: 1, QuantumUnitRateNano: 1},
		EpochConfig{LengthBlocks: 10, BaseBudgetNano: 700, RolloverRateScaled: 500_000})
	h.addProvider(t, "prov-a", types.WithCapability(0, types.CapabilityAI), 1_000)
	h.addProvider(t, "prov-b", types.WithCapability(0, types.CapabilityAI), 1_000)
	h.leaseJob(t, "job-a", "prov-a", types.JobKindAI)
	h.leaseJob(t, "job-b", "prov-b", types.JobKindAI)

	// Provider shares: 595 for prov-a, 510 for prov-b; miner pool 65.
	h.submit(t, "job-a", "prov-a", aiEnvelope("task-a", 700))
	h.submit(t, "job-b", "prov-b", aiEnvelope("task-b", 600))

	report, err := h.pl.SettleEpoch(5, 200)
	require.NoError(t, err)
	// Address order pays prov-a first; prov-b's 510 would overflow the
	// remaining 105 and is deferred whole, never partially paid. The miner
	// pool transfer still fits behind it.
	require.Len(t, report.Accepted, 2)
	require.Len(t, report.Rejected, 1)
	require.Equal(t, uint64(510), report.Rejected[0].Amount)
	require.Equal(t, uint64(595), h.ledger.Account("prov-a").Available)
	require.Zero(t, h.ledger.Account("prov-b").Available)

	state := h.pl.EpochState()
	require.LessOrEqual(t, state.BudgetSpent, state.BudgetTotal)
	require.Equal(t, uint64(660), state.BudgetSpent)

	// Next epoch: base 700 plus half the 40 unused rolls over, and the
	// deferred transfer is paid in full.
	report, err = h.pl.SettleEpoch(15, 300)
	require.NoError(t, err)
	require.Empty(t, report.Rejected)
	require.Equal(t, uint64(510), h.ledger.Account("prov-b").Available)

	state = h.pl.EpochState()
	require.Equal(t, uint64(1), state.EpochIdx)
	require.Equal(t, uint64(720), state.BudgetTotal)
	require.Equal(t, uint64(510), state.BudgetSpent)
}

func TestBadSLAWindowsSlashAndJail(t *testing.T) {
	h := newHarness(t,
		RateConfig{AIUnitRateNano: 1, QuantumUnitRateNano: 1},
		EpochConfig{LengthBlocks: 10, BaseBudgetNano: 100_000, RolloverRateScaled: 0})
	h.addProvider(t, "prov-bad", types.WithCapability(0, types.CapabilityAI), 10_000)

	slasher := slash.New(slash.Config{
		BaseBps:    1_000,
		MinSlash:   1,
		MaxSlash:   10_000,
		WindowMs:   1_000_000,
		JailAfter:  2,
		JailBlocks: 5,
	}, h.reg, h.ledger, nil)
	h.pl.AttachSLA(sla.Thresholds{
		TrapsMin:        0.98,
		QoSMin:          0,
		MaxLatencyMs:    5_000,
		AvailabilityMin: 0.9,
		Confidence:      0.95,
	}, slasher, h.reg)

	env := aiEnvelope("task-1", 10)
	env.TrapsPassed = 190
	env.TrapsTotal = 200
	h.leaseJob(t, "job-1", "prov-bad", types.JobKindAI)
	h.submit(t, "job-1", "prov-bad", env)

	_, err := h.pl.SettleEpoch(5, 200)
	require.NoError(t, err)

	p, err := h.reg.Get("prov-bad")
	require.NoError(t, err)
	require.Less(t, p.StakeTotal, uint64(10_000))
	require.False(t, h.reg.IsJailed("prov-bad"))
	stakeAfterFirst := p.StakeTotal

	env2 := aiEnvelope("task-2", 10)
	env2.TrapsPassed = 185
	env2.TrapsTotal = 200
	h.leaseJob(t, "job-2", "prov-bad", types.JobKindAI)
	h.submit(t, "job-2", "prov-bad", env2)

	_, err = h.pl.SettleEpoch(6, 300)
	require.NoError(t, err)

	p, err = h.reg.Get("prov-bad")
	require.NoError(t, err)
	require.Less(t, p.StakeTotal, stakeAfterFirst)
	require.True(t, h.reg.IsJailed("prov-bad"))
	require.Equal(t, types.Height(11), p.JailUntilHeight)
}
