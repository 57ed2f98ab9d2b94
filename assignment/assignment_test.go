package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"aicf/core/types"
	"aicf/priority"
	"aicf/quota"
	"aicf/registry"
	"aicf/storage"
)

// resolveAlways builds a CandidateResolver that treats every ACTIVE provider
// as eligible for the job's required capability, with no stake/algorithm
// gating — enough to exercise the assignment pass in isolation from the
// registry's stake bookkeeping.
func resolveAlways(reg *registry.Registry) CandidateResolver {
	return func(job types.Job, provider types.Provider) (priority.EligibilityInput, bool) {
		return priority.EligibilityInput{
			Provider:       provider,
			EffectiveStake: provider.StakeTotal,
			MinStake:       0,
			Health:         1.0,
			RequiredKind:   CapabilityForKind(job.Kind),
		}, true
	}
}

func newEngine(t *testing.T) (*Engine, storage.Store, *registry.Registry, *quota.Tracker) {
	t.Helper()
	store := storage.NewMemoryStore()
	reg := registry.New(registry.NewMemoryProviderStore(), nil, nil, registry.Config{})
	q := quota.New()
	filter := priority.FilterConfig{WeightHealth: 1}
	eng := New(store, reg, q, filter, resolveAlways(reg), 300, nil)
	return eng, store, reg, q
}

func mustRegister(t *testing.T, reg *registry.Registry, id types.HexID, caps uint64) {
	t.Helper()
	_, err := reg.RegisterProvider(id, caps, nil, true, 1000, "us")
	require.NoError(t, err)
}

// TestMatchAIJobToAICapableProvider: an AI job must never
// be assigned to a Quantum-only provider.
func TestMatchAIJobToAICapableProvider(t *testing.T) {
	eng, store, reg, q := newEngine(t)
	mustRegister(t, reg, "p-ai", 1<<types.CapabilityAI)
	mustRegister(t, reg, "p-q", 1<<types.CapabilityQuantum)
	mustRegister(t, reg, "p-both", (1<<types.CapabilityAI)|(1<<types.CapabilityQuantum))
	for _, id := range []types.HexID{"p-ai", "p-q", "p-both"} {
		q.SetLimits(id, quota.ProviderLimits{AIUnitsPerEpoch: 10, QuantumUnitsPerEpoch: 10, MaxConcurrent: 1})
	}

	job := types.Job{JobID: "job1", Kind: types.JobKindAI, Fee: 10000, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job))

	result, err := eng.Tick(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	require.NotEqual(t, types.HexID("p-q"), result.Assignments[0].ProviderID)
}

// TestPriorityTiebreaker: identical fee/size/age/tier jobs
// resolve by job_id ascending, one per pass given capacity 1.
func TestPriorityTiebreaker(t *testing.T) {
	eng, store, reg, q := newEngine(t)
	mustRegister(t, reg, "p1", 1<<types.CapabilityAI)
	q.SetLimits("p1", quota.ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 1})

	job1 := types.Job{JobID: "job-0001", Kind: types.JobKindAI, Fee: 10000, SizeBytes: 2048, Tier: types.TierGold, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	job2 := types.Job{JobID: "job-0002", Kind: types.JobKindAI, Fee: 10000, SizeBytes: 2048, Tier: types.TierGold, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job1))
	require.NoError(t, store.PutJob(context.Background(), job2))

	result, err := eng.Tick(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	require.Equal(t, types.HexID("job-0001"), result.Assignments[0].JobID)

	// Complete job-0001 to free p1's single slot and re-tick: job-0002 gets
	// assigned next.
	require.NoError(t, store.MarkCompleted(context.Background(), "job-0001", "p1", "done", 6))
	q.CommitJob("job-0001")
	result, err = eng.Tick(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	require.Equal(t, types.HexID("job-0002"), result.Assignments[0].JobID)
}

func TestAtMostOneNewLeasePerProviderPerPass(t *testing.T) {
	eng, store, reg, q := newEngine(t)
	mustRegister(t, reg, "p1", 1<<types.CapabilityAI)
	q.SetLimits("p1", quota.ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 5})

	job1 := types.Job{JobID: "job-a", Kind: types.JobKindAI, Fee: 100, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	job2 := types.Job{JobID: "job-b", Kind: types.JobKindAI, Fee: 100, CreatedAt: 1, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job1))
	require.NoError(t, store.PutJob(context.Background(), job2))

	result, err := eng.Tick(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1, "only one of the two jobs should be leased to the single provider this pass")
}

func TestCancelReleasesQuotaAndRequeues(t *testing.T) {
	eng, store, reg, q := newEngine(t)
	mustRegister(t, reg, "p1", 1<<types.CapabilityAI)
	q.SetLimits("p1", quota.ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 1})

	job := types.Job{JobID: "job1", Kind: types.JobKindAI, Fee: 100, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job))
	_, err := store.Assign(context.Background(), "job1", "p1", 300, 0)
	require.NoError(t, err)
	_, err = q.Reserve("p1", types.JobKindAI, 0, 1, "job1")
	require.NoError(t, err)

	require.NoError(t, eng.Cancel(context.Background(), "job1", "p1", 10))

	j, err := store.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, types.JobQueued, j.Status)

	usage := q.Snapshot("p1", types.JobKindAI, 0)
	require.Equal(t, 0, usage.Concurrent)
}

func TestCancelByNonHolderFails(t *testing.T) {
	eng, store, reg, _ := newEngine(t)
	mustRegister(t, reg, "p1", 1<<types.CapabilityAI)
	mustRegister(t, reg, "p2", 1<<types.CapabilityAI)

	job := types.Job{JobID: "job1", Kind: types.JobKindAI, Fee: 100, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job))
	_, err := store.Assign(context.Background(), "job1", "p1", 300, 0)
	require.NoError(t, err)

	err = eng.Cancel(context.Background(), "job1", "p2", 10)
	require.Error(t, err)
}

func TestFailPermanentErrorTombstonesImmediately(t *testing.T) {
	eng, store, reg, q := newEngine(t)
	mustRegister(t, reg, "p1", 1<<types.CapabilityAI)
	q.SetLimits("p1", quota.ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 1})

	job := types.Job{JobID: "job1", Kind: types.JobKindAI, Fee: 100, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job))
	_, err := store.Assign(context.Background(), "job1", "p1", 300, 0)
	require.NoError(t, err)
	_, err = q.Reserve("p1", types.JobKindAI, 0, 1, "job1")
	require.NoError(t, err)

	require.NoError(t, eng.Fail(context.Background(), "job1", "p1", "schema_invalid", 10))

	j, err := store.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, types.JobTombstoned, j.Status)

	usage := q.Snapshot("p1", types.JobKindAI, 0)
	require.Equal(t, 0, usage.Concurrent)
}

func TestFailTransientErrorSchedulesRetry(t *testing.T) {
	eng, store, reg, q := newEngine(t)
	mustRegister(t, reg, "p1", 1<<types.CapabilityAI)
	q.SetLimits("p1", quota.ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 1})

	job := types.Job{JobID: "job1", Kind: types.JobKindAI, Fee: 100, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 3, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job))
	_, err := store.Assign(context.Background(), "job1", "p1", 300, 0)
	require.NoError(t, err)
	_, err = q.Reserve("p1", types.JobKindAI, 0, 1, "job1")
	require.NoError(t, err)

	require.NoError(t, eng.Fail(context.Background(), "job1", "p1", "deadline_exceeded", 10))

	j, err := store.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, types.JobQueued, j.Status)
	require.Equal(t, 1, j.Attempts)
	require.Greater(t, int64(j.NotBefore), int64(10))
}

func TestFailAtAttemptsCapTombstones(t *testing.T) {
	eng, store, reg, q := newEngine(t)
	mustRegister(t, reg, "p1", 1<<types.CapabilityAI)
	q.SetLimits("p1", quota.ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 1})

	job := types.Job{JobID: "job1", Kind: types.JobKindAI, Fee: 100, CreatedAt: 0, TTLSeconds: 3600, MaxAttempts: 1, Status: types.JobQueued}
	require.NoError(t, store.PutJob(context.Background(), job))
	_, err := store.Assign(context.Background(), "job1", "p1", 300, 0) // Attempts becomes 1
	require.NoError(t, err)
	_, err = q.Reserve("p1", types.JobKindAI, 0, 1, "job1")
	require.NoError(t, err)

	require.NoError(t, eng.Fail(context.Background(), "job1", "p1", "deadline_exceeded", 10))

	j, err := store.GetJob(context.Background(), "job1")
	require.NoError(t, err)
	require.Equal(t, types.JobTombstoned, j.Status)
}
