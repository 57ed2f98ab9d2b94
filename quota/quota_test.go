package quota

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aicf/core/types"
)

func TestReserveRespectsEpochCap(t *testing.T) {
	q := New()
	q.SetLimits("p1", ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 5})

	_, err := q.Reserve("p1", types.JobKindAI, 0, 6, "job-a")
	require.NoError(t, err)

	_, err = q.Reserve("p1", types.JobKindAI, 0, 5, "job-b")
	require.ErrorIs(t, err, ErrOverCapacity)
}

func TestReserveRespectsMaxConcurrent(t *testing.T) {
	q := New()
	q.SetLimits("p1", ProviderLimits{AIUnitsPerEpoch: 1000, MaxConcurrent: 1})

	_, err := q.Reserve("p1", types.JobKindAI, 0, 1, "job-a")
	require.NoError(t, err)

	_, err = q.Reserve("p1", types.JobKindAI, 0, 1, "job-b")
	require.ErrorIs(t, err, ErrOverCapacity)
}

func TestCommitMovesReservedToUsed(t *testing.T) {
	q := New()
	q.SetLimits("p1", ProviderLimits{AIUnitsPerEpoch: 100, MaxConcurrent: 5})

	_, err := q.Reserve("p1", types.JobKindAI, 0, 4, "job-a")
	require.NoError(t, err)
	require.True(t, q.CommitJob("job-a"))

	u := q.Snapshot("p1", types.JobKindAI, 0)
	require.Equal(t, uint64(0), u.Reserved)
	require.Equal(t, uint64(4), u.Used)
	require.Equal(t, 0, u.Concurrent)
}

func TestReleaseJobFreesReservationWithoutConsumingBudget(t *testing.T) {
	q := New()
	q.SetLimits("p1", ProviderLimits{AIUnitsPerEpoch: 10, MaxConcurrent: 1})

	_, err := q.Reserve("p1", types.JobKindAI, 0, 10, "job-a")
	require.NoError(t, err)
	require.True(t, q.ReleaseJob("job-a"))

	u := q.Snapshot("p1", types.JobKindAI, 0)
	require.Equal(t, uint64(0), u.Reserved)
	require.Equal(t, uint64(0), u.Used)
	require.Equal(t, 0, u.Concurrent)

	// capacity is free again
	_, err = q.Reserve("p1", types.JobKindAI, 0, 10, "job-b")
	require.NoError(t, err)
}

func TestReleaseJobUnknownJobIsNoop(t *testing.T) {
	q := New()
	require.False(t, q.ReleaseJob("missing"))
	require.False(t, q.CommitJob("missing"))
}

func TestAdjustCommittedFlooredAtZero(t *testing.T) {
	q := New()
	q.AdjustCommitted("p1", types.JobKindAI, 0, -50)
	u := q.Snapshot("p1", types.JobKindAI, 0)
	require.Equal(t, uint64(0), u.Used)

	q.AdjustCommitted("p1", types.JobKindAI, 0, 20)
	q.AdjustCommitted("p1", types.JobKindAI, 0, -5)
	u = q.Snapshot("p1", types.JobKindAI, 0)
	require.Equal(t, uint64(15), u.Used)
}

func TestKindsTrackIndependentBudgets(t *testing.T) {
	q := New()
	q.SetLimits("p1", ProviderLimits{AIUnitsPerEpoch: 5, QuantumUnitsPerEpoch: 5, MaxConcurrent: 5})

	_, err := q.Reserve("p1", types.JobKindAI, 0, 5, "job-a")
	require.NoError(t, err)
	// Quantum budget is untouched by the AI reservation.
	_, err = q.Reserve("p1", types.JobKindQuantum, 0, 5, "job-q")
	require.NoError(t, err)
}

func TestUnknownProviderGetsDefaultConcurrencyOfOne(t *testing.T) {
	q := New()
	_, err := q.Reserve("unregistered", types.JobKindAI, 0, 1, "job-a")
	require.NoError(t, err)
	_, err = q.Reserve("unregistered", types.JobKindAI, 0, 1, "job-b")
	require.ErrorIs(t, err, ErrOverCapacity)
}
