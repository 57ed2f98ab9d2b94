package retry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"aicf/core/types"
)

func TestDelayIsPositiveAndNonDecreasing(t *testing.T) {
	p := Policy{BaseDelayMs: 100, MaxDelayMs: 100000, Multiplier: 2.0, JitterFraction: 0}
	rng := rand.New(rand.NewSource(1))

	var prev int64
	for attempt := 1; attempt <= 4; attempt++ {
		d := p.Delay(attempt, rng)
		require.Greater(t, d, int64(0))
		require.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestDelayCapsAtMaxDelay(t *testing.T) {
	p := Policy{BaseDelayMs: 1000, MaxDelayMs: 5000, Multiplier: 10.0, JitterFraction: 0}
	d := p.Delay(5, rand.New(rand.NewSource(1)))
	require.Equal(t, int64(5000), d)
}

func TestIsPermanentCodesAndPrefixes(t *testing.T) {
	require.True(t, IsPermanent("proof_invalid"))
	require.True(t, IsPermanent("attestation_invalid"))
	require.True(t, IsPermanent("schema_invalid"))
	require.True(t, IsPermanent("validation/bad_field"))
	require.True(t, IsPermanent("proof/mismatch"))
	require.False(t, IsPermanent("deadline_exceeded"))
	require.False(t, IsPermanent("storage_contention"))
}

func TestEvaluateQueuedTTLExpires(t *testing.T) {
	job := types.Job{Status: types.JobQueued, CreatedAt: 0}
	p := TTLPolicy{QueuedTTLMs: 1000}
	require.Equal(t, ActionNone, Evaluate(job, 500, p))
	require.Equal(t, ActionExpire, Evaluate(job, 1500, p))
}

func TestEvaluateLeasedGraceExpires(t *testing.T) {
	job := types.Job{Status: types.JobAssigned, CreatedAt: 0, LeaseExpiresAt: 1000}
	p := TTLPolicy{LeasedGraceMs: 500}
	require.Equal(t, ActionNone, Evaluate(job, 1200, p))
	require.Equal(t, ActionExpire, Evaluate(job, 1600, p))
}

func TestEvaluateTerminalRetentionPurges(t *testing.T) {
	job := types.Job{Status: types.JobCompleted, CreatedAt: 0}
	p := TTLPolicy{CompletedRetentionMs: 1000}
	require.Equal(t, ActionNone, Evaluate(job, 500, p))
	require.Equal(t, ActionPurge, Evaluate(job, 1500, p))

	job = types.Job{Status: types.JobTombstoned, CreatedAt: 0}
	p = TTLPolicy{FailedRetentionMs: 1000}
	require.Equal(t, ActionPurge, Evaluate(job, 1500, p))
}

func TestEvaluateMaxTotalAgeOverridesStatus(t *testing.T) {
	live := types.Job{Status: types.JobQueued, CreatedAt: 0}
	terminal := types.Job{Status: types.JobFailed, CreatedAt: 0}
	p := TTLPolicy{MaxTotalAgeMs: 1000}

	require.Equal(t, ActionExpire, Evaluate(live, 2000, p))
	require.Equal(t, ActionPurge, Evaluate(terminal, 2000, p))
}

func TestDueRejectsJobsOlderThanMaxAgeRegardlessOfNotBefore(t *testing.T) {
	job := types.Job{CreatedAt: 0, NotBefore: 10}
	require.True(t, Due(job, 10, 0))
	require.False(t, Due(job, 5, 0)) // not yet due

	// Even though NotBefore has elapsed, max age has too.
	require.False(t, Due(job, 5000, 1000))
}
