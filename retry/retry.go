// Package retry implements backoff scheduling, permanent-error
// classification, and TTL garbage collection for the job queue.
package retry

import (
	"math"
	"math/rand"
	"strings"

	"aicf/core/types"
)

// Policy parameterizes exponential backoff with jitter.
type Policy struct {
	BaseDelayMs    int64
	MaxDelayMs     int64
	Multiplier     float64
	JitterFraction float64
}

// DefaultPolicy returns a conservative production default.
func DefaultPolicy() Policy {
	return Policy{BaseDelayMs: 2000, MaxDelayMs: 5 * 60 * 1000, Multiplier: 2.0, JitterFraction: 0.2}
}

// Delay computes the jittered retry delay for the given attempt count
// (1-indexed), using rng for the jitter draw so callers can make it
// deterministic in tests.
func (p Policy) Delay(attempts int, rng *rand.Rand) int64 {
	if attempts < 1 {
		attempts = 1
	}
	raw := float64(p.BaseDelayMs) * math.Pow(p.Multiplier, float64(attempts-1))
	if raw > float64(p.MaxDelayMs) {
		raw = float64(p.MaxDelayMs)
	}
	if p.JitterFraction <= 0 {
		return int64(raw)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	jitter := (rng.Float64()*2 - 1) * p.JitterFraction
	delayed := raw * (1 + jitter)
	if delayed < 0 {
		delayed = 0
	}
	return int64(delayed)
}

// permanentCodes are error codes that tombstone a job immediately rather
// than being retried.
var permanentCodes = map[string]bool{
	"proof_invalid":         true,
	"attestation_invalid":   true,
	"job_too_large":         true,
	"schema_invalid":        true,
	"unsupported_algorithm": true,
	"forbidden":             true,
	"payment_required":      true,
}

var permanentPrefixes = []string{"validation/", "proof/", "attestation/"}

// IsPermanent classifies an error code as permanent (tombstone) vs
// transient (retry).
func IsPermanent(code string) bool {
	if permanentCodes[code] {
		return true
	}
	for _, prefix := range permanentPrefixes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// TTLPolicy parameterizes the garbage-collection sweep.
type TTLPolicy struct {
	QueuedTTLMs        int64
	LeasedGraceMs      int64
	CompletedRetentionMs int64
	FailedRetentionMs  int64
	MaxTotalAgeMs      int64
}

// Action is the outcome of evaluating a job against the TTL policy.
type Action int

const (
	ActionNone Action = iota
	ActionExpire
	ActionPurge
)

// Evaluate applies the TTL GC rules to a single job, returning
// the action the sweep should take. The sweep is idempotent: calling
// Evaluate again on a row left untouched by a failed action yields the
// same decision.
func Evaluate(job types.Job, now types.UnixMillis, p TTLPolicy) Action {
	age := now.Sub(job.CreatedAt)

	if p.MaxTotalAgeMs > 0 && age > p.MaxTotalAgeMs {
		if job.Status.Terminal() {
			return ActionPurge
		}
		return ActionExpire
	}

	switch job.Status {
	case types.JobQueued:
		if p.QueuedTTLMs > 0 && age > p.QueuedTTLMs {
			return ActionExpire
		}
	case types.JobAssigned:
		if p.LeasedGraceMs > 0 && now.Sub(job.LeaseExpiresAt) > p.LeasedGraceMs {
			return ActionExpire
		}
	case types.JobCompleted:
		if p.CompletedRetentionMs > 0 && age > p.CompletedRetentionMs {
			return ActionPurge
		}
	case types.JobFailed, types.JobTombstoned, types.JobExpired:
		if p.FailedRetentionMs > 0 && age > p.FailedRetentionMs {
			return ActionPurge
		}
	}
	return ActionNone
}

// Due reports whether a job whose NotBefore has elapsed is eligible to be
// re-emitted by a dispatcher probe at time t, honoring the max-age cutoff
// regardless of how many attempts remain scheduled.
func Due(job types.Job, t types.UnixMillis, maxAgeMs int64) bool {
	if maxAgeMs > 0 && t.Sub(job.CreatedAt) > maxAgeMs {
		return false
	}
	return job.NotBefore <= t
}
