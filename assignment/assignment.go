// Package assignment implements the single deterministic assignment pass:
// expire stale leases, rank ready jobs, then greedily match each job to its
// highest-ranked eligible, not-yet-assigned-this-pass provider. The pass
// itself holds no storage lock of its own; every mutation is a CAS against
// the Store, so redundant concurrent dispatcher instances contend
// harmlessly.
package assignment

import (
	"context"
	"math/rand"
	"time"

	"aicf/core/errors"
	"aicf/core/events"
	"aicf/core/types"
	"aicf/priority"
	"aicf/quota"
	"aicf/registry"
	"aicf/retry"
	"aicf/storage"
)

// CapabilityForKind maps a job kind to the capability bit it requires.
func CapabilityForKind(kind types.JobKind) types.Capability {
	if kind == types.JobKindQuantum {
		return types.CapabilityQuantum
	}
	return types.CapabilityAI
}

// CandidateResolver resolves eligibility/score inputs for one provider against one
// job; supplied by the caller so Engine stays independent of the stake and
// health subsystems' concrete wiring.
type CandidateResolver func(job types.Job, provider types.Provider) (priority.EligibilityInput, bool)

// Engine runs assignment passes over a Store.
type Engine struct {
	store       storage.Store
	registry    *registry.Registry
	quotas      *quota.Tracker
	filter      priority.FilterConfig
	resolve     CandidateResolver
	leaseSecs   int64
	emitter     events.Emitter
	retryPolicy retry.Policy
	rng         *rand.Rand
}

// New constructs an assignment Engine.
func New(store storage.Store, reg *registry.Registry, quotas *quota.Tracker, filter priority.FilterConfig, resolve CandidateResolver, leaseSecs int64, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{
		store: store, registry: reg, quotas: quotas, filter: filter, resolve: resolve, leaseSecs: leaseSecs, emitter: emitter,
		retryPolicy: retry.DefaultPolicy(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRetryPolicy overrides the backoff policy Fail uses to schedule retries.
func (e *Engine) SetRetryPolicy(p retry.Policy) { e.retryPolicy = p }

// PassResult summarizes one Tick's assignment pass.
type PassResult struct {
	Expired        storage.ExpireReport
	Assignments    []types.Lease
	AssignedByKind map[string]int
}

// Tick runs the full pass: expire sweep, rank, greedy match, emit.
func (e *Engine) Tick(ctx context.Context, now types.UnixMillis, epoch uint64) (PassResult, error) {
	var result PassResult

	report, err := e.store.Expire(ctx, now)
	if err != nil {
		return result, err
	}
	result.Expired = report
	for _, jobID := range report.TTLExpiredJobIDs {
		e.quotas.ReleaseJob(jobID)
	}
	for _, jobID := range report.RequeuedJobIDs {
		e.quotas.ReleaseJob(jobID)
	}

	ready, err := e.store.ListReady(ctx, now, storage.ListFilter{})
	if err != nil {
		return result, err
	}
	ranked := priority.Rank(ready)

	providers := e.registry.List()
	assignedThisPass := make(map[types.HexID]bool)

	for _, job := range ranked {
		var scored []priority.ScoredProvider
		for _, p := range providers {
			if assignedThisPass[p.ProviderID] {
				continue
			}
			in, ok := e.resolve(job, p)
			if !ok {
				continue
			}
			if !priority.Eligible(in, e.filter) {
				continue
			}
			scored = append(scored, priority.ScoredProvider{ProviderID: p.ProviderID, Score: priority.Score(in, e.filter)})
		}
		if len(scored) == 0 {
			continue
		}
		rankedProviders := priority.RankProviders(scored)

		chosen, assigned, lease, err := e.assignToRanked(ctx, job, rankedProviders, epoch, now)
		if err != nil {
			return result, err
		}
		if !assigned {
			continue // every eligible provider is over capacity or lost the race
		}
		assignedThisPass[chosen] = true
		result.Assignments = append(result.Assignments, lease)
		if result.AssignedByKind == nil {
			result.AssignedByKind = make(map[string]int, 2)
		}
		result.AssignedByKind[string(job.Kind)]++

		assignedEvt := events.Assigned{JobID: string(job.JobID), ProviderID: string(chosen), LeaseID: string(lease.LeaseID), Millis: int64(now)}
		e.emitter.Emit(assignedEvt)
		if err := e.store.AppendEvent(ctx, assignedEvt); err != nil {
			return result, err
		}
	}
	return result, nil
}

// nominalUnits is the quota reservation booked at assignment time, before
// the job's actual work units is known from its proof.
// pipeline.Pipeline.AcceptCompletion reconciles the difference via
// AdjustCommitted once the real work_units figure is available.
const nominalUnits = 1

// assignToRanked walks rankedProviders in order, reserving epoch/concurrency
// quota before issuing the CAS lease so a provider at capacity is skipped in
// favor of the next-ranked eligible one rather than failing the whole job.
func (e *Engine) assignToRanked(ctx context.Context, job types.Job, rankedProviders []priority.ScoredProvider, epoch uint64, now types.UnixMillis) (types.HexID, bool, types.Lease, error) {
	for _, sp := range rankedProviders {
		if _, err := e.quotas.Reserve(sp.ProviderID, job.Kind, epoch, nominalUnits, job.JobID); err != nil {
			if err == quota.ErrOverCapacity {
				continue
			}
			return "", false, types.Lease{}, err
		}

		lease, err := e.store.Assign(ctx, job.JobID, sp.ProviderID, e.leaseSecs, now)
		if err != nil {
			e.quotas.ReleaseJob(job.JobID)
			if err == storage.ErrNotQueued {
				return "", false, types.Lease{}, nil // lost the race to another dispatcher instance
			}
			return "", false, types.Lease{}, err
		}
		return sp.ProviderID, true, lease, nil
	}
	return "", false, types.Lease{}, nil
}

// Renew extends a lease; only the current holder may call this.
func (e *Engine) Renew(ctx context.Context, jobID, callerProvider types.HexID, extendSecs int64, now types.UnixMillis) (types.Lease, error) {
	lease, err := e.store.GetActiveLease(ctx, jobID, now)
	if err != nil {
		return types.Lease{}, err
	}
	if lease.ProviderID != callerProvider {
		return types.Lease{}, errors.LeaseLost(string(jobID), string(lease.ProviderID))
	}
	return e.store.RenewLease(ctx, jobID, extendSecs, now)
}

// Cancel releases quota and requeues the job; only the current holder may
// call this.
func (e *Engine) Cancel(ctx context.Context, jobID, callerProvider types.HexID, now types.UnixMillis) error {
	lease, err := e.store.GetActiveLease(ctx, jobID, now)
	if err != nil {
		return err
	}
	if lease.ProviderID != callerProvider {
		return errors.LeaseLost(string(jobID), string(lease.ProviderID))
	}
	if err := e.store.ReleaseLease(ctx, lease.LeaseID, now); err != nil {
		return err
	}
	e.quotas.ReleaseJob(jobID)
	return e.store.Requeue(ctx, jobID, nil)
}

// Fail records a provider-reported failure against the job's active lease;
// only the current holder may call this. A permanent error code (spec
// §4.7) tombstones the job, otherwise it is requeued behind a jittered
// backoff delay. Quota consumed by the failed attempt is released either
// way — a failed attempt never counts against the provider's epoch budget.
func (e *Engine) Fail(ctx context.Context, jobID, callerProvider types.HexID, errCode string, now types.UnixMillis) error {
	lease, err := e.store.GetActiveLease(ctx, jobID, now)
	if err != nil {
		return err
	}
	if lease.ProviderID != callerProvider {
		return errors.LeaseLost(string(jobID), string(lease.ProviderID))
	}
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	// job.Attempts already reflects this attempt: Assign increments it once
	// per successful lease, so it must not be incremented again here, or a
	// job would be tombstoned one failure earlier than MaxAttempts allows.
	permanent := retry.IsPermanent(errCode) || job.Attempts >= job.MaxAttempts
	if err := e.store.Fail(ctx, jobID, errCode, !permanent); err != nil {
		return err
	}
	e.quotas.ReleaseJob(jobID)

	if permanent {
		return e.store.Tombstone(ctx, jobID)
	}
	delay := e.retryPolicy.Delay(job.Attempts, e.rng)
	notBefore := now.Add(delay)
	return e.store.ScheduleRetry(ctx, jobID, notBefore, errCode, job.Attempts, now)
}
