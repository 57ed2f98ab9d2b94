// Package storage defines the narrow, atomic contract every AICF component
// relies on for durable job, lease, and audit state. The contract is
// intentionally small: callers never see partial transitions, and every
// CAS-like method either applies cleanly or returns an error describing why
// it could not.
package storage

import (
	"context"
	"errors"

	"aicf/core/events"
	"aicf/core/types"
)

// ErrNotQueued is returned by Assign when the job is not currently QUEUED.
var ErrNotQueued = errors.New("storage: job not queued")

// ErrNotAssigned is returned by lease-holder operations when the job is not
// currently ASSIGNED.
var ErrNotAssigned = errors.New("storage: job not assigned")

// ErrJobNotFound is returned when a job id does not resolve to a row.
var ErrJobNotFound = errors.New("storage: job not found")

// ErrNotHolder is returned by SQLStore.MarkCompleted when the caller does
// not hold the job's lease; MemoryStore returns a LeaseLost error instead.
var ErrNotHolder = errors.New("storage: caller is not the lease holder")

// ErrLeaseNotFound is returned by get_active_lease when no lease is active.
var ErrLeaseNotFound = errors.New("storage: no active lease")

// ListFilter narrows list_ready / job listing queries.
type ListFilter struct {
	Kind       types.JobKind
	HasKind    bool
	Status     types.JobStatus
	HasStatus  bool
	ProviderID types.HexID
	Requester  string
	Offset     int
	Limit      int
}

// ExpireReport summarizes the two expire() sweeps. The job-id slices let a
// caller holding side state keyed by job (e.g. a quota reservation) release
// it for exactly the jobs this sweep touched.
type ExpireReport struct {
	TTLExpired     int
	LeasesRequeued int

	TTLExpiredJobIDs []types.HexID
	RequeuedJobIDs   []types.HexID
}

// Store is the atomic, race-free persistence contract for jobs, leases, and
// their audit trail. Implementations must serialize every
// CAS-like transition so concurrent dispatcher instances contend harmlessly.
type Store interface {
	// GetJob returns the job row, or ErrJobNotFound.
	GetJob(ctx context.Context, id types.HexID) (types.Job, error)

	// PutJob inserts or fully overwrites a job row. Used by enqueue and by
	// components adapting legacy records; callers that want a CAS
	// transition should prefer the dedicated methods below.
	PutJob(ctx context.Context, job types.Job) error

	// ListReady returns QUEUED jobs with NotBefore <= now. Store only
	// applies the filter and returns raw rows in CreatedAt order, leaving
	// ranking to the caller (the priority package).
	ListReady(ctx context.Context, now types.UnixMillis, filter ListFilter) ([]types.Job, error)

	// ListJobs supports the read-only RPC surface (kind/status/provider
	// filters, pagination), independent of readiness.
	ListJobs(ctx context.Context, filter ListFilter) ([]types.Job, error)

	// Assign performs the QUEUED -> ASSIGNED CAS and issues a Lease.
	// Returns ErrNotQueued if the job is not currently queued.
	Assign(ctx context.Context, jobID, providerID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error)

	// RenewLease extends an active lease's expiry. Only valid while the job
	// is ASSIGNED; returns ErrNotAssigned otherwise.
	RenewLease(ctx context.Context, jobID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error)

	// Complete marks a job COMPLETED and records the result payload.
	Complete(ctx context.Context, jobID types.HexID, result string) error

	// Fail records a failure. If retryable is false the caller is expected
	// to have already decided tombstone vs terminal-fail and should instead
	// call Tombstone or ScheduleRetry directly; Fail simply records the
	// error string against the job for audit.
	Fail(ctx context.Context, jobID types.HexID, errMsg string, retryable bool) error

	// Requeue transitions a job back to QUEUED, optionally overriding
	// NotBefore.
	Requeue(ctx context.Context, jobID types.HexID, notBefore *types.UnixMillis) error

	// Cancel transitions any live job to CANCELED. Owner-only check is
	// enforced by the caller (the storage layer trusts the provided actor).
	Cancel(ctx context.Context, jobID types.HexID) error

	// Tombstone transitions a job to the terminal TOMBSTONED state.
	Tombstone(ctx context.Context, jobID types.HexID) error

	// Expire runs the two TTL/lease sweeps and
	// returns how many rows were mutated by each.
	Expire(ctx context.Context, now types.UnixMillis) (ExpireReport, error)

	// ScheduleRetry releases the active lease (if any), sets the job back
	// to QUEUED with NotBefore = availableAt, and records attempts/last
	// error for audit.
	ScheduleRetry(ctx context.Context, jobID types.HexID, availableAt types.UnixMillis, lastError string, attempts int, now types.UnixMillis) error

	// ReleaseLease releases a lease without altering job status, used by
	// the cancel path.
	ReleaseLease(ctx context.Context, leaseID types.HexID, now types.UnixMillis) error

	// GetActiveLease returns the current non-expired lease for a job, or
	// ErrLeaseNotFound.
	GetActiveLease(ctx context.Context, jobID types.HexID, now types.UnixMillis) (types.Lease, error)

	// MarkCompleted atomically validates and applies a completion receipt;
	// used by the completion receiver so the holder/digest checks and the
	// status transition happen under a single lock.
	MarkCompleted(ctx context.Context, jobID, providerID types.HexID, digest string, now types.UnixMillis) error

	// AppendEvent persists an AicfEvent to the audit trail.
	AppendEvent(ctx context.Context, evt events.Event) error

	// Close releases backend resources.
	Close() error
}
