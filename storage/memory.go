package storage

import (
	"context"
	"sort"
	"sync"

	"aicf/core/errors"
	"aicf/core/events"
	"aicf/core/types"
)

// MemoryStore is an in-process Store backed by a mutex-guarded map. It is
// the reference implementation used by unit tests and by single-node
// deployments that tolerate process-local state.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[types.HexID]types.Job
	leases map[types.HexID]types.Lease // keyed by LeaseID
	events []events.Event
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[types.HexID]types.Job),
		leases: make(map[types.HexID]types.Lease),
	}
}

func (s *MemoryStore) GetJob(_ context.Context, id types.HexID) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryStore) PutJob(_ context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return nil
}

func (s *MemoryStore) ListReady(_ context.Context, now types.UnixMillis, filter ListFilter) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Job
	for _, j := range s.jobs {
		if j.Status != types.JobQueued {
			continue
		}
		if j.NotBefore > now {
			continue
		}
		if filter.HasKind && j.Kind != filter.Kind {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt < out[k].CreatedAt })
	return applyPage(out, filter), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter ListFilter) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Job
	for _, j := range s.jobs {
		if filter.HasKind && j.Kind != filter.Kind {
			continue
		}
		if filter.HasStatus && j.Status != filter.Status {
			continue
		}
		if filter.ProviderID != "" && j.LeaseProvider != filter.ProviderID {
			continue
		}
		if filter.Requester != "" && j.Requester != filter.Requester {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt < out[k].CreatedAt })
	return applyPage(out, filter), nil
}

func applyPage(jobs []types.Job, filter ListFilter) []types.Job {
	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(jobs) {
		jobs = jobs[:filter.Limit]
	}
	return jobs
}

func (s *MemoryStore) Assign(_ context.Context, jobID, providerID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return types.Lease{}, ErrJobNotFound
	}
	if job.Status != types.JobQueued {
		return types.Lease{}, ErrNotQueued
	}
	leaseID, err := types.NewRandomID(16)
	if err != nil {
		return types.Lease{}, err
	}
	lease := types.Lease{
		LeaseID:    leaseID,
		JobID:      jobID,
		ProviderID: providerID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(leaseSecs * 1000),
	}
	job.Status = types.JobAssigned
	job.Attempts++
	job.LeaseID = lease.LeaseID
	job.LeaseProvider = providerID
	job.LeaseExpiresAt = lease.ExpiresAt
	s.jobs[jobID] = job
	s.leases[lease.LeaseID] = lease
	return lease, nil
}

func (s *MemoryStore) RenewLease(_ context.Context, jobID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return types.Lease{}, ErrJobNotFound
	}
	if job.Status != types.JobAssigned {
		return types.Lease{}, ErrNotAssigned
	}
	lease, ok := s.leases[job.LeaseID]
	if !ok {
		return types.Lease{}, ErrLeaseNotFound
	}
	base := lease.ExpiresAt
	if base < now {
		base = now
	}
	lease.ExpiresAt = base.Add(leaseSecs * 1000)
	lease.Renewals++
	s.leases[lease.LeaseID] = lease
	job.LeaseExpiresAt = lease.ExpiresAt
	s.jobs[jobID] = job
	return lease, nil
}

func (s *MemoryStore) Complete(_ context.Context, jobID types.HexID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = types.JobCompleted
	job.Result = result
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, jobID types.HexID, errMsg string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.LastError = errMsg
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) Requeue(_ context.Context, jobID types.HexID, notBefore *types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.LeaseID != "" {
		delete(s.leases, job.LeaseID)
	}
	job.Status = types.JobQueued
	job.LeaseID = ""
	job.LeaseProvider = ""
	job.LeaseExpiresAt = 0
	if notBefore != nil {
		job.NotBefore = *notBefore
	}
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) Cancel(_ context.Context, jobID types.HexID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.LeaseID != "" {
		delete(s.leases, job.LeaseID)
	}
	job.Status = types.JobCanceled
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) Tombstone(_ context.Context, jobID types.HexID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.LeaseID != "" {
		delete(s.leases, job.LeaseID)
	}
	job.Status = types.JobTombstoned
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, now types.UnixMillis) (ExpireReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var report ExpireReport
	for id, job := range s.jobs {
		switch job.Status {
		case types.JobQueued, types.JobAssigned:
			if job.DeathAt() <= now {
				if job.LeaseID != "" {
					delete(s.leases, job.LeaseID)
				}
				job.Status = types.JobExpired
				s.jobs[id] = job
				report.TTLExpired++
				report.TTLExpiredJobIDs = append(report.TTLExpiredJobIDs, id)
				continue
			}
		}
		if job.Status == types.JobAssigned && job.LeaseExpiresAt <= now {
			delete(s.leases, job.LeaseID)
			job.Status = types.JobQueued
			job.LeaseID = ""
			job.LeaseProvider = ""
			job.LeaseExpiresAt = 0
			s.jobs[id] = job
			report.LeasesRequeued++
			report.RequeuedJobIDs = append(report.RequeuedJobIDs, id)
		}
	}
	return report, nil
}

func (s *MemoryStore) ScheduleRetry(_ context.Context, jobID types.HexID, availableAt types.UnixMillis, lastError string, attempts int, _ types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.LeaseID != "" {
		delete(s.leases, job.LeaseID)
	}
	job.Status = types.JobQueued
	job.LeaseID = ""
	job.LeaseProvider = ""
	job.LeaseExpiresAt = 0
	job.NotBefore = availableAt
	job.LastError = lastError
	job.Attempts = attempts
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, leaseID types.HexID, _ types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, leaseID)
	return nil
}

func (s *MemoryStore) GetActiveLease(_ context.Context, jobID types.HexID, now types.UnixMillis) (types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.LeaseID == "" {
		return types.Lease{}, ErrLeaseNotFound
	}
	lease, ok := s.leases[job.LeaseID]
	if !ok || lease.ExpiresAt <= now {
		return types.Lease{}, ErrLeaseNotFound
	}
	return lease, nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, jobID, providerID types.HexID, digest string, now types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == types.JobCompleted {
		if job.Result == digest {
			return nil // idempotent ack
		}
		return errors.ErrProofInvalid
	}
	if job.Status != types.JobAssigned {
		return ErrNotAssigned
	}
	lease, ok := s.leases[job.LeaseID]
	if !ok {
		return ErrLeaseNotFound
	}
	if lease.ProviderID != providerID {
		return errors.LeaseLost(string(jobID), string(lease.ProviderID))
	}
	if lease.ExpiresAt < now {
		return errors.ErrDeadlineExceeded
	}
	job.Status = types.JobCompleted
	job.Result = digest
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// Events returns a snapshot of the appended audit trail, for tests and
// diagnostic RPC methods.
func (s *MemoryStore) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) Close() error { return nil }
