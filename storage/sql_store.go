package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gorm.io/gorm"

	"aicf/core/events"
	"aicf/core/types"
)

// jobRow is the GORM-mapped relational shape of a Job, matching the
// "jobs" table the rest of the system treats as canonical.
type jobRow struct {
	JobID          string `gorm:"primaryKey"`
	Kind           string
	Requester      string
	Fee            uint64
	SizeBytes      uint64
	Tier           string
	Spec           string `gorm:"column:spec_json"`
	Result         string `gorm:"column:result_json"`
	TTLSeconds     int64
	CreatedAt      int64
	NotBefore      int64
	Status         string
	Attempts       int
	MaxAttempts    int
	LastError      string `gorm:"column:error"`
	LeaseID        string
	LeaseProvider  string
	LeaseExpiresAt int64
}

func (jobRow) TableName() string { return "jobs" }

// eventRow is the audit-journal shape for persisted AicfEvents.
type eventRow struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement"`
	EventType string
	Payload   string
	CreatedAt time.Time
}

func (eventRow) TableName() string { return "aicf_events" }

// SQLStore is a relational Store implementation on top of GORM, intended
// for deployments that want postgres/sqlite durability and ad-hoc SQL
// reporting over the jobs (lease columns included) and audit tables rather
// than an embedded KV.
type SQLStore struct {
	mu sync.Mutex
	db *gorm.DB
}

// NewSQLStore opens db and migrates the jobs/audit schema.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&jobRow{}, &eventRow{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func toRow(j types.Job) jobRow {
	return jobRow{
		JobID:          string(j.JobID),
		Kind:           string(j.Kind),
		Requester:      j.Requester,
		Fee:            j.Fee,
		SizeBytes:      j.SizeBytes,
		Tier:           string(j.Tier),
		Spec:           j.Spec,
		Result:         j.Result,
		TTLSeconds:     j.TTLSeconds,
		CreatedAt:      int64(j.CreatedAt),
		NotBefore:      int64(j.NotBefore),
		Status:         string(j.Status),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		LastError:      j.LastError,
		LeaseID:        string(j.LeaseID),
		LeaseProvider:  string(j.LeaseProvider),
		LeaseExpiresAt: int64(j.LeaseExpiresAt),
	}
}

func fromRow(r jobRow) types.Job {
	return types.Job{
		JobID:          types.HexID(r.JobID),
		Kind:           types.JobKind(r.Kind),
		Requester:      r.Requester,
		Fee:            r.Fee,
		SizeBytes:      r.SizeBytes,
		Tier:           types.JobTier(r.Tier),
		Spec:           r.Spec,
		Result:         r.Result,
		TTLSeconds:     r.TTLSeconds,
		CreatedAt:      types.UnixMillis(r.CreatedAt),
		NotBefore:      types.UnixMillis(r.NotBefore),
		Status:         types.JobStatus(r.Status),
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		LastError:      r.LastError,
		LeaseID:        types.HexID(r.LeaseID),
		LeaseProvider:  types.HexID(r.LeaseProvider),
		LeaseExpiresAt: types.UnixMillis(r.LeaseExpiresAt),
	}
}

func (s *SQLStore) GetJob(_ context.Context, id types.HexID) (types.Job, error) {
	var row jobRow
	if err := s.db.First(&row, "job_id = ?", string(id)).Error; err != nil {
		return types.Job{}, ErrJobNotFound
	}
	return fromRow(row), nil
}

func (s *SQLStore) PutJob(_ context.Context, job types.Job) error {
	return s.db.Save(toRowPtr(job)).Error
}

func toRowPtr(j types.Job) *jobRow {
	r := toRow(j)
	return &r
}

func (s *SQLStore) ListReady(_ context.Context, now types.UnixMillis, filter ListFilter) ([]types.Job, error) {
	q := s.db.Model(&jobRow{}).Where("status = ? AND not_before <= ?", string(types.JobQueued), int64(now))
	if filter.HasKind {
		q = q.Where("kind = ?", string(filter.Kind))
	}
	q = q.Order("created_at asc")
	return queryJobs(q, filter)
}

func (s *SQLStore) ListJobs(_ context.Context, filter ListFilter) ([]types.Job, error) {
	q := s.db.Model(&jobRow{})
	if filter.HasKind {
		q = q.Where("kind = ?", string(filter.Kind))
	}
	if filter.HasStatus {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.ProviderID != "" {
		q = q.Where("lease_provider = ?", string(filter.ProviderID))
	}
	if filter.Requester != "" {
		q = q.Where("requester = ?", filter.Requester)
	}
	q = q.Order("created_at asc")
	return queryJobs(q, filter)
}

func queryJobs(q *gorm.DB, filter ListFilter) ([]types.Job, error) {
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []jobRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

func (s *SQLStore) Assign(ctx context.Context, jobID, providerID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return types.Lease{}, err
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
	return lease, s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) RenewLease(ctx context.Context, jobID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return types.Lease{}, err
	}
	if job.Status != types.JobAssigned {
		return types.Lease{}, ErrNotAssigned
	}
	base := job.LeaseExpiresAt
	if base < now {
		base = now
	}
	job.LeaseExpiresAt = base.Add(leaseSecs * 1000)
	if err := s.db.Save(toRowPtr(job)).Error; err != nil {
		return types.Lease{}, err
	}
	return types.Lease{LeaseID: job.LeaseID, JobID: jobID, ProviderID: job.LeaseProvider, ExpiresAt: job.LeaseExpiresAt}, nil
}

func (s *SQLStore) Complete(ctx context.Context, jobID types.HexID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = types.JobCompleted
	job.Result = result
	return s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) Fail(ctx context.Context, jobID types.HexID, errMsg string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.LastError = errMsg
	return s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) Requeue(ctx context.Context, jobID types.HexID, notBefore *types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = types.JobQueued
	job.LeaseID = ""
	job.LeaseProvider = ""
	job.LeaseExpiresAt = 0
	if notBefore != nil {
		job.NotBefore = *notBefore
	}
	return s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) Cancel(ctx context.Context, jobID types.HexID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = types.JobCanceled
	return s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) Tombstone(ctx context.Context, jobID types.HexID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = types.JobTombstoned
	return s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) Expire(ctx context.Context, now types.UnixMillis) (ExpireReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var report ExpireReport
	var rows []jobRow
	if err := s.db.Where("status IN ?", []string{string(types.JobQueued), string(types.JobAssigned)}).Find(&rows).Error; err != nil {
		return report, err
	}
	for _, r := range rows {
		job := fromRow(r)
		if job.DeathAt() <= now {
			job.Status = types.JobExpired
			job.LeaseID = ""
			job.LeaseProvider = ""
			job.LeaseExpiresAt = 0
			if err := s.db.Save(toRowPtr(job)).Error; err != nil {
				return report, err
			}
			report.TTLExpired++
			report.TTLExpiredJobIDs = append(report.TTLExpiredJobIDs, job.JobID)
			continue
		}
		if job.Status == types.JobAssigned && job.LeaseExpiresAt <= now {
			job.Status = types.JobQueued
			job.LeaseID = ""
			job.LeaseProvider = ""
			job.LeaseExpiresAt = 0
			if err := s.db.Save(toRowPtr(job)).Error; err != nil {
				return report, err
			}
			report.LeasesRequeued++
			report.RequeuedJobIDs = append(report.RequeuedJobIDs, job.JobID)
		}
	}
	return report, nil
}

func (s *SQLStore) ScheduleRetry(ctx context.Context, jobID types.HexID, availableAt types.UnixMillis, lastError string, attempts int, _ types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = types.JobQueued
	job.LeaseID = ""
	job.LeaseProvider = ""
	job.LeaseExpiresAt = 0
	job.NotBefore = availableAt
	job.LastError = lastError
	job.Attempts = attempts
	return s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) ReleaseLease(_ context.Context, _ types.HexID, _ types.UnixMillis) error {
	return nil
}

func (s *SQLStore) GetActiveLease(ctx context.Context, jobID types.HexID, now types.UnixMillis) (types.Lease, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil || job.LeaseID == "" || job.LeaseExpiresAt <= now {
		return types.Lease{}, ErrLeaseNotFound
	}
	return types.Lease{LeaseID: job.LeaseID, JobID: jobID, ProviderID: job.LeaseProvider, ExpiresAt: job.LeaseExpiresAt}, nil
}

func (s *SQLStore) MarkCompleted(ctx context.Context, jobID, providerID types.HexID, digest string, now types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == types.JobCompleted {
		if job.Result == digest {
			return nil
		}
		return ErrNotQueued
	}
	if job.Status != types.JobAssigned {
		return ErrNotAssigned
	}
	if job.LeaseProvider != providerID {
		return ErrNotHolder
	}
	if job.LeaseExpiresAt < now {
		return ErrLeaseNotFound
	}
	job.Status = types.JobCompleted
	job.Result = digest
	return s.db.Save(toRowPtr(job)).Error
}

func (s *SQLStore) AppendEvent(_ context.Context, evt events.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	row := eventRow{EventType: evt.EventType(), Payload: string(payload), CreatedAt: time.Now()}
	return s.db.Create(&row).Error
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
