package storage

import (
	"context"
	"encoding/json"
	"sync"

	"aicf/core/events"
	"aicf/core/types"
)

// LevelDBStore persists the same job/lease contract as MemoryStore but
// durably, backed by a LevelDB instance (storage.LevelDB). Rows are encoded
// as JSON under an "aicf/job/" prefix; the whole index is held in memory and
// mirrored to disk on every mutation, the same tradeoff storage.LevelDB's
// callers already make for small, low-churn tables.
type LevelDBStore struct {
	mu   sync.Mutex
	db   *LevelDB
	mem  *MemoryStore // in-memory mirror driving queries; db is the durable journal
}

const levelDBJobPrefix = "aicf/job/"
const levelDBEventPrefix = "aicf/event/"

// NewLevelDBStore opens (or creates) a LevelDB-backed store at path and
// replays any persisted rows into the in-memory mirror used for queries.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := NewLevelDB(path)
	if err != nil {
		return nil, err
	}
	s := &LevelDBStore{db: db, mem: NewMemoryStore()}
	if err := s.replay(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LevelDBStore) replay() error {
	return s.db.IteratePrefix([]byte(levelDBJobPrefix), func(_, value []byte) error {
		var job types.Job
		if err := json.Unmarshal(value, &job); err != nil {
			return err
		}
		return s.mem.PutJob(context.Background(), job)
	})
}

func (s *LevelDBStore) persistJob(job types.Job) error {
	buf, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(levelDBJobPrefix+string(job.JobID)), buf)
}

func (s *LevelDBStore) persistEvent(seq uint64, evt events.Event) error {
	buf, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	key := levelDBEventPrefix + evt.EventType() + "/" + types.HexID(itoa(seq)).String()
	return s.db.Put([]byte(key), buf)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func (s *LevelDBStore) GetJob(ctx context.Context, id types.HexID) (types.Job, error) {
	return s.mem.GetJob(ctx, id)
}

func (s *LevelDBStore) PutJob(ctx context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.PutJob(ctx, job); err != nil {
		return err
	}
	return s.persistJob(job)
}

func (s *LevelDBStore) ListReady(ctx context.Context, now types.UnixMillis, filter ListFilter) ([]types.Job, error) {
	return s.mem.ListReady(ctx, now, filter)
}

func (s *LevelDBStore) ListJobs(ctx context.Context, filter ListFilter) ([]types.Job, error) {
	return s.mem.ListJobs(ctx, filter)
}

func (s *LevelDBStore) Assign(ctx context.Context, jobID, providerID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, err := s.mem.Assign(ctx, jobID, providerID, leaseSecs, now)
	if err != nil {
		return lease, err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return lease, s.persistJob(job)
}

func (s *LevelDBStore) RenewLease(ctx context.Context, jobID types.HexID, leaseSecs int64, now types.UnixMillis) (types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, err := s.mem.RenewLease(ctx, jobID, leaseSecs, now)
	if err != nil {
		return lease, err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return lease, s.persistJob(job)
}

func (s *LevelDBStore) Complete(ctx context.Context, jobID types.HexID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Complete(ctx, jobID, result); err != nil {
		return err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return s.persistJob(job)
}

func (s *LevelDBStore) Fail(ctx context.Context, jobID types.HexID, errMsg string, retryable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Fail(ctx, jobID, errMsg, retryable); err != nil {
		return err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return s.persistJob(job)
}

func (s *LevelDBStore) Requeue(ctx context.Context, jobID types.HexID, notBefore *types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Requeue(ctx, jobID, notBefore); err != nil {
		return err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return s.persistJob(job)
}

func (s *LevelDBStore) Cancel(ctx context.Context, jobID types.HexID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Cancel(ctx, jobID); err != nil {
		return err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return s.persistJob(job)
}

func (s *LevelDBStore) Tombstone(ctx context.Context, jobID types.HexID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Tombstone(ctx, jobID); err != nil {
		return err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return s.persistJob(job)
}

func (s *LevelDBStore) Expire(ctx context.Context, now types.UnixMillis) (ExpireReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, err := s.mem.Expire(ctx, now)
	if err != nil {
		return report, err
	}
	jobs, _ := s.mem.ListJobs(ctx, ListFilter{})
	for _, job := range jobs {
		if err := s.persistJob(job); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *LevelDBStore) ScheduleRetry(ctx context.Context, jobID types.HexID, availableAt types.UnixMillis, lastError string, attempts int, now types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.ScheduleRetry(ctx, jobID, availableAt, lastError, attempts, now); err != nil {
		return err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return s.persistJob(job)
}

func (s *LevelDBStore) ReleaseLease(ctx context.Context, leaseID types.HexID, now types.UnixMillis) error {
	return s.mem.ReleaseLease(ctx, leaseID, now)
}

func (s *LevelDBStore) GetActiveLease(ctx context.Context, jobID types.HexID, now types.UnixMillis) (types.Lease, error) {
	return s.mem.GetActiveLease(ctx, jobID, now)
}

func (s *LevelDBStore) MarkCompleted(ctx context.Context, jobID, providerID types.HexID, digest string, now types.UnixMillis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.MarkCompleted(ctx, jobID, providerID, digest, now); err != nil {
		return err
	}
	job, _ := s.mem.GetJob(ctx, jobID)
	return s.persistJob(job)
}

func (s *LevelDBStore) AppendEvent(ctx context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.AppendEvent(ctx, evt); err != nil {
		return err
	}
	seq := uint64(len(s.mem.Events()))
	return s.persistEvent(seq, evt)
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
