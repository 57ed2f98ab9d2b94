// Package quota implements the per-provider concurrent and per-epoch unit
// budget tracker consulted by every assignment pass.
package quota

import (
	"errors"
	"sync"

	"aicf/core/types"
)

// ErrOverCapacity is returned by Reserve when the requested units would
// exceed the epoch cap or the provider is already at max concurrency.
var ErrOverCapacity = errors.New("quota: over capacity")

// ProviderLimits is the per-provider static configuration.
type ProviderLimits struct {
	AIUnitsPerEpoch      uint64
	QuantumUnitsPerEpoch uint64
	MaxConcurrent        int
}

func (l ProviderLimits) capFor(kind types.JobKind) uint64 {
	if kind == types.JobKindQuantum {
		return l.QuantumUnitsPerEpoch
	}
	return l.AIUnitsPerEpoch
}

// Usage is the live per-provider, per-epoch counter state.
type Usage struct {
	Used       uint64
	Reserved   uint64
	Concurrent int
}

// Reservation is a handle returned by Reserve, consumed by exactly one of
// Commit or Release.
type Reservation struct {
	RID        types.HexID
	ProviderID types.HexID
	Kind       types.JobKind
	Epoch      uint64
	Units      uint64
}

type usageKey struct {
	provider types.HexID
	kind     types.JobKind
	epoch    uint64
}

// Tracker enforces per-provider concurrent and per-epoch unit budgets.
type Tracker struct {
	mu     sync.Mutex
	limits map[types.HexID]ProviderLimits
	usage  map[usageKey]*Usage
	byJob  map[types.HexID]Reservation
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{
		limits: make(map[types.HexID]ProviderLimits),
		usage:  make(map[usageKey]*Usage),
		byJob:  make(map[types.HexID]Reservation),
	}
}

// SetLimits installs or replaces a provider's static limits.
func (t *Tracker) SetLimits(providerID types.HexID, limits ProviderLimits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[providerID] = limits
}

// Reserve checks used+reserved+units <= cap and concurrent < max_concurrent,
// then books the reservation. jobID keys the reservation for the later
// CommitJob/ReleaseJob call the assignment pass and completion receiver make
// once the job's outcome is known; a job holds at most one live reservation.
// Returns ErrOverCapacity if either check fails.
func (t *Tracker) Reserve(providerID types.HexID, kind types.JobKind, epoch uint64, units uint64, jobID types.HexID) (Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	limits, ok := t.limits[providerID]
	if !ok {
		limits = ProviderLimits{MaxConcurrent: 1, AIUnitsPerEpoch: ^uint64(0), QuantumUnitsPerEpoch: ^uint64(0)}
	}
	key := usageKey{providerID, kind, epoch}
	u, ok := t.usage[key]
	if !ok {
		u = &Usage{}
		t.usage[key] = u
	}
	if u.Used+u.Reserved+units > limits.capFor(kind) {
		return Reservation{}, ErrOverCapacity
	}
	if u.Concurrent >= limits.MaxConcurrent {
		return Reservation{}, ErrOverCapacity
	}
	rid, err := types.NewRandomID(8)
	if err != nil {
		return Reservation{}, err
	}
	u.Reserved += units
	u.Concurrent++
	r := Reservation{RID: rid, ProviderID: providerID, Kind: kind, Epoch: epoch, Units: units}
	t.byJob[jobID] = r
	return r, nil
}

// Release cancels a reservation without consuming quota (cancel path):
// decrements concurrent and reserved.
func (t *Tracker) Release(r Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(r)
}

func (t *Tracker) releaseLocked(r Reservation) {
	key := usageKey{r.ProviderID, r.Kind, r.Epoch}
	u, ok := t.usage[key]
	if !ok {
		return
	}
	if u.Reserved >= r.Units {
		u.Reserved -= r.Units
	} else {
		u.Reserved = 0
	}
	if u.Concurrent > 0 {
		u.Concurrent--
	}
}

// Commit moves reserved units to used and decrements concurrent (success
// path).
func (t *Tracker) Commit(r Reservation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitLocked(r)
}

func (t *Tracker) commitLocked(r Reservation) {
	key := usageKey{r.ProviderID, r.Kind, r.Epoch}
	u, ok := t.usage[key]
	if !ok {
		return
	}
	if u.Reserved >= r.Units {
		u.Reserved -= r.Units
	} else {
		u.Reserved = 0
	}
	u.Used += r.Units
	if u.Concurrent > 0 {
		u.Concurrent--
	}
}

// ReleaseJob releases the live reservation booked for jobID, if any, and
// reports whether one was found. Used on cancel and on permanent job
// failure, where no quota should be consumed.
func (t *Tracker) ReleaseJob(jobID types.HexID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byJob[jobID]
	if !ok {
		return false
	}
	delete(t.byJob, jobID)
	t.releaseLocked(r)
	return true
}

// CommitJob commits the live reservation booked for jobID, if any, and
// reports whether one was found. Used when a completion submission is
// accepted.
func (t *Tracker) CommitJob(jobID types.HexID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byJob[jobID]
	if !ok {
		return false
	}
	delete(t.byJob, jobID)
	t.commitLocked(r)
	return true
}

// AdjustCommitted applies a post-hoc correction to the used counter
// (positive or negative delta), floored at zero.
func (t *Tracker) AdjustCommitted(providerID types.HexID, kind types.JobKind, epoch uint64, delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := usageKey{providerID, kind, epoch}
	u, ok := t.usage[key]
	if !ok {
		u = &Usage{}
		t.usage[key] = u
	}
	if delta < 0 {
		d := uint64(-delta)
		if d >= u.Used {
			u.Used = 0
		} else {
			u.Used -= d
		}
	} else {
		u.Used += uint64(delta)
	}
}

// Snapshot returns a copy of the current usage for a provider/kind/epoch.
func (t *Tracker) Snapshot(providerID types.HexID, kind types.JobKind, epoch uint64) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := usageKey{providerID, kind, epoch}
	if u, ok := t.usage[key]; ok {
		return *u
	}
	return Usage{}
}

// ConcurrentCount returns how many active leases a provider currently holds
// across all kinds/epochs tracked. The assignment pass does not call it: its
// "at most one new lease per provider per pass" rule uses only the pass's
// own in-memory set.
func (t *Tracker) ConcurrentCount(providerID types.HexID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for k, u := range t.usage {
		if k.provider == providerID {
			total += u.Concurrent
		}
	}
	return total
}
