// Package registry implements provider registration, capability gating,
// staking with delayed unlocks, and the jail/allowlist checks consumed by
// the assignment and completion paths: a narrow storage contract plus a
// thin domain wrapper, rather than an ORM model.
package registry

import (
	"sort"
	"sync"

	aicferrors "aicf/core/errors"
	"aicf/core/types"
	"aicf/treasury"
)

// ProviderStore is the narrow persistence contract for provider rows: a
// plain Get/Put shape rather than the richer job Store contract, since
// providers are not part of the job/lease state machine.
type ProviderStore interface {
	Get(id types.HexID) (types.Provider, bool)
	Put(p types.Provider)
	List() []types.Provider
}

// MemoryProviderStore is the default in-process ProviderStore.
type MemoryProviderStore struct {
	mu   sync.RWMutex
	data map[types.HexID]types.Provider
}

// NewMemoryProviderStore constructs an empty store.
func NewMemoryProviderStore() *MemoryProviderStore {
	return &MemoryProviderStore{data: make(map[types.HexID]types.Provider)}
}

func (s *MemoryProviderStore) Get(id types.HexID) (types.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[id]
	return p, ok
}

func (s *MemoryProviderStore) Put(p types.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[p.ProviderID] = p
}

func (s *MemoryProviderStore) List() []types.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Provider, 0, len(s.data))
	for _, p := range s.data {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// Allowlist gates which provider identities may register at all,
// independent of the on-chain attestation bit.
type Allowlist interface {
	Allowed(providerID types.HexID) bool
}

// OpenAllowlist permits every provider; used in dev/test deployments.
type OpenAllowlist struct{}

// Allowed implements Allowlist.
func (OpenAllowlist) Allowed(types.HexID) bool { return true }

// SetAllowlist is a static allowlist of approved provider identities.
type SetAllowlist struct {
	allowed map[types.HexID]struct{}
}

// NewSetAllowlist builds an allowlist from the given ids.
func NewSetAllowlist(ids ...types.HexID) *SetAllowlist {
	set := make(map[types.HexID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &SetAllowlist{allowed: set}
}

// Allowed implements Allowlist.
func (s *SetAllowlist) Allowed(providerID types.HexID) bool {
	_, ok := s.allowed[providerID]
	return ok
}

// StakeMinimums holds the per-capability minimum effective stake.
type StakeMinimums struct {
	AI      uint64
	Quantum uint64
}

func (m StakeMinimums) forCapability(c types.Capability) uint64 {
	if c == types.CapabilityQuantum {
		return m.Quantum
	}
	return m.AI
}

// Config parameterizes the registry's staking policy.
type Config struct {
	UnlockDelayBlocks uint64
	Minimums          StakeMinimums
}

// Registry implements provider registration, capability/stake gating, and
// the staking lifecycle.
type Registry struct {
	mu        sync.Mutex
	store     ProviderStore
	allowlist Allowlist
	ledger    *treasury.Ledger
	cfg       Config

	// quantumGateFailed tracks providers whose most recent QUANTUM
	// ensure_minimum check failed; a capability upgrade stays denied until
	// a fresh check for that provider succeeds.
	quantumGateFailed map[types.HexID]bool
}

// New constructs a Registry. ledger may be nil (tests that never slash or
// settle can skip treasury wiring); when non-nil, every stake contribution
// accepted through RegisterProvider/Stake is mirrored into the ledger as a
// Credit+StakeLock pair so a provider's treasury account (Staked/Available)
// never diverges from the registry's StakeTotal that the slash engine reads.
func New(store ProviderStore, allowlist Allowlist, ledger *treasury.Ledger, cfg Config) *Registry {
	if allowlist == nil {
		allowlist = OpenAllowlist{}
	}
	return &Registry{
		store:             store,
		allowlist:         allowlist,
		ledger:            ledger,
		cfg:               cfg,
		quantumGateFailed: make(map[types.HexID]bool),
	}
}

// mirrorStake credits the ledger with freshly contributed stake capital and
// immediately locks it, keeping ProviderAccount.Staked in step with
// Provider.StakeTotal. Height is not yet tracked by the registry's callers,
// so the mirror journals at height 0, matching the chain-height stubs used
// elsewhere in this tree until a real height source is wired in.
func (r *Registry) mirrorStake(id types.HexID, amount uint64) error {
	if r.ledger == nil || amount == 0 {
		return nil
	}
	if err := r.ledger.Credit(id, amount, 0); err != nil {
		return err
	}
	return r.ledger.StakeLock(id, amount, 0)
}

// RegisterProvider admits a new provider. attestationValid is the
// pre-verified on-chain attestation bit (AICF does not itself verify
// cryptographic attestations).
func (r *Registry) RegisterProvider(id types.HexID, caps uint64, endpoints []string, attestationValid bool, stake uint64, region string) (types.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.allowlist.Allowed(id) {
		return types.Provider{}, aicferrors.ErrRegistryDenied
	}
	if !attestationValid {
		return types.Provider{}, aicferrors.ErrAttestationInvalid
	}
	p := types.Provider{
		ProviderID:   id,
		Capabilities: caps,
		Endpoints:    endpoints,
		Region:       region,
		Status:       types.ProviderActive,
		StakeTotal:   stake,
		HealthScore:  1.0,
	}
	r.store.Put(p)
	if err := r.mirrorStake(id, stake); err != nil {
		return types.Provider{}, err
	}
	return p, nil
}

// Get returns the provider row, or ErrProviderNotFound.
func (r *Registry) Get(id types.HexID) (types.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return types.Provider{}, aicferrors.ErrProviderNotFound
	}
	return p, nil
}

// List returns every registered provider, ordered by id.
func (r *Registry) List() []types.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.List()
}

// Stake adds to a provider's stake_total.
func (r *Registry) Stake(id types.HexID, amount uint64) (types.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return types.Provider{}, aicferrors.ErrProviderNotFound
	}
	p.StakeTotal += amount
	r.store.Put(p)
	if err := r.mirrorStake(id, amount); err != nil {
		return types.Provider{}, err
	}
	return p, nil
}

// RequestUnstake appends a pending unlock maturing at currentHeight +
// unlock_delay_blocks, rejecting if amount exceeds stake_total.
func (r *Registry) RequestUnstake(id types.HexID, amount uint64, currentHeight types.Height) (types.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return types.Provider{}, aicferrors.ErrProviderNotFound
	}
	if amount > p.StakeTotal {
		return types.Provider{}, aicferrors.InsufficientStake(amount, p.StakeTotal)
	}
	p.PendingUnlocks = append(p.PendingUnlocks, types.PendingUnlock{
		Amount:        amount,
		ReleaseHeight: currentHeight + types.Height(r.cfg.UnlockDelayBlocks),
	})
	r.store.Put(p)
	return p, nil
}

// ProcessUnlocks matures every pending unlock whose release height has
// passed, deducting the matured amount from stake_total.
func (r *Registry) ProcessUnlocks(id types.HexID, currentHeight types.Height) (types.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return types.Provider{}, aicferrors.ErrProviderNotFound
	}
	var remaining []types.PendingUnlock
	for _, u := range p.PendingUnlocks {
		if u.ReleaseHeight <= currentHeight {
			if u.Amount >= p.StakeTotal {
				p.StakeTotal = 0
			} else {
				p.StakeTotal -= u.Amount
			}
			continue
		}
		remaining = append(remaining, u)
	}
	p.PendingUnlocks = remaining
	r.store.Put(p)
	return p, nil
}

// EnsureMinimum checks the provider's effective stake against the
// capability-specific minimum, recording QUANTUM gate failures so
// subsequent capability upgrades stay denied until a fresh check passes.
func (r *Registry) EnsureMinimum(id types.HexID, capability types.Capability, currentHeight types.Height) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return aicferrors.ErrProviderNotFound
	}
	required := r.cfg.Minimums.forCapability(capability)
	effective := p.EffectiveStake(currentHeight)
	if effective < required {
		if capability == types.CapabilityQuantum {
			r.quantumGateFailed[id] = true
		}
		return aicferrors.InsufficientStake(required, effective)
	}
	if capability == types.CapabilityQuantum {
		delete(r.quantumGateFailed, id)
	}
	return nil
}

// GrantCapability adds a capability bit, enforcing the QUANTUM upgrade
// guard: any outstanding gate failure for this provider blocks the grant
// until EnsureMinimum is re-run and succeeds.
func (r *Registry) GrantCapability(id types.HexID, capability types.Capability, currentHeight types.Height) error {
	if capability == types.CapabilityQuantum {
		r.mu.Lock()
		failed := r.quantumGateFailed[id]
		r.mu.Unlock()
		if failed {
			return aicferrors.InsufficientStake(r.cfg.Minimums.Quantum, 0)
		}
	}
	if err := r.EnsureMinimum(id, capability, currentHeight); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return aicferrors.ErrProviderNotFound
	}
	p.Capabilities = types.WithCapability(p.Capabilities, capability)
	r.store.Put(p)
	return nil
}

// IsAllowed reports whether a provider may currently receive work: it must
// exist, not be jailed, and be ACTIVE.
func (r *Registry) IsAllowed(id types.HexID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return false
	}
	return p.Status == types.ProviderActive
}

// IsJailed reports whether a provider is currently jailed.
func (r *Registry) IsJailed(id types.HexID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	return ok && p.Status == types.ProviderJailed
}

// Jail transitions a provider to JAILED until untilHeight.
func (r *Registry) Jail(id types.HexID, untilHeight types.Height) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return aicferrors.ErrProviderNotFound
	}
	p.Status = types.ProviderJailed
	p.JailUntilHeight = untilHeight
	r.store.Put(p)
	return nil
}

// Unjail clears a provider's jail status back to ACTIVE.
func (r *Registry) Unjail(id types.HexID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return aicferrors.ErrProviderNotFound
	}
	p.Status = types.ProviderActive
	p.JailUntilHeight = 0
	r.store.Put(p)
	return nil
}

// SetStatus forces a provider's status (e.g. operator-initiated PAUSED).
func (r *Registry) SetStatus(id types.HexID, status types.ProviderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return aicferrors.ErrProviderNotFound
	}
	p.Status = status
	r.store.Put(p)
	return nil
}

// Slash reduces a provider's stake_total by amount (floored at zero),
// returning the new total. Used by the slash engine; the
// treasury-side bookkeeping (staked vs available) lives in the treasury
// ledger, not here.
func (r *Registry) Slash(id types.HexID, amount uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return 0, aicferrors.ErrProviderNotFound
	}
	if amount >= p.StakeTotal {
		p.StakeTotal = 0
	} else {
		p.StakeTotal -= amount
	}
	r.store.Put(p)
	return p.StakeTotal, nil
}

// UpdateHeartbeat mirrors the heartbeat monitor's derived health score and
// last-seen timestamp back onto the provider row for RPC visibility.
func (r *Registry) UpdateHeartbeat(id types.HexID, seenAt types.UnixMillis, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.store.Get(id)
	if !ok {
		return aicferrors.ErrProviderNotFound
	}
	p.LastHeartbeat = seenAt
	p.HealthScore = score
	r.store.Put(p)
	return nil
}
