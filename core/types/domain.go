package types

// Package-level domain records shared across every AICF component. The
// storage layer is the sole owner of these records; every other component
// holds only IDs and short-lived derived state (quota counters, health
// scores) and resolves cross-references through storage queries rather than
// pointers.

// JobKind identifies the workload family a job belongs to.
type JobKind string

const (
	JobKindAI      JobKind = "AI"
	JobKindQuantum JobKind = "QUANTUM"
)

// JobTier is the requester-selected service tier, used as a ranking
// tiebreaker (gold outranks premium outranks standard).
type JobTier string

const (
	TierGold     JobTier = "gold"
	TierPremium  JobTier = "premium"
	TierStandard JobTier = "standard"
)

// TierScore returns the tiebreak weight for a tier; lower sorts first.
func (t JobTier) TierScore() int {
	switch t {
	case TierGold:
		return 0
	case TierPremium:
		return 1
	default:
		return 2
	}
}

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobAssigned   JobStatus = "ASSIGNED"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
	JobExpired    JobStatus = "EXPIRED"
	JobCanceled   JobStatus = "CANCELED"
	JobTombstoned JobStatus = "TOMBSTONED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobExpired, JobCanceled, JobTombstoned:
		return true
	default:
		return false
	}
}

// Job is a unit of off-chain compute work awaiting assignment.
type Job struct {
	JobID       HexID
	Kind        JobKind
	Requester   string
	Fee         uint64
	SizeBytes   uint64
	Tier        JobTier
	Spec        string
	TTLSeconds  int64
	CreatedAt   UnixMillis
	NotBefore   UnixMillis
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	Result      string

	LeaseID        HexID
	LeaseProvider  HexID
	LeaseExpiresAt UnixMillis
}

// DeathAt returns the absolute TTL deadline for the job.
func (j Job) DeathAt() UnixMillis {
	return j.CreatedAt.Add(j.TTLSeconds * 1000)
}

// Lease grants a provider the exclusive, time-bounded right to complete a
// job. At most one non-expired, non-cancelled lease exists per job.
type Lease struct {
	LeaseID    HexID
	JobID      HexID
	ProviderID HexID
	IssuedAt   UnixMillis
	ExpiresAt  UnixMillis
	Renewals   int
}

// Capability is a bit in a provider's capability bitset.
type Capability uint

const (
	CapabilityAI Capability = iota
	CapabilityQuantum
)

// ProviderStatus is the registry lifecycle state of a provider.
type ProviderStatus string

const (
	ProviderRegistered ProviderStatus = "REGISTERED"
	ProviderActive     ProviderStatus = "ACTIVE"
	ProviderPaused     ProviderStatus = "PAUSED"
	ProviderJailed     ProviderStatus = "JAILED"
	ProviderInactive   ProviderStatus = "INACTIVE"
	ProviderRetired    ProviderStatus = "RETIRED"
)

// PendingUnlock is a single delayed stake-unbonding entry.
type PendingUnlock struct {
	Amount        uint64
	ReleaseHeight Height
}

// Provider is a registered compute-service operator.
type Provider struct {
	ProviderID      HexID
	Capabilities    uint64 // bitset of Capability
	Endpoints       []string
	Region          string
	Status          ProviderStatus
	StakeTotal      uint64
	PendingUnlocks  []PendingUnlock
	JailUntilHeight Height
	LastHeartbeat   UnixMillis
	HealthScore     float64
}

// HasCapability reports whether the provider declares the given capability.
func (p Provider) HasCapability(c Capability) bool {
	return p.Capabilities&(1<<uint(c)) != 0
}

// WithCapability returns the bitset with c set.
func WithCapability(bits uint64, c Capability) uint64 {
	return bits | (1 << uint(c))
}

// EffectiveStake returns stake_total minus pending unlocks not yet matured
// at currentHeight.
func (p Provider) EffectiveStake(currentHeight Height) uint64 {
	locked := uint64(0)
	for _, u := range p.PendingUnlocks {
		if u.ReleaseHeight > currentHeight {
			locked += u.Amount
		}
	}
	if locked >= p.StakeTotal {
		return 0
	}
	return p.StakeTotal - locked
}

// ProofClaim is a normalized, pre-verified on-chain proof envelope.
type ProofClaim struct {
	Kind        JobKind
	TaskID      HexID
	Nullifier   HexID
	Height      Height
	ProviderID  HexID
	WorkUnits   uint64
	ProofDigest HexID
	JobID       HexID
}

// SplitRule describes how a settled reward is divided between the provider,
// the treasury, and the miner who sealed the settling block.
type SplitRule struct {
	ProviderBps uint64
	TreasuryBps uint64
	MinerBps    uint64
	ResidualTo  string // "provider" | "treasury" | "miner"
}

// Payout is the result of splitting a priced reward across participants.
type Payout struct {
	ProviderID      HexID
	AmountTotal     uint64
	Split           SplitRule
	AmountProvider  uint64
	AmountTreasury  uint64
	AmountMiner     uint64
	Claims          []HexID
	HeightSettled   Height
	Epoch           *uint64
}

// EpochAccounting tracks the Γ_fund budget for one fixed-length epoch.
type EpochAccounting struct {
	EpochIdx          uint64
	StartHeight       Height
	EndHeightExclusive Height
	BudgetTotal       uint64
	BudgetSpent       uint64
	PayoutsCount      int
}

// Remaining returns the unspent portion of the epoch budget.
func (e EpochAccounting) Remaining() uint64 {
	if e.BudgetSpent >= e.BudgetTotal {
		return 0
	}
	return e.BudgetTotal - e.BudgetSpent
}

// EscrowStatus is the lifecycle state of a treasury escrow hold.
type EscrowStatus string

const (
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowSlashed  EscrowStatus = "SLASHED"
	EscrowExpired  EscrowStatus = "EXPIRED"
)

// EscrowHold is a treasury-internal reservation of provider funds pending
// job resolution.
type EscrowHold struct {
	EscrowID      HexID
	ProviderID    HexID
	JobID         HexID
	Amount        uint64
	CreatedHeight Height
	Status        EscrowStatus
	UnlockHeight  Height
	Settlement    string
}

// ProviderAccount is the treasury ledger's per-provider balance sheet.
type ProviderAccount struct {
	ProviderID HexID
	Available  uint64
	Escrowed   uint64
	Staked     uint64
	Jailed     bool
	Escrows    map[HexID]*EscrowHold
	JournalSeq uint64
}

// OpenEscrowTotal sums the amount held across all open escrows, used to
// check the account's escrow invariant.
func (a *ProviderAccount) OpenEscrowTotal() uint64 {
	total := uint64(0)
	for _, e := range a.Escrows {
		if e.Status == EscrowHeld {
			total += e.Amount
		}
	}
	return total
}

// WithdrawalStatus is the lifecycle state of a delayed withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalExecuted  WithdrawalStatus = "EXECUTED"
	WithdrawalCancelled WithdrawalStatus = "CANCELLED"
)

// WithdrawalRequest is a queued, delay-gated withdrawal of available funds.
type WithdrawalRequest struct {
	ID               HexID
	Provider         HexID
	Amount           uint64
	RequestedHeight  Height
	EarliestExec     Height
	Status           WithdrawalStatus
}
