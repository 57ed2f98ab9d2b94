// Package treasury implements the provider balance ledger: atomic integer
// accounting with a sequenced audit journal.
package treasury

import (
	"sync"

	aicferrors "aicf/core/errors"
	"aicf/core/types"
)

// Op identifies a journaled ledger operation.
type Op string

const (
	OpCredit        Op = "credit"
	OpDebit         Op = "debit"
	OpHoldEscrow    Op = "hold_escrow"
	OpReleaseEscrow Op = "release_escrow"
	OpSettleJob     Op = "settle_job"
	OpStakeLock     Op = "stake_lock"
	OpStakeUnlock   Op = "stake_unlock"
	OpSlash         Op = "slash"
)

// JournalEntry is one immutable record of a ledger mutation.
type JournalEntry struct {
	Seq        uint64
	ProviderID types.HexID
	Op         Op
	Amount     uint64
	Height     types.Height
	Available  uint64
	Escrowed   uint64
	Staked     uint64
}

// ErrEscrowIDInUse is returned by HoldEscrow when the id already names an
// open escrow.
var ErrEscrowIDInUse = aicferrors.ErrEscrowAlreadyOpen

// Ledger is the mutex-guarded treasury accounting engine.
type Ledger struct {
	mu       sync.Mutex
	accounts map[types.HexID]*types.ProviderAccount
	journal  []JournalEntry
}

// New constructs an empty Ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[types.HexID]*types.ProviderAccount)}
}

func (l *Ledger) account(id types.HexID) *types.ProviderAccount {
	a, ok := l.accounts[id]
	if !ok {
		a = &types.ProviderAccount{ProviderID: id, Escrows: make(map[types.HexID]*types.EscrowHold)}
		l.accounts[id] = a
	}
	return a
}

func (l *Ledger) record(a *types.ProviderAccount, op Op, amount uint64, height types.Height) {
	a.JournalSeq++
	l.journal = append(l.journal, JournalEntry{
		Seq: a.JournalSeq, ProviderID: a.ProviderID, Op: op, Amount: amount, Height: height,
		Available: a.Available, Escrowed: a.Escrowed, Staked: a.Staked,
	})
}

func (l *Ledger) checkInvariants(a *types.ProviderAccount) error {
	if a.OpenEscrowTotal() != a.Escrowed {
		return aicferrors.ErrEscrowNotFound
	}
	return nil
}

// Account returns a snapshot copy of a provider's balance sheet.
func (l *Ledger) Account(id types.HexID) types.ProviderAccount {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(id)
	cp := *a
	cp.Escrows = make(map[types.HexID]*types.EscrowHold, len(a.Escrows))
	for k, v := range a.Escrows {
		escrowCopy := *v
		cp.Escrows[k] = &escrowCopy
	}
	return cp
}

// Credit increases available balance.
func (l *Ledger) Credit(id types.HexID, amount uint64, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(id)
	a.Available += amount
	l.record(a, OpCredit, amount, height)
	return nil
}

// Debit decreases available balance; requires available >= amount.
func (l *Ledger) Debit(id types.HexID, amount uint64, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(id)
	if a.Available < amount {
		return aicferrors.InsufficientFunds(amount, a.Available)
	}
	a.Available -= amount
	l.record(a, OpDebit, amount, height)
	return nil
}

// HoldEscrow moves amount from available to escrowed and opens an
// EscrowHold under escrowID. Returns ErrEscrowIDInUse if escrowID already
// names an open escrow for this provider.
func (l *Ledger) HoldEscrow(id, jobID, escrowID types.HexID, amount uint64, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(id)
	if existing, ok := a.Escrows[escrowID]; ok && existing.Status == types.EscrowHeld {
		return ErrEscrowIDInUse
	}
	if a.Available < amount {
		return aicferrors.InsufficientFunds(amount, a.Available)
	}
	a.Available -= amount
	a.Escrowed += amount
	a.Escrows[escrowID] = &types.EscrowHold{
		EscrowID: escrowID, ProviderID: id, JobID: jobID, Amount: amount,
		CreatedHeight: height, Status: types.EscrowHeld,
	}
	l.record(a, OpHoldEscrow, amount, height)
	return l.checkInvariants(a)
}

func (l *Ledger) closeEscrow(id, escrowID types.HexID, toAvailable bool, op Op, status types.EscrowStatus, height types.Height) error {
	a := l.account(id)
	e, ok := a.Escrows[escrowID]
	if !ok {
		return aicferrors.ErrEscrowNotFound
	}
	if e.Status != types.EscrowHeld {
		return aicferrors.ErrEscrowClosed
	}
	a.Escrowed -= e.Amount
	if toAvailable {
		a.Available += e.Amount
	}
	e.Status = status
	l.record(a, op, e.Amount, height)
	return l.checkInvariants(a)
}

// ReleaseEscrow closes an escrow; if toAvailable, the held amount returns
// to available, otherwise it leaves the system (e.g. externally refunded).
func (l *Ledger) ReleaseEscrow(id, escrowID types.HexID, toAvailable bool, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	status := types.EscrowReleased
	if !toAvailable {
		status = types.EscrowRefunded
	}
	return l.closeEscrow(id, escrowID, toAvailable, OpReleaseEscrow, status, height)
}

// SettleJobToProvider is identical to ReleaseEscrow(toAvailable=true) but
// journaled as settle_job for audit clarity.
func (l *Ledger) SettleJobToProvider(id, escrowID types.HexID, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeEscrow(id, escrowID, true, OpSettleJob, types.EscrowReleased, height)
}

// StakeLock moves amount from available to staked.
func (l *Ledger) StakeLock(id types.HexID, amount uint64, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(id)
	if a.Available < amount {
		return aicferrors.InsufficientFunds(amount, a.Available)
	}
	a.Available -= amount
	a.Staked += amount
	l.record(a, OpStakeLock, amount, height)
	return nil
}

// StakeUnlock moves amount from staked back to available.
func (l *Ledger) StakeUnlock(id types.HexID, amount uint64, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(id)
	if a.Staked < amount {
		return aicferrors.InsufficientStake(amount, a.Staked)
	}
	a.Staked -= amount
	a.Available += amount
	l.record(a, OpStakeUnlock, amount, height)
	return nil
}

// Slash deducts amount, preferring staked and spilling over to available;
// raises insufficient_stake if neither suffices.
func (l *Ledger) Slash(id types.HexID, amount uint64, height types.Height) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.account(id)
	fromStaked := amount
	if fromStaked > a.Staked {
		fromStaked = a.Staked
	}
	remainder := amount - fromStaked
	if remainder > a.Available {
		return aicferrors.InsufficientStake(amount, a.Staked+a.Available)
	}
	a.Staked -= fromStaked
	a.Available -= remainder
	l.record(a, OpSlash, amount, height)
	return nil
}

// Journal returns a snapshot of the full audit trail.
func (l *Ledger) Journal() []JournalEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]JournalEntry, len(l.journal))
	copy(out, l.journal)
	return out
}
