// Package withdrawal implements the delayed withdrawal queue: requests
// debit the provider's available balance immediately and mature after a
// configurable block delay.
package withdrawal

import (
	"sort"
	"sync"

	aicferrors "aicf/core/errors"
	"aicf/core/types"
	"aicf/treasury"
)

// Config parameterizes the withdrawal queue's limits.
type Config struct {
	MinAmount           uint64
	CooldownBlocks      types.Height
	DelayBlocks         types.Height
	MaxPendingPerProvider int
	MaxPerBlockExecute  uint64 // 0 = unbounded
}

// Queue manages WithdrawalRequest lifecycle and debits/credits the
// treasury ledger accordingly.
type Queue struct {
	mu               sync.Mutex
	cfg              Config
	ledger           *treasury.Ledger
	requests         map[types.HexID]*types.WithdrawalRequest
	lastRequestBlock map[types.HexID]types.Height
	pendingCount     map[types.HexID]int
}

// New constructs an empty Queue.
func New(ledger *treasury.Ledger, cfg Config) *Queue {
	return &Queue{
		cfg: cfg, ledger: ledger,
		requests:         make(map[types.HexID]*types.WithdrawalRequest),
		lastRequestBlock: make(map[types.HexID]types.Height),
		pendingCount:     make(map[types.HexID]int),
	}
}

// ErrBelowMinimum is returned when a requested amount is under the
// configured floor.
var ErrBelowMinimum = aicferrors.ErrSchemaInvalid

// ErrCooldown is returned when a provider requests again before their
// cooldown has elapsed.
type ErrCooldown struct{ RetryAtHeight types.Height }

func (e *ErrCooldown) Error() string { return "withdrawal: cooldown not elapsed" }

// ErrTooManyPending is returned when a provider already has
// MaxPendingPerProvider requests outstanding.
var ErrTooManyPending = aicferrors.ErrSchemaInvalid

// Request validates and opens a new withdrawal, debiting the provider's
// available balance immediately (funds are locked in-queue, not yet paid).
func (q *Queue) Request(providerID types.HexID, amount uint64, height types.Height) (types.WithdrawalRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if amount < q.cfg.MinAmount {
		return types.WithdrawalRequest{}, ErrBelowMinimum
	}
	if last, ok := q.lastRequestBlock[providerID]; ok && height < last+q.cfg.CooldownBlocks {
		return types.WithdrawalRequest{}, &ErrCooldown{RetryAtHeight: last + q.cfg.CooldownBlocks}
	}
	if q.cfg.MaxPendingPerProvider > 0 && q.pendingCount[providerID] >= q.cfg.MaxPendingPerProvider {
		return types.WithdrawalRequest{}, ErrTooManyPending
	}

	if err := q.ledger.Debit(providerID, amount, height); err != nil {
		return types.WithdrawalRequest{}, err
	}

	id, err := types.NewRandomID(16)
	if err != nil {
		return types.WithdrawalRequest{}, err
	}
	req := &types.WithdrawalRequest{
		ID: id, Provider: providerID, Amount: amount,
		RequestedHeight: height, EarliestExec: height + q.cfg.DelayBlocks,
		Status: types.WithdrawalPending,
	}
	q.requests[id] = req
	q.lastRequestBlock[providerID] = height
	q.pendingCount[providerID]++
	return *req, nil
}

// Cancel credits the funds back and marks the request CANCELLED. Only the
// owning provider may cancel, and only while still PENDING.
func (q *Queue) Cancel(id, providerID types.HexID, height types.Height) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.requests[id]
	if !ok {
		return aicferrors.ErrEscrowNotFound
	}
	if req.Provider != providerID {
		return aicferrors.ErrRegistryDenied
	}
	if req.Status != types.WithdrawalPending {
		return aicferrors.ErrEscrowClosed
	}
	if err := q.ledger.Credit(req.Provider, req.Amount, height); err != nil {
		return err
	}
	req.Status = types.WithdrawalCancelled
	q.pendingCount[providerID]--
	return nil
}

// Execute marks a matured request EXECUTED. The external transfer itself
// is out of scope for AICF.
func (q *Queue) Execute(id types.HexID, height types.Height) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.requests[id]
	if !ok {
		return aicferrors.ErrEscrowNotFound
	}
	if req.Status != types.WithdrawalPending {
		return aicferrors.ErrEscrowClosed
	}
	if height < req.EarliestExec {
		return aicferrors.ErrDeadlineExceeded
	}
	req.Status = types.WithdrawalExecuted
	q.pendingCount[req.Provider]--
	return nil
}

// FinalizeDue iterates matured requests in (EarliestExec, ID) order,
// executing as many as fit within MaxPerBlockExecute; a request larger
// than the remaining budget is skipped for the next cycle rather than
// partially executed.
func (q *Queue) FinalizeDue(height types.Height) []types.HexID {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*types.WithdrawalRequest
	for _, r := range q.requests {
		if r.Status == types.WithdrawalPending && height >= r.EarliestExec {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].EarliestExec != due[j].EarliestExec {
			return due[i].EarliestExec < due[j].EarliestExec
		}
		return due[i].ID < due[j].ID
	})

	budget := q.cfg.MaxPerBlockExecute
	unbounded := budget == 0
	var executed []types.HexID
	for _, r := range due {
		if !unbounded {
			if r.Amount > budget {
				continue
			}
			budget -= r.Amount
		}
		r.Status = types.WithdrawalExecuted
		q.pendingCount[r.Provider]--
		executed = append(executed, r.ID)
	}
	return executed
}

// Get returns a snapshot of a withdrawal request.
func (q *Queue) Get(id types.HexID) (types.WithdrawalRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.requests[id]
	if !ok {
		return types.WithdrawalRequest{}, false
	}
	return *r, true
}
