package aicf

import (
	"context"
	stderrors "errors"

	"aicf/completion"
	"aicf/core/errors"
	"aicf/core/types"
	"aicf/pipeline"
	"aicf/proofbridge"
	"aicf/registry"
	"aicf/storage"
	"aicf/treasury"
	"aicf/withdrawal"
)

// Service implements the AICF JSON-RPC methods against the domain
// components, as explicit compile-time-wired methods rather than a
// reflective method table. Alongside the read/claim surface it exposes
// submitProof, the write path that drives the proof→payout pipeline —
// discovery methods alone give a provider no way to ever get paid.
type Service struct {
	store       storage.Store
	registry    *registry.Registry
	ledger      *treasury.Ledger
	withdrawals *withdrawal.Queue
	pipeline    *pipeline.Pipeline
	height      func() types.Height
	now         func() types.UnixMillis
}

// NewService constructs a Service. heightFn supplies the current chain
// height claimPayout needs to open a withdrawal.Queue request; nowFn
// supplies the wall-clock timestamp submitProof stamps onto completions.
func NewService(store storage.Store, reg *registry.Registry, ledger *treasury.Ledger, withdrawals *withdrawal.Queue, pl *pipeline.Pipeline, heightFn func() types.Height, nowFn func() types.UnixMillis) *Service {
	return &Service{store: store, registry: reg, ledger: ledger, withdrawals: withdrawals, pipeline: pl, height: heightFn, now: nowFn}
}

// ListProvidersParams / Result.
type ListProvidersParams struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type ListProvidersResult struct {
	Items      []ProviderView `json:"items"`
	NextOffset int            `json:"nextOffset"`
}

func (s *Service) ListProviders(_ context.Context, p ListProvidersParams) (ListProvidersResult, error) {
	all := s.registry.List()
	offset, limit := p.Offset, p.Limit
	if offset < 0 {
		offset = 0
	}
	if offset > len(all) {
		offset = len(all)
	}
	page := all[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}
	items := make([]ProviderView, 0, len(page))
	for _, pr := range page {
		items = append(items, toProviderView(pr))
	}
	return ListProvidersResult{Items: items, NextOffset: offset + len(page)}, nil
}

type GetProviderParams struct {
	ProviderID string `json:"providerId"`
}

func (s *Service) GetProvider(_ context.Context, p GetProviderParams) (ProviderView, error) {
	if p.ProviderID == "" {
		return ProviderView{}, errInvalidParams("providerId is required")
	}
	pr, err := s.registry.Get(types.HexID(p.ProviderID))
	if err != nil {
		return ProviderView{}, errNotFound("provider not found")
	}
	return toProviderView(pr), nil
}

type ListJobsParams struct {
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	ProviderID string `json:"providerId"`
	Requester  string `json:"requester"`
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
}

type ListJobsResult struct {
	Items      []JobView `json:"items"`
	NextOffset int       `json:"nextOffset"`
}

func (s *Service) ListJobs(ctx context.Context, p ListJobsParams) (ListJobsResult, error) {
	filter := storage.ListFilter{Offset: p.Offset, Limit: p.Limit, ProviderID: types.HexID(p.ProviderID), Requester: p.Requester}
	if p.Kind != "" {
		filter.Kind = types.JobKind(p.Kind)
		filter.HasKind = true
	}
	if p.Status != "" {
		filter.Status = types.JobStatus(p.Status)
		filter.HasStatus = true
	}
	jobs, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return ListJobsResult{}, errInternal(err.Error())
	}
	items := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobView(j))
	}
	return ListJobsResult{Items: items, NextOffset: p.Offset + len(items)}, nil
}

type GetJobParams struct {
	JobID string `json:"jobId"`
}

func (s *Service) GetJob(ctx context.Context, p GetJobParams) (JobView, error) {
	if p.JobID == "" {
		return JobView{}, errInvalidParams("jobId is required")
	}
	job, err := s.store.GetJob(ctx, types.HexID(p.JobID))
	if err != nil {
		return JobView{}, errNotFound("job not found")
	}
	return toJobView(job), nil
}

type GetBalanceParams struct {
	ProviderID string `json:"providerId"`
}

func (s *Service) GetBalance(_ context.Context, p GetBalanceParams) (BalanceView, error) {
	if p.ProviderID == "" {
		return BalanceView{}, errInvalidParams("providerId is required")
	}
	acct := s.ledger.Account(types.HexID(p.ProviderID))
	return BalanceView{
		ProviderID: p.ProviderID,
		Available:  acct.Available,
		Pending:    acct.Staked,
		Escrow:     acct.Escrowed,
	}, nil
}

type ClaimPayoutParams struct {
	ProviderID string  `json:"providerId"`
	UptoEpoch  *uint64 `json:"uptoEpoch"`
}

// ClaimPayout opens a delayed withdrawal request for the provider's full
// available balance: funds are debited immediately and held in the
// withdrawal queue until EarliestExec matures. AICF does not itself
// broadcast the on-chain transfer, so TxHash is left empty; WithdrawalID
// is the handle operators poll/execute against.
func (s *Service) ClaimPayout(_ context.Context, p ClaimPayoutParams) (ClaimPayoutResult, error) {
	if p.ProviderID == "" {
		return ClaimPayoutResult{}, errInvalidParams("providerId is required")
	}
	providerID := types.HexID(p.ProviderID)
	acct := s.ledger.Account(providerID)
	if acct.Available == 0 {
		return ClaimPayoutResult{ProviderID: p.ProviderID, TotalPaid: 0}, nil
	}
	req, err := s.withdrawals.Request(providerID, acct.Available, s.height())
	if err != nil {
		return ClaimPayoutResult{}, errInternal(err.Error())
	}
	return ClaimPayoutResult{
		ProviderID:          p.ProviderID,
		TotalPaid:           req.Amount,
		WithdrawalID:        string(req.ID),
		EarliestExecHeight:  uint64(req.EarliestExec),
	}, nil
}

// ProofRefView is one proof reference on the submitProof wire shape.
type ProofRefView struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// EnvelopeView is the pre-verified proof envelope as submitted over RPC.
// Exactly one family of workload fields (token counts vs. circuit
// dimensions) is expected per kind; units overrides derivation when set.
type EnvelopeView struct {
	Type         string  `json:"type"`
	TaskID       string  `json:"taskId"`
	Nullifier    string  `json:"nullifier"`
	Height       uint64  `json:"height"`
	Units        uint64  `json:"units,omitempty"`
	InputTokens  uint64  `json:"inputTokens,omitempty"`
	OutputTokens uint64  `json:"outputTokens,omitempty"`
	Depth        uint64  `json:"depth,omitempty"`
	Width        uint64  `json:"width,omitempty"`
	Shots        uint64  `json:"shots,omitempty"`
	TrapsPassed  uint64  `json:"trapsPassed,omitempty"`
	TrapsTotal   uint64  `json:"trapsTotal,omitempty"`
	QoS          float64 `json:"qos,omitempty"`
	LatencyMs    float64 `json:"latencyMs,omitempty"`
}

// SubmitProofParams carries a provider's completion report plus the proof
// envelope backing it.
type SubmitProofParams struct {
	JobID        string         `json:"jobId"`
	ProviderID   string         `json:"providerId"`
	OutputDigest string         `json:"outputDigest"`
	ProofRefs    []ProofRefView `json:"proofRefs,omitempty"`
	Envelope     EnvelopeView   `json:"envelope"`
}

// SubmitProofResult reports the priced-and-split reward queued for the next
// settlement.
type SubmitProofResult struct {
	JobID          string `json:"jobId"`
	Units          uint64 `json:"units"`
	Reward         uint64 `json:"reward"`
	ProviderAmount uint64 `json:"providerAmount"`
	TreasuryAmount uint64 `json:"treasuryAmount"`
	MinerAmount    uint64 `json:"minerAmount"`
}

// SubmitProof is the write path that feeds the proof→payout pipeline: it
// validates the completion against the active lease, normalizes the
// envelope, and queues the split reward for the next epoch settlement.
func (s *Service) SubmitProof(ctx context.Context, p SubmitProofParams) (SubmitProofResult, error) {
	if p.JobID == "" || p.ProviderID == "" {
		return SubmitProofResult{}, errInvalidParams("jobId and providerId are required")
	}
	refs := make([]completion.ProofRef, 0, len(p.ProofRefs))
	for _, r := range p.ProofRefs {
		refs = append(refs, completion.ProofRef{Kind: r.Kind, Value: r.Value})
	}
	sub := completion.Submission{
		JobID:        types.HexID(p.JobID),
		ProviderID:   types.HexID(p.ProviderID),
		OutputDigest: p.OutputDigest,
		ProofRefs:    refs,
	}
	env := proofbridge.Envelope{
		Type:         p.Envelope.Type,
		ProviderID:   types.HexID(p.ProviderID),
		TaskID:       types.HexID(p.Envelope.TaskID),
		Nullifier:    types.HexID(p.Envelope.Nullifier),
		Height:       types.Height(p.Envelope.Height),
		Units:        p.Envelope.Units,
		InputTokens:  p.Envelope.InputTokens,
		OutputTokens: p.Envelope.OutputTokens,
		Depth:        p.Envelope.Depth,
		Width:        p.Envelope.Width,
		Shots:        p.Envelope.Shots,
		TrapsPassed:  p.Envelope.TrapsPassed,
		TrapsTotal:   p.Envelope.TrapsTotal,
		QoS:          p.Envelope.QoS,
		LatencyMs:    p.Envelope.LatencyMs,
	}
	res, err := s.pipeline.AcceptCompletion(ctx, sub, env, s.now(), s.height())
	if err != nil {
		return SubmitProofResult{}, toModuleError(err)
	}
	return SubmitProofResult{
		JobID:          p.JobID,
		Units:          res.Claim.WorkUnits,
		Reward:         res.Reward,
		ProviderAmount: res.ProviderAmount,
		TreasuryAmount: res.TreasuryAmount,
		MinerAmount:    res.MinerAmount,
	}, nil
}

// toModuleError maps the internal error taxonomy onto the wire codes.
func toModuleError(err error) error {
	var leaseLost *errors.LeaseLostError
	var expired *errors.JobExpiredError
	var stake *errors.InsufficientStakeError
	switch {
	case stderrors.As(err, &leaseLost):
		return &ModuleError{HTTPStatus: 409, Code: codeLeaseLost, Message: err.Error(), Data: leaseLost}
	case stderrors.As(err, &expired):
		return &ModuleError{HTTPStatus: 410, Code: codeJobExpired, Message: err.Error(), Data: expired}
	case stderrors.As(err, &stake):
		return &ModuleError{HTTPStatus: 403, Code: codeInsufficientStake, Message: err.Error(), Data: stake}
	case stderrors.Is(err, errors.ErrRegistryDenied), stderrors.Is(err, errors.ErrJailed):
		return &ModuleError{HTTPStatus: 403, Code: codeRegistryDenied, Message: err.Error()}
	case stderrors.Is(err, errors.ErrSchemaInvalid), stderrors.Is(err, errors.ErrProofInvalid):
		return errInvalidParams(err.Error())
	case stderrors.Is(err, errors.ErrDeadlineExceeded):
		return &ModuleError{HTTPStatus: 410, Code: codeJobExpired, Message: err.Error()}
	default:
		return errInternal(err.Error())
	}
}
