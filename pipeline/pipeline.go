// Package pipeline wires the proof→payout economic path end to end:
// Completion -> ProofBridge -> Pricing+Split -> Epoch reserve ->
// Settlement plan (cap) -> Treasury credit -> RewardsAudit. A single
// coordinator struct holds its collaborators and guards the small amount
// of mutable state (the pending/deferred payout queues and the running
// epoch accounting) behind one mutex, rather than spreading orchestration
// across call sites.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"aicf/completion"
	"aicf/core/events"
	"aicf/core/types"
	"aicf/epoch"
	"aicf/pricing"
	"aicf/proofbridge"
	"aicf/quota"
	"aicf/registry"
	"aicf/rewardsaudit"
	"aicf/settlement"
	"aicf/sla"
	"aicf/slash"
	"aicf/treasury"
)

// TreasuryAccountID is the sentinel ledger account that accrues the
// treasury's share of every settled reward. Treasury shares never leave
// the system as outbound transfers; the ledger has no dedicated concept of
// "the treasury itself", so it gets its own account under this id, the
// same way any other payee is just a HexID to the ledger.
const TreasuryAccountID types.HexID = "treasury"

// DefaultMinerAddress is the payee credited with the miner's share of a
// settled reward when the proof claim carries no explicit sealer address.
// AICF does not itself track which chain address sealed a given height, so
// every miner share pools under one ledger account until an address book
// is wired in.
const DefaultMinerAddress = "network-miner-pool"

// RateConfig holds the per-unit nano-token reward rate for each job kind
// (payouts.ai_unit_rate_nano / payouts.quantum_unit_rate_nano in config).
type RateConfig struct {
	AIUnitRateNano      uint64
	QuantumUnitRateNano uint64
}

// RateFor returns the configured per-unit rate for kind.
func (c RateConfig) RateFor(kind types.JobKind) uint64 {
	if kind == types.JobKindQuantum {
		return c.QuantumUnitRateNano
	}
	return c.AIUnitRateNano
}

// EpochConfig parameterizes the per-epoch settlement budget schedule.
// RolloverRateScaled is a fraction scaled by 1e6, matching
// epoch.StartEpoch's convention (500_000 == 0.5).
type EpochConfig struct {
	StartHeight        types.Height
	LengthBlocks       uint64
	BaseBudgetNano     uint64
	RolloverRateScaled uint64
}

// ProofResult is what a caller learns from AcceptCompletion: the
// normalized claim/metrics plus the priced-and-split reward, queued for the
// next SettleEpoch call.
type ProofResult struct {
	Claim          types.ProofClaim
	Metrics        proofbridge.ProofMetrics
	Reward         uint64
	ProviderAmount uint64
	TreasuryAmount uint64
	MinerAmount    uint64
}

// SettlementReport summarizes one SettleEpoch call's outcome.
type SettlementReport struct {
	EpochIdx        uint64
	Accepted        []settlement.Transfer
	Rejected        []settlement.Transfer
	TreasuryAccrued uint64
}

// Pipeline coordinates the completion receiver, proof bridge, pricing,
// epoch budget, settlement planner, treasury ledger, and rewards auditor
// into the single proof→payout path the system exists to run.
type Pipeline struct {
	mu sync.Mutex

	receiver *completion.Receiver
	quotas   *quota.Tracker
	ledger   *treasury.Ledger
	auditor  *rewardsaudit.Auditor
	emitter  events.Emitter

	rates    RateConfig
	rounding pricing.RoundingMode

	epochCfg EpochConfig
	state    types.EpochAccounting

	pending       []settlement.PayoutLine
	deferred      []settlement.PayoutLine
	settlementSeq uint64

	// SLA policing, attached via AttachSLA. windows is nil until then.
	slaThresholds sla.Thresholds
	slasher       *slash.Engine
	slaRegistry   *registry.Registry
	windows       map[types.HexID]*slaWindow
}

// New constructs a Pipeline. emitter may be nil (defaults to a no-op), so
// callers that don't need WS/metrics fan-out can skip it.
func New(receiver *completion.Receiver, quotas *quota.Tracker, ledger *treasury.Ledger, auditor *rewardsaudit.Auditor, emitter events.Emitter, rates RateConfig, epochCfg EpochConfig) *Pipeline {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p := &Pipeline{
		receiver: receiver,
		quotas:   quotas,
		ledger:   ledger,
		auditor:  auditor,
		emitter:  emitter,
		rates:    rates,
		epochCfg: epochCfg,
	}
	end := epochCfg.StartHeight + types.Height(epochCfg.LengthBlocks)
	p.state = epoch.StartEpoch(0, epochCfg.StartHeight, end, epochCfg.BaseBudgetNano, epochCfg.RolloverRateScaled, nil)
	return p
}

// EpochState returns a snapshot of the pipeline's current epoch accounting.
func (p *Pipeline) EpochState() types.EpochAccounting {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// AcceptCompletion validates and applies a completion submission, then
// normalizes the accompanying pre-verified proof envelope, reconciles the
// nominal 1-unit quota reservation booked at assignment time to the
// proof's real work units, prices the claim, and queues the resulting
// provider/treasury/miner shares for the next SettleEpoch call.
func (p *Pipeline) AcceptCompletion(ctx context.Context, sub completion.Submission, envelope proofbridge.Envelope, now types.UnixMillis, height types.Height) (ProofResult, error) {
	if err := p.receiver.Accept(ctx, sub, now); err != nil {
		return ProofResult{}, err
	}

	metrics, claim, err := proofbridge.Normalize(envelope)
	if err != nil {
		return ProofResult{}, err
	}
	claim.JobID = sub.JobID

	epochIdx := epoch.IndexForHeight(height, p.epochCfg.StartHeight, p.epochCfg.LengthBlocks)
	if claim.WorkUnits != 1 {
		p.quotas.AdjustCommitted(claim.ProviderID, claim.Kind, epochIdx, int64(claim.WorkUnits)-1)
	}

	reward, err := pricing.Price(pricing.PriceInput{
		RatePerUnitNano: p.rates.RateFor(claim.Kind),
		Units:           claim.WorkUnits,
		SurgeScaled:     pricing.Scale,
		QualityScaled:   pricing.Scale,
		Rounding:        p.rounding,
	})
	if err != nil {
		return ProofResult{}, err
	}

	rule := pricing.DefaultSplit(claim.Kind)
	providerAmt, treasuryAmt, minerAmt, err := pricing.Split(reward, rule)
	if err != nil {
		return ProofResult{}, err
	}

	line := settlement.PayoutLine{
		ProviderAddress: string(claim.ProviderID),
		ProviderAmount:  providerAmt,
		MinerAddress:    DefaultMinerAddress,
		MinerAmount:     minerAmt,
		TreasuryAmount:  treasuryAmt,
		JobID:           claim.JobID,
	}

	p.mu.Lock()
	p.pending = append(p.pending, line)
	p.observeSLALocked(claim.ProviderID, metrics)
	p.mu.Unlock()

	return ProofResult{
		Claim: claim, Metrics: metrics, Reward: reward,
		ProviderAmount: providerAmt, TreasuryAmount: treasuryAmt, MinerAmount: minerAmt,
	}, nil
}

// SettleEpoch builds a settlement plan from every payout line queued since
// the last call, plus any transfer a prior epoch's budget cap deferred —
// deferral is strict, never a partial payment. Accepted transfers are
// credited into the treasury ledger through the rewards auditor so a
// retried settlement id never double-credits; rejected transfers become
// the next call's deferred queue. Attached SLA windows are evaluated at
// the same boundary, so slashing decisions land once per settlement.
func (p *Pipeline) SettleEpoch(height types.Height, now types.UnixMillis) (SettlementReport, error) {
	p.mu.Lock()
	idx := epoch.IndexForHeight(height, p.epochCfg.StartHeight, p.epochCfg.LengthBlocks)
	if idx != p.state.EpochIdx {
		prev := p.state
		start := p.epochCfg.StartHeight + types.Height(idx*p.epochCfg.LengthBlocks)
		end := start + types.Height(p.epochCfg.LengthBlocks)
		p.state = epoch.StartEpoch(idx, start, end, p.epochCfg.BaseBudgetNano, p.epochCfg.RolloverRateScaled, &prev)
	}

	lines := make([]settlement.PayoutLine, 0, len(p.deferred)+len(p.pending))
	lines = append(lines, p.deferred...)
	lines = append(lines, p.pending...)
	p.deferred = nil
	p.pending = nil

	plan := settlement.Build(p.state, lines)
	p.state = plan.NewEpochState
	p.settlementSeq++
	settlementID := fmt.Sprintf("epoch-%d-%d", plan.EpochIdx, p.settlementSeq)

	for _, t := range plan.Rejected {
		if t.Kind == "miner" {
			p.deferred = append(p.deferred, settlement.PayoutLine{MinerAddress: t.Payee, MinerAmount: t.Amount})
		} else {
			p.deferred = append(p.deferred, settlement.PayoutLine{ProviderAddress: t.Payee, ProviderAmount: t.Amount})
		}
	}
	verdicts := p.drainWindowsLocked()
	p.mu.Unlock()

	p.applySLA(verdicts, height, now)

	if plan.TreasuryAccrued > 0 {
		if err := p.ledger.Credit(TreasuryAccountID, plan.TreasuryAccrued, height); err != nil {
			return SettlementReport{}, err
		}
	}

	if len(plan.Accepted) > 0 {
		payouts := make([]rewardsaudit.BatchPayout, 0, len(plan.Accepted))
		var totalPaid uint64
		for i, t := range plan.Accepted {
			payouts = append(payouts, rewardsaudit.BatchPayout{
				PayoutID:   fmt.Sprintf("%s-%d", t.Kind, i),
				ProviderID: types.HexID(t.Payee),
				Amount:     t.Amount,
			})
			totalPaid += t.Amount
		}
		if err := p.auditor.ApplyBatch(settlementID, payouts, height); err != nil {
			return SettlementReport{}, err
		}
		h := uint64(height)
		p.emitter.Emit(events.Settled{Epoch: plan.EpochIdx, Payouts: len(payouts), Amount: totalPaid, Height: &h, Millis: int64(now)})
	}

	return SettlementReport{
		EpochIdx: plan.EpochIdx, Accepted: plan.Accepted, Rejected: plan.Rejected,
		TreasuryAccrued: plan.TreasuryAccrued,
	}, nil
}
