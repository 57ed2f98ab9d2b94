// Package pricing implements unit pricing and the deterministic 3-way
// reward split, using fixed-point arithmetic (scale 1e9, since AICF prices
// are nano-token rates) so surge/quality multipliers never touch floating
// point during settlement.
package pricing

import (
	"errors"

	"aicf/core/types"
)

// Scale is the fixed-point scale used for rate/surge/quality multipliers.
// The rate*units*surge*quality product is carried in 256-bit types.Amount
// math, so the Scale² denominator never forces an intermediate through
// uint64.
const Scale = 1_000_000_000

// RoundingMode selects how the fixed-point price is quantized to an integer
// reward.
type RoundingMode int

const (
	RoundFloor RoundingMode = iota
	RoundCeil
	RoundNearestEven
)

// ErrHardCapBreach is returned when a priced reward exceeds MaxReward.
var ErrHardCapBreach = errors.New("pricing: hard cap breach")

// ErrRewardOverflow is returned when a priced reward does not fit the
// uint64 base-unit width the ledger carries.
var ErrRewardOverflow = errors.New("pricing: reward exceeds uint64 range")

// PriceInput bundles the quantities needed to price one settled proof.
type PriceInput struct {
	RatePerUnitNano uint64
	Units           uint64
	SurgeScaled     uint64 // surge * Scale, in (0, 10] * Scale
	QualityScaled   uint64 // quality * Scale, in (0, 10] * Scale
	Rounding        RoundingMode
	MinReward       *uint64
	MaxReward       *uint64
}

// Price computes reward = rate_per_unit * units * surge * quality under the
// configured rounding mode, applying the min/max reward clamps. The
// four-factor product is built in types.Amount (256-bit) space, where four
// uint64 factors cannot wrap, and is quantized to uint64 exactly once.
// Returns ErrHardCapBreach if the clamped result exceeds MaxReward, and
// ErrRewardOverflow if it exceeds the uint64 ledger width.
func Price(in PriceInput) (uint64, error) {
	numerator := types.NewAmount(in.RatePerUnitNano).
		Mul(types.NewAmount(in.Units)).
		Mul(types.NewAmount(in.SurgeScaled)).
		Mul(types.NewAmount(in.QualityScaled))
	denominator := types.NewAmount(Scale).Mul(types.NewAmount(Scale))

	quotient, remainder := numerator.DivMod(denominator)
	switch in.Rounding {
	case RoundCeil:
		if !remainder.IsZero() {
			quotient = quotient.Add(types.NewAmount(1))
		}
	case RoundNearestEven:
		twice := remainder.Add(remainder)
		switch twice.Cmp(denominator) {
		case 1:
			quotient = quotient.Add(types.NewAmount(1))
		case 0: // exactly halfway: round to even
			if !quotient.IsEven() {
				quotient = quotient.Add(types.NewAmount(1))
			}
		}
	}

	if !quotient.FitsUint64() {
		return 0, ErrRewardOverflow
	}
	reward := quotient.Uint64()

	if in.MinReward != nil && reward < *in.MinReward {
		reward = *in.MinReward
	}
	if in.MaxReward != nil && reward > *in.MaxReward {
		return 0, ErrHardCapBreach
	}
	return reward, nil
}

// DefaultSplit returns the per-kind default split rule: AI
// 85/10/5, Quantum 80/15/5, residual to provider.
func DefaultSplit(kind types.JobKind) types.SplitRule {
	if kind == types.JobKindQuantum {
		return types.SplitRule{ProviderBps: 8000, TreasuryBps: 1500, MinerBps: 500, ResidualTo: "provider"}
	}
	return types.SplitRule{ProviderBps: 8500, TreasuryBps: 1000, MinerBps: 500, ResidualTo: "provider"}
}

// ErrInvalidSplit is returned when a SplitRule's bps do not sum to 10,000.
var ErrInvalidSplit = errors.New("pricing: split bps must sum to 10000")

const bpsDenominator = 10_000

// Split divides total according to rule, assigning the rounding residue
// deterministically to rule.ResidualTo (default provider). Invariant:
// p + t + m == total for every valid rule.
func Split(total uint64, rule types.SplitRule) (provider, treasury, miner uint64, err error) {
	if rule.ProviderBps+rule.TreasuryBps+rule.MinerBps != bpsDenominator {
		return 0, 0, 0, ErrInvalidSplit
	}
	// Each share is floor(total*bps/10000) ≤ total, so the results fit
	// uint64; MulDivFloor keeps the total*bps intermediate overflow-safe.
	base := types.NewAmount(total)
	provider = base.MulDivFloor(rule.ProviderBps, bpsDenominator).Uint64()
	treasury = base.MulDivFloor(rule.TreasuryBps, bpsDenominator).Uint64()
	miner = base.MulDivFloor(rule.MinerBps, bpsDenominator).Uint64()
	residual := total - provider - treasury - miner

	switch rule.ResidualTo {
	case "treasury":
		treasury += residual
	case "miner":
		miner += residual
	default:
		provider += residual
	}
	return provider, treasury, miner, nil
}
