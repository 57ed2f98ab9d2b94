package config

import "fmt"

// Validate enforces the configuration invariants: all bps in [0, 10_000]
// with the split summing to 10_000, ratios in [0, 1], positive durations.
func Validate(c Config) error {
	if c.Split.ProviderBps+c.Split.TreasuryBps+c.Split.MinerBps != 10_000 {
		return fmt.Errorf("config: split bps must sum to 10_000, got %d", c.Split.ProviderBps+c.Split.TreasuryBps+c.Split.MinerBps)
	}
	for name, bps := range map[string]uint64{
		"split.provider_bps":          c.Split.ProviderBps,
		"split.treasury_bps":          c.Split.TreasuryBps,
		"split.miner_bps":             c.Split.MinerBps,
		"slashing.traps_fail_bps":     c.Slashing.TrapsFailBps,
		"slashing.qos_fail_bps":       c.Slashing.QosFailBps,
		"slashing.availability_fail_bps": c.Slashing.AvailabilityFailBps,
		"slashing.misbehavior_bps":    c.Slashing.MisbehaviorBps,
	} {
		if bps > 10_000 {
			return fmt.Errorf("config: %s out of range [0, 10000]: %d", name, bps)
		}
	}
	for name, ratio := range map[string]float64{
		"sla.traps_ratio_min":   c.SLA.TrapsRatioMin,
		"sla.qos_min":           c.SLA.QosMin,
		"sla.availability_min":  c.SLA.AvailabilityMin,
	} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("config: %s out of range [0,1]: %v", name, ratio)
		}
	}
	if c.Stake.LockPeriodBlocks == 0 {
		return fmt.Errorf("config: stake.lock_period_blocks must be positive")
	}
	if c.Stake.UnbondingPeriodBlocks == 0 {
		return fmt.Errorf("config: stake.unbonding_period_blocks must be positive")
	}
	if c.SLA.LatencyP95MaxMs == 0 {
		return fmt.Errorf("config: sla.latency_p95_max_ms must be positive")
	}
	if c.Slashing.JailBlocks == 0 {
		return fmt.Errorf("config: slashing.jail_blocks must be positive")
	}
	if c.TokenDecimals == 0 {
		return fmt.Errorf("config: token_decimals must be positive")
	}
	return nil
}
