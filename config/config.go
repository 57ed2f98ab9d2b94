// Package config loads the canonical AICF configuration: payouts, split,
// stake, sla, slashing, and chain-wide constants, from TOML with flattened
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Payouts configures per-unit reward rates in nano-token base units.
type Payouts struct {
	AIUnitRateNano      uint64 `toml:"ai_unit_rate_nano"`
	QuantumUnitRateNano uint64 `toml:"quantum_unit_rate_nano"`
}

// Split configures the default 3-way settlement split in basis points.
type Split struct {
	ProviderBps uint64 `toml:"provider_bps"`
	TreasuryBps uint64 `toml:"treasury_bps"`
	MinerBps    uint64 `toml:"miner_bps"`
}

// Stake configures minimum stake thresholds and unbonding timing.
type Stake struct {
	MinStakeAINano         uint64 `toml:"min_stake_ai_nano"`
	MinStakeQuantumNano    uint64 `toml:"min_stake_quantum_nano"`
	LockPeriodBlocks       uint64 `toml:"lock_period_blocks"`
	UnbondingPeriodBlocks  uint64 `toml:"unbonding_period_blocks"`
}

// SLA configures the thresholds the evaluator checks per window.
type SLA struct {
	TrapsRatioMin    float64 `toml:"traps_ratio_min"`
	QosMin           float64 `toml:"qos_min"`
	LatencyP95MaxMs  uint64  `toml:"latency_p95_max_ms"`
	AvailabilityMin  float64 `toml:"availability_min"`
}

// Slashing configures penalty basis points per violation class and the
// jail duration.
type Slashing struct {
	TrapsFailBps       uint64 `toml:"traps_fail_bps"`
	QosFailBps         uint64 `toml:"qos_fail_bps"`
	AvailabilityFailBps uint64 `toml:"availability_fail_bps"`
	MisbehaviorBps     uint64 `toml:"misbehavior_bps"`
	JailBlocks         uint64 `toml:"jail_blocks"`
}

// Config is the canonical AICF configuration document.
type Config struct {
	Payouts        Payouts  `toml:"payouts"`
	Split          Split    `toml:"split"`
	Stake          Stake    `toml:"stake"`
	SLA            SLA      `toml:"sla"`
	Slashing       Slashing `toml:"slashing"`
	TokenDecimals  uint32   `toml:"token_decimals"`
	ChainID        string   `toml:"chain_id"`
}

// Default returns the conservative development defaults (the per-kind
// splits AI 85/10/5 and Quantum 80/15/5 are set by callers; Split here is
// the AI default).
func Default() Config {
	return Config{
		Payouts: Payouts{AIUnitRateNano: 2, QuantumUnitRateNano: 5},
		Split:   Split{ProviderBps: 8_500, TreasuryBps: 1_000, MinerBps: 500},
		Stake: Stake{
			MinStakeAINano:        1_000,
			MinStakeQuantumNano:   5_000,
			LockPeriodBlocks:      100,
			UnbondingPeriodBlocks: 1_000,
		},
		SLA: SLA{
			TrapsRatioMin:   0.98,
			QosMin:          0.90,
			LatencyP95MaxMs: 5_000,
			AvailabilityMin: 0.99,
		},
		Slashing: Slashing{
			TrapsFailBps:        500,
			QosFailBps:          300,
			AvailabilityFailBps: 200,
			MisbehaviorBps:      1_000,
			JailBlocks:          50,
		},
		TokenDecimals: 9,
		ChainID:       "aicf-devnet",
	}
}

// Load reads the TOML configuration at path, writing out defaults if the
// file does not exist, then applies AICF_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := save(path, &cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func save(path string, cfg *Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// applyEnvOverrides flattens the config shape behind an AICF_ prefix, e.g.
// AICF_SPLIT_PROVIDER_BPS, AICF_SLA_QOS_MIN.
func applyEnvOverrides(cfg *Config) {
	overrideUint(&cfg.Payouts.AIUnitRateNano, "AICF_PAYOUTS_AI_UNIT_RATE_NANO")
	overrideUint(&cfg.Payouts.QuantumUnitRateNano, "AICF_PAYOUTS_QUANTUM_UNIT_RATE_NANO")
	overrideUint(&cfg.Split.ProviderBps, "AICF_SPLIT_PROVIDER_BPS")
	overrideUint(&cfg.Split.TreasuryBps, "AICF_SPLIT_TREASURY_BPS")
	overrideUint(&cfg.Split.MinerBps, "AICF_SPLIT_MINER_BPS")
	overrideUint(&cfg.Stake.MinStakeAINano, "AICF_STAKE_MIN_STAKE_AI_NANO")
	overrideUint(&cfg.Stake.MinStakeQuantumNano, "AICF_STAKE_MIN_STAKE_QUANTUM_NANO")
	overrideUint(&cfg.Stake.LockPeriodBlocks, "AICF_STAKE_LOCK_PERIOD_BLOCKS")
	overrideUint(&cfg.Stake.UnbondingPeriodBlocks, "AICF_STAKE_UNBONDING_PERIOD_BLOCKS")
	overrideFloat(&cfg.SLA.TrapsRatioMin, "AICF_SLA_TRAPS_RATIO_MIN")
	overrideFloat(&cfg.SLA.QosMin, "AICF_SLA_QOS_MIN")
	overrideUint(&cfg.SLA.LatencyP95MaxMs, "AICF_SLA_LATENCY_P95_MAX_MS")
	overrideFloat(&cfg.SLA.AvailabilityMin, "AICF_SLA_AVAILABILITY_MIN")
	overrideUint(&cfg.Slashing.TrapsFailBps, "AICF_SLASHING_TRAPS_FAIL_BPS")
	overrideUint(&cfg.Slashing.QosFailBps, "AICF_SLASHING_QOS_FAIL_BPS")
	overrideUint(&cfg.Slashing.AvailabilityFailBps, "AICF_SLASHING_AVAILABILITY_FAIL_BPS")
	overrideUint(&cfg.Slashing.MisbehaviorBps, "AICF_SLASHING_MISBEHAVIOR_BPS")
	overrideUint(&cfg.Slashing.JailBlocks, "AICF_SLASHING_JAIL_BLOCKS")
	if v := strings.TrimSpace(os.Getenv("AICF_CHAIN_ID")); v != "" {
		cfg.ChainID = v
	}
}

func overrideUint(dst *uint64, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func overrideFloat(dst *float64, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}
