package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EpochPolicy configures the Γ_fund budget schedule for one network.
type EpochPolicy struct {
	StartHeight    uint64  `yaml:"start_height"`
	LengthBlocks   uint64  `yaml:"length_blocks"`
	BaseBudgetNano uint64  `yaml:"base_budget_nano"`
	RolloverRate   float64 `yaml:"rollover_rate"`
}

// QuotaPolicy configures one provider tier's per-epoch unit budgets.
type QuotaPolicy struct {
	Tier              string `yaml:"tier"`
	AIUnitsPerEpoch   uint64 `yaml:"ai_units_per_epoch"`
	QuantumUnitsEpoch uint64 `yaml:"quantum_units_per_epoch"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
}

// policyFile is the on-disk YAML shape, separate from the TOML Config so
// operators can roll epoch/quota thresholds without a full config redeploy.
type policyFile struct {
	Epoch   EpochPolicy   `yaml:"epoch"`
	Quotas  []QuotaPolicy `yaml:"quotas"`
}

// LoadPolicies reads the epoch budget schedule and per-tier quota policies
// from a YAML file.
func LoadPolicies(path string) (EpochPolicy, []QuotaPolicy, error) {
	f, err := os.Open(path)
	if err != nil {
		return EpochPolicy{}, nil, fmt.Errorf("config: open policies %s: %w", path, err)
	}
	defer f.Close()

	var doc policyFile
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return EpochPolicy{}, nil, fmt.Errorf("config: decode policies %s: %w", path, err)
	}
	if doc.Epoch.LengthBlocks == 0 {
		return EpochPolicy{}, nil, fmt.Errorf("config: epoch.length_blocks must be positive")
	}
	seen := make(map[string]struct{}, len(doc.Quotas))
	for _, q := range doc.Quotas {
		tier := strings.ToLower(strings.TrimSpace(q.Tier))
		if tier == "" {
			return EpochPolicy{}, nil, fmt.Errorf("config: quota entry missing tier")
		}
		if _, dup := seen[tier]; dup {
			return EpochPolicy{}, nil, fmt.Errorf("config: duplicate quota tier %q", tier)
		}
		seen[tier] = struct{}{}
	}
	return doc.Epoch, doc.Quotas, nil
}
