// Package priority implements deterministic job ranking and the provider
// eligibility filter: pure functions over slices, no hidden global state,
// ties always broken by a stable identity key.
package priority

import (
	"sort"

	"aicf/core/types"
	"aicf/registry"
)

// Rank sorts jobs by (−fee, created_at asc, size_bytes asc, tier_score asc,
// job_id asc) and returns a new, stably ordered slice. The input is never
// mutated, and permuting it produces an identical output order.
func Rank(jobs []types.Job) []types.Job {
	out := make([]types.Job, len(jobs))
	copy(out, jobs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Fee != b.Fee {
			return a.Fee > b.Fee
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.SizeBytes != b.SizeBytes {
			return a.SizeBytes < b.SizeBytes
		}
		at, bt := a.Tier.TierScore(), b.Tier.TierScore()
		if at != bt {
			return at < bt
		}
		return a.JobID < b.JobID
	})
	return out
}

// FilterConfig parameterizes the eligibility filter and composite score.
type FilterConfig struct {
	MinHealth       float64
	DeniedRegions   map[string]bool
	WeightHealth    float64
	WeightStake     float64
	RegionBonus     map[string]float64
	StakeNormalizer uint64 // effective stake at which stake_normalized saturates to 1.0
}

// EligibilityInput bundles the per-provider facts the filter needs beyond
// the raw Provider row (values computed by other components).
type EligibilityInput struct {
	Provider         types.Provider
	EffectiveStake   uint64
	MinStake         uint64
	Health           float64
	AllowedStatuses  map[types.ProviderStatus]bool
	RequiredKind     types.Capability
	RequiredAlgos    registry.CapabilitySet
	SupportedAlgos   registry.CapabilitySet
}

// Eligible reports whether a provider may be assigned the job described by
// in.
func Eligible(in EligibilityInput, cfg FilterConfig) bool {
	allowed := in.AllowedStatuses
	if allowed == nil {
		allowed = map[types.ProviderStatus]bool{types.ProviderActive: true}
	}
	if !allowed[in.Provider.Status] {
		return false
	}
	if !in.Provider.HasCapability(in.RequiredKind) {
		return false
	}
	if in.EffectiveStake < in.MinStake {
		return false
	}
	if cfg.DeniedRegions != nil && cfg.DeniedRegions[in.Provider.Region] {
		return false
	}
	if !in.RequiredAlgos.IsSubsetOf(in.SupportedAlgos) {
		return false
	}
	if in.Health < cfg.MinHealth {
		return false
	}
	return true
}

// ScoredProvider pairs a provider id with its composite ranking score.
type ScoredProvider struct {
	ProviderID types.HexID
	Score      float64
}

// Score computes the composite eligibility score used to rank otherwise-
// eligible providers: weighted health plus normalized stake plus an
// optional per-region bonus.
func Score(in EligibilityInput, cfg FilterConfig) float64 {
	wh, ws := cfg.WeightHealth, cfg.WeightStake
	total := wh + ws
	if total <= 0 {
		wh, ws, total = 1, 0, 1
	}
	stakeNorm := 0.0
	if cfg.StakeNormalizer > 0 {
		stakeNorm = float64(in.EffectiveStake) / float64(cfg.StakeNormalizer)
		if stakeNorm > 1 {
			stakeNorm = 1
		}
	}
	bonus := 0.0
	if cfg.RegionBonus != nil {
		bonus = cfg.RegionBonus[in.Provider.Region]
	}
	return (wh*in.Health+ws*stakeNorm)/total + bonus
}

// RankProviders sorts eligible providers descending by composite score,
// tying on provider_id ascending.
func RankProviders(scored []ScoredProvider) []ScoredProvider {
	out := make([]ScoredProvider, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	return out
}
