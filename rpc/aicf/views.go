package aicf

import "aicf/core/types"

// ProviderView is the wire shape returned by listProviders/getProvider.
type ProviderView struct {
	ProviderID  string   `json:"providerId"`
	Capabilities []string `json:"capabilities"`
	Endpoints   []string `json:"endpoints"`
	Region      string   `json:"region"`
	Status      string   `json:"status"`
	StakeTotal  uint64   `json:"stakeTotal"`
	HealthScore float64  `json:"healthScore"`
}

func toProviderView(p types.Provider) ProviderView {
	var caps []string
	if p.HasCapability(types.CapabilityAI) {
		caps = append(caps, "AI")
	}
	if p.HasCapability(types.CapabilityQuantum) {
		caps = append(caps, "QUANTUM")
	}
	return ProviderView{
		ProviderID:   string(p.ProviderID),
		Capabilities: caps,
		Endpoints:    p.Endpoints,
		Region:       p.Region,
		Status:       string(p.Status),
		StakeTotal:   p.StakeTotal,
		HealthScore:  p.HealthScore,
	}
}

// JobView is the wire shape returned by listJobs/getJob.
type JobView struct {
	JobID      string `json:"jobId"`
	Kind       string `json:"kind"`
	Requester  string `json:"requester"`
	Fee        uint64 `json:"fee"`
	Tier       string `json:"tier"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	ProviderID string `json:"providerId,omitempty"`
}

func toJobView(j types.Job) JobView {
	return JobView{
		JobID:      string(j.JobID),
		Kind:       string(j.Kind),
		Requester:  j.Requester,
		Fee:        j.Fee,
		Tier:       string(j.Tier),
		Status:     string(j.Status),
		Attempts:   j.Attempts,
		ProviderID: string(j.LeaseProvider),
	}
}

// BalanceView is the wire shape returned by getBalance.
type BalanceView struct {
	ProviderID          string  `json:"providerId"`
	Available           uint64  `json:"available"`
	Pending             uint64  `json:"pending"`
	Escrow              uint64  `json:"escrow"`
	LastSettlementEpoch *uint64 `json:"lastSettlementEpoch,omitempty"`
}

// ClaimPayoutLine is one line item in a claimPayout response.
type ClaimPayoutLine struct {
	JobID  string `json:"jobId"`
	Amount uint64 `json:"amount"`
}

// ClaimPayoutResult is the wire shape returned by claimPayout.
type ClaimPayoutResult struct {
	ProviderID         string            `json:"providerId"`
	TotalPaid          uint64            `json:"totalPaid"`
	EpochFrom          uint64            `json:"epochFrom"`
	EpochTo            uint64            `json:"epochTo"`
	Payouts            []ClaimPayoutLine `json:"payouts"`
	WithdrawalID       string            `json:"withdrawalId,omitempty"`
	EarliestExecHeight uint64            `json:"earliestExecHeight,omitempty"`
	TxHash             string            `json:"txHash,omitempty"`
}
