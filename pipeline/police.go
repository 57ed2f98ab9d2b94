package pipeline

import (
	"aicf/core/types"
	"aicf/proofbridge"
	"aicf/registry"
	"aicf/sla"
	"aicf/slash"
)

// slaWindow accumulates one provider's measurement counters between
// settlement boundaries. Each accepted proof counts as one trial; the
// traps/QoS counters record how many of those trials cleared the
// configured per-proof bar.
type slaWindow struct {
	total        uint64
	trapsOK      uint64
	qosOK        uint64
	worstLatency float64
}

// AttachSLA arms the pipeline's SLA policing: every accepted proof's
// metrics feed a per-provider window, and each SettleEpoch call evaluates
// the windows accumulated since the last one, routing failures through the
// slash engine and passes through its jail-recovery path. Call before
// serving traffic; attaching mid-flight discards any counters gathered so
// far.
func (p *Pipeline) AttachSLA(thresholds sla.Thresholds, slasher *slash.Engine, reg *registry.Registry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slaThresholds = thresholds
	p.slasher = slasher
	p.slaRegistry = reg
	p.windows = make(map[types.HexID]*slaWindow)
}

func (p *Pipeline) observeSLALocked(providerID types.HexID, m proofbridge.ProofMetrics) {
	if p.windows == nil {
		return
	}
	w, ok := p.windows[providerID]
	if !ok {
		w = &slaWindow{}
		p.windows[providerID] = w
	}
	w.total++
	// A proof that carries no traps or QoS signal is counted as passing:
	// absence of evidence is not a violation.
	if m.TrapsRatio == nil || *m.TrapsRatio >= p.slaThresholds.TrapsMin {
		w.trapsOK++
	}
	if m.QoS == nil || *m.QoS >= p.slaThresholds.QoSMin {
		w.qosOK++
	}
	if m.LatencyMs != nil && *m.LatencyMs > w.worstLatency {
		w.worstLatency = *m.LatencyMs
	}
}

type slaVerdict struct {
	providerID types.HexID
	decision   sla.Decision
}

func (p *Pipeline) drainWindowsLocked() []slaVerdict {
	if len(p.windows) == 0 {
		return nil
	}
	verdicts := make([]slaVerdict, 0, len(p.windows))
	for id, w := range p.windows {
		m := sla.Measurement{
			Total:        w.total,
			TrapsOK:      w.trapsOK,
			QoSOK:        w.qosOK,
			LatencyMs:    w.worstLatency,
			Availability: 1, // no liveness signal flows through the proof path
		}
		verdicts = append(verdicts, slaVerdict{providerID: id, decision: sla.Evaluate(m, p.slaThresholds)})
	}
	p.windows = make(map[types.HexID]*slaWindow)
	return verdicts
}

// applySLA runs outside the pipeline mutex: the slash engine touches the
// registry and ledger, which take their own locks.
func (p *Pipeline) applySLA(verdicts []slaVerdict, height types.Height, now types.UnixMillis) {
	for _, v := range verdicts {
		if v.decision.Pass {
			_ = p.slasher.RecordGoodWindow(v.providerID, height)
			continue
		}
		provider, err := p.slaRegistry.Get(v.providerID)
		if err != nil {
			continue
		}
		reason := failureReason(v.decision)
		severity := 1 - v.decision.SoftScore
		_, _ = p.slasher.RecordViolation(v.providerID, reason, severity, provider.StakeTotal, height, now)
	}
}

func failureReason(d sla.Decision) string {
	switch {
	case !d.TrapsPass:
		return "sla/traps"
	case !d.QoSPass:
		return "sla/qos"
	case !d.LatencyPass:
		return "sla/latency"
	default:
		return "sla/availability"
	}
}
