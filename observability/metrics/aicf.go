// Package metrics exposes the AICF Prometheus registry: a sync.Once-guarded
// singleton bundle covering the dispatcher/heartbeat/quota/settlement/slash
// surface.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aicf/core/events"
)

// AICFMetrics bundles the collectors emitted by the dispatcher tick loop and
// the components it drives.
type AICFMetrics struct {
	heartbeatScore     *prometheus.GaugeVec
	heartbeatPings     *prometheus.CounterVec
	quotaUtilization   *prometheus.GaugeVec
	assignmentPass     prometheus.Histogram
	assignmentsMade    *prometheus.CounterVec
	settlementBatch    prometheus.Histogram
	settlementAccepted *prometheus.CounterVec
	settlementRejected *prometheus.CounterVec
	slashEvents        *prometheus.CounterVec
	epochBudgetSpent   *prometheus.GaugeVec
}

var (
	once sync.Once
	reg  *AICFMetrics
)

// AICF returns the lazily-initialised AICF metrics registry.
func AICF() *AICFMetrics {
	once.Do(func() {
		reg = &AICFMetrics{
			heartbeatScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "aicf",
				Subsystem: "heartbeat",
				Name:      "health_score",
				Help:      "Current decayed health score (0-1) per provider.",
			}, []string{"provider_id"}),
			heartbeatPings: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aicf",
				Subsystem: "heartbeat",
				Name:      "pings_total",
				Help:      "Count of heartbeat pings segmented by provider and outcome.",
			}, []string{"provider_id", "outcome"}),
			quotaUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "aicf",
				Subsystem: "quota",
				Name:      "utilization_ratio",
				Help:      "Fraction of a provider's per-epoch unit budget consumed, by kind.",
			}, []string{"provider_id", "kind"}),
			assignmentPass: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "aicf",
				Subsystem: "assignment",
				Name:      "pass_duration_seconds",
				Help:      "Wall-clock duration of a single assignment pass.",
				Buckets:   prometheus.DefBuckets,
			}),
			assignmentsMade: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aicf",
				Subsystem: "assignment",
				Name:      "leases_issued_total",
				Help:      "Count of leases issued by the assignment engine, by job kind.",
			}, []string{"kind"}),
			settlementBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "aicf",
				Subsystem: "settlement",
				Name:      "batch_size",
				Help:      "Number of transfers processed per settlement plan.",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			}),
			settlementAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aicf",
				Subsystem: "settlement",
				Name:      "transfers_accepted_total",
				Help:      "Count of settlement transfers accepted against the epoch cap.",
			}, []string{"payee_kind"}),
			settlementRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aicf",
				Subsystem: "settlement",
				Name:      "transfers_rejected_total",
				Help:      "Count of settlement transfers deferred due to epoch overflow.",
			}, []string{"payee_kind"}),
			slashEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aicf",
				Subsystem: "slash",
				Name:      "events_total",
				Help:      "Count of slash events segmented by reason and whether they jailed the provider.",
			}, []string{"reason", "jailed"}),
			epochBudgetSpent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "aicf",
				Subsystem: "epoch",
				Name:      "budget_spent",
				Help:      "Γ_fund budget spent so far in the current epoch.",
			}, []string{"epoch_idx"}),
		}
		prometheus.MustRegister(
			reg.heartbeatScore, reg.heartbeatPings, reg.quotaUtilization,
			reg.assignmentPass, reg.assignmentsMade,
			reg.settlementBatch, reg.settlementAccepted, reg.settlementRejected,
			reg.slashEvents, reg.epochBudgetSpent,
		)
	})
	return reg
}

// RecordHeartbeat updates the score gauge and ping counter for a provider.
func (m *AICFMetrics) RecordHeartbeat(providerID string, score float64, ok bool) {
	if m == nil {
		return
	}
	m.heartbeatScore.WithLabelValues(providerID).Set(score)
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.heartbeatPings.WithLabelValues(providerID, outcome).Inc()
}

// RecordQuotaUtilization sets the utilization gauge for a provider/kind pair.
func (m *AICFMetrics) RecordQuotaUtilization(providerID, kind string, ratio float64) {
	if m == nil {
		return
	}
	m.quotaUtilization.WithLabelValues(providerID, kind).Set(ratio)
}

// ObserveAssignmentPass records the duration of one assignment pass and the
// count of leases issued per kind.
func (m *AICFMetrics) ObserveAssignmentPass(d time.Duration, leasesByKind map[string]int) {
	if m == nil {
		return
	}
	m.assignmentPass.Observe(d.Seconds())
	for kind, count := range leasesByKind {
		m.assignmentsMade.WithLabelValues(kind).Add(float64(count))
	}
}

// ObserveSettlement records a settlement plan's batch size and accept/reject
// counts, segmented by whether the payee was a provider or a miner.
func (m *AICFMetrics) ObserveSettlement(batchSize int, acceptedProviders, acceptedMiners, rejectedProviders, rejectedMiners int) {
	if m == nil {
		return
	}
	m.settlementBatch.Observe(float64(batchSize))
	m.settlementAccepted.WithLabelValues("provider").Add(float64(acceptedProviders))
	m.settlementAccepted.WithLabelValues("miner").Add(float64(acceptedMiners))
	m.settlementRejected.WithLabelValues("provider").Add(float64(rejectedProviders))
	m.settlementRejected.WithLabelValues("miner").Add(float64(rejectedMiners))
}

// RecordSlash increments the slash event counter.
func (m *AICFMetrics) RecordSlash(reason string, jailed bool) {
	if m == nil {
		return
	}
	jailedLabel := "false"
	if jailed {
		jailedLabel = "true"
	}
	m.slashEvents.WithLabelValues(reason, jailedLabel).Inc()
}

// RecordEpochBudgetSpent sets the budget-spent gauge for an epoch index.
func (m *AICFMetrics) RecordEpochBudgetSpent(epochIdx uint64, spent uint64) {
	if m == nil {
		return
	}
	m.epochBudgetSpent.WithLabelValues(strconv.FormatUint(epochIdx, 10)).Set(float64(spent))
}

// Emitter adapts AICFMetrics to events.Emitter so the dispatcher's emitted
// AicfEvents drive the settlement/slash collectors alongside the WebSocket
// hub, without either needing to know about the other. Assignment collectors
// are fed through ObserveAssignmentPass, not through Emit.
type Emitter struct {
	m *AICFMetrics
}

// NewEmitter wraps m as an events.Emitter.
func NewEmitter(m *AICFMetrics) Emitter { return Emitter{m: m} }

// Emit implements events.Emitter.
func (e Emitter) Emit(evt events.Event) {
	switch v := evt.(type) {
	case events.Slashed:
		e.m.RecordSlash(v.Reason, v.Jailed)
	case events.Settled:
		e.m.ObserveSettlement(v.Payouts, v.Payouts, 0, 0, 0)
		e.m.RecordEpochBudgetSpent(v.Epoch, v.Amount)
	}
}
