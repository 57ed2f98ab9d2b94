// Package sla implements the SLA window evaluator: a Wilson-lower-bound
// confidence test on traps/QoS ratios, a hard latency
// gate, an availability ratio check, and a soft ranking score.
package sla

import "math"

// Measurement is a single evaluation window's raw counters.
type Measurement struct {
	Total        uint64
	TrapsOK      uint64
	QoSOK        uint64
	LatencyMs    float64
	Availability float64
}

// Thresholds are the configured pass/fail bars.
type Thresholds struct {
	TrapsMin        float64
	QoSMin          float64
	MaxLatencyMs    float64
	AvailabilityMin float64
	Confidence      float64 // one of 0.80, 0.90, 0.95, 0.975, 0.99
}

// zTable maps supported confidence levels to their two-sided z-score.
var zTable = map[float64]float64{
	0.80:  1.2816,
	0.90:  1.6449,
	0.95:  1.9600,
	0.975: 2.2414,
	0.99:  2.5758,
}

func zFor(confidence float64) float64 {
	if z, ok := zTable[confidence]; ok {
		return z
	}
	return zTable[0.95]
}

// WilsonLower computes the Wilson score lower bound for k successes out of
// n trials at the given confidence. Returns 0 when n == 0.
func WilsonLower(k, n uint64, confidence float64) float64 {
	if n == 0 {
		return 0
	}
	z := zFor(confidence)
	nf := float64(n)
	p := float64(k) / nf
	z2 := z * z
	denom := 1 + z2/nf
	center := p + z2/(2*nf)
	margin := z * math.Sqrt((p*(1-p)+z2/(4*nf))/nf)
	return (center - margin) / denom
}

// Decision is the outcome of evaluating one window.
type Decision struct {
	Pass       bool
	TrapsPass  bool
	QoSPass    bool
	LatencyPass bool
	AvailabilityPass bool
	SoftScore  float64
}

// Evaluate applies the hard-gate decision and soft ranking score to one
// measurement window.
func Evaluate(m Measurement, t Thresholds) Decision {
	trapsLower := WilsonLower(m.TrapsOK, m.Total, t.Confidence)
	qosLower := WilsonLower(m.QoSOK, m.Total, t.Confidence)

	d := Decision{
		TrapsPass:        trapsLower >= t.TrapsMin,
		QoSPass:          qosLower >= t.QoSMin,
		LatencyPass:      m.LatencyMs <= t.MaxLatencyMs,
		AvailabilityPass: m.Availability >= t.AvailabilityMin,
	}
	d.Pass = d.TrapsPass && d.QoSPass && d.LatencyPass && d.AvailabilityPass
	d.SoftScore = softScore(trapsLower, qosLower, m, t)
	return d
}

func rampUp(value, threshold float64) float64 {
	if threshold <= 0 {
		return 1
	}
	v := value / threshold
	return clamp01(v)
}

func rampDown(value, threshold float64) float64 {
	if value <= threshold {
		return 1
	}
	if threshold <= 0 {
		return 0
	}
	over := (value - threshold) / threshold
	return clamp01(1 - over)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func softScore(trapsLower, qosLower float64, m Measurement, t Thresholds) float64 {
	traps := rampUp(trapsLower, t.TrapsMin)
	qos := rampUp(qosLower, t.QoSMin)
	avail := rampUp(m.Availability, t.AvailabilityMin)
	latency := rampDown(m.LatencyMs, t.MaxLatencyMs)
	return (traps + qos + avail + latency) / 4
}
