// Package proofbridge normalizes pre-verified on-chain proof envelopes into
// the ProofMetrics/ProofClaim records the pricing and SLA components
// consume. AICF never verifies the underlying cryptography itself; this
// package only reshapes already-trusted envelopes.
package proofbridge

import (
	"errors"
	"math"

	"aicf/core/types"
)

// AITokensPerUnit is the AI unit-derivation divisor.
const AITokensPerUnit = 1000

// QuantumGateShotsPerUnit is the Quantum unit-derivation divisor.
const QuantumGateShotsPerUnit = 1000

// ErrAmbiguousKind is returned when an envelope's kind cannot be determined.
var ErrAmbiguousKind = errors.New("proofbridge: ambiguous envelope kind")

// Envelope is the raw, loosely-typed proof envelope as received from the
// on-chain proof layer. Exactly one of the AI/Quantum-specific fields is
// expected to be populated for a given kind.
type Envelope struct {
	// Explicit discriminators, checked in priority order.
	TypeWrapper string // "AIProof" | "QuantumProof"
	TypeID      string
	Type        string

	ProviderID types.HexID
	TaskID     types.HexID
	Nullifier  types.HexID
	Height     types.Height

	// Explicit unit override; if zero, units are derived from the fields
	// below.
	Units uint64

	InputTokens  uint64
	OutputTokens uint64

	Depth uint64
	Width uint64
	Shots uint64

	TrapsPassed uint64
	TrapsTotal  uint64

	QoS float64

	LatencyMs       float64
	LatencyTotalMs  float64
	DurationMs      float64

	Details map[string]string
}

// ProofMetrics is the normalized measurement record handed to pricing/SLA.
type ProofMetrics struct {
	Kind       types.JobKind
	Units      uint64
	TrapsRatio *float64
	QoS        *float64
	LatencyMs  *float64
	Details    map[string]string
}

func ceilDiv(n, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}

// DetectKind determines the envelope's job kind from its explicit
// discriminators, falling back to field heuristics; returns
// ErrAmbiguousKind if none resolve it.
func DetectKind(e Envelope) (types.JobKind, error) {
	switch e.TypeWrapper {
	case "AIProof":
		return types.JobKindAI, nil
	case "QuantumProof":
		return types.JobKindQuantum, nil
	}
	switch e.TypeID {
	case "AI", "ai":
		return types.JobKindAI, nil
	case "QUANTUM", "quantum":
		return types.JobKindQuantum, nil
	}
	switch e.Type {
	case "AI", "ai":
		return types.JobKindAI, nil
	case "QUANTUM", "quantum":
		return types.JobKindQuantum, nil
	}
	// Field heuristics: quantum envelopes carry depth/width/shots; AI
	// envelopes carry token counts. If both or neither are present, the
	// envelope is ambiguous.
	hasQuantumFields := e.Depth > 0 || e.Width > 0 || e.Shots > 0
	hasAIFields := e.InputTokens > 0 || e.OutputTokens > 0
	switch {
	case hasQuantumFields && !hasAIFields:
		return types.JobKindQuantum, nil
	case hasAIFields && !hasQuantumFields:
		return types.JobKindAI, nil
	default:
		return "", ErrAmbiguousKind
	}
}

func latencyFallback(e Envelope) *float64 {
	switch {
	case e.LatencyMs > 0:
		v := e.LatencyMs
		return &v
	case e.LatencyTotalMs > 0:
		v := e.LatencyTotalMs
		return &v
	case e.DurationMs > 0:
		v := e.DurationMs
		return &v
	default:
		return nil
	}
}

func trapsRatio(e Envelope) *float64 {
	if e.TrapsTotal == 0 {
		return nil
	}
	ratio := clampUnit(float64(e.TrapsPassed) / float64(e.TrapsTotal))
	return &ratio
}

// Normalize converts a raw Envelope into ProofMetrics and the ProofClaim
// that downstream pricing/settlement will key on.
func Normalize(e Envelope) (ProofMetrics, types.ProofClaim, error) {
	kind, err := DetectKind(e)
	if err != nil {
		return ProofMetrics{}, types.ProofClaim{}, err
	}

	var units uint64
	switch {
	case e.Units > 0:
		units = e.Units
	case kind == types.JobKindAI:
		units = ceilDiv(e.InputTokens+e.OutputTokens, AITokensPerUnit)
	default:
		units = ceilDiv(e.Depth*e.Width*e.Shots, QuantumGateShotsPerUnit)
	}

	metrics := ProofMetrics{
		Kind:       kind,
		Units:      units,
		TrapsRatio: trapsRatio(e),
		LatencyMs:  latencyFallback(e),
		Details:    e.Details,
	}
	if e.QoS != 0 {
		qos := e.QoS
		metrics.QoS = &qos
	}

	claim := types.ProofClaim{
		Kind:        kind,
		TaskID:      e.TaskID,
		Nullifier:   e.Nullifier,
		Height:      e.Height,
		ProviderID:  e.ProviderID,
		WorkUnits:   units,
	}
	return metrics, claim, nil
}

// RoundUp is exported for callers that need the same ceil-division rule
// outside unit derivation (e.g. reporting partial-unit proofs).
func RoundUp(n, d uint64) uint64 { return ceilDiv(n, d) }

// clampUnit clamps v into [0,1].
func clampUnit(v float64) float64 { return math.Min(1, math.Max(0, v)) }
