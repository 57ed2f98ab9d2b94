// Package slash implements the slash engine: per-provider violation
// windows, stake penalties routed through the treasury ledger, and
// cooldown-based jailing.
package slash

import (
	"sync"

	"aicf/core/events"
	"aicf/core/types"
	"aicf/registry"
	"aicf/treasury"
)

// Config parameterizes penalty sizing and jail thresholds.
type Config struct {
	BaseBps    uint64
	MinSlash   uint64
	MaxSlash   uint64
	WindowMs   int64
	JailAfter  int
	JailBlocks types.Height
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type providerState struct {
	violations []types.UnixMillis
	jailed     bool
}

// Engine applies SLA violations as stake penalties and jail transitions.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	registry *registry.Registry
	ledger   *treasury.Ledger
	emitter  events.Emitter
	states   map[types.HexID]*providerState
}

// New constructs an Engine.
func New(cfg Config, reg *registry.Registry, ledger *treasury.Ledger, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{cfg: cfg, registry: reg, ledger: ledger, emitter: emitter, states: make(map[types.HexID]*providerState)}
}

func (e *Engine) stateFor(id types.HexID) *providerState {
	s, ok := e.states[id]
	if !ok {
		s = &providerState{}
		e.states[id] = s
	}
	return s
}

func pruneOlderThan(window []types.UnixMillis, now types.UnixMillis, windowMs int64) []types.UnixMillis {
	out := window[:0]
	for _, ts := range window {
		if now.Sub(ts) <= windowMs {
			out = append(out, ts)
		}
	}
	return out
}

// SlashEvent is the structured record emitted for every penalty decision.
type SlashEvent struct {
	ProviderID         types.HexID
	Amount             uint64
	Reason             string
	NewStake           uint64
	Jailed             bool
	ViolationsInWindow int
	Millis             int64
}

// RecordViolation applies a penalty, appends to the sliding window, and
// jails the provider once the window reaches JailAfter entries. While
// jailed and before height reaches the jail-until height, violations are
// no-ops.
func (e *Engine) RecordViolation(providerID types.HexID, reason string, severity float64, stake uint64, height types.Height, now types.UnixMillis) (SlashEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stateFor(providerID)
	if s.jailed {
		p, err := e.registry.Get(providerID)
		if err == nil && height < p.JailUntilHeight {
			return SlashEvent{ProviderID: providerID, Jailed: true, ViolationsInWindow: len(s.violations), Millis: int64(now)}, nil
		}
	}

	amount := clamp(uint64(float64(stake*e.cfg.BaseBps/10_000)*severity), e.cfg.MinSlash, e.cfg.MaxSlash)
	if amount > stake {
		amount = stake
	}

	newStake, err := e.registry.Slash(providerID, amount)
	if err != nil {
		return SlashEvent{}, err
	}
	if err := e.ledger.Slash(providerID, amount, height); err != nil {
		return SlashEvent{}, err
	}

	s.violations = append(s.violations, now)
	s.violations = pruneOlderThan(s.violations, now, e.cfg.WindowMs)

	jailed := s.jailed
	if len(s.violations) >= e.cfg.JailAfter && !s.jailed {
		s.jailed = true
		jailed = true
		if err := e.registry.Jail(providerID, height+e.cfg.JailBlocks); err != nil {
			return SlashEvent{}, err
		}
	}

	evt := SlashEvent{
		ProviderID: providerID, Amount: amount, Reason: reason, NewStake: newStake,
		Jailed: jailed, ViolationsInWindow: len(s.violations), Millis: int64(now),
	}
	penalty := amount
	e.emitter.Emit(events.Slashed{ProviderID: string(providerID), Reason: reason, Penalty: &penalty, Jailed: jailed, Millis: int64(now)})
	return evt, nil
}

// RecordGoodWindow clears jail status once a provider has served a passing
// SLA window at or after its cooldown height, resetting the violation
// window.
func (e *Engine) RecordGoodWindow(providerID types.HexID, height types.Height) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stateFor(providerID)
	if !s.jailed {
		return nil
	}
	p, err := e.registry.Get(providerID)
	if err != nil {
		return err
	}
	if height < p.JailUntilHeight {
		return nil
	}
	s.jailed = false
	s.violations = nil
	return e.registry.Unjail(providerID)
}
