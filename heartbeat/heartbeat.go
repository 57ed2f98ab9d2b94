// Package heartbeat implements the liveness-ping-driven health score and
// status derivation: exponential time decay on read, EMA impulses on ping.
package heartbeat

import (
	"math"
	"sync"

	"aicf/core/types"
)

// Status is the derived liveness status of a provider.
type Status string

const (
	StatusHealthy     Status = "HEALTHY"
	StatusDegraded    Status = "DEGRADED"
	StatusUnresponsive Status = "UNRESPONSIVE"
)

// Config parameterizes score decay, ping impulses, and status thresholds.
type Config struct {
	HalflifeMillis    int64
	AscRate           float64
	LatencyTargetMs    float64
	LatencyToleranceMs float64
	PenaltyBase        float64
	PenaltyPerConsec   float64
	PenaltyCap         float64
	StaleTimeoutMillis int64
	MaxConsecFailures  int
	DownThreshold      float64
	DegradeThreshold   float64
}

// DefaultConfig returns the reference tuning used by AICF's production
// deployment profile.
func DefaultConfig() Config {
	return Config{
		HalflifeMillis:     5 * 60 * 1000,
		AscRate:            0.2,
		LatencyTargetMs:    250,
		LatencyToleranceMs: 1000,
		PenaltyBase:        0.1,
		PenaltyPerConsec:   0.05,
		PenaltyCap:         0.9,
		StaleTimeoutMillis: 2 * 60 * 1000,
		MaxConsecFailures:  5,
		DownThreshold:      0.2,
		DegradeThreshold:   0.5,
	}
}

// State is the per-provider heartbeat bookkeeping.
type State struct {
	LastSeen           types.UnixMillis
	Score              float64
	SuccessEMA         float64
	LatencyEMA         float64
	ConsecutiveFailures int
	LastStatus         Status

	decayedAt types.UnixMillis // time up to which Score has been decayed
}

// StatusHook is invoked whenever a provider's derived status changes.
type StatusHook func(providerID types.HexID, status Status)

// Monitor tracks heartbeat state for every provider, applying decay and
// deriving HEALTHY/DEGRADED/UNRESPONSIVE status.
type Monitor struct {
	mu     sync.Mutex
	cfg    Config
	hook   StatusHook
	states map[types.HexID]*State
}

// New constructs a Monitor. hook may be nil.
func New(cfg Config, hook StatusHook) *Monitor {
	return &Monitor{cfg: cfg, hook: hook, states: make(map[types.HexID]*State)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (m *Monitor) decay(s *State, now types.UnixMillis) {
	if m.cfg.HalflifeMillis <= 0 {
		return
	}
	dt := now.Sub(s.decayedAt)
	if dt <= 0 {
		return
	}
	factor := math.Pow(0.5, float64(dt)/float64(m.cfg.HalflifeMillis))
	s.Score *= factor
	s.decayedAt = now
}

// stateFor returns (creating if needed) the state for a provider, applying
// decay for the time elapsed since the last decay up to the provided "now"
// without mutating LastSeen.
func (m *Monitor) stateFor(id types.HexID, now types.UnixMillis) *State {
	s, ok := m.states[id]
	if !ok {
		s = &State{Score: 1.0, LastSeen: now, LastStatus: StatusHealthy, decayedAt: now}
		m.states[id] = s
		return s
	}
	m.decay(s, now)
	return s
}

// Ping records a liveness observation. ok indicates a successful probe;
// latencyMs is ignored on failure.
func (m *Monitor) Ping(id types.HexID, ok bool, latencyMs float64, now types.UnixMillis) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(id, now)
	if ok {
		s.ConsecutiveFailures = 0
		over := latencyMs - m.cfg.LatencyTargetMs
		if over < 0 {
			over = 0
		}
		l := 1 - over/m.cfg.LatencyToleranceMs
		if l < 0 {
			l = 0
		}
		impulse := 0.5 + 0.5*l
		s.Score += m.cfg.AscRate * (1 - s.Score) * impulse
	} else {
		s.ConsecutiveFailures++
		penalty := clamp(m.cfg.PenaltyBase+m.cfg.PenaltyPerConsec*float64(s.ConsecutiveFailures-1), 0, m.cfg.PenaltyCap)
		s.Score *= 1 - penalty
	}
	s.Score = clamp(s.Score, 0, 1)
	s.LastSeen = now

	status := m.derive(s, now, false)
	m.applyStatus(id, s, status)
	return status
}

// Observe returns the current derived status without recording a ping,
// applying only time decay and staleness.
func (m *Monitor) Observe(id types.HexID, now types.UnixMillis) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(id, now)
	status := m.derive(s, now, true)
	m.applyStatus(id, s, status)
	return status
}

func (m *Monitor) derive(s *State, now types.UnixMillis, staleCheckOnly bool) Status {
	stale := m.cfg.StaleTimeoutMillis > 0 && now.Sub(s.LastSeen) > m.cfg.StaleTimeoutMillis
	if stale {
		if s.ConsecutiveFailures >= m.cfg.MaxConsecFailures || s.Score <= m.cfg.DownThreshold {
			return StatusUnresponsive
		}
		return StatusDegraded
	}
	if s.Score <= m.cfg.DownThreshold {
		return StatusUnresponsive
	}
	if s.Score <= m.cfg.DegradeThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (m *Monitor) applyStatus(id types.HexID, s *State, status Status) {
	changed := s.LastStatus != status
	s.LastStatus = status
	if changed && m.hook != nil {
		m.hook(id, status)
	}
}

// Score returns the current (decayed) health score in [0,1].
func (m *Monitor) Score(id types.HexID, now types.UnixMillis) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stateFor(id, now)
	return s.Score
}
