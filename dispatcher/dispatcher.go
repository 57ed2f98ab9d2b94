// Package dispatcher implements the cooperative single-tick scheduling
// loop: the assignment engine and TTL/retry sweeps run sequentially over an
// atomic storage layer each tick, with bounded jitter between ticks and a
// stop channel honored between (never mid-) ticks.
package dispatcher

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"aicf/assignment"
	"aicf/core/types"
)

// Config parameterizes tick cadence.
type Config struct {
	TickInterval   time.Duration
	IdleSleep      time.Duration
	JitterFraction float64
	LeaseSweepEvery int // not read by Run; every Tick already starts with the expire sweep
}

// PassObserver receives per-tick assignment metrics; nil disables recording.
type PassObserver func(d time.Duration, leasesByKind map[string]int)

// Dispatcher runs the assignment engine's Tick in a cooperative loop.
type Dispatcher struct {
	cfg      Config
	engine   *assignment.Engine
	log      *slog.Logger
	rng      *rand.Rand
	stop     chan struct{}
	epoch    func() uint64
	clock    func() types.UnixMillis
	observe  PassObserver
}

// New constructs a Dispatcher. epochFn and clockFn let callers supply
// deterministic clocks in tests.
func New(cfg Config, engine *assignment.Engine, log *slog.Logger, epochFn func() uint64, clockFn func() types.UnixMillis) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		cfg: cfg, engine: engine, log: log,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		stop: make(chan struct{}), epoch: epochFn, clock: clockFn,
	}
}

// SetPassObserver installs a callback invoked after every tick with the
// pass's wall-clock duration and per-kind lease counts, letting callers wire
// it to a Prometheus histogram without the dispatcher importing metrics
// directly.
func (d *Dispatcher) SetPassObserver(observe PassObserver) { d.observe = observe }

// Stop signals the run loop to exit after its current tick.
func (d *Dispatcher) Stop() { close(d.stop) }

func (d *Dispatcher) jittered(base time.Duration) time.Duration {
	if d.cfg.JitterFraction <= 0 {
		return base
	}
	delta := float64(base) * d.cfg.JitterFraction * (d.rng.Float64()*2 - 1)
	next := time.Duration(float64(base) + delta)
	if next < 0 {
		next = 0
	}
	return next
}

// Run executes the cooperative loop until ctx is cancelled or Stop is
// called. Unexpected tick errors are logged and the loop continues — the
// dispatcher never aborts the process.
func (d *Dispatcher) Run(ctx context.Context) {
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		default:
		}

		now := d.clock()
		start := time.Now()
		result, err := d.engine.Tick(ctx, now, d.epoch())
		if err != nil {
			d.log.Error("dispatcher tick failed", "error", err)
		}
		if d.observe != nil {
			d.observe(time.Since(start), result.AssignedByKind)
		}
		ticks++

		sleep := d.cfg.IdleSleep
		if len(result.Assignments) > 0 || result.Expired.TTLExpired > 0 || result.Expired.LeasesRequeued > 0 {
			sleep = d.cfg.TickInterval
		}
		sleep = d.jittered(sleep)

		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-time.After(sleep):
		}
	}
}
