package slash

import (
	"testing"

	"aicf/core/types"
	"aicf/registry"
	"aicf/treasury"
)

func newEngineWithProvider(t *testing.T, cfg Config, stake uint64) (*Engine, *registry.Registry, types.HexID) {
	t.Helper()
	ledger := treasury.New()
	reg := registry.New(registry.NewMemoryProviderStore(), registry.OpenAllowlist{}, ledger, registry.Config{})
	// RegisterProvider mirrors stake into the ledger itself (Credit then
	// StakeLock), so the treasury account is funded the same way a real
	// provider's stake would be, not via a hand-built fixture.
	_, err := reg.RegisterProvider("prov1", types.WithCapability(0, types.CapabilityAI), nil, true, stake, "")
	if err != nil {
		t.Fatalf("register provider: %v", err)
	}
	return New(cfg, reg, ledger, nil), reg, "prov1"
}

// TestRecordViolationJailsAfterTwoBadWindows: stake 10000, two
// bad windows in the violation window jail the provider with stake reduced
// to at most 8000 (11% of the current stake each time: 10000 -> 8900 -> 7921).
func TestRecordViolationJailsAfterTwoBadWindows(t *testing.T) {
	cfg := Config{BaseBps: 1100, MinSlash: 1, MaxSlash: 1_000_000, WindowMs: 60_000, JailAfter: 2, JailBlocks: 100}
	engine, reg, id := newEngineWithProvider(t, cfg, 10000)

	evt1, err := engine.RecordViolation(id, "sla_breach", 1.0, 10000, 1, 0)
	if err != nil {
		t.Fatalf("first violation: %v", err)
	}
	if evt1.Jailed {
		t.Fatalf("expected first violation to not yet jail the provider")
	}

	evt2, err := engine.RecordViolation(id, "sla_breach", 1.0, evt1.NewStake, 2, 1000)
	if err != nil {
		t.Fatalf("second violation: %v", err)
	}
	if !evt2.Jailed {
		t.Fatalf("expected second violation within window to jail the provider")
	}

	p, err := reg.Get(id)
	if err != nil {
		t.Fatalf("get provider: %v", err)
	}
	if p.Status != types.ProviderJailed {
		t.Fatalf("expected provider status JAILED, got %v", p.Status)
	}
	if p.StakeTotal > 8000 {
		t.Fatalf("expected stake reduced to at most 8000, got %d", p.StakeTotal)
	}
}

func TestRecordViolationWhileJailedIsNoop(t *testing.T) {
	cfg := Config{BaseBps: 1000, MinSlash: 1, MaxSlash: 1_000_000, WindowMs: 60_000, JailAfter: 1, JailBlocks: 1000}
	engine, reg, id := newEngineWithProvider(t, cfg, 10000)

	_, err := engine.RecordViolation(id, "sla_breach", 1.0, 10000, 1, 0)
	if err != nil {
		t.Fatalf("violation: %v", err)
	}
	p, _ := reg.Get(id)
	stakeAfterJail := p.StakeTotal

	// Still within cooldown (height 2 < jail_until=1001): must be a no-op.
	evt, err := engine.RecordViolation(id, "sla_breach", 1.0, stakeAfterJail, 2, 1000)
	if err != nil {
		t.Fatalf("violation during cooldown: %v", err)
	}
	if !evt.Jailed {
		t.Fatalf("expected event to report jailed=true during cooldown")
	}
	p2, _ := reg.Get(id)
	if p2.StakeTotal != stakeAfterJail {
		t.Fatalf("expected no additional slash while jailed and in cooldown: before=%d after=%d", stakeAfterJail, p2.StakeTotal)
	}
}

func TestRecordGoodWindowClearsJailAfterCooldown(t *testing.T) {
	cfg := Config{BaseBps: 1000, MinSlash: 1, MaxSlash: 1_000_000, WindowMs: 60_000, JailAfter: 1, JailBlocks: 100}
	engine, reg, id := newEngineWithProvider(t, cfg, 10000)

	_, err := engine.RecordViolation(id, "sla_breach", 1.0, 10000, 1, 0)
	if err != nil {
		t.Fatalf("violation: %v", err)
	}

	// Before cooldown elapses, RecordGoodWindow must not clear jail.
	if err := engine.RecordGoodWindow(id, 50); err != nil {
		t.Fatalf("good window before cooldown: %v", err)
	}
	p, _ := reg.Get(id)
	if p.Status != types.ProviderJailed {
		t.Fatalf("expected provider to remain jailed before cooldown elapses")
	}

	if err := engine.RecordGoodWindow(id, 200); err != nil {
		t.Fatalf("good window after cooldown: %v", err)
	}
	p, _ = reg.Get(id)
	if p.Status != types.ProviderActive {
		t.Fatalf("expected provider unjailed after cooldown, got %v", p.Status)
	}
}

func TestRecordGoodWindowOnNeverJailedIsNoop(t *testing.T) {
	cfg := Config{BaseBps: 1000, MinSlash: 1, MaxSlash: 1_000_000, WindowMs: 60_000, JailAfter: 5, JailBlocks: 100}
	engine, reg, id := newEngineWithProvider(t, cfg, 10000)
	if err := engine.RecordGoodWindow(id, 10); err != nil {
		t.Fatalf("good window: %v", err)
	}
	p, _ := reg.Get(id)
	if p.Status != types.ProviderActive {
		t.Fatalf("expected status to remain ACTIVE, got %v", p.Status)
	}
}

func TestSlashAmountClampedBetweenMinAndMax(t *testing.T) {
	cfg := Config{BaseBps: 1, MinSlash: 500, MaxSlash: 1000, WindowMs: 60_000, JailAfter: 99, JailBlocks: 100}
	engine, _, id := newEngineWithProvider(t, cfg, 10000)
	evt, err := engine.RecordViolation(id, "minor", 0.01, 10000, 1, 0)
	if err != nil {
		t.Fatalf("violation: %v", err)
	}
	if evt.Amount < 500 || evt.Amount > 1000 {
		t.Fatalf("expected clamped amount in [500,1000], got %d", evt.Amount)
	}
}
