package pricing

import (
	"testing"

	"aicf/core/types"
)

func TestPriceFloorDefault(t *testing.T) {
	reward, err := Price(PriceInput{
		RatePerUnitNano: 2,
		Units:           120,
		SurgeScaled:     Scale,
		QualityScaled:   Scale,
	})
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if reward != 240 {
		t.Fatalf("expected reward 240, got %d", reward)
	}
}

func TestPriceNonDecreasingInUnits(t *testing.T) {
	prev := uint64(0)
	for units := uint64(0); units < 50; units++ {
		reward, err := Price(PriceInput{RatePerUnitNano: 5, Units: units, SurgeScaled: Scale, QualityScaled: Scale})
		if err != nil {
			t.Fatalf("price: %v", err)
		}
		if reward < prev {
			t.Fatalf("price decreased at units=%d: %d < %d", units, reward, prev)
		}
		prev = reward
	}
}

func TestPriceMinRewardClamp(t *testing.T) {
	min := uint64(100)
	reward, err := Price(PriceInput{RatePerUnitNano: 1, Units: 1, SurgeScaled: Scale, QualityScaled: Scale, MinReward: &min})
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if reward != min {
		t.Fatalf("expected min reward clamp to %d, got %d", min, reward)
	}
}

func TestPriceHardCapBreach(t *testing.T) {
	max := uint64(10)
	_, err := Price(PriceInput{RatePerUnitNano: 100, Units: 10, SurgeScaled: Scale, QualityScaled: Scale, MaxReward: &max})
	if err != ErrHardCapBreach {
		t.Fatalf("expected ErrHardCapBreach, got %v", err)
	}
}

func TestPriceRoundingModes(t *testing.T) {
	in := PriceInput{RatePerUnitNano: 3, Units: 1, SurgeScaled: Scale / 2, QualityScaled: Scale}
	in.Rounding = RoundFloor
	floor, err := Price(in)
	if err != nil {
		t.Fatalf("floor: %v", err)
	}
	in.Rounding = RoundCeil
	ceil, err := Price(in)
	if err != nil {
		t.Fatalf("ceil: %v", err)
	}
	if ceil < floor {
		t.Fatalf("ceil %d should be >= floor %d", ceil, floor)
	}
}

// TestSplitConservation: for any total and a rule whose bps sum to
// 10_000, p+t+m == total, each share is non-negative, and no single share
// exceeds the total.
func TestSplitConservation(t *testing.T) {
	rule := DefaultSplit(types.JobKindAI)
	for total := uint64(0); total < 10_003; total += 37 {
		p, tr, m, err := Split(total, rule)
		if err != nil {
			t.Fatalf("split: %v", err)
		}
		if p+tr+m != total {
			t.Fatalf("split conservation broken at total=%d: %d+%d+%d != %d", total, p, tr, m, total)
		}
		if p > total || tr > total || m > total {
			t.Fatalf("split share exceeds total at total=%d", total)
		}
	}
}

func TestSplitResidualToProvider(t *testing.T) {
	// 240 split 85/10/5 lands exactly on 204/24/12 with no residue.
	p, tr, m, err := Split(240, DefaultSplit(types.JobKindAI))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if p+tr+m != 240 {
		t.Fatalf("conservation: %d+%d+%d != 240", p, tr, m)
	}
	if tr != 24 || m != 12 {
		t.Fatalf("expected treasury=24 miner=12, got treasury=%d miner=%d", tr, m)
	}
}

func TestSplitQuantumDefault(t *testing.T) {
	p, tr, m, err := Split(75, DefaultSplit(types.JobKindQuantum))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if p != 61 || tr != 11 || m != 3 {
		t.Fatalf("expected 61/11/3, got %d/%d/%d", p, tr, m)
	}
}

func TestSplitInvalidBps(t *testing.T) {
	_, _, _, err := Split(100, types.SplitRule{ProviderBps: 9000, TreasuryBps: 500, MinerBps: 400})
	if err != ErrInvalidSplit {
		t.Fatalf("expected ErrInvalidSplit, got %v", err)
	}
}

func TestSplitResidualToTreasury(t *testing.T) {
	rule := types.SplitRule{ProviderBps: 3334, TreasuryBps: 3333, MinerBps: 3333, ResidualTo: "treasury"}
	p, tr, m, err := Split(100, rule)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if p+tr+m != 100 {
		t.Fatalf("conservation broken: %d+%d+%d", p, tr, m)
	}
	if tr <= 33 {
		t.Fatalf("expected residual routed to treasury, got treasury=%d", tr)
	}
}

func TestSplitDeterministicRepeat(t *testing.T) {
	rule := DefaultSplit(types.JobKindAI)
	p1, t1, m1, _ := Split(999, rule)
	p2, t2, m2, _ := Split(999, rule)
	if p1 != p2 || t1 != t2 || m1 != m2 {
		t.Fatalf("split is not deterministic across repeated calls")
	}
}

// TestPriceLargeMagnitudes pins the path where rate*units*Scale² exceeds
// uint64: the 256-bit intermediate must come back exact, not wrapped.
func TestPriceLargeMagnitudes(t *testing.T) {
	cases := []struct {
		rate, units, want uint64
	}{
		{2, 120, 240},
		{1_000_000_000, 1_000_000, 1_000_000_000_000_000},
		{5_000_000_000, 2_000_000_000, 10_000_000_000_000_000_000},
	}
	for _, c := range cases {
		reward, err := Price(PriceInput{RatePerUnitNano: c.rate, Units: c.units, SurgeScaled: Scale, QualityScaled: Scale})
		if err != nil {
			t.Fatalf("price rate=%d units=%d: %v", c.rate, c.units, err)
		}
		if reward != c.want {
			t.Fatalf("rate=%d units=%d: expected %d, got %d", c.rate, c.units, reward, c.want)
		}
	}
}

func TestPriceRewardOverflow(t *testing.T) {
	// rate*units alone exceeds uint64; the reward cannot be represented.
	_, err := Price(PriceInput{RatePerUnitNano: 1 << 63, Units: 4, SurgeScaled: Scale, QualityScaled: Scale})
	if err != ErrRewardOverflow {
		t.Fatalf("expected ErrRewardOverflow, got %v", err)
	}
}

func TestSplitLargeTotalConservation(t *testing.T) {
	total := uint64(1) << 63 // total*bps would wrap a uint64 intermediate
	p, tr, m, err := Split(total, DefaultSplit(types.JobKindQuantum))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if p+tr+m != total {
		t.Fatalf("conservation broken at total=%d: %d+%d+%d", total, p, tr, m)
	}
	if p < tr || p < m {
		t.Fatalf("provider share should dominate: %d/%d/%d", p, tr, m)
	}
}
