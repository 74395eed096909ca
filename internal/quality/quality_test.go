package quality

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/gfxlab/internal/capability"
)

func highSnap() capability.Snapshot {
	return capability.Snapshot{Tier: capability.TierHigh, SupportsAdvancedShaders: true, PixelRatio: 2, MaxTextureSize: 8192}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBaseline(t *testing.T) {
	tests := []struct {
		name  string
		snap  capability.Snapshot
		level Level
		prims int
		ratio float64
		fps   int
	}{
		{"high", highSnap(), LevelHigh, 2000, 2.0, 60},
		{"high on 1x display", capability.Snapshot{Tier: capability.TierHigh, PixelRatio: 1}, LevelHigh, 2000, 1.0, 60},
		{"medium", capability.Snapshot{Tier: capability.TierMedium, PixelRatio: 3}, LevelMedium, 800, 1.5, 60},
		{"conservative", capability.Conservative(), LevelLow, 200, 1.0, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Baseline(tt.snap, 0)
			if s.Level != tt.level || s.MaxPrimitives != tt.prims || s.PixelRatioCap != tt.ratio || s.TargetFPS != tt.fps {
				t.Errorf("got %s", s)
			}
		})
	}
}

func TestAtRung_LadderOrder(t *testing.T) {
	base := Baseline(highSnap(), 0)

	steps := []struct {
		rung    int
		shadows bool
		ratio   float64
		prims   int
		aa      bool
		level   Level
	}{
		{0, true, 2.0, 2000, true, LevelHigh},
		{1, false, 2.0, 2000, true, LevelHigh},
		{2, false, 1.0, 2000, true, LevelMedium},
		{3, false, 1.0, 1000, true, LevelMedium},
		{4, false, 1.0, 1000, false, LevelLow},
		{9, false, 1.0, 1000, false, LevelLow},
	}
	for _, st := range steps {
		s := AtRung(base, st.rung)
		if s.ShadowsEnabled != st.shadows || s.PixelRatioCap != st.ratio ||
			s.MaxPrimitives != st.prims || s.Antialiasing != st.aa || s.Level != st.level {
			t.Errorf("rung %d: got %s", st.rung, s)
		}
	}
}

func TestPolicy_DegradesWithinThree(t *testing.T) {
	p := NewPolicy(highSnap(), Thresholds{})
	slow := p.Current().FrameBudgetMs() * 2

	for i := 0; i < 2; i++ {
		if _, changed := p.Observe(slow); changed {
			t.Fatalf("degraded after %d samples", i+1)
		}
	}
	s, changed := p.Observe(slow)
	if !changed || s.Rung != 1 || s.ShadowsEnabled {
		t.Errorf("expected rung 1 after 3 slow samples, got %s", s)
	}
}

func TestPolicy_InterruptedStreakDoesNotDegrade(t *testing.T) {
	p := NewPolicy(highSnap(), Thresholds{})
	budget := p.Current().FrameBudgetMs()
	for _, ms := range []float64{budget * 2, budget * 2, budget, budget * 2, budget * 2} {
		p.Observe(ms)
	}
	if p.Current().Rung != 0 {
		t.Errorf("rung = %d, want 0", p.Current().Rung)
	}
}

func TestPolicy_NoUpgradeBeforeTen(t *testing.T) {
	p := NewPolicy(highSnap(), Thresholds{})
	budget := p.Current().FrameBudgetMs()
	for i := 0; i < 6; i++ {
		p.Observe(budget * 2)
	}
	if p.Current().Rung != 2 {
		t.Fatalf("rung = %d, want 2", p.Current().Rung)
	}

	fast := budget * 0.5
	for i := 0; i < 9; i++ {
		if _, changed := p.Observe(fast); changed {
			t.Fatalf("upgraded after %d samples", i+1)
		}
	}
	s, changed := p.Observe(fast)
	if !changed || s.Rung != 1 {
		t.Errorf("expected rung 1 after 10 fast samples, got %s", s)
	}
}

func TestPolicy_IgnoresBadSamples(t *testing.T) {
	p := NewPolicy(highSnap(), Thresholds{})
	slow := p.Current().FrameBudgetMs() * 2
	p.Observe(slow)
	p.Observe(slow)
	p.Observe(math.NaN())
	p.Observe(-1)
	if s, _ := p.Observe(slow); s.Rung != 1 {
		t.Errorf("bad samples should not break the streak, rung = %d", s.Rung)
	}
}

func TestPolicy_Rebase(t *testing.T) {
	p := NewPolicy(highSnap(), Thresholds{})
	s := p.Rebase(capability.Conservative())
	if s.Level != LevelLow || s.MaxPrimitives != 200 {
		t.Errorf("rebase: got %s", s)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	snaps := []capability.Snapshot{highSnap(), {Tier: capability.TierMedium, PixelRatio: 1.25}, capability.Conservative()}

	for trial := 0; trial < 200; trial++ {
		snap := snaps[trial%len(snaps)]
		hist := make([]float64, rng.Intn(60))
		for i := range hist {
			hist[i] = rng.Float64() * 80
		}
		a := Derive(snap, hist)
		b := Derive(snap, hist)
		if a != b {
			t.Fatalf("trial %d: %s != %s", trial, a, b)
		}
	}
}

// Random histories: a rung change up never happens unless the last ten
// samples were all under budget, and three over-budget samples at rung 0
// always degrade.
func TestDerive_HysteresisProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	th := DefaultThresholds()

	for trial := 0; trial < 300; trial++ {
		p := NewPolicy(highSnap(), th)
		budget := p.Current().FrameBudgetMs()
		var hist []float64
		for i := 0; i < 80; i++ {
			ms := budget * (0.3 + rng.Float64()*2)
			before := p.Current().Rung
			s, _ := p.Observe(ms)
			hist = append(hist, ms)

			if s.Rung < before {
				if len(hist) < th.UpgradeAfter {
					t.Fatalf("upgrade after only %d samples", len(hist))
				}
				for _, h := range hist[len(hist)-th.UpgradeAfter:] {
					if h >= budget*th.UpgradeFactor {
						t.Fatalf("upgrade with a non-fast sample in the last %d", th.UpgradeAfter)
					}
				}
			}
			if n := len(hist); before < MaxRung && n >= 3 && s.Rung == before {
				last := hist[n-3:]
				if last[0] > budget*1.5 && last[1] > budget*1.5 && last[2] > budget*1.5 && n == 3 {
					t.Fatalf("no degrade after three slow samples")
				}
			}
		}
	}
}

func TestDerive_EmptyHistoryIsBaseline(t *testing.T) {
	if Derive(highSnap(), nil) != Baseline(highSnap(), 0) {
		t.Error("empty history should yield the baseline")
	}
}
