package analytics

import (
	"math"
	"testing"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

func newTestRegimeEngine() *RegimeEngine {
	return NewRegimeEngine(&config.CapitalConfig{
		BaseCapital:      1_000_000,
		MarginSellPerLot: 120_000,
	})
}

func TestVolScoreKillSwitch(t *testing.T) {
	// Any z-score above the crash threshold must floor the component to
	// exactly zero regardless of other inputs.
	cases := []models.VolMetrics{
		{VolOfVolZScore: 2.6},
		{VolOfVolZScore: 3.0, IVPercentile1Y: 85},
		{VolOfVolZScore: 10.0, IVPercentile1Y: 50},
	}

	for _, vol := range cases {
		if got := volScore(vol); got != 0 {
			t.Errorf("volScore(z=%.1f, ivp=%.0f) = %v, want 0", vol.VolOfVolZScore, vol.IVPercentile1Y, got)
		}
	}
}

func TestVolScoreStability(t *testing.T) {
	t.Run("calm regime rewarded", func(t *testing.T) {
		vol := models.VolMetrics{VolOfVolZScore: 1.0, IVPercentile1Y: 50}
		// 5.0 + 1.5 (calm) + 1.0 (sweet spot) = 7.5
		if got := volScore(vol); math.Abs(got-7.5) > 1e-9 {
			t.Errorf("volScore = %v, want 7.5", got)
		}
	})

	t.Run("warning band penalized", func(t *testing.T) {
		vol := models.VolMetrics{VolOfVolZScore: 2.2, IVPercentile1Y: 50}
		// 5.0 - 3.0 + 1.0 = 3.0
		if got := volScore(vol); math.Abs(got-3.0) > 1e-9 {
			t.Errorf("volScore = %v, want 3.0", got)
		}
	})

	t.Run("cheap vol penalized", func(t *testing.T) {
		vol := models.VolMetrics{VolOfVolZScore: 1.0, IVPercentile1Y: 10}
		// 5.0 + 1.5 - 2.5 = 4.0
		if got := volScore(vol); math.Abs(got-4.0) > 1e-9 {
			t.Errorf("volScore = %v, want 4.0", got)
		}
	})
}

func TestCompositeWeightedSum(t *testing.T) {
	engine := newTestRegimeEngine()

	vol := models.VolMetrics{VolOfVolZScore: 1.0, IVPercentile1Y: 50}
	st := models.StructMetrics{GammaRegime: models.GammaSticky, PutCallRatio: 1.0}
	ed := models.EdgeMetrics{Primary: models.EdgeShortVol}
	ext := &models.ExternalMetrics{Flow: models.FlowNeutral, EventRisk: models.EventRiskLow}

	score := engine.Score(vol, st, ed, ext, 5)

	want := 0.40*score.VolScore + 0.30*score.StructScore + 0.20*score.EdgeScore + 0.10*score.RiskScore
	if math.Abs(score.Composite-want) > 1e-9 {
		t.Errorf("Composite = %v, want weighted sum %v", score.Composite, want)
	}
}

func TestKillSwitchDominatesFavorableSignals(t *testing.T) {
	engine := newTestRegimeEngine()

	// Favorable structure and edge, but the instability kill switch fires.
	vol := models.VolMetrics{VolOfVolZScore: 3.0, IVPercentile1Y: 85}
	st := models.StructMetrics{GammaRegime: models.GammaSticky, PutCallRatio: 1.0}
	ed := models.EdgeMetrics{Primary: models.EdgeShortVol}
	ext := &models.ExternalMetrics{Flow: models.FlowNeutral, EventRisk: models.EventRiskLow}

	score := engine.Score(vol, st, ed, ext, 0)

	if score.VolScore != 0 {
		t.Fatalf("VolScore = %v, want 0 (kill switch)", score.VolScore)
	}

	// The zeroed vol component still leaves the composite at
	// 0.3*8.5 + 0.2*7 + 0.1*8 = 4.75, inside the DEFENSIVE band; the
	// mandate override must force CASH anyway.
	if score.Composite < defensiveThreshold {
		t.Fatalf("Composite = %v, scenario no longer exercises the override", score.Composite)
	}

	mandate := engine.Mandate(score, vol, ext, 0)
	if mandate.Regime != RegimeCash {
		t.Errorf("Regime = %s, want CASH under kill switch", mandate.Regime)
	}
	if mandate.Strategy != StrategyCash {
		t.Errorf("Strategy = %s, want CASH", mandate.Strategy)
	}
	if mandate.AllocationPct != 0 {
		t.Errorf("AllocationPct = %v, want 0", mandate.AllocationPct)
	}
	if mandate.MaxLots != 0 {
		t.Errorf("MaxLots = %d, want 0", mandate.MaxLots)
	}
	if len(mandate.Warnings) == 0 {
		t.Error("expected vol-of-vol warning on mandate")
	}
}

func TestNeutralInputsGiveModerateConfidence(t *testing.T) {
	engine := newTestRegimeEngine()

	vol := models.VolMetrics{VolOfVolZScore: 1.7, IVPercentile1Y: 50}
	st := models.StructMetrics{GammaRegime: models.GammaNeutral, PutCallRatio: 1.0}
	ed := models.EdgeMetrics{Primary: models.EdgeNone}
	ext := &models.ExternalMetrics{Flow: models.FlowNeutral, EventRisk: models.EventRiskLow}

	score := engine.Score(vol, st, ed, ext, 5)

	if score.Confidence != models.ConfidenceModerate && score.Confidence != models.ConfidenceHigh {
		t.Errorf("Confidence = %s for neutral inputs, want MODERATE band", score.Confidence)
	}
}

func TestMandateTiers(t *testing.T) {
	engine := newTestRegimeEngine()
	vol := models.VolMetrics{VolOfVolZScore: 1.0}
	ext := &models.ExternalMetrics{Flow: models.FlowNeutral, EventRisk: models.EventRiskLow}

	cases := []struct {
		name       string
		composite  float64
		weeklyDTE  int
		wantRegime string
		wantStrat  string
		wantAlloc  float64
	}{
		{"aggressive", 8.0, 5, RegimeAggressive, StrategyHedgedStrangle, 0.60},
		{"moderate condor", 6.5, 5, RegimeModerate, StrategyIronCondor, 0.40},
		{"moderate fly near expiry", 6.5, 1, RegimeModerate, StrategyIronFly, 0.40},
		{"defensive", 4.5, 5, RegimeDefensive, StrategyPutCreditSpread, 0.20},
		{"cash", 3.0, 5, RegimeCash, StrategyCash, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := engine.Mandate(models.RegimeScore{Composite: tc.composite}, vol, ext, tc.weeklyDTE)
			if m.Regime != tc.wantRegime {
				t.Errorf("Regime = %s, want %s", m.Regime, tc.wantRegime)
			}
			if m.Strategy != tc.wantStrat {
				t.Errorf("Strategy = %s, want %s", m.Strategy, tc.wantStrat)
			}
			if math.Abs(m.AllocationPct-tc.wantAlloc) > 1e-9 {
				t.Errorf("AllocationPct = %v, want %v", m.AllocationPct, tc.wantAlloc)
			}
			if tc.wantAlloc > 0 && m.MaxLots <= 0 {
				t.Errorf("MaxLots = %d, want positive for %v allocation", m.MaxLots, tc.wantAlloc)
			}
		})
	}
}

func TestMandateFallbackOnNonFiniteComposite(t *testing.T) {
	engine := newTestRegimeEngine()

	m := engine.Mandate(models.RegimeScore{Composite: math.NaN()}, models.VolMetrics{}, nil, 5)
	if m.Regime != RegimeFallback {
		t.Errorf("Regime = %s, want %s", m.Regime, RegimeFallback)
	}
	if m.Strategy != StrategyCash || m.AllocationPct != 0 || !m.IsFallback {
		t.Errorf("unexpected fallback mandate: %+v", m)
	}
}
