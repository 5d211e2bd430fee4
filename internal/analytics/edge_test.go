package analytics

import (
	"math"
	"testing"

	"github.com/shritish20/volguard/pkg/models"
)

func edgeTestChain(atmIV float64) *models.OptionChain {
	return &models.OptionChain{Rows: []models.ChainRow{
		{Strike: 23900, CallIV: atmIV + 0.5, PutIV: atmIV + 0.5},
		{Strike: 24000, CallIV: atmIV, PutIV: atmIV},
		{Strike: 24100, CallIV: atmIV + 0.3, PutIV: atmIV + 0.3},
	}}
}

func TestDetectEdgePriorityChain(t *testing.T) {
	engine := NewEdgeEngine()
	spot := 24010.0

	t.Run("cheap vol wins over rich premium", func(t *testing.T) {
		// IVP below the floor takes priority even with a huge weekly VRP.
		vol := models.VolMetrics{IVPercentile1Y: 15, Parkinson7: 5, RealizedVol7: 5, GARCH7: 5}
		m := engine.Detect(edgeTestChain(20), edgeTestChain(21), spot, vol)
		if m.Primary != models.EdgeLongVol {
			t.Errorf("Primary = %s, want LONG_VOL", m.Primary)
		}
	})

	t.Run("rich weekly premium", func(t *testing.T) {
		vol := models.VolMetrics{IVPercentile1Y: 50, Parkinson7: 10}
		m := engine.Detect(edgeTestChain(15), edgeTestChain(15.5), spot, vol)
		if m.Primary != models.EdgeShortVol {
			t.Errorf("Primary = %s, want SHORT_VOL (vrp=%v)", m.Primary, m.VRPParkinsonW)
		}
	})

	t.Run("backwardation", func(t *testing.T) {
		vol := models.VolMetrics{IVPercentile1Y: 50, Parkinson7: 15}
		m := engine.Detect(edgeTestChain(17), edgeTestChain(15), spot, vol)
		if m.Primary != models.EdgeCalendar {
			t.Errorf("Primary = %s, want CALENDAR (term=%v)", m.Primary, m.TermStructure)
		}
	})

	t.Run("no edge", func(t *testing.T) {
		vol := models.VolMetrics{IVPercentile1Y: 50, Parkinson7: 14}
		m := engine.Detect(edgeTestChain(15), edgeTestChain(15.5), spot, vol)
		if m.Primary != models.EdgeNone {
			t.Errorf("Primary = %s, want NONE", m.Primary)
		}
	})
}

func TestDetectEdgeMetrics(t *testing.T) {
	engine := NewEdgeEngine()
	vol := models.VolMetrics{
		IVPercentile1Y: 50,
		RealizedVol7:   12, RealizedVol28: 13,
		GARCH7: 12.5, GARCH28: 13.5,
		Parkinson7: 11, Parkinson28: 12,
	}

	m := engine.Detect(edgeTestChain(16), edgeTestChain(17), 24010, vol)

	if math.Abs(m.IVWeekly-16) > 1e-9 {
		t.Errorf("IVWeekly = %v, want 16 (ATM strike)", m.IVWeekly)
	}
	if math.Abs(m.TermStructure-1) > 1e-9 {
		t.Errorf("TermStructure = %v, want 1", m.TermStructure)
	}
	if math.Abs(m.VRPRealizedW-4) > 1e-9 {
		t.Errorf("VRPRealizedW = %v, want 4", m.VRPRealizedW)
	}
	if math.Abs(m.VRPParkinsonW-5) > 1e-9 {
		t.Errorf("VRPParkinsonW = %v, want 5", m.VRPParkinsonW)
	}
}

func TestDetectEdgeMissingChains(t *testing.T) {
	engine := NewEdgeEngine()
	vol := models.VolMetrics{IVPercentile1Y: 50}

	m := engine.Detect(nil, nil, 24000, vol)

	if !m.IsFallback {
		t.Error("expected fallback flag when chains missing")
	}
	if m.Primary != models.EdgeNone {
		t.Errorf("Primary = %s, want NONE", m.Primary)
	}
}
