package analytics

import (
	"math"
	"testing"

	"github.com/shritish20/volguard/pkg/models"
)

func TestAnalyzeStructureNeutralFallbacks(t *testing.T) {
	engine := NewStructureEngine()

	t.Run("empty chain", func(t *testing.T) {
		m := engine.Analyze(&models.OptionChain{}, 24000, 50)
		if !m.IsFallback {
			t.Error("expected fallback flag on empty chain")
		}
		if m.GammaRegime != models.GammaNeutral || m.Directional != models.DirectionNeutral {
			t.Errorf("expected neutral regimes, got %s/%s", m.GammaRegime, m.Directional)
		}
	})

	t.Run("zero spot", func(t *testing.T) {
		chain := &models.OptionChain{Rows: []models.ChainRow{{Strike: 24000}}}
		m := engine.Analyze(chain, 0, 50)
		if !m.IsFallback || m.GammaRegime != models.GammaNeutral {
			t.Errorf("expected neutral fallback for zero spot, got %+v", m)
		}
	})
}

func TestGammaRegimeClassification(t *testing.T) {
	engine := NewStructureEngine()
	spot := 24000.0

	// One strike inside the ±10% window with gamma exposure large enough
	// to cross the threshold: gamma×OI×spot×lot.
	makeChain := func(callGamma, callOI, putGamma, putOI float64) *models.OptionChain {
		return &models.OptionChain{Rows: []models.ChainRow{
			{Strike: spot, CallGamma: callGamma, CallOI: callOI, PutGamma: putGamma, PutOI: putOI, CallIV: 13, PutIV: 13},
		}}
	}

	t.Run("sticky", func(t *testing.T) {
		m := engine.Analyze(makeChain(0.002, 200000, 0, 0), spot, 50)
		if m.GammaRegime != models.GammaSticky {
			t.Errorf("GammaRegime = %s, want STICKY (gex=%v)", m.GammaRegime, m.NetGammaExposure)
		}
	})

	t.Run("slippery", func(t *testing.T) {
		m := engine.Analyze(makeChain(0, 0, 0.002, 200000), spot, 50)
		if m.GammaRegime != models.GammaSlippery {
			t.Errorf("GammaRegime = %s, want SLIPPERY (gex=%v)", m.GammaRegime, m.NetGammaExposure)
		}
	})

	t.Run("neutral", func(t *testing.T) {
		m := engine.Analyze(makeChain(0.0001, 1000, 0.0001, 1000), spot, 50)
		if m.GammaRegime != models.GammaNeutral {
			t.Errorf("GammaRegime = %s, want NEUTRAL (gex=%v)", m.GammaRegime, m.NetGammaExposure)
		}
	})

	t.Run("strikes outside window ignored", func(t *testing.T) {
		chain := &models.OptionChain{Rows: []models.ChainRow{
			{Strike: spot * 1.2, CallGamma: 0.01, CallOI: 1e7},
		}}
		m := engine.Analyze(chain, spot, 50)
		if m.NetGammaExposure != 0 {
			t.Errorf("NetGammaExposure = %v, want 0 for out-of-window strike", m.NetGammaExposure)
		}
	})
}

func TestMaxPain(t *testing.T) {
	// Heavy OI at 24000 both sides pins max pain there.
	rows := []models.ChainRow{
		{Strike: 23900, CallOI: 1000, PutOI: 500},
		{Strike: 24000, CallOI: 8000, PutOI: 9000},
		{Strike: 24100, CallOI: 1200, PutOI: 400},
	}

	if got := maxPain(rows); got != 24000 {
		t.Errorf("maxPain = %v, want 24000", got)
	}

	if got := maxPain(nil); got != 0 {
		t.Errorf("maxPain(nil) = %v, want 0", got)
	}
}

func TestPutCallRatio(t *testing.T) {
	rows := []models.ChainRow{
		{CallOI: 1000, PutOI: 1200},
		{CallOI: 500, PutOI: 600},
	}
	if got := putCallRatio(rows); math.Abs(got-1.2) > 1e-9 {
		t.Errorf("putCallRatio = %v, want 1.2", got)
	}

	if got := putCallRatio([]models.ChainRow{{PutOI: 100}}); got != 0 {
		t.Errorf("putCallRatio with zero call OI = %v, want 0", got)
	}
}

func TestSkew25Delta(t *testing.T) {
	rows := []models.ChainRow{
		{Strike: 23800, CallDelta: 0.60, CallIV: 12.0, PutDelta: -0.40, PutIV: 13.0},
		{Strike: 24200, CallDelta: 0.26, CallIV: 12.5, PutDelta: -0.74, PutIV: 14.0},
		{Strike: 23600, CallDelta: 0.80, CallIV: 11.8, PutDelta: -0.24, PutIV: 14.2},
	}

	// Nearest 25d call is the 0.26 delta (IV 12.5), nearest 25d put is the
	// -0.24 delta (IV 14.2).
	want := 14.2 - 12.5
	if got := skew25Delta(rows); math.Abs(got-want) > 1e-9 {
		t.Errorf("skew25Delta = %v, want %v", got, want)
	}

	if got := skew25Delta(nil); got != 0 {
		t.Errorf("skew25Delta(nil) = %v, want 0", got)
	}
}
