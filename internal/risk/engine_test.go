package risk

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

func riskConfig() *config.RiskConfig {
	return &config.RiskConfig{
		MaxNetDelta:      150,
		DeltaBuffer:      25,
		MaxNetGamma:      5,
		MaxNetVega:       3000,
		MaxPortfolioLoss: 50_000,
	}
}

func testSnapshot(now time.Time) *models.MarketSnapshot {
	return &models.MarketSnapshot{
		Timestamp: now,
		Spot:      24_000,
		VIX:       14,
	}
}

func TestAggregateSigns(t *testing.T) {
	now := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	e := NewEngine(riskConfig())

	positions := []models.Position{
		{
			InstrumentKey: "NIFTY-24000-CE",
			Strike:        24_000,
			Expiry:        now.AddDate(0, 0, 5),
			OptionType:    models.OptionCall,
			Side:          models.SideSell,
			Quantity:      50,
			LotSize:       50,
			AvgPrice:      decimal.NewFromFloat(180),
			CurrentPrice:  decimal.NewFromFloat(150),
			Greeks:        models.Greeks{Delta: 0.5, Gamma: 0.002, Theta: -8, Vega: 18, IV: 0.14},
		},
		{
			InstrumentKey: "NIFTY-23800-PE",
			Strike:        23_800,
			Expiry:        now.AddDate(0, 0, 5),
			OptionType:    models.OptionPut,
			Side:          models.SideBuy,
			Quantity:      50,
			LotSize:       50,
			AvgPrice:      decimal.NewFromFloat(60),
			CurrentPrice:  decimal.NewFromFloat(55),
			Greeks:        models.Greeks{Delta: -0.3, Gamma: 0.001, Theta: -4, Vega: 10, IV: 0.15},
		},
	}

	risk := e.Aggregate(positions, testSnapshot(now), now)

	// Short call -25, long put -15, in underlying units.
	if math.Abs(risk.NetDelta-(-40)) > 1e-9 {
		t.Errorf("NetDelta = %v, want -40", risk.NetDelta)
	}
	if math.Abs(risk.NetGamma-(-0.05)) > 1e-9 {
		t.Errorf("NetGamma = %v, want -0.05", risk.NetGamma)
	}
	// Short leg collects theta: -1 * 50 * -8 = +400, long leg pays 50 * -4.
	if math.Abs(risk.NetTheta-200) > 1e-9 {
		t.Errorf("NetTheta = %v, want 200", risk.NetTheta)
	}
	if risk.PositionCount != 2 {
		t.Errorf("PositionCount = %d, want 2", risk.PositionCount)
	}

	// Short call decayed 30 points on 50 qty, long put lost 5 on 50.
	wantPnL := 30.0*50 - 5.0*50
	if math.Abs(risk.UnrealizedPnL-wantPnL) > 1e-9 {
		t.Errorf("UnrealizedPnL = %v, want %v", risk.UnrealizedPnL, wantPnL)
	}

	if got := risk.PerPosition["NIFTY-24000-CE"]; math.Abs(got-(-25)) > 1e-9 {
		t.Errorf("per-position delta = %v, want -25", got)
	}
}

func TestAggregateSkipsZeroQuantity(t *testing.T) {
	now := time.Now()
	e := NewEngine(riskConfig())

	positions := []models.Position{
		{InstrumentKey: "NIFTY-24000-CE", Strike: 24_000, Quantity: 0, Greeks: models.Greeks{Delta: 0.5}},
	}

	risk := e.Aggregate(positions, testSnapshot(now), now)
	if risk.PositionCount != 0 || risk.NetDelta != 0 {
		t.Errorf("zero-quantity position should be skipped, got %+v", risk)
	}
}

func TestLimitBreaches(t *testing.T) {
	now := time.Now()
	e := NewEngine(riskConfig())

	positions := []models.Position{
		{
			InstrumentKey: "NIFTY-24000-CE",
			Strike:        24_000,
			Expiry:        now.AddDate(0, 0, 5),
			OptionType:    models.OptionCall,
			Side:          models.SideSell,
			Quantity:      500,
			LotSize:       50,
			AvgPrice:      decimal.NewFromFloat(100),
			CurrentPrice:  decimal.NewFromFloat(250),
			Greeks:        models.Greeks{Delta: 0.5, Gamma: 0.02, Vega: 20, IV: 0.14},
		},
	}

	risk := e.Aggregate(positions, testSnapshot(now), now)

	wantBreach := func(substr string) {
		t.Helper()
		for _, b := range risk.LimitBreaches {
			if strings.Contains(b, substr) {
				return
			}
		}
		t.Errorf("missing breach containing %q, got %v", substr, risk.LimitBreaches)
	}

	// |delta| 250 > 150, |gamma| 10 > 5, |vega| 10000 > 3000,
	// unrealized -75000 < -50000.
	wantBreach("net delta")
	wantBreach("net gamma")
	wantBreach("net vega")
	wantBreach("unrealized loss")
}

func TestLiveGreeksPreferred(t *testing.T) {
	now := time.Now()
	e := NewEngine(riskConfig())

	snap := testSnapshot(now)
	snap.LiveGreeks = map[string]models.Greeks{
		"NIFTY-24000-CE": {Delta: 0.6},
	}

	positions := []models.Position{
		{
			InstrumentKey: "NIFTY-24000-CE",
			Strike:        24_000,
			Expiry:        now.AddDate(0, 0, 5),
			OptionType:    models.OptionCall,
			Side:          models.SideBuy,
			Quantity:      50,
			LotSize:       50,
			Greeks:        models.Greeks{Delta: 0.5},
		},
	}

	risk := e.Aggregate(positions, snap, now)
	if math.Abs(risk.NetDelta-30) > 1e-9 {
		t.Errorf("NetDelta = %v, want 30 from live greeks", risk.NetDelta)
	}
}

func TestStressMatrix(t *testing.T) {
	now := time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
	e := NewEngine(riskConfig())

	positions := []models.Position{
		{
			InstrumentKey: "NIFTY-24000-CE",
			Strike:        24_000,
			Expiry:        now.AddDate(0, 0, 7),
			OptionType:    models.OptionCall,
			Side:          models.SideSell,
			Quantity:      50,
			LotSize:       50,
			AvgPrice:      decimal.NewFromFloat(180),
			CurrentPrice:  decimal.NewFromFloat(180),
			Greeks:        models.Greeks{Delta: 0.5, IV: 0.14},
		},
	}

	risk := e.Aggregate(positions, testSnapshot(now), now)

	if len(risk.StressMatrix) != 6 {
		t.Fatalf("StressMatrix length = %d, want 6", len(risk.StressMatrix))
	}

	min := 0.0
	for _, r := range risk.StressMatrix {
		if r.ProjectedPnL < min {
			min = r.ProjectedPnL
		}
	}
	if risk.WorstCase.ProjectedPnL != min {
		t.Errorf("WorstCase = %v, want matrix minimum %v", risk.WorstCase.ProjectedPnL, min)
	}

	// A short ATM call must lose in the rally scenario.
	var rally *models.StressResult
	for i := range risk.StressMatrix {
		if risk.StressMatrix[i].SpotShock == 0.05 {
			rally = &risk.StressMatrix[i]
		}
	}
	if rally == nil || rally.ProjectedPnL >= 0 {
		t.Errorf("short call should lose in +5%% rally, got %+v", rally)
	}
}

func TestBlackScholesSanity(t *testing.T) {
	// ATM call, 30 days, 14 vol.
	T := yearsToExpiry(30)
	price := bsPrice(24_000, 24_000, T, 0.14, models.OptionCall)
	if price <= 0 || price > 1000 {
		t.Errorf("ATM call price = %v, out of sane range", price)
	}

	g := bsGreeks(24_000, 24_000, T, 0.14, models.OptionCall)
	if g.Delta < 0.45 || g.Delta > 0.60 {
		t.Errorf("ATM call delta = %v, want near 0.5", g.Delta)
	}
	if g.Gamma <= 0 || g.Vega <= 0 || g.Theta >= 0 {
		t.Errorf("greeks signs wrong: %+v", g)
	}

	// Expired option prices at intrinsic.
	if got := bsPrice(24_100, 24_000, 0, 0.14, models.OptionCall); got != 100 {
		t.Errorf("expired ITM call = %v, want intrinsic 100", got)
	}
	if got := bsPrice(24_100, 24_000, 0, 0.14, models.OptionPut); got != 0 {
		t.Errorf("expired OTM put = %v, want 0", got)
	}
}
