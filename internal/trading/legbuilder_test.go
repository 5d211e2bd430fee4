package trading

import (
	"testing"
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

func tradingConfig() *config.TradingConfig {
	return &config.TradingConfig{DefaultLotSize: 50}
}

// testChain builds a liquid nine-strike chain around spot 24000
func testChain(volume int) *models.OptionChain {
	type rowSpec struct {
		strike   float64
		cDelta   float64
		pDelta   float64
		cPrice   float64
		pPrice   float64
	}
	specs := []rowSpec{
		{23600, 0.85, -0.07, 430, 18},
		{23700, 0.78, -0.12, 350, 30},
		{23800, 0.70, -0.20, 280, 48},
		{23900, 0.60, -0.35, 195, 75},
		{24000, 0.50, -0.50, 120, 110},
		{24100, 0.38, -0.62, 80, 165},
		{24200, 0.28, -0.72, 52, 240},
		{24300, 0.17, -0.80, 30, 330},
		{24400, 0.09, -0.90, 15, 425},
	}

	chain := &models.OptionChain{
		Expiry:  time.Now().AddDate(0, 0, 5),
		LotSize: 50,
	}
	for _, s := range specs {
		chain.Rows = append(chain.Rows, models.ChainRow{
			Strike:     s.strike,
			CallKey:    keyFor(s.strike, "CE"),
			PutKey:     keyFor(s.strike, "PE"),
			CallDelta:  s.cDelta,
			PutDelta:   s.pDelta,
			CallPrice:  s.cPrice,
			PutPrice:   s.pPrice,
			CallBid:    s.cPrice * 0.99,
			CallAsk:    s.cPrice * 1.01,
			PutBid:     s.pPrice * 0.99,
			PutAsk:     s.pPrice * 1.01,
			CallVolume: volume,
			PutVolume:  volume,
		})
	}
	return chain
}

func keyFor(strike float64, optType string) string {
	return "NSE_FO|NIFTY-" + models.NewDecimal(strike).String() + "-" + optType
}

func legByRole(legs []models.Leg, side models.OrderSide, optType models.OptionType) *models.Leg {
	for i := range legs {
		if legs[i].Side == side && legs[i].OptionType == optType {
			return &legs[i]
		}
	}
	return nil
}

func TestBuildIronCondor(t *testing.T) {
	b := NewLegBuilder(tradingConfig())
	chain := testChain(1500)

	legs, err := b.Build(ByName("IRON_CONDOR"), chain, 24_000, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(legs) != 4 {
		t.Fatalf("got %d legs, want 4", len(legs))
	}

	// Hedges sorted first.
	if legs[0].Side != models.SideBuy || legs[1].Side != models.SideBuy {
		t.Errorf("BUY legs should come first, got %s %s", legs[0].Side, legs[1].Side)
	}

	// Expected move is the ATM straddle, 230 points. Shorts land on the
	// strikes nearest 24230 and 23770.
	shortCE := legByRole(legs, models.SideSell, models.OptionCall)
	shortPE := legByRole(legs, models.SideSell, models.OptionPut)
	if shortCE == nil || shortCE.Strike != 24_200 {
		t.Errorf("short call strike = %+v, want 24200", shortCE)
	}
	if shortPE == nil || shortPE.Strike != 23_800 {
		t.Errorf("short put strike = %+v, want 23800", shortPE)
	}

	// Wings at 10 delta.
	wingCE := legByRole(legs, models.SideBuy, models.OptionCall)
	wingPE := legByRole(legs, models.SideBuy, models.OptionPut)
	if wingCE == nil || wingCE.Strike != 24_400 {
		t.Errorf("call wing strike = %+v, want 24400", wingCE)
	}
	if wingPE == nil || wingPE.Strike != 23_700 {
		t.Errorf("put wing strike = %+v, want 23700", wingPE)
	}

	for i := range legs {
		if legs[i].Quantity != 100 {
			t.Errorf("leg %s quantity = %d, want 100 (2 lots of 50)", legs[i].InstrumentKey, legs[i].Quantity)
		}
	}
}

func TestBuildIronFlySellsBody(t *testing.T) {
	b := NewLegBuilder(tradingConfig())
	legs, err := b.Build(ByName("IRON_FLY"), testChain(1500), 24_000, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	shortCE := legByRole(legs, models.SideSell, models.OptionCall)
	shortPE := legByRole(legs, models.SideSell, models.OptionPut)
	if shortCE.Strike != 24_000 || shortPE.Strike != 24_000 {
		t.Errorf("fly shorts at %v/%v, want both at ATM 24000", shortCE.Strike, shortPE.Strike)
	}
}

func TestBuildPutCreditSpread(t *testing.T) {
	b := NewLegBuilder(tradingConfig())
	legs, err := b.Build(ByName("PUT_CREDIT_SPREAD"), testChain(1500), 24_000, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}

	if legs[0].Side != models.SideBuy {
		t.Errorf("hedge leg should come first, got %s", legs[0].Side)
	}
	if legs[0].OptionType != models.OptionPut || legs[1].OptionType != models.OptionPut {
		t.Error("both spread legs should be puts")
	}
	if legs[1].Strike <= legs[0].Strike {
		t.Errorf("short put %v should be above long put %v", legs[1].Strike, legs[0].Strike)
	}
}

func TestBuildRatioQuantities(t *testing.T) {
	b := NewLegBuilder(tradingConfig())
	legs, err := b.Build(ByName("RATIO_PUT_SPREAD"), testChain(1500), 24_000, 2)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(legs))
	}

	long := legByRole(legs, models.SideBuy, models.OptionPut)
	short := legByRole(legs, models.SideSell, models.OptionPut)
	if long == nil || short == nil {
		t.Fatal("missing ratio legs")
	}
	// 1x2 on 2 lots of 50.
	if long.Quantity != 100 || short.Quantity != 200 {
		t.Errorf("quantities = %d/%d, want 100/200", long.Quantity, short.Quantity)
	}
	if long.Strike <= short.Strike {
		t.Errorf("long put %v should be closer to spot than short put %v", long.Strike, short.Strike)
	}
}

func TestBuildIlliquidChain(t *testing.T) {
	b := NewLegBuilder(tradingConfig())
	if _, err := b.Build(ByName("IRON_CONDOR"), testChain(10), 24_000, 1); err == nil {
		t.Error("expected error on illiquid chain")
	}
}

func TestBuildInvalidInputs(t *testing.T) {
	b := NewLegBuilder(tradingConfig())
	chain := testChain(1500)

	if _, err := b.Build(ByName("IRON_CONDOR"), chain, 24_000, 0); err == nil {
		t.Error("expected error on zero lots")
	}
	if _, err := b.Build(ByName("IRON_CONDOR"), &models.OptionChain{}, 24_000, 1); err == nil {
		t.Error("expected error on empty chain")
	}
	if _, err := b.Build(nil, chain, 24_000, 1); err == nil {
		t.Error("expected error on nil definition")
	}
}
