package trading

import (
	"testing"
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

func adjustmentConfig() *config.RiskConfig {
	return &config.RiskConfig{
		MaxNetDelta:        150,
		DeltaBuffer:        25,
		AdjustmentCooldown: 5 * time.Minute,
	}
}

func TestProposeNoBreach(t *testing.T) {
	a := NewAdjustmentEngine(adjustmentConfig())
	risk := &models.PortfolioRisk{NetDelta: 100}

	if got := a.Propose(risk, testChain(1500), time.Now()); got != nil {
		t.Errorf("no breach should yield no hedge, got %+v", got)
	}
}

func TestProposeDeadZone(t *testing.T) {
	a := NewAdjustmentEngine(adjustmentConfig())

	// Between the bare limit and limit+buffer nothing happens; the band
	// keeps the engine from oscillating around the threshold.
	if got := a.Propose(&models.PortfolioRisk{NetDelta: 160}, testChain(1500), time.Now()); got != nil {
		t.Errorf("net delta 160 inside dead zone should yield no hedge, got %+v", got)
	}
	if got := a.Propose(&models.PortfolioRisk{NetDelta: -174}, testChain(1500), time.Now()); got != nil {
		t.Errorf("net delta -174 inside dead zone should yield no hedge, got %+v", got)
	}
	if a.Propose(&models.PortfolioRisk{NetDelta: 176}, testChain(1500), time.Now()) == nil {
		t.Error("net delta 176 past limit+buffer should hedge")
	}
}

func TestProposeBuysPutsForPositiveDelta(t *testing.T) {
	a := NewAdjustmentEngine(adjustmentConfig())
	risk := &models.PortfolioRisk{NetDelta: 200}

	action := a.Propose(risk, testChain(1500), time.Now())
	if action == nil {
		t.Fatal("expected hedge action")
	}
	if action.Leg.OptionType != models.OptionPut || action.Leg.Side != models.SideBuy {
		t.Errorf("want BUY PE, got %s %s", action.Leg.Side, action.Leg.OptionType)
	}
	// Nearest 20-delta put in the test chain.
	if action.Leg.Strike != 23_800 {
		t.Errorf("hedge strike = %v, want 23800", action.Leg.Strike)
	}
	// One lot per cycle.
	if action.Leg.Quantity != 50 {
		t.Errorf("hedge quantity = %d, want one lot of 50", action.Leg.Quantity)
	}
}

func TestProposeBuysCallsForNegativeDelta(t *testing.T) {
	a := NewAdjustmentEngine(adjustmentConfig())
	risk := &models.PortfolioRisk{NetDelta: -200}

	action := a.Propose(risk, testChain(1500), time.Now())
	if action == nil {
		t.Fatal("expected hedge action")
	}
	if action.Leg.OptionType != models.OptionCall || action.Leg.Side != models.SideBuy {
		t.Errorf("want BUY CE, got %s %s", action.Leg.Side, action.Leg.OptionType)
	}
}

func TestProposeCooldown(t *testing.T) {
	a := NewAdjustmentEngine(adjustmentConfig())
	risk := &models.PortfolioRisk{NetDelta: 200}
	now := time.Now()

	if a.Propose(risk, testChain(1500), now) == nil {
		t.Fatal("first breach should hedge")
	}
	if got := a.Propose(risk, testChain(1500), now.Add(time.Minute)); got != nil {
		t.Errorf("second breach inside cooldown should wait, got %+v", got)
	}
	if a.Propose(risk, testChain(1500), now.Add(6*time.Minute)) == nil {
		t.Error("breach after cooldown should hedge again")
	}
}

func TestProposeEmergencyOverridesCooldown(t *testing.T) {
	a := NewAdjustmentEngine(adjustmentConfig())
	now := time.Now()

	if a.Propose(&models.PortfolioRisk{NetDelta: 200}, testChain(1500), now) == nil {
		t.Fatal("first breach should hedge")
	}

	// Past twice the limit the cooldown no longer applies.
	action := a.Propose(&models.PortfolioRisk{NetDelta: 400}, testChain(1500), now.Add(time.Minute))
	if action == nil {
		t.Fatal("emergency breach should override cooldown")
	}
}

func TestProposeNoLiquidStrike(t *testing.T) {
	a := NewAdjustmentEngine(adjustmentConfig())
	risk := &models.PortfolioRisk{NetDelta: 200}

	if got := a.Propose(risk, testChain(10), time.Now()); got != nil {
		t.Errorf("illiquid chain should yield no hedge, got %+v", got)
	}
}
