package risk

import (
	"fmt"
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

// stressScenarios pairs a spot shock with a sympathetic vol shock. Crashes
// come with vol expansion, rallies with vol compression.
var stressScenarios = []struct {
	spotShock float64
	volShock  float64
}{
	{-0.10, 0.25},
	{-0.05, 0.15},
	{-0.02, 0.05},
	{0.00, 0.00},
	{0.02, -0.05},
	{0.05, -0.10},
}

// Engine aggregates per-position greeks into portfolio exposure, checks the
// static risk limits, and revalues the book under the stress matrix.
//
// Net delta is expressed in underlying units: one short ATM call on a 50-unit
// lot contributes about -25. The hedge sizing in the adjustment engine
// divides by lot size to convert back to lots.
type Engine struct {
	cfg *config.RiskConfig
}

// NewEngine creates new risk engine
func NewEngine(cfg *config.RiskConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Aggregate computes the portfolio risk picture for one cycle. Positions are
// re-read from the broker each cycle; nothing here is cached.
func (e *Engine) Aggregate(positions []models.Position, snap *models.MarketSnapshot, now time.Time) models.PortfolioRisk {
	risk := models.PortfolioRisk{
		PerPosition: make(map[string]float64),
	}

	for i := range positions {
		pos := &positions[i]
		if pos.Quantity == 0 {
			continue
		}
		risk.PositionCount++

		greeks := e.resolveGreeks(pos, snap, now)

		direction := 1.0
		if pos.Side == models.SideSell {
			direction = -1
		}
		qty := float64(pos.Quantity)

		posDelta := direction * qty * greeks.Delta
		risk.NetDelta += posDelta
		risk.NetGamma += direction * qty * greeks.Gamma
		risk.NetTheta += direction * qty * greeks.Theta
		risk.NetVega += direction * qty * greeks.Vega
		risk.PerPosition[pos.InstrumentKey] = posDelta

		risk.UnrealizedPnL += direction * qty *
			(pos.CurrentPrice.InexactFloat64() - pos.AvgPrice.InexactFloat64())
	}

	risk.LimitBreaches = e.checkBreaches(&risk)

	if snap != nil && snap.Spot > 0 {
		risk.StressMatrix, risk.WorstCase = e.stressTest(positions, snap, now)
		if risk.WorstCase.ProjectedPnL < -e.cfg.MaxPortfolioLoss {
			risk.LimitBreaches = append(risk.LimitBreaches,
				fmt.Sprintf("worst-case stress loss %.0f exceeds limit %.0f",
					risk.WorstCase.ProjectedPnL, e.cfg.MaxPortfolioLoss))
		}
	}

	return risk
}

// resolveGreeks prefers the live feed, then broker-reported greeks, then a
// model fallback priced off the vix.
func (e *Engine) resolveGreeks(pos *models.Position, snap *models.MarketSnapshot, now time.Time) models.Greeks {
	if snap != nil {
		if g, ok := snap.LiveGreeks[pos.InstrumentKey]; ok {
			return g
		}
	}

	if pos.Greeks.Delta != 0 || pos.Greeks.Gamma != 0 {
		return pos.Greeks
	}

	if !pos.IsOption() || snap == nil || snap.Spot <= 0 {
		return models.Greeks{}
	}

	sigma := pos.Greeks.IV
	if sigma <= 0 {
		sigma = snap.VIX / 100
	}
	T := yearsToExpiry(pos.DaysToExpiry(now))

	return bsGreeks(snap.Spot, pos.Strike, T, sigma, pos.OptionType)
}

func (e *Engine) checkBreaches(risk *models.PortfolioRisk) []string {
	var breaches []string

	if abs(risk.NetDelta) > e.cfg.MaxNetDelta {
		breaches = append(breaches,
			fmt.Sprintf("net delta %.1f exceeds limit %.1f", risk.NetDelta, e.cfg.MaxNetDelta))
	}
	if abs(risk.NetGamma) > e.cfg.MaxNetGamma {
		breaches = append(breaches,
			fmt.Sprintf("net gamma %.3f exceeds limit %.3f", risk.NetGamma, e.cfg.MaxNetGamma))
	}
	if abs(risk.NetVega) > e.cfg.MaxNetVega {
		breaches = append(breaches,
			fmt.Sprintf("net vega %.0f exceeds limit %.0f", risk.NetVega, e.cfg.MaxNetVega))
	}
	if risk.UnrealizedPnL < -e.cfg.MaxPortfolioLoss {
		breaches = append(breaches,
			fmt.Sprintf("unrealized loss %.0f exceeds limit %.0f", risk.UnrealizedPnL, e.cfg.MaxPortfolioLoss))
	}

	return breaches
}

// stressTest revalues every leg under each scenario with Black-Scholes and
// returns the full matrix plus the worst outcome
func (e *Engine) stressTest(positions []models.Position, snap *models.MarketSnapshot, now time.Time) ([]models.StressResult, models.StressResult) {
	matrix := make([]models.StressResult, 0, len(stressScenarios))
	worst := models.StressResult{}

	for _, sc := range stressScenarios {
		simSpot := snap.Spot * (1 + sc.spotShock)
		pnl := 0.0

		for i := range positions {
			pos := &positions[i]
			if pos.Quantity == 0 {
				continue
			}

			direction := 1.0
			if pos.Side == models.SideSell {
				direction = -1
			}
			qty := float64(pos.Quantity)
			current := pos.CurrentPrice.InexactFloat64()

			if !pos.IsOption() {
				pnl += (simSpot - current) * qty * direction
				continue
			}

			sigma := pos.Greeks.IV
			if sigma <= 0 {
				sigma = snap.VIX / 100
			}
			simIV := sigma * (1 + sc.volShock)
			T := yearsToExpiry(pos.DaysToExpiry(now))

			simPrice := bsPrice(simSpot, pos.Strike, T, simIV, pos.OptionType)
			pnl += (simPrice - current) * qty * direction
		}

		result := models.StressResult{
			SpotShock:    sc.spotShock,
			VolShock:     sc.volShock,
			ProjectedPnL: pnl,
		}
		matrix = append(matrix, result)

		if result.ProjectedPnL < worst.ProjectedPnL {
			worst = result
		}
	}

	return matrix, worst
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
