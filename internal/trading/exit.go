package trading

import (
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

// ExitEngine evaluates every open position against the exit rules each
// cycle. Pure: no state, no side effects, same inputs give same exits.
// Rules are checked in priority order and the first match wins.
type ExitEngine struct {
	cfg *config.RiskConfig
}

// NewExitEngine creates new exit engine
func NewExitEngine(cfg *config.RiskConfig) *ExitEngine {
	return &ExitEngine{cfg: cfg}
}

// Evaluate returns exit actions for positions that hit a rule. Exit orders
// always outrank entries in the decision loop, so a position can be closed
// on the same cycle a new one would have opened.
func (e *ExitEngine) Evaluate(positions []models.Position, snap *models.MarketSnapshot, now time.Time) []*models.ExitAction {
	var exits []*models.ExitAction

	for i := range positions {
		pos := &positions[i]
		if !pos.IsOption() || pos.Quantity == 0 {
			continue
		}

		if action := e.evaluatePosition(pos, snap, now); action != nil {
			exits = append(exits, action)
		}
	}

	return exits
}

func (e *ExitEngine) evaluatePosition(pos *models.Position, snap *models.MarketSnapshot, now time.Time) *models.ExitAction {
	qty := float64(pos.Quantity)
	entry := pos.AvgPrice.InexactFloat64()
	current := pos.CurrentPrice.InexactFloat64()
	dte := pos.DaysToExpiry(now)

	var pnl, maxProfit float64
	if pos.Side == models.SideSell {
		pnl = (entry - current) * qty
		maxProfit = entry * qty
	} else {
		pnl = (current - entry) * qty
	}

	switch {
	case dte <= e.cfg.ForceExitDTE:
		return e.exit(pos, models.ExitForced, pnl)

	case pos.Side == models.SideSell && maxProfit > 0 && pnl >= maxProfit*e.cfg.ProfitTargetPct:
		return e.exit(pos, models.ExitProfitTarget, pnl)

	case pos.Side == models.SideSell && maxProfit > 0 && pnl <= -maxProfit*e.cfg.StopLossMultiple:
		return e.exit(pos, models.ExitStopLoss, pnl)

	case dte <= e.cfg.MinSafeDTE:
		return e.exit(pos, models.ExitGammaRisk, pnl)

	case pos.Side == models.SideSell && snap != nil && snap.VIX > e.cfg.VIXSpikeExit:
		return e.exit(pos, models.ExitVolSpike, pnl)
	}

	return nil
}

func (e *ExitEngine) exit(pos *models.Position, reason models.ExitReason, pnl float64) *models.ExitAction {
	return &models.ExitAction{
		InstrumentKey: pos.InstrumentKey,
		Strike:        pos.Strike,
		OptionType:    pos.OptionType,
		Side:          pos.Side.Opposite(),
		Quantity:      pos.Quantity,
		LotSize:       pos.LotSize,
		Reason:        reason,
		PnL:           pnl,
	}
}
