package trading

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// hedgeTargetDelta is the absolute delta of the option bought to repair a
// breach. Deep enough to move net delta meaningfully, cheap enough to hold.
const hedgeTargetDelta = 0.20

// AdjustmentEngine repairs delta breaches by buying protective options, one
// lot per cycle. Buying hedges is preferred over selling more premium: it
// caps risk instead of adding margin.
//
// A cooldown stops oscillation around the limit; a breach past twice the
// limit overrides the cooldown.
type AdjustmentEngine struct {
	cfg *config.RiskConfig

	mu             sync.Mutex
	lastAdjustment time.Time
}

// NewAdjustmentEngine creates new adjustment engine
func NewAdjustmentEngine(cfg *config.RiskConfig) *AdjustmentEngine {
	return &AdjustmentEngine{cfg: cfg}
}

// Propose returns a hedge action when net delta breaches the limit, nil
// otherwise. The weekly chain supplies the hedge strike.
func (a *AdjustmentEngine) Propose(risk *models.PortfolioRisk, chain *models.OptionChain, now time.Time) *models.HedgeAction {
	if risk == nil {
		return nil
	}

	// Hedging triggers at limit+buffer; the dead zone between the bare
	// limit and the buffered one stops hedge/unwind oscillation.
	netDelta := risk.NetDelta
	limit := a.cfg.MaxNetDelta
	if absFloat(netDelta) <= limit+a.cfg.DeltaBuffer {
		return nil
	}

	a.mu.Lock()
	sinceLast := now.Sub(a.lastAdjustment)
	a.mu.Unlock()

	emergency := absFloat(netDelta) > 2*limit
	if sinceLast < a.cfg.AdjustmentCooldown && !emergency {
		logger.Debug("delta breach within adjustment cooldown",
			zap.Float64("net_delta", netDelta),
			zap.Duration("since_last", sinceLast))
		return nil
	}

	// Positive delta needs puts, negative needs calls.
	optType := models.OptionPut
	reason := fmt.Sprintf("net delta %.1f above limit %.1f", netDelta, limit)
	if netDelta < 0 {
		optType = models.OptionCall
		reason = fmt.Sprintf("net delta %.1f below limit -%.1f", netDelta, limit)
	}
	if emergency {
		reason = "EMERGENCY " + reason
	}

	strike := findStrikeByDelta(chain, optType, hedgeTargetDelta, hedgeMinVolume, hedgeMaxSpread)
	if strike == nil {
		logger.Warn("no liquid hedge strike available",
			zap.Float64("net_delta", netDelta),
			zap.String("option_type", string(optType)))
		return nil
	}

	lotSize := 0
	if chain != nil {
		lotSize = chain.LotSize
	}
	if lotSize <= 0 {
		return nil
	}

	a.mu.Lock()
	a.lastAdjustment = now
	a.mu.Unlock()

	return &models.HedgeAction{
		Leg: models.Leg{
			InstrumentKey: strike.Key,
			Strike:        strike.Strike,
			OptionType:    optType,
			Side:          models.SideBuy,
			Quantity:      lotSize,
			LotSize:       lotSize,
			Price:         models.NewDecimal(strike.Price),
			Role:          models.RoleHedge,
		},
		NetDelta: netDelta,
		Reason:   reason,
	}
}

// Reset clears the cooldown, for session start
func (a *AdjustmentEngine) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAdjustment = time.Time{}
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
