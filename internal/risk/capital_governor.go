package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/broker"
	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// brokeragePerLeg is a flat per-order cost estimate used for the gate's
// brokerage field
const brokeragePerLeg = 20.0

// GateResult is the outcome of one capital check. Rejections are expected
// decision outcomes, not errors.
type GateResult struct {
	Allowed           bool    `json:"allowed"`
	Reason            string  `json:"reason"`
	RequiredMargin    float64 `json:"required_margin"`
	AvailableFunds    float64 `json:"available_funds"`
	BrokerageEstimate float64 `json:"brokerage_estimate"`
	MarginSource      string  `json:"margin_source"` // broker, heuristic
}

type cachedFunds struct {
	value     float64
	fetchedAt time.Time
}

type cachedMargin struct {
	value     float64
	fetchedAt time.Time
}

// CapitalGovernor is the authoritative gate before any order reaches the
// broker. Funds and margin lookups are TTL-cached to bound external call
// rate; staleness up to the TTL is accepted. Single-owner within one
// process, guarded by a mutex for the refresh workers.
type CapitalGovernor struct {
	cfg  *config.CapitalConfig
	exec broker.ExecutionProvider

	mu               sync.Mutex
	dailyRealizedPnL float64
	openPositions    int
	funds            *cachedFunds
	margins          map[string]cachedMargin
}

// NewCapitalGovernor creates new capital governor
func NewCapitalGovernor(cfg *config.CapitalConfig, exec broker.ExecutionProvider) *CapitalGovernor {
	return &CapitalGovernor{
		cfg:     cfg,
		exec:    exec,
		margins: make(map[string]cachedMargin),
	}
}

// CanTradeNew checks whether the proposed leg set may be sent to the broker.
// Exits bypass the daily-loss and position-count gates so a losing book can
// always be flattened.
func (g *CapitalGovernor) CanTradeNew(ctx context.Context, legs []models.Leg, strategyTag string, isExit bool) GateResult {
	if len(legs) == 0 {
		return GateResult{Allowed: false, Reason: "no legs proposed"}
	}

	g.mu.Lock()
	dailyPnL := g.dailyRealizedPnL
	openCount := g.openPositions
	g.mu.Unlock()

	if !isExit {
		if dailyPnL <= -g.cfg.MaxDailyLoss {
			return GateResult{
				Allowed: false,
				Reason:  fmt.Sprintf("daily loss limit reached: %.0f <= -%.0f", dailyPnL, g.cfg.MaxDailyLoss),
			}
		}
		if openCount >= g.cfg.MaxOpenPositions {
			return GateResult{
				Allowed: false,
				Reason:  fmt.Sprintf("open position limit reached: %d >= %d", openCount, g.cfg.MaxOpenPositions),
			}
		}
	}

	funds, err := g.availableFunds(ctx)
	if err != nil {
		return GateResult{Allowed: false, Reason: fmt.Sprintf("funds lookup failed: %v", err)}
	}

	margin, source := g.requiredMargin(ctx, legs)
	brokerage := brokeragePerLeg * float64(len(legs))

	result := GateResult{
		RequiredMargin:    margin,
		AvailableFunds:    funds,
		BrokerageEstimate: brokerage,
		MarginSource:      source,
	}

	// Reserve buffer always held back.
	usable := funds * (1 - g.cfg.FundsReservePct)
	if margin > usable {
		result.Allowed = false
		result.Reason = fmt.Sprintf("required margin %.0f exceeds %.0f%% of funds %.0f",
			margin, (1-g.cfg.FundsReservePct)*100, funds)
		return result
	}

	result.Allowed = true
	result.Reason = fmt.Sprintf("margin %.0f within usable funds %.0f (%s)", margin, usable, source)
	return result
}

// availableFunds reads the broker funds through a short TTL cache
func (g *CapitalGovernor) availableFunds(ctx context.Context) (float64, error) {
	g.mu.Lock()
	if g.funds != nil && time.Since(g.funds.fetchedAt) < g.cfg.FundsCacheTTL {
		v := g.funds.value
		g.mu.Unlock()
		return v, nil
	}
	g.mu.Unlock()

	funds, err := g.exec.GetAvailableFunds(ctx)
	if err != nil {
		// Serve a stale value over failing the whole gate, if one exists.
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.funds != nil {
			logger.Warn("funds lookup failed, serving stale cache", zap.Error(err))
			return g.funds.value, nil
		}
		return 0, err
	}

	g.mu.Lock()
	g.funds = &cachedFunds{value: funds, fetchedAt: time.Now()}
	g.mu.Unlock()

	return funds, nil
}

// RefreshFunds force-updates the funds cache. Called by the background
// funds worker so the gate path mostly hits warm cache.
func (g *CapitalGovernor) RefreshFunds(ctx context.Context) error {
	funds, err := g.exec.GetAvailableFunds(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh funds: %w", err)
	}

	g.mu.Lock()
	g.funds = &cachedFunds{value: funds, fetchedAt: time.Now()}
	g.mu.Unlock()

	return nil
}

// requiredMargin asks the broker for the margin on this leg set, caching per
// leg-set fingerprint. On failure it falls back to a conservative per-lot
// heuristic that biases toward under-authorizing risk.
func (g *CapitalGovernor) requiredMargin(ctx context.Context, legs []models.Leg) (float64, string) {
	fp := legFingerprint(legs)

	g.mu.Lock()
	if cached, ok := g.margins[fp]; ok && time.Since(cached.fetchedAt) < g.cfg.MarginCacheTTL {
		g.mu.Unlock()
		return cached.value, "broker"
	}
	g.mu.Unlock()

	margin, err := g.exec.GetMarginRequired(ctx, legs)
	if err != nil {
		logger.Warn("margin lookup failed, using heuristic estimate", zap.Error(err))
		return g.heuristicMargin(legs), "heuristic"
	}

	g.mu.Lock()
	g.margins[fp] = cachedMargin{value: margin, fetchedAt: time.Now()}
	g.mu.Unlock()

	return margin, "broker"
}

// heuristicMargin assumes full per-lot SPAN for sell legs and premium-sized
// exposure for buy legs, plus a safety buffer
func (g *CapitalGovernor) heuristicMargin(legs []models.Leg) float64 {
	total := 0.0
	for _, leg := range legs {
		lots := float64(leg.Lots())
		if lots <= 0 && leg.LotSize > 0 {
			lots = 1
		}
		if leg.Side == models.SideSell {
			total += lots * g.cfg.MarginSellPerLot
		} else {
			total += lots * g.cfg.MarginBuyPerLot
		}
	}
	return total * (1 + g.cfg.MarginBufferPct)
}

// RecordRealizedPnL accumulates realized pnl from fills. Called by the
// executor after closes.
func (g *CapitalGovernor) RecordRealizedPnL(delta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyRealizedPnL += delta
}

// SetOpenPositions updates the open position count from the broker book
func (g *CapitalGovernor) SetOpenPositions(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openPositions = n
}

// DailyRealizedPnL returns the accumulated realized pnl for the day
func (g *CapitalGovernor) DailyRealizedPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyRealizedPnL
}

// ResetDay clears the daily pnl accumulator at session start
func (g *CapitalGovernor) ResetDay() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyRealizedPnL = 0
}

// legFingerprint builds an order-independent cache key for a leg set
func legFingerprint(legs []models.Leg) string {
	parts := make([]string, 0, len(legs))
	for _, leg := range legs {
		parts = append(parts, fmt.Sprintf("%s:%s:%d", leg.InstrumentKey, leg.Side, leg.Quantity))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}
