package trading

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// Liquidity gates. Core legs are held to tighter standards than hedge wings
// since slippage on the premium legs eats the edge directly.
const (
	coreMinVolume    = 750
	hedgeMinVolume   = 500
	coreMaxSpreadPct = 8.0
	hedgeMaxSpread   = 12.0
)

// strikeQuote is one side of one chain row flattened for selection
type strikeQuote struct {
	Key       string
	Strike    float64
	Type      models.OptionType
	Delta     float64 // absolute
	Price     float64
	Bid       float64
	Ask       float64
	Volume    int
	SpreadPct float64
}

// LegBuilder turns an abstract strategy definition into concrete orders
// against a live option chain. Short strikes are placed at the expected
// move implied by the ATM straddle; wings are placed by delta.
type LegBuilder struct {
	defaultLotSize int
}

// NewLegBuilder creates new leg builder
func NewLegBuilder(cfg *config.TradingConfig) *LegBuilder {
	return &LegBuilder{defaultLotSize: cfg.DefaultLotSize}
}

// Build assembles the order legs for one strategy entry. Every selected
// strike passes the liquidity gate; an illiquid chain fails the build rather
// than degrading strike quality. BUY legs are ordered first so hedges are on
// before the short legs go out.
func (b *LegBuilder) Build(def *StrategyDefinition, chain *models.OptionChain, spot float64, lots int) ([]models.Leg, error) {
	if def == nil {
		return nil, fmt.Errorf("no strategy definition")
	}
	if lots <= 0 {
		return nil, fmt.Errorf("invalid lot count %d", lots)
	}
	if chain.Empty() || spot <= 0 {
		return nil, fmt.Errorf("empty chain or invalid spot")
	}

	lotSize := chain.LotSize
	if lotSize <= 0 {
		lotSize = b.defaultLotSize
	}
	qty := lots * lotSize

	atm := atmRow(chain, spot)
	if atm == nil {
		return nil, fmt.Errorf("no ATM strike near spot %.2f", spot)
	}

	straddle := atm.CallPrice + atm.PutPrice
	if atm.CallPrice <= 0 || atm.PutPrice <= 0 {
		return nil, fmt.Errorf("invalid ATM straddle prices ce=%.2f pe=%.2f", atm.CallPrice, atm.PutPrice)
	}

	logger.Info("building legs",
		zap.String("strategy", def.Name),
		zap.Float64("atm_strike", atm.Strike),
		zap.Float64("expected_move", straddle),
		zap.Int("lots", lots))

	var legs []models.Leg
	var err error

	switch def.Structure {
	case StructureStrangle, StructureCondor, StructureFly, StructureBrokenWing:
		legs, err = b.buildSymmetric(def, chain, atm.Strike, straddle, qty, lotSize)
	case StructureSpread:
		legs, err = b.buildSpread(def, chain, qty, lotSize)
	case StructureRatio:
		legs, err = b.buildRatio(def, chain, qty, lotSize)
	default:
		return nil, fmt.Errorf("unsupported structure %s", def.Structure)
	}
	if err != nil {
		return nil, err
	}

	if err := validateLegs(legs, def); err != nil {
		return nil, err
	}

	// Hedges first so margin benefit applies to the short legs.
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].Side == models.SideBuy && legs[j].Side != models.SideBuy
	})

	return legs, nil
}

// buildSymmetric handles strangle, condor, fly and broken-wing geometries:
// short strikes one expected move out, wings by registry delta.
func (b *LegBuilder) buildSymmetric(def *StrategyDefinition, chain *models.OptionChain, atmStrike, straddle float64, qty, lotSize int) ([]models.Leg, error) {
	offset := straddle
	if def.Structure == StructureFly {
		// A fly sells the body, not the expected move.
		offset = 0
	}

	shortCE := findByOffset(chain, models.OptionCall, atmStrike+offset, coreMinVolume, coreMaxSpreadPct)
	shortPE := findByOffset(chain, models.OptionPut, atmStrike-offset, coreMinVolume, coreMaxSpreadPct)
	if shortCE == nil || shortPE == nil {
		return nil, fmt.Errorf("no liquid short strikes around expected move %.0f", straddle)
	}

	legs := []models.Leg{
		quoteToLeg(shortCE, models.SideSell, qty, lotSize, models.RoleCore),
		quoteToLeg(shortPE, models.SideSell, qty, lotSize, models.RoleCore),
	}

	if len(def.HedgeDeltas) >= 2 {
		wingCE := findStrikeByDelta(chain, models.OptionCall, math.Abs(def.HedgeDeltas[0]), hedgeMinVolume, hedgeMaxSpread)
		wingPE := findStrikeByDelta(chain, models.OptionPut, math.Abs(def.HedgeDeltas[1]), hedgeMinVolume, hedgeMaxSpread)
		if wingCE == nil || wingPE == nil {
			return nil, fmt.Errorf("no liquid wing strikes for hedge deltas %v", def.HedgeDeltas)
		}
		legs = append(legs,
			quoteToLeg(wingCE, models.SideBuy, qty, lotSize, models.RoleHedge),
			quoteToLeg(wingPE, models.SideBuy, qty, lotSize, models.RoleHedge),
		)
	}

	return legs, nil
}

func (b *LegBuilder) buildSpread(def *StrategyDefinition, chain *models.OptionChain, qty, lotSize int) ([]models.Leg, error) {
	if len(def.CoreDeltas) < 1 || len(def.HedgeDeltas) < 1 {
		return nil, fmt.Errorf("spread definition missing deltas")
	}

	optType := models.OptionCall
	if def.CoreDeltas[0] < 0 {
		optType = models.OptionPut
	}

	core := findStrikeByDelta(chain, optType, math.Abs(def.CoreDeltas[0]), 1000, 5.0)
	hedge := findStrikeByDelta(chain, optType, math.Abs(def.HedgeDeltas[0]), hedgeMinVolume, coreMaxSpreadPct)
	if core == nil || hedge == nil {
		return nil, fmt.Errorf("no liquid strikes for %s spread", optType)
	}
	if core.Strike == hedge.Strike {
		return nil, fmt.Errorf("spread legs collapsed to one strike %.0f", core.Strike)
	}

	return []models.Leg{
		quoteToLeg(core, models.SideSell, qty, lotSize, models.RoleCore),
		quoteToLeg(hedge, models.SideBuy, qty, lotSize, models.RoleHedge),
	}, nil
}

// buildRatio buys the closer strike and sells a multiple of the further one
func (b *LegBuilder) buildRatio(def *StrategyDefinition, chain *models.OptionChain, qty, lotSize int) ([]models.Leg, error) {
	if len(def.CoreDeltas) < 2 || len(def.Ratios) < 2 {
		return nil, fmt.Errorf("ratio definition missing deltas or ratios")
	}

	optType := models.OptionCall
	if def.CoreDeltas[0] < 0 {
		optType = models.OptionPut
	}

	long := findStrikeByDelta(chain, optType, math.Abs(def.CoreDeltas[0]), coreMinVolume, coreMaxSpreadPct)
	short := findStrikeByDelta(chain, optType, math.Abs(def.CoreDeltas[1]), coreMinVolume, coreMaxSpreadPct)
	if long == nil || short == nil {
		return nil, fmt.Errorf("no liquid strikes for %s ratio", optType)
	}
	if long.Strike == short.Strike {
		return nil, fmt.Errorf("ratio legs collapsed to one strike %.0f", long.Strike)
	}

	return []models.Leg{
		quoteToLeg(long, models.SideBuy, qty*def.Ratios[0], lotSize, models.RoleHedge),
		quoteToLeg(short, models.SideSell, qty*def.Ratios[1], lotSize, models.RoleCore),
	}, nil
}

func validateLegs(legs []models.Leg, def *StrategyDefinition) error {
	if len(legs) == 0 {
		return fmt.Errorf("no legs built")
	}

	sells, buys := 0, 0
	for i := range legs {
		if legs[i].Quantity <= 0 {
			return fmt.Errorf("invalid quantity on leg %s", legs[i].InstrumentKey)
		}
		if legs[i].Side == models.SideSell {
			sells++
		} else {
			buys++
		}
	}

	if sells == 0 {
		return fmt.Errorf("strategy %s built no short legs", def.Name)
	}
	if def.RiskType == RiskDefined && buys == 0 {
		return fmt.Errorf("defined-risk strategy %s built no hedge legs", def.Name)
	}
	return nil
}

// atmRow returns the chain row whose strike is nearest to spot
func atmRow(chain *models.OptionChain, spot float64) *models.ChainRow {
	var best *models.ChainRow
	bestDiff := math.Inf(1)
	for i := range chain.Rows {
		diff := math.Abs(chain.Rows[i].Strike - spot)
		if diff < bestDiff {
			bestDiff = diff
			best = &chain.Rows[i]
		}
	}
	return best
}

// findByOffset picks the liquid strike closest to the target price level
func findByOffset(chain *models.OptionChain, optType models.OptionType, targetStrike float64, minVolume int, maxSpreadPct float64) *strikeQuote {
	var best *strikeQuote
	bestDiff := math.Inf(1)

	for i := range chain.Rows {
		q := rowQuote(&chain.Rows[i], optType)
		if !liquid(q, minVolume, maxSpreadPct) {
			continue
		}
		diff := math.Abs(q.Strike - targetStrike)
		if diff < bestDiff {
			bestDiff = diff
			best = q
		}
	}
	return best
}

// findStrikeByDelta picks the liquid strike whose absolute delta is nearest
// the target. The adjustment engine shares it for hedge strike selection.
func findStrikeByDelta(chain *models.OptionChain, optType models.OptionType, targetDelta float64, minVolume int, maxSpreadPct float64) *strikeQuote {
	if chain.Empty() {
		return nil
	}

	var best *strikeQuote
	bestDiff := math.Inf(1)

	for i := range chain.Rows {
		q := rowQuote(&chain.Rows[i], optType)
		if !liquid(q, minVolume, maxSpreadPct) {
			continue
		}
		diff := math.Abs(q.Delta - targetDelta)
		if diff < bestDiff {
			bestDiff = diff
			best = q
		}
	}
	return best
}

func rowQuote(row *models.ChainRow, optType models.OptionType) *strikeQuote {
	q := &strikeQuote{Strike: row.Strike, Type: optType}
	if optType == models.OptionCall {
		q.Key = row.CallKey
		q.Delta = math.Abs(row.CallDelta)
		q.Price = row.CallPrice
		q.Bid = row.CallBid
		q.Ask = row.CallAsk
		q.Volume = row.CallVolume
	} else {
		q.Key = row.PutKey
		q.Delta = math.Abs(row.PutDelta)
		q.Price = row.PutPrice
		q.Bid = row.PutBid
		q.Ask = row.PutAsk
		q.Volume = row.PutVolume
	}
	if q.Ask > 0 {
		q.SpreadPct = (q.Ask - q.Bid) / q.Ask * 100
	} else {
		q.SpreadPct = 100
	}
	return q
}

func liquid(q *strikeQuote, minVolume int, maxSpreadPct float64) bool {
	return q.Key != "" && q.Ask > 0 && q.Volume >= minVolume && q.SpreadPct <= maxSpreadPct
}

func quoteToLeg(q *strikeQuote, side models.OrderSide, qty, lotSize int, role models.LegRole) models.Leg {
	return models.Leg{
		InstrumentKey: q.Key,
		Strike:        q.Strike,
		OptionType:    q.Type,
		Side:          side,
		Quantity:      qty,
		LotSize:       lotSize,
		Price:         models.NewDecimal(q.Price),
		Role:          role,
	}
}
