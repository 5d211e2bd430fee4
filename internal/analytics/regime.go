package analytics

import (
	"fmt"
	"math"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

// Composite weights
const (
	weightVol    = 0.40
	weightStruct = 0.30
	weightEdge   = 0.20
	weightRisk   = 0.10
)

// Mandate thresholds on the composite score
const (
	aggressiveThreshold = 7.5
	moderateThreshold   = 6.0
	defensiveThreshold  = 4.0

	warningAllocationCap = 0.30
)

// Regime names
const (
	RegimeAggressive = "AGGRESSIVE_SHORT"
	RegimeModerate   = "MODERATE_SHORT"
	RegimeDefensive  = "DEFENSIVE"
	RegimeCash       = "CASH"
	RegimeFallback   = "ERROR_FALLBACK"
)

// Strategy archetypes per regime tier
const (
	StrategyHedgedStrangle  = "HEDGED_STRANGLE"
	StrategyIronCondor      = "IRON_CONDOR"
	StrategyIronFly         = "IRON_FLY"
	StrategyPutCreditSpread = "PUT_CREDIT_SPREAD"
	StrategyCash            = "CASH"
)

// RegimeEngine fuses the four signal sets into a composite score and a
// capital mandate. It classifies and sizes the envelope; it does not pick
// strikes or place orders.
type RegimeEngine struct {
	baseCapital      float64
	marginSellPerLot float64
}

// NewRegimeEngine creates new regime engine
func NewRegimeEngine(cfg *config.CapitalConfig) *RegimeEngine {
	return &RegimeEngine{
		baseCapital:      cfg.BaseCapital,
		marginSellPerLot: cfg.MarginSellPerLot,
	}
}

// Score computes the weighted composite. weeklyDTE is days to the weekly
// expiry, used by the structure and risk components for the gamma window.
func (e *RegimeEngine) Score(vol models.VolMetrics, st models.StructMetrics, ed models.EdgeMetrics, ext *models.ExternalMetrics, weeklyDTE int) models.RegimeScore {
	vs := volScore(vol)
	ss := structScore(st, weeklyDTE)
	es := edgeScore(ed)
	rs := riskScore(ext, weeklyDTE)

	composite := weightVol*vs + weightStruct*ss + weightEdge*es + weightRisk*rs

	score := models.RegimeScore{
		VolScore:    vs,
		StructScore: ss,
		EdgeScore:   es,
		RiskScore:   rs,
		Composite:   composite,
	}

	switch {
	case composite >= 8.0:
		score.Confidence = models.ConfidenceVeryHigh
	case composite >= 6.5:
		score.Confidence = models.ConfidenceHigh
	case composite >= 4.0:
		score.Confidence = models.ConfidenceModerate
	default:
		score.Confidence = models.ConfidenceLow
	}

	return score
}

// Mandate converts a composite score into the capital envelope for the
// cycle. It never returns an error; unusable inputs produce the documented
// fallback mandate (CASH, zero allocation).
func (e *RegimeEngine) Mandate(score models.RegimeScore, vol models.VolMetrics, ext *models.ExternalMetrics, weeklyDTE int) models.TradingMandate {
	if math.IsNaN(score.Composite) || math.IsInf(score.Composite, 0) {
		return models.TradingMandate{
			Regime:     RegimeFallback,
			Strategy:   StrategyCash,
			Rationale:  []string{"composite score is not finite"},
			IsFallback: true,
		}
	}

	// Instability kill switch: above the crash threshold the mandate is
	// CASH regardless of how favorable the other components look. The
	// zeroed vol component alone cannot guarantee a sub-threshold
	// composite, so the override sits here, not in the scoring.
	if vol.VolOfVolZScore > VolOfVolCrashThreshold {
		return models.TradingMandate{
			Regime:   RegimeCash,
			Strategy: StrategyCash,
			Rationale: []string{fmt.Sprintf(
				"vol-of-vol z-score %.2f above crash threshold, standing down", vol.VolOfVolZScore)},
			Warnings: []string{fmt.Sprintf(
				"vol-of-vol z-score %.2f above crash threshold", vol.VolOfVolZScore)},
		}
	}

	m := models.TradingMandate{}

	switch {
	case score.Composite >= aggressiveThreshold:
		m.Regime = RegimeAggressive
		m.Strategy = StrategyHedgedStrangle
		m.AllocationPct = 0.60
	case score.Composite >= moderateThreshold:
		m.Regime = RegimeModerate
		if weeklyDTE > 1 {
			m.Strategy = StrategyIronCondor
		} else {
			m.Strategy = StrategyIronFly
		}
		m.AllocationPct = 0.40
	case score.Composite >= defensiveThreshold:
		m.Regime = RegimeDefensive
		m.Strategy = StrategyPutCreditSpread
		m.AllocationPct = 0.20
	default:
		m.Regime = RegimeCash
		m.Strategy = StrategyCash
		m.AllocationPct = 0
	}

	m.Rationale = append(m.Rationale,
		fmt.Sprintf("composite %.2f (vol %.1f, struct %.1f, edge %.1f, risk %.1f)",
			score.Composite, score.VolScore, score.StructScore, score.EdgeScore, score.RiskScore))

	if vol.VolOfVolZScore > VolOfVolWarnThreshold {
		m.Warnings = append(m.Warnings,
			fmt.Sprintf("vol-of-vol z-score %.2f above warning threshold", vol.VolOfVolZScore))
	}
	if ext != nil && ext.Flow == models.FlowStrongShort {
		m.Warnings = append(m.Warnings, "institutional flow strongly negative")
	}
	if len(m.Warnings) > 0 && m.AllocationPct > warningAllocationCap {
		m.AllocationPct = warningAllocationCap
		m.Rationale = append(m.Rationale, "allocation capped by active warnings")
	}

	m.MaxLots = e.maxLots(m.AllocationPct)

	return m
}

// maxLots converts an allocation fraction to a lot ceiling using the
// conservative per-lot sell margin
func (e *RegimeEngine) maxLots(allocationPct float64) int {
	if allocationPct <= 0 || e.marginSellPerLot <= 0 {
		return 0
	}
	return int(allocationPct * e.baseCapital / e.marginSellPerLot)
}

// volScore starts at 5.0. A vol-of-vol z-score above the crash threshold is
// the kill switch: the component is floored to 0 and no further adjustment
// applies. Below that, stability is rewarded and the IV percentile locates
// the premium-selling sweet spot.
func volScore(vol models.VolMetrics) float64 {
	if vol.VolOfVolZScore > VolOfVolCrashThreshold {
		return 0
	}

	s := 5.0
	if vol.VolOfVolZScore > VolOfVolWarnThreshold {
		s -= 3.0
	} else if vol.VolOfVolZScore < VolOfVolCalmThreshold {
		s += 1.5
	}

	switch {
	case vol.IVPercentile1Y > 75:
		s += 0.5
	case vol.IVPercentile1Y < 25:
		s -= 2.5
	default:
		s += 1.0
	}

	return clampScore(s)
}

func structScore(st models.StructMetrics, weeklyDTE int) float64 {
	s := 5.0

	switch st.GammaRegime {
	case models.GammaSticky:
		if weeklyDTE <= 1 {
			s += 2.5
		} else {
			s += 1.0
		}
	case models.GammaSlippery:
		s -= 1.0
	}

	pcr := st.PutCallRatio
	switch {
	case pcr >= 0.9 && pcr <= 1.1:
		s += 1.0
	case pcr > 1.3 || (pcr > 0 && pcr < 0.7):
		s -= 1.0
	default:
		s -= 0.5
	}

	return clampScore(s)
}

func edgeScore(ed models.EdgeMetrics) float64 {
	s := 5.0

	switch ed.Primary {
	case models.EdgeShortVol:
		s += 2.0
	case models.EdgeCalendar:
		s += 1.0
	case models.EdgeLongVol:
		// Premium is too cheap to sell; the edge is on the other side.
		s -= 2.0
	}

	return clampScore(s)
}

func riskScore(ext *models.ExternalMetrics, weeklyDTE int) float64 {
	s := 10.0

	if ext != nil {
		switch ext.EventRisk {
		case models.EventRiskHigh:
			s -= 3.0
		case models.EventRiskMedium:
			s -= 1.5
		}

		switch ext.Flow {
		case models.FlowStrongShort:
			s -= 3.0
		case models.FlowStrongLong:
			s += 1.0
		}
	}

	if weeklyDTE <= 1 {
		s -= 2.0
	}

	return clampScore(s)
}

func clampScore(s float64) float64 {
	return math.Min(math.Max(s, 0), 10)
}
