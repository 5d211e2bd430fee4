package analytics

import (
	"math"

	"github.com/shritish20/volguard/pkg/models"
)

// Edge selection thresholds. First matching rule wins.
const (
	cheapVolIVPFloor     = 20.0
	richPremiumVRPFloor  = 3.0
	backwardationCeiling = -1.5
)

// EdgeEngine compares implied vol per expiry against realized and forecast
// vol to quantify the premium-selling edge.
type EdgeEngine struct{}

// NewEdgeEngine creates new edge engine
func NewEdgeEngine() *EdgeEngine {
	return &EdgeEngine{}
}

// Detect computes EdgeMetrics from the weekly and monthly chains. Missing
// ATM IV on either expiry zeroes the affected premia and flags the result.
func (e *EdgeEngine) Detect(weekly, monthly *models.OptionChain, spot float64, vol models.VolMetrics) models.EdgeMetrics {
	m := models.EdgeMetrics{Primary: models.EdgeNone}

	ivWeekly, weeklyOK := atmIV(weekly, spot)
	ivMonthly, monthlyOK := atmIV(monthly, spot)

	if !weeklyOK || !monthlyOK {
		m.IsFallback = true
		m.FallbackReason = "atm implied vol unavailable"
	}

	m.IVWeekly = ivWeekly
	m.IVMonthly = ivMonthly

	if weeklyOK && monthlyOK {
		m.TermStructure = ivMonthly - ivWeekly
	}

	if weeklyOK {
		m.VRPRealizedW = ivWeekly - vol.RealizedVol7
		m.VRPGarchW = ivWeekly - vol.GARCH7
		m.VRPParkinsonW = ivWeekly - vol.Parkinson7
	}
	if monthlyOK {
		m.VRPRealizedM = ivMonthly - vol.RealizedVol28
		m.VRPGarchM = ivMonthly - vol.GARCH28
		m.VRPParkinsonM = ivMonthly - vol.Parkinson28
	}

	// Priority chain, first match wins.
	switch {
	case vol.IVPercentile1Y > 0 && vol.IVPercentile1Y < cheapVolIVPFloor:
		m.Primary = models.EdgeLongVol
	case weeklyOK && m.VRPParkinsonW > richPremiumVRPFloor:
		m.Primary = models.EdgeShortVol
	case weeklyOK && monthlyOK && m.TermStructure < backwardationCeiling:
		m.Primary = models.EdgeCalendar
	default:
		m.Primary = models.EdgeNone
	}

	return m
}

// atmIV is the average of call and put IV at the strike nearest spot
func atmIV(chain *models.OptionChain, spot float64) (float64, bool) {
	if chain.Empty() || spot <= 0 {
		return 0, false
	}

	bestDiff := math.Inf(1)
	var best *models.ChainRow
	for i := range chain.Rows {
		r := &chain.Rows[i]
		if r.CallIV <= 0 || r.PutIV <= 0 {
			continue
		}
		diff := math.Abs(r.Strike - spot)
		if diff < bestDiff {
			bestDiff = diff
			best = r
		}
	}

	if best == nil {
		return 0, false
	}
	return (best.CallIV + best.PutIV) / 2, true
}
