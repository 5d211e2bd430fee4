package analytics

import (
	"math"

	"github.com/shritish20/volguard/pkg/models"
)

// GEXStickyThreshold splits dealer gamma positioning into pinning (STICKY)
// and accelerating (SLIPPERY) regimes. Calibrated constant.
const GEXStickyThreshold = 2e8

// StructureEngine derives positioning metrics from a live option chain
type StructureEngine struct{}

// NewStructureEngine creates new structure engine
func NewStructureEngine() *StructureEngine {
	return &StructureEngine{}
}

// Analyze computes StructMetrics from the weekly chain. An empty chain or
// non-positive spot yields the documented neutral result.
func (e *StructureEngine) Analyze(chain *models.OptionChain, spot float64, lotSize int) models.StructMetrics {
	if chain.Empty() || spot <= 0 {
		return models.StructMetrics{
			GammaRegime:    models.GammaNeutral,
			Directional:    models.DirectionNeutral,
			LotSize:        lotSize,
			IsFallback:     true,
			FallbackReason: "empty chain or zero spot",
		}
	}

	m := models.StructMetrics{LotSize: lotSize}

	m.NetGammaExposure = netGammaExposure(chain.Rows, spot, lotSize)
	switch {
	case m.NetGammaExposure > GEXStickyThreshold:
		m.GammaRegime = models.GammaSticky
	case m.NetGammaExposure < -GEXStickyThreshold:
		m.GammaRegime = models.GammaSlippery
	default:
		m.GammaRegime = models.GammaNeutral
	}

	m.PutCallRatio = putCallRatio(chain.Rows)
	m.MaxPainStrike = maxPain(chain.Rows)
	m.Skew25Delta = skew25Delta(chain.Rows)

	switch {
	case m.PutCallRatio > 1.2:
		m.Directional = models.DirectionBullish
	case m.PutCallRatio > 0 && m.PutCallRatio < 0.7:
		m.Directional = models.DirectionBearish
	default:
		m.Directional = models.DirectionNeutral
	}

	return m
}

// netGammaExposure sums dealer gamma over strikes within ±10% of spot:
// Σ(call_gamma×call_OI − put_gamma×put_OI) × spot × lot_size
func netGammaExposure(rows []models.ChainRow, spot float64, lotSize int) float64 {
	sum := 0.0
	for _, r := range rows {
		if r.Strike <= spot*0.9 || r.Strike >= spot*1.1 {
			continue
		}
		sum += r.CallGamma*r.CallOI - r.PutGamma*r.PutOI
	}
	return sum * spot * float64(lotSize)
}

func putCallRatio(rows []models.ChainRow) float64 {
	var callOI, putOI float64
	for _, r := range rows {
		callOI += r.CallOI
		putOI += r.PutOI
	}
	if callOI <= 0 {
		return 0
	}
	return putOI / callOI
}

// maxPain finds the strike minimizing aggregate option-writer payout at
// expiry. Quadratic over distinct strikes; chains are tens of strikes.
func maxPain(rows []models.ChainRow) float64 {
	if len(rows) == 0 {
		return 0
	}

	best := rows[0].Strike
	bestLoss := math.Inf(1)

	for _, candidate := range rows {
		loss := 0.0
		for _, r := range rows {
			loss += math.Max(0, candidate.Strike-r.Strike) * r.CallOI
			loss += math.Max(0, r.Strike-candidate.Strike) * r.PutOI
		}
		if loss < bestLoss {
			bestLoss = loss
			best = candidate.Strike
		}
	}

	return best
}

// skew25Delta is the IV of the nearest 25-delta put minus the nearest
// 25-delta call. Zero when either side cannot be matched.
func skew25Delta(rows []models.ChainRow) float64 {
	const target = 0.25

	callIV, callOK := nearestDeltaIV(rows, target, true)
	putIV, putOK := nearestDeltaIV(rows, target, false)
	if !callOK || !putOK {
		return 0
	}

	return putIV - callIV
}

func nearestDeltaIV(rows []models.ChainRow, target float64, call bool) (float64, bool) {
	bestDiff := math.Inf(1)
	bestIV := 0.0
	found := false

	for _, r := range rows {
		delta, iv := r.PutDelta, r.PutIV
		if call {
			delta, iv = r.CallDelta, r.CallIV
		}
		if iv <= 0 {
			continue
		}
		diff := math.Abs(math.Abs(delta) - target)
		if diff < bestDiff {
			bestDiff = diff
			bestIV = iv
			found = true
		}
	}

	return bestIV, found
}
