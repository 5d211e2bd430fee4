package risk

import (
	"math"

	"github.com/shritish20/volguard/pkg/models"
)

// riskFreeRate approximates the India 10Y bond yield
const riskFreeRate = 0.06

// minIV is a conservative floor applied when a position carries no usable
// implied vol; pricing with near-zero vol understates tail risk.
const minIV = 0.10

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// bsPrice is the Black-Scholes price for a European option. sigma is in
// natural units (0.14 for 14%), T in years.
func bsPrice(spot, strike, T, sigma float64, optType models.OptionType) float64 {
	if T <= 0 {
		if optType == models.OptionCall {
			return math.Max(0, spot-strike)
		}
		return math.Max(0, strike-spot)
	}
	if sigma < minIV {
		sigma = minIV
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(spot/strike) + (riskFreeRate+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	if optType == models.OptionCall {
		return spot*normCDF(d1) - strike*math.Exp(-riskFreeRate*T)*normCDF(d2)
	}
	return strike*math.Exp(-riskFreeRate*T)*normCDF(-d2) - spot*normCDF(-d1)
}

// bsGreeks computes per-unit greeks for one option leg. Theta is per
// calendar day, vega per 1% vol move.
func bsGreeks(spot, strike, T, sigma float64, optType models.OptionType) models.Greeks {
	if T <= 0 || spot <= 0 || strike <= 0 {
		return models.Greeks{}
	}
	if sigma < minIV {
		sigma = minIV
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(spot/strike) + (riskFreeRate+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	nd1 := normPDF(d1)

	g := models.Greeks{
		Gamma: nd1 / (spot * sigma * sqrtT),
		Vega:  spot * sqrtT * nd1 / 100,
		IV:    sigma,
	}

	discountedStrike := strike * math.Exp(-riskFreeRate*T)
	if optType == models.OptionCall {
		g.Delta = normCDF(d1)
		g.Theta = (-spot*nd1*sigma/(2*sqrtT) - riskFreeRate*discountedStrike*normCDF(d2)) / 365
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (-spot*nd1*sigma/(2*sqrtT) + riskFreeRate*discountedStrike*normCDF(-d2)) / 365
	}

	return g
}

// yearsToExpiry converts a days-to-expiry count to year fraction for pricing
func yearsToExpiry(dte int) float64 {
	if dte <= 0 {
		return 0
	}
	return float64(dte) / 365.0
}
