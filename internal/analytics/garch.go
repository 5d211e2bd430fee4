package analytics

import "math"

const (
	garchMinObservations = 120
	tradingDaysPerYear   = 252
)

// garchForecast fits a GARCH(1,1) model over daily log returns by gaussian
// maximum likelihood on a coarse (alpha, beta) grid with variance targeting,
// then forecasts the average conditional variance over the horizon. Returns
// the annualized vol in percent and false when the fit is unusable, so the
// caller can substitute realized vol.
func garchForecast(returns []float64, horizon int) (float64, bool) {
	if len(returns) < garchMinObservations || horizon <= 0 {
		return 0, false
	}

	mean := meanOf(returns)
	demeaned := make([]float64, len(returns))
	for i, r := range returns {
		demeaned[i] = r - mean
	}

	longRunVar := varianceOf(demeaned)
	if longRunVar <= 1e-12 {
		return 0, false
	}

	bestLL := math.Inf(-1)
	bestAlpha, bestBeta := 0.0, 0.0

	for alpha := 0.02; alpha <= 0.30; alpha += 0.02 {
		for beta := 0.60; beta <= 0.97; beta += 0.01 {
			if alpha+beta >= 0.999 {
				continue
			}
			ll := garchLogLikelihood(demeaned, longRunVar, alpha, beta)
			if ll > bestLL {
				bestLL, bestAlpha, bestBeta = ll, alpha, beta
			}
		}
	}

	if math.IsInf(bestLL, -1) {
		return 0, false
	}

	// One-step-ahead variance, then mean-reverting multi-step forecast
	// averaged across the horizon.
	omega := longRunVar * (1 - bestAlpha - bestBeta)
	variance := longRunVar
	for _, r := range demeaned {
		variance = omega + bestAlpha*r*r + bestBeta*variance
	}

	persistence := bestAlpha + bestBeta
	sumVar := 0.0
	stepVar := variance
	for k := 0; k < horizon; k++ {
		sumVar += stepVar
		stepVar = longRunVar + persistence*(stepVar-longRunVar)
	}
	avgVar := sumVar / float64(horizon)

	vol := math.Sqrt(avgVar*tradingDaysPerYear) * 100
	if !isFiniteVol(vol) {
		return 0, false
	}

	return vol, true
}

func garchLogLikelihood(demeaned []float64, longRunVar, alpha, beta float64) float64 {
	omega := longRunVar * (1 - alpha - beta)
	variance := longRunVar
	ll := 0.0

	for _, r := range demeaned {
		if variance <= 1e-14 {
			return math.Inf(-1)
		}
		ll += -0.5 * (math.Log(2*math.Pi) + math.Log(variance) + r*r/variance)
		variance = omega + alpha*r*r + beta*variance
	}

	return ll
}

func isFiniteVol(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// varianceOf is the sample variance (n-1 denominator)
func varianceOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := meanOf(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func stdDevOf(xs []float64) float64 {
	return math.Sqrt(varianceOf(xs))
}
