package analytics

import (
	"math"

	"github.com/cinar/indicator"
	"go.uber.org/zap"

	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// Vol-of-vol z-score thresholds. Calibrated constants, not derived.
const (
	VolOfVolCrashThreshold = 2.5
	VolOfVolWarnThreshold  = 2.0
	VolOfVolCalmThreshold  = 1.5

	volOfVolWindow  = 30
	volOfVolZWindow = 60

	minVolClamp = 0.1
	maxVolClamp = 200.0
)

// VolatilityEngine computes realized and forecast volatility metrics from
// daily bar history plus the live spot and vix prints. All failure paths
// degrade to documented fallback values; Compute never panics upward.
type VolatilityEngine struct{}

// NewVolatilityEngine creates new volatility engine
func NewVolatilityEngine() *VolatilityEngine {
	return &VolatilityEngine{}
}

// Compute builds the per-cycle VolMetrics. underlying and volIndex are daily
// bars in chronological order; liveSpot and liveVIX may be non-positive, in
// which case the latest historical close is substituted and the result is
// marked as a fallback.
func (e *VolatilityEngine) Compute(underlying, volIndex []models.Bar, liveSpot, liveVIX float64) models.VolMetrics {
	closes := barCloses(underlying)
	vixCloses := barCloses(volIndex)

	if len(closes) == 0 || len(vixCloses) == 0 {
		return volFallback(0, 0, "no price history available")
	}

	spot := liveSpot
	vix := liveVIX
	isFallback := false
	fallbackReason := ""

	if spot <= 0 {
		spot = closes[len(closes)-1]
		isFallback = true
		fallbackReason = "live spot unavailable, using last close"
	}
	if vix <= 0 {
		vix = vixCloses[len(vixCloses)-1]
		isFallback = true
		if fallbackReason != "" {
			fallbackReason += "; "
		}
		fallbackReason += "live vix unavailable, using last close"
	}

	returns := logReturns(closes)
	if len(returns) < 30 {
		logger.Warn("insufficient history for volatility metrics",
			zap.Int("returns", len(returns)),
		)
		return volFallback(spot, vix, "insufficient price history")
	}

	m := models.VolMetrics{
		Spot:           spot,
		VIX:            vix,
		IsFallback:     isFallback,
		FallbackReason: fallbackReason,
	}

	m.RealizedVol7 = clampVol(annualizedStd(tail(returns, 7)))
	m.RealizedVol28 = clampVol(annualizedStd(tail(returns, 28)))
	m.RealizedVol90 = clampVol(annualizedStd(tail(returns, 90)))

	m.Parkinson7 = clampVol(parkinsonVol(tail(underlying, 7)))
	m.Parkinson28 = clampVol(parkinsonVol(tail(underlying, 28)))

	// Failed GARCH fits fall back to realized vol for the same horizon and
	// are flagged, so the journal can tell a degraded forecast apart from
	// a converged one.
	if g, ok := garchForecast(returns, 7); ok {
		m.GARCH7 = clampVol(g)
	} else {
		m.GARCH7 = m.RealizedVol7
		m.IsFallback = true
		m.FallbackReason = appendReason(m.FallbackReason, "garch 7d fit failed, using realized vol")
	}
	if g, ok := garchForecast(returns, 28); ok {
		m.GARCH28 = clampVol(g)
	} else {
		m.GARCH28 = m.RealizedVol28
		m.IsFallback = true
		m.FallbackReason = appendReason(m.FallbackReason, "garch 28d fit failed, using realized vol")
	}

	m.VolOfVol, m.VolOfVolZScore = volOfVol(vixCloses)
	m.VolOfVol = clampVol(m.VolOfVol)

	m.IVPercentile30 = ivPercentile(vixCloses, vix, 30)
	m.IVPercentile90 = ivPercentile(vixCloses, vix, 90)
	m.IVPercentile1Y = ivPercentile(vixCloses, vix, 252)

	m.TrendStrength = trendStrength(underlying, spot)

	return m
}

// volFallback is the documented all-zero safe result
func volFallback(spot, vix float64, reason string) models.VolMetrics {
	return models.VolMetrics{
		Spot:           spot,
		VIX:            vix,
		IsFallback:     true,
		FallbackReason: reason,
	}
}

// annualizedStd converts a daily log-return window to annualized percent vol
func annualizedStd(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stdDevOf(returns) * math.Sqrt(tradingDaysPerYear) * 100
}

// parkinsonVol is the high/low range estimator over the given bars:
// sqrt(mean(ln(H/L)^2) / (4 ln 2)), annualized to percent.
func parkinsonVol(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}

	sum := 0.0
	n := 0
	for _, b := range bars {
		high := b.High.InexactFloat64()
		low := b.Low.InexactFloat64()
		if high <= 0 || low <= 0 || high < low {
			continue
		}
		r := math.Log(high / low)
		sum += r * r
		n++
	}
	if n == 0 {
		return 0
	}

	daily := math.Sqrt(sum / float64(n) / (4 * math.Ln2))
	return daily * math.Sqrt(tradingDaysPerYear) * 100
}

// volOfVol computes the rolling 30-day annualized std of vix log returns and
// z-scores the latest value against the rolling series' trailing 60-day
// mean/std. The z-score is the primary instability kill switch.
func volOfVol(vixCloses []float64) (vov float64, zscore float64) {
	vixReturns := logReturns(vixCloses)
	if len(vixReturns) < volOfVolWindow {
		return 0, 0
	}

	// Rolling series of 30-day annualized stds.
	var series []float64
	for i := volOfVolWindow; i <= len(vixReturns); i++ {
		window := vixReturns[i-volOfVolWindow : i]
		series = append(series, stdDevOf(window)*math.Sqrt(tradingDaysPerYear)*100)
	}

	vov = series[len(series)-1]

	ref := tail(series, volOfVolZWindow)
	if len(ref) < 2 {
		return vov, 0
	}
	refStd := stdDevOf(ref)
	if refStd <= 1e-9 {
		return vov, 0
	}
	zscore = (vov - meanOf(ref)) / refStd

	return vov, zscore
}

// ivPercentile is the fraction of the lookback window where the vol index
// closed below the current live value, in percent. Zero when the window is
// not fully covered by history.
func ivPercentile(vixCloses []float64, current float64, window int) float64 {
	hist := tail(vixCloses, window)
	if len(hist) < window {
		return 0
	}

	below := 0
	for _, v := range hist {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(hist)) * 100
}

// trendStrength is |spot - SMA20| / ATR14, zero when ATR is unavailable
func trendStrength(bars []models.Bar, spot float64) float64 {
	if len(bars) < 20 {
		return 0
	}

	closes := barCloses(bars)
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
	}

	sma := indicator.Sma(20, closes)
	_, atr := indicator.Atr(14, highs, lows, closes)

	lastATR := atr[len(atr)-1]
	if lastATR <= 0 {
		return 0
	}

	return math.Abs(spot-sma[len(sma)-1]) / lastATR
}

func barCloses(bars []models.Bar) []float64 {
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		c := b.Close.InexactFloat64()
		if c > 0 {
			out = append(out, c)
		}
	}
	return out
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

func tail[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func clampVol(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return minVolClamp
	}
	return math.Min(math.Max(v, minVolClamp), maxVolClamp)
}

func appendReason(existing, reason string) string {
	if existing == "" {
		return reason
	}
	return existing + "; " + reason
}
