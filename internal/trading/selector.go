package trading

import (
	"sort"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// Selector picks the best eligible strategy for the current regime and
// volatility state. It filters by regime permission and stability gates,
// then ranks the survivors.
type Selector struct{}

// NewSelector creates new strategy selector
func NewSelector() *Selector {
	return &Selector{}
}

// Select returns the best eligible strategy or nil when nothing qualifies.
// Defined-risk structures always outrank undefined ones, then registry
// priority, then the minimum premium requirement as a quality tiebreak.
func (s *Selector) Select(regime string, vol *models.VolMetrics) *StrategyDefinition {
	if vol == nil {
		return nil
	}

	var candidates []*StrategyDefinition
	for i := range Registry {
		def := &Registry[i]
		if !allowsRegime(def, regime) {
			continue
		}
		if vol.IVPercentile30 < def.MinIVP {
			continue
		}
		// High vol-of-vol means the vol surface itself is unstable.
		if vol.VolOfVol > def.MaxVolOfVol {
			continue
		}
		candidates = append(candidates, def)
	}

	if len(candidates) == 0 {
		logger.Info("no eligible strategies",
			zap.String("regime", regime),
			zap.Float64("ivp30", vol.IVPercentile30),
			zap.Float64("vol_of_vol", vol.VolOfVol))
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if (a.RiskType == RiskDefined) != (b.RiskType == RiskDefined) {
			return a.RiskType == RiskDefined
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.MinVRP > b.MinVRP
	})

	selected := candidates[0]
	logger.Info("strategy selected",
		zap.String("strategy", selected.Name),
		zap.String("regime", regime))
	return selected
}

func allowsRegime(def *StrategyDefinition, regime string) bool {
	for _, r := range def.AllowedRegimes {
		if r == regime {
			return true
		}
	}
	return false
}
