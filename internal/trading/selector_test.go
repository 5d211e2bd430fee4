package trading

import (
	"testing"

	"github.com/shritish20/volguard/pkg/models"
)

func volState(ivp30, vov float64) *models.VolMetrics {
	return &models.VolMetrics{IVPercentile30: ivp30, VolOfVol: vov}
}

func TestSelectByRegime(t *testing.T) {
	s := NewSelector()

	tests := []struct {
		name   string
		regime string
		vol    *models.VolMetrics
		want   string
	}{
		{
			name:   "defensive picks wide condor",
			regime: "DEFENSIVE",
			vol:    volState(30, 50),
			want:   "WIDE_IRON_CONDOR",
		},
		{
			name:   "moderate picks iron condor",
			regime: "MODERATE_SHORT",
			vol:    volState(45, 60),
			want:   "IRON_CONDOR",
		},
		{
			name:   "aggressive rich vol picks hedged strangle",
			regime: "AGGRESSIVE_SHORT",
			vol:    volState(75, 70),
			want:   "HEDGED_STRANGLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Select(tt.regime, tt.vol)
			if got == nil {
				t.Fatal("expected a strategy")
			}
			if got.Name != tt.want {
				t.Errorf("selected %s, want %s", got.Name, tt.want)
			}
		})
	}
}

func TestSelectDefinedRiskPreferred(t *testing.T) {
	s := NewSelector()

	// At IVP 75 and stable vol-of-vol both strangles qualify; the hedged one
	// must win on risk type before priority is even consulted.
	got := s.Select("AGGRESSIVE_SHORT", volState(75, 70))
	if got == nil || got.RiskType != RiskDefined {
		t.Errorf("selected %+v, want a defined-risk strategy", got)
	}
}

func TestSelectGates(t *testing.T) {
	s := NewSelector()

	t.Run("low ivp blocks everything", func(t *testing.T) {
		if got := s.Select("MODERATE_SHORT", volState(5, 50)); got != nil {
			t.Errorf("IVP 5 should block all entries, got %s", got.Name)
		}
	})

	t.Run("unstable vol of vol blocks", func(t *testing.T) {
		if got := s.Select("MODERATE_SHORT", volState(45, 300)); got != nil {
			t.Errorf("VoV 300 should block all entries, got %s", got.Name)
		}
	})

	t.Run("cash regime has no strategies", func(t *testing.T) {
		if got := s.Select("CASH", volState(50, 50)); got != nil {
			t.Errorf("CASH should never trade, got %s", got.Name)
		}
	})

	t.Run("nil metrics", func(t *testing.T) {
		if got := s.Select("MODERATE_SHORT", nil); got != nil {
			t.Errorf("nil metrics should select nothing, got %s", got.Name)
		}
	})
}

func TestByName(t *testing.T) {
	if def := ByName("IRON_FLY"); def == nil || def.Structure != StructureFly {
		t.Errorf("ByName(IRON_FLY) = %+v", def)
	}
	if def := ByName("NO_SUCH"); def != nil {
		t.Errorf("unknown name should be nil, got %+v", def)
	}
}
