package dataquality

import (
	"fmt"
	"time"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/models"
)

// Gate validates market snapshots before the analytics chain sees them.
// A rejected snapshot counts as a data-quality failure toward safety
// escalation; the gate itself never mutates state.
type Gate struct {
	maxLatency  time.Duration
	marketOpen  string
	marketClose string
	location    *time.Location
}

// Result is the outcome of one validation
type Result struct {
	Valid  bool
	Reason string
}

// NewGate creates new data quality gate
func NewGate(cfg *config.Config) (*Gate, error) {
	loc, err := time.LoadLocation(cfg.Trading.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", cfg.Trading.Timezone, err)
	}

	return &Gate{
		maxLatency:  cfg.Supervisor.MaxDataLatency,
		marketOpen:  cfg.Trading.MarketOpen,
		marketClose: cfg.Trading.MarketClose,
		location:    loc,
	}, nil
}

// ValidateSnapshot checks the per-cycle market snapshot. Spot and VIX must
// be strictly positive and the snapshot must be fresh.
func (g *Gate) ValidateSnapshot(snap *models.MarketSnapshot, now time.Time) Result {
	if snap == nil {
		return Result{Valid: false, Reason: "snapshot is nil"}
	}
	if snap.Spot <= 0 {
		return Result{Valid: false, Reason: fmt.Sprintf("spot is non-positive: %v", snap.Spot)}
	}
	if snap.VIX <= 0 {
		return Result{Valid: false, Reason: fmt.Sprintf("vix is non-positive: %v", snap.VIX)}
	}
	if !snap.Timestamp.IsZero() {
		if latency := now.Sub(snap.Timestamp); latency > g.maxLatency {
			return Result{Valid: false, Reason: fmt.Sprintf("snapshot stale by %s (max %s)", latency.Round(time.Millisecond), g.maxLatency)}
		}
	}
	return Result{Valid: true}
}

// ValidateChain checks an option chain for usable quote coverage. A chain
// where more than half the strikes carry zero implied vol is unusable for
// structure analysis.
func (g *Gate) ValidateChain(chain *models.OptionChain) Result {
	if chain.Empty() {
		return Result{Valid: false, Reason: "option chain is empty"}
	}

	zeroIV := 0
	for _, row := range chain.Rows {
		if row.CallIV <= 0 && row.PutIV <= 0 {
			zeroIV++
		}
	}
	if ratio := float64(zeroIV) / float64(len(chain.Rows)); ratio > 0.5 {
		return Result{Valid: false, Reason: fmt.Sprintf("%.0f%% of strikes have zero IV", ratio*100)}
	}

	if gap, ok := irregularStrikeGap(chain.Rows); !ok {
		return Result{Valid: false, Reason: fmt.Sprintf("irregular strike gap %v in chain", gap)}
	}

	return Result{Valid: true}
}

// MarketOpen reports whether the exchange session is open at the given time.
// Weekends are closed; holidays come from the event calendar upstream.
func (g *Gate) MarketOpen(now time.Time) bool {
	local := now.In(g.location)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	clock := local.Format("15:04")
	return clock >= g.marketOpen && clock <= g.marketClose
}

// irregularStrikeGap verifies strikes are sorted with a consistent spacing.
// A gap more than twice the modal gap indicates missing strikes.
func irregularStrikeGap(rows []models.ChainRow) (float64, bool) {
	if len(rows) < 3 {
		return 0, true
	}

	gaps := make(map[float64]int)
	for i := 1; i < len(rows); i++ {
		gap := rows[i].Strike - rows[i-1].Strike
		if gap <= 0 {
			return gap, false
		}
		gaps[gap]++
	}

	var modal float64
	var modalCount int
	for gap, count := range gaps {
		if count > modalCount {
			modal, modalCount = gap, count
		}
	}

	for i := 1; i < len(rows); i++ {
		gap := rows[i].Strike - rows[i-1].Strike
		if gap > 2*modal {
			return gap, false
		}
	}

	return 0, true
}
