package risk

import (
	"fmt"
	"sync"
)

// Bucket names
const (
	BucketIntraday = "INTRADAY"
	BucketWeekly   = "WEEKLY"
	BucketMonthly  = "MONTHLY"
)

// CapitalBucket is a per-horizon sub-allocation of total capital
type CapitalBucket struct {
	Name           string
	AllocationPct  float64
	MaxDailyLoss   float64
	AllowOvernight bool
	Active         bool
}

// BucketEngine controls where capital is allowed to work. It is a second,
// independent gate stacked on top of the capital governor: the governor
// answers "is there enough margin", the buckets answer "may this horizon
// deploy at all".
type BucketEngine struct {
	mu           sync.Mutex
	totalCapital float64
	buckets      map[string]*CapitalBucket
}

// NewBucketEngine creates the bucket engine with the default horizon split
func NewBucketEngine(totalCapital float64) *BucketEngine {
	return &BucketEngine{
		totalCapital: totalCapital,
		buckets: map[string]*CapitalBucket{
			BucketIntraday: {Name: BucketIntraday, AllocationPct: 0.20, MaxDailyLoss: 0.005, AllowOvernight: false, Active: true},
			BucketWeekly:   {Name: BucketWeekly, AllocationPct: 0.50, MaxDailyLoss: 0.010, AllowOvernight: true, Active: true},
			BucketMonthly:  {Name: BucketMonthly, AllocationPct: 0.30, MaxDailyLoss: 0.015, AllowOvernight: true, Active: true},
		},
	}
}

// Capital returns the deployable capital for a bucket, zero when inactive
func (b *BucketEngine) Capital(name string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.buckets[name]
	if !ok || !bucket.Active {
		return 0
	}
	return b.totalCapital * bucket.AllocationPct
}

// CanDeploy checks that the bucket is active and the proposed margin fits
// its allocation
func (b *BucketEngine) CanDeploy(name string, requiredMargin float64) (bool, string) {
	capital := b.Capital(name)
	if capital <= 0 {
		return false, fmt.Sprintf("bucket %s inactive", name)
	}
	if requiredMargin > capital {
		return false, fmt.Sprintf("margin %.0f exceeds bucket %s capital %.0f", requiredMargin, name, capital)
	}
	return true, ""
}

// EnforceRegime disables buckets that must not work in the given regime
func (b *BucketEngine) EnforceRegime(regime string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch regime {
	case "CASH", "ERROR_FALLBACK":
		for _, bucket := range b.buckets {
			bucket.Active = false
		}
	case "DEFENSIVE":
		b.buckets[BucketIntraday].Active = false
		b.buckets[BucketWeekly].Active = true
		b.buckets[BucketMonthly].Active = true
	default:
		for _, bucket := range b.buckets {
			bucket.Active = true
		}
	}
}

// ApplyDrawdownRules disables buckets as the weekly drawdown deepens
func (b *BucketEngine) ApplyDrawdownRules(weeklyDrawdownPct float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if weeklyDrawdownPct > 0.02 {
		b.buckets[BucketIntraday].Active = false
	}
	if weeklyDrawdownPct > 0.04 {
		b.buckets[BucketMonthly].Active = false
	}
}
