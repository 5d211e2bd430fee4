package trading

// RiskType classifies whether a strategy's loss is capped by hedge legs
type RiskType string

const (
	RiskDefined   RiskType = "DEFINED"
	RiskUndefined RiskType = "UNDEFINED"
)

// Structure names the leg geometry the builder knows how to assemble
type Structure string

const (
	StructureStrangle   Structure = "STRANGLE"
	StructureCondor     Structure = "CONDOR"
	StructureFly        Structure = "FLY"
	StructureSpread     Structure = "SPREAD"
	StructureRatio      Structure = "RATIO"
	StructureBrokenWing Structure = "CONDOR_BWB"
)

// StrategyDefinition is the blueprint for one tradeable structure. The
// selector picks among these, the leg builder turns the pick into orders.
type StrategyDefinition struct {
	Name           string
	AllowedRegimes []string
	Structure      Structure
	RiskType       RiskType

	// CoreDeltas are the short legs, HedgeDeltas the protective wings.
	// Negative deltas are put side.
	CoreDeltas  []float64
	HedgeDeltas []float64
	Ratios      []int

	MinIVP      float64
	MinVRP      float64
	MaxVolOfVol float64

	Priority int
}

// Registry is the authoritative strategy catalogue, ordered roughly from
// defensive to aggressive. Selection never invents a structure outside it.
var Registry = []StrategyDefinition{
	{
		Name:           "WIDE_IRON_CONDOR",
		AllowedRegimes: []string{"DEFENSIVE"},
		Structure:      StructureCondor,
		RiskType:       RiskDefined,
		CoreDeltas:     []float64{0.20, -0.20},
		HedgeDeltas:    []float64{0.05, -0.05},
		Ratios:         []int{1, 1, 1, 1},
		MinIVP:         10,
		MinVRP:         0,
		MaxVolOfVol:    200,
		Priority:       10,
	},
	{
		Name:           "PUT_CREDIT_SPREAD",
		AllowedRegimes: []string{"DEFENSIVE"},
		Structure:      StructureSpread,
		RiskType:       RiskDefined,
		CoreDeltas:     []float64{-0.25},
		HedgeDeltas:    []float64{-0.10},
		Ratios:         []int{1, 1},
		MinIVP:         15,
		MinVRP:         0.5,
		MaxVolOfVol:    150,
		Priority:       8,
	},
	{
		Name:           "IRON_CONDOR",
		AllowedRegimes: []string{"MODERATE_SHORT"},
		Structure:      StructureCondor,
		RiskType:       RiskDefined,
		CoreDeltas:     []float64{0.25, -0.25},
		HedgeDeltas:    []float64{0.10, -0.10},
		Ratios:         []int{1, 1, 1, 1},
		MinIVP:         20,
		MinVRP:         1,
		MaxVolOfVol:    120,
		Priority:       10,
	},
	{
		Name:           "BROKEN_WING_CONDOR",
		AllowedRegimes: []string{"MODERATE_SHORT"},
		Structure:      StructureBrokenWing,
		RiskType:       RiskDefined,
		CoreDeltas:     []float64{0.30, -0.30},
		HedgeDeltas:    []float64{0.10, -0.05},
		Ratios:         []int{1, 1, 1, 1},
		MinIVP:         25,
		MinVRP:         1.5,
		MaxVolOfVol:    100,
		Priority:       8,
	},
	{
		Name:           "IRON_FLY",
		AllowedRegimes: []string{"MODERATE_SHORT", "AGGRESSIVE_SHORT"},
		Structure:      StructureFly,
		RiskType:       RiskDefined,
		CoreDeltas:     []float64{0.50, -0.50},
		HedgeDeltas:    []float64{0.20, -0.20},
		Ratios:         []int{1, 1, 1, 1},
		MinIVP:         40,
		MinVRP:         2,
		MaxVolOfVol:    80,
		Priority:       9,
	},
	{
		Name:           "RATIO_PUT_SPREAD",
		AllowedRegimes: []string{"AGGRESSIVE_SHORT"},
		Structure:      StructureRatio,
		RiskType:       RiskUndefined,
		CoreDeltas:     []float64{-0.30, -0.15},
		HedgeDeltas:    nil,
		Ratios:         []int{1, 2},
		MinIVP:         50,
		MinVRP:         3,
		MaxVolOfVol:    100,
		Priority:       9,
	},
	{
		Name:           "HEDGED_STRANGLE",
		AllowedRegimes: []string{"AGGRESSIVE_SHORT"},
		Structure:      StructureStrangle,
		RiskType:       RiskDefined,
		CoreDeltas:     []float64{0.25, -0.25},
		HedgeDeltas:    []float64{0.05, -0.05},
		Ratios:         []int{1, 1, 1, 1},
		MinIVP:         60,
		MinVRP:         4,
		MaxVolOfVol:    150,
		Priority:       10,
	},
	{
		Name:           "SHORT_STRANGLE",
		AllowedRegimes: []string{"AGGRESSIVE_SHORT"},
		Structure:      StructureStrangle,
		RiskType:       RiskUndefined,
		CoreDeltas:     []float64{0.20, -0.20},
		HedgeDeltas:    nil,
		Ratios:         []int{1, 1},
		MinIVP:         70,
		MinVRP:         5,
		MaxVolOfVol:    100,
		Priority:       5,
	},
}

// ByName returns the registry entry with the given name, nil if unknown
func ByName(name string) *StrategyDefinition {
	for i := range Registry {
		if Registry[i].Name == name {
			return &Registry[i]
		}
	}
	return nil
}
