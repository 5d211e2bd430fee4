package models

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind tags the decided action variants
type ActionKind string

const (
	KindEntry ActionKind = "ENTRY"
	KindExit  ActionKind = "EXIT"
	KindHedge ActionKind = "HEDGE"
)

// ExitReason names the exit rule that fired, in priority order
type ExitReason string

const (
	ExitForced       ExitReason = "FORCE_EXIT"
	ExitProfitTarget ExitReason = "PROFIT_TARGET"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitGammaRisk    ExitReason = "GAMMA_RISK"
	ExitVolSpike     ExitReason = "VOL_SPIKE"
	ExitEmergency    ExitReason = "EMERGENCY"
)

// Action is the sum type for decided actions. Each variant carries only the
// fields relevant to its kind.
type Action interface {
	Kind() ActionKind
	OrderLegs() []Leg
	Describe() string
}

// EntryAction opens a new multi-leg strategy position
type EntryAction struct {
	Strategy      string
	Legs          []Leg
	AllocationPct float64
	Reason        string
}

func (a *EntryAction) Kind() ActionKind { return KindEntry }
func (a *EntryAction) OrderLegs() []Leg { return a.Legs }
func (a *EntryAction) Describe() string {
	return fmt.Sprintf("ENTRY %s (%d legs): %s", a.Strategy, len(a.Legs), a.Reason)
}

// ExitAction closes one existing position
type ExitAction struct {
	InstrumentKey string
	Strike        float64
	OptionType    OptionType
	Side          OrderSide // closing side, opposite of the position side
	Quantity      int
	LotSize       int
	Reason        ExitReason
	PnL           float64
}

func (a *ExitAction) Kind() ActionKind { return KindExit }
func (a *ExitAction) OrderLegs() []Leg {
	return []Leg{{
		InstrumentKey: a.InstrumentKey,
		Strike:        a.Strike,
		OptionType:    a.OptionType,
		Side:          a.Side,
		Quantity:      a.Quantity,
		LotSize:       a.LotSize,
		Role:          RoleCore,
	}}
}
func (a *ExitAction) Describe() string {
	return fmt.Sprintf("EXIT %s qty=%d reason=%s pnl=%.2f", a.InstrumentKey, a.Quantity, a.Reason, a.PnL)
}

// HedgeAction buys a protective option leg to pull net delta back inside limits
type HedgeAction struct {
	Leg      Leg
	NetDelta float64
	Reason   string
}

func (a *HedgeAction) Kind() ActionKind { return KindHedge }
func (a *HedgeAction) OrderLegs() []Leg { return []Leg{a.Leg} }
func (a *HedgeAction) Describe() string {
	return fmt.Sprintf("HEDGE %s %s qty=%d delta=%.2f: %s",
		a.Leg.Side, a.Leg.OptionType, a.Leg.Quantity, a.NetDelta, a.Reason)
}

// ActionOutcome records what happened to a decided action after gating
type ActionOutcome struct {
	Action      string     `json:"action"`
	Kind        ActionKind `json:"kind"`
	Dispatched  bool       `json:"dispatched"`
	OrderIDs    []string   `json:"order_ids,omitempty"`
	BlockReason string     `json:"block_reason,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// CycleRecord is the append-only decision journal entry, written every cycle
// whether or not an action was taken.
type CycleRecord struct {
	ID          int64           `json:"id" db:"id"`
	CycleSeq    int64           `json:"cycle_seq" db:"cycle_seq"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
	Spot        float64         `json:"spot" db:"spot"`
	VIX         float64         `json:"vix" db:"vix"`
	DataSource  string          `json:"data_source" db:"data_source"`
	Blocked     bool            `json:"blocked" db:"blocked"`
	BlockReason string          `json:"block_reason" db:"block_reason"`
	SafetyState string          `json:"safety_state" db:"safety_state"`
	Mode        ExecutionMode   `json:"mode" db:"mode"`
	Score       *RegimeScore    `json:"score,omitempty"`
	Mandate     *TradingMandate `json:"mandate,omitempty"`
	Vol         *VolMetrics     `json:"vol,omitempty"`
	Structure   *StructMetrics  `json:"structure,omitempty"`
	Edge        *EdgeMetrics    `json:"edge,omitempty"`
	Risk        *PortfolioRisk  `json:"risk,omitempty"`
	Outcomes    []ActionOutcome `json:"outcomes,omitempty"`
}

// Summary renders a one-line journal summary for logs
func (r *CycleRecord) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle=%d spot=%.2f vix=%.2f", r.CycleSeq, r.Spot, r.VIX)
	if r.Blocked {
		fmt.Fprintf(&b, " blocked=%q", r.BlockReason)
	}
	if r.Score != nil {
		fmt.Fprintf(&b, " composite=%.2f", r.Score.Composite)
	}
	if r.Mandate != nil {
		fmt.Fprintf(&b, " regime=%s", r.Mandate.Regime)
	}
	fmt.Fprintf(&b, " actions=%d", len(r.Outcomes))
	return b.String()
}
