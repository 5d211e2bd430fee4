package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// ExecutionMode gates whether decided actions are simulated, require manual
// approval, or execute live. Independent of the safety state.
type ExecutionMode string

const (
	ModePaper    ExecutionMode = "paper"
	ModeSemiAuto ExecutionMode = "semi_auto"
	ModeFullAuto ExecutionMode = "full_auto"
)

// OrderSide represents buy or sell
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the closing side for a position side
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents order type
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OptionType represents call or put
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Bar represents a daily OHLC bar for the underlying or the volatility index
type Bar struct {
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Open      decimal.Decimal `json:"open" db:"open"`
	High      decimal.Decimal `json:"high" db:"high"`
	Low       decimal.Decimal `json:"low" db:"low"`
	Close     decimal.Decimal `json:"close" db:"close"`
	Volume    decimal.Decimal `json:"volume" db:"volume"`
}

// Greeks represents option price sensitivities
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	IV    float64 `json:"iv"`
}

// ChainRow represents one strike of an option chain with both sides
type ChainRow struct {
	Strike     float64 `json:"strike"`
	CallKey    string  `json:"call_key"`
	PutKey     string  `json:"put_key"`
	CallOI     float64 `json:"call_oi"`
	PutOI      float64 `json:"put_oi"`
	CallDelta  float64 `json:"call_delta"`
	PutDelta   float64 `json:"put_delta"`
	CallGamma  float64 `json:"call_gamma"`
	PutGamma   float64 `json:"put_gamma"`
	CallIV     float64 `json:"call_iv"`
	PutIV      float64 `json:"put_iv"`
	CallPrice  float64 `json:"call_price"`
	PutPrice   float64 `json:"put_price"`
	CallBid    float64 `json:"call_bid"`
	CallAsk    float64 `json:"call_ask"`
	PutBid     float64 `json:"put_bid"`
	PutAsk     float64 `json:"put_ask"`
	CallVolume int     `json:"call_volume"`
	PutVolume  int     `json:"put_volume"`
}

// OptionChain represents a full chain snapshot for one expiry
type OptionChain struct {
	Expiry  time.Time  `json:"expiry"`
	LotSize int        `json:"lot_size"`
	Rows    []ChainRow `json:"rows"`
}

// Empty reports whether the chain carries no strikes
func (c *OptionChain) Empty() bool {
	return c == nil || len(c.Rows) == 0
}

// DaysToExpiry returns whole days until the chain expiry
func (c *OptionChain) DaysToExpiry(now time.Time) int {
	if c == nil || c.Expiry.IsZero() {
		return 999
	}
	d := int(c.Expiry.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// MarketSnapshot is the per-cycle view of the market. Spot and VIX must be
// strictly positive for downstream computation to proceed.
type MarketSnapshot struct {
	Timestamp    time.Time         `json:"timestamp"`
	Spot         float64           `json:"spot"`
	VIX          float64           `json:"vix"`
	WeeklyChain  *OptionChain      `json:"weekly_chain,omitempty"`
	MonthlyChain *OptionChain      `json:"monthly_chain,omitempty"`
	LiveGreeks   map[string]Greeks `json:"live_greeks,omitempty"`
	Source       string            `json:"source"`
}

// Position represents one open broker position. The broker's position book is
// the source of truth; this is a per-cycle read, never a local ledger.
type Position struct {
	InstrumentKey string          `json:"instrument_key"`
	Symbol        string          `json:"symbol"`
	Strike        float64         `json:"strike"`
	Expiry        time.Time       `json:"expiry"`
	OptionType    OptionType      `json:"option_type"`
	Side          OrderSide       `json:"side"`
	Quantity      int             `json:"quantity"`
	LotSize       int             `json:"lot_size"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Greeks        Greeks          `json:"greeks"`
}

// IsOption reports whether the position is an option leg (futures carry no strike)
func (p *Position) IsOption() bool {
	return p.Strike > 0
}

// DaysToExpiry returns whole days until position expiry
func (p *Position) DaysToExpiry(now time.Time) int {
	if p.Expiry.IsZero() {
		return 999
	}
	d := int(p.Expiry.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// LegRole marks whether a leg is a core (premium) leg or a protective wing
type LegRole string

const (
	RoleCore  LegRole = "CORE"
	RoleHedge LegRole = "HEDGE"
)

// Leg represents one concrete option order leg
type Leg struct {
	InstrumentKey string          `json:"instrument_key"`
	Strike        float64         `json:"strike"`
	OptionType    OptionType      `json:"option_type"`
	Side          OrderSide       `json:"side"`
	Quantity      int             `json:"quantity"`
	LotSize       int             `json:"lot_size"`
	Price         decimal.Decimal `json:"price"`
	Role          LegRole         `json:"role"`
}

// Lots returns the leg quantity in lots
func (l *Leg) Lots() int {
	if l.LotSize <= 0 {
		return 0
	}
	return l.Quantity / l.LotSize
}

// TradeRecord is the persisted record of one executed order
type TradeRecord struct {
	ID            int64           `json:"id" db:"id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	OrderID       string          `json:"order_id" db:"order_id"`
	InstrumentKey string          `json:"instrument_key" db:"instrument_key"`
	Strategy      string          `json:"strategy" db:"strategy"`
	Side          OrderSide       `json:"side" db:"side"`
	Quantity      int             `json:"quantity" db:"quantity"`
	Price         decimal.Decimal `json:"price" db:"price"`
	Status        string          `json:"status" db:"status"`
	Reason        string          `json:"reason" db:"reason"`
	Mode          ExecutionMode   `json:"mode" db:"mode"`
}
