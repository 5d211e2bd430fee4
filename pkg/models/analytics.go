package models

import "time"

// GammaRegime classifies dealer gamma positioning
type GammaRegime string

const (
	GammaSticky   GammaRegime = "STICKY"
	GammaSlippery GammaRegime = "SLIPPERY"
	GammaNeutral  GammaRegime = "NEUTRAL"
)

// DirectionalRegime classifies structural bias from positioning
type DirectionalRegime string

const (
	DirectionBullish DirectionalRegime = "BULLISH"
	DirectionBearish DirectionalRegime = "BEARISH"
	DirectionNeutral DirectionalRegime = "NEUTRAL"
)

// FlowRegime classifies net institutional positioning
type FlowRegime string

const (
	FlowStrongLong    FlowRegime = "STRONG_LONG"
	FlowModerateLong  FlowRegime = "MODERATE_LONG"
	FlowNeutral       FlowRegime = "NEUTRAL"
	FlowModerateShort FlowRegime = "MODERATE_SHORT"
	FlowStrongShort   FlowRegime = "STRONG_SHORT"
)

// EventRisk classifies scheduled macro event exposure
type EventRisk string

const (
	EventRiskHigh   EventRisk = "HIGH"
	EventRiskMedium EventRisk = "MEDIUM"
	EventRiskLow    EventRisk = "LOW"
)

// EdgeLabel names the primary detected volatility edge
type EdgeLabel string

const (
	EdgeLongVol  EdgeLabel = "LONG_VOL"  // cheap vol, buy
	EdgeShortVol EdgeLabel = "SHORT_VOL" // sell gamma, high premium
	EdgeCalendar EdgeLabel = "CALENDAR"  // backwardated term structure
	EdgeNone     EdgeLabel = "NONE"
)

// Confidence tiers for the composite regime score
type Confidence string

const (
	ConfidenceVeryHigh Confidence = "VERY_HIGH"
	ConfidenceHigh     Confidence = "HIGH"
	ConfidenceModerate Confidence = "MODERATE"
	ConfidenceLow      Confidence = "LOW"
)

// VolMetrics is the per-cycle volatility picture. Immutable after creation.
// IsFallback marks that a live input was substituted or a model degraded;
// FallbackReason says which, so the journal can distinguish a genuinely
// neutral result from a substituted safe default.
type VolMetrics struct {
	Spot           float64 `json:"spot"`
	VIX            float64 `json:"vix"`
	RealizedVol7   float64 `json:"rv_7"`
	RealizedVol28  float64 `json:"rv_28"`
	RealizedVol90  float64 `json:"rv_90"`
	GARCH7         float64 `json:"garch_7"`
	GARCH28        float64 `json:"garch_28"`
	Parkinson7     float64 `json:"pk_7"`
	Parkinson28    float64 `json:"pk_28"`
	VolOfVol       float64 `json:"vol_of_vol"`
	VolOfVolZScore float64 `json:"vol_of_vol_zscore"`
	IVPercentile30 float64 `json:"ivp_30"`
	IVPercentile90 float64 `json:"ivp_90"`
	IVPercentile1Y float64 `json:"ivp_1y"`
	TrendStrength  float64 `json:"trend_strength"`
	IsFallback     bool    `json:"is_fallback"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// StructMetrics is the option-chain positioning picture, recomputed every cycle
type StructMetrics struct {
	NetGammaExposure float64           `json:"net_gamma_exposure"`
	GammaRegime      GammaRegime       `json:"gamma_regime"`
	PutCallRatio     float64           `json:"put_call_ratio"`
	MaxPainStrike    float64           `json:"max_pain_strike"`
	LotSize          int               `json:"lot_size"`
	Skew25Delta      float64           `json:"skew_25delta"`
	Directional      DirectionalRegime `json:"directional_regime"`
	IsFallback       bool              `json:"is_fallback"`
	FallbackReason   string            `json:"fallback_reason,omitempty"`
}

// EdgeMetrics quantifies the premium-selling edge per horizon
type EdgeMetrics struct {
	IVWeekly       float64   `json:"iv_weekly"`
	IVMonthly      float64   `json:"iv_monthly"`
	TermStructure  float64   `json:"term_structure"`
	VRPRealizedW   float64   `json:"vrp_rv_weekly"`
	VRPRealizedM   float64   `json:"vrp_rv_monthly"`
	VRPGarchW      float64   `json:"vrp_garch_weekly"`
	VRPGarchM      float64   `json:"vrp_garch_monthly"`
	VRPParkinsonW  float64   `json:"vrp_pk_weekly"`
	VRPParkinsonM  float64   `json:"vrp_pk_monthly"`
	Primary        EdgeLabel `json:"primary_edge"`
	IsFallback     bool      `json:"is_fallback"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
}

// ExternalMetrics supplies macro and flow context
type ExternalMetrics struct {
	InstitutionalFlowNet float64    `json:"institutional_flow_net"`
	Flow                 FlowRegime `json:"flow_regime"`
	EventRisk            EventRisk  `json:"event_risk"`
	DataDate             time.Time  `json:"data_date"`
}

// RegimeScore is the weighted composite of the four signal components
type RegimeScore struct {
	VolScore    float64    `json:"vol_score"`
	StructScore float64    `json:"struct_score"`
	EdgeScore   float64    `json:"edge_score"`
	RiskScore   float64    `json:"risk_score"`
	Composite   float64    `json:"composite"`
	Confidence  Confidence `json:"confidence"`
}

// TradingMandate is the capital and strategy envelope for the cycle.
// Created fresh every cycle, never mutated, always journaled.
type TradingMandate struct {
	Regime        string   `json:"regime"`
	Strategy      string   `json:"strategy"`
	AllocationPct float64  `json:"allocation_pct"`
	MaxLots       int      `json:"max_lots"`
	Rationale     []string `json:"rationale,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	IsFallback    bool     `json:"is_fallback"`
}

// PortfolioRisk aggregates per-position greeks and stress results for one cycle
type PortfolioRisk struct {
	NetDelta      float64            `json:"net_delta"`
	NetGamma      float64            `json:"net_gamma"`
	NetTheta      float64            `json:"net_theta"`
	NetVega       float64            `json:"net_vega"`
	PositionCount int                `json:"position_count"`
	UnrealizedPnL float64            `json:"unrealized_pnl"`
	LimitBreaches []string           `json:"limit_breaches,omitempty"`
	WorstCase     StressResult       `json:"worst_case"`
	StressMatrix  []StressResult     `json:"stress_matrix,omitempty"`
	PerPosition   map[string]float64 `json:"per_position_delta,omitempty"`
}

// StressResult is one simulated shock scenario outcome
type StressResult struct {
	SpotShock    float64 `json:"spot_shock"`
	VolShock     float64 `json:"vol_shock"`
	ProjectedPnL float64 `json:"projected_pnl"`
}
