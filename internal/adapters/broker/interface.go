package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shritish20/volguard/pkg/models"
)

// ErrZeroPrice marks a quote that resolved to zero or null. The supervisor
// treats this as a critical data failure, not a soft zero.
var ErrZeroPrice = errors.New("quote resolved to zero price")

// ErrOrderRejected marks a placement the broker refused. Placements are never
// blindly retried; the failure is surfaced as an action outcome.
var ErrOrderRejected = errors.New("order rejected by broker")

// MarketDataProvider supplies history, quotes and option chains.
// Concrete broker SDK bindings are out of scope; implementations adapt
// whatever wire format the broker speaks to these calls.
type MarketDataProvider interface {
	// GetHistory returns daily bars for the symbol, oldest first
	GetHistory(ctx context.Context, symbol string, lookbackDays int) ([]models.Bar, error)
	// GetLiveQuote returns last prices keyed by symbol. A zero or missing
	// price yields an error wrapping ErrZeroPrice.
	GetLiveQuote(ctx context.Context, symbols []string) (map[string]float64, error)
	// GetOptionChain returns a full chain snapshot for the expiry
	GetOptionChain(ctx context.Context, expiry time.Time) (*models.OptionChain, error)
	// GetExpiriesAndLotSize returns the nearest weekly and monthly expiries
	// and the contract lot size
	GetExpiriesAndLotSize(ctx context.Context) (weekly, monthly time.Time, lotSize int, err error)
}

// ExecutionProvider owns the position book and order placement
type ExecutionProvider interface {
	// GetPositions reads the broker position book. Ground truth, re-read
	// every cycle.
	GetPositions(ctx context.Context) ([]models.Position, error)
	// PlaceOrder places a single leg and returns the broker order id
	PlaceOrder(ctx context.Context, leg models.Leg, orderType models.OrderType) (string, error)
	// CloseAllPositions flattens the book. Used by the emergency path only.
	CloseAllPositions(ctx context.Context, reason string) error
	// GetAvailableFunds returns free margin capital
	GetAvailableFunds(ctx context.Context) (float64, error)
	// GetMarginRequired returns the margin the broker demands for the leg set
	GetMarginRequired(ctx context.Context, legs []models.Leg) (float64, error)
}
