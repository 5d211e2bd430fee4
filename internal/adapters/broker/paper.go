package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// PaperBroker simulates the execution provider in memory. Fills are immediate
// at the leg price; funds and margin follow the same conservative per-lot
// heuristic the capital governor falls back to, so paper and live gating agree.
type PaperBroker struct {
	mu               sync.Mutex
	funds            float64
	marginSellPerLot float64
	marginBuyPerLot  float64
	positions        map[string]models.Position
	orderSeq         int64
}

// NewPaperBroker creates a paper execution provider seeded with base capital
func NewPaperBroker(baseCapital, marginSellPerLot, marginBuyPerLot float64) *PaperBroker {
	return &PaperBroker{
		funds:            baseCapital,
		marginSellPerLot: marginSellPerLot,
		marginBuyPerLot:  marginBuyPerLot,
		positions:        make(map[string]models.Position),
	}
}

// GetPositions returns the simulated position book
func (b *PaperBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

// PlaceOrder fills the leg immediately at its price
func (b *PaperBroker) PlaceOrder(ctx context.Context, leg models.Leg, orderType models.OrderType) (string, error) {
	if leg.Quantity <= 0 {
		return "", fmt.Errorf("%w: non-positive quantity %d", ErrOrderRejected, leg.Quantity)
	}
	if leg.Side != models.SideBuy && leg.Side != models.SideSell {
		return "", fmt.Errorf("%w: invalid side %q", ErrOrderRejected, leg.Side)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", b.orderSeq)

	existing, ok := b.positions[leg.InstrumentKey]
	if ok && existing.Side != leg.Side {
		// Opposite side reduces or closes the existing position
		remaining := existing.Quantity - leg.Quantity
		if remaining <= 0 {
			delete(b.positions, leg.InstrumentKey)
		} else {
			existing.Quantity = remaining
			b.positions[leg.InstrumentKey] = existing
		}
	} else {
		pos := models.Position{
			InstrumentKey: leg.InstrumentKey,
			Symbol:        leg.InstrumentKey,
			Strike:        leg.Strike,
			OptionType:    leg.OptionType,
			Side:          leg.Side,
			Quantity:      leg.Quantity,
			LotSize:       leg.LotSize,
			AvgPrice:      leg.Price,
			CurrentPrice:  leg.Price,
		}
		if ok {
			pos.Quantity += existing.Quantity
		}
		b.positions[leg.InstrumentKey] = pos
	}

	logger.Info("paper order filled",
		zap.String("order_id", orderID),
		zap.String("instrument", leg.InstrumentKey),
		zap.String("side", string(leg.Side)),
		zap.Int("quantity", leg.Quantity),
	)

	return orderID, nil
}

// CloseAllPositions flattens the simulated book
func (b *PaperBroker) CloseAllPositions(ctx context.Context, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := len(b.positions)
	b.positions = make(map[string]models.Position)

	logger.Warn("paper broker closed all positions",
		zap.Int("count", count),
		zap.String("reason", reason),
	)
	return nil
}

// GetAvailableFunds returns the simulated free capital
func (b *PaperBroker) GetAvailableFunds(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.funds, nil
}

// GetMarginRequired estimates margin with the same per-lot heuristic used by
// the capital governor fallback
func (b *PaperBroker) GetMarginRequired(ctx context.Context, legs []models.Leg) (float64, error) {
	total := 0.0
	for _, leg := range legs {
		lots := leg.Lots()
		if lots <= 0 {
			lots = 1
		}
		if leg.Side == models.SideSell {
			total += float64(lots) * b.marginSellPerLot
		} else {
			total += float64(lots) * b.marginBuyPerLot
		}
	}
	return total, nil
}

// SetMarkPrice updates the simulated mark price of an open position so exit
// rules can be exercised in tests
func (b *PaperBroker) SetMarkPrice(instrumentKey string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.positions[instrumentKey]; ok {
		p.CurrentPrice = models.NewDecimal(price)
		b.positions[instrumentKey] = p
	}
}

// SeedPosition injects a position directly, for tests and paper warm starts
func (b *PaperBroker) SeedPosition(p models.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Expiry.IsZero() {
		p.Expiry = time.Now().AddDate(0, 0, 30)
	}
	b.positions[p.InstrumentKey] = p
}
