package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shritish20/volguard/pkg/models"
)

// Repository persists the decision journal, executed trades, and safety
// violations to postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new journal repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// RecordCycle appends one decision journal entry. Called once per supervisor
// cycle whether or not an action was taken.
func (r *Repository) RecordCycle(ctx context.Context, rec *models.CycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle payload: %w", err)
	}

	query := `
		INSERT INTO decision_journal
			(cycle_seq, timestamp, spot, vix, data_source, blocked, block_reason, safety_state, mode, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.CycleSeq, rec.Timestamp, rec.Spot, rec.VIX, rec.DataSource,
		rec.Blocked, rec.BlockReason, rec.SafetyState, rec.Mode, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle record: %w", err)
	}

	return nil
}

// RecordTrade persists one executed order
func (r *Repository) RecordTrade(ctx context.Context, trade *models.TradeRecord) error {
	query := `
		INSERT INTO trade_records
			(created_at, order_id, instrument_key, strategy, side, quantity, price, status, reason, mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	createdAt := trade.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		createdAt, trade.OrderID, trade.InstrumentKey, trade.Strategy,
		trade.Side, trade.Quantity, trade.Price, trade.Status, trade.Reason, trade.Mode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade record: %w", err)
	}

	return nil
}

// RecordViolation persists a safety violation for the audit trail
func (r *Repository) RecordViolation(ctx context.Context, violationType, severity, triggeredBy string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal violation details: %w", err)
	}

	query := `
		INSERT INTO safety_violations (timestamp, violation_type, severity, triggered_by, details)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, time.Now(), violationType, severity, triggeredBy, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to insert safety violation: %w", err)
	}

	return nil
}

// RecentCycles loads the most recent journal entries, newest first
func (r *Repository) RecentCycles(ctx context.Context, limit int) ([]models.CycleRecord, error) {
	query := `
		SELECT payload
		FROM decision_journal
		ORDER BY id DESC
		LIMIT $1
	`

	var payloads [][]byte
	if err := r.db.SelectContext(ctx, &payloads, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load recent cycles: %w", err)
	}

	records := make([]models.CycleRecord, 0, len(payloads))
	for _, p := range payloads {
		var rec models.CycleRecord
		if err := json.Unmarshal(p, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cycle payload: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// DailyRealizedPnL sums the realized pnl recorded on closing trades since the
// start of the trading day. Used by the capital governor's daily loss gate.
func (r *Repository) DailyRealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN side = 'BUY' THEN -price * quantity ELSE price * quantity END), 0)
		FROM trade_records
		WHERE created_at >= $1 AND status = 'FILLED'
	`

	var pnl float64
	if err := r.db.GetContext(ctx, &pnl, query, since); err != nil {
		return 0, fmt.Errorf("failed to compute daily pnl: %w", err)
	}

	return pnl, nil
}
