package history

import (
	"context"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// Repository stores and serves daily bars for the underlying and the
// volatility index. ClickHouse holds the long history the volatility engine
// needs; the broker is only asked for the tail since the last stored bar.
type Repository struct {
	db *sqlx.DB
}

// Connect opens the ClickHouse connection
func Connect(cfg *config.ClickHouseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("clickhouse", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	logger.Info("ClickHouse connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return db, nil
}

// NewRepository creates new history repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying ClickHouse connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetBars retrieves the most recent daily bars for a symbol, oldest first
func (r *Repository) GetBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	query := `
		SELECT timestamp, symbol, open, high, low, close, volume
		FROM daily_bars
		WHERE symbol = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryxContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	bars := []models.Bar{}
	for rows.Next() {
		var bar models.Bar
		var open, high, low, closePx, volume float64

		if err := rows.Scan(&bar.Timestamp, &bar.Symbol, &open, &high, &low, &closePx, &volume); err != nil {
			continue
		}

		bar.Open = models.NewDecimal(open)
		bar.High = models.NewDecimal(high)
		bar.Low = models.NewDecimal(low)
		bar.Close = models.NewDecimal(closePx)
		bar.Volume = models.NewDecimal(volume)

		bars = append(bars, bar)
	}

	// Reverse to chronological order (oldest first)
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}

	return bars, nil
}

// SaveBars stores daily bars
func (r *Repository) SaveBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO daily_bars (timestamp, symbol, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err = stmt.ExecContext(ctx,
			bar.Timestamp,
			bar.Symbol,
			bar.Open.InexactFloat64(),
			bar.High.InexactFloat64(),
			bar.Low.InexactFloat64(),
			bar.Close.InexactFloat64(),
			bar.Volume.InexactFloat64(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved bars to ClickHouse",
		zap.Int("count", len(bars)),
	)

	return nil
}

// LatestBarDate returns the timestamp of the newest stored bar for a symbol
func (r *Repository) LatestBarDate(ctx context.Context, symbol string) (time.Time, error) {
	query := `
		SELECT max(timestamp)
		FROM daily_bars
		WHERE symbol = ?
	`

	var latest time.Time
	if err := r.db.GetContext(ctx, &latest, query, symbol); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest bar date: %w", err)
	}

	return latest, nil
}
