package external

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// Provider serves institutional flow and event-calendar context from
// postgres. The data arrives end-of-day, so results are cached in memory and
// refreshed by a background worker; the decision loop only reads the cache.
type Provider struct {
	db *sqlx.DB

	mu     sync.RWMutex
	cached *models.ExternalMetrics
}

// NewProvider creates new external metrics provider
func NewProvider(db *sqlx.DB) *Provider {
	return &Provider{db: db}
}

type flowRow struct {
	DataDate time.Time `db:"data_date"`
	FIINet   float64   `db:"fii_net"`
	DIINet   float64   `db:"dii_net"`
}

type eventRow struct {
	EventDate time.Time `db:"event_date"`
	Name      string    `db:"name"`
	Severity  string    `db:"severity"`
}

// Metrics returns the cached external picture. A nil result means no refresh
// has succeeded yet; callers treat that as neutral context.
func (p *Provider) Metrics() *models.ExternalMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.cached == nil {
		return nil
	}
	snapshot := *p.cached
	return &snapshot
}

// Refresh reloads flow and event data from postgres and rebuilds the cache
func (p *Provider) Refresh(ctx context.Context) error {
	flow, err := p.latestFlow(ctx)
	if err != nil {
		return fmt.Errorf("failed to load institutional flow: %w", err)
	}

	events, err := p.upcomingEvents(ctx, 7)
	if err != nil {
		return fmt.Errorf("failed to load event calendar: %w", err)
	}

	metrics := &models.ExternalMetrics{
		EventRisk: classifyEventRisk(events, time.Now()),
	}
	if flow != nil {
		metrics.InstitutionalFlowNet = flow.FIINet + flow.DIINet
		metrics.Flow = classifyFlow(metrics.InstitutionalFlowNet)
		metrics.DataDate = flow.DataDate
	} else {
		metrics.Flow = models.FlowNeutral
	}

	p.mu.Lock()
	p.cached = metrics
	p.mu.Unlock()

	logger.Debug("external metrics refreshed",
		zap.Float64("flow_net", metrics.InstitutionalFlowNet),
		zap.String("flow_regime", string(metrics.Flow)),
		zap.String("event_risk", string(metrics.EventRisk)),
	)

	return nil
}

func (p *Provider) latestFlow(ctx context.Context) (*flowRow, error) {
	query := `
		SELECT data_date, fii_net, dii_net
		FROM institutional_flow
		ORDER BY data_date DESC
		LIMIT 1
	`

	var row flowRow
	err := p.db.GetContext(ctx, &row, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &row, nil
}

func (p *Provider) upcomingEvents(ctx context.Context, horizonDays int) ([]eventRow, error) {
	query := `
		SELECT event_date, name, severity
		FROM event_calendar
		WHERE event_date >= CURRENT_DATE AND event_date <= CURRENT_DATE + $1 * INTERVAL '1 day'
		ORDER BY event_date
	`

	var rows []eventRow
	if err := p.db.SelectContext(ctx, &rows, query, horizonDays); err != nil {
		return nil, err
	}

	return rows, nil
}

// SaveFlow upserts one day of institutional flow data
func (p *Provider) SaveFlow(ctx context.Context, date time.Time, fiiNet, diiNet float64) error {
	query := `
		INSERT INTO institutional_flow (data_date, fii_net, dii_net)
		VALUES ($1, $2, $3)
		ON CONFLICT (data_date) DO UPDATE SET fii_net = $2, dii_net = $3
	`

	if _, err := p.db.ExecContext(ctx, query, date, fiiNet, diiNet); err != nil {
		return fmt.Errorf("failed to save institutional flow: %w", err)
	}

	return nil
}

// classifyFlow buckets net institutional flow (crores) into a regime
func classifyFlow(net float64) models.FlowRegime {
	switch {
	case net > 2000:
		return models.FlowStrongLong
	case net > 500:
		return models.FlowModerateLong
	case net < -2000:
		return models.FlowStrongShort
	case net < -500:
		return models.FlowModerateShort
	default:
		return models.FlowNeutral
	}
}

// classifyEventRisk maps the nearest scheduled event to a risk tier. A
// high-severity event within 3 days is HIGH, anything within the 7 day
// window is at least MEDIUM.
func classifyEventRisk(events []eventRow, now time.Time) models.EventRisk {
	risk := models.EventRiskLow
	for _, ev := range events {
		days := ev.EventDate.Sub(now).Hours() / 24
		if ev.Severity == "HIGH" && days <= 3 {
			return models.EventRiskHigh
		}
		if days <= 7 {
			risk = models.EventRiskMedium
		}
	}
	return risk
}
