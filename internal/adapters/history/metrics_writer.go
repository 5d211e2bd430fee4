package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/pkg/logger"
)

// CycleMetric is one row of per-cycle telemetry written to ClickHouse
type CycleMetric struct {
	Timestamp   time.Time
	CycleSeq    int64
	DurationMS  float64
	Composite   float64
	VolScore    float64
	StructScore float64
	EdgeScore   float64
	RiskScore   float64
	NetDelta    float64
	Blocked     uint8
	SafetyState string
}

// MetricsWriter buffers cycle metrics and flushes them in batches so the
// control loop never blocks on the analytics store
type MetricsWriter struct {
	db       *Repository
	buffer   []CycleMetric
	bufferMu sync.Mutex
	maxBatch int
	ticker   *time.Ticker
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewMetricsWriter creates a batched metrics writer
func NewMetricsWriter(repo *Repository, maxBatch int, maxWait time.Duration) *MetricsWriter {
	ctx, cancel := context.WithCancel(context.Background())

	mw := &MetricsWriter{
		db:       repo,
		buffer:   make([]CycleMetric, 0, maxBatch),
		maxBatch: maxBatch,
		ticker:   time.NewTicker(maxWait),
		ctx:      ctx,
		cancel:   cancel,
	}

	mw.wg.Add(1)
	go mw.autoFlush()

	return mw
}

// Add buffers one metric row
func (mw *MetricsWriter) Add(m CycleMetric) {
	mw.bufferMu.Lock()
	mw.buffer = append(mw.buffer, m)
	shouldFlush := len(mw.buffer) >= mw.maxBatch
	mw.bufferMu.Unlock()

	if shouldFlush {
		mw.flush()
	}
}

func (mw *MetricsWriter) autoFlush() {
	defer mw.wg.Done()

	for {
		select {
		case <-mw.ticker.C:
			mw.flush()
		case <-mw.ctx.Done():
			mw.flush()
			return
		}
	}
}

func (mw *MetricsWriter) flush() {
	mw.bufferMu.Lock()
	if len(mw.buffer) == 0 {
		mw.bufferMu.Unlock()
		return
	}
	batch := mw.buffer
	mw.buffer = make([]CycleMetric, 0, mw.maxBatch)
	mw.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mw.writeBatch(ctx, batch); err != nil {
		// Telemetry loss is acceptable; trading is not affected
		logger.Error("failed to flush cycle metrics",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
}

func (mw *MetricsWriter) writeBatch(ctx context.Context, batch []CycleMetric) error {
	tx, err := mw.db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO cycle_metrics
		(timestamp, cycle_seq, duration_ms, composite, vol_score, struct_score,
		 edge_score, risk_score, net_delta, blocked, safety_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range batch {
		_, err = stmt.ExecContext(ctx,
			m.Timestamp, m.CycleSeq, m.DurationMS, m.Composite, m.VolScore,
			m.StructScore, m.EdgeScore, m.RiskScore, m.NetDelta, m.Blocked, m.SafetyState,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	return tx.Commit()
}

// Close flushes remaining rows and stops the writer
func (mw *MetricsWriter) Close() {
	mw.cancel()
	mw.ticker.Stop()
	mw.wg.Wait()
}
