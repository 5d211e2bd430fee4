package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shritish20/volguard/internal/adapters/broker"
	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/internal/adapters/feed"
	"github.com/shritish20/volguard/internal/adapters/history"
	redisAdapter "github.com/shritish20/volguard/internal/adapters/redis"
	"github.com/shritish20/volguard/internal/adapters/telegram"
	"github.com/shritish20/volguard/internal/analytics"
	"github.com/shritish20/volguard/internal/dataquality"
	"github.com/shritish20/volguard/internal/external"
	"github.com/shritish20/volguard/internal/risk"
	"github.com/shritish20/volguard/internal/safety"
	"github.com/shritish20/volguard/internal/trading"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
)

// feedStaleAfter bounds how old a portfolio greeks update may be before the
// cross-check against computed greeks is skipped
const feedStaleAfter = 30 * time.Second

// deltaDivergenceWarn is the absolute net delta gap between the feed and the
// local aggregation that triggers a warning
const deltaDivergenceWarn = 50.0

// Journal persists the decision audit trail
type Journal interface {
	RecordCycle(ctx context.Context, rec *models.CycleRecord) error
	RecordTrade(ctx context.Context, trade *models.TradeRecord) error
}

// Deps carries every collaborator the supervisor needs. All are injected;
// the supervisor builds nothing itself.
type Deps struct {
	Config   *config.Config
	Market   broker.MarketDataProvider
	Exec     broker.ExecutionProvider
	Gate     *dataquality.Gate
	Vol      *analytics.VolatilityEngine
	Struct   *analytics.StructureEngine
	Edge     *analytics.EdgeEngine
	Regime   *analytics.RegimeEngine
	Risk     *risk.Engine
	Governor *risk.CapitalGovernor
	Buckets  *risk.BucketEngine
	Selector *trading.Selector
	Builder  *trading.LegBuilder
	Adjuster *trading.AdjustmentEngine
	Exits    *trading.ExitEngine
	Safety   *safety.Controller
	Journal  Journal
	Metrics  *history.MetricsWriter // optional
	History  *history.Repository
	External *external.Provider
	Feed     *feed.GreeksClient // optional
	Lock     redisAdapter.SupervisorLock
	Alerter  telegram.Alerter
}

// Supervisor owns the decision loop: fetch, validate, analyze, decide, gate,
// dispatch, journal. One cycle per loop interval; a failed cycle is recorded
// and the next one starts clean.
type Supervisor struct {
	deps Deps
	cfg  *config.Config

	cycleSeq   int64
	currentDay string

	mu             sync.Mutex
	underlyingBars []models.Bar
	volIndexBars   []models.Bar
	weeklyExpiry   time.Time
	monthlyExpiry  time.Time
	lotSize        int
}

// New creates the supervisor from its injected collaborators
func New(deps Deps) *Supervisor {
	if deps.Alerter == nil {
		deps.Alerter = telegram.NopAlerter{}
	}
	if deps.Lock == nil {
		deps.Lock = redisAdapter.NopLock{}
	}
	return &Supervisor{deps: deps, cfg: deps.Config}
}

// Run executes the decision loop until the context is cancelled
func (s *Supervisor) Run(ctx context.Context) {
	logger.Info("supervisor loop starting",
		zap.Duration("interval", s.cfg.Supervisor.LoopInterval))

	for {
		start := time.Now()

		s.runCycle(ctx)

		remaining := s.cfg.Supervisor.LoopInterval - time.Since(start)
		if remaining < 0 {
			remaining = 0
		}
		select {
		case <-ctx.Done():
			logger.Info("supervisor loop stopping")
			return
		case <-time.After(remaining):
		}
	}
}

func (s *Supervisor) runCycle(ctx context.Context) {
	now := time.Now()
	s.cycleSeq++

	s.rolloverDay(now)

	// The kill switch file overrides everything, leader or not.
	if s.killSwitchTripped() {
		s.handleKillSwitch(ctx)
		return
	}

	if !s.ensureLeader(ctx) {
		return
	}

	if !s.deps.Gate.MarketOpen(now) {
		return
	}

	record := &models.CycleRecord{
		CycleSeq:    s.cycleSeq,
		Timestamp:   now,
		SafetyState: s.deps.Safety.State().String(),
		Mode:        s.deps.Safety.Mode(),
	}
	defer s.journalCycle(ctx, record, now)

	snap, positions, err := s.fetchMarketState(ctx, now)
	if err != nil {
		s.deps.Safety.RecordFailure(ctx, "fetch_failure", map[string]any{"error": err.Error()})
		record.Blocked = true
		record.BlockReason = fmt.Sprintf("fetch failed: %v", err)
		return
	}
	record.Spot = snap.Spot
	record.VIX = snap.VIX
	record.DataSource = snap.Source

	if res := s.deps.Gate.ValidateSnapshot(snap, now); !res.Valid {
		s.deps.Safety.RecordFailure(ctx, "data_quality", map[string]any{"reason": res.Reason})
		record.Blocked = true
		record.BlockReason = res.Reason
		return
	}
	if res := s.deps.Gate.ValidateChain(snap.WeeklyChain); !res.Valid {
		s.deps.Safety.RecordFailure(ctx, "chain_quality", map[string]any{"reason": res.Reason})
		record.Blocked = true
		record.BlockReason = "weekly chain: " + res.Reason
		return
	}
	s.deps.Safety.RecordSuccess()

	// Analytics chain. Each engine degrades to a tagged fallback on bad
	// input instead of failing the cycle.
	s.mu.Lock()
	underlying := s.underlyingBars
	volIndex := s.volIndexBars
	lotSize := s.lotSize
	s.mu.Unlock()

	weeklyDTE := snap.WeeklyChain.DaysToExpiry(now)

	vol := s.deps.Vol.Compute(underlying, volIndex, snap.Spot, snap.VIX)
	st := s.deps.Struct.Analyze(snap.WeeklyChain, snap.Spot, lotSize)
	ed := s.deps.Edge.Detect(snap.WeeklyChain, snap.MonthlyChain, snap.Spot, vol)
	ext := s.deps.External.Metrics()

	score := s.deps.Regime.Score(vol, st, ed, ext, weeklyDTE)
	mandate := s.deps.Regime.Mandate(score, vol, ext, weeklyDTE)

	portfolioRisk := s.deps.Risk.Aggregate(positions, snap, now)
	s.crossCheckFeed(&portfolioRisk, now)

	record.Vol = &vol
	record.Structure = &st
	record.Edge = &ed
	record.Score = &score
	record.Mandate = &mandate
	record.Risk = &portfolioRisk

	s.deps.Governor.SetOpenPositions(len(positions))
	s.deps.Buckets.EnforceRegime(mandate.Regime)

	actions := s.decideActions(positions, snap, &portfolioRisk, &mandate, &vol, weeklyDTE, now)
	for _, action := range actions {
		record.Outcomes = append(record.Outcomes, s.gateAndDispatch(ctx, action))
	}
}

// decideActions produces this cycle's actions in strict priority order:
// exits first, then one hedge, then at most one entry when the book is flat.
func (s *Supervisor) decideActions(
	positions []models.Position,
	snap *models.MarketSnapshot,
	portfolioRisk *models.PortfolioRisk,
	mandate *models.TradingMandate,
	vol *models.VolMetrics,
	weeklyDTE int,
	now time.Time,
) []models.Action {
	var actions []models.Action

	exits := s.deps.Exits.Evaluate(positions, snap, now)
	for _, e := range exits {
		actions = append(actions, e)
	}
	if len(exits) > 0 {
		return actions
	}

	if hedge := s.deps.Adjuster.Propose(portfolioRisk, snap.WeeklyChain, now); hedge != nil {
		return []models.Action{hedge}
	}

	// Entries only on a flat book: one structure at a time.
	if len(positions) > 0 || mandate.MaxLots <= 0 || mandate.AllocationPct <= 0 {
		return actions
	}

	def := s.deps.Selector.Select(mandate.Regime, vol)
	if def == nil {
		return actions
	}

	legs, err := s.deps.Builder.Build(def, snap.WeeklyChain, snap.Spot, mandate.MaxLots)
	if err != nil {
		logger.Warn("leg build failed",
			zap.String("strategy", def.Name),
			zap.Error(err))
		return actions
	}

	return []models.Action{&models.EntryAction{
		Strategy:      def.Name,
		Legs:          legs,
		AllocationPct: mandate.AllocationPct,
		Reason:        fmt.Sprintf("regime %s, dte %d", mandate.Regime, weeklyDTE),
	}}
}

// gateAndDispatch runs one action through the safety gate, the capital
// governor and the bucket gate, then places its legs
func (s *Supervisor) gateAndDispatch(ctx context.Context, action models.Action) models.ActionOutcome {
	outcome := models.ActionOutcome{
		Action: action.Describe(),
		Kind:   action.Kind(),
	}
	isExit := action.Kind() == models.KindExit

	var decision safety.Decision
	if action.Kind() == models.KindHedge {
		decision = s.deps.Safety.CanAdjustTrade(ctx)
	} else {
		decision = s.deps.Safety.CanExecuteTrade(action.Kind())
	}
	if !decision.Allowed {
		outcome.BlockReason = "safety: " + decision.Reason
		return outcome
	}

	legs := action.OrderLegs()
	gate := s.deps.Governor.CanTradeNew(ctx, legs, string(action.Kind()), isExit)
	if !gate.Allowed {
		outcome.BlockReason = "capital: " + gate.Reason
		return outcome
	}

	if action.Kind() == models.KindEntry {
		if ok, reason := s.deps.Buckets.CanDeploy(risk.BucketWeekly, gate.RequiredMargin); !ok {
			outcome.BlockReason = "bucket: " + reason
			return outcome
		}
	}

	for _, leg := range legs {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Supervisor.CallTimeout)
		orderID, err := s.deps.Exec.PlaceOrder(callCtx, leg, models.TypeMarket)
		cancel()
		if err != nil {
			outcome.Error = fmt.Sprintf("leg %s: %v", leg.InstrumentKey, err)
			logger.Error("order placement failed",
				zap.String("instrument", leg.InstrumentKey),
				zap.Error(err))
			break
		}
		outcome.OrderIDs = append(outcome.OrderIDs, orderID)
		s.recordTrade(ctx, leg, orderID, action)
	}

	outcome.Dispatched = len(outcome.OrderIDs) > 0
	if outcome.Dispatched {
		// Realized P&L from filled exits feeds the daily loss gate.
		if exit, ok := action.(*models.ExitAction); ok {
			s.deps.Governor.RecordRealizedPnL(exit.PnL)
		}
		// Only dispatched hedges count against the hourly rate limit.
		if action.Kind() == models.KindHedge {
			s.deps.Safety.RecordAdjustment()
		}
		s.deps.Alerter.Alert(telegram.SeverityTrade, "Order dispatched", action.Describe())
	}
	return outcome
}

func (s *Supervisor) recordTrade(ctx context.Context, leg models.Leg, orderID string, action models.Action) {
	trade := &models.TradeRecord{
		CreatedAt:     time.Now(),
		OrderID:       orderID,
		InstrumentKey: leg.InstrumentKey,
		Strategy:      string(action.Kind()),
		Side:          leg.Side,
		Quantity:      leg.Quantity,
		Price:         leg.Price,
		Status:        "FILLED",
		Reason:        action.Describe(),
		Mode:          s.deps.Safety.Mode(),
	}
	if entry, ok := action.(*models.EntryAction); ok {
		trade.Strategy = entry.Strategy
	}
	if err := s.deps.Journal.RecordTrade(ctx, trade); err != nil {
		logger.Error("failed to record trade", zap.Error(err))
	}
}

// fetchMarketState reads quotes, chains and positions concurrently. Any
// failed read fails the whole fetch; partial market state is worse than none.
func (s *Supervisor) fetchMarketState(ctx context.Context, now time.Time) (*models.MarketSnapshot, []models.Position, error) {
	s.mu.Lock()
	weekly := s.weeklyExpiry
	monthly := s.monthlyExpiry
	s.mu.Unlock()

	if weekly.IsZero() {
		if err := s.RefreshInstruments(ctx); err != nil {
			return nil, nil, fmt.Errorf("instrument refresh: %w", err)
		}
		s.mu.Lock()
		weekly = s.weeklyExpiry
		monthly = s.monthlyExpiry
		s.mu.Unlock()
	}

	var (
		wg          sync.WaitGroup
		quotes      map[string]float64
		weeklyChain *models.OptionChain
		monthChain  *models.OptionChain
		positions   []models.Position
		errs        [4]error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		errs[0] = s.retry(ctx, "live_quote", func(c context.Context) error {
			var err error
			quotes, err = s.deps.Market.GetLiveQuote(c, []string{
				s.cfg.Trading.UnderlyingSymbol, s.cfg.Trading.VolIndexSymbol,
			})
			return err
		})
	}()
	go func() {
		defer wg.Done()
		errs[1] = s.retry(ctx, "weekly_chain", func(c context.Context) error {
			var err error
			weeklyChain, err = s.deps.Market.GetOptionChain(c, weekly)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		errs[2] = s.retry(ctx, "monthly_chain", func(c context.Context) error {
			var err error
			monthChain, err = s.deps.Market.GetOptionChain(c, monthly)
			return err
		})
	}()
	go func() {
		defer wg.Done()
		errs[3] = s.retry(ctx, "positions", func(c context.Context) error {
			var err error
			positions, err = s.deps.Exec.GetPositions(c)
			return err
		})
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	snap := &models.MarketSnapshot{
		Timestamp:    now,
		Spot:         quotes[s.cfg.Trading.UnderlyingSymbol],
		VIX:          quotes[s.cfg.Trading.VolIndexSymbol],
		WeeklyChain:  weeklyChain,
		MonthlyChain: monthChain,
		Source:       "live",
	}
	return snap, positions, nil
}

// retry wraps an idempotent read with bounded retries and a per-call timeout.
// Order placement is never routed through here.
func (s *Supervisor) retry(ctx context.Context, name string, fn func(context.Context) error) error {
	attempts := s.cfg.Supervisor.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Supervisor.CallTimeout)
		lastErr = fn(callCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		logger.Warn("read failed, retrying",
			zap.String("call", name),
			zap.Int("attempt", i+1),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.Supervisor.RetryBackoff):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

// crossCheckFeed compares the websocket portfolio greeks against the locally
// aggregated book and warns on divergence. The local number stays
// authoritative either way.
func (s *Supervisor) crossCheckFeed(portfolioRisk *models.PortfolioRisk, now time.Time) {
	if s.deps.Feed == nil {
		return
	}
	update := s.deps.Feed.Latest()
	if update == nil || now.Sub(update.ReceivedAt) > feedStaleAfter {
		return
	}

	gap := portfolioRisk.NetDelta - update.Greeks.Delta
	if gap < 0 {
		gap = -gap
	}
	if gap > deltaDivergenceWarn {
		logger.Warn("feed and computed net delta diverge",
			zap.Float64("computed", portfolioRisk.NetDelta),
			zap.Float64("feed", update.Greeks.Delta))
	}
}

// rolloverDay clears the governor's realized loss accumulator when the
// session date changes
func (s *Supervisor) rolloverDay(now time.Time) {
	day := now.Format("2006-01-02")
	if day == s.currentDay {
		return
	}
	if s.currentDay != "" {
		s.deps.Governor.ResetDay()
		logger.Info("session rollover, daily loss gate reset", zap.String("day", day))
	}
	s.currentDay = day
}

func (s *Supervisor) killSwitchTripped() bool {
	if s.cfg.Supervisor.KillSwitchFile == "" {
		return false
	}
	_, err := os.Stat(s.cfg.Supervisor.KillSwitchFile)
	return err == nil
}

func (s *Supervisor) handleKillSwitch(ctx context.Context) {
	if s.deps.Safety.State() >= safety.StateEmergency {
		return
	}

	logger.Error("kill switch file present",
		zap.String("file", s.cfg.Supervisor.KillSwitchFile))
	s.deps.Safety.Escalate(ctx, safety.StateEmergency, "kill switch file present", nil)
	s.deps.Alerter.Alert(telegram.SeverityEmergency, "Kill switch",
		"flattening all positions")

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.deps.Exec.CloseAllPositions(callCtx, "kill switch"); err != nil {
		logger.Error("emergency close failed", zap.Error(err))
	}
}

// ensureLeader acquires or confirms the leader lock. Non-leaders idle.
func (s *Supervisor) ensureLeader(ctx context.Context) bool {
	if s.deps.Lock.Held() {
		return true
	}
	ok, err := s.deps.Lock.TryAcquire(ctx)
	if err != nil {
		logger.Warn("leader lock acquire failed", zap.Error(err))
		return false
	}
	if !ok {
		logger.Debug("standing by, another instance leads")
	}
	return ok
}

func (s *Supervisor) journalCycle(ctx context.Context, record *models.CycleRecord, started time.Time) {
	if err := s.deps.Journal.RecordCycle(ctx, record); err != nil {
		logger.Error("failed to journal cycle", zap.Error(err))
	}

	if s.deps.Metrics != nil {
		metric := history.CycleMetric{
			Timestamp:   record.Timestamp,
			CycleSeq:    record.CycleSeq,
			DurationMS:  float64(time.Since(started).Microseconds()) / 1000,
			SafetyState: record.SafetyState,
		}
		if record.Blocked {
			metric.Blocked = 1
		}
		if record.Score != nil {
			metric.Composite = record.Score.Composite
			metric.VolScore = record.Score.VolScore
			metric.StructScore = record.Score.StructScore
			metric.EdgeScore = record.Score.EdgeScore
			metric.RiskScore = record.Score.RiskScore
		}
		if record.Risk != nil {
			metric.NetDelta = record.Risk.NetDelta
		}
		s.deps.Metrics.Add(metric)
	}

	logger.Info("cycle complete", zap.String("summary", record.Summary()))
}

// RefreshInstruments reloads expiries and lot size from the market provider
func (s *Supervisor) RefreshInstruments(ctx context.Context) error {
	weekly, monthly, lotSize, err := s.deps.Market.GetExpiriesAndLotSize(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh instruments: %w", err)
	}

	s.mu.Lock()
	s.weeklyExpiry = weekly
	s.monthlyExpiry = monthly
	s.lotSize = lotSize
	s.mu.Unlock()

	logger.Info("instruments refreshed",
		zap.Time("weekly_expiry", weekly),
		zap.Time("monthly_expiry", monthly),
		zap.Int("lot_size", lotSize))
	return nil
}

// RefreshHistory reloads daily bars for the underlying and the vol index.
// Fresh bars come from the broker and are persisted to the history store;
// when the broker call fails, stored bars keep the analytics running.
func (s *Supervisor) RefreshHistory(ctx context.Context) error {
	lookback := s.cfg.Trading.HistoryLookbackDays

	underlying, err := s.syncHistory(ctx, s.cfg.Trading.UnderlyingSymbol, lookback)
	if err != nil {
		return fmt.Errorf("failed to load underlying history: %w", err)
	}
	volIndex, err := s.syncHistory(ctx, s.cfg.Trading.VolIndexSymbol, lookback)
	if err != nil {
		return fmt.Errorf("failed to load vol index history: %w", err)
	}

	s.mu.Lock()
	s.underlyingBars = underlying
	s.volIndexBars = volIndex
	s.mu.Unlock()

	logger.Info("history refreshed",
		zap.Int("underlying_bars", len(underlying)),
		zap.Int("vol_index_bars", len(volIndex)))
	return nil
}

func (s *Supervisor) syncHistory(ctx context.Context, symbol string, lookback int) ([]models.Bar, error) {
	bars, err := s.deps.Market.GetHistory(ctx, symbol, lookback)
	if err != nil {
		if s.deps.History != nil {
			stored, herr := s.deps.History.GetBars(ctx, symbol, lookback)
			if herr == nil && len(stored) > 0 {
				logger.Warn("history fetch failed, serving stored bars",
					zap.String("symbol", symbol),
					zap.Int("bars", len(stored)),
					zap.Error(err))
				return stored, nil
			}
		}
		return nil, err
	}
	if s.deps.History != nil {
		if err := s.deps.History.SaveBars(ctx, bars); err != nil {
			logger.Warn("failed to persist history bars",
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
	return bars, nil
}
