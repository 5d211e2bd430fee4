package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"
	"github.com/shritish20/volguard/internal/adapters/broker"
	"github.com/shritish20/volguard/internal/adapters/config"
	"github.com/shritish20/volguard/internal/adapters/database"
	"github.com/shritish20/volguard/internal/adapters/feed"
	"github.com/shritish20/volguard/internal/adapters/history"
	redisAdapter "github.com/shritish20/volguard/internal/adapters/redis"
	"github.com/shritish20/volguard/internal/adapters/telegram"
	"github.com/shritish20/volguard/internal/analytics"
	"github.com/shritish20/volguard/internal/dataquality"
	"github.com/shritish20/volguard/internal/external"
	"github.com/shritish20/volguard/internal/health"
	"github.com/shritish20/volguard/internal/journal"
	"github.com/shritish20/volguard/internal/risk"
	"github.com/shritish20/volguard/internal/safety"
	"github.com/shritish20/volguard/internal/supervisor"
	"github.com/shritish20/volguard/internal/trading"
	"github.com/shritish20/volguard/pkg/logger"
	"github.com/shritish20/volguard/pkg/models"
	"github.com/shritish20/volguard/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Run application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration and initialize logger
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("volguard starting",
		zap.String("mode", cfg.Trading.Mode),
		zap.String("underlying", cfg.Trading.UnderlyingSymbol),
	)

	// Postgres holds the decision journal, trades and safety violations
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// ClickHouse holds daily bars and cycle metrics. Optional: the
	// supervisor serves broker history directly when it is down.
	histRepo, metricsWriter := initHistoryStore(cfg)
	if histRepo != nil {
		defer histRepo.Close()
	}

	// Redis leader lock keeps replicas from trading concurrently
	redisClient, lock := initLeaderLock(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	alerter := initAlerter(cfg)
	feedClient := initFeed(cfg)
	if feedClient != nil {
		defer feedClient.Close()
	}

	journalRepo := journal.NewRepository(db.DB())
	externalProvider := external.NewProvider(db.DB())

	// Market data always comes from the broker API; execution is
	// simulated in paper mode
	upstox := broker.NewUpstoxClient(&cfg.Broker, &cfg.Trading)
	var exec broker.ExecutionProvider = upstox
	if cfg.Trading.Mode == "paper" {
		exec = broker.NewPaperBroker(
			cfg.Capital.BaseCapital,
			cfg.Capital.MarginSellPerLot,
			cfg.Capital.MarginBuyPerLot,
		)
		logger.Info("paper execution enabled, orders are simulated")
	}

	gate, err := dataquality.NewGate(cfg)
	if err != nil {
		return fmt.Errorf("failed to build quality gate: %w", err)
	}

	safetyController := safety.NewController(
		models.ExecutionMode(cfg.Trading.Mode),
		cfg.Supervisor.MaxConsecutiveFailures,
		journalRepo,
		alerter,
	)

	governor := risk.NewCapitalGovernor(&cfg.Capital, exec)

	sup := supervisor.New(supervisor.Deps{
		Config:   cfg,
		Market:   upstox,
		Exec:     exec,
		Gate:     gate,
		Vol:      analytics.NewVolatilityEngine(),
		Struct:   analytics.NewStructureEngine(),
		Edge:     analytics.NewEdgeEngine(),
		Regime:   analytics.NewRegimeEngine(&cfg.Capital),
		Risk:     risk.NewEngine(&cfg.Risk),
		Governor: governor,
		Buckets:  risk.NewBucketEngine(cfg.Capital.BaseCapital),
		Selector: trading.NewSelector(),
		Builder:  trading.NewLegBuilder(&cfg.Trading),
		Adjuster: trading.NewAdjustmentEngine(&cfg.Risk),
		Exits:    trading.NewExitEngine(&cfg.Risk),
		Safety:   safetyController,
		Journal:  journalRepo,
		Metrics:  metricsWriter,
		History:  histRepo,
		External: externalProvider,
		Feed:     feedClient,
		Lock:     lock,
		Alerter:  alerter,
	})

	healthServer := startHealthServer(cfg, db, redisClient, safetyController)

	primeCaches(ctx, sup, externalProvider)

	// Background refresh workers keep caches warm outside the hot loop
	group := worker.NewGroup(ctx)
	group.Add(&supervisor.ExternalWorker{Provider: externalProvider}, cfg.Supervisor.ExternalRefresh)
	group.Add(&supervisor.FundsWorker{Governor: governor}, cfg.Supervisor.FundsRefresh)
	group.Add(&supervisor.InstrumentWorker{Supervisor: sup}, cfg.Supervisor.InstrumentRefresh)
	group.Add(&supervisor.HistoryWorker{Supervisor: sup}, cfg.Supervisor.HistoryRefresh)
	group.Start()

	healthServer.SetReady(true)

	go sup.Run(ctx)

	// Wait for shutdown signal
	<-ctx.Done()

	return performGracefulShutdown(healthServer, group, metricsWriter, lock, db, redisClient)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase initializes the postgres connection and runs migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// initHistoryStore connects ClickHouse for bars and cycle metrics. A failed
// connection degrades to broker-served history instead of aborting startup.
func initHistoryStore(cfg *config.Config) (*history.Repository, *history.MetricsWriter) {
	conn, err := history.Connect(&cfg.ClickHouse)
	if err != nil {
		logger.Warn("ClickHouse unavailable, history persistence disabled", zap.Error(err))
		return nil, nil
	}

	repo := history.NewRepository(conn)
	metricsWriter := history.NewMetricsWriter(repo, 100, 10*time.Second)
	return repo, metricsWriter
}

// initLeaderLock connects redis and builds the supervisor leader lock.
// Disabled or unreachable redis degrades to a single-instance no-op lock.
func initLeaderLock(cfg *config.Config) (*redisAdapter.Client, redisAdapter.SupervisorLock) {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, running without leader election")
		return nil, redisAdapter.NopLock{}
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, running without leader election", zap.Error(err))
		return nil, redisAdapter.NopLock{}
	}
	if err := client.Health(); err != nil {
		client.Close()
		logger.Warn("redis health check failed, running without leader election", zap.Error(err))
		return nil, redisAdapter.NopLock{}
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = fmt.Sprintf("volguard-%d", os.Getpid())
	}

	logger.Info("redis leader lock enabled",
		zap.String("host", cfg.Redis.Host),
		zap.String("instance", hostname),
	)
	return client, client.NewLeaderLock(hostname)
}

// initAlerter initializes the telegram notifier
func initAlerter(cfg *config.Config) telegram.Alerter {
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken == "" {
		logger.Info("telegram alerts disabled")
		return telegram.NopAlerter{}
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Warn("failed to initialize telegram notifier", zap.Error(err))
		return telegram.NopAlerter{}
	}

	logger.Info("telegram notifier initialized")
	return notifier
}

// initFeed connects the live greeks websocket used for cross-checking the
// locally aggregated portfolio greeks
func initFeed(cfg *config.Config) *feed.GreeksClient {
	if !cfg.Feed.Enabled || cfg.Feed.URL == "" {
		return nil
	}

	client := feed.NewGreeksClient(&cfg.Feed)
	if err := client.Connect(); err != nil {
		logger.Warn("greeks feed unavailable, continuing without cross-check", zap.Error(err))
		return nil
	}

	logger.Info("greeks feed connected", zap.String("url", cfg.Feed.URL))
	return client
}

// primeCaches warms the instrument, history and external caches before the
// first cycle. Failures are logged; the loop and the refresh workers retry.
func primeCaches(ctx context.Context, sup *supervisor.Supervisor, ext *external.Provider) {
	primeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := sup.RefreshInstruments(primeCtx); err != nil {
		logger.Warn("initial instrument refresh failed", zap.Error(err))
	}
	if err := sup.RefreshHistory(primeCtx); err != nil {
		logger.Warn("initial history refresh failed", zap.Error(err))
	}
	if err := ext.Refresh(primeCtx); err != nil {
		logger.Warn("initial external refresh failed", zap.Error(err))
	}
}

// startHealthServer starts the liveness and readiness endpoint
func startHealthServer(cfg *config.Config, db *database.DB, redisClient *redisAdapter.Client, safetyController *safety.Controller) *health.Server {
	healthServer := health.NewServer(cfg.Health.Port, db, redisClient, safetyController)

	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", zap.Error(err))
		}
	}()

	logger.Info("health server started", zap.String("port", cfg.Health.Port))
	return healthServer
}

// performGracefulShutdown handles graceful shutdown of all components
func performGracefulShutdown(
	healthServer *health.Server,
	group *worker.Group,
	metricsWriter *history.MetricsWriter,
	lock redisAdapter.SupervisorLock,
	db *database.DB,
	redisClient *redisAdapter.Client,
) error {
	logger.Info("shutdown signal received, starting graceful shutdown")

	// Stop accepting traffic first
	healthServer.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer shutdownCancel()

	logger.Info("stopping background workers")
	group.Stop(10 * time.Second)

	if metricsWriter != nil {
		logger.Info("flushing cycle metrics")
		metricsWriter.Close()
	}

	if lock != nil {
		if err := lock.Release(shutdownCtx); err != nil {
			logger.Error("leader lock release error", zap.Error(err))
		}
	}

	logger.Info("closing database connection")
	if err := db.Close(); err != nil {
		logger.Error("database close error", zap.Error(err))
	}

	if redisClient != nil {
		logger.Info("closing redis connection")
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
	}

	logger.Info("stopping health server")
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("health server stop error", zap.Error(err))
	}

	logger.Sync()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded")
		return fmt.Errorf("graceful shutdown timeout")
	default:
		logger.Info("shutdown completed")
	}
	return nil
}
