package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Trading    TradingConfig    `envconfig:"TRADING"`
	Capital    CapitalConfig    `envconfig:"CAPITAL"`
	Risk       RiskConfig       `envconfig:"RISK"`
	Supervisor SupervisorConfig `envconfig:"SUPERVISOR"`
	Broker     BrokerConfig     `envconfig:"BROKER"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Feed       FeedConfig       `envconfig:"FEED"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
	Health     HealthConfig     `envconfig:"HEALTH"`
}

// TradingConfig represents instrument and session parameters
type TradingConfig struct {
	UnderlyingSymbol    string `envconfig:"TRADING_UNDERLYING" default:"NIFTY"`
	VolIndexSymbol      string `envconfig:"TRADING_VOL_INDEX" default:"INDIAVIX"`
	DefaultLotSize      int    `envconfig:"TRADING_DEFAULT_LOT_SIZE" default:"50"`
	HistoryLookbackDays int    `envconfig:"TRADING_HISTORY_LOOKBACK_DAYS" default:"400"`
	MarketOpen          string `envconfig:"TRADING_MARKET_OPEN" default:"09:15"`
	MarketClose         string `envconfig:"TRADING_MARKET_CLOSE" default:"15:30"`
	Timezone            string `envconfig:"TRADING_TIMEZONE" default:"Asia/Kolkata"`
	Mode                string `envconfig:"TRADING_MODE" default:"paper"` // paper, semi_auto, full_auto
}

// CapitalConfig represents the capital governor parameters
type CapitalConfig struct {
	BaseCapital      float64       `envconfig:"CAPITAL_BASE" default:"1000000"`
	MaxDailyLoss     float64       `envconfig:"CAPITAL_MAX_DAILY_LOSS" default:"20000"`
	MaxOpenPositions int           `envconfig:"CAPITAL_MAX_OPEN_POSITIONS" default:"12"`
	FundsReservePct  float64       `envconfig:"CAPITAL_FUNDS_RESERVE_PCT" default:"0.10"`
	MarginSellPerLot float64       `envconfig:"CAPITAL_MARGIN_SELL_PER_LOT" default:"120000"`
	MarginBuyPerLot  float64       `envconfig:"CAPITAL_MARGIN_BUY_PER_LOT" default:"30000"`
	MarginBufferPct  float64       `envconfig:"CAPITAL_MARGIN_BUFFER_PCT" default:"0.20"`
	FundsCacheTTL    time.Duration `envconfig:"CAPITAL_FUNDS_CACHE_TTL" default:"60s"`
	MarginCacheTTL   time.Duration `envconfig:"CAPITAL_MARGIN_CACHE_TTL" default:"300s"`
}

// RiskConfig represents risk limits and adjustment/exit parameters
type RiskConfig struct {
	MaxNetDelta        float64       `envconfig:"RISK_MAX_NET_DELTA" default:"150"`
	DeltaBuffer        float64       `envconfig:"RISK_DELTA_BUFFER" default:"25"`
	MaxNetGamma        float64       `envconfig:"RISK_MAX_NET_GAMMA" default:"5"`
	MaxNetVega         float64       `envconfig:"RISK_MAX_NET_VEGA" default:"3000"`
	MaxPortfolioLoss   float64       `envconfig:"RISK_MAX_PORTFOLIO_LOSS" default:"50000"`
	AdjustmentCooldown time.Duration `envconfig:"RISK_ADJUSTMENT_COOLDOWN" default:"5m"`
	ProfitTargetPct    float64       `envconfig:"RISK_PROFIT_TARGET_PCT" default:"0.70"`
	StopLossMultiple   float64       `envconfig:"RISK_STOP_LOSS_MULTIPLE" default:"2.0"`
	ForceExitDTE       int           `envconfig:"RISK_FORCE_EXIT_DTE" default:"1"`
	MinSafeDTE         int           `envconfig:"RISK_MIN_SAFE_DTE" default:"7"`
	VIXSpikeExit       float64       `envconfig:"RISK_VIX_SPIKE_EXIT" default:"30"`
}

// SupervisorConfig represents the control loop parameters
type SupervisorConfig struct {
	LoopInterval           time.Duration `envconfig:"SUPERVISOR_LOOP_INTERVAL" default:"3s"`
	CallTimeout            time.Duration `envconfig:"SUPERVISOR_CALL_TIMEOUT" default:"5s"`
	RetryAttempts          int           `envconfig:"SUPERVISOR_RETRY_ATTEMPTS" default:"3"`
	RetryBackoff           time.Duration `envconfig:"SUPERVISOR_RETRY_BACKOFF" default:"1s"`
	MaxConsecutiveFailures int           `envconfig:"SUPERVISOR_MAX_CONSECUTIVE_FAILURES" default:"5"`
	MaxDataLatency         time.Duration `envconfig:"SUPERVISOR_MAX_DATA_LATENCY" default:"15s"`
	KillSwitchFile         string        `envconfig:"SUPERVISOR_KILL_SWITCH_FILE" default:"/tmp/volguard.killswitch"`
	ExternalRefresh        time.Duration `envconfig:"SUPERVISOR_EXTERNAL_REFRESH" default:"15m"`
	InstrumentRefresh      time.Duration `envconfig:"SUPERVISOR_INSTRUMENT_REFRESH" default:"1h"`
	FundsRefresh           time.Duration `envconfig:"SUPERVISOR_FUNDS_REFRESH" default:"60s"`
	HistoryRefresh         time.Duration `envconfig:"SUPERVISOR_HISTORY_REFRESH" default:"30m"`
}

// BrokerConfig represents the upstream market data and order API
type BrokerConfig struct {
	BaseURLV2     string        `envconfig:"BROKER_BASE_URL_V2" default:"https://api.upstox.com/v2"`
	BaseURLV3     string        `envconfig:"BROKER_BASE_URL_V3" default:"https://api.upstox.com/v3"`
	AccessToken   string        `envconfig:"BROKER_ACCESS_TOKEN" required:"false"`
	UnderlyingKey string        `envconfig:"BROKER_UNDERLYING_KEY" default:"NSE_INDEX|Nifty 50"`
	VolIndexKey   string        `envconfig:"BROKER_VOL_INDEX_KEY" default:"NSE_INDEX|India VIX"`
	Timeout       time.Duration `envconfig:"BROKER_TIMEOUT" default:"5s"`
}

// DatabaseConfig represents postgres connection parameters
type DatabaseConfig struct {
	Host           string `envconfig:"DB_HOST" default:"localhost"`
	Port           int    `envconfig:"DB_PORT" default:"5432"`
	Name           string `envconfig:"DB_NAME" default:"volguard"`
	User           string `envconfig:"DB_USER" required:"true"`
	Password       string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// GetDSN builds postgres connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}

// ClickHouseConfig represents ClickHouse connection parameters (price history)
type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"volguard"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// GetDSN builds ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig represents redis connection for the supervisor leader lock
type RedisConfig struct {
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD" required:"false"`
	LockTTL  time.Duration `envconfig:"REDIS_LOCK_TTL" default:"30s"`
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
}

// TelegramConfig represents alert delivery configuration
type TelegramConfig struct {
	BotToken        string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID          int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	Enabled         bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	AlertOnTrades   bool   `envconfig:"TELEGRAM_ALERT_ON_TRADES" default:"true"`
	AlertOnWarnings bool   `envconfig:"TELEGRAM_ALERT_ON_WARNINGS" default:"true"`
}

// FeedConfig represents the live greeks websocket feed
type FeedConfig struct {
	URL            string        `envconfig:"FEED_URL" required:"false"`
	Enabled        bool          `envconfig:"FEED_ENABLED" default:"false"`
	ReconnectDelay time.Duration `envconfig:"FEED_RECONNECT_DELAY" default:"5s"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// HealthConfig represents the status HTTP endpoint
type HealthConfig struct {
	Port string `envconfig:"HEALTH_PORT" default:"8086"`
}

// Load loads configuration from environment
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration invariants the engines depend on
func (c *Config) Validate() error {
	if c.Capital.BaseCapital <= 0 {
		return fmt.Errorf("base capital must be positive: %v", c.Capital.BaseCapital)
	}
	if c.Capital.MaxDailyLoss <= 0 {
		return fmt.Errorf("max daily loss must be positive: %v", c.Capital.MaxDailyLoss)
	}
	if c.Capital.FundsReservePct < 0 || c.Capital.FundsReservePct >= 1 {
		return fmt.Errorf("funds reserve pct out of range: %v", c.Capital.FundsReservePct)
	}
	if c.Risk.MaxNetDelta <= 0 {
		return fmt.Errorf("max net delta must be positive: %v", c.Risk.MaxNetDelta)
	}
	if c.Risk.DeltaBuffer < 0 {
		return fmt.Errorf("delta buffer must be non-negative: %v", c.Risk.DeltaBuffer)
	}
	if c.Supervisor.LoopInterval <= 0 {
		return fmt.Errorf("loop interval must be positive: %v", c.Supervisor.LoopInterval)
	}
	if c.Supervisor.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max consecutive failures must be positive: %v", c.Supervisor.MaxConsecutiveFailures)
	}
	switch c.Trading.Mode {
	case "paper", "semi_auto", "full_auto":
	default:
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}
	if c.Trading.Mode != "paper" && c.Broker.AccessToken == "" {
		return fmt.Errorf("broker access token required in %s mode", c.Trading.Mode)
	}
	return nil
}
