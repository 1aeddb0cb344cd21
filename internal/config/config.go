package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Gates      GatesConfig      `mapstructure:"gates"`
	AI         AIConfig         `mapstructure:"ai"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Verifier   VerifierConfig   `mapstructure:"verifier"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	API        APIConfig        `mapstructure:"api"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains settings for the optional feature snapshot cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BinanceConfig contains Binance futures connectivity settings
type BinanceConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Testnet   bool   `mapstructure:"testnet"`
	Symbol    string `mapstructure:"symbol"`
}

// ProvidersConfig contains external data provider settings. Without keys the
// feature engine runs in degraded mode with synthetic onchain/liquidation data.
type ProvidersConfig struct {
	GlassnodeAPIKey string `mapstructure:"glassnode_api_key"`
	CoinglassAPIKey string `mapstructure:"coinglass_api_key"`
	UseMock         bool   `mapstructure:"use_mock"`
	CacheTTL        int    `mapstructure:"cache_ttl"` // seconds
}

// TradingConfig contains the fixed hypothetical position parameters
type TradingConfig struct {
	PositionMargin  float64 `mapstructure:"position_margin"` // 150.0
	Leverage        int     `mapstructure:"leverage"`        // 20
	NotionalValue   float64 `mapstructure:"notional_value"`  // margin * leverage
	TPPercent       float64 `mapstructure:"tp_percent"`      // 0.005
	SLPercent       float64 `mapstructure:"sl_percent"`      // 0.0025
	DailyTarget     float64 `mapstructure:"daily_target"`    // +10.0 -> stop
	DailyStop       float64 `mapstructure:"daily_stop"`      // -15.0 -> stop
	MaxTrades       int     `mapstructure:"max_trades"`
	MaxConsecLosses int     `mapstructure:"max_consec_losses"`
	CooldownMinutes int     `mapstructure:"cooldown_minutes"`
	MaxHoldMinutes  int     `mapstructure:"max_hold_minutes"`
	InitialBalance  float64 `mapstructure:"initial_balance"`
}

// GatesConfig contains admission pipeline thresholds
type GatesConfig struct {
	ContextMinScore      float64 `mapstructure:"context_min_score"`
	FundingBufferMinutes int     `mapstructure:"funding_buffer_minutes"`
	RegimeConfidenceMin  float64 `mapstructure:"regime_confidence_min"`
	ExhaustionRiskMax    float64 `mapstructure:"exhaustion_risk_max"`
	StructureQualityMin  float64 `mapstructure:"structure_quality_min"`
	SetupQualityMin      float64 `mapstructure:"setup_quality_min"`
	MTFConfluenceMin     int     `mapstructure:"mtf_confluence_min"`
	AIConfidenceMin      float64 `mapstructure:"ai_confidence_min"`
}

// AIConfig contains the optional model confirmation settings
type AIConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// EngineConfig contains signal engine loop settings
type EngineConfig struct {
	TickInterval      int `mapstructure:"tick_interval"`      // seconds
	HeartbeatInterval int `mapstructure:"heartbeat_interval"` // seconds
}

// VerifierConfig contains verifier loop and monitoring thresholds
type VerifierConfig struct {
	SignalCheckInterval int `mapstructure:"signal_check_interval"` // seconds
	HealthCheckInterval int `mapstructure:"health_check_interval"` // seconds
	HeartbeatTimeout    int `mapstructure:"heartbeat_timeout"`     // seconds, warning
	HeartbeatCritical   int `mapstructure:"heartbeat_critical"`    // seconds, critical
	DailyReportHour     int `mapstructure:"daily_report_hour"`     // UTC hour
	WeeklyReportDay     int `mapstructure:"weekly_report_day"`     // 6 = Sunday
}

// TelegramConfig contains notifier settings
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// APIConfig contains the read-only status API settings
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MonitoringConfig contains Prometheus settings
type MonitoringConfig struct {
	EnableMetrics  bool `mapstructure:"enable_metrics"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SIGNALENGINE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Notional follows margin and leverage unless overridden
	if cfg.Trading.NotionalValue == 0 {
		cfg.Trading.NotionalValue = cfg.Trading.PositionMargin * float64(cfg.Trading.Leverage)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "signalengine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "signalengine")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Binance defaults
	v.SetDefault("binance.testnet", true)
	v.SetDefault("binance.symbol", "BTCUSDT")

	// Provider defaults
	v.SetDefault("providers.use_mock", true)
	v.SetDefault("providers.cache_ttl", 300)

	// Trading defaults
	v.SetDefault("trading.position_margin", 150.0)
	v.SetDefault("trading.leverage", 20)
	v.SetDefault("trading.tp_percent", 0.005)
	v.SetDefault("trading.sl_percent", 0.0025)
	v.SetDefault("trading.daily_target", 10.0)
	v.SetDefault("trading.daily_stop", -15.0)
	v.SetDefault("trading.max_trades", 3)
	v.SetDefault("trading.max_consec_losses", 2)
	v.SetDefault("trading.cooldown_minutes", 60)
	v.SetDefault("trading.max_hold_minutes", 240)
	v.SetDefault("trading.initial_balance", 500.0)

	// Gate defaults
	v.SetDefault("gates.context_min_score", 0.5)
	v.SetDefault("gates.funding_buffer_minutes", 20)
	v.SetDefault("gates.regime_confidence_min", 0.65)
	v.SetDefault("gates.exhaustion_risk_max", 0.5)
	v.SetDefault("gates.structure_quality_min", 0.6)
	v.SetDefault("gates.setup_quality_min", 70.0)
	v.SetDefault("gates.mtf_confluence_min", 2)
	v.SetDefault("gates.ai_confidence_min", 0.65)

	// AI defaults
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.confidence_threshold", 0.65)

	// Engine defaults
	v.SetDefault("engine.tick_interval", 60)
	v.SetDefault("engine.heartbeat_interval", 30)

	// Verifier defaults
	v.SetDefault("verifier.signal_check_interval", 30)
	v.SetDefault("verifier.health_check_interval", 60)
	v.SetDefault("verifier.heartbeat_timeout", 180)
	v.SetDefault("verifier.heartbeat_critical", 600)
	v.SetDefault("verifier.daily_report_hour", 0)
	v.SetDefault("verifier.weekly_report_day", 6)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)

	// API defaults
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.prometheus_port", 9100)
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Binance.Symbol == "" {
		return fmt.Errorf("binance.symbol must not be empty")
	}
	if c.Trading.PositionMargin <= 0 {
		return fmt.Errorf("trading.position_margin must be positive, got %f", c.Trading.PositionMargin)
	}
	if c.Trading.Leverage <= 0 {
		return fmt.Errorf("trading.leverage must be positive, got %d", c.Trading.Leverage)
	}
	if c.Trading.TPPercent <= 0 {
		return fmt.Errorf("trading.tp_percent must be positive, got %f", c.Trading.TPPercent)
	}
	if c.Trading.SLPercent <= 0 {
		return fmt.Errorf("trading.sl_percent must be positive, got %f", c.Trading.SLPercent)
	}
	if c.Trading.DailyStop >= 0 {
		return fmt.Errorf("trading.daily_stop must be negative, got %f", c.Trading.DailyStop)
	}
	if c.Trading.DailyTarget <= 0 {
		return fmt.Errorf("trading.daily_target must be positive, got %f", c.Trading.DailyTarget)
	}
	if c.Trading.MaxTrades <= 0 {
		return fmt.Errorf("trading.max_trades must be positive, got %d", c.Trading.MaxTrades)
	}
	if c.Gates.SetupQualityMin < 0 || c.Gates.SetupQualityMin > 100 {
		return fmt.Errorf("gates.setup_quality_min must be in [0,100], got %f", c.Gates.SetupQualityMin)
	}
	if c.Gates.AIConfidenceMin < 0 || c.Gates.AIConfidenceMin > 1 {
		return fmt.Errorf("gates.ai_confidence_min must be in [0,1], got %f", c.Gates.AIConfidenceMin)
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive, got %d", c.Engine.TickInterval)
	}
	if c.Verifier.SignalCheckInterval <= 0 {
		return fmt.Errorf("verifier.signal_check_interval must be positive, got %d", c.Verifier.SignalCheckInterval)
	}
	if c.Verifier.HeartbeatCritical <= c.Verifier.HeartbeatTimeout {
		return fmt.Errorf("verifier.heartbeat_critical (%d) must exceed verifier.heartbeat_timeout (%d)",
			c.Verifier.HeartbeatCritical, c.Verifier.HeartbeatTimeout)
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token must be set when telegram is enabled")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the status API listen address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RESTBaseURL returns the Binance futures REST endpoint
func (c *BinanceConfig) RESTBaseURL() string {
	if c.Testnet {
		return "https://testnet.binancefuture.com"
	}
	return "https://fapi.binance.com"
}

// StreamBaseURL returns the Binance futures websocket endpoint
func (c *BinanceConfig) StreamBaseURL() string {
	if c.Testnet {
		return "wss://stream.binancefuture.com"
	}
	return "wss://fstream.binance.com"
}

// GetTickInterval returns the engine tick interval as a duration
func (c *EngineConfig) GetTickInterval() time.Duration {
	return time.Duration(c.TickInterval) * time.Second
}

// GetHeartbeatInterval returns the heartbeat publish interval as a duration
func (c *EngineConfig) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Second
}

// GetSignalCheckInterval returns the verifier tick interval as a duration
func (c *VerifierConfig) GetSignalCheckInterval() time.Duration {
	return time.Duration(c.SignalCheckInterval) * time.Second
}

// GetCacheTTL returns the provider cache TTL as a duration
func (c *ProvidersConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}
