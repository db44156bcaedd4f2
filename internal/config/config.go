package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"funding-gate/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Binance   BinanceConfig   `mapstructure:"binance"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Gate      GateConfig      `mapstructure:"gate"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
	Symbols   []string        `mapstructure:"symbols"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the watchlist sampling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// BinanceConfig captures venue connectivity.
type BinanceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	QuoteAsset     string        `mapstructure:"quote_asset"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CacheConfig bounds funding snapshot freshness and fetch cost.
type CacheConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	MaxStaleness    time.Duration `mapstructure:"max_staleness"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	PeriodsPerYear  int64         `mapstructure:"periods_per_year"`
}

// GateConfig holds the decision thresholds in percent per year.
type GateConfig struct {
	RedirectThresholdAnnual float64 `mapstructure:"redirect_threshold_annual"`
	RejectThresholdAnnual   float64 `mapstructure:"reject_threshold_annual"`
	ThresholdMode           string  `mapstructure:"threshold_mode"`
}

// AlertingConfig defines alert routing for gate decisions.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fundgate")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66676174))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("binance.quote_asset", "USDT")
	v.SetDefault("binance.request_timeout", "10s")

	v.SetDefault("cache.refresh_interval", "5m")
	v.SetDefault("cache.max_staleness", "15m")
	v.SetDefault("cache.fetch_timeout", "10s")
	// 8h settlement cycle: 3 periods/day × 365
	v.SetDefault("cache.periods_per_year", int64(1095))

	v.SetDefault("gate.redirect_threshold_annual", 50.0)
	v.SetDefault("gate.reject_threshold_annual", 100.0)
	v.SetDefault("gate.threshold_mode", "absolute")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("symbols", []string{"BTC", "ETH"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Cache.RefreshInterval <= 0 {
		return fmt.Errorf("cache.refresh_interval must be greater than zero")
	}
	if c.Cache.MaxStaleness <= 0 {
		return fmt.Errorf("cache.max_staleness must be greater than zero")
	}
	if c.Cache.MaxStaleness < c.Cache.RefreshInterval {
		return fmt.Errorf("cache.max_staleness must not be below cache.refresh_interval")
	}
	if c.Cache.FetchTimeout <= 0 {
		return fmt.Errorf("cache.fetch_timeout must be greater than zero")
	}
	if c.Cache.PeriodsPerYear <= 0 {
		return fmt.Errorf("cache.periods_per_year must be greater than zero")
	}
	if c.Gate.RedirectThresholdAnnual <= 0 {
		return fmt.Errorf("gate.redirect_threshold_annual must be greater than zero")
	}
	if c.Gate.RejectThresholdAnnual < c.Gate.RedirectThresholdAnnual {
		return fmt.Errorf("gate.reject_threshold_annual must not be below gate.redirect_threshold_annual")
	}
	switch c.Gate.ThresholdMode {
	case "", "absolute", "signed":
	default:
		return fmt.Errorf("gate.threshold_mode must be absolute or signed")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
