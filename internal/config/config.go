package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"funding-intel/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
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

// IngestConfig governs the adapter fan-out.
type IngestConfig struct {
	TargetPairs    []string      `mapstructure:"target_pairs"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	UserAgent      string        `mapstructure:"user_agent"`
	BinanceProxy   ProxyConfig   `mapstructure:"binance_proxy"`
	BybitProxy     ProxyConfig   `mapstructure:"bybit_proxy"`
}

// ProxyConfig routes one venue's calls through the authenticated relay.
// Both fields empty means the adapter talks to the venue directly.
type ProxyConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Key     string `mapstructure:"key"`
}

// Enabled reports whether relay routing is configured for the venue.
func (p ProxyConfig) Enabled() bool {
	return p.BaseURL != "" && p.Key != ""
}

// ScoringConfig tunes the opportunity engine.
type ScoringConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// SendGridConfig 描述邮件告警参数。凭证缺失时邮件通道降级为 stub。
type SendGridConfig struct {
	APIKey       string `mapstructure:"api_key"`
	FromEmail    string `mapstructure:"from_email"`
	DefaultEmail string `mapstructure:"default_email"`
	APIBase      string `mapstructure:"api_base"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	DefaultChatID string `mapstructure:"default_chat_id"`
	APIBase       string `mapstructure:"api_base"`
}

// RelayConfig parameterises the authenticated forwarding relay.
type RelayConfig struct {
	Listen       string   `mapstructure:"listen"`
	Key          string   `mapstructure:"key"`
	Upstream     string   `mapstructure:"upstream"`
	AllowedPaths []string `mapstructure:"allowed_paths"`
}

// SchedulerConfig governs the standalone run loop.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUNDINGINTEL")
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
	v.SetDefault("app.name", "fundingintel")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ingest.target_pairs", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	v.SetDefault("ingest.request_timeout", "10s")
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.backoff_base", "500ms")
	v.SetDefault("ingest.user_agent", "fundingintel/1.0")

	v.SetDefault("scoring.window", "24h")

	v.SetDefault("alerting.sendgrid.api_base", "https://api.sendgrid.com")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("relay.listen", ":8787")
	v.SetDefault("relay.upstream", "https://fapi.binance.com")
	v.SetDefault("relay.allowed_paths", []string{"/fapi/v1/premiumIndex"})

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x66756e64))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
// A failure here is fatal: the run never starts.
func (c *Config) Validate() error {
	if len(c.Ingest.TargetPairs) == 0 {
		return fmt.Errorf("ingest.target_pairs must not be empty")
	}
	if c.Ingest.MaxRetries < 0 {
		return fmt.Errorf("ingest.max_retries cannot be negative")
	}
	if c.Scoring.Window <= 0 {
		return fmt.Errorf("scoring.window must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if (c.Ingest.BinanceProxy.BaseURL == "") != (c.Ingest.BinanceProxy.Key == "") {
		return fmt.Errorf("ingest.binance_proxy 需要同时配置 base_url 和 key")
	}
	if (c.Ingest.BybitProxy.BaseURL == "") != (c.Ingest.BybitProxy.Key == "") {
		return fmt.Errorf("ingest.bybit_proxy 需要同时配置 base_url 和 key")
	}
	return nil
}
