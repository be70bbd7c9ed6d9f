// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	L2        L2Config        `mapstructure:"l2"`
	L1        L1Config        `mapstructure:"l1"`
	Window    WindowConfig    `mapstructure:"window"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Storage   StorageConfig   `mapstructure:"storage"`
	API       APIConfig       `mapstructure:"api"`
	Health    HealthConfig    `mapstructure:"health"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"` // used when the TUI owns the terminal
	TUIMode     bool   `mapstructure:"-"`        // Set at runtime, not from config file
}

// L2Config describes the chain being visualized.
type L2Config struct {
	HTTPURL           string        `mapstructure:"http_url"`
	WebSocketURL      string        `mapstructure:"ws_url"` // optional; polling is used without it
	ChainID           uint64        `mapstructure:"chain_id"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"` // per JSON-RPC round trip, L1 included
}

// L1Config describes the settlement chain used for L1 block details.
type L1Config struct {
	HTTPURL      string        `mapstructure:"http_url"` // optional
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheEntries int           `mapstructure:"cache_entries"`
}

// WindowConfig tunes the block window store.
type WindowConfig struct {
	MaxBlocks        int           `mapstructure:"max_blocks"`
	WindowSize       int           `mapstructure:"window_size"`
	HalfWidth        uint64        `mapstructure:"half_width"`
	DiscardThreshold uint64        `mapstructure:"discard_threshold"`
	BatchSize        int           `mapstructure:"batch_size"`
	BatchDelay       time.Duration `mapstructure:"batch_delay"`
}

// FeedConfig tunes the live feed.
type FeedConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	EnrichTimeout time.Duration `mapstructure:"enrich_timeout"`
}

// StorageConfig controls snapshot persistence.
type StorageConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Path            string        `mapstructure:"path"`
	PersistInterval time.Duration `mapstructure:"persist_interval"`
}

// APIConfig controls the HTTP API.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig controls the health endpoint.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	// MetricExporters lists "prometheus" and/or "otlp".
	MetricExporters []string `mapstructure:"metric_exporters"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("BLOCKVIZ")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "BLOCKVIZ_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "BLOCKVIZ_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "BLOCKVIZ_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.log_file", "BLOCKVIZ_LOG_FILE", "LOGFILE")

	// Chains
	v.BindEnv("l2.http_url", "BLOCKVIZ_L2_HTTP_URL", "L2_RPC_URL", "BASE_HTTP_URL")
	v.BindEnv("l2.ws_url", "BLOCKVIZ_L2_WS_URL", "L2_WS_URL", "BASE_WS_URL")
	v.BindEnv("l2.chain_id", "BLOCKVIZ_L2_CHAIN_ID")
	v.BindEnv("l1.http_url", "BLOCKVIZ_L1_HTTP_URL", "L1_RPC_URL", "ETH_HTTP_URL")

	// Storage / API
	v.BindEnv("storage.path", "BLOCKVIZ_STORAGE_PATH")
	v.BindEnv("api.enabled", "BLOCKVIZ_API_ENABLED")
	v.BindEnv("api.port", "BLOCKVIZ_API_PORT", "PORT")

	// Telemetry
	v.BindEnv("telemetry.enabled", "BLOCKVIZ_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "BLOCKVIZ_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "BLOCKVIZ_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "blockviz")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "./logs/blockviz.log")

	// Base mainnet
	v.SetDefault("l2.chain_id", 8453)
	v.SetDefault("l2.requests_per_second", 25)
	v.SetDefault("l2.burst", 10)
	v.SetDefault("l2.request_timeout", "10s")

	v.SetDefault("l1.cache_ttl", "1h")
	v.SetDefault("l1.cache_entries", 4096)

	v.SetDefault("window.max_blocks", 200)
	v.SetDefault("window.window_size", 50)
	v.SetDefault("window.half_width", 10)
	v.SetDefault("window.discard_threshold", 50)
	v.SetDefault("window.batch_size", 10)
	v.SetDefault("window.batch_delay", "200ms")

	v.SetDefault("feed.poll_interval", "2s")
	v.SetDefault("feed.enrich_timeout", "5s")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.path", "./data/blockviz.db")
	v.SetDefault("storage.persist_interval", "5s")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.port", 8080)

	v.SetDefault("health.port", 8081)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "blockviz")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.metric_exporters", []string{"prometheus"})
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.L2.HTTPURL == "" {
		return fmt.Errorf("l2.http_url is required")
	}
	if err := validateURL("l2.http_url", c.L2.HTTPURL, "http", "https"); err != nil {
		return err
	}
	if c.L2.WebSocketURL != "" {
		if err := validateURL("l2.ws_url", c.L2.WebSocketURL, "ws", "wss"); err != nil {
			return err
		}
	}
	if c.L1.HTTPURL != "" {
		if err := validateURL("l1.http_url", c.L1.HTTPURL, "http", "https"); err != nil {
			return err
		}
	}
	if c.Window.MaxBlocks <= 0 {
		return fmt.Errorf("window.max_blocks must be positive")
	}
	if c.Window.WindowSize <= 0 || c.Window.WindowSize > c.Window.MaxBlocks {
		return fmt.Errorf("window.window_size must be in 1..%d", c.Window.MaxBlocks)
	}
	if c.Window.BatchSize <= 0 {
		return fmt.Errorf("window.batch_size must be positive")
	}
	if c.Window.DiscardThreshold < c.Window.HalfWidth {
		return fmt.Errorf("window.discard_threshold (%d) must be at least window.half_width (%d)",
			c.Window.DiscardThreshold, c.Window.HalfWidth)
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be positive")
	}
	if c.L2.RequestsPerSecond <= 0 {
		return fmt.Errorf("l2.requests_per_second must be positive")
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: scheme must be one of %v", key, schemes)
}
