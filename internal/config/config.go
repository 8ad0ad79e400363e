package config

import (
	"fmt"
	"strings"

	"dropified/tracksync/internal/domain"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Extension ExtensionConfig `mapstructure:"extension"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Run       RunConfig       `mapstructure:"run"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds control API configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	// Token, when set, is required as a bearer token on /api routes
	Token string `mapstructure:"token"`
}

// BackendConfig holds the dropshipping backend API configuration
type BackendConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	APIKey               string `mapstructure:"api_key"`
	Timeout              int    `mapstructure:"timeout"`
	MaxRetries           int    `mapstructure:"max_retries"`
	MaxRequestsPerSecond int    `mapstructure:"max_requests_per_second"`
}

// ExtensionConfig describes how to reach the browser extension host
type ExtensionConfig struct {
	// Address is unix:///path/to.sock or tcp://host:port
	Address    string `mapstructure:"address"`
	Timeout    int    `mapstructure:"timeout"`
	MinVersion string `mapstructure:"min_version"`
}

// ScraperProfile tells the direct scraper where a supplier shows an order and
// which elements hold its status and tracking number.
type ScraperProfile struct {
	URLTemplate      string `mapstructure:"url_template"`
	StatusSelector   string `mapstructure:"status_selector"`
	TrackingSelector string `mapstructure:"tracking_selector"`
}

// ScraperConfig holds direct supplier scraping configuration
type ScraperConfig struct {
	Enabled              bool                      `mapstructure:"enabled"`
	Timeout              int                       `mapstructure:"timeout"`
	MaxRequestsPerSecond int                       `mapstructure:"max_requests_per_second"`
	Proxies              []string                  `mapstructure:"proxies"`
	ProxyTestURL         string                    `mapstructure:"proxy_test_url"`
	Profiles             map[string]ScraperProfile `mapstructure:"profiles"`
}

// RunConfig holds run defaults used when neither the request nor the stored
// preferences say otherwise
type RunConfig struct {
	DelaySeconds           float64 `mapstructure:"delay_seconds"`
	Concurrency            int     `mapstructure:"concurrency"`
	UnfulfilledOnly        bool    `mapstructure:"unfulfilled_only"`
	LargeBatchThreshold    int     `mapstructure:"large_batch_threshold"`
	LargeBatchConcurrency  int     `mapstructure:"large_batch_concurrency"`
	LargeBatchDelaySeconds float64 `mapstructure:"large_batch_delay_seconds"`
	LockTTL                int     `mapstructure:"lock_ttl"`
}

// DatabaseConfig holds run history database configuration
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	Database     int    `mapstructure:"database"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DSN returns the libpq connection string for the history database.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// Load loads configuration from YAML file with environment variable overrides
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	return load(v)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.Run.DelaySeconds = domain.ClampDelay(config.Run.DelaySeconds)
	config.Run.Concurrency = domain.ClampConcurrency(config.Run.Concurrency)
	config.Run.LargeBatchDelaySeconds = domain.ClampDelay(config.Run.LargeBatchDelaySeconds)
	config.Run.LargeBatchConcurrency = domain.ClampConcurrency(config.Run.LargeBatchConcurrency)

	if config.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.token", "")

	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", 30)
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.max_requests_per_second", 10)

	v.SetDefault("extension.address", "unix:///tmp/tracksync-extension.sock")
	v.SetDefault("extension.timeout", 60)
	v.SetDefault("extension.min_version", "1.0.0")

	v.SetDefault("scraper.enabled", false)
	v.SetDefault("scraper.timeout", 30)
	v.SetDefault("scraper.max_requests_per_second", 2)
	v.SetDefault("scraper.proxy_test_url", "https://www.google.com")

	v.SetDefault("run.delay_seconds", 1.0)
	v.SetDefault("run.concurrency", 2)
	v.SetDefault("run.unfulfilled_only", true)
	v.SetDefault("run.large_batch_threshold", 100)
	v.SetDefault("run.large_batch_concurrency", 1)
	v.SetDefault("run.large_batch_delay_seconds", 3.0)
	v.SetDefault("run.lock_ttl", 3600)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tracksync")
	v.SetDefault("database.user", "tracksync")
	v.SetDefault("database.password", "")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.stream_max_len", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
