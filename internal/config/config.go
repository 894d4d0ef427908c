// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TRIPSYNC_SERVER_PORT.
const EnvPrefix = "TRIPSYNC"

// Backend names.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Managed  ManagedConfig  `mapstructure:"managed"`
	AI       AIConfig       `mapstructure:"ai"`
	Store    StoreConfig    `mapstructure:"store"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Toggles  TogglesConfig  `mapstructure:"toggles"`
	Rates    RatesConfig    `mapstructure:"rates"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig governs the fetch orchestrator and the direct strategy.
type CrawlConfig struct {
	Budget         time.Duration `mapstructure:"budget"`
	DirectTimeout  time.Duration `mapstructure:"direct_timeout"`
	RenderTimeout  time.Duration `mapstructure:"render_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	Constrained    bool          `mapstructure:"constrained"`
	UserAgent      string        `mapstructure:"user_agent"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// HeadlessConfig configures the local browser strategy.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ExecPath    string        `mapstructure:"exec_path"`
	MaxParallel int           `mapstructure:"max_parallel"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// ManagedConfig configures the third-party rendering service.
type ManagedConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Endpoint    string `mapstructure:"endpoint"`
	CountryCode string `mapstructure:"country_code"`
}

// AIConfig configures the summarizer fallback.
type AIConfig struct {
	APIKey          string `mapstructure:"api_key"`
	Model           string `mapstructure:"model"`
	MaxSummaryRunes int    `mapstructure:"max_summary_runes"`
}

// StoreConfig selects the confirmation store backend.
type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddress  string        `mapstructure:"redis_address"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// LedgerConfig selects the consultation ledger backend.
type LedgerConfig struct {
	Backend         string        `mapstructure:"backend"`
	SpreadsheetID   string        `mapstructure:"spreadsheet_id"`
	SheetName       string        `mapstructure:"sheet_name"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// TogglesConfig selects where bot toggles and sync events live.
type TogglesConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RatesConfig configures the currency rate provider and cache.
type RatesConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	TTL      time.Duration `mapstructure:"ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig controls raw page archiving.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// Load builds a Config from an optional .env file, an optional config file and
// TRIPSYNC_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawl.budget", "60s")
	v.SetDefault("crawl.direct_timeout", "10s")
	v.SetDefault("crawl.render_timeout", "20s")
	v.SetDefault("crawl.max_retries", 2)
	v.SetDefault("crawl.retry_backoff", "1s")
	v.SetDefault("crawl.constrained", false)
	v.SetDefault("crawl.user_agent", "tripsync-bot/0.1")
	v.SetDefault("crawl.respect_robots", false)
	v.SetDefault("crawl.rate_limit_rps", 1.0)
	v.SetDefault("crawl.rate_limit_burst", 2)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.settle_delay", "1500ms")
	v.SetDefault("managed.api_key", "")
	v.SetDefault("managed.endpoint", "")
	v.SetDefault("managed.country_code", "kr")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.max_summary_runes", 12000)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.redis_address", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.ttl", "720h")
	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.spreadsheet_id", "")
	v.SetDefault("ledger.sheet_name", "Consultations")
	v.SetDefault("ledger.credentials_file", "")
	v.SetDefault("ledger.timeout", "15s")
	v.SetDefault("toggles.backend", BackendMemory)
	v.SetDefault("toggles.dsn", "")
	v.SetDefault("toggles.max_conns", 4)
	v.SetDefault("rates.endpoint", "")
	v.SetDefault("rates.ttl", "10m")
	v.SetDefault("rates.timeout", "10s")
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "pages")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawl.Budget <= 0 {
		return fmt.Errorf("crawl.budget must be > 0")
	}
	if c.Crawl.DirectTimeout <= 0 || c.Crawl.RenderTimeout <= 0 {
		return fmt.Errorf("crawl.direct_timeout and crawl.render_timeout must be > 0")
	}
	if c.Crawl.MaxRetries < 0 {
		return fmt.Errorf("crawl.max_retries must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if err := oneOf("store.backend", c.Store.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if c.Store.Backend == BackendRedis && c.Store.RedisAddress == "" {
		return fmt.Errorf("store.redis_address is required for the redis backend")
	}
	if err := oneOf("ledger.backend", c.Ledger.Backend, BackendNone, BackendMemory, BackendSheets); err != nil {
		return err
	}
	if c.Ledger.Backend == BackendSheets && c.Ledger.SpreadsheetID == "" {
		return fmt.Errorf("ledger.spreadsheet_id is required for the sheets backend")
	}
	if err := oneOf("toggles.backend", c.Toggles.Backend, BackendMemory, BackendPostgres); err != nil {
		return err
	}
	if c.Toggles.Backend == BackendPostgres && c.Toggles.DSN == "" {
		return fmt.Errorf("toggles.dsn is required for the postgres backend")
	}
	if err := oneOf("archive.backend", c.Archive.Backend, BackendNone, BackendMemory, BackendGCS); err != nil {
		return err
	}
	if c.Archive.Backend == BackendGCS && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required for the gcs backend")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
