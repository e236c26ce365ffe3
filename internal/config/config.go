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

	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/handler"
	"github.com/JakeFAU/causas-crawler/internal/judicial"
	"github.com/JakeFAU/causas-crawler/internal/progress"
	"github.com/JakeFAU/causas-crawler/internal/retry"
	"github.com/JakeFAU/causas-crawler/internal/store"
)

// EnvPrefix namespaces environment overrides, e.g. CAUSAS_DATABASE_DSN.
const EnvPrefix = "CAUSAS"

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveMemory = "memory"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Handler  handler.Config `mapstructure:"handler"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
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

// UpstreamConfig points the judicial client at the service.
type UpstreamConfig struct {
	BaseURL          string            `mapstructure:"base_url"`
	MovementsBaseURL string            `mapstructure:"movements_base_url"`
	Timeout          time.Duration     `mapstructure:"timeout"`
	Headers          map[string]string `mapstructure:"headers"`
	Location         string            `mapstructure:"location"`
	// RateLimitRPS <= 0 disables client-side throttling.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// CrawlerConfig governs fan-out and retry.
type CrawlerConfig struct {
	CaseConcurrency     int           `mapstructure:"case_concurrency"`
	IncidentConcurrency int           `mapstructure:"incident_concurrency"`
	LitigantConcurrency int           `mapstructure:"litigant_concurrency"`
	RetryInitial        time.Duration `mapstructure:"retry_initial"`
	RetryMaxInterval    time.Duration `mapstructure:"retry_max_interval"`
	RetryBudget         time.Duration `mapstructure:"retry_budget"`
}

// DatabaseConfig controls access to the relational store and the run ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// LedgerDSN enables the Postgres crawl_runs ledger; empty keeps runs in memory.
	LedgerDSN string `mapstructure:"ledger_dsn"`
	// AutoMigrate applies pending migrations on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// ArchiveConfig selects where raw upstream payloads are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for result notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	MaxBatch      int           `mapstructure:"max_batch"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	SinkTimeout   time.Duration `mapstructure:"sink_timeout"`
	LogEvents     bool          `mapstructure:"log_events"`
}

// CacheConfig tunes the API read cache. A zero TTL disables caching.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is applied to the environment first, if present.
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
	def := retry.Default()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("upstream.base_url", judicial.DefaultBaseURL)
	v.SetDefault("upstream.movements_base_url", judicial.DefaultMovementsBaseURL)
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.location", judicial.DefaultLocation)
	v.SetDefault("upstream.rate_limit_rps", 0)
	v.SetDefault("upstream.rate_limit_burst", 1)
	v.SetDefault("crawler.case_concurrency", 15)
	v.SetDefault("crawler.incident_concurrency", 1)
	v.SetDefault("crawler.litigant_concurrency", 1)
	v.SetDefault("crawler.retry_initial", def.Initial)
	v.SetDefault("crawler.retry_max_interval", def.MaxInterval)
	v.SetDefault("crawler.retry_budget", def.MaxElapsed)
	v.SetDefault("handler.persist_concurrency", 1)
	v.SetDefault("handler.strict", false)
	v.SetDefault("handler.topic", "")
	v.SetDefault("database.dsn", "file:causas.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.ledger_dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.base_dir", "data/raw")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch", 256)
	v.SetDefault("progress.flush_interval", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("progress.log_events", true)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be > 0")
	}
	if c.Crawler.CaseConcurrency <= 0 || c.Crawler.IncidentConcurrency <= 0 || c.Crawler.LitigantConcurrency <= 0 {
		return fmt.Errorf("crawler concurrency limits must be > 0")
	}
	if c.Crawler.RetryBudget <= 0 {
		return fmt.Errorf("crawler.retry_budget must be > 0")
	}
	if c.Handler.PersistConcurrency <= 0 {
		return fmt.Errorf("handler.persist_concurrency must be > 0")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0")
	}
	return nil
}

// JudicialConfig converts the upstream section for judicial.New.
func (c Config) JudicialConfig() judicial.Config {
	return judicial.Config{
		BaseURL:          c.Upstream.BaseURL,
		MovementsBaseURL: c.Upstream.MovementsBaseURL,
		Timeout:          c.Upstream.Timeout,
		Headers:          c.Upstream.Headers,
	}
}

// CrawlerConfig converts the crawler section for crawler.New.
func (c Config) CrawlerConfig() crawler.Config {
	policy := retry.Default()
	if c.Crawler.RetryInitial > 0 {
		policy.Initial = c.Crawler.RetryInitial
	}
	if c.Crawler.RetryMaxInterval > 0 {
		policy.MaxInterval = c.Crawler.RetryMaxInterval
	}
	policy.MaxElapsed = c.Crawler.RetryBudget
	return crawler.Config{
		CaseConcurrency:     c.Crawler.CaseConcurrency,
		IncidentConcurrency: c.Crawler.IncidentConcurrency,
		Retry:               policy,
		Location:            judicial.LoadLocation(c.Upstream.Location),
	}
}

// StoreConfig converts the database section for store.Open.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// HandlerConfig returns the handler section, publishing to the configured
// topic unless the section names its own.
func (c Config) HandlerConfig() handler.Config {
	cfg := c.Handler
	if cfg.Topic == "" {
		cfg.Topic = c.PubSub.TopicName
	}
	return cfg
}

// HubConfig converts the progress section for progress.NewHub.
func (c Config) HubConfig() progress.Config {
	return progress.Config{
		BufferSize:     c.Progress.BufferSize,
		MaxBatchEvents: c.Progress.MaxBatch,
		FlushInterval:  c.Progress.FlushInterval,
		SinkTimeout:    c.Progress.SinkTimeout,
	}
}
