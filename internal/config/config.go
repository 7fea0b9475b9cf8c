// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Extract  ExtractConfig  `mapstructure:"extract"`
	Registry RegistryConfig `mapstructure:"registry"`
	Store    StoreConfig    `mapstructure:"store"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs fetching and batching.
type ScraperConfig struct {
	UserAgent             string        `mapstructure:"user_agent"`
	RequestTimeoutSeconds int           `mapstructure:"request_timeout_seconds"`
	BatchSize             int           `mapstructure:"batch_size"`
	BatchPause            time.Duration `mapstructure:"batch_pause"`
	PerHostRPS            float64       `mapstructure:"per_host_rps"`
	PerHostBurst          int           `mapstructure:"per_host_burst"`
	RespectRobots         bool          `mapstructure:"respect_robots"`
}

// ExtractConfig tunes the link extraction heuristic.
type ExtractConfig struct {
	LinkKeywords   []string `mapstructure:"link_keywords"`
	TextKeywords   []string `mapstructure:"text_keywords"`
	MaxTitleLength int      `mapstructure:"max_title_length"`
}

// RegistryConfig points at an optional site table. Empty uses the built-in one.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig selects and configures the result store backend.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MaxConns    int    `mapstructure:"max_conns"`
}

// StatsConfig sets the reporting window for aggregate success rates.
type StatsConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// ArchiveConfig controls raw page snapshots.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds Pub/Sub metadata for run reports.
type NotifyConfig struct {
	PubSubProjectID string `mapstructure:"pubsub_project_id"`
	PubSubTopic     string `mapstructure:"pubsub_topic"`
}

// ScheduleConfig controls periodic and startup runs.
type ScheduleConfig struct {
	Cron         string `mapstructure:"cron"`
	RunOnStartup bool   `mapstructure:"run_on_startup"`
}

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// DefaultUserAgent mimics a desktop Chrome browser; several municipal sites
// refuse obvious bot identities.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VACANCY")
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
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scraper.user_agent", DefaultUserAgent)
	v.SetDefault("scraper.request_timeout_seconds", 30)
	v.SetDefault("scraper.batch_size", 5)
	v.SetDefault("scraper.batch_pause", time.Second)
	v.SetDefault("scraper.per_host_rps", 1.0)
	v.SetDefault("scraper.per_host_burst", 2)
	v.SetDefault("scraper.respect_robots", false)
	v.SetDefault("extract.link_keywords", []string{"vacature", "vacancy", "vacancies", "werken-bij", "werkenbij", "jobs", "careers"})
	v.SetDefault("extract.text_keywords", []string{"vacature", "vacancy", "sollicitatie", "werken bij"})
	v.SetDefault("extract.max_title_length", 100)
	v.SetDefault("registry.path", "")
	v.SetDefault("store.backend", StoreSQLite)
	v.SetDefault("store.sqlite_path", "vacancies.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("stats.window", 7*24*time.Hour)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.local_dir", "pages")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.pubsub_project_id", "")
	v.SetDefault("notify.pubsub_topic", "")
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.run_on_startup", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.request_timeout_seconds must be > 0")
	}
	if c.Scraper.BatchSize <= 0 {
		return fmt.Errorf("scraper.batch_size must be > 0")
	}
	if c.Scraper.BatchPause < 0 {
		return fmt.Errorf("scraper.batch_pause must be >= 0")
	}
	if c.Scraper.PerHostRPS < 0 {
		return fmt.Errorf("scraper.per_host_rps must be >= 0")
	}
	if c.Scraper.PerHostRPS > 0 && c.Scraper.PerHostBurst <= 0 {
		return fmt.Errorf("scraper.per_host_burst must be > 0 when per_host_rps is set")
	}
	if len(c.Extract.LinkKeywords) == 0 {
		return fmt.Errorf("extract.link_keywords must not be empty")
	}
	if c.Extract.MaxTitleLength <= 0 {
		return fmt.Errorf("extract.max_title_length must be > 0")
	}
	if c.Stats.Window <= 0 {
		return fmt.Errorf("stats.window must be > 0")
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must be set for the sqlite backend")
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if (c.Notify.PubSubProjectID == "") != (c.Notify.PubSubTopic == "") {
		return fmt.Errorf("notify.pubsub_project_id and notify.pubsub_topic must be set together")
	}
	return nil
}

// RequestTimeout converts the per-request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.RequestTimeoutSeconds) * time.Second
}
