package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 5, cfg.Scraper.BatchSize)
	require.Equal(t, time.Second, cfg.Scraper.BatchPause)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout())
	require.Equal(t, DefaultUserAgent, cfg.Scraper.UserAgent)
	require.False(t, cfg.Scraper.RespectRobots)
	require.Equal(t, []string{"vacature", "vacancy", "vacancies", "werken-bij", "werkenbij", "jobs", "careers"}, cfg.Extract.LinkKeywords)
	require.Equal(t, []string{"vacature", "vacancy", "sollicitatie", "werken bij"}, cfg.Extract.TextKeywords)
	require.Equal(t, 100, cfg.Extract.MaxTitleLength)
	require.Equal(t, StoreSQLite, cfg.Store.Backend)
	require.Equal(t, 7*24*time.Hour, cfg.Stats.Window)
	require.Equal(t, ArchiveNone, cfg.Archive.Backend)
	require.True(t, cfg.Schedule.RunOnStartup)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: true
  level: debug
scraper:
  user_agent: test-agent
  request_timeout_seconds: 10
  batch_size: 3
  batch_pause: 250ms
  respect_robots: true
extract:
  link_keywords: ["jobs"]
  max_title_length: 40
store:
  backend: postgres
  postgres_dsn: postgres://localhost/vacancies
archive:
  backend: gcs
  gcs_bucket: snapshots
notify:
  pubsub_project_id: project
  pubsub_topic: runs
schedule:
  cron: "0 6 * * *"
  run_on_startup: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "test-agent", cfg.Scraper.UserAgent)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout())
	require.Equal(t, 3, cfg.Scraper.BatchSize)
	require.Equal(t, 250*time.Millisecond, cfg.Scraper.BatchPause)
	require.True(t, cfg.Scraper.RespectRobots)
	require.Equal(t, []string{"jobs"}, cfg.Extract.LinkKeywords)
	require.Equal(t, 40, cfg.Extract.MaxTitleLength)
	require.Equal(t, StorePostgres, cfg.Store.Backend)
	require.Equal(t, ArchiveGCS, cfg.Archive.Backend)
	require.Equal(t, "runs", cfg.Notify.PubSubTopic)
	require.Equal(t, "0 6 * * *", cfg.Schedule.Cron)
	require.False(t, cfg.Schedule.RunOnStartup)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid timeout", mutate: func(c *Config) { c.Scraper.RequestTimeoutSeconds = 0 }, want: "scraper.request_timeout_seconds"},
		{name: "invalid batch size", mutate: func(c *Config) { c.Scraper.BatchSize = 0 }, want: "scraper.batch_size"},
		{name: "negative pause", mutate: func(c *Config) { c.Scraper.BatchPause = -time.Second }, want: "scraper.batch_pause"},
		{name: "missing burst", mutate: func(c *Config) { c.Scraper.PerHostBurst = 0 }, want: "scraper.per_host_burst"},
		{name: "no link keywords", mutate: func(c *Config) { c.Extract.LinkKeywords = nil }, want: "extract.link_keywords"},
		{name: "title length", mutate: func(c *Config) { c.Extract.MaxTitleLength = 0 }, want: "extract.max_title_length"},
		{name: "stats window", mutate: func(c *Config) { c.Stats.Window = 0 }, want: "stats.window"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "mongo" }, want: "store.backend"},
		{name: "postgres dsn", mutate: func(c *Config) { c.Store.Backend = StorePostgres }, want: "store.postgres_dsn"},
		{name: "sqlite path", mutate: func(c *Config) { c.Store.SQLitePath = "" }, want: "store.sqlite_path"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Archive.Backend = ArchiveGCS }, want: "archive.gcs_bucket"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Backend = "s3" }, want: "archive.backend"},
		{name: "half pubsub", mutate: func(c *Config) { c.Notify.PubSubTopic = "runs" }, want: "notify.pubsub_project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
