// Package config loads skein configuration with Viper.
//
// Precedence (lowest to highest): defaults < config file < SKEIN_* env vars.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skeinhq/skein/errors"
)

// Config is the typed skein configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite execution-history store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP/webhook surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// IngestConfig configures the scheduler and connector politeness knobs.
type IngestConfig struct {
	// TickerIntervalSeconds is how often the cron evaluator polls.
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"`
	// CronToleranceSeconds is the due-slot recency window. It must exceed
	// the ticker interval or due slots can be missed; the default of 65s
	// covers a 60s poll plus scheduler jitter.
	CronToleranceSeconds int `mapstructure:"cron_tolerance_seconds"`
	// TaskFile optionally points at a YAML file of declarative tasks.
	TaskFile string `mapstructure:"task_file"`
	// WatchTaskFile re-applies the task file when it changes on disk.
	WatchTaskFile bool `mapstructure:"watch_task_file"`

	// HTTPMaxRequestsPerMinute caps web-source request rate.
	HTTPMaxRequestsPerMinute int `mapstructure:"http_max_requests_per_minute"`
	// HTTPTimeoutSeconds bounds a single connector HTTP request.
	HTTPTimeoutSeconds int `mapstructure:"http_timeout_seconds"`
}

// LogConfig configures logging output.
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// TickerInterval returns the poll interval as a duration.
func (c IngestConfig) TickerInterval() time.Duration {
	return time.Duration(c.TickerIntervalSeconds) * time.Second
}

// CronTolerance returns the due-slot recency window as a duration.
func (c IngestConfig) CronTolerance() time.Duration {
	return time.Duration(c.CronToleranceSeconds) * time.Second
}

// HTTPTimeout returns the connector HTTP timeout as a duration.
func (c IngestConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "skein.db")

	v.SetDefault("server.addr", ":8490")

	v.SetDefault("ingest.ticker_interval_seconds", 60)
	// One poll interval plus slack; see IngestConfig.CronToleranceSeconds.
	v.SetDefault("ingest.cron_tolerance_seconds", 65)
	v.SetDefault("ingest.task_file", "")
	v.SetDefault("ingest.watch_task_file", true)
	v.SetDefault("ingest.http_max_requests_per_minute", 30)
	v.SetDefault("ingest.http_timeout_seconds", 30)

	v.SetDefault("log.json", false)
}

// Load reads configuration from defaults, an optional config file, and
// SKEIN_* environment variables. configPath may be empty.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("SKEIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
		}
	}

	return LoadWithViper(v)
}

// LoadWithViper unmarshals configuration from a prepared Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}
