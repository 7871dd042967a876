package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "skein.db", cfg.Database.Path)
	assert.Equal(t, ":8490", cfg.Server.Addr)
	assert.Equal(t, 60*time.Second, cfg.Ingest.TickerInterval())
	assert.Equal(t, 65*time.Second, cfg.Ingest.CronTolerance())
	assert.False(t, cfg.Log.JSON)
}

func TestToleranceExceedsTickerByDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	// Due slots are missed if the tolerance window is narrower than
	// the poll interval.
	assert.Greater(t, cfg.Ingest.CronTolerance(), cfg.Ingest.TickerInterval())
}

func TestLoadWithViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("ingest.ticker_interval_seconds", 5)
	v.Set("ingest.cron_tolerance_seconds", 10)
	v.Set("database.path", "/tmp/test.db")

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Ingest.TickerInterval())
	assert.Equal(t, 10*time.Second, cfg.Ingest.CronTolerance())
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
}
