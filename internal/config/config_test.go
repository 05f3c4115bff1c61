package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/horserace/internal/race"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "horserace.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultTrackLength, cfg.Race.TrackLength)
	assert.Equal(t, race.Sunny, cfg.Race.Condition())
	assert.Equal(t, 100*time.Millisecond, cfg.Race.TickInterval())
	assert.Equal(t, race.DefaultFallCoefficient, cfg.Race.Coefficient())
	assert.Equal(t, "1000", cfg.Betting.Balance().String())
	assert.Len(t, cfg.Horses, 4)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
race {
  track_length     = 12
  weather          = "icy"
  fall_coefficient = 0
  tick_interval_ms = 250
  seed             = 42
}

betting {
  starting_balance = 250.5
}

server {
  port = 9000
}

horse "Pegasus" {
  symbol     = "P"
  lane       = 3
  confidence = 0.7
  shape      = "star"
  color      = "purple"
}

horse "Nag" {
  symbol     = "N"
  lane       = 1
  confidence = 0.2
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 12, cfg.Race.TrackLength)
	assert.Equal(t, race.Icy, cfg.Race.Condition())
	assert.Equal(t, 0.0, cfg.Race.Coefficient(), "explicit zero is kept")
	assert.Equal(t, 250*time.Millisecond, cfg.Race.TickInterval())
	assert.Equal(t, int64(42), cfg.Race.Seed)
	assert.IsType(t, race.StandardWeather{}, cfg.Race.Model())
	assert.Equal(t, "250.5", cfg.Betting.Balance().String())
	assert.Equal(t, "localhost:9000", cfg.GetServerAddress())
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)

	lineup, err := cfg.Entrants()
	require.NoError(t, err)
	require.Len(t, lineup, 2)

	assert.Equal(t, 1, lineup[0].Lane)
	assert.Equal(t, 'N', lineup[0].Entrant.Symbol())
	assert.Equal(t, race.ShapeRectangle, lineup[0].Entrant.Shape())

	assert.Equal(t, 3, lineup[1].Lane)
	assert.Equal(t, "Pegasus", lineup[1].Entrant.Name())
	assert.Equal(t, race.ShapeStar, lineup[1].Entrant.Shape())
	assert.Equal(t, "purple", lineup[1].Entrant.Color())
	assert.Equal(t, 0.7, lineup[1].Entrant.Confidence())
}

func TestLoadConfigParseError(t *testing.T) {
	path := writeConfig(t, `race {`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero track", func(c *Config) { c.Race.TrackLength = 0 }},
		{"zero interval", func(c *Config) { c.Race.TickIntervalMS = 0 }},
		{"fall coefficient too high", func(c *Config) { v := 1.5; c.Race.FallCoefficient = &v }},
		{"bad weather model", func(c *Config) { c.Race.WeatherModel = "chaotic" }},
		{"negative balance", func(c *Config) { c.Betting.StartingBalance = -1 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Log.Level = "shouty" }},
		{"no horses", func(c *Config) { c.Horses = nil }},
		{"long symbol", func(c *Config) { c.Horses[0].Symbol = "AB" }},
		{"lane zero", func(c *Config) { c.Horses[0].Lane = 0 }},
		{"duplicate lane", func(c *Config) { c.Horses[1].Lane = c.Horses[0].Lane }},
		{"low confidence", func(c *Config) { c.Horses[0].Confidence = 0.05 }},
		{"unknown shape", func(c *Config) { c.Horses[0].Shape = "Hexagon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWeatherModelNone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Race.WeatherModel = WeatherModelNone
	require.NoError(t, cfg.Validate())
	assert.IsType(t, race.NoWeather{}, cfg.Race.Model())
}
