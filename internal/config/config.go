// Package config loads race meeting configuration from HCL.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"

	"github.com/lox/horserace/internal/race"
)

const (
	DefaultTrackLength     = 30
	DefaultTickIntervalMS  = 100
	DefaultStartingBalance = 1000.0
	DefaultAddress         = "localhost"
	DefaultPort            = 8090
	DefaultLogLevel        = "info"
	DefaultLogFile         = "horserace.log"

	WeatherModelStandard = "standard"
	WeatherModelNone     = "none"
)

// Config represents the complete meeting configuration
type Config struct {
	Race    *RaceSettings    `hcl:"race,block"`
	Betting *BettingSettings `hcl:"betting,block"`
	Server  *ServerSettings  `hcl:"server,block"`
	Log     *LogSettings     `hcl:"log,block"`
	Horses  []HorseConfig    `hcl:"horse,block"`
}

// RaceSettings controls the track and the engine
type RaceSettings struct {
	TrackLength     int      `hcl:"track_length,optional"`
	Weather         string   `hcl:"weather,optional"`
	WeatherModel    string   `hcl:"weather_model,optional"`
	FallCoefficient *float64 `hcl:"fall_coefficient,optional"`
	TickIntervalMS  int      `hcl:"tick_interval_ms,optional"`
	Seed            int64    `hcl:"seed,optional"`
}

// BettingSettings configures the player's wallet
type BettingSettings struct {
	StartingBalance float64 `hcl:"starting_balance,optional"`
}

// ServerSettings configures the spectator server
type ServerSettings struct {
	Address string `hcl:"address,optional"`
	Port    int    `hcl:"port,optional"`
}

// LogSettings configures logging
type LogSettings struct {
	Level string `hcl:"level,optional"`
	File  string `hcl:"file,optional"`
}

// HorseConfig defines one entrant and its lane
type HorseConfig struct {
	Name       string  `hcl:"name,label"`
	Symbol     string  `hcl:"symbol"`
	Lane       int     `hcl:"lane"`
	Confidence float64 `hcl:"confidence"`
	Shape      string  `hcl:"shape,optional"`
	Color      string  `hcl:"color,optional"`
}

// DefaultConfig returns the built-in meeting: four horses on a 30 unit track
func DefaultConfig() *Config {
	return &Config{
		Race: &RaceSettings{
			TrackLength:    DefaultTrackLength,
			Weather:        string(race.Sunny),
			WeatherModel:   WeatherModelStandard,
			TickIntervalMS: DefaultTickIntervalMS,
		},
		Betting: &BettingSettings{StartingBalance: DefaultStartingBalance},
		Server:  &ServerSettings{Address: DefaultAddress, Port: DefaultPort},
		Log:     &LogSettings{Level: DefaultLogLevel, File: DefaultLogFile},
		Horses: []HorseConfig{
			{Name: "Thunder", Symbol: "A", Lane: 1, Confidence: 0.8, Shape: "Rectangle", Color: "red"},
			{Name: "Lightning", Symbol: "B", Lane: 2, Confidence: 0.5, Shape: "Circle", Color: "yellow"},
			{Name: "Storm", Symbol: "C", Lane: 3, Confidence: 0.3, Shape: "Triangle", Color: "blue"},
			{Name: "Rain", Symbol: "D", Lane: 4, Confidence: 0.85, Shape: "Diamond", Color: "green"},
		},
	}
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// DefaultConfig; a file without horse blocks keeps the default horses.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Race == nil {
		c.Race = &RaceSettings{}
	}
	if c.Race.TrackLength == 0 {
		c.Race.TrackLength = defaults.Race.TrackLength
	}
	if c.Race.Weather == "" {
		c.Race.Weather = defaults.Race.Weather
	}
	if c.Race.WeatherModel == "" {
		c.Race.WeatherModel = defaults.Race.WeatherModel
	}
	if c.Race.TickIntervalMS == 0 {
		c.Race.TickIntervalMS = defaults.Race.TickIntervalMS
	}

	if c.Betting == nil {
		c.Betting = defaults.Betting
	}
	if c.Betting.StartingBalance == 0 {
		c.Betting.StartingBalance = DefaultStartingBalance
	}

	if c.Server == nil {
		c.Server = &ServerSettings{}
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Log == nil {
		c.Log = &LogSettings{}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}

	if len(c.Horses) == 0 {
		c.Horses = defaults.Horses
	}
	for i := range c.Horses {
		if c.Horses[i].Shape == "" {
			c.Horses[i].Shape = string(race.ShapeRectangle)
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Race.TrackLength <= 0 {
		return fmt.Errorf("race: track_length must be positive, got %d", c.Race.TrackLength)
	}
	if c.Race.TickIntervalMS <= 0 {
		return fmt.Errorf("race: tick_interval_ms must be positive, got %d", c.Race.TickIntervalMS)
	}
	if fc := c.Race.FallCoefficient; fc != nil && (*fc < 0 || *fc > 1) {
		return fmt.Errorf("race: fall_coefficient must be between 0 and 1, got %v", *fc)
	}
	switch c.Race.WeatherModel {
	case WeatherModelStandard, WeatherModelNone:
	default:
		return fmt.Errorf("race: invalid weather_model %q", c.Race.WeatherModel)
	}

	if c.Betting.StartingBalance < 0 {
		return fmt.Errorf("betting: starting_balance must not be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if len(c.Horses) == 0 {
		return fmt.Errorf("at least one horse must be configured")
	}

	lanes := make(map[int]string, len(c.Horses))
	for _, h := range c.Horses {
		if utf8.RuneCountInString(h.Symbol) != 1 {
			return fmt.Errorf("horse %s: symbol must be a single character, got %q", h.Name, h.Symbol)
		}
		if h.Lane < 1 {
			return fmt.Errorf("horse %s: lane must be at least 1", h.Name)
		}
		if other, ok := lanes[h.Lane]; ok {
			return fmt.Errorf("horse %s: lane %d already taken by %s", h.Name, h.Lane, other)
		}
		lanes[h.Lane] = h.Name
		if h.Confidence < race.MinStartingConfidence || h.Confidence > 1 {
			return fmt.Errorf("horse %s: confidence must be between %.1f and 1.0", h.Name, race.MinStartingConfidence)
		}
		if !knownShape(h.Shape) {
			return fmt.Errorf("horse %s: unknown shape %q", h.Name, h.Shape)
		}
	}

	return nil
}

func knownShape(name string) bool {
	for _, s := range race.Shapes() {
		if strings.EqualFold(string(s), name) {
			return true
		}
	}
	return false
}

// TickInterval returns the delay between race ticks
func (r *RaceSettings) TickInterval() time.Duration {
	return time.Duration(r.TickIntervalMS) * time.Millisecond
}

// Condition returns the configured weather; unknown names are Sunny
func (r *RaceSettings) Condition() race.Condition {
	return race.ParseCondition(r.Weather)
}

// Model returns the weather strategy named by weather_model
func (r *RaceSettings) Model() race.WeatherModel {
	if r.WeatherModel == WeatherModelNone {
		return race.NoWeather{}
	}
	return race.StandardWeather{}
}

// Coefficient returns the fall coefficient, defaulting to the engine's
func (r *RaceSettings) Coefficient() float64 {
	if r.FallCoefficient == nil {
		return race.DefaultFallCoefficient
	}
	return *r.FallCoefficient
}

// Balance returns the starting balance as money
func (b *BettingSettings) Balance() decimal.Decimal {
	return decimal.NewFromFloat(b.StartingBalance)
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// Lineup pairs an entrant with its lane
type Lineup struct {
	Lane    int
	Entrant *race.Entrant
}

// Entrants builds fresh entrants for every horse block, ordered by lane
func (c *Config) Entrants() ([]Lineup, error) {
	lineup := make([]Lineup, 0, len(c.Horses))
	for _, h := range c.Horses {
		symbol, _ := utf8.DecodeRuneInString(h.Symbol)
		e, err := race.NewEntrant(symbol, h.Name, h.Confidence,
			race.WithShape(race.ParseShape(h.Shape)),
			race.WithColor(h.Color))
		if err != nil {
			return nil, fmt.Errorf("horse %s: %w", h.Name, err)
		}
		lineup = append(lineup, Lineup{Lane: h.Lane, Entrant: e})
	}
	sort.Slice(lineup, func(i, j int) bool { return lineup[i].Lane < lineup[j].Lane })
	return lineup, nil
}
