package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/lox/horserace/internal/config"
)

// version is set by ldflags during build
var version = "dev"

// Globals are the flags shared by every command
type Globals struct {
	Config      string `short:"c" type:"path" default:"horserace.hcl" help:"Meeting configuration file (defaults apply if missing)"`
	LogLevel    string `help:"Override the configured log level (debug, info, warn, error)"`
	NoColor     bool   `help:"Disable coloured output"`
	HistoryFile string `type:"path" help:"Append every settled race to this TOML history file"`
}

type CLI struct {
	Globals

	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Play     PlayCmd          `cmd:"" default:"1" help:"Run an interactive meeting in the terminal"`
	Simulate SimulateCmd      `cmd:"" help:"Run headless races and summarise the results"`
	Serve    ServeCmd         `cmd:"" help:"Run races continuously and stream them to spectators"`
	History  HistoryCmd       `cmd:"" help:"Print the races recorded in a history file"`
}

// loadConfig reads and validates the meeting configuration
func (g *Globals) loadConfig() (*config.Config, error) {
	if g.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	cfg, err := config.LoadConfig(g.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	return cfg, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("horserace"),
		kong.Description("Horse race simulation with betting, statistics and a spectator feed"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
