package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lox/horserace/cmd/horserace/shared"
	"github.com/lox/horserace/internal/randutil"
	"github.com/lox/horserace/internal/simulator"
)

// SimulateCmd runs many races without a display and prints statistics
type SimulateCmd struct {
	RaceFlags
	Series  int           `short:"n" default:"10" help:"Independent meetings, each with fresh horses"`
	Races   int           `short:"r" default:"100" help:"Races per meeting"`
	Workers int           `short:"w" default:"0" help:"Meetings to run in parallel (0 = number of CPUs)"`
	Stake   string        `default:"0" help:"Flat bet on the favourite before every race"`
	Timeout time.Duration `default:"10s" help:"Give up on a single race after this long"`
	Output  string        `short:"o" type:"path" help:"Also write the report as JSON to this file"`
}

func (c *SimulateCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := shared.SetupLogger(os.Stderr, cfg.Log.Level)
	if err != nil {
		return err
	}

	stake, err := decimal.NewFromString(c.Stake)
	if err != nil {
		return fmt.Errorf("invalid stake %q: %w", c.Stake, err)
	}
	if stake.IsNegative() {
		return fmt.Errorf("stake must not be negative")
	}

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	seed := cfg.Race.Seed
	if seed == 0 {
		seed = randutil.NewSeed()
	}

	simCfg := simulator.Config{
		Series:  c.Series,
		Races:   c.Races,
		Seed:    seed,
		Workers: workers,
		Stake:   stake,
		Timeout: c.Timeout,
		Meeting: cfg,
		Logger:  logger,
	}

	logger.Info("Starting simulation",
		"series", c.Series,
		"races", c.Races,
		"workers", workers,
		"seed", seed,
		"track_length", cfg.Race.TrackLength,
		"weather", cfg.Race.Condition())

	ctx := shared.SetupSignalHandlerWithLogger(logger)

	start := time.Now()
	report, err := simulator.New(simCfg).Run(ctx)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	elapsed := time.Since(start)

	simulator.PrintSummary(os.Stdout, report, simCfg)
	if c.Output != "" {
		if err := simulator.WriteReport(c.Output, report, simCfg); err != nil {
			return err
		}
		logger.Info("Report written", "path", c.Output)
	}
	fmt.Printf("\nCompleted %d races in %s (%.0f races/sec)\n",
		report.Stats.Races, elapsed.Round(time.Millisecond), float64(report.Stats.Races)/elapsed.Seconds())
	return nil
}
