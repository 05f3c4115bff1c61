package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/horserace/cmd/horserace/shared"
	"github.com/lox/horserace/internal/meeting"
	"github.com/lox/horserace/internal/race"
	"github.com/lox/horserace/internal/randutil"
	"github.com/lox/horserace/internal/server"
)

// ServeCmd runs races back to back and streams them to spectators
type ServeCmd struct {
	RaceFlags
	Addr          string        `help:"Listen address (overrides config)"`
	Pause         time.Duration `default:"3s" help:"Pause between races"`
	Races         int           `default:"0" help:"Stop after this many races (0 runs until interrupted)"`
	RotateWeather bool          `help:"Pick new weather at random before each race"`
}

func (c *ServeCmd) Run(g *Globals) error {
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

	m, err := buildMeeting(cfg, logger)
	if err != nil {
		return err
	}

	stopHistory, err := recordHistory(g.HistoryFile, m, logger)
	if err != nil {
		return err
	}
	defer stopHistory()

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}
	srv := server.NewServer(addr, m, logger)

	ctx, stop := context.WithCancel(shared.SetupSignalHandlerWithLogger(logger))
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(srv.Start)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	weather := randutil.New(cfg.Race.Seed)
	eg.Go(func() error {
		defer stop()
		return c.runRaces(ctx, m, weather, logger)
	})

	return eg.Wait()
}

// runRaces runs races until the limit is reached or ctx is cancelled. Pauses
// use the meeting's clock and rotated weather is drawn from rng.
func (c *ServeCmd) runRaces(ctx context.Context, m *meeting.Meeting, rng *rand.Rand, logger *log.Logger) error {
	conditions := race.Conditions()

	for n := 0; c.Races == 0 || n < c.Races; n++ {
		if n > 0 {
			pause := m.Clock().NewTimer(c.Pause, "serve", "pause")
			select {
			case <-ctx.Done():
				pause.Stop()
				return nil
			case <-pause.C:
			}
		}

		if c.RotateWeather {
			if err := m.SetWeather(conditions[rng.IntN(len(conditions))]); err != nil {
				return err
			}
		}

		outcome, err := m.RunRace(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("race %d: %w", n+1, err)
		}

		winner := "none"
		if outcome.Result.Winner != nil {
			winner = outcome.Result.Winner.Name()
		}
		logger.Info("Race complete", "race", n+1, "winner", winner, "ticks", outcome.Result.Ticks)
	}
	return nil
}
