package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/lox/horserace/internal/config"
	"github.com/lox/horserace/internal/history"
	"github.com/lox/horserace/internal/meeting"
	"github.com/lox/horserace/internal/randutil"
)

// RaceFlags override the race block of the configuration
type RaceFlags struct {
	TrackLength int    `help:"Track length in units (overrides config)"`
	Weather     string `help:"Weather for the first race: sunny, rainy, muddy or icy"`
	Seed        *int64 `help:"Deterministic RNG seed (optional)"`
}

func (f RaceFlags) apply(cfg *config.Config) {
	if f.TrackLength != 0 {
		cfg.Race.TrackLength = f.TrackLength
	}
	if f.Weather != "" {
		cfg.Race.Weather = f.Weather
	}
	if f.Seed != nil {
		cfg.Race.Seed = *f.Seed
	}
}

// buildMeeting creates a meeting with the configured horses in their lanes.
// A random seed is written back to cfg so other draws can follow it.
func buildMeeting(cfg *config.Config, logger *log.Logger) (*meeting.Meeting, error) {
	seed := cfg.Race.Seed
	if seed == 0 {
		seed = randutil.NewSeed()
		cfg.Race.Seed = seed
		logger.Info("Using random seed", "seed", seed)
	} else {
		logger.Info("Using deterministic seed", "seed", seed)
	}

	m, err := meeting.New(meeting.ConfigFrom(cfg),
		meeting.WithRandSource(randutil.New(seed)),
		meeting.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	lineup, err := cfg.Entrants()
	if err != nil {
		return nil, err
	}
	if err := m.AddLineup(lineup); err != nil {
		return nil, fmt.Errorf("failed to place horses: %w", err)
	}
	return m, nil
}

// recordHistory subscribes a history recorder when a file was given. The
// returned func flushes and detaches it.
func recordHistory(path string, m *meeting.Meeting, logger *log.Logger) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	rec, err := history.NewRecorder(path, logger)
	if err != nil {
		return nil, err
	}
	m.Events().Subscribe(rec)
	logger.Info("Recording race history", "path", path)

	return func() {
		m.Events().Unsubscribe(rec)
		if err := rec.Close(); err != nil {
			logger.Error("Failed to flush race history", "error", err)
		}
	}, nil
}
