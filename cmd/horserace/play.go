package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lox/horserace/cmd/horserace/shared"
	"github.com/lox/horserace/internal/tui"
)

var titleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	Padding(0, 1).
	Bold(true)

// PlayCmd runs the interactive terminal meeting
type PlayCmd struct {
	RaceFlags
	LogFile string `help:"Write logs here instead of the configured file"`
}

func (c *PlayCmd) Run(g *Globals) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	c.apply(cfg)
	if c.LogFile != "" {
		cfg.Log.File = c.LogFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// The terminal belongs to the TUI, so logs go to a file
	logger, closer, err := shared.SetupFileLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close log file", "error", err)
		}
	}()
	logger.Info("Starting interactive meeting", "config", g.Config, "track_length", cfg.Race.TrackLength)

	m, err := buildMeeting(cfg, logger)
	if err != nil {
		return err
	}

	stopHistory, err := recordHistory(g.HistoryFile, m, logger)
	if err != nil {
		return err
	}
	defer stopHistory()

	model := tui.NewTUIModel(m, logger)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())

	ctx := shared.SetupSignalHandler()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	fmt.Println(titleStyle.Render(" Horse Race Simulation "))
	fmt.Printf("Races run: %d\n", m.Races())
	fmt.Printf("Closing balance: $%s\n", m.Balance().StringFixed(2))
	return nil
}
