// Package tui is the interactive terminal front end for a race meeting.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/lox/horserace/internal/meeting"
	"github.com/lox/horserace/internal/race"
)

const fallenMarker = "⌢"

// TUIModel represents the Bubble Tea model for a race meeting
type TUIModel struct {
	meeting *meeting.Meeting
	logger  *log.Logger

	// UI components
	logViewport  viewport.Model
	commandInput textinput.Model

	// State
	gameLog     []string
	snapshot    race.Snapshot
	events      chan meeting.Event
	done        chan struct{}
	raceCancel  context.CancelFunc
	running     bool
	quitting    bool
	focusedPane int // 0 = log, 1 = input

	// Dimensions
	width       int
	height      int
	initialized bool

	// Test mode
	testMode    bool
	capturedLog []string
}

type eventMsg struct {
	event meeting.Event
}

type raceDoneMsg struct {
	outcome *meeting.Outcome
	err     error
}

// NewTUIModel creates a TUI following the given meeting
func NewTUIModel(m *meeting.Meeting, logger *log.Logger) *TUIModel {
	return NewTUIModelWithOptions(m, logger, false)
}

// NewTUIModelWithOptions creates a TUI with test mode option. In test mode
// the log is captured and events are applied with DrainEvents instead of a
// running program.
func NewTUIModelWithOptions(m *meeting.Meeting, logger *log.Logger, testMode bool) *TUIModel {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "Enter to race, or bet A 10, weather rainy, help"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 100
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	model := &TUIModel{
		meeting:      m,
		logger:       logger.WithPrefix("tui"),
		logViewport:  vp,
		commandInput: ti,
		gameLog:      []string{},
		snapshot:     m.Snapshot(),
		events:       make(chan meeting.Event, 1024),
		done:         make(chan struct{}),
		focusedPane:  1,
		testMode:     testMode,
		capturedLog:  []string{},
	}
	m.Events().Subscribe(model)
	return model
}

// OnEvent implements meeting.EventSubscriber. Events are handed to the
// program loop rather than applied on the race goroutine.
func (m *TUIModel) OnEvent(event meeting.Event) {
	select {
	case m.events <- event:
	case <-m.done:
	}
}

// Close stops following the meeting and cancels any race in progress
func (m *TUIModel) Close() {
	select {
	case <-m.done:
		return
	default:
	}
	m.meeting.Events().Unsubscribe(m)
	if m.raceCancel != nil {
		m.raceCancel()
	}
	close(m.done)
}

// Init initializes the TUI model
func (m *TUIModel) Init() tea.Cmd {
	m.AddLogEntry(HeaderStyle.Render(" HORSE RACE SIMULATION "))
	m.AddLogEntry(InfoStyle.Render("Type 'help' for commands. Enter on its own starts a race."))
	return tea.Batch(textinput.Blink, m.listenForEvents())
}

// listenForEvents waits for the next meeting event
func (m *TUIModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-m.events:
			return eventMsg{event: e}
		case <-m.done:
			return nil
		}
	}
}

// Update handles messages in the TUI
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case eventMsg:
		m.applyEvent(msg.event)
		cmds = append(cmds, m.listenForEvents())

	case raceDoneMsg:
		m.finishRace(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logger.Debug("Updating dimensions", "width", m.width, "height", m.height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, m.quit()
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.commandInput.Focus()
			} else {
				m.focusedPane = 0
				m.commandInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				input := strings.TrimSpace(m.commandInput.Value())
				m.commandInput.SetValue("")
				if cmd := m.processCommand(input); cmd != nil {
					cmds = append(cmds, cmd)
				}
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup", "b":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown", "f":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		case "home", "g":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end", "G":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.commandInput, cmd = m.commandInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *TUIModel) quit() tea.Cmd {
	m.quitting = true
	m.Close()
	return tea.Sequence(tea.ClearScreen, tea.Quit)
}

// applyEvent updates the track and log from a meeting event
func (m *TUIModel) applyEvent(event meeting.Event) {
	switch e := event.(type) {
	case meeting.RaceStartEvent:
		m.snapshot = e.Snapshot
		m.AddLogEntry(SuccessStyle.Render(meeting.FormatEvent(e)))
		return
	case meeting.RaceTickEvent:
		m.snapshot = e.Snapshot
		return
	case meeting.HorseFellEvent:
		m.AddLogEntry(FallenStyle.Render(meeting.FormatEvent(e)))
		return
	case meeting.RaceEndEvent:
		m.snapshot = e.Snapshot
		for _, line := range strings.Split(meeting.FormatEvent(e), "\n") {
			if e.Outcome.Result.Winner != nil && strings.HasPrefix(line, e.Outcome.Result.Winner.Name()) {
				line = WinnerStyle.Render(line)
			}
			m.AddLogEntry(line)
		}
		return
	case meeting.WeatherChangeEvent:
		m.snapshot = m.meeting.Snapshot()
	}

	if text := meeting.FormatEvent(event); text != "" {
		m.AddLogEntry(text)
	}
}

func (m *TUIModel) finishRace(msg raceDoneMsg) {
	m.running = false
	if m.raceCancel != nil {
		m.raceCancel()
		m.raceCancel = nil
	}

	switch {
	case errors.Is(msg.err, context.Canceled):
		m.AddLogEntry(WarningStyle.Render("Race abandoned, bets stay on the book"))
		m.snapshot = m.meeting.Snapshot()
	case msg.err != nil:
		m.logger.Error("Race failed", "error", msg.err)
		m.AddLogEntry(ErrorStyle.Render("Race failed: " + msg.err.Error()))
		m.snapshot = m.meeting.Snapshot()
	}
}

// View renders the TUI
func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	// Command pane (bottom, full width)
	commandContent := m.renderCommandPane()
	commandHeight := lipgloss.Height(commandContent)
	commandStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#04B575")).
		Width(max(m.width-2, 1)).
		Height(max(commandHeight, 1))
	commandPane := commandStyle.Render(commandContent)

	// Sidebar (right)
	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 25)
	paneHeight := max(m.height-commandHeight-4, 1)

	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	// Track above the log on the left
	mainWidth := max(m.width-sidebarWidth-4, 1)
	track := m.RenderTrack()
	trackHeight := lipgloss.Height(track)

	m.logViewport.SetContent(m.renderLogPane())
	m.logViewport.Width = mainWidth
	m.logViewport.Height = max(paneHeight-trackHeight-1, 1)

	if !m.initialized && m.logViewport.Width > 1 && m.logViewport.Height > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	mainStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(mainWidth).
		Height(paneHeight)
	if m.focusedPane == 0 {
		mainStyle = mainStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	mainPane := mainStyle.Render(lipgloss.JoinVertical(lipgloss.Left, track, "", m.logViewport.View()))

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, mainPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, commandPane)
}

// RenderTrack draws the current snapshot, one line per occupied lane
func (m *TUIModel) RenderTrack() string {
	return RenderTrack(m.snapshot)
}

// RenderTrack draws a snapshot as a text track between two rails
func RenderTrack(snap race.Snapshot) string {
	var b strings.Builder

	rail := TrackStyle.Render(strings.Repeat("=", snap.TrackLength+3))
	b.WriteString(rail)
	b.WriteString("\n")

	for _, l := range snap.Occupied() {
		distance := min(max(l.Distance, 0), snap.TrackLength)

		marker := HorseStyle(l.Color).Render(l.Symbol)
		if l.Fallen {
			marker = FallenStyle.Render(fallenMarker)
		}

		b.WriteString(TrackStyle.Render("|"))
		b.WriteString(strings.Repeat(" ", distance))
		b.WriteString(marker)
		b.WriteString(strings.Repeat(" ", snap.TrackLength-distance))
		b.WriteString(TrackStyle.Render("|"))

		info := fmt.Sprintf("  %s: %s (Conf: %.2f)", l.Symbol, l.Name, l.Confidence)
		switch {
		case l.Fallen:
			b.WriteString(FallenStyle.Render(info + " (Fallen)"))
		case snap.Winner != "" && snap.Winner == l.Symbol:
			b.WriteString(WinnerStyle.Render(info + " (Winner)"))
		default:
			b.WriteString(LaneInfoStyle.Render(info))
		}
		b.WriteString("\n")
	}

	b.WriteString(rail)
	return b.String()
}

// renderLogPane renders the race log pane content
func (m *TUIModel) renderLogPane() string {
	return RaceLogStyle.Render(strings.Join(m.gameLog, "\n"))
}

// renderSidebarPane shows the wallet, the going and the open book
func (m *TUIModel) renderSidebarPane() string {
	var content strings.Builder

	content.WriteString(WarningStyle.Render("Balance: $" + m.meeting.Balance().StringFixed(2)))
	content.WriteString("\n")
	content.WriteString(InfoStyle.Render(fmt.Sprintf("Weather: %s", m.snapshot.Weather)))
	content.WriteString("\n")
	content.WriteString(InfoStyle.Render(fmt.Sprintf("Races run: %d", m.meeting.Races())))
	content.WriteString("\n\n")

	content.WriteString(InfoStyle.Render("Book:"))
	content.WriteString("\n")
	for _, line := range m.bookLines() {
		content.WriteString("  " + line + "\n")
	}
	return content.String()
}

// renderCommandPane renders the command input pane
func (m *TUIModel) renderCommandPane() string {
	var content strings.Builder

	if m.running {
		m.commandInput.Placeholder = "Race in progress, 'stop' to abandon"
	} else {
		m.commandInput.Placeholder = "Enter to race, or bet A 10, weather rainy, help"
	}

	content.WriteString(m.commandInput.View())
	content.WriteString("\n")

	help := "Tab to scroll log • Enter to submit • Ctrl+C to quit"
	if m.focusedPane == 0 {
		help = "Log focused: ↑↓ scroll, PgUp/PgDn half page, Home/End, Tab to input"
	}
	content.WriteString(InfoStyle.Render(help))
	return content.String()
}

func (m *TUIModel) bookLines() []string {
	ledger := m.meeting.Ledger()
	var lines []string
	for _, e := range m.meeting.Lanes() {
		if e == nil {
			continue
		}
		stake := ledger.Stake(e)
		line := fmt.Sprintf("%c %-10s $%s", e.Symbol(), e.Name(), stake.StringFixed(2))
		if odds, ok := ledger.Odds(e); ok {
			line += fmt.Sprintf(" @ %s", odds.StringFixed(2))
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, "no runners")
	}
	return lines
}

// AddLogEntry adds an entry to the race log
func (m *TUIModel) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)

	if m.testMode {
		m.capturedLog = append(m.capturedLog, entry)
		return
	}

	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// ClearLog clears the race log
func (m *TUIModel) ClearLog() {
	m.gameLog = []string{}
	m.logViewport.SetContent("")
}

// processCommand interprets one line of input. Commands that block, such as
// running a race, are returned as a tea.Cmd.
func (m *TUIModel) processCommand(input string) tea.Cmd {
	parts := strings.Fields(input)
	command := ""
	var args []string
	if len(parts) > 0 {
		command = strings.ToLower(parts[0])
		args = parts[1:]
	}

	switch command {
	case "", "start", "run", "go":
		return m.startRace()
	case "stop", "cancel":
		if !m.running {
			m.AddLogEntry(WarningStyle.Render("No race is running"))
			return nil
		}
		m.raceCancel()
	case "bet":
		m.placeBet(args)
	case "weather":
		m.setWeather(args)
	case "add":
		m.addHorse(args)
	case "remove":
		m.removeHorse(args)
	case "stats":
		m.showStats()
	case "odds", "book":
		for _, line := range m.bookLines() {
			m.AddLogEntry(line)
		}
	case "clear":
		m.ClearLog()
	case "help", "?":
		m.showHelp()
	case "quit", "exit", "q":
		return m.quit()
	default:
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("Unknown command: %s (try 'help')", command)))
	}
	return nil
}

func (m *TUIModel) startRace() tea.Cmd {
	if m.running {
		m.AddLogEntry(WarningStyle.Render("A race is already running"))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.raceCancel = cancel
	m.running = true

	mt := m.meeting
	return func() tea.Msg {
		outcome, err := mt.RunRace(ctx)
		return raceDoneMsg{outcome: outcome, err: err}
	}
}

func (m *TUIModel) placeBet(args []string) {
	if len(args) != 2 {
		m.AddLogEntry(ErrorStyle.Render("Usage: bet <symbol> <amount>"))
		return
	}
	symbol := []rune(args[0])
	if len(symbol) != 1 {
		m.AddLogEntry(ErrorStyle.Render("Horse symbols are a single character"))
		return
	}
	amount, err := decimal.NewFromString(strings.TrimPrefix(args[1], "$"))
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render("Invalid amount: " + args[1]))
		return
	}
	if err := m.meeting.PlaceBet(symbol[0], amount); err != nil {
		m.AddLogEntry(ErrorStyle.Render("Bet refused: " + err.Error()))
	}
}

func (m *TUIModel) setWeather(args []string) {
	if len(args) != 1 {
		names := make([]string, 0, len(race.Conditions()))
		for _, c := range race.Conditions() {
			names = append(names, strings.ToLower(c.String()))
		}
		m.AddLogEntry(ErrorStyle.Render("Usage: weather <" + strings.Join(names, "|") + ">"))
		return
	}
	c := race.ParseCondition(args[0])
	if !strings.EqualFold(c.String(), args[0]) {
		m.AddLogEntry(WarningStyle.Render(fmt.Sprintf("Unknown weather %q, using %s", args[0], c)))
	}
	if err := m.meeting.SetWeather(c); err != nil {
		m.AddLogEntry(ErrorStyle.Render("Cannot change weather: " + err.Error()))
	}
}

func (m *TUIModel) addHorse(args []string) {
	if len(args) < 4 {
		m.AddLogEntry(ErrorStyle.Render("Usage: add <lane> <symbol> <confidence> <name> [shape] [colour]"))
		return
	}
	lane, err := strconv.Atoi(args[0])
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render("Invalid lane: " + args[0]))
		return
	}
	symbol := []rune(args[1])
	if len(symbol) != 1 {
		m.AddLogEntry(ErrorStyle.Render("Horse symbols are a single character"))
		return
	}
	confidence, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render("Invalid confidence: " + args[2]))
		return
	}

	var opts []race.EntrantOption
	if len(args) > 4 {
		opts = append(opts, race.WithShape(race.ParseShape(args[4])))
	}
	if len(args) > 5 {
		opts = append(opts, race.WithColor(args[5]))
	}

	e, err := race.NewEntrant(symbol[0], args[3], confidence, opts...)
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render("Invalid horse: " + err.Error()))
		return
	}
	if err := m.meeting.AddHorse(lane, e); err != nil {
		m.AddLogEntry(ErrorStyle.Render("Cannot add horse: " + err.Error()))
		return
	}
	m.snapshot = m.meeting.Snapshot()
	m.AddLogEntry(SuccessStyle.Render(fmt.Sprintf("%s (%c) added in lane %d", e.Name(), e.Symbol(), lane)))
}

func (m *TUIModel) removeHorse(args []string) {
	if len(args) != 1 {
		m.AddLogEntry(ErrorStyle.Render("Usage: remove <lane>"))
		return
	}
	lane, err := strconv.Atoi(args[0])
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render("Invalid lane: " + args[0]))
		return
	}
	if err := m.meeting.RemoveHorse(lane); err != nil {
		m.AddLogEntry(ErrorStyle.Render("Cannot remove horse: " + err.Error()))
		return
	}
	m.snapshot = m.meeting.Snapshot()
	m.AddLogEntry(fmt.Sprintf("Lane %d is empty", lane))
}

func (m *TUIModel) showStats() {
	tracker := m.meeting.Tracker()
	m.AddLogEntry(HeaderStyle.Render(fmt.Sprintf(" Statistics after %d races ", m.meeting.Races())))
	for i, e := range m.meeting.Lanes() {
		if e == nil {
			continue
		}
		id := e.ID()
		line := fmt.Sprintf("%d. %c %-10s races %d  win ratio %.2f  avg speed %.2f",
			i+1, e.Symbol(), e.Name(), tracker.Races(id), tracker.WinRatio(id), tracker.AverageSpeed(id))
		if best, ok := tracker.BestTime(id, ""); ok {
			line += fmt.Sprintf("  best %d ticks", best)
		}
		m.AddLogEntry(line)
	}
}

func (m *TUIModel) showHelp() {
	for _, line := range []string{
		"Commands:",
		"  <enter>, start           run the next race",
		"  stop                     abandon the race in progress",
		"  bet <symbol> <amount>    back a horse",
		"  odds                     show the book",
		"  weather <condition>      sunny, rainy, muddy or icy",
		"  add <lane> <symbol> <confidence> <name> [shape] [colour]",
		"  remove <lane>            empty a lane",
		"  stats                    performance so far",
		"  clear                    clear this log",
		"  quit                     leave the meeting",
	} {
		m.AddLogEntry(InfoStyle.Render(line))
	}
}

// GetCapturedLog returns the captured log entries (test mode only)
func (m *TUIModel) GetCapturedLog() []string {
	if !m.testMode {
		return nil
	}
	result := make([]string, len(m.capturedLog))
	copy(result, m.capturedLog)
	return result
}

// InjectCommand runs a command as if typed (test mode only)
func (m *TUIModel) InjectCommand(input string) (tea.Cmd, error) {
	if !m.testMode {
		return nil, fmt.Errorf("command injection only available in test mode")
	}
	return m.processCommand(input), nil
}

// DrainEvents applies every queued event and returns how many there were
// (test mode only)
func (m *TUIModel) DrainEvents() int {
	if !m.testMode {
		return 0
	}
	n := 0
	for {
		select {
		case e := <-m.events:
			m.Update(eventMsg{event: e})
			n++
		default:
			return n
		}
	}
}

// IsTestMode returns whether the TUI is in test mode
func (m *TUIModel) IsTestMode() bool {
	return m.testMode
}

// Running reports whether the TUI has a race in flight
func (m *TUIModel) Running() bool {
	return m.running
}
