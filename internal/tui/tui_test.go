package tui

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/muesli/termenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/horserace/internal/meeting"
	"github.com/lox/horserace/internal/race"
	"github.com/lox/horserace/internal/randutil"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// newTestMeeting builds a five unit race that A wins in five ticks.
func newTestMeeting(t *testing.T, opts ...meeting.Option) *meeting.Meeting {
	t.Helper()

	opts = append([]meeting.Option{
		meeting.WithRandSource(randutil.NewSequence(0)),
		meeting.WithLogger(quietLogger()),
	}, opts...)
	noFalls := 0.0
	m, err := meeting.New(meeting.Config{
		TrackLength:     5,
		FallCoefficient: &noFalls,
		TickInterval:    time.Millisecond,
		StartingBalance: decimal.NewFromInt(100),
	}, opts...)
	require.NoError(t, err)

	a, err := race.NewEntrant('A', "Thunder", 1.0, race.WithColor("red"))
	require.NoError(t, err)
	b, err := race.NewEntrant('B', "Lightning", 0.5)
	require.NoError(t, err)
	require.NoError(t, m.AddHorse(1, a))
	require.NoError(t, m.AddHorse(2, b))
	return m
}

func newTestTUI(t *testing.T, m *meeting.Meeting) *TUIModel {
	t.Helper()

	tui := NewTUIModelWithOptions(m, quietLogger(), true)
	t.Cleanup(tui.Close)
	return tui
}

func inject(t *testing.T, tui *TUIModel, input string) tea.Cmd {
	t.Helper()

	cmd, err := tui.InjectCommand(input)
	require.NoError(t, err)
	return cmd
}

func logContains(tui *TUIModel, substr string) bool {
	for _, line := range tui.GetCapturedLog() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestTUITestMode(t *testing.T) {
	t.Run("test mode captures log entries", func(t *testing.T) {
		tui := newTestTUI(t, newTestMeeting(t))

		assert.True(t, tui.IsTestMode())
		assert.Empty(t, tui.GetCapturedLog())

		tui.AddLogEntry("Gates open")
		tui.AddLogEntry("They're off!")

		assert.Equal(t, []string{"Gates open", "They're off!"}, tui.GetCapturedLog())
	})

	t.Run("production mode does not capture logs", func(t *testing.T) {
		tui := NewTUIModel(newTestMeeting(t), quietLogger())
		defer tui.Close()

		assert.False(t, tui.IsTestMode())
		tui.AddLogEntry("Some log entry")
		assert.Nil(t, tui.GetCapturedLog())
	})

	t.Run("command injection fails in production mode", func(t *testing.T) {
		tui := NewTUIModel(newTestMeeting(t), quietLogger())
		defer tui.Close()

		_, err := tui.InjectCommand("stats")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "test mode")
	})
}

func TestBetCommand(t *testing.T) {
	m := newTestMeeting(t)
	tui := newTestTUI(t, m)

	assert.Nil(t, inject(t, tui, "bet A 10"))
	assert.Equal(t, "90.00", m.Balance().StringFixed(2))
	assert.Equal(t, 1, tui.DrainEvents())
	assert.True(t, logContains(tui, "Bet $10.00 on Thunder (A)"))

	t.Run("unknown horse", func(t *testing.T) {
		inject(t, tui, "bet Z 10")
		assert.True(t, logContains(tui, "Bet refused"))
	})

	t.Run("bad amount", func(t *testing.T) {
		inject(t, tui, "bet A lots")
		assert.True(t, logContains(tui, "Invalid amount: lots"))
	})

	t.Run("more than the wallet holds", func(t *testing.T) {
		inject(t, tui, "bet B 1000")
		assert.True(t, logContains(tui, "not enough money"))
		assert.Equal(t, "90.00", m.Balance().StringFixed(2))
	})
}

func TestRunRaceCommand(t *testing.T) {
	m := newTestMeeting(t)
	tui := newTestTUI(t, m)

	inject(t, tui, "bet A 10")
	cmd := inject(t, tui, "")
	require.NotNil(t, cmd)
	assert.True(t, tui.Running())

	msg := cmd()
	done, ok := msg.(raceDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)
	require.NotNil(t, done.outcome.Result.Winner)
	assert.Equal(t, 'A', done.outcome.Result.Winner.Symbol())

	tui.Update(msg)
	assert.False(t, tui.Running())

	// bet, start, five ticks and the finish
	assert.Equal(t, 8, tui.DrainEvents())
	assert.True(t, logContains(tui, "They're off! 2 runners over 5 units"))
	assert.True(t, logContains(tui, "Thunder (A) wins after 5 ticks"))
	assert.Equal(t, "won", tui.snapshot.State)
	assert.Equal(t, "A", tui.snapshot.Winner)
	assert.Equal(t, "100.00", m.Balance().StringFixed(2))
}

func TestStopCommand(t *testing.T) {
	mClock := quartz.NewMock(t)
	m := newTestMeeting(t, meeting.WithClock(mClock))
	tui := newTestTUI(t, m)

	inject(t, tui, "bet B 5")
	cmd := inject(t, tui, "start")
	require.NotNil(t, cmd)

	result := make(chan tea.Msg, 1)
	go func() { result <- cmd() }()
	require.Eventually(t, m.Running, 5*time.Second, time.Millisecond)

	assert.Nil(t, inject(t, tui, "start"))
	assert.True(t, logContains(tui, "A race is already running"))

	inject(t, tui, "stop")

	var msg tea.Msg
	select {
	case msg = <-result:
	case <-time.After(5 * time.Second):
		t.Fatal("race did not stop")
	}
	tui.Update(msg)

	assert.False(t, tui.Running())
	assert.False(t, m.Running())
	assert.True(t, logContains(tui, "Race abandoned"))
	assert.Equal(t, "5.00", m.Ledger().Pool().StringFixed(2))
	assert.Zero(t, m.Races())
}

func TestStopWithoutRace(t *testing.T) {
	tui := newTestTUI(t, newTestMeeting(t))

	assert.Nil(t, inject(t, tui, "stop"))
	assert.True(t, logContains(tui, "No race is running"))
}

func TestWeatherCommand(t *testing.T) {
	m := newTestMeeting(t)
	tui := newTestTUI(t, m)

	inject(t, tui, "weather icy")
	assert.Equal(t, race.Icy, m.Weather())
	tui.DrainEvents()
	assert.True(t, logContains(tui, "Weather is now Icy"))
	assert.Equal(t, race.Icy, tui.snapshot.Weather)

	inject(t, tui, "weather foggy")
	assert.True(t, logContains(tui, `Unknown weather "foggy", using Sunny`))
	assert.Equal(t, race.Sunny, m.Weather())
}

func TestRosterCommands(t *testing.T) {
	m := newTestMeeting(t)
	tui := newTestTUI(t, m)

	inject(t, tui, "add 4 C 0.3 Storm circle blue")
	lanes := m.Lanes()
	require.Len(t, lanes, 4)
	require.NotNil(t, lanes[3])
	assert.Equal(t, "Storm", lanes[3].Name())
	assert.Equal(t, race.ShapeCircle, lanes[3].Shape())
	assert.Equal(t, "blue", lanes[3].Color())
	assert.True(t, logContains(tui, "Storm (C) added in lane 4"))
	assert.Len(t, tui.snapshot.Lanes, 4)

	inject(t, tui, "add 5 A 0.5 Copycat")
	assert.True(t, logContains(tui, "Cannot add horse"))

	inject(t, tui, "add 5 D 2.0 Reckless")
	assert.True(t, logContains(tui, "Invalid horse"))

	inject(t, tui, "add x D 0.5 Rain")
	assert.True(t, logContains(tui, "Invalid lane: x"))

	inject(t, tui, "remove 4")
	assert.Nil(t, m.Lanes()[3])
	assert.True(t, logContains(tui, "Lane 4 is empty"))
}

func TestStatsCommand(t *testing.T) {
	m := newTestMeeting(t)
	tui := newTestTUI(t, m)

	_, err := m.RunInstant(context.Background())
	require.NoError(t, err)

	inject(t, tui, "stats")
	assert.True(t, logContains(tui, "Statistics after 1 races"))
	assert.True(t, logContains(tui, "best 5 ticks"))
}

func TestUnknownCommand(t *testing.T) {
	tui := newTestTUI(t, newTestMeeting(t))

	assert.Nil(t, inject(t, tui, "gallop faster"))
	assert.True(t, logContains(tui, "Unknown command: gallop"))
}

func TestQuitCommand(t *testing.T) {
	tui := newTestTUI(t, newTestMeeting(t))

	assert.NotNil(t, inject(t, tui, "quit"))
	assert.Empty(t, tui.View())
}

func TestRenderTrack(t *testing.T) {
	snap := race.Snapshot{
		TrackLength: 5,
		Weather:     race.Sunny,
		Lanes: []race.LaneSnapshot{
			{Lane: 1, Symbol: "A", Name: "Thunder", Distance: 2, Confidence: 0.8},
			{Lane: 2, Empty: true},
			{Lane: 3, Symbol: "B", Name: "Lightning", Distance: 1, Fallen: true, Confidence: 0.5},
		},
	}

	lines := strings.Split(RenderTrack(snap), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "========", lines[0])
	assert.Contains(t, lines[1], "|  A   |")
	assert.Contains(t, lines[1], "A: Thunder (Conf: 0.80)")
	assert.Contains(t, lines[2], "| ⌢    |")
	assert.Contains(t, lines[2], "(Fallen)")
	assert.Equal(t, "========", lines[3])
}

func TestView(t *testing.T) {
	m := newTestMeeting(t)
	tui := newTestTUI(t, m)

	assert.Equal(t, "Loading...", tui.View())

	tui.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := tui.View()
	assert.Contains(t, view, "Thunder")
	assert.Contains(t, view, "Lightning")
	assert.Contains(t, view, "Balance: $100.00")
	assert.Contains(t, view, "Weather: Sunny")
}
