package meeting

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/horserace/internal/betting"
	"github.com/lox/horserace/internal/config"
	"github.com/lox/horserace/internal/race"
	"github.com/lox/horserace/internal/randutil"
)

const testInterval = 100 * time.Millisecond

// recorder collects every published event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func coefficient(v float64) *float64 { return &v }

// newTestMeeting builds a five unit meeting with no falls where every draw
// is zero, so every runner moves every tick.
func newTestMeeting(t *testing.T, opts ...Option) (*Meeting, *race.Entrant, *race.Entrant, *recorder) {
	t.Helper()

	cfg := Config{
		TrackLength:     5,
		Weather:         race.Sunny,
		FallCoefficient: coefficient(0),
		TickInterval:    testInterval,
		StartingBalance: dec(1000),
	}
	opts = append([]Option{
		WithRandSource(randutil.NewSequence(0)),
		WithLogger(quietLogger()),
	}, opts...)

	m, err := New(cfg, opts...)
	require.NoError(t, err)

	a, err := race.NewEntrant('A', "Thunder", 1.0)
	require.NoError(t, err)
	b, err := race.NewEntrant('B', "Lightning", 0.5)
	require.NoError(t, err)
	require.NoError(t, m.AddHorse(1, a))
	require.NoError(t, m.AddHorse(2, b))

	rec := &recorder{}
	m.Events().Subscribe(rec)
	return m, a, b, rec
}

func TestNewRejectsBadTrack(t *testing.T) {
	_, err := New(Config{TrackLength: 0})
	require.ErrorIs(t, err, race.ErrInvalidTrackLength)
}

func TestNewDefaultsFallCoefficient(t *testing.T) {
	m, err := New(Config{TrackLength: 5, StartingBalance: dec(100)},
		WithRandSource(randutil.NewSequence(0)),
		WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NotNil(t, m.cfg.FallCoefficient)
	assert.Equal(t, race.DefaultFallCoefficient, *m.cfg.FallCoefficient)

	a, err := race.NewEntrant('A', "Thunder", 1.0)
	require.NoError(t, err)
	require.NoError(t, m.AddHorse(1, a))

	// every draw is zero, so the first fall check always succeeds
	out, err := m.RunInstant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, race.AllFallen, out.Result.State)
	assert.Equal(t, 1, out.Result.Ticks)

	_, err = New(Config{TrackLength: 5, FallCoefficient: coefficient(-0.1)})
	require.Error(t, err)
}

func TestRunInstantSettlesEverything(t *testing.T) {
	m, a, b, rec := newTestMeeting(t)

	require.NoError(t, m.PlaceBet('A', dec(30)))
	require.NoError(t, m.PlaceBet('b', dec(70)))
	assert.Equal(t, "900.00", m.Balance().StringFixed(2))

	out, err := m.RunInstant(context.Background())
	require.NoError(t, err)

	res := out.Result
	assert.Equal(t, race.WonBy, res.State)
	assert.Same(t, a, res.Winner, "lane 1 wins the tie on the line")
	assert.Equal(t, 5, res.Ticks)

	assert.Equal(t, "100.00", out.Staked.StringFixed(2))
	assert.Equal(t, "100.00", out.Payout.StringFixed(2))
	assert.Equal(t, "1000.00", out.Balance.StringFixed(2))
	assert.Zero(t, m.Ledger().Len())

	assert.Equal(t, 1.0, a.Confidence())
	assert.InDelta(t, 0.45, b.Confidence(), 1e-9)
	assert.Equal(t, 1, a.RacesWon())
	assert.Equal(t, 1, b.RacesParticipated())

	assert.Equal(t, 1.0, m.Tracker().WinRatio(a.ID()))
	assert.Equal(t, 0.0, m.Tracker().WinRatio(b.ID()))
	assert.InDeltaSlice(t, []float64{0.45}, m.Tracker().ConfidenceHistory(b.ID()), 1e-9)

	assert.Equal(t, 1, m.Races())
	assert.False(t, m.Running())
	assert.Same(t, out, m.LastOutcome())

	assert.Equal(t, 2, rec.count(EventTypeBetPlaced))
	assert.Equal(t, 1, rec.count(EventTypeRaceStart))
	assert.Equal(t, 5, rec.count(EventTypeRaceTick))
	assert.Equal(t, 1, rec.count(EventTypeRaceEnd))
	assert.Zero(t, rec.count(EventTypeHorseFell))
}

func TestRunInstantReusesEntrants(t *testing.T) {
	m, a, _, _ := newTestMeeting(t)

	for range 3 {
		out, err := m.RunInstant(context.Background())
		require.NoError(t, err)
		assert.Same(t, a, out.Result.Winner)
	}

	assert.Equal(t, 3, a.RacesParticipated())
	assert.Equal(t, 3, m.Tracker().Races(a.ID()))
	require.NoError(t, m.Tracker().Validate())
}

func TestRunInstantAllFallen(t *testing.T) {
	m, err := New(Config{TrackLength: 5, FallCoefficient: coefficient(1), StartingBalance: dec(100)},
		WithRandSource(randutil.NewSequence(0.99, 0)),
		WithLogger(quietLogger()))
	require.NoError(t, err)

	a, err := race.NewEntrant('A', "Thunder", 0.9)
	require.NoError(t, err)
	require.NoError(t, m.AddHorse(1, a))
	require.NoError(t, m.PlaceBet('A', dec(40)))

	rec := &recorder{}
	m.Events().Subscribe(rec)

	out, err := m.RunInstant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, race.AllFallen, out.Result.State)
	assert.Nil(t, out.Result.Winner)
	assert.True(t, out.Payout.IsZero())
	assert.Equal(t, "60.00", m.Balance().StringFixed(2), "losing stakes are gone")
	assert.Zero(t, m.Ledger().Len())
	assert.Equal(t, 1, rec.count(EventTypeHorseFell))
}

func TestRunInstantEmptyMeeting(t *testing.T) {
	m, err := New(Config{TrackLength: 5}, WithLogger(quietLogger()))
	require.NoError(t, err)

	out, err := m.RunInstant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, race.AllFallen, out.Result.State)
	assert.Zero(t, out.Result.Ticks)
}

func TestRunInstantCancelled(t *testing.T) {
	m, a, _, _ := newTestMeeting(t)
	require.NoError(t, m.PlaceBet('A', dec(10)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.RunInstant(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Running())
	assert.Zero(t, m.Races())
	assert.Zero(t, a.Distance())
	assert.Equal(t, 1, m.Ledger().Len(), "stakes carry over to the next race")
}

func TestPlaceBetErrors(t *testing.T) {
	m, _, _, rec := newTestMeeting(t)

	err := m.PlaceBet('Z', dec(10))
	require.ErrorIs(t, err, betting.ErrInvalidSelection)
	require.ErrorIs(t, err, ErrUnknownHorse)

	require.ErrorIs(t, m.PlaceBet('A', dec(1001)), betting.ErrInsufficientFunds)
	require.ErrorIs(t, m.PlaceBet('A', dec(0)), betting.ErrInvalidAmount)

	assert.Equal(t, "1000.00", m.Balance().StringFixed(2))
	assert.Zero(t, m.Ledger().Len())
	assert.Zero(t, rec.count(EventTypeBetPlaced))
}

func TestAddHorse(t *testing.T) {
	m, a, _, _ := newTestMeeting(t)

	dup, err := race.NewEntrant('A', "Copycat", 0.5)
	require.NoError(t, err)
	require.ErrorIs(t, m.AddHorse(4, dup), ErrDuplicateSymbol)
	require.NoError(t, m.AddHorse(1, dup), "replacing the lane that holds the symbol is fine")

	require.ErrorIs(t, m.AddHorse(0, a), race.ErrInvalidLane)
	require.ErrorIs(t, m.AddHorse(3, nil), race.ErrNilEntrant)

	c, err := race.NewEntrant('C', "Storm", 0.3)
	require.NoError(t, err)
	require.NoError(t, m.AddHorse(4, c))
	lanes := m.Lanes()
	require.Len(t, lanes, 4)
	assert.Nil(t, lanes[2])

	require.NoError(t, m.RemoveHorse(4))
	assert.Nil(t, m.Lanes()[3])

	got, err := m.Horse('a')
	require.NoError(t, err)
	assert.Same(t, dup, got)
}

func TestSnapshot(t *testing.T) {
	m, _, _, _ := newTestMeeting(t)

	snap := m.Snapshot()
	assert.Equal(t, race.NotStarted.String(), snap.State)
	assert.Len(t, snap.Occupied(), 2)
	assert.Zero(t, snap.Lanes[0].Distance)

	_, err := m.RunInstant(context.Background())
	require.NoError(t, err)

	snap = m.Snapshot()
	assert.Equal(t, race.WonBy.String(), snap.State)
	assert.Equal(t, "A", snap.Winner)
	assert.Equal(t, 5, snap.Lanes[0].Distance)

	require.NoError(t, m.SetWeather(race.Muddy))
	snap = m.Snapshot()
	assert.Equal(t, race.NotStarted.String(), snap.State)
	assert.Equal(t, race.Muddy, snap.Weather)
}

func TestRunRaceWithMockClock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	m, a, _, rec := newTestMeeting(t, WithClock(mClock))

	var (
		out    *Outcome
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		out, runErr = m.RunRace(ctx)
	}()

	for advances := 0; ; advances++ {
		select {
		case <-done:
			require.NoError(t, runErr)
			assert.Same(t, a, out.Result.Winner)
			assert.Equal(t, 5, out.Result.Ticks)
			assert.Equal(t, 5, rec.count(EventTypeRaceTick))
			return
		default:
		}
		require.Less(t, advances, 1000, "race never finished")
		mClock.Advance(testInterval).MustWait(ctx)
	}
}

func TestRunRaceBlocksChangesAndCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mClock := quartz.NewMock(t)
	m, a, _, _ := newTestMeeting(t, WithClock(mClock))

	errCh := make(chan error, 1)
	go func() {
		_, err := m.RunRace(ctx)
		errCh <- err
	}()

	require.Eventually(t, m.Running, time.Second, time.Millisecond)

	_, err := m.RunInstant(context.Background())
	require.ErrorIs(t, err, ErrRaceInProgress)
	require.ErrorIs(t, m.PlaceBet('A', dec(10)), ErrRaceInProgress)
	require.ErrorIs(t, m.SetWeather(race.Icy), ErrRaceInProgress)
	require.ErrorIs(t, m.AddHorse(3, a), ErrRaceInProgress)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("RunRace did not return after cancel")
	}
	assert.False(t, m.Running())
	assert.Zero(t, m.Races())
}

func TestConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Race.Weather = "rainy"

	mc := ConfigFrom(cfg)
	assert.Equal(t, 30, mc.TrackLength)
	assert.Equal(t, race.Rainy, mc.Weather)
	require.NotNil(t, mc.FallCoefficient)
	assert.Equal(t, race.DefaultFallCoefficient, *mc.FallCoefficient)
	assert.Equal(t, testInterval, mc.TickInterval)

	m, err := New(mc, WithLogger(quietLogger()))
	require.NoError(t, err)

	lineup, err := cfg.Entrants()
	require.NoError(t, err)
	require.NoError(t, m.AddLineup(lineup))
	assert.Len(t, m.Lanes(), 4)
	assert.Equal(t, "1000.00", m.Balance().StringFixed(2))
}

func TestFormatEvent(t *testing.T) {
	m, _, _, rec := newTestMeeting(t)
	require.NoError(t, m.PlaceBet('A', dec(30)))
	out, err := m.RunInstant(context.Background())
	require.NoError(t, err)

	text := FormatOutcome(out)
	assert.Contains(t, text, "Thunder (A) wins after 5 ticks")
	assert.Contains(t, text, "1. Thunder")
	assert.Contains(t, text, "WINNER")
	assert.Contains(t, text, "LOSER")
	assert.Contains(t, text, "Pool $30.00, paid $30.00, balance $1000.00")

	var lines []string
	rec.mu.Lock()
	for _, e := range rec.events {
		if s := FormatEvent(e); s != "" {
			lines = append(lines, s)
		}
	}
	rec.mu.Unlock()

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Bet $30.00 on Thunder (A)"))
	assert.Contains(t, lines[1], "2 runners over 5 units, Sunny")
	assert.Equal(t, text, lines[2])

	assert.Equal(t, "Weather is now Icy", FormatEvent(WeatherChangeEvent{Weather: race.Icy}))
}
