// Package meeting runs a sequence of races over a shared stable of horses,
// taking bets before each race and settling them afterwards.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/shopspring/decimal"

	"github.com/lox/horserace/internal/betting"
	"github.com/lox/horserace/internal/config"
	"github.com/lox/horserace/internal/performance"
	"github.com/lox/horserace/internal/race"
	"github.com/lox/horserace/internal/randutil"
)

var (
	ErrRaceInProgress  = errors.New("a race is in progress")
	ErrUnknownHorse    = errors.New("no horse with that symbol")
	ErrDuplicateSymbol = errors.New("symbol already used in another lane")
)

// errRaceOver stops the tick loop once the race reaches a terminal state.
var errRaceOver = errors.New("race over")

// Config holds the race parameters shared by every race of the meeting. A nil
// FallCoefficient means race.DefaultFallCoefficient; point it at zero for
// races without falls.
type Config struct {
	TrackLength     int
	Weather         race.Condition
	WeatherModel    race.WeatherModel
	FallCoefficient *float64
	TickInterval    time.Duration
	StartingBalance decimal.Decimal
}

// Outcome is what the caller gets back from a settled race.
type Outcome struct {
	Result  *race.Result
	Staked  decimal.Decimal // pool before settlement
	Payout  decimal.Decimal
	Balance decimal.Decimal
}

// Meeting owns the roster between races and drives each race to completion.
// Only one race runs at a time.
type Meeting struct {
	mu sync.Mutex

	cfg     Config
	clock   quartz.Clock
	rng     randutil.Source
	logger  *log.Logger
	bus     EventBus
	ledger  *betting.Ledger
	wallet  *betting.Wallet
	tracker *performance.Tracker

	lanes   []*race.Entrant
	weather race.Condition
	running bool
	current *race.Race // live or last finished race, nil after roster changes
	last    *Outcome
	races   int
}

// Option configures a Meeting.
type Option func(*Meeting)

// WithClock sets the clock that paces RunRace.
func WithClock(clock quartz.Clock) Option {
	return func(m *Meeting) { m.clock = clock }
}

// WithRandSource sets the source shared by every race.
func WithRandSource(src randutil.Source) Option {
	return func(m *Meeting) { m.rng = src }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Meeting) { m.logger = logger }
}

// WithEventBus publishes events to an existing bus.
func WithEventBus(bus EventBus) Option {
	return func(m *Meeting) { m.bus = bus }
}

// WithTracker shares a performance tracker between meetings.
func WithTracker(tracker *performance.Tracker) Option {
	return func(m *Meeting) { m.tracker = tracker }
}

// New creates a meeting.
func New(cfg Config, opts ...Option) (*Meeting, error) {
	if cfg.TrackLength <= 0 {
		return nil, fmt.Errorf("%w: %d", race.ErrInvalidTrackLength, cfg.TrackLength)
	}
	if cfg.WeatherModel == nil {
		cfg.WeatherModel = race.StandardWeather{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if cfg.Weather == "" {
		cfg.Weather = race.Sunny
	}
	if cfg.FallCoefficient == nil {
		fc := race.DefaultFallCoefficient
		cfg.FallCoefficient = &fc
	}
	if fc := *cfg.FallCoefficient; fc < 0 || fc > 1 {
		return nil, fmt.Errorf("fall coefficient must be between 0 and 1, got %v", fc)
	}

	m := &Meeting{
		cfg:     cfg,
		weather: cfg.Weather,
		ledger:  betting.NewLedger(),
		wallet:  betting.NewWallet(cfg.StartingBalance),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.clock == nil {
		m.clock = quartz.NewReal()
	}
	if m.rng == nil {
		m.rng = randutil.New(randutil.NewSeed())
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard)
	}
	if m.bus == nil {
		m.bus = NewEventBus()
	}
	if m.tracker == nil {
		m.tracker = performance.NewTracker(m.logger)
	}
	m.logger = m.logger.WithPrefix("meeting")
	return m, nil
}

// Events returns the bus events are published on.
func (m *Meeting) Events() EventBus { return m.bus }

// Clock returns the clock that paces races.
func (m *Meeting) Clock() quartz.Clock { return m.clock }

// Tracker returns the performance tracker fed by every race.
func (m *Meeting) Tracker() *performance.Tracker { return m.tracker }

// Ledger returns the open book for the next race.
func (m *Meeting) Ledger() *betting.Ledger { return m.ledger }

// Balance returns the player's wallet balance.
func (m *Meeting) Balance() decimal.Decimal { return m.wallet.Balance() }

// TrackLength returns the track length every race is run over.
func (m *Meeting) TrackLength() int { return m.cfg.TrackLength }

// Races returns how many races have been settled.
func (m *Meeting) Races() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.races
}

// Running reports whether a race is in progress.
func (m *Meeting) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastOutcome returns the most recently settled race, or nil.
func (m *Meeting) LastOutcome() *Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Weather returns the condition for the next race.
func (m *Meeting) Weather() race.Condition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.weather
}

// SetWeather changes the condition for the next race.
func (m *Meeting) SetWeather(c race.Condition) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrRaceInProgress
	}
	m.weather = c
	m.current = nil
	now := m.clock.Now()
	m.mu.Unlock()

	m.logger.Info("Weather changed", "weather", c)
	m.bus.Publish(WeatherChangeEvent{Weather: c, timestamp: now})
	return nil
}

// AddHorse puts an entrant in a 1-based lane, replacing any occupant.
func (m *Meeting) AddHorse(lane int, e *race.Entrant) error {
	if lane < 1 {
		return fmt.Errorf("%w: got %d", race.ErrInvalidLane, lane)
	}
	if e == nil {
		return race.ErrNilEntrant
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrRaceInProgress
	}
	for i, other := range m.lanes {
		if other != nil && i+1 != lane && other.Symbol() == e.Symbol() {
			return fmt.Errorf("%w: %c is in lane %d", ErrDuplicateSymbol, e.Symbol(), i+1)
		}
	}
	for len(m.lanes) < lane {
		m.lanes = append(m.lanes, nil)
	}
	m.lanes[lane-1] = e
	m.current = nil
	return nil
}

// RemoveHorse empties a lane.
func (m *Meeting) RemoveHorse(lane int) error {
	if lane < 1 {
		return fmt.Errorf("%w: got %d", race.ErrInvalidLane, lane)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrRaceInProgress
	}
	if lane <= len(m.lanes) {
		m.lanes[lane-1] = nil
	}
	m.current = nil
	return nil
}

// Lanes returns a copy of the roster.
func (m *Meeting) Lanes() []*race.Entrant {
	m.mu.Lock()
	defer m.mu.Unlock()

	lanes := make([]*race.Entrant, len(m.lanes))
	copy(lanes, m.lanes)
	return lanes
}

// Horse finds an entrant by symbol, ignoring case.
func (m *Meeting) Horse(symbol rune) (*race.Entrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.horseLocked(symbol)
}

func (m *Meeting) horseLocked(symbol rune) (*race.Entrant, error) {
	for _, e := range m.lanes {
		if e != nil && e.Symbol() == symbol {
			return e, nil
		}
	}
	for _, e := range m.lanes {
		if e != nil && strings.EqualFold(string(e.Symbol()), string(symbol)) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownHorse, symbol)
}

// PlaceBet takes amount from the wallet and stakes it on a horse. Betting
// closes while a race is running.
func (m *Meeting) PlaceBet(symbol rune, amount decimal.Decimal) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrRaceInProgress
	}
	e, err := m.horseLocked(symbol)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", betting.ErrInvalidSelection, err)
	}

	if err := m.wallet.Debit(amount); err != nil {
		return err
	}
	if err := m.ledger.PlaceBet(e, amount); err != nil {
		m.wallet.Credit(amount)
		return err
	}

	balance := m.wallet.Balance()
	m.logger.Info("Bet placed", "horse", e.Name(), "amount", amount.StringFixed(2), "balance", balance.StringFixed(2))
	m.bus.Publish(BetPlacedEvent{
		Symbol:    string(e.Symbol()),
		Name:      e.Name(),
		Amount:    amount,
		Stake:     m.ledger.Stake(e),
		Balance:   balance,
		timestamp: m.clock.Now(),
	})
	return nil
}

// Snapshot returns the live race, the last finished race, or the roster as
// it will line up for the next race.
func (m *Meeting) Snapshot() race.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current.Snapshot()
	}

	snap := race.Snapshot{
		TrackLength: m.cfg.TrackLength,
		Weather:     m.weather,
		State:       race.NotStarted.String(),
		Lanes:       make([]race.LaneSnapshot, len(m.lanes)),
	}
	for i, e := range m.lanes {
		snap.Lanes[i] = race.NewLaneSnapshot(i+1, e)
	}
	return snap
}

// RunRace runs one race at the configured tick interval and settles it. If
// ctx is cancelled the race is abandoned between ticks, and stakes stay on
// the book for the next race.
func (m *Meeting) RunRace(ctx context.Context) (*Outcome, error) {
	r, err := m.begin()
	if err != nil {
		return nil, err
	}
	if r.State().Terminal() {
		return m.settle(r)
	}

	waiter := m.clock.TickerFunc(ctx, m.cfg.TickInterval, func() error {
		over, err := m.step(r)
		if err != nil {
			return err
		}
		if over {
			return errRaceOver
		}
		return nil
	}, "meeting", "tick")

	if err := waiter.Wait(); !errors.Is(err, errRaceOver) {
		m.abandon(r, err)
		return nil, err
	}
	return m.settle(r)
}

// RunInstant runs one race without pausing between ticks.
func (m *Meeting) RunInstant(ctx context.Context) (*Outcome, error) {
	r, err := m.begin()
	if err != nil {
		return nil, err
	}

	for !r.State().Terminal() {
		if err := ctx.Err(); err != nil {
			m.abandon(r, err)
			return nil, err
		}
		if _, err := m.step(r); err != nil {
			m.abandon(r, err)
			return nil, err
		}
	}
	return m.settle(r)
}

func (m *Meeting) begin() (*race.Race, error) {
	r, err := m.prepare()
	if err != nil {
		return nil, err
	}
	m.bus.Publish(RaceStartEvent{Snapshot: r.Snapshot(), timestamp: m.clock.Now()})
	return r, nil
}

func (m *Meeting) prepare() (*race.Race, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil, ErrRaceInProgress
	}

	r, err := race.New(m.cfg.TrackLength,
		race.WithRandSource(m.rng),
		race.WithWeatherModel(m.cfg.WeatherModel),
		race.WithFallCoefficient(*m.cfg.FallCoefficient),
		race.WithWeather(m.weather),
		race.WithLogger(m.logger))
	if err != nil {
		return nil, err
	}
	for i, e := range m.lanes {
		if e == nil {
			continue
		}
		if err := r.AddHorse(i+1, e); err != nil {
			return nil, err
		}
	}
	if err := r.Start(); err != nil {
		return nil, err
	}

	m.running = true
	m.current = r
	return r, nil
}

// step runs one tick and reports whether the race is over.
func (m *Meeting) step(r *race.Race) (bool, error) {
	report, err := r.Tick()
	if err != nil {
		return false, err
	}

	snap := r.Snapshot()
	now := m.clock.Now()
	for _, lane := range report.Fell {
		ls := snap.Lanes[lane-1]
		m.bus.Publish(HorseFellEvent{
			RaceID:    r.ID(),
			Tick:      report.Tick,
			Lane:      lane,
			Symbol:    ls.Symbol,
			Name:      ls.Name,
			Distance:  ls.Distance,
			timestamp: now,
		})
	}
	m.bus.Publish(RaceTickEvent{Report: report, Snapshot: snap, timestamp: now})
	return report.State.Terminal(), nil
}

func (m *Meeting) settle(r *race.Race) (*Outcome, error) {
	result, err := r.Finish()
	if err != nil {
		m.abandon(r, err)
		return nil, err
	}

	staked := m.ledger.Pool()
	payout := m.ledger.Settle(result.Winner)
	m.wallet.Credit(payout)
	m.tracker.RecordResult(result)

	outcome := &Outcome{
		Result:  result,
		Staked:  staked,
		Payout:  payout,
		Balance: m.wallet.Balance(),
	}

	m.mu.Lock()
	m.running = false
	m.last = outcome
	m.races++
	m.mu.Unlock()

	winner := ""
	if result.Winner != nil {
		winner = result.Winner.Name()
	}
	m.logger.Info("Race settled",
		"race", result.RaceID,
		"winner", winner,
		"ticks", result.Ticks,
		"payout", payout.StringFixed(2),
		"balance", outcome.Balance.StringFixed(2))

	m.bus.Publish(RaceEndEvent{Outcome: outcome, Snapshot: r.Snapshot(), timestamp: m.clock.Now()})
	return outcome, nil
}

func (m *Meeting) abandon(r *race.Race, cause error) {
	r.Reset()

	m.mu.Lock()
	m.running = false
	m.current = nil
	for _, e := range r.Lanes() {
		if e != nil {
			e.GoBackToStart()
		}
	}
	m.mu.Unlock()

	m.logger.Warn("Race abandoned", "race", r.ID(), "error", cause)
}

// DefaultConfig mirrors config.DefaultConfig for callers that skip HCL.
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultConfig())
}

// ConfigFrom converts loaded configuration into meeting parameters.
func ConfigFrom(c *config.Config) Config {
	coefficient := c.Race.Coefficient()
	return Config{
		TrackLength:     c.Race.TrackLength,
		Weather:         c.Race.Condition(),
		WeatherModel:    c.Race.Model(),
		FallCoefficient: &coefficient,
		TickInterval:    c.Race.TickInterval(),
		StartingBalance: c.Betting.Balance(),
	}
}

// AddLineup places every configured horse in its lane.
func (m *Meeting) AddLineup(lineup []config.Lineup) error {
	for _, l := range lineup {
		if err := m.AddHorse(l.Lane, l.Entrant); err != nil {
			return fmt.Errorf("lane %d: %w", l.Lane, err)
		}
	}
	return nil
}
