// Package race implements the race simulation engine: entrants, weather and
// the tick-driven state machine that moves horses down the track.
package race

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/horserace/internal/raceid"
	"github.com/lox/horserace/internal/randutil"
)

// DefaultFallCoefficient scales confidence² into a per-tick fall chance before
// the weather multiplier. It directly controls race length and fall frequency.
const DefaultFallCoefficient = 0.05

var (
	ErrInvalidTrackLength = errors.New("track length must be positive")
	ErrInvalidLane        = errors.New("lane numbers start at 1")
	ErrNilEntrant         = errors.New("entrant is required")
	ErrRaceRunning        = errors.New("race is running")
	ErrNotRunning         = errors.New("race is not running")
	ErrNotFinished        = errors.New("race has not finished")
	ErrAlreadySettled     = errors.New("race already settled")
	ErrNotSettled         = errors.New("finished race has not been settled")
)

// State is the race lifecycle position.
type State int

const (
	NotStarted State = iota
	Running
	WonBy
	AllFallen
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case WonBy:
		return "won"
	case AllFallen:
		return "all_fallen"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state absorbs further ticks.
func (s State) Terminal() bool {
	return s == WonBy || s == AllFallen
}

// Race owns a lane roster and runs it from start to a terminal state. All
// methods are safe for concurrent use; at most one tick runs at a time.
type Race struct {
	mu sync.Mutex

	id              string
	trackLength     int
	lanes           []*Entrant
	weather         Condition
	model           WeatherModel
	rng             randutil.Source
	fallCoefficient float64
	logger          *log.Logger
	ids             *raceid.Generator

	state   State
	winner  *Entrant
	ticks   int
	settled bool
}

// Option configures a Race.
type Option func(*Race)

// WithRandSource injects the source used for every movement and fall draw.
func WithRandSource(src randutil.Source) Option {
	return func(r *Race) { r.rng = src }
}

// WithWeatherModel swaps the weather strategy. NoWeather gives a plain race.
func WithWeatherModel(m WeatherModel) Option {
	return func(r *Race) { r.model = m }
}

// WithFallCoefficient overrides DefaultFallCoefficient.
func WithFallCoefficient(c float64) Option {
	return func(r *Race) { r.fallCoefficient = c }
}

// WithLogger sets the logger; the race logs under the "race" prefix.
func WithLogger(logger *log.Logger) Option {
	return func(r *Race) { r.logger = logger }
}

// WithRaceID fixes the race identifier instead of generating one.
func WithRaceID(id string) Option {
	return func(r *Race) { r.id = id }
}

// WithIDGenerator generates the race identifier from g instead of crypto/rand.
func WithIDGenerator(g *raceid.Generator) Option {
	return func(r *Race) { r.ids = g }
}

// WithWeather sets the initial condition.
func WithWeather(c Condition) Option {
	return func(r *Race) { r.weather = c }
}

// New creates a race over trackLength units.
func New(trackLength int, opts ...Option) (*Race, error) {
	if trackLength <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTrackLength, trackLength)
	}

	r := &Race{
		trackLength:     trackLength,
		weather:         Sunny,
		model:           StandardWeather{},
		fallCoefficient: DefaultFallCoefficient,
		state:           NotStarted,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.rng == nil {
		r.rng = randutil.New(randutil.NewSeed())
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	r.logger = r.logger.WithPrefix("race")
	if r.id == "" {
		if r.ids == nil {
			r.ids = raceid.NewGenerator(nil)
		}
		id, err := r.ids.Generate()
		if err != nil {
			return nil, fmt.Errorf("race id: %w", err)
		}
		r.id = id
	}
	return r, nil
}

// ID returns the race identifier.
func (r *Race) ID() string {
	return r.id
}

// TrackLength returns the distance to the finish line.
func (r *Race) TrackLength() int {
	return r.trackLength
}

// State returns the current lifecycle state.
func (r *Race) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Winner returns the winning entrant, or nil.
func (r *Race) Winner() *Entrant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winner
}

// Ticks returns the number of ticks run since Start.
func (r *Race) Ticks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

// Weather returns the current condition.
func (r *Race) Weather() Condition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weather
}

// SetWeather changes the condition used by the next Start.
func (r *Race) SetWeather(c Condition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Running {
		return ErrRaceRunning
	}
	r.weather = c
	return nil
}

// AddHorse places an entrant in a 1-based lane, padding the roster with empty
// lanes as needed. An occupied lane is replaced.
func (r *Race) AddHorse(lane int, e *Entrant) error {
	if lane < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLane, lane)
	}
	if e == nil {
		return ErrNilEntrant
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rosterLockedErr(); err != nil {
		return err
	}
	for len(r.lanes) < lane {
		r.lanes = append(r.lanes, nil)
	}
	r.lanes[lane-1] = e
	r.logger.Debug("Horse added", "lane", lane, "symbol", string(e.symbol), "name", e.name)
	return nil
}

// RemoveHorse empties a lane. Lane numbers of other entrants do not change.
func (r *Race) RemoveHorse(lane int) error {
	if lane < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLane, lane)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rosterLockedErr(); err != nil {
		return err
	}
	if lane <= len(r.lanes) {
		r.lanes[lane-1] = nil
	}
	return nil
}

// rosterLockedErr reports why the roster cannot change. A finished race
// keeps its roster until Finish has settled it.
func (r *Race) rosterLockedErr() error {
	switch {
	case r.state == Running:
		return ErrRaceRunning
	case r.state.Terminal() && !r.settled:
		return ErrNotSettled
	}
	return nil
}

// Lanes returns a copy of the roster; empty lanes are nil.
func (r *Race) Lanes() []*Entrant {
	r.mu.Lock()
	defer r.mu.Unlock()

	lanes := make([]*Entrant, len(r.lanes))
	copy(lanes, r.lanes)
	return lanes
}

// Entrant returns the entrant in a lane, or nil when the lane is empty.
func (r *Race) Entrant(lane int) *Entrant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lane < 1 || lane > len(r.lanes) {
		return nil
	}
	return r.lanes[lane-1]
}

// Start resets every entrant, applies the weather and begins running. A race
// with no entrants ends immediately as AllFallen.
func (r *Race) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.state == Running:
		return ErrRaceRunning
	case r.state.Terminal() && !r.settled:
		return ErrNotSettled
	}

	effect := r.model.Effect(r.weather)
	occupied := 0
	for _, e := range r.lanes {
		if e == nil {
			continue
		}
		e.GoBackToStart()
		e.applyEffect(effect)
		occupied++
	}

	r.winner = nil
	r.ticks = 0
	r.settled = false

	if occupied == 0 {
		r.state = AllFallen
		r.logger.Warn("Race started with no entrants", "race", r.id)
		return nil
	}

	r.state = Running
	r.logger.Info("Race started",
		"race", r.id,
		"entrants", occupied,
		"trackLength", r.trackLength,
		"weather", r.weather)
	return nil
}

// TickReport describes what happened during one tick.
type TickReport struct {
	Tick   int
	Moved  []int // lanes that advanced
	Fell   []int // lanes that fell this tick
	State  State
	Winner *Entrant
}

// Tick advances every standing entrant by at most one unit, then checks for a
// winner (lowest lane on the line) and for everyone having fallen.
func (r *Race) Tick() (TickReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Running {
		return TickReport{State: r.state, Tick: r.ticks}, ErrNotRunning
	}

	r.ticks++
	report := TickReport{Tick: r.ticks}
	fallMultiplier := r.model.Effect(r.weather).FallMultiplier

	for i, e := range r.lanes {
		if e == nil || e.fallen {
			continue
		}
		lane := i + 1

		if r.rng.Float64() < e.confidence {
			if r.rng.Float64() < e.speedModifier && e.distance < r.trackLength {
				if err := e.MoveForward(); err != nil {
					return report, fmt.Errorf("lane %d: %w", lane, err)
				}
				report.Moved = append(report.Moved, lane)
			}
		}

		fallChance := r.fallCoefficient * e.confidence * e.confidence * fallMultiplier
		if r.rng.Float64() < fallChance {
			e.Fall()
			report.Fell = append(report.Fell, lane)
			r.logger.Debug("Horse fell", "race", r.id, "tick", r.ticks, "lane", lane, "name", e.name)
		}
	}

	for _, e := range r.lanes {
		if e != nil && e.distance == r.trackLength {
			r.winner = e
			r.state = WonBy
			break
		}
	}

	if r.state == Running && r.allFallenLocked() {
		r.state = AllFallen
	}

	report.State = r.state
	report.Winner = r.winner

	if r.state.Terminal() {
		winner := ""
		if r.winner != nil {
			winner = r.winner.name
		}
		r.logger.Info("Race over", "race", r.id, "ticks", r.ticks, "state", r.state, "winner", winner)
	}
	return report, nil
}

func (r *Race) allFallenLocked() bool {
	for _, e := range r.lanes {
		if e != nil && !e.fallen {
			return false
		}
	}
	return true
}

// Finish settles confidences once the race is over: the winner gains 0.1
// (capped at 1), everyone else loses 0.05, or 0.15 if they fell (floored at
// 0.1). Lifetime statistics are recorded for every entrant.
func (r *Race) Finish() (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.Terminal() {
		return nil, ErrNotFinished
	}
	if r.settled {
		return nil, ErrAlreadySettled
	}

	result := &Result{
		RaceID:      r.id,
		State:       r.state,
		Winner:      r.winner,
		Weather:     r.weather,
		TrackLength: r.trackLength,
		Ticks:       r.ticks,
		Roster:      make([]*Entrant, len(r.lanes)),
	}
	copy(result.Roster, r.lanes)

	before := make(map[*Entrant]float64, len(r.lanes))
	for _, e := range r.lanes {
		if e == nil {
			continue
		}
		before[e] = e.confidence

		next := max(ConfidenceFloor, e.confidence-losingPenalty(e))
		if e == r.winner {
			next = min(1.0, e.confidence+0.1)
		}
		if err := e.SetConfidence(next); err != nil {
			return nil, fmt.Errorf("settle %s: %w", e.name, err)
		}
		e.RecordRaceResult(e == r.winner)
	}

	result.Standings = Standings(result.Roster, r.trackLength)
	for i := range result.Standings {
		s := &result.Standings[i]
		s.ConfidenceBefore = before[s.Entrant]
		s.ConfidenceAfter = s.Entrant.confidence
	}

	r.settled = true
	r.logger.Debug("Race settled", "race", r.id, "state", r.state)
	return result, nil
}

func losingPenalty(e *Entrant) float64 {
	if e.fallen {
		return 0.15
	}
	return 0.05
}

// Reset abandons or clears the current race and returns to NotStarted.
// Entrant state is left alone until the next Start.
func (r *Race) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = NotStarted
	r.winner = nil
	r.ticks = 0
	r.settled = false
}
