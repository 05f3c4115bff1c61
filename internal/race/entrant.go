package race

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrConfidenceOutOfRange is returned when a confidence outside [0, 1] is assigned.
	ErrConfidenceOutOfRange = errors.New("confidence out of range")
	// ErrEntrantFallen is returned when a fallen entrant is asked to move.
	ErrEntrantFallen = errors.New("entrant has fallen")
	// ErrInvalidEntrant is returned by NewEntrant for bad construction input.
	ErrInvalidEntrant = errors.New("invalid entrant")
)

const (
	// MinStartingConfidence is the lowest confidence a newly created entrant may have.
	MinStartingConfidence = 0.1
	// ConfidenceFloor is the value weather penalties and losing never push confidence below.
	ConfidenceFloor = 0.1
)

// Shape is a rendering tag carried through to display collaborators.
type Shape string

const (
	ShapeRectangle Shape = "Rectangle"
	ShapeCircle    Shape = "Circle"
	ShapeTriangle  Shape = "Triangle"
	ShapeDiamond   Shape = "Diamond"
	ShapeStar      Shape = "Star"
)

// Shapes lists the shapes collaborators know how to draw.
func Shapes() []Shape {
	return []Shape{ShapeRectangle, ShapeCircle, ShapeTriangle, ShapeDiamond, ShapeStar}
}

// ParseShape matches a shape name case-insensitively, defaulting to Rectangle.
func ParseShape(name string) Shape {
	for _, s := range Shapes() {
		if strings.EqualFold(string(s), strings.TrimSpace(name)) {
			return s
		}
	}
	return ShapeRectangle
}

// Entrant is a horse. Per-race state is reset by GoBackToStart; lifetime
// statistics survive across races. An Entrant is not safe for concurrent use;
// the owning Race serialises access.
type Entrant struct {
	id     uuid.UUID
	symbol rune
	name   string
	shape  Shape
	color  string

	distance      int
	fallen        bool
	confidence    float64
	speedModifier float64

	racesParticipated int
	racesWon          int
}

// EntrantOption customises an entrant at construction.
type EntrantOption func(*Entrant)

// WithShape sets the rendering shape.
func WithShape(shape Shape) EntrantOption {
	return func(e *Entrant) { e.shape = shape }
}

// WithColor sets the rendering colour. The value is opaque to the engine.
func WithColor(color string) EntrantOption {
	return func(e *Entrant) { e.color = color }
}

// WithID overrides the generated identifier.
func WithID(id uuid.UUID) EntrantOption {
	return func(e *Entrant) { e.id = id }
}

// NewEntrant creates an entrant with a fresh identifier. New entrants must
// start with a confidence in [0.1, 1.0].
func NewEntrant(symbol rune, name string, confidence float64, opts ...EntrantOption) (*Entrant, error) {
	if symbol == 0 {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidEntrant)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEntrant)
	}
	if confidence < MinStartingConfidence || confidence > 1 {
		return nil, fmt.Errorf("%w: starting confidence %.2f not in [%.1f, 1.0]", ErrInvalidEntrant, confidence, MinStartingConfidence)
	}

	e := &Entrant{
		id:            uuid.New(),
		symbol:        symbol,
		name:          name,
		shape:         ShapeRectangle,
		confidence:    confidence,
		speedModifier: 1.0,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Entrant) ID() uuid.UUID          { return e.id }
func (e *Entrant) Symbol() rune           { return e.symbol }
func (e *Entrant) Name() string           { return e.name }
func (e *Entrant) Shape() Shape           { return e.shape }
func (e *Entrant) Color() string          { return e.color }
func (e *Entrant) Distance() int          { return e.distance }
func (e *Entrant) HasFallen() bool        { return e.fallen }
func (e *Entrant) Confidence() float64    { return e.confidence }
func (e *Entrant) SpeedModifier() float64 { return e.speedModifier }
func (e *Entrant) RacesParticipated() int { return e.racesParticipated }
func (e *Entrant) RacesWon() int          { return e.racesWon }

// WinRatio returns races won over races run, or 0 before the first race.
func (e *Entrant) WinRatio() float64 {
	if e.racesParticipated == 0 {
		return 0
	}
	return float64(e.racesWon) / float64(e.racesParticipated)
}

// MoveForward advances the entrant one unit. Fallen entrants cannot move.
func (e *Entrant) MoveForward() error {
	if e.fallen {
		return fmt.Errorf("%s: %w", e.name, ErrEntrantFallen)
	}
	e.distance++
	return nil
}

// Fall marks the entrant as fallen.
func (e *Entrant) Fall() {
	e.fallen = true
}

// SetConfidence assigns a confidence in [0, 1]; anything else is rejected and
// leaves the entrant unchanged.
func (e *Entrant) SetConfidence(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %v", ErrConfidenceOutOfRange, v)
	}
	e.confidence = v
	return nil
}

// ApplyWeatherEffect applies the standard weather table for the condition.
func (e *Entrant) ApplyWeatherEffect(c Condition) {
	e.applyEffect(StandardWeather{}.Effect(c))
}

func (e *Entrant) applyEffect(effect WeatherEffect) {
	e.speedModifier = effect.SpeedModifier
	if effect.ConfidencePenalty > 0 {
		e.confidence = max(ConfidenceFloor, e.confidence-effect.ConfidencePenalty)
	}
}

// GoBackToStart resets per-race state. Confidence, speed modifier and lifetime
// statistics are kept.
func (e *Entrant) GoBackToStart() {
	e.distance = 0
	e.fallen = false
}

// RecordRaceResult updates lifetime statistics after a race.
func (e *Entrant) RecordRaceResult(won bool) {
	e.racesParticipated++
	if won {
		e.racesWon++
	}
}

// String renders "A: Thunder".
func (e *Entrant) String() string {
	return fmt.Sprintf("%c: %s", e.symbol, e.name)
}
