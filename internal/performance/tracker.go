// Package performance keeps lifetime metrics for entrants across races.
package performance

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lox/horserace/internal/race"
)

// Record is one entrant's entry in the race history.
type Record struct {
	RaceID         string
	Weather        race.Condition
	Confidence     float64 // confidence at race end
	FinishPosition int
	Distance       int
	Duration       int // ticks
	Speed          float64
	Won            bool
	Fell           bool
}

type metrics struct {
	participated int
	won          int
	avgSpeed     float64
	hasSpeed     bool
	confidence   []float64
	bestDistance map[race.Condition]int
	history      []Record
}

// Tracker aggregates race outcomes keyed by entrant ID. Histories are
// append-only.
type Tracker struct {
	mu      sync.RWMutex
	metrics map[uuid.UUID]*metrics
	logger  *log.Logger
}

// NewTracker creates an empty tracker. A nil logger discards output.
func NewTracker(logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tracker{
		metrics: make(map[uuid.UUID]*metrics),
		logger:  logger.WithPrefix("performance"),
	}
}

// Record ingests a finished race given its roster in lane order.
func (t *Tracker) Record(roster []*race.Entrant, weather race.Condition, trackLength, durationTicks int) {
	t.record("", roster, weather, trackLength, durationTicks)
}

// RecordResult ingests a settled race result.
func (t *Tracker) RecordResult(result *race.Result) {
	if result == nil {
		return
	}
	t.record(result.RaceID, result.Roster, result.Weather, result.TrackLength, result.Ticks)
}

func (t *Tracker) record(raceID string, roster []*race.Entrant, weather race.Condition, trackLength, durationTicks int) {
	standings := race.Standings(roster, trackLength)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range standings {
		e := s.Entrant
		m := t.metricsLocked(e.ID())

		speed := 0.0
		if durationTicks > 0 {
			speed = float64(s.Distance) / float64(durationTicks)
		}
		if m.hasSpeed {
			m.avgSpeed = (m.avgSpeed + speed) / 2
		} else {
			m.avgSpeed = speed
			m.hasSpeed = true
		}

		m.participated++
		m.confidence = append(m.confidence, e.Confidence())
		m.bestDistance[weather] = max(m.bestDistance[weather], s.Distance)

		won := s.Outcome == race.OutcomeWinner
		if won {
			m.won++
		}

		m.history = append(m.history, Record{
			RaceID:         raceID,
			Weather:        weather,
			Confidence:     e.Confidence(),
			FinishPosition: s.Position,
			Distance:       s.Distance,
			Duration:       durationTicks,
			Speed:          speed,
			Won:            won,
			Fell:           s.Fallen,
		})
	}

	t.logger.Debug("Race recorded", "race", raceID, "entrants", len(standings), "weather", weather)
}

func (t *Tracker) metricsLocked(id uuid.UUID) *metrics {
	m, ok := t.metrics[id]
	if !ok {
		m = &metrics{bestDistance: make(map[race.Condition]int)}
		t.metrics[id] = m
	}
	return m
}

// WinRatio returns wins / races for an entrant, 0 when unknown.
func (t *Tracker) WinRatio(id uuid.UUID) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.metrics[id]
	if !ok || m.participated == 0 {
		return 0
	}
	return float64(m.won) / float64(m.participated)
}

// AverageSpeed returns the running speed average, 0 when unknown.
func (t *Tracker) AverageSpeed(id uuid.UUID) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if m, ok := t.metrics[id]; ok {
		return m.avgSpeed
	}
	return 0
}

// ConfidenceHistory returns end-of-race confidences in race order.
func (t *Tracker) ConfidenceHistory(id uuid.UUID) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.metrics[id]
	if !ok {
		return nil
	}
	out := make([]float64, len(m.confidence))
	copy(out, m.confidence)
	return out
}

// TrackRecord returns the best distance an entrant managed in a condition.
func (t *Tracker) TrackRecord(id uuid.UUID, weather race.Condition) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if m, ok := t.metrics[id]; ok {
		return m.bestDistance[weather]
	}
	return 0
}

// Races returns how many races the tracker has seen an entrant in.
func (t *Tracker) Races(id uuid.UUID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if m, ok := t.metrics[id]; ok {
		return m.participated
	}
	return 0
}

// History returns a copy of an entrant's race records.
func (t *Tracker) History(id uuid.UUID) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.metrics[id]
	if !ok {
		return nil
	}
	out := make([]Record, len(m.history))
	copy(out, m.history)
	return out
}

// BestTime returns the fewest ticks an entrant took to win, optionally
// restricted to one condition. An empty condition matches every race.
func (t *Tracker) BestTime(id uuid.UUID, weather race.Condition) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.metrics[id]
	if !ok {
		return 0, false
	}

	best, found := math.MaxInt, false
	for _, r := range m.history {
		if !r.Won || (weather != "" && r.Weather != weather) {
			continue
		}
		if r.Duration < best {
			best, found = r.Duration, true
		}
	}
	if !found {
		return 0, false
	}
	return best, true
}

// Validate checks the aggregates agree with the recorded history.
func (t *Tracker) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for id, m := range t.metrics {
		if len(m.history) != m.participated {
			return fmt.Errorf("entrant %s: history length (%d) does not match races (%d)",
				id, len(m.history), m.participated)
		}
		if len(m.confidence) != m.participated {
			return fmt.Errorf("entrant %s: confidence history length (%d) does not match races (%d)",
				id, len(m.confidence), m.participated)
		}
		if m.won > m.participated {
			return fmt.Errorf("entrant %s: wins (%d) exceed races (%d)", id, m.won, m.participated)
		}
		wins := 0
		for _, r := range m.history {
			if r.Won {
				wins++
			}
		}
		if wins != m.won {
			return fmt.Errorf("entrant %s: recorded wins (%d) do not match history (%d)", id, m.won, wins)
		}
	}
	return nil
}
