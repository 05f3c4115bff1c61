package race

import "github.com/google/uuid"

// LaneSnapshot is the read-only view of one lane handed to renderers.
type LaneSnapshot struct {
	Lane       int       `json:"lane"`
	Empty      bool      `json:"empty,omitempty"`
	EntrantID  uuid.UUID `json:"-"`
	Symbol     string    `json:"symbol,omitempty"`
	Name       string    `json:"name,omitempty"`
	Distance   int       `json:"distance"`
	Fallen     bool      `json:"fallen"`
	Confidence float64   `json:"confidence"`
	RacesWon   int       `json:"racesWon"`
	Shape      Shape     `json:"shape,omitempty"`
	Color      string    `json:"color,omitempty"`
}

// Snapshot is a consistent copy of race state taken between ticks.
type Snapshot struct {
	RaceID      string         `json:"raceId"`
	TrackLength int            `json:"trackLength"`
	Weather     Condition      `json:"weather"`
	State       string         `json:"state"`
	Tick        int            `json:"tick"`
	Winner      string         `json:"winner,omitempty"`
	Lanes       []LaneSnapshot `json:"lanes"`
}

// Snapshot copies the current state. Collaborators never see live entrants.
func (r *Race) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		RaceID:      r.id,
		TrackLength: r.trackLength,
		Weather:     r.weather,
		State:       r.state.String(),
		Tick:        r.ticks,
		Lanes:       make([]LaneSnapshot, len(r.lanes)),
	}
	if r.winner != nil {
		snap.Winner = string(r.winner.symbol)
	}

	for i, e := range r.lanes {
		snap.Lanes[i] = NewLaneSnapshot(i+1, e)
	}
	return snap
}

// NewLaneSnapshot copies one lane. A nil entrant is an empty lane.
func NewLaneSnapshot(lane int, e *Entrant) LaneSnapshot {
	if e == nil {
		return LaneSnapshot{Lane: lane, Empty: true}
	}
	return LaneSnapshot{
		Lane:       lane,
		EntrantID:  e.id,
		Symbol:     string(e.symbol),
		Name:       e.name,
		Distance:   e.distance,
		Fallen:     e.fallen,
		Confidence: e.confidence,
		RacesWon:   e.racesWon,
		Shape:      e.shape,
		Color:      e.color,
	}
}

// Occupied returns only the lanes that hold an entrant.
func (s Snapshot) Occupied() []LaneSnapshot {
	lanes := make([]LaneSnapshot, 0, len(s.Lanes))
	for _, l := range s.Lanes {
		if !l.Empty {
			lanes = append(lanes, l)
		}
	}
	return lanes
}
