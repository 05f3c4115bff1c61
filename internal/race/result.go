package race

import "sort"

// Outcome classifies an entrant's race for reporting.
type Outcome string

const (
	OutcomeWinner Outcome = "WINNER"
	OutcomeFell   Outcome = "FELL"
	OutcomeLoser  Outcome = "LOSER"
)

// Standing is one entrant's finishing place.
type Standing struct {
	Position         int
	Lane             int
	Entrant          *Entrant
	Distance         int
	Fallen           bool
	Outcome          Outcome
	ConfidenceBefore float64
	ConfidenceAfter  float64
}

// Result is the settled outcome of one race.
type Result struct {
	RaceID      string
	State       State
	Winner      *Entrant
	Weather     Condition
	TrackLength int
	Ticks       int
	Roster      []*Entrant // lane order, nil for empty lanes
	Standings   []Standing
}

// Standings ranks the occupied lanes of a roster. The first entrant on the
// line wins; the rest are ordered by distance, with standing horses ahead of
// fallen ones at equal distance and lane order breaking any remaining tie.
func Standings(roster []*Entrant, trackLength int) []Standing {
	var winner *Entrant
	for _, e := range roster {
		if e != nil && e.distance >= trackLength {
			winner = e
			break
		}
	}

	standings := make([]Standing, 0, len(roster))
	for i, e := range roster {
		if e == nil {
			continue
		}
		outcome := OutcomeLoser
		switch {
		case e == winner:
			outcome = OutcomeWinner
		case e.fallen:
			outcome = OutcomeFell
		}
		standings = append(standings, Standing{
			Lane:             i + 1,
			Entrant:          e,
			Distance:         e.distance,
			Fallen:           e.fallen,
			Outcome:          outcome,
			ConfidenceBefore: e.confidence,
			ConfidenceAfter:  e.confidence,
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if (a.Outcome == OutcomeWinner) != (b.Outcome == OutcomeWinner) {
			return a.Outcome == OutcomeWinner
		}
		if a.Distance != b.Distance {
			return a.Distance > b.Distance
		}
		if a.Fallen != b.Fallen {
			return !a.Fallen
		}
		return a.Lane < b.Lane
	})

	for i := range standings {
		standings[i].Position = i + 1
	}
	return standings
}

// Position returns the finishing place of an entrant, or 0 if absent.
func (r *Result) Position(e *Entrant) int {
	for _, s := range r.Standings {
		if s.Entrant == e {
			return s.Position
		}
	}
	return 0
}
