// Package history records settled races as TOML, one numbered section per
// race, so a meeting can be reviewed after the process exits.
package history

import "time"

// RaceHistory is one settled race. Per-horse fields are parallel slices in
// finishing order; the format stays flat so each race encodes as a single
// TOML table.
type RaceHistory struct {
	RaceID           string    `toml:"race"`
	Time             string    `toml:"time,omitempty"`
	TrackLength      int       `toml:"track_length"`
	Weather          string    `toml:"weather"`
	State            string    `toml:"state"`
	Ticks            int       `toml:"ticks"`
	Winner           string    `toml:"winner,omitempty"`
	Lanes            []int     `toml:"lanes"`
	Symbols          []string  `toml:"symbols"`
	Names            []string  `toml:"names"`
	Distances        []int     `toml:"distances"`
	Outcomes         []string  `toml:"outcomes"`
	ConfidenceBefore []float64 `toml:"confidence_before"`
	ConfidenceAfter  []float64 `toml:"confidence_after"`
	Pool             string    `toml:"pool,omitempty"`
	Payout           string    `toml:"payout,omitempty"`
	Balance          string    `toml:"balance,omitempty"`

	Timestamp time.Time `toml:"-"`
}

// Runners returns how many horses took part
func (h *RaceHistory) Runners() int {
	return len(h.Names)
}
