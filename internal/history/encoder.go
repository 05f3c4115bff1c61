package history

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lox/horserace/internal/meeting"
)

// Encode writes one race history as TOML key/value pairs.
func Encode(w io.Writer, race *RaceHistory) error {
	if race == nil {
		return fmt.Errorf("history: race history is nil")
	}

	enc := toml.NewEncoder(w)
	enc.Indent = "\t"
	return enc.Encode(race)
}

// EncodeToBytes encodes and returns the result as bytes.
func EncodeToBytes(race *RaceHistory) ([]byte, error) {
	var buf strings.Builder
	if err := Encode(&buf, race); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// FromOutcome flattens a settled race.
func FromOutcome(o *meeting.Outcome, at time.Time) *RaceHistory {
	res := o.Result
	h := &RaceHistory{
		RaceID:      res.RaceID,
		TrackLength: res.TrackLength,
		Weather:     res.Weather.String(),
		State:       res.State.String(),
		Ticks:       res.Ticks,
		Timestamp:   at,
	}
	if !at.IsZero() {
		h.Time = at.UTC().Format(time.RFC3339)
	}
	if res.Winner != nil {
		h.Winner = string(res.Winner.Symbol())
	}
	if o.Staked.IsPositive() {
		h.Pool = o.Staked.StringFixed(2)
		h.Payout = o.Payout.StringFixed(2)
		h.Balance = o.Balance.StringFixed(2)
	}

	for _, s := range res.Standings {
		h.Lanes = append(h.Lanes, s.Lane)
		h.Symbols = append(h.Symbols, string(s.Entrant.Symbol()))
		h.Names = append(h.Names, s.Entrant.Name())
		h.Distances = append(h.Distances, s.Distance)
		h.Outcomes = append(h.Outcomes, string(s.Outcome))
		h.ConfidenceBefore = append(h.ConfidenceBefore, s.ConfidenceBefore)
		h.ConfidenceAfter = append(h.ConfidenceAfter, s.ConfidenceAfter)
	}
	return h
}

// Render writes a results table for one race, the same shape the terminal
// shows when a race ends.
func Render(w io.Writer, n int, h *RaceHistory) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Race %d  %s  %d units, %s", n, h.RaceID, h.TrackLength, h.Weather)
	if h.Time != "" {
		fmt.Fprintf(&b, ", %s", h.Time)
	}
	b.WriteString("\n")

	winner := "no winner, all horses fell"
	for i, sym := range h.Symbols {
		if h.Winner != "" && sym == h.Winner {
			winner = fmt.Sprintf("%s (%s) won", h.Names[i], sym)
			break
		}
	}
	fmt.Fprintf(&b, "%s after %d ticks\n", winner, h.Ticks)

	for i := range h.Names {
		fmt.Fprintf(&b, "%d. lane %d %s %-12s %-6s %3d/%d  confidence %.2f -> %.2f\n",
			i+1, at(h.Lanes, i), at(h.Symbols, i), h.Names[i], at(h.Outcomes, i),
			at(h.Distances, i), h.TrackLength, at(h.ConfidenceBefore, i), at(h.ConfidenceAfter, i))
	}
	if h.Pool != "" {
		fmt.Fprintf(&b, "Pool $%s, paid $%s, balance $%s\n", h.Pool, h.Payout, h.Balance)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// at tolerates hand-edited files with ragged slices
func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}
