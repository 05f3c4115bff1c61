package meeting

import (
	"fmt"
	"strings"

	"github.com/lox/horserace/internal/race"
)

// FormatEvent renders an event as a one or more line log entry. Tick events
// render as the empty string since the track itself shows them.
func FormatEvent(event Event) string {
	switch e := event.(type) {
	case RaceStartEvent:
		return FormatRaceStart(e.Snapshot)
	case HorseFellEvent:
		return fmt.Sprintf("%s (%s) fell in lane %d after %d units", e.Name, e.Symbol, e.Lane, e.Distance)
	case RaceEndEvent:
		return FormatOutcome(e.Outcome)
	case BetPlacedEvent:
		return fmt.Sprintf("Bet $%s on %s (%s), $%s on this horse, balance $%s",
			e.Amount.StringFixed(2), e.Name, e.Symbol, e.Stake.StringFixed(2), e.Balance.StringFixed(2))
	case WeatherChangeEvent:
		return fmt.Sprintf("Weather is now %s", e.Weather)
	default:
		return ""
	}
}

// FormatRaceStart describes the field at the off
func FormatRaceStart(snap race.Snapshot) string {
	runners := snap.Occupied()
	names := make([]string, 0, len(runners))
	for _, l := range runners {
		names = append(names, fmt.Sprintf("%s %s", l.Symbol, l.Name))
	}
	return fmt.Sprintf("They're off! %d runners over %d units, %s: %s",
		len(runners), snap.TrackLength, snap.Weather, strings.Join(names, ", "))
}

// FormatOutcome renders the final results table for a settled race
func FormatOutcome(o *Outcome) string {
	if o == nil || o.Result == nil {
		return ""
	}
	res := o.Result

	var b strings.Builder
	if res.Winner != nil {
		fmt.Fprintf(&b, "%s (%c) wins after %d ticks\n", res.Winner.Name(), res.Winner.Symbol(), res.Ticks)
	} else {
		fmt.Fprintf(&b, "All horses fell after %d ticks, no winner\n", res.Ticks)
	}
	for _, s := range res.Standings {
		fmt.Fprintf(&b, "%d. %-12s %-6s %3d/%d  confidence %.2f -> %.2f\n",
			s.Position, s.Entrant.Name(), s.Outcome, s.Distance, res.TrackLength,
			s.ConfidenceBefore, s.ConfidenceAfter)
	}
	if o.Staked.IsPositive() {
		fmt.Fprintf(&b, "Pool $%s, paid $%s, balance $%s",
			o.Staked.StringFixed(2), o.Payout.StringFixed(2), o.Balance.StringFixed(2))
	} else {
		fmt.Fprintf(&b, "Balance $%s", o.Balance.StringFixed(2))
	}
	return b.String()
}
