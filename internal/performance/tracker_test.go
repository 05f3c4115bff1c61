package performance

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/horserace/internal/race"
)

func newTracker() *Tracker {
	return NewTracker(log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel}))
}

func horse(t *testing.T, symbol rune, name string, confidence float64) *race.Entrant {
	t.Helper()
	e, err := race.NewEntrant(symbol, name, confidence)
	require.NoError(t, err)
	return e
}

func advance(t *testing.T, e *race.Entrant, n int) {
	t.Helper()
	e.GoBackToStart()
	for range n {
		require.NoError(t, e.MoveForward())
	}
}

func TestUnknownEntrantDefaults(t *testing.T) {
	tr := newTracker()
	id := uuid.New()

	assert.Zero(t, tr.WinRatio(id))
	assert.Zero(t, tr.AverageSpeed(id))
	assert.Empty(t, tr.ConfidenceHistory(id))
	assert.Zero(t, tr.TrackRecord(id, race.Sunny))
	assert.Empty(t, tr.History(id))
	_, ok := tr.BestTime(id, "")
	assert.False(t, ok)
	require.NoError(t, tr.Validate())
}

func TestRecord(t *testing.T) {
	tr := newTracker()
	a := horse(t, 'A', "Thunder", 0.8)
	b := horse(t, 'B', "Lightning", 0.5)

	advance(t, a, 10)
	advance(t, b, 4)
	b.Fall()
	tr.Record([]*race.Entrant{a, nil, b}, race.Muddy, 10, 20)

	assert.Equal(t, 1.0, tr.WinRatio(a.ID()))
	assert.Equal(t, 0.0, tr.WinRatio(b.ID()))
	assert.InDelta(t, 0.5, tr.AverageSpeed(a.ID()), 1e-9, "first sample is stored as-is")
	assert.InDelta(t, 0.2, tr.AverageSpeed(b.ID()), 1e-9)
	assert.Equal(t, []float64{0.8}, tr.ConfidenceHistory(a.ID()))
	assert.Equal(t, 10, tr.TrackRecord(a.ID(), race.Muddy))
	assert.Equal(t, 4, tr.TrackRecord(b.ID(), race.Muddy))
	assert.Zero(t, tr.TrackRecord(a.ID(), race.Sunny))

	hist := tr.History(b.ID())
	require.Len(t, hist, 1)
	assert.Equal(t, 2, hist[0].FinishPosition)
	assert.True(t, hist[0].Fell)
	assert.False(t, hist[0].Won)

	// Second race: speed merges as (old + new) / 2, track record keeps the max.
	advance(t, a, 5)
	advance(t, b, 10)
	tr.Record([]*race.Entrant{a, nil, b}, race.Muddy, 10, 10)

	assert.InDelta(t, 0.5, tr.AverageSpeed(a.ID()), 1e-9)
	assert.InDelta(t, 0.6, tr.AverageSpeed(b.ID()), 1e-9)
	assert.Equal(t, 0.5, tr.WinRatio(a.ID()))
	assert.Equal(t, 0.5, tr.WinRatio(b.ID()))
	assert.Equal(t, 10, tr.TrackRecord(a.ID(), race.Muddy))
	assert.Equal(t, 2, tr.Races(a.ID()))
	require.NoError(t, tr.Validate())
}

func TestZeroDurationGivesZeroSpeed(t *testing.T) {
	tr := newTracker()
	a := horse(t, 'A', "Thunder", 0.8)

	tr.Record([]*race.Entrant{a}, race.Sunny, 5, 0)

	assert.Zero(t, tr.AverageSpeed(a.ID()))
	assert.Equal(t, 1, tr.Races(a.ID()))
}

func TestAllFallenHasNoWinner(t *testing.T) {
	tr := newTracker()
	a := horse(t, 'A', "Thunder", 0.8)
	b := horse(t, 'B', "Lightning", 0.5)

	advance(t, a, 3)
	advance(t, b, 3)
	a.Fall()
	b.Fall()
	tr.Record([]*race.Entrant{a, b}, race.Icy, 10, 6)

	assert.Zero(t, tr.WinRatio(a.ID()))
	assert.Zero(t, tr.WinRatio(b.ID()))
	assert.Equal(t, 1, tr.Races(b.ID()))
}

func TestBestTime(t *testing.T) {
	tr := newTracker()
	a := horse(t, 'A', "Thunder", 0.8)

	advance(t, a, 5)
	tr.Record([]*race.Entrant{a}, race.Sunny, 5, 12)
	advance(t, a, 5)
	tr.Record([]*race.Entrant{a}, race.Rainy, 5, 9)
	advance(t, a, 2)
	tr.Record([]*race.Entrant{a}, race.Sunny, 5, 3)

	best, ok := tr.BestTime(a.ID(), "")
	require.True(t, ok)
	assert.Equal(t, 9, best)

	best, ok = tr.BestTime(a.ID(), race.Sunny)
	require.True(t, ok)
	assert.Equal(t, 12, best, "races not won do not count")

	_, ok = tr.BestTime(a.ID(), race.Icy)
	assert.False(t, ok)
}

func TestRecordResult(t *testing.T) {
	tr := newTracker()
	a := horse(t, 'A', "Thunder", 0.8)
	advance(t, a, 4)

	tr.RecordResult(&race.Result{
		RaceID:      "race-1",
		Weather:     race.Rainy,
		TrackLength: 4,
		Ticks:       8,
		Roster:      []*race.Entrant{a},
	})
	tr.RecordResult(nil)

	hist := tr.History(a.ID())
	require.Len(t, hist, 1)
	assert.Equal(t, "race-1", hist[0].RaceID)
	assert.Equal(t, race.Rainy, hist[0].Weather)
	assert.True(t, hist[0].Won)
	assert.InDelta(t, 0.5, hist[0].Speed, 1e-9)
}
