package statistics

import (
	"math"
	"testing"
)

func TestStatistics_Empty(t *testing.T) {
	stats := &Statistics{}

	if stats.Mean() != 0 {
		t.Errorf("Expected mean of 0 for empty stats, got %f", stats.Mean())
	}
	if stats.Variance() != 0 {
		t.Errorf("Expected variance of 0 for empty stats, got %f", stats.Variance())
	}
	if stats.StdError() != 0 {
		t.Errorf("Expected stderr of 0 for empty stats, got %f", stats.StdError())
	}
	if stats.Median() != 0 {
		t.Errorf("Expected median of 0 for empty stats, got %f", stats.Median())
	}
	if stats.Percentile(0.5) != 0 {
		t.Errorf("Expected percentile of 0 for empty stats, got %f", stats.Percentile(0.5))
	}
	if stats.FallRate() != 0 {
		t.Errorf("Expected fall rate of 0 for empty stats, got %f", stats.FallRate())
	}
	if err := stats.Validate(); err == nil {
		t.Error("Expected validation error for empty stats")
	}
}

func TestStatistics_MultipleRaces(t *testing.T) {
	stats := &Statistics{}

	samples := []RaceSample{
		{Ticks: 10, WinnerLane: 1, Falls: 1, Entrants: 3},
		{Ticks: 20, WinnerLane: 2, Falls: 0, Entrants: 3},
		{Ticks: 30, WinnerLane: 0, Falls: 3, Entrants: 3},
		{Ticks: 40, WinnerLane: 1, Falls: 2, Entrants: 3},
	}
	for _, s := range samples {
		stats.Add(s, 1, 2, 3)
	}

	if stats.Races != 4 {
		t.Fatalf("Expected 4 races, got %d", stats.Races)
	}
	if stats.Mean() != 25 {
		t.Errorf("Expected mean of 25, got %f", stats.Mean())
	}
	// sample variance of 10,20,30,40 is 500/3
	if math.Abs(stats.Variance()-500.0/3.0) > 1e-9 {
		t.Errorf("Expected variance of %f, got %f", 500.0/3.0, stats.Variance())
	}
	if stats.Median() != 25 {
		t.Errorf("Expected median of 25, got %f", stats.Median())
	}
	if stats.Percentile(1.0) != 40 {
		t.Errorf("Expected max percentile of 40, got %f", stats.Percentile(1.0))
	}
	if stats.Percentile(0) != 10 {
		t.Errorf("Expected min percentile of 10, got %f", stats.Percentile(0))
	}
	if stats.Won != 3 || stats.AllFallen != 1 {
		t.Errorf("Expected 3 won and 1 all fallen, got %d and %d", stats.Won, stats.AllFallen)
	}
	if stats.FallRate() != 0.5 {
		t.Errorf("Expected fall rate of 0.5, got %f", stats.FallRate())
	}
	if got := stats.Lanes[1].WinRate(); got != 0.5 {
		t.Errorf("Expected lane 1 win rate 0.5, got %f", got)
	}
	if got := stats.Lanes[3].WinRate(); got != 0 {
		t.Errorf("Expected lane 3 win rate 0, got %f", got)
	}
	if err := stats.Validate(); err != nil {
		t.Errorf("Expected valid stats, got %v", err)
	}

	lo, hi := stats.ConfidenceInterval95()
	if !(lo < stats.Mean() && stats.Mean() < hi) {
		t.Errorf("Expected mean inside interval, got [%f, %f]", lo, hi)
	}
}

func TestStatistics_Merge(t *testing.T) {
	a := &Statistics{}
	a.Add(RaceSample{Ticks: 5, WinnerLane: 1, Entrants: 2}, 1, 2)

	b := &Statistics{}
	b.Add(RaceSample{Ticks: 15, WinnerLane: 2, Entrants: 2}, 1, 2)
	b.Add(RaceSample{Ticks: 10, Falls: 2, Entrants: 2}, 1, 2)

	a.Merge(b)

	if a.Races != 3 {
		t.Fatalf("Expected 3 races after merge, got %d", a.Races)
	}
	if a.Mean() != 10 {
		t.Errorf("Expected mean of 10, got %f", a.Mean())
	}
	if a.Lanes[1].Races != 3 || a.Lanes[2].Wins != 1 {
		t.Errorf("Unexpected lane stats after merge: %+v %+v", a.Lanes[1], a.Lanes[2])
	}
	if got := a.SortedLanes(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected sorted lanes [1 2], got %v", got)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("Expected valid stats after merge, got %v", err)
	}
}

func TestStatistics_ValidateDetectsMismatch(t *testing.T) {
	stats := &Statistics{}
	stats.Add(RaceSample{Ticks: 7, WinnerLane: 1, Entrants: 1}, 1)
	stats.Won++

	if err := stats.Validate(); err == nil {
		t.Error("Expected validation error for inconsistent outcome counts")
	}
}
