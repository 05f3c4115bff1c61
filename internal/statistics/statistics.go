package statistics

import (
	"fmt"
	"math"
	"sort"
)

// RaceSample is the outcome of a single simulated race
type RaceSample struct {
	Ticks      int   // Ticks until the race reached a terminal state
	Seed       int64 // RNG seed of the series this race belonged to
	WinnerLane int   // Lane of the winner, 0 when everyone fell
	Falls      int   // Entrants that fell during the race
	Entrants   int   // Occupied lanes
}

// LaneStats tracks how often a lane wins
type LaneStats struct {
	Races int
	Wins  int
}

// WinRate returns wins per race for the lane
func (l LaneStats) WinRate() float64 {
	if l.Races == 0 {
		return 0
	}
	return float64(l.Wins) / float64(l.Races)
}

// Statistics accumulates race-length and outcome distributions over a batch
type Statistics struct {
	Races     int
	SumTicks  float64
	SumTicks2 float64   // Sum of squares for variance calculation
	Values    []float64 // Every race length, for median/percentile

	Won       int // Races with a winner
	AllFallen int // Races where everyone fell
	Falls     int
	Entrants  int

	Lanes map[int]*LaneStats
}

// Mean returns the mean race length in ticks
func (s *Statistics) Mean() float64 {
	if s.Races == 0 {
		return 0
	}
	return s.SumTicks / float64(s.Races)
}

// Variance returns the sample variance of race length
func (s *Statistics) Variance() float64 {
	if s.Races < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumTicks2 - float64(s.Races)*mean*mean) / float64(s.Races-1)
}

// StdDev returns the sample standard deviation of race length
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Races == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Races))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// FallRate returns falls per entrant start
func (s *Statistics) FallRate() float64 {
	if s.Entrants == 0 {
		return 0
	}
	return float64(s.Falls) / float64(s.Entrants)
}

// Add incorporates a race into the statistics. Every occupied lane counts as
// a race started for its LaneStats.
func (s *Statistics) Add(sample RaceSample, occupiedLanes ...int) {
	ticks := float64(sample.Ticks)
	s.Races++
	s.SumTicks += ticks
	s.SumTicks2 += ticks * ticks
	s.Values = append(s.Values, ticks)
	s.Falls += sample.Falls
	s.Entrants += sample.Entrants

	if sample.WinnerLane > 0 {
		s.Won++
	} else {
		s.AllFallen++
	}

	if s.Lanes == nil {
		s.Lanes = make(map[int]*LaneStats)
	}
	for _, lane := range occupiedLanes {
		ls := s.lane(lane)
		ls.Races++
		if lane == sample.WinnerLane {
			ls.Wins++
		}
	}
}

func (s *Statistics) lane(n int) *LaneStats {
	ls, ok := s.Lanes[n]
	if !ok {
		ls = &LaneStats{}
		s.Lanes[n] = ls
	}
	return ls
}

// Merge folds another batch into s
func (s *Statistics) Merge(other *Statistics) {
	s.Races += other.Races
	s.SumTicks += other.SumTicks
	s.SumTicks2 += other.SumTicks2
	s.Values = append(s.Values, other.Values...)
	s.Won += other.Won
	s.AllFallen += other.AllFallen
	s.Falls += other.Falls
	s.Entrants += other.Entrants

	if len(other.Lanes) > 0 && s.Lanes == nil {
		s.Lanes = make(map[int]*LaneStats)
	}
	for n, ls := range other.Lanes {
		mine := s.lane(n)
		mine.Races += ls.Races
		mine.Wins += ls.Wins
	}
}

// SortedLanes returns lane numbers in ascending order
func (s *Statistics) SortedLanes() []int {
	lanes := make([]int, 0, len(s.Lanes))
	for n := range s.Lanes {
		lanes = append(lanes, n)
	}
	sort.Ints(lanes)
	return lanes
}

// Median returns the median race length
func (s *Statistics) Median() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Percentile returns the race length at the given percentile (0.0 to 1.0)
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Validate checks the accumulated counts agree with each other
func (s *Statistics) Validate() error {
	if s.Races <= 0 {
		return fmt.Errorf("invalid races count: %d", s.Races)
	}
	if len(s.Values) != s.Races {
		return fmt.Errorf("values array length (%d) does not match races count (%d)",
			len(s.Values), s.Races)
	}
	if s.Won+s.AllFallen != s.Races {
		return fmt.Errorf("outcomes (%d won + %d all fallen) do not match races count (%d)",
			s.Won, s.AllFallen, s.Races)
	}
	if s.Falls > s.Entrants {
		return fmt.Errorf("falls (%d) exceed entrant starts (%d)", s.Falls, s.Entrants)
	}

	laneWins := 0
	for _, ls := range s.Lanes {
		if ls.Wins > ls.Races {
			return fmt.Errorf("lane wins (%d) exceed lane races (%d)", ls.Wins, ls.Races)
		}
		laneWins += ls.Wins
	}
	if laneWins != s.Won {
		return fmt.Errorf("lane wins total (%d) does not match races won (%d)", laneWins, s.Won)
	}
	return nil
}
