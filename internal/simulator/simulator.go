package simulator

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/lox/horserace/internal/config"
	"github.com/lox/horserace/internal/meeting"
	"github.com/lox/horserace/internal/race"
	"github.com/lox/horserace/internal/randutil"
	"github.com/lox/horserace/internal/statistics"
)

// Config holds configuration for running simulations
type Config struct {
	Series  int             // Independent meetings, each with fresh horses
	Races   int             // Races per series
	Seed    int64           // Series i uses Seed+i
	Workers int             // Series run concurrently; 0 means one at a time
	Stake   decimal.Decimal // Flat bet on the favourite each race; zero disables betting
	Timeout time.Duration   // Per race
	Meeting *config.Config
	Logger  *log.Logger
}

// HorseSummary aggregates one configured horse across all series
type HorseSummary struct {
	Lane            int
	Symbol          string
	Name            string
	Races           int
	Wins            int
	Falls           int
	AvgSpeed        float64 // mean of each series' running average
	FinalConfidence float64 // mean confidence after the last race of each series
}

// WinRatio returns wins per race
func (h HorseSummary) WinRatio() float64 {
	if h.Races == 0 {
		return 0
	}
	return float64(h.Wins) / float64(h.Races)
}

// Report is the result of a simulation run
type Report struct {
	Stats    *statistics.Statistics
	Horses   []HorseSummary
	Balances []decimal.Decimal // closing balance per series
}

// AverageBalance returns the mean closing balance across series
func (r *Report) AverageBalance() decimal.Decimal {
	if len(r.Balances) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, r.Balances...).Div(decimal.NewFromInt(int64(len(r.Balances))))
}

// Simulator runs headless race meetings
type Simulator struct {
	config Config
}

// New creates a new simulator with the given configuration
func New(config Config) *Simulator {
	return &Simulator{config: config}
}

type seriesResult struct {
	stats   *statistics.Statistics
	horses  map[int]*HorseSummary
	balance decimal.Decimal
}

// Run executes every series and returns the merged report
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	if s.config.Series <= 0 || s.config.Races <= 0 {
		return nil, fmt.Errorf("series and races must be positive, got %d and %d", s.config.Series, s.config.Races)
	}
	if s.config.Meeting == nil {
		s.config.Meeting = config.DefaultConfig()
	}
	if s.config.Logger == nil {
		s.config.Logger = log.New(io.Discard)
	}
	if s.config.Timeout <= 0 {
		s.config.Timeout = 10 * time.Second
	}

	results := make([]*seriesResult, s.config.Series)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.config.Workers))
	for i := range s.config.Series {
		seed := s.config.Seed + int64(i)
		g.Go(func() error {
			res, err := s.runSeries(ctx, seed)
			if err != nil {
				return fmt.Errorf("series %d (seed %d): %w", i+1, seed, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Stats: &statistics.Statistics{}}
	merged := make(map[int]*HorseSummary)
	for _, res := range results {
		report.Stats.Merge(res.stats)
		report.Balances = append(report.Balances, res.balance)
		for lane, h := range res.horses {
			m, ok := merged[lane]
			if !ok {
				m = &HorseSummary{Lane: lane, Symbol: h.Symbol, Name: h.Name}
				merged[lane] = m
			}
			m.Races += h.Races
			m.Wins += h.Wins
			m.Falls += h.Falls
			m.AvgSpeed += h.AvgSpeed / float64(len(results))
			m.FinalConfidence += h.FinalConfidence / float64(len(results))
		}
	}
	for _, h := range merged {
		report.Horses = append(report.Horses, *h)
	}
	sort.Slice(report.Horses, func(i, j int) bool { return report.Horses[i].Lane < report.Horses[j].Lane })

	if err := report.Stats.Validate(); err != nil {
		return nil, fmt.Errorf("statistics validation failed: %w", err)
	}
	return report, nil
}

// runSeries plays one meeting from scratch with its own horses and seed
func (s *Simulator) runSeries(ctx context.Context, seed int64) (*seriesResult, error) {
	lineup, err := s.config.Meeting.Entrants()
	if err != nil {
		return nil, err
	}

	m, err := meeting.New(meeting.ConfigFrom(s.config.Meeting),
		meeting.WithRandSource(randutil.New(seed)),
		meeting.WithLogger(s.config.Logger))
	if err != nil {
		return nil, err
	}
	if err := m.AddLineup(lineup); err != nil {
		return nil, err
	}

	res := &seriesResult{
		stats:  &statistics.Statistics{},
		horses: make(map[int]*HorseSummary, len(lineup)),
	}
	occupied := make([]int, 0, len(lineup))
	for _, l := range lineup {
		occupied = append(occupied, l.Lane)
		res.horses[l.Lane] = &HorseSummary{
			Lane:   l.Lane,
			Symbol: string(l.Entrant.Symbol()),
			Name:   l.Entrant.Name(),
		}
	}

	for range s.config.Races {
		if s.config.Stake.IsPositive() {
			s.backFavourite(m, lineup)
		}

		out, err := s.runRaceWithTimeout(ctx, m)
		if err != nil {
			return nil, err
		}

		sample := statistics.RaceSample{Ticks: out.Result.Ticks, Seed: seed, Entrants: len(lineup)}
		for _, st := range out.Result.Standings {
			h := res.horses[st.Lane]
			h.Races++
			if st.Outcome == race.OutcomeWinner {
				h.Wins++
				sample.WinnerLane = st.Lane
			}
			if st.Fallen {
				h.Falls++
				sample.Falls++
			}
		}
		res.stats.Add(sample, occupied...)
	}

	for _, l := range lineup {
		h := res.horses[l.Lane]
		h.AvgSpeed = m.Tracker().AverageSpeed(l.Entrant.ID())
		h.FinalConfidence = l.Entrant.Confidence()
	}
	res.balance = m.Balance()
	return res, nil
}

// runRaceWithTimeout runs a single race with timeout protection
func (s *Simulator) runRaceWithTimeout(ctx context.Context, m *meeting.Meeting) (*meeting.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	out, err := m.RunInstant(ctx)
	if err != nil {
		return nil, fmt.Errorf("race %d: %w", m.Races()+1, err)
	}
	return out, nil
}

// backFavourite stakes on the most confident horse while the money lasts
func (s *Simulator) backFavourite(m *meeting.Meeting, lineup []config.Lineup) {
	var fav *race.Entrant
	for _, l := range lineup {
		if fav == nil || l.Entrant.Confidence() > fav.Confidence() {
			fav = l.Entrant
		}
	}
	if fav == nil {
		return
	}
	if err := m.PlaceBet(fav.Symbol(), s.config.Stake); err != nil {
		s.config.Logger.Debug("Skipping bet", "horse", fav.Name(), "error", err)
	}
}

// PrintSummary writes a summary of simulation results
func PrintSummary(w io.Writer, report *Report, cfg Config) {
	stats := report.Stats
	low, high := stats.ConfidenceInterval95()

	fmt.Fprintf(w, "\n=== SIMULATION RESULTS ===\n")
	fmt.Fprintf(w, "Series: %d x %d races (seed %d)\n", cfg.Series, cfg.Races, cfg.Seed)
	if cfg.Meeting != nil {
		fmt.Fprintf(w, "Track: %d units, %s\n", cfg.Meeting.Race.TrackLength, cfg.Meeting.Race.Condition())
	}
	fmt.Fprintf(w, "Races run: %d (%d won, %d all fallen)\n", stats.Races, stats.Won, stats.AllFallen)

	fmt.Fprintf(w, "\n=== RACE LENGTH ===\n")
	fmt.Fprintf(w, "Mean: %.2f ticks\n", stats.Mean())
	fmt.Fprintf(w, "Median: %.2f ticks\n", stats.Median())
	fmt.Fprintf(w, "Std Dev: %.2f ticks\n", stats.StdDev())
	fmt.Fprintf(w, "95%% CI: [%.2f, %.2f] ticks\n", low, high)
	fmt.Fprintf(w, "Percentiles: P5=%.1f, P25=%.1f, P75=%.1f, P95=%.1f\n",
		stats.Percentile(0.05), stats.Percentile(0.25), stats.Percentile(0.75), stats.Percentile(0.95))
	fmt.Fprintf(w, "Fall rate: %.1f%% of starts\n", stats.FallRate()*100)

	fmt.Fprintf(w, "\n=== HORSES ===\n")
	for _, h := range report.Horses {
		fmt.Fprintf(w, "Lane %d %s %-12s wins %4d/%-4d (%.1f%%) falls %4d speed %.3f confidence %.2f\n",
			h.Lane, h.Symbol, h.Name, h.Wins, h.Races, h.WinRatio()*100, h.Falls, h.AvgSpeed, h.FinalConfidence)
	}

	if cfg.Stake.IsPositive() {
		fmt.Fprintf(w, "\n=== BETTING ===\n")
		fmt.Fprintf(w, "Flat $%s on the favourite, average closing balance $%s\n",
			cfg.Stake.StringFixed(2), report.AverageBalance().StringFixed(2))
	}
}
