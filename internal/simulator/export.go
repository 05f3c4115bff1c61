package simulator

import (
	"github.com/lox/horserace/internal/fileutil"
	"github.com/lox/horserace/internal/race"
)

// ReportFile is the JSON form of a Report
type ReportFile struct {
	Series         int            `json:"series"`
	RacesPerSeries int            `json:"racesPerSeries"`
	Seed           int64          `json:"seed"`
	TrackLength    int            `json:"trackLength,omitempty"`
	Weather        race.Condition `json:"weather,omitempty"`
	Races          int            `json:"races"`
	Won            int            `json:"won"`
	AllFallen      int            `json:"allFallen"`
	MeanTicks      float64        `json:"meanTicks"`
	MedianTicks    float64        `json:"medianTicks"`
	StdDevTicks    float64        `json:"stdDevTicks"`
	CI95           [2]float64     `json:"ci95"`
	FallRate       float64        `json:"fallRate"`
	Horses         []HorseFile    `json:"horses"`
	Stake          string         `json:"stake,omitempty"`
	AverageBalance string         `json:"averageBalance,omitempty"`
}

// HorseFile is one horse's line in a ReportFile
type HorseFile struct {
	Lane            int     `json:"lane"`
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Races           int     `json:"races"`
	Wins            int     `json:"wins"`
	WinRatio        float64 `json:"winRatio"`
	Falls           int     `json:"falls"`
	AvgSpeed        float64 `json:"avgSpeed"`
	FinalConfidence float64 `json:"finalConfidence"`
}

// NewReportFile flattens a report for export
func NewReportFile(report *Report, cfg Config) ReportFile {
	stats := report.Stats
	low, high := stats.ConfidenceInterval95()

	f := ReportFile{
		Series:         cfg.Series,
		RacesPerSeries: cfg.Races,
		Seed:           cfg.Seed,
		Races:          stats.Races,
		Won:            stats.Won,
		AllFallen:      stats.AllFallen,
		MeanTicks:      stats.Mean(),
		MedianTicks:    stats.Median(),
		StdDevTicks:    stats.StdDev(),
		CI95:           [2]float64{low, high},
		FallRate:       stats.FallRate(),
		Horses:         make([]HorseFile, 0, len(report.Horses)),
	}
	if cfg.Meeting != nil {
		f.TrackLength = cfg.Meeting.Race.TrackLength
		f.Weather = cfg.Meeting.Race.Condition()
	}
	if cfg.Stake.IsPositive() {
		f.Stake = cfg.Stake.StringFixed(2)
		f.AverageBalance = report.AverageBalance().StringFixed(2)
	}
	for _, h := range report.Horses {
		f.Horses = append(f.Horses, HorseFile{
			Lane:            h.Lane,
			Symbol:          h.Symbol,
			Name:            h.Name,
			Races:           h.Races,
			Wins:            h.Wins,
			WinRatio:        h.WinRatio(),
			Falls:           h.Falls,
			AvgSpeed:        h.AvgSpeed,
			FinalConfidence: h.FinalConfidence,
		})
	}
	return f
}

// WriteReport saves the report as JSON, replacing path atomically
func WriteReport(path string, report *Report, cfg Config) error {
	return fileutil.WriteJSONAtomic(path, NewReportFile(report, cfg))
}
