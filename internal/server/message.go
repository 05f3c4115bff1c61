package server

import (
	"encoding/json"
	"time"

	"github.com/lox/horserace/internal/meeting"
	"github.com/lox/horserace/internal/race"
)

// MessageType represents a WebSocket message type with type safety
type MessageType string

// Client → Server message types
const (
	MessageTypeGetSnapshot MessageType = "get_snapshot"
	MessageTypeGetStats    MessageType = "get_stats"
)

// Server → Client message types
const (
	MessageTypeSnapshot  MessageType = "snapshot"
	MessageTypeRaceStart MessageType = "race_start"
	MessageTypeRaceTick  MessageType = "race_tick"
	MessageTypeHorseFell MessageType = "horse_fell"
	MessageTypeRaceEnd   MessageType = "race_end"
	MessageTypeBetPlaced MessageType = "bet_placed"
	MessageTypeWeather   MessageType = "weather"
	MessageTypeStats     MessageType = "stats"
	MessageTypeError     MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TickData struct {
	Tick     int           `json:"tick"`
	Moved    []int         `json:"moved,omitempty"`
	Fell     []int         `json:"fell,omitempty"`
	Snapshot race.Snapshot `json:"snapshot"`
}

type FallData struct {
	RaceID   string `json:"raceId"`
	Tick     int    `json:"tick"`
	Lane     int    `json:"lane"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Distance int    `json:"distance"`
}

type StandingData struct {
	Position         int          `json:"position"`
	Lane             int          `json:"lane"`
	Symbol           string       `json:"symbol"`
	Name             string       `json:"name"`
	Distance         int          `json:"distance"`
	Outcome          race.Outcome `json:"outcome"`
	ConfidenceBefore float64      `json:"confidenceBefore"`
	ConfidenceAfter  float64      `json:"confidenceAfter"`
}

type RaceEndData struct {
	RaceID    string         `json:"raceId"`
	State     string         `json:"state"`
	Winner    string         `json:"winner,omitempty"`
	Ticks     int            `json:"ticks"`
	Weather   race.Condition `json:"weather"`
	Pool      string         `json:"pool"`
	Standings []StandingData `json:"standings"`
}

type BetData struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Stake  string `json:"stake"`
}

type WeatherData struct {
	Weather race.Condition `json:"weather"`
}

type HorseStats struct {
	Lane         int     `json:"lane"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Races        int     `json:"races"`
	Wins         int     `json:"wins"`
	WinRatio     float64 `json:"winRatio"`
	AverageSpeed float64 `json:"averageSpeed"`
	Confidence   float64 `json:"confidence"`
	BestTime     int     `json:"bestTime,omitempty"`
}

type StatsData struct {
	Races   int            `json:"races"`
	Balance string         `json:"balance"`
	Weather race.Condition `json:"weather"`
	Horses  []HorseStats   `json:"horses"`
}

// MessageFromEvent converts a meeting event into the wire message spectators
// receive. Events with no wire form return nil.
func MessageFromEvent(event meeting.Event) (*Message, error) {
	switch e := event.(type) {
	case meeting.RaceStartEvent:
		return NewMessage(MessageTypeRaceStart, e.Snapshot)
	case meeting.RaceTickEvent:
		return NewMessage(MessageTypeRaceTick, TickData{
			Tick:     e.Report.Tick,
			Moved:    e.Report.Moved,
			Fell:     e.Report.Fell,
			Snapshot: e.Snapshot,
		})
	case meeting.HorseFellEvent:
		return NewMessage(MessageTypeHorseFell, FallData{
			RaceID:   e.RaceID,
			Tick:     e.Tick,
			Lane:     e.Lane,
			Symbol:   e.Symbol,
			Name:     e.Name,
			Distance: e.Distance,
		})
	case meeting.RaceEndEvent:
		return NewMessage(MessageTypeRaceEnd, raceEndData(e.Outcome))
	case meeting.BetPlacedEvent:
		return NewMessage(MessageTypeBetPlaced, BetData{
			Symbol: e.Symbol,
			Name:   e.Name,
			Amount: e.Amount.StringFixed(2),
			Stake:  e.Stake.StringFixed(2),
		})
	case meeting.WeatherChangeEvent:
		return NewMessage(MessageTypeWeather, WeatherData{Weather: e.Weather})
	default:
		return nil, nil
	}
}

func raceEndData(o *meeting.Outcome) RaceEndData {
	res := o.Result
	data := RaceEndData{
		RaceID:    res.RaceID,
		State:     res.State.String(),
		Ticks:     res.Ticks,
		Weather:   res.Weather,
		Pool:      o.Staked.StringFixed(2),
		Standings: make([]StandingData, 0, len(res.Standings)),
	}
	if res.Winner != nil {
		data.Winner = string(res.Winner.Symbol())
	}
	for _, s := range res.Standings {
		data.Standings = append(data.Standings, StandingData{
			Position:         s.Position,
			Lane:             s.Lane,
			Symbol:           string(s.Entrant.Symbol()),
			Name:             s.Entrant.Name(),
			Distance:         s.Distance,
			Outcome:          s.Outcome,
			ConfidenceBefore: s.ConfidenceBefore,
			ConfidenceAfter:  s.ConfidenceAfter,
		})
	}
	return data
}
