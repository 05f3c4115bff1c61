package race

import "strings"

// Condition names the track surface for a race.
type Condition string

const (
	Sunny Condition = "Sunny"
	Rainy Condition = "Rainy"
	Muddy Condition = "Muddy"
	Icy   Condition = "Icy"
)

// Conditions lists the recognised conditions in display order.
func Conditions() []Condition {
	return []Condition{Sunny, Rainy, Muddy, Icy}
}

// ParseCondition matches a name case-insensitively. Unknown names are Sunny.
func ParseCondition(name string) Condition {
	for _, c := range Conditions() {
		if strings.EqualFold(string(c), strings.TrimSpace(name)) {
			return c
		}
	}
	return Sunny
}

// Known reports whether c is one of the recognised conditions.
func (c Condition) Known() bool {
	for _, k := range Conditions() {
		if c == k {
			return true
		}
	}
	return false
}

func (c Condition) String() string {
	return string(c)
}

// WeatherEffect holds the coefficients a condition applies to a race.
type WeatherEffect struct {
	SpeedModifier     float64
	ConfidencePenalty float64
	FallMultiplier    float64
}

var sunnyEffect = WeatherEffect{SpeedModifier: 1.0, ConfidencePenalty: 0, FallMultiplier: 1.0}

var weatherTable = map[Condition]WeatherEffect{
	Sunny: sunnyEffect,
	Rainy: {SpeedModifier: 0.8, ConfidencePenalty: 0.05, FallMultiplier: 1.0},
	Muddy: {SpeedModifier: 0.7, ConfidencePenalty: 0.10, FallMultiplier: 1.5},
	Icy:   {SpeedModifier: 0.5, ConfidencePenalty: 0.15, FallMultiplier: 2.0},
}

// WeatherModel maps a condition to its effect. Implementations must be pure.
type WeatherModel interface {
	Effect(c Condition) WeatherEffect
}

// StandardWeather is the full weather table. Rain slows horses but does not
// make them fall more often.
type StandardWeather struct{}

// Effect implements WeatherModel.
func (StandardWeather) Effect(c Condition) WeatherEffect {
	if effect, ok := weatherTable[c]; ok {
		return effect
	}
	return sunnyEffect
}

// NoWeather ignores the condition and always applies Sunny's coefficients.
type NoWeather struct{}

// Effect implements WeatherModel.
func (NoWeather) Effect(Condition) WeatherEffect {
	return sunnyEffect
}
