package domain

import (
	"math"
	"strings"
	"time"
)

// PrecipKind identifies precipitation type reported by forecast source.
// Params: lower-case kind name or empty when absent.
// Returns: normalized kind used in precipitation reasons.
type PrecipKind string

const (
	// PrecipRain marks liquid precipitation.
	PrecipRain PrecipKind = "rain"
	// PrecipSnow marks snowfall.
	PrecipSnow PrecipKind = "snow"
	// PrecipSleet marks mixed rain and snow.
	PrecipSleet PrecipKind = "sleet"
	// PrecipHail marks hail.
	PrecipHail PrecipKind = "hail"
	// PrecipUnknown marks a reported but unrecognized kind.
	PrecipUnknown PrecipKind = "unknown"
)

// ParsePrecipKind maps wire value into known precipitation kind.
// Params: raw kind string from upstream payload.
// Returns: known kind, PrecipUnknown for unrecognized values, or empty for blank input.
func ParsePrecipKind(raw string) PrecipKind {
	switch PrecipKind(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return ""
	case PrecipRain:
		return PrecipRain
	case PrecipSnow:
		return PrecipSnow
	case PrecipSleet:
		return PrecipSleet
	case PrecipHail:
		return PrecipHail
	default:
		return PrecipUnknown
	}
}

// Noun returns kind name used in human-readable reasons.
// Params: none.
// Returns: kind name or "precipitation" when kind is absent or unknown.
func (k PrecipKind) Noun() string {
	switch k {
	case PrecipRain, PrecipSnow, PrecipSleet, PrecipHail:
		return string(k)
	default:
		return "precipitation"
	}
}

// Observation is one weather data point.
// Params: observation time and optional measurements (nil when upstream omitted them).
// Returns: immutable input for decision engine.
type Observation struct {
	Time                time.Time
	Summary             string
	Icon                string
	ApparentTemperature *float64
	Temperature         *float64
	PrecipIntensity     *float64
	PrecipProbability   *float64
	PrecipKind          PrecipKind
	WindSpeed           *float64
}

// Float returns pointer to value for optional observation fields.
// Params: measurement value.
// Returns: pointer to copy of value.
func Float(value float64) *float64 {
	return &value
}

// Value reads optional measurement, treating NaN as absent.
// Params: optional measurement pointer.
// Returns: value and presence flag.
func Value(field *float64) (float64, bool) {
	if field == nil || math.IsNaN(*field) {
		return 0, false
	}
	return *field, true
}

// HasMeasurements reports whether observation carries any field the engine reads.
// Params: none.
// Returns: true when at least one temperature, precipitation, or wind value is present.
func (o Observation) HasMeasurements() bool {
	for _, field := range []*float64{o.ApparentTemperature, o.Temperature, o.PrecipIntensity, o.PrecipProbability, o.WindSpeed} {
		if _, ok := Value(field); ok {
			return true
		}
	}
	return false
}

// DataBlock groups observations for one forecast horizon.
type DataBlock struct {
	Summary string
	Icon    string
	Points  []Observation
}

// Forecast is one forecast snapshot for a location.
// Params: current observation and optional minutely/hourly/daily blocks.
// Returns: forecast used by state machine and timeline evaluation.
type Forecast struct {
	Currently Observation
	Minutely  *DataBlock
	Hourly    *DataBlock
	Daily     *DataBlock
}

// Timeline lists points evaluated for the companion.
// Params: none.
// Returns: current observation followed by hourly points; minutely and daily
// blocks are left out so entries stay in ascending time order.
func (f Forecast) Timeline() []Observation {
	if f.Hourly == nil {
		return []Observation{f.Currently}
	}
	points := make([]Observation, 0, 1+len(f.Hourly.Points))
	points = append(points, f.Currently)
	return append(points, f.Hourly.Points...)
}
