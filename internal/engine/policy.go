package engine

import (
	"errors"
	"fmt"
	"math"
)

// Policy holds riding thresholds shared by all evaluations.
// Params: acceptable temperature range [TemperatureLow, TemperatureHigh) in °C and precipitation/wind ceilings.
// Returns: immutable decision configuration.
type Policy struct {
	TemperatureLow                  float64
	TemperatureHigh                 float64
	MaxPrecipIntensity              float64
	MaxPrecipProbability            float64
	MaxUnconditionalPrecipIntensity float64
	MaxWindSpeed                    float64
}

// DefaultPolicy returns thresholds for an average commuter.
// Params: none.
// Returns: 5..30 °C, 0.01 mm/h at >10% chance, 0.1 mm/h unconditional, 15.5 km/h wind.
func DefaultPolicy() Policy {
	return Policy{
		TemperatureLow:                  5,
		TemperatureHigh:                 30,
		MaxPrecipIntensity:              0.01,
		MaxPrecipProbability:            0.1,
		MaxUnconditionalPrecipIntensity: 0.1,
		MaxWindSpeed:                    15.5,
	}
}

// Validate checks policy consistency.
// Params: none.
// Returns: first violated constraint.
func (p Policy) Validate() error {
	for name, value := range map[string]float64{
		"temperature low":                    p.TemperatureLow,
		"temperature high":                   p.TemperatureHigh,
		"max precipitation intensity":        p.MaxPrecipIntensity,
		"max precipitation probability":      p.MaxPrecipProbability,
		"max unconditional precip intensity": p.MaxUnconditionalPrecipIntensity,
		"max wind speed":                     p.MaxWindSpeed,
	} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if p.TemperatureLow >= p.TemperatureHigh {
		return errors.New("temperature low must be below temperature high")
	}
	if p.MaxPrecipIntensity < 0 || p.MaxUnconditionalPrecipIntensity < 0 {
		return errors.New("precipitation intensity ceilings must be >=0")
	}
	if p.MaxPrecipProbability < 0 || p.MaxPrecipProbability > 1 {
		return errors.New("max precipitation probability must be within [0,1]")
	}
	if p.MaxWindSpeed < 0 {
		return errors.New("max wind speed must be >=0")
	}
	return nil
}

// acceptsTemperature reports whether temperature lies in half-open range.
func (p Policy) acceptsTemperature(value float64) bool {
	return value >= p.TemperatureLow && value < p.TemperatureHigh
}
