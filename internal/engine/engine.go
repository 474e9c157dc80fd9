package engine

import (
	"fmt"

	"bikeweather/internal/domain"
)

const (
	reasonTemperatureFine = "Temperature is fine."
	reasonWeatherFine     = "Weather is fine."
	reasonNotWindy        = "Not too windy."
)

// Rule evaluates one aspect of an observation.
// Params: observation and policy.
// Returns: verdict and false when the rule abstains for missing input.
type Rule func(observation domain.Observation, policy Policy) (domain.Verdict, bool)

// rules is the fixed evaluation order; merge outcome depends on it.
var rules = []Rule{
	EvaluateTemperature,
	EvaluatePrecipitation,
	EvaluateWind,
}

// Evaluate folds all sub-rule verdicts left-to-right.
// Params: observation and shared policy.
// Returns: merged verdict and false when every rule abstained.
func Evaluate(observation domain.Observation, policy Policy) (domain.Verdict, bool) {
	var (
		merged  domain.Verdict
		matched bool
	)
	for _, rule := range rules {
		verdict, ok := rule(observation, policy)
		if !ok {
			continue
		}
		if !matched {
			merged = verdict
			matched = true
			continue
		}
		merged = merged.Merge(verdict)
	}
	return merged, matched
}

// EvaluateTemperature checks apparent (or raw) temperature against policy range.
// Params: observation and policy.
// Returns: temperature verdict or abstain when no temperature is present.
func EvaluateTemperature(observation domain.Observation, policy Policy) (domain.Verdict, bool) {
	temperature, ok := domain.Value(observation.ApparentTemperature)
	if !ok {
		temperature, ok = domain.Value(observation.Temperature)
	}
	if !ok {
		return domain.Verdict{}, false
	}

	if policy.acceptsTemperature(temperature) {
		return domain.Favorable(reasonTemperatureFine), true
	}
	if temperature < policy.TemperatureLow {
		return domain.Unfavorable(fmt.Sprintf("Temperature too low: %.2f°C.", temperature)), true
	}
	return domain.Unfavorable(fmt.Sprintf("Temperature too high: %.2f°C.", temperature)), true
}

// EvaluatePrecipitation checks precipitation intensity with and without probability.
// Params: observation and policy.
// Returns: precipitation verdict or abstain when intensity or probability is missing.
func EvaluatePrecipitation(observation domain.Observation, policy Policy) (domain.Verdict, bool) {
	intensity, hasIntensity := domain.Value(observation.PrecipIntensity)
	probability, hasProbability := domain.Value(observation.PrecipProbability)
	if !hasIntensity || !hasProbability {
		return domain.Verdict{}, false
	}

	kind := observation.PrecipKind.Noun()
	if intensity > policy.MaxPrecipIntensity && probability > policy.MaxPrecipProbability {
		return domain.Unfavorable(fmt.Sprintf("High chance of %s: %.2f%%.", kind, probability*100)), true
	}
	if intensity > policy.MaxUnconditionalPrecipIntensity {
		return domain.Unfavorable(fmt.Sprintf("Lots of %s.", kind)), true
	}
	return domain.Favorable(reasonWeatherFine), true
}

// EvaluateWind checks wind speed ceiling.
// Params: observation and policy.
// Returns: wind verdict or abstain when wind speed is missing.
func EvaluateWind(observation domain.Observation, policy Policy) (domain.Verdict, bool) {
	windSpeed, ok := domain.Value(observation.WindSpeed)
	if !ok {
		return domain.Verdict{}, false
	}
	if windSpeed > policy.MaxWindSpeed {
		return domain.Unfavorable(fmt.Sprintf("Too windy: %.2f km/h.", windSpeed)), true
	}
	return domain.Favorable(reasonNotWindy), true
}

// EvaluateTimeline evaluates current and hourly forecast points.
// Params: forecast snapshot and policy.
// Returns: timeline entries in ascending time order, skipping points without
// verdict; an empty currently point leaves the first hourly entry in front.
func EvaluateTimeline(forecast domain.Forecast, policy Policy) []domain.TimelineEntry {
	points := forecast.Timeline()
	entries := make([]domain.TimelineEntry, 0, len(points))
	for _, point := range points {
		verdict, ok := Evaluate(point, policy)
		if !ok {
			continue
		}
		entries = append(entries, domain.TimelineEntry{
			Time:    point.Time,
			Outcome: verdict.Outcome,
			Reasons: verdict.Reasons,
		})
	}
	return entries
}
