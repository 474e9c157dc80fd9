package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bikeweather/internal/domain"
)

// ErrDecode indicates forecast document misses required fields.
var ErrDecode = errors.New("forecast decode failed")

type wireForecast struct {
	Currently *wirePoint `json:"currently"`
	Minutely  *wireBlock `json:"minutely"`
	Hourly    *wireBlock `json:"hourly"`
	Daily     *wireBlock `json:"daily"`
}

type wireBlock struct {
	Summary string      `json:"summary"`
	Icon    string      `json:"icon"`
	Data    []wirePoint `json:"data"`
}

type wirePoint struct {
	Time                *int64   `json:"time"`
	Summary             string   `json:"summary"`
	Icon                string   `json:"icon"`
	Temperature         *float64 `json:"temperature"`
	ApparentTemperature *float64 `json:"apparentTemperature"`
	PrecipIntensity     *float64 `json:"precipIntensity"`
	PrecipProbability   *float64 `json:"precipProbability"`
	PrecipType          string   `json:"precipType"`
	WindSpeed           *float64 `json:"windSpeed"`
}

// Decode parses forecast.io/Dark Sky JSON document.
// Params: raw response body.
// Returns: forecast or decode error; measurements omitted upstream stay absent.
func Decode(body []byte) (domain.Forecast, error) {
	var raw wireForecast
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Forecast{}, fmt.Errorf("decode forecast: %w", err)
	}
	if raw.Currently == nil {
		return domain.Forecast{}, fmt.Errorf("%w: currently is required", ErrDecode)
	}

	currently, err := raw.Currently.observation()
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("currently: %w", err)
	}
	out := domain.Forecast{Currently: currently}
	if out.Minutely, err = raw.Minutely.block("minutely"); err != nil {
		return domain.Forecast{}, err
	}
	if out.Hourly, err = raw.Hourly.block("hourly"); err != nil {
		return domain.Forecast{}, err
	}
	if out.Daily, err = raw.Daily.block("daily"); err != nil {
		return domain.Forecast{}, err
	}
	return out, nil
}

func (b *wireBlock) block(name string) (*domain.DataBlock, error) {
	if b == nil {
		return nil, nil
	}
	points := make([]domain.Observation, 0, len(b.Data))
	for i := range b.Data {
		point, err := b.Data[i].observation()
		if err != nil {
			return nil, fmt.Errorf("%s.data[%d]: %w", name, i, err)
		}
		points = append(points, point)
	}
	return &domain.DataBlock{Summary: b.Summary, Icon: b.Icon, Points: points}, nil
}

func (p wirePoint) observation() (domain.Observation, error) {
	if p.Time == nil {
		return domain.Observation{}, fmt.Errorf("%w: time is required", ErrDecode)
	}
	return domain.Observation{
		Time:                time.Unix(*p.Time, 0).UTC(),
		Summary:             p.Summary,
		Icon:                p.Icon,
		ApparentTemperature: p.ApparentTemperature,
		Temperature:         p.Temperature,
		PrecipIntensity:     p.PrecipIntensity,
		PrecipProbability:   p.PrecipProbability,
		PrecipKind:          domain.ParsePrecipKind(p.PrecipType),
		WindSpeed:           p.WindSpeed,
	}, nil
}
