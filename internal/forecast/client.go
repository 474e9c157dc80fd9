package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bikeweather/internal/config"
	"bikeweather/internal/domain"
	"bikeweather/internal/failure"

	"github.com/sony/gobreaker/v2"
)

const maxBodyBytes = 4 << 20

// ErrInvalidResponse indicates non-200 upstream answer.
var ErrInvalidResponse = errors.New("invalid forecast response")

// Client fetches forecasts from a forecast.io compatible endpoint.
// Params: HTTP client, circuit breaker, and request options.
// Returns: forecast provider used by app driver.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[domain.Forecast]
	baseURL string
	apiKey  string
	units   string
	lang    string
	exclude string
}

// New creates forecast client.
// Params: forecast settings and optional HTTP client (nil builds one with configured timeout).
// Returns: client or settings error.
func New(settings config.ForecastConfig, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(settings.BaseURL) == "" {
		return nil, errors.New("forecast base url is required")
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return nil, errors.New("forecast api key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(settings.TimeoutSec) * time.Second}
	}
	maxFailures := uint32(settings.BreakerMaxFailures)
	if maxFailures == 0 {
		maxFailures = 1
	}
	breaker := gobreaker.NewCircuitBreaker[domain.Forecast](gobreaker.Settings{
		Name:        "forecast",
		MaxRequests: 1,
		Timeout:     time.Duration(settings.BreakerOpenSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Client{
		http:    httpClient,
		breaker: breaker,
		baseURL: strings.TrimRight(settings.BaseURL, "/"),
		apiKey:  settings.APIKey,
		units:   settings.Units,
		lang:    settings.Lang,
		exclude: settings.Exclude,
	}, nil
}

// URL builds request URL for coordinates.
// Params: coordinates.
// Returns: `<base>/<key>/<lat>,<lon>?units=..&exclude=..&lang=..`.
func (c *Client) URL(location domain.Coordinates) string {
	query := url.Values{}
	if c.units != "" {
		query.Set("units", c.units)
	}
	if c.exclude != "" {
		query.Set("exclude", c.exclude)
	}
	if c.lang != "" {
		query.Set("lang", c.lang)
	}
	target := c.baseURL + "/" + url.PathEscape(c.apiKey) + "/" + location.String()
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// Fetch requests forecast for coordinates.
// Params: request context and coordinates.
// Returns: decoded forecast or forecast failure; open breaker fails fast.
func (c *Client) Fetch(ctx context.Context, location domain.Coordinates) (domain.Forecast, error) {
	forecast, err := c.breaker.Execute(func() (domain.Forecast, error) {
		return c.fetch(ctx, location)
	})
	if err != nil {
		return domain.Forecast{}, failure.Wrap(failure.ForecastFailure, err)
	}
	return forecast, nil
}

// State reports breaker state name for diagnostics.
func (c *Client) State() string {
	return c.breaker.State().String()
}

func (c *Client) fetch(ctx context.Context, location domain.Coordinates) (domain.Forecast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(location), nil)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return domain.Forecast{}, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("read forecast body: %w", err)
	}
	return Decode(body)
}
