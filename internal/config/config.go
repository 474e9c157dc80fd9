package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bikeweather/internal/domain"
	"bikeweather/internal/engine"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName        = "bikeweather"
	defaultRequestTimeoutSec  = 10
	defaultHTTPListen         = ":8080"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultForecastBaseURL    = "https://api.forecast.io/forecast"
	defaultForecastUnits      = "ca"
	defaultForecastLang       = "en"
	defaultForecastExclude    = "minutely,daily,alerts,flags"
	defaultForecastTimeoutSec = 10
	defaultBreakerMaxFailures = 5
	defaultBreakerOpenSec     = 30
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultCompanionSubject   = "bikeweather.timeline"
	defaultCompanionStream    = "BIKEWEATHER_TIMELINE"
	defaultCompanionConsumer  = "bikeweather-companion"
	defaultCompanionGroup     = "bikeweather-companion"
	defaultCompanionAckWait   = 30

	// EnvPrefix prefixes environment overrides (BIKEWEATHER_FORECAST_API_KEY, ...).
	EnvPrefix = "bikeweather"

	// ServiceModeSingle keeps companion timeline in process memory.
	ServiceModeSingle = "single"
	// ServiceModeNATS publishes companion timeline through JetStream.
	ServiceModeNATS = "nats"
)

// Config holds service runtime settings.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Log       LogConfig       `toml:"log"`
	HTTP      HTTPConfig      `toml:"http"`
	Policy    PolicyConfig    `toml:"policy"`
	Location  LocationConfig  `toml:"location"`
	Forecast  ForecastConfig  `toml:"forecast"`
	Companion CompanionConfig `toml:"companion"`
}

// ServiceConfig contains process-level settings.
// Params: name, companion transport mode, and per-effect timeout.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name              string `toml:"name"`
	Mode              string `toml:"mode" validate:"oneof=single nats"`
	RequestTimeoutSec int    `toml:"request_timeout_sec" validate:"gt=0"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// HTTPConfig configures presentation API listener.
type HTTPConfig struct {
	Listen     string `toml:"listen" validate:"required"`
	HealthPath string `toml:"health_path" validate:"startswith=/"`
	ReadyPath  string `toml:"ready_path" validate:"startswith=/"`
}

// PolicyConfig holds decision thresholds; nil fields take engine defaults.
type PolicyConfig struct {
	TemperatureMinC                 *float64 `toml:"temperature_min_c"`
	TemperatureMaxC                 *float64 `toml:"temperature_max_c"`
	MaxPrecipIntensity              *float64 `toml:"max_precip_intensity" validate:"omitempty,gte=0"`
	MaxPrecipProbability            *float64 `toml:"max_precip_probability" validate:"omitempty,gte=0,lte=1"`
	MaxUnconditionalPrecipIntensity *float64 `toml:"max_unconditional_precip_intensity" validate:"omitempty,gte=0"`
	MaxWindSpeedKMH                 *float64 `toml:"max_wind_speed_kmh" validate:"omitempty,gte=0"`
}

// LocationConfig configures static permission and position collaborators.
// Params: optional coordinates, initial permission status, and answer given on request.
// Returns: location collaborator settings.
type LocationConfig struct {
	Latitude      *float64 `toml:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64 `toml:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Permission    string   `toml:"permission" validate:"oneof=granted denied restricted undetermined"`
	RequestAnswer string   `toml:"request_answer" validate:"oneof=granted denied restricted"`
}

// ForecastConfig configures forecast HTTP client.
// Params: endpoint, credentials, wire query options, timeout, and breaker thresholds.
// Returns: forecast client settings.
type ForecastConfig struct {
	BaseURL            string `toml:"base_url" validate:"required,url"`
	APIKey             string `toml:"api_key"`
	Units              string `toml:"units" validate:"oneof=ca si us uk2 auto"`
	Lang               string `toml:"lang"`
	Exclude            string `toml:"exclude"`
	TimeoutSec         int    `toml:"timeout_sec" validate:"gt=0"`
	BreakerMaxFailures int    `toml:"breaker_max_failures" validate:"gt=0"`
	BreakerOpenSec     int    `toml:"breaker_open_sec" validate:"gt=0"`
}

// CompanionConfig configures JetStream timeline transport for nats mode.
// Params: NATS URLs, stream routing, consumer settings, and in-process receiver toggle.
// Returns: companion transport settings.
type CompanionConfig struct {
	URL          []string `toml:"url"`
	Subject      string   `toml:"subject"`
	Stream       string   `toml:"stream"`
	ConsumerName string   `toml:"consumer_name"`
	DeliverGroup string   `toml:"deliver_group"`
	AckWaitSec   int      `toml:"ack_wait_sec"`
	Receive      bool     `toml:"receive"`
}

// envOverlay lists environment overrides applied over file values.
type envOverlay struct {
	ForecastAPIKey string   `envconfig:"FORECAST_API_KEY"`
	NATSURL        []string `envconfig:"NATS_URL"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path; optional .env file.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File    string
	Dir     string
	EnvFile string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	if err := loadEnvFile(src.EnvFile); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Policy builds decision policy from thresholds.
// Params: none (call after defaults are applied).
// Returns: engine policy.
func (c PolicyConfig) Policy() engine.Policy {
	policy := engine.DefaultPolicy()
	assign := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&policy.TemperatureLow, c.TemperatureMinC)
	assign(&policy.TemperatureHigh, c.TemperatureMaxC)
	assign(&policy.MaxPrecipIntensity, c.MaxPrecipIntensity)
	assign(&policy.MaxPrecipProbability, c.MaxPrecipProbability)
	assign(&policy.MaxUnconditionalPrecipIntensity, c.MaxUnconditionalPrecipIntensity)
	assign(&policy.MaxWindSpeed, c.MaxWindSpeedKMH)
	return policy
}

// Coordinates returns configured position.
// Params: none.
// Returns: coordinates or nil when latitude/longitude are not both set.
func (c LocationConfig) Coordinates() *domain.Coordinates {
	if c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &domain.Coordinates{Latitude: *c.Latitude, Longitude: *c.Longitude}
}

// RequestTimeout returns per-effect timeout.
func (c ServiceConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays source sections onto destination.
// Params: destination config and next fragment.
// Returns: merged configuration side-effect in dst; later non-empty sections win.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.HTTP != (HTTPConfig{}) {
		dst.HTTP = src.HTTP
	}
	if src.Policy != (PolicyConfig{}) {
		dst.Policy = src.Policy
	}
	if src.Location != (LocationConfig{}) {
		dst.Location = src.Location
	}
	if src.Forecast != (ForecastConfig{}) {
		dst.Forecast = src.Forecast
	}
	if hasCompanionConfig(src.Companion) {
		dst.Companion = src.Companion
	}
}

func hasCompanionConfig(cfg CompanionConfig) bool {
	return len(cfg.URL) > 0 ||
		cfg.Subject != "" ||
		cfg.Stream != "" ||
		cfg.ConsumerName != "" ||
		cfg.DeliverGroup != "" ||
		cfg.AckWaitSec != 0 ||
		cfg.Receive
}

// loadEnvFile loads optional dotenv file without overriding process env.
// Params: dotenv path; empty path disables loading.
// Returns: read/parse error; missing file is ignored.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

// applyEnv overlays BIKEWEATHER_* variables onto file values.
// Params: decoded config.
// Returns: env parse error.
func applyEnv(cfg *Config) error {
	var overlay envOverlay
	if err := envconfig.Process(EnvPrefix, &overlay); err != nil {
		return fmt.Errorf("process env overrides: %w", err)
	}
	if key := strings.TrimSpace(overlay.ForecastAPIKey); key != "" {
		cfg.Forecast.APIKey = key
	}
	if urls := normalizeNATSURLs(overlay.NATSURL); len(urls) > 0 {
		cfg.Companion.URL = urls
	}
	if level := strings.TrimSpace(overlay.LogLevel); level != "" {
		cfg.Log.Console.Level = level
		cfg.Log.File.Level = level
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	cfg.Service.Mode = NormalizeServiceMode(cfg.Service.Mode)
	if cfg.Service.RequestTimeoutSec <= 0 {
		cfg.Service.RequestTimeoutSec = defaultRequestTimeoutSec
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}

	defaults := engine.DefaultPolicy()
	fill := func(dst **float64, value float64) {
		if *dst == nil {
			*dst = &value
		}
	}
	fill(&cfg.Policy.TemperatureMinC, defaults.TemperatureLow)
	fill(&cfg.Policy.TemperatureMaxC, defaults.TemperatureHigh)
	fill(&cfg.Policy.MaxPrecipIntensity, defaults.MaxPrecipIntensity)
	fill(&cfg.Policy.MaxPrecipProbability, defaults.MaxPrecipProbability)
	fill(&cfg.Policy.MaxUnconditionalPrecipIntensity, defaults.MaxUnconditionalPrecipIntensity)
	fill(&cfg.Policy.MaxWindSpeedKMH, defaults.MaxWindSpeed)

	cfg.Location.Permission = strings.ToLower(strings.TrimSpace(cfg.Location.Permission))
	if cfg.Location.Permission == "" {
		cfg.Location.Permission = string(domain.PermissionUndetermined)
	}
	cfg.Location.RequestAnswer = strings.ToLower(strings.TrimSpace(cfg.Location.RequestAnswer))
	if cfg.Location.RequestAnswer == "" {
		cfg.Location.RequestAnswer = string(domain.PermissionGranted)
	}

	if strings.TrimSpace(cfg.Forecast.BaseURL) == "" {
		cfg.Forecast.BaseURL = defaultForecastBaseURL
	}
	cfg.Forecast.BaseURL = strings.TrimRight(cfg.Forecast.BaseURL, "/")
	if cfg.Forecast.Units == "" {
		cfg.Forecast.Units = defaultForecastUnits
	}
	if cfg.Forecast.Lang == "" {
		cfg.Forecast.Lang = defaultForecastLang
	}
	if cfg.Forecast.Exclude == "" {
		cfg.Forecast.Exclude = defaultForecastExclude
	}
	if cfg.Forecast.TimeoutSec <= 0 {
		cfg.Forecast.TimeoutSec = defaultForecastTimeoutSec
	}
	if cfg.Forecast.BreakerMaxFailures <= 0 {
		cfg.Forecast.BreakerMaxFailures = defaultBreakerMaxFailures
	}
	if cfg.Forecast.BreakerOpenSec <= 0 {
		cfg.Forecast.BreakerOpenSec = defaultBreakerOpenSec
	}

	cfg.Companion.URL = normalizeNATSURLs(cfg.Companion.URL)
	if len(cfg.Companion.URL) == 0 {
		cfg.Companion.URL = []string{defaultNATSURL}
	}
	if cfg.Companion.Subject == "" {
		cfg.Companion.Subject = defaultCompanionSubject
	}
	if cfg.Companion.Stream == "" {
		cfg.Companion.Stream = defaultCompanionStream
	}
	if cfg.Companion.ConsumerName == "" {
		cfg.Companion.ConsumerName = defaultCompanionConsumer
	}
	if cfg.Companion.DeliverGroup == "" {
		cfg.Companion.DeliverGroup = defaultCompanionGroup
	}
	if cfg.Companion.AckWaitSec <= 0 {
		cfg.Companion.AckWaitSec = defaultCompanionAckWait
	}
}

func validateConfig(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}
	if cfg.HTTP.HealthPath == cfg.HTTP.ReadyPath {
		return errors.New("http.health_path and http.ready_path must differ")
	}

	policy := cfg.Policy.Policy()
	if policy.TemperatureLow >= policy.TemperatureHigh {
		return errors.New("policy.temperature_min_c must be < policy.temperature_max_c")
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if (cfg.Location.Latitude == nil) != (cfg.Location.Longitude == nil) {
		return errors.New("location.latitude and location.longitude must be set together")
	}

	if strings.TrimSpace(cfg.Forecast.APIKey) == "" {
		return errors.New("forecast.api_key is required (or BIKEWEATHER_FORECAST_API_KEY)")
	}

	if cfg.Service.Mode == ServiceModeNATS {
		for i, url := range cfg.Companion.URL {
			if strings.TrimSpace(url) == "" {
				return fmt.Errorf("companion.url[%d] is empty", i)
			}
		}
		if strings.ContainsAny(cfg.Companion.Stream, ". *>") {
			return fmt.Errorf("companion.stream has invalid value %q", cfg.Companion.Stream)
		}
	}
	return nil
}

// NormalizeServiceMode canonicalizes service mode and applies default.
// Params: raw mode value from config.
// Returns: normalized mode (`single` by default).
func NormalizeServiceMode(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ServiceModeSingle
	}
	return normalized
}

func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		out = append(out, url)
	}
	return out
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error", "panic":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
