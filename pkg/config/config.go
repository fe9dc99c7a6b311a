// Package config centralizes configuration for every StellarOps core
// component. Values load from an optional YAML file, then are overridden by
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DetectorConfig controls the Conjunction Detector.
type DetectorConfig struct {
	IntervalMS             int `json:"interval_ms" yaml:"interval_ms" env:"DETECTOR_INTERVAL_MS"`
	HorizonHours           int `json:"horizon_hours" yaml:"horizon_hours" env:"DETECTOR_HORIZON_HOURS"`
	StepSeconds            int `json:"step_seconds" yaml:"step_seconds" env:"DETECTOR_STEP_SECONDS"`
	MissDistanceThreshold  float64 `json:"miss_distance_threshold_km" yaml:"miss_distance_threshold_km" env:"DETECTOR_MISS_DISTANCE_THRESHOLD_KM"`
	CatalogConcurrency     int `json:"catalog_concurrency" yaml:"catalog_concurrency" env:"DETECTOR_CATALOG_CONCURRENCY"`
}

// BreakerConfig configures a single named circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	FailureWindow    time.Duration `json:"failure_window" yaml:"failure_window"`
	ResetTimeout     time.Duration `json:"reset_timeout" yaml:"reset_timeout"`
}

// PlannerConfig controls the COA Planner.
type PlannerConfig struct {
	MaxDeltaVMS          float64 `json:"max_delta_v_ms" yaml:"max_delta_v_ms" env:"PLANNER_MAX_DELTA_V_MS"`
	FuelDensityKgPerMS   float64 `json:"fuel_density_kg_per_ms" yaml:"fuel_density_kg_per_ms" env:"PLANNER_FUEL_DENSITY_KG_PER_MS"`
	ManeuverLeadTimeHrs  float64 `json:"maneuver_lead_time_hours" yaml:"maneuver_lead_time_hours" env:"PLANNER_MANEUVER_LEAD_TIME_HOURS"`
}

// TLEWatcherConfig controls the TLE Freshness Watcher.
type TLEWatcherConfig struct {
	StaleThresholdHours float64 `json:"stale_threshold_hours" yaml:"stale_threshold_hours" env:"TLE_STALE_THRESHOLD_HOURS"`
}

// AlarmBusConfig controls the Alarm Bus.
type AlarmBusConfig struct {
	RetentionSeconds int `json:"retention_seconds" yaml:"retention_seconds" env:"ALARM_RETENTION_SECONDS"`
}

// SchedulerConfig controls the Mission Scheduler/Executor.
type SchedulerConfig struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries" env:"SCHEDULER_MAX_RETRIES"`
	InitialBackoff    time.Duration `json:"initial_backoff" yaml:"initial_backoff" env:"SCHEDULER_INITIAL_BACKOFF"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff" env:"SCHEDULER_MAX_BACKOFF"`
	DispatchInterval  time.Duration `json:"dispatch_interval" yaml:"dispatch_interval" env:"SCHEDULER_DISPATCH_INTERVAL"`
}

// OrbitalClientConfig controls the HTTP client to the external propagator.
type OrbitalClientConfig struct {
	BaseURL        string        `json:"base_url" yaml:"base_url" env:"ORBITAL_BASE_URL"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout" env:"ORBITAL_TIMEOUT"`
	MaxBodyBytes   int64         `json:"max_body_bytes" yaml:"max_body_bytes" env:"ORBITAL_MAX_BODY_BYTES"`
	RateLimitPerS  float64       `json:"rate_limit_per_s" yaml:"rate_limit_per_s" env:"ORBITAL_RATE_LIMIT_PER_S"`
	UseMock        bool          `json:"use_mock" yaml:"use_mock" env:"ORBITAL_USE_MOCK"`
}

// DatabaseConfig controls the optional Postgres rehydration store.
type DatabaseConfig struct {
	Driver       string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN          string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
}

// LoggingConfig controls pkg/logger output.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Config is the top-level configuration for the stellarops-core process.
type Config struct {
	Logging   LoggingConfig             `json:"logging" yaml:"logging"`
	Database  DatabaseConfig            `json:"database" yaml:"database"`
	Detector  DetectorConfig            `json:"detector" yaml:"detector"`
	Planner   PlannerConfig             `json:"planner" yaml:"planner"`
	TLE       TLEWatcherConfig          `json:"tle" yaml:"tle"`
	AlarmBus  AlarmBusConfig            `json:"alarm_bus" yaml:"alarm_bus"`
	Scheduler SchedulerConfig           `json:"scheduler" yaml:"scheduler"`
	Orbital   OrbitalClientConfig       `json:"orbital" yaml:"orbital"`
	Breakers  map[string]BreakerConfig  `json:"breakers" yaml:"breakers"`
}

// New returns a Config populated with production defaults.
func New() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout", FilePrefix: "stellarops-core"},
		Database: DatabaseConfig{
			Driver:       "postgres",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Detector: DetectorConfig{
			IntervalMS:            60000,
			HorizonHours:          24,
			StepSeconds:           60,
			MissDistanceThreshold: 10,
			CatalogConcurrency:    10,
		},
		Planner: PlannerConfig{
			MaxDeltaVMS:         10,
			FuelDensityKgPerMS:  0.05,
			ManeuverLeadTimeHrs: 12,
		},
		TLE:      TLEWatcherConfig{StaleThresholdHours: 24},
		AlarmBus: AlarmBusConfig{RetentionSeconds: 86400},
		Scheduler: SchedulerConfig{
			MaxRetries:       3,
			InitialBackoff:   5 * time.Second,
			MaxBackoff:       5 * time.Minute,
			DispatchInterval: 1 * time.Second,
		},
		Orbital: OrbitalClientConfig{
			BaseURL:       "http://localhost:9100",
			Timeout:       10 * time.Second,
			MaxBodyBytes:  1 << 20,
			RateLimitPerS: 20,
		},
		Breakers: map[string]BreakerConfig{
			"orbital":    {FailureThreshold: 3, FailureWindow: 30 * time.Second, ResetTimeout: 15 * time.Second},
			"celestrak":  {FailureThreshold: 5, FailureWindow: 60 * time.Second, ResetTimeout: 30 * time.Second},
			"spacetrack": {FailureThreshold: 5, FailureWindow: 60 * time.Second, ResetTimeout: 30 * time.Second},
			"intel":      {FailureThreshold: 5, FailureWindow: 60 * time.Second, ResetTimeout: 30 * time.Second},
		},
	}
}

// Load loads an optional .env file, an optional YAML file at CONFIG_FILE (or
// configs/config.yaml), then applies environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
