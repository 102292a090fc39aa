package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for enpi-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets (PGPASSWORD,
// REDIS_PASSWORD) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL time-series store)
	Database DatabaseConfig `yaml:"database"`

	// Redis cache (optional; empty host disables caching)
	Redis RedisConfig `yaml:"redis"`

	// Policy holds the ISO-50001 classification and training policy knobs.
	Policy PolicyConfig `yaml:"policy"`

	// Aggregation bounds the time-series aggregation queries.
	Aggregation AggregationConfig `yaml:"aggregation"`

	// Operations describes the plant's operating window and the
	// opportunity-scan detection thresholds.
	Operations OperationsConfig `yaml:"operations"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"enpi"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"enpi_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds the optional Redis cache configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// BaselineTTL bounds staleness of the active-baseline cache entries.
	BaselineTTL time.Duration `yaml:"baseline_ttl" env:"REDIS_BASELINE_TTL" env-default:"10m"`
	// ReportTTL bounds staleness of cached factory reports.
	ReportTTL time.Duration `yaml:"report_ttl" env:"REDIS_REPORT_TTL" env-default:"5m"`
}

// PolicyConfig holds the ISO-status thresholds and training guards. The
// threshold values vary across compliance documentation, so they are
// configuration rather than constants; Validate enforces that the bands stay
// ordered and non-overlapping regardless of what is configured.
type PolicyConfig struct {
	// Deviation-percent band upper bounds, ascending. A deviation at or
	// below ExcellentMaxPct is "excellent"; at or below OnTrackMaxPct is
	// "on_track"; at or below AttentionMaxPct is "requires_attention";
	// anything above is "critical".
	ExcellentMaxPct float64 `yaml:"excellent_max_pct" env:"POLICY_EXCELLENT_MAX_PCT" env-default:"-10"`
	OnTrackMaxPct   float64 `yaml:"on_track_max_pct" env:"POLICY_ON_TRACK_MAX_PCT" env-default:"2"`
	AttentionMaxPct float64 `yaml:"attention_max_pct" env:"POLICY_ATTENTION_MAX_PCT" env-default:"10"`

	// MinTrainingSamples is the minimum count of distinct days an
	// aggregated training window must yield.
	MinTrainingSamples int `yaml:"min_training_samples" env:"POLICY_MIN_TRAINING_SAMPLES" env-default:"7"`

	// MaxMissingRatio excludes a candidate feature from training when more
	// than this share of its daily values is absent in the window.
	MaxMissingRatio float64 `yaml:"max_missing_ratio" env:"POLICY_MAX_MISSING_RATIO" env-default:"0.5"`

	// DegreeDayBaseC is the reference temperature for heating/cooling
	// degree-day features.
	DegreeDayBaseC float64 `yaml:"degree_day_base_c" env:"POLICY_DEGREE_DAY_BASE_C" env-default:"18"`

	// ProgressCapPct is the storage bound of the target progress field
	// (NUMERIC(5,2)); computed values beyond it are clamped and flagged.
	ProgressCapPct float64 `yaml:"progress_cap_pct" env:"POLICY_PROGRESS_CAP_PCT" env-default:"999.99"`

	// MinCoverageRatio is the observed-hours share below which a tracked
	// period is rejected as having no usable data rather than projected.
	MinCoverageRatio float64 `yaml:"min_coverage_ratio" env:"POLICY_MIN_COVERAGE_RATIO" env-default:"0.1"`
}

// Validate checks the classification bands are usable: strictly ascending so
// the status function stays monotonic and total.
func (p *PolicyConfig) Validate() error {
	if p.ExcellentMaxPct >= p.OnTrackMaxPct {
		return fmt.Errorf("policy: excellent_max_pct (%.2f) must be below on_track_max_pct (%.2f)",
			p.ExcellentMaxPct, p.OnTrackMaxPct)
	}
	if p.OnTrackMaxPct >= p.AttentionMaxPct {
		return fmt.Errorf("policy: on_track_max_pct (%.2f) must be below attention_max_pct (%.2f)",
			p.OnTrackMaxPct, p.AttentionMaxPct)
	}
	if p.MinTrainingSamples < 2 {
		return fmt.Errorf("policy: min_training_samples must be at least 2, got %d", p.MinTrainingSamples)
	}
	if p.MaxMissingRatio <= 0 || p.MaxMissingRatio >= 1 {
		return fmt.Errorf("policy: max_missing_ratio must be in (0,1), got %.2f", p.MaxMissingRatio)
	}
	if p.ProgressCapPct <= 100 {
		return fmt.Errorf("policy: progress_cap_pct must exceed 100, got %.2f", p.ProgressCapPct)
	}
	return nil
}

// AggregationConfig bounds the time-series aggregation queries, the dominant
// latency source (a full year of high-frequency readings).
type AggregationConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout" env:"AGGREGATION_QUERY_TIMEOUT" env-default:"30s"`
}

// OperationsConfig describes the configured operating window and the
// opportunity-scan thresholds.
type OperationsConfig struct {
	// Operating window, local plant hours. Consumption outside
	// [StartHour, EndHour) on working days counts as off-hours.
	OperatingStartHour int `yaml:"operating_start_hour" env:"OPS_OPERATING_START_HOUR" env-default:"6"`
	OperatingEndHour   int `yaml:"operating_end_hour" env:"OPS_OPERATING_END_HOUR" env-default:"22"`
	// WorkingDays counts from Monday=1 to Sunday=7; days above this bound
	// are non-working. Default Mon-Sat.
	WorkingDays int `yaml:"working_days" env:"OPS_WORKING_DAYS" env-default:"6"`

	// IdleLoadFraction is the share of rated power below which a running
	// machine is considered idling.
	IdleLoadFraction float64 `yaml:"idle_load_fraction" env:"OPS_IDLE_LOAD_FRACTION" env-default:"0.3"`
	// IdleMinShare is the minimum share of observed hours spent idling
	// before an idle finding is reported.
	IdleMinShare float64 `yaml:"idle_min_share" env:"OPS_IDLE_MIN_SHARE" env-default:"0.2"`
	// OffHoursMinShare is the minimum share of consumption outside the
	// operating window before a scheduling finding is reported.
	OffHoursMinShare float64 `yaml:"off_hours_min_share" env:"OPS_OFF_HOURS_MIN_SHARE" env-default:"0.15"`
	// DriftSignificance is the p-value below which a first-half/second-half
	// difference counts as baseline drift.
	DriftSignificance float64 `yaml:"drift_significance" env:"OPS_DRIFT_SIGNIFICANCE" env-default:"0.05"`
	// ScanConcurrency bounds the per-SEU fan-out of the factory-wide scan.
	ScanConcurrency int `yaml:"scan_concurrency" env:"OPS_SCAN_CONCURRENCY" env-default:"4"`
}

// Validate checks the operating window is coherent.
func (o *OperationsConfig) Validate() error {
	if o.OperatingStartHour < 0 || o.OperatingStartHour > 23 {
		return fmt.Errorf("operations: operating_start_hour must be in [0,23], got %d", o.OperatingStartHour)
	}
	if o.OperatingEndHour < 1 || o.OperatingEndHour > 24 {
		return fmt.Errorf("operations: operating_end_hour must be in [1,24], got %d", o.OperatingEndHour)
	}
	if o.OperatingStartHour >= o.OperatingEndHour {
		return fmt.Errorf("operations: operating window is empty (%02d:00-%02d:00)",
			o.OperatingStartHour, o.OperatingEndHour)
	}
	if o.WorkingDays < 1 || o.WorkingDays > 7 {
		return fmt.Errorf("operations: working_days must be in [1,7], got %d", o.WorkingDays)
	}
	if o.ScanConcurrency < 1 {
		return fmt.Errorf("operations: scan_concurrency must be positive, got %d", o.ScanConcurrency)
	}
	return nil
}

// Load reads configuration from config.yaml with environment variable
// overrides. When the file is absent, configuration comes from environment
// variables and defaults alone. The version parameter is injected at build
// time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Operations.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
