package config

import (
	"time"

	"github.com/rickgao/stock-data/internal/model"
)

// Config is the root configuration for the ETL.
type Config struct {
	API       APIConfig       `yaml:"api"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Job       JobConfig       `yaml:"job"`
	Retry     RetryConfig     `yaml:"retry"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Health    HealthConfig    `yaml:"health"`
}

// APIConfig holds market-data API settings.
type APIConfig struct {
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	APIKey           string        `yaml:"api_key" validate:"required"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	IntradayInterval string        `yaml:"intraday_interval" validate:"oneof=1min 5min 15min 30min 60min"`
	OutputSize       string        `yaml:"output_size" validate:"omitempty,oneof=compact full"`
	SMA              SMAConfig     `yaml:"sma"`
}

// SMAConfig holds the SMA indicator query parameters.
type SMAConfig struct {
	Interval   string `yaml:"interval" validate:"oneof=1min 5min 15min 30min 60min daily weekly monthly"`
	TimePeriod int    `yaml:"time_period" validate:"gte=1"`
	SeriesType string `yaml:"series_type" validate:"oneof=open high low close"`
}

// RateLimitConfig is the global ceiling on outbound API calls.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit" validate:"gte=1"`
	Window time.Duration `yaml:"window" validate:"gt=0"`
}

// JobConfig selects the work of a run.
type JobConfig struct {
	Symbols    []string `yaml:"symbols" validate:"min=1,dive,required,max=16"`
	Endpoints  []string `yaml:"endpoints" validate:"min=1,dive,oneof=daily intraday sma"`
	MaxWorkers int      `yaml:"max_workers" validate:"gte=1,lte=64"`
}

// EndpointKinds returns the configured endpoints as kinds. Unknown names are
// skipped; Validate rejects them.
func (j JobConfig) EndpointKinds() []model.EndpointKind {
	kinds := make([]model.EndpointKind, 0, len(j.Endpoints))
	for _, e := range j.Endpoints {
		if k, err := model.ParseEndpointKind(e); err == nil {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// RetryConfig bounds per-unit retries.
type RetryConfig struct {
	FetchAttempts      int           `yaml:"fetch_attempts" validate:"gte=1"`
	PersistAttempts    int           `yaml:"persist_attempts" validate:"gte=1"`
	BaseBackoff        time.Duration `yaml:"base_backoff" validate:"gt=0"`
	MaxBackoff         time.Duration `yaml:"max_backoff" validate:"gtefield=BaseBackoff"`
	RateLimitedBackoff time.Duration `yaml:"rate_limited_backoff" validate:"gt=0"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Driver    string   `yaml:"driver" validate:"oneof=postgres duckdb sqlite"`
	Path      string   `yaml:"path"` // file path for duckdb and sqlite
	BatchSize int      `yaml:"batch_size" validate:"gte=1"`
	Postgres  DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
	File   string `yaml:"file"` // also log here when set
}

// ScheduleConfig drives the schedule command. Set at most one of Cron and Every.
type ScheduleConfig struct {
	Cron  string        `yaml:"cron"`
	Every time.Duration `yaml:"every"`
}

// HealthConfig holds the health endpoint settings. Port 0 disables the server.
type HealthConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}
