package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/stock-data/internal/model"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  base_url: https://api.example.com/query
  api_key: demo
job:
  symbols: [ibm, " msft "]
  endpoints: [daily, TIME_SERIES_INTRADAY]
  max_workers: 4
storage:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: stock_market
    user: etl
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.com/query" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://api.example.com/query")
	}
	if cfg.Job.MaxWorkers != 4 {
		t.Errorf("Job.MaxWorkers = %d, want 4", cfg.Job.MaxWorkers)
	}
	if cfg.Storage.Postgres.Host != "localhost" {
		t.Errorf("Storage.Postgres.Host = %q, want %q", cfg.Storage.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_AV_KEY", "av-key")

	yaml := `
api:
  api_key: ${TEST_AV_KEY}
storage:
  postgres:
    host: localhost
    name: stock_market
    user: etl
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Postgres.Password != "secret123" {
		t.Errorf("Storage.Postgres.Password = %q, want %q", cfg.Storage.Postgres.Password, "secret123")
	}
	if cfg.API.APIKey != "av-key" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "av-key")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")

	yaml := `
job:
  symbols: [ibm, " msft "]
  endpoints: [DAILY, TIME_SERIES_INTRADAY]
  max_workers: 4
storage:
  postgres:
    host: localhost
    name: stock_market
    user: etl
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want default %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.API.APIKey != "from-env" {
		t.Errorf("API.APIKey = %q, want %q", cfg.API.APIKey, "from-env")
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.RateLimit.Limit != DefaultRateLimit || cfg.RateLimit.Window != DefaultRateWindow {
		t.Errorf("RateLimit = %+v, want %d per %v", cfg.RateLimit, DefaultRateLimit, DefaultRateWindow)
	}
	if cfg.Storage.Driver != DefaultDriver {
		t.Errorf("Storage.Driver = %q, want default %q", cfg.Storage.Driver, DefaultDriver)
	}
	if cfg.Storage.Postgres.Port != DefaultDBPort {
		t.Errorf("Storage.Postgres.Port = %d, want default %d", cfg.Storage.Postgres.Port, DefaultDBPort)
	}
	if cfg.Storage.Postgres.MaxConns != 6 {
		t.Errorf("Storage.Postgres.MaxConns = %d, want max_workers+2 = 6", cfg.Storage.Postgres.MaxConns)
	}
	if cfg.Storage.Postgres.MinConns != DefaultMinConns {
		t.Errorf("Storage.Postgres.MinConns = %d, want default %d", cfg.Storage.Postgres.MinConns, DefaultMinConns)
	}
	if cfg.Retry.RateLimitedBackoff != DefaultRateLimitedBackoff {
		t.Errorf("Retry.RateLimitedBackoff = %v, want default %v", cfg.Retry.RateLimitedBackoff, DefaultRateLimitedBackoff)
	}

	// Symbols and endpoints are normalized.
	if got := strings.Join(cfg.Job.Symbols, ","); got != "IBM,MSFT" {
		t.Errorf("Job.Symbols = %q, want %q", got, "IBM,MSFT")
	}
	kinds := cfg.Job.EndpointKinds()
	if len(kinds) != 2 || kinds[0] != model.Daily || kinds[1] != model.Intraday {
		t.Errorf("Job.EndpointKinds() = %v, want [daily intraday]", kinds)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg := Default()
	if len(cfg.Job.Symbols) != len(DefaultSymbols) {
		t.Errorf("Job.Symbols = %v, want %v", cfg.Job.Symbols, DefaultSymbols)
	}
	if len(cfg.Job.EndpointKinds()) != len(model.AllEndpoints) {
		t.Errorf("Job.Endpoints = %v, want all", cfg.Job.Endpoints)
	}
	if cfg.Job.MaxWorkers != DefaultMaxWorkers {
		t.Errorf("Job.MaxWorkers = %d, want %d", cfg.Job.MaxWorkers, DefaultMaxWorkers)
	}

	// Mutating the result must not touch the package default list.
	cfg.Job.Symbols[0] = "ZZZ"
	if DefaultSymbols[0] != "AAPL" {
		t.Error("Default() aliases DefaultSymbols")
	}

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api.api_key") {
		t.Errorf("Validate() = %v, want api.api_key error", err)
	}
}

func TestStorageDefaults(t *testing.T) {
	tests := []struct {
		driver string
		path   string
	}{
		{"duckdb", DefaultDuckDBPath},
		{"SQLite", DefaultSQLitePath},
		{"postgres", ""},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := &Config{Storage: StorageConfig{Driver: tt.driver}}
			cfg.applyDefaults()
			if cfg.Storage.Path != tt.path {
				t.Errorf("Storage.Path = %q, want %q", cfg.Storage.Path, tt.path)
			}
		})
	}
}

// validConfig returns a config that passes Validate.
func validConfig() Config {
	cfg := Config{
		API:     APIConfig{APIKey: "demo"},
		Storage: StorageConfig{Driver: "sqlite", Path: "test.db"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.API.APIKey = "" },
			wantErr: "api.api_key: failed required",
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.API.BaseURL = "not a url" },
			wantErr: "api.base_url: failed url",
		},
		{
			name:    "bad intraday interval",
			mutate:  func(c *Config) { c.API.IntradayInterval = "2min" },
			wantErr: "api.intraday_interval: failed oneof",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Job.MaxWorkers = -1 },
			wantErr: "job.max_workers: failed gte=1",
		},
		{
			name:    "unknown endpoint",
			mutate:  func(c *Config) { c.Job.Endpoints = []string{"daily", "ema"} },
			wantErr: "job.endpoints[1]: failed oneof",
		},
		{
			name:    "empty symbol",
			mutate:  func(c *Config) { c.Job.Symbols = []string{"IBM", ""} },
			wantErr: "job.symbols[1]: failed required",
		},
		{
			name:    "duplicate symbol",
			mutate:  func(c *Config) { c.Job.Symbols = []string{"IBM", "IBM"} },
			wantErr: `job.symbols contains "IBM" twice`,
		},
		{
			name:    "max backoff below base",
			mutate:  func(c *Config) { c.Retry.MaxBackoff = 100 * time.Millisecond },
			wantErr: "retry.max_backoff: failed gtefield=BaseBackoff",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mysql" },
			wantErr: "storage.driver: failed oneof",
		},
		{
			name:    "file driver without path",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage.path is required for driver sqlite",
		},
		{
			name: "missing postgres host",
			mutate: func(c *Config) {
				c.Storage.Driver = "postgres"
			},
			wantErr: "storage.postgres.host is required",
		},
		{
			name: "missing postgres password",
			mutate: func(c *Config) {
				c.Storage.Driver = "postgres"
				c.Storage.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 5}
			},
			wantErr: "storage.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Storage.Driver = "postgres"
				c.Storage.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "storage.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "cron and every",
			mutate: func(c *Config) {
				c.Schedule = ScheduleConfig{Cron: "0 18 * * 1-5", Every: time.Hour}
			},
			wantErr: "schedule.cron and schedule.every are mutually exclusive",
		},
		{
			name:    "health port out of range",
			mutate:  func(c *Config) { c.Health.Port = 70000 },
			wantErr: "health.port: failed lte=65535",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestLoadAndValidate_Invalid(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	path := writeTempFile(t, "storage:\n  driver: sqlite\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("LoadAndValidate() expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "validate config:") {
		t.Errorf("error = %q, want validate config prefix", err.Error())
	}
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv(APIKeyEnv, "env-key")
	path := writeTempFile(t, `
job:
  symbols: [IBM]
  max_workers: 2
storage:
  driver: sqlite
  path: test.db
`)

	cfg, err := LoadWithOverrides(path, func(c *Config) {
		c.Job.Symbols = []string{" aapl", "msft "}
		c.Job.Endpoints = []string{"SMA"}
		c.Job.MaxWorkers = 6
	})
	if err != nil {
		t.Fatalf("LoadWithOverrides() error = %v", err)
	}

	if len(cfg.Job.Symbols) != 2 || cfg.Job.Symbols[0] != "AAPL" || cfg.Job.Symbols[1] != "MSFT" {
		t.Errorf("Symbols = %v, want [AAPL MSFT]", cfg.Job.Symbols)
	}
	if len(cfg.Job.Endpoints) != 1 || cfg.Job.Endpoints[0] != "sma" {
		t.Errorf("Endpoints = %v, want [sma]", cfg.Job.Endpoints)
	}
	if cfg.Job.MaxWorkers != 6 {
		t.Errorf("MaxWorkers = %d, want 6", cfg.Job.MaxWorkers)
	}
	if cfg.API.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.API.APIKey)
	}
}

func TestLoadWithOverrides_NoFile(t *testing.T) {
	t.Setenv(APIKeyEnv, "env-key")

	cfg, err := LoadWithOverrides("", func(c *Config) {
		c.Storage.Driver = "sqlite"
	})
	if err != nil {
		t.Fatalf("LoadWithOverrides() error = %v", err)
	}
	if cfg.Storage.Path != "stock_market.db" {
		t.Errorf("Storage.Path = %q, want stock_market.db", cfg.Storage.Path)
	}
	if len(cfg.Job.Symbols) != len(DefaultSymbols) {
		t.Errorf("Symbols = %v, want defaults", cfg.Job.Symbols)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read config file error", err)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
