package config

import (
	"os"
	"strings"
	"time"

	"github.com/rickgao/stock-data/internal/model"
)

// APIKeyEnv is read when api.api_key is empty.
const APIKeyEnv = "ALPHA_VANTAGE_API_KEY"

// Default values for optional configuration fields.
const (
	DefaultBaseURL            = "https://www.alphavantage.co/query"
	DefaultAPITimeout         = 30 * time.Second
	DefaultIntradayInterval   = "5min"
	DefaultSMAInterval        = "60min"
	DefaultSMATimePeriod      = 200
	DefaultSMASeriesType      = "close"
	DefaultRateLimit          = 5
	DefaultRateWindow         = time.Minute
	DefaultMaxWorkers         = 3
	DefaultFetchAttempts      = 3
	DefaultPersistAttempts    = 3
	DefaultBaseBackoff        = 1 * time.Second
	DefaultMaxBackoff         = 30 * time.Second
	DefaultRateLimitedBackoff = 60 * time.Second
	DefaultDriver             = "postgres"
	DefaultDuckDBPath         = "stock_market.duckdb"
	DefaultSQLitePath         = "stock_market.db"
	DefaultBatchSize          = 500
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "require"
	DefaultMinConns           = 2
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// DefaultSymbols is used when job.symbols is empty.
var DefaultSymbols = []string{"AAPL", "IBM", "MSFT", "GOOGL", "AMZN", "TSLA", "NVDA", "NFLX", "INTC"}

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.APIKey == "" {
		c.API.APIKey = os.Getenv(APIKeyEnv)
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.IntradayInterval == "" {
		c.API.IntradayInterval = DefaultIntradayInterval
	}
	if c.API.SMA.Interval == "" {
		c.API.SMA.Interval = DefaultSMAInterval
	}
	if c.API.SMA.TimePeriod == 0 {
		c.API.SMA.TimePeriod = DefaultSMATimePeriod
	}
	if c.API.SMA.SeriesType == "" {
		c.API.SMA.SeriesType = DefaultSMASeriesType
	}

	// Rate limit defaults
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = DefaultRateLimit
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateWindow
	}

	// Job defaults
	if len(c.Job.Symbols) == 0 {
		c.Job.Symbols = append([]string(nil), DefaultSymbols...)
	}
	for i, s := range c.Job.Symbols {
		c.Job.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if len(c.Job.Endpoints) == 0 {
		for _, k := range model.AllEndpoints {
			c.Job.Endpoints = append(c.Job.Endpoints, k.String())
		}
	}
	for i, e := range c.Job.Endpoints {
		if k, err := model.ParseEndpointKind(e); err == nil {
			c.Job.Endpoints[i] = k.String()
		}
	}
	if c.Job.MaxWorkers == 0 {
		c.Job.MaxWorkers = DefaultMaxWorkers
	}

	// Retry defaults
	if c.Retry.FetchAttempts == 0 {
		c.Retry.FetchAttempts = DefaultFetchAttempts
	}
	if c.Retry.PersistAttempts == 0 {
		c.Retry.PersistAttempts = DefaultPersistAttempts
	}
	if c.Retry.BaseBackoff == 0 {
		c.Retry.BaseBackoff = DefaultBaseBackoff
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = DefaultMaxBackoff
	}
	if c.Retry.RateLimitedBackoff == 0 {
		c.Retry.RateLimitedBackoff = DefaultRateLimitedBackoff
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case "duckdb":
			c.Storage.Path = DefaultDuckDBPath
		case "sqlite":
			c.Storage.Path = DefaultSQLitePath
		}
	}
	if c.Storage.BatchSize == 0 {
		c.Storage.BatchSize = DefaultBatchSize
	}
	applyDBDefaults(&c.Storage.Postgres, c.Job.MaxWorkers)

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// applyDBDefaults sizes the pool so every worker can hold a connection with
// headroom for registration and health checks.
func applyDBDefaults(db *DBConfig, maxWorkers int) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = maxWorkers + 2
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
